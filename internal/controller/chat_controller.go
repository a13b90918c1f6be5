package controller

import (
	"strconv"

	"mindwell_backend/internal/service"
	"mindwell_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ChatController 处理IM相关的HTTP请求与WebSocket接入
type ChatController struct {
	ChatService *service.ChatService
	Hub         *service.ChatHub
}

func NewChatController(chatService *service.ChatService, hub *service.ChatHub) *ChatController {
	return &ChatController{
		ChatService: chatService,
		Hub:         hub,
	}
}

// CreatePrivateChatRequest 创建私聊请求
type CreatePrivateChatRequest struct {
	TargetUserID uint `json:"targetUserId" binding:"required"`
}

// @Summary WebSocket 连接
// @Description 建立 WebSocket 连接以接收实时推送（connected 握手、chat_message 等事件）
// @Tags IM系统
// @Security ApiKeyAuth
// @Param token query string true "JWT Token"
// @Router /api/chat/ws [get]
func (c *ChatController) HandleWS(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	service.ServeWs(c.Hub, ctx.Writer, ctx.Request, claims.UserID)
}

// @Summary 创建/获取私聊会话
// @Tags IM系统
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreatePrivateChatRequest true "目标用户"
// @Success 200 {object} util.Response
// @Router /api/chat/conversations/private [post]
func (c *ChatController) CreatePrivateConversation(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CreatePrivateChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	conv, err := c.ChatService.CreatePrivateConversation(claims.UserID, req.TargetUserID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, conv)
}

// @Summary 会话列表
// @Tags IM系统
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/chat/conversations [get]
func (c *ChatController) ListConversations(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := pageParams(ctx)
	convs, total, err := c.ChatService.ListConversations(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: convs, Total: total, Page: page, Limit: limit})
}

// @Summary 历史消息
// @Tags IM系统
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/chat/conversations/{id}/messages [get]
func (c *ChatController) GetMessages(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := pageParams(ctx)
	msgs, total, err := c.ChatService.GetMessages(ctx.Param("id"), claims.UserID, page, limit)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: msgs, Total: total, Page: page, Limit: limit})
}

// @Summary 发送消息
// @Description type=text 发送文本；type=assessment_invite 发送测评邀请（需携带 testType），服务端同时创建邀请记录
// @Tags IM系统
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Param body body service.SendMessageRequest true "消息内容"
// @Success 201 {object} util.Response
// @Router /api/chat/conversations/{id}/messages [post]
func (c *ChatController) SendMessage(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.SendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	msg, err := c.ChatService.SendMessage(claims.UserID, ctx.Param("id"), req)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Created(ctx, msg)
}

// @Summary 撤回消息
// @Description 仅消息发送者可撤回；邀请消息承载测评卡片，不可撤回
// @Tags IM系统
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "消息ID"
// @Success 200 {object} util.Response
// @Router /api/chat/messages/{id}/revoke [post]
func (c *ChatController) RevokeMessage(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	msg, err := c.ChatService.RevokeMessage(claims.UserID, ctx.Param("id"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, msg)
}

// @Summary 隐藏会话
// @Tags IM系统
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/chat/conversations/{id}/hide [post]
func (c *ChatController) HideConversation(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.ChatService.HideConversation(ctx.Param("id"), claims.UserID); err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

func pageParams(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
