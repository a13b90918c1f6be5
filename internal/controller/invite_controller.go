package controller

import (
	"mindwell_backend/internal/service"
	"mindwell_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type InviteController struct {
	InviteService *service.InviteService
}

func NewInviteController(inviteService *service.InviteService) *InviteController {
	return &InviteController{InviteService: inviteService}
}

// InviteActionRequest 邀请动作请求
type InviteActionRequest struct {
	Action string `json:"action" binding:"required,oneof=accept reject cancel"`
}

// @Summary 邀请详情
// @Tags 测评邀请
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "邀请ID"
// @Success 200 {object} util.Response
// @Router /api/chat/invites/{id} [get]
func (c *InviteController) GetInvite(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	invite, err := c.InviteService.Get(claims.UserID, ctx.Param("id"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, invite)
}

// @Summary 执行邀请动作
// @Description accept/reject 仅受邀人可用；cancel 受邀人可用（发起人撤回由 features.inviter_cancel 控制）
// @Tags 测评邀请
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "邀请ID"
// @Param body body InviteActionRequest true "动作"
// @Success 200 {object} util.Response
// @Router /api/chat/invites/{id}/action [post]
func (c *InviteController) DoAction(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req InviteActionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	invite, err := c.InviteService.Do(claims.UserID, ctx.Param("id"), req.Action)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, invite)
}
