package controller

import (
	"strconv"

	"mindwell_backend/internal/model"
	"mindwell_backend/internal/service"
	"mindwell_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	Service *service.AssessmentService
}

func NewAssessmentController(svc *service.AssessmentService) *AssessmentController {
	return &AssessmentController{Service: svc}
}

// StartAssessmentRequest 开始测评请求；inviteId 可选，来自邀请卡片时携带
type StartAssessmentRequest struct {
	Type     model.TestType `json:"type" binding:"required"`
	InviteID string         `json:"inviteId"`
}

// @Summary 量表目录
// @Tags 心理测评
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/assessments/catalog [get]
func (c *AssessmentController) GetCatalog(ctx *gin.Context) {
	util.Success(ctx, c.Service.Catalog())
}

// @Summary 开始测评
// @Tags 心理测评
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body StartAssessmentRequest true "量表类型与可选邀请ID"
// @Success 201 {object} util.Response
// @Router /api/assessments/start [post]
func (c *AssessmentController) Start(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req StartAssessmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.Start(claims.UserID, req.Type, req.InviteID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Created(ctx, a)
}

// @Summary 上报进度
// @Description 幂等合并：页码/耗时只进不退，答案做并集，空答案不清空；返回合并后的快照
// @Tags 心理测评
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Param body body service.ProgressReport true "进度增量"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/progress [put]
func (c *AssessmentController) ReportProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid id")
		return
	}

	var report service.ProgressReport
	if err := ctx.ShouldBindJSON(&report); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.ApplyProgress(claims.UserID, uint(id), report)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary 提交测评
// @Tags 心理测评
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Param body body service.SubmitRequest true "完整答案与总耗时"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/submit [post]
func (c *AssessmentController) Submit(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid id")
		return
	}

	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.Submit(claims.UserID, uint(id), req)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary 测评详情
// @Tags 心理测评
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id} [get]
func (c *AssessmentController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid id")
		return
	}

	a, err := c.Service.Get(claims.UserID, uint(id))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary 我的测评列表
// @Tags 心理测评
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/assessments [get]
func (c *AssessmentController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := pageParams(ctx)
	list, total, err := c.Service.List(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// @Summary 删除测评
// @Tags 心理测评
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id} [delete]
func (c *AssessmentController) Delete(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		util.BadRequest(ctx, "invalid id")
		return
	}

	if err := c.Service.Delete(claims.UserID, uint(id)); err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
