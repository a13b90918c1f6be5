package service

import (
	"errors"

	"mindwell_backend/internal/config"
	"mindwell_backend/internal/model"
	"mindwell_backend/internal/repository"
	"mindwell_backend/internal/util"
	"mindwell_backend/pkg/logger"
	"mindwell_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 邀请动作
const (
	InviteActionAccept = "accept"
	InviteActionReject = "reject"
	InviteActionCancel = "cancel"
)

// InviteService 测评邀请状态机：
//
//	pending -> accepted -> completed（completed 只能由提交钩子触达）
//	pending -> rejected
//	pending/accepted -> canceled
//
// rejected、canceled、completed 均为终态。
type InviteService struct {
	InviteRepo     *repository.InviteRepository
	AssessmentRepo *repository.AssessmentRepository
	Chat           *ChatService
	DB             *gorm.DB
	Features       config.FeaturesConfig
}

func NewInviteService(inviteRepo *repository.InviteRepository, assessmentRepo *repository.AssessmentRepository, chat *ChatService, db *gorm.DB, features config.FeaturesConfig) *InviteService {
	return &InviteService{
		InviteRepo:     inviteRepo,
		AssessmentRepo: assessmentRepo,
		Chat:           chat,
		DB:             db,
		Features:       features,
	}
}

// checkTransition 校验动作合法性：先验权限（谁能做），再验状态（现在能不能做）。
// 任何违规都显式报错，绝不静默忽略。inviterCancel 为发起人撤回开关，
// 放开时发起人也可取消 pending 的邀请（产品语义待定，用配置兜底两种行为）。
func checkTransition(invite *model.AssessmentInvite, action string, actorID uint, inviterCancel bool) error {
	switch action {
	case InviteActionAccept, InviteActionReject:
		if actorID != invite.InviteeID {
			return util.ErrPermissionDenied
		}
		if invite.Status != model.InvitePending {
			return util.ErrInvalidState
		}
		return nil

	case InviteActionCancel:
		if actorID == invite.InviteeID {
			if invite.Status != model.InvitePending && invite.Status != model.InviteAccepted {
				return util.ErrInvalidState
			}
			return nil
		}
		if inviterCancel && actorID == invite.InviterID {
			// 发起人只能撤回尚未被响应的邀请
			if invite.Status != model.InvitePending {
				return util.ErrInvalidState
			}
			return nil
		}
		return util.ErrPermissionDenied

	default:
		return util.ErrValidation
	}
}

// Get 查看邀请详情，仅限双方参与者。
// 客户端可能只持有卡片所在消息的ID，按消息ID兜底检索。
func (s *InviteService) Get(userID uint, inviteID string) (*model.AssessmentInvite, error) {
	invite, err := s.InviteRepo.FindByID(inviteID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		invite, err = s.InviteRepo.FindByMessageID(inviteID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInviteNotFound
		}
		return nil, err
	}
	if userID != invite.InviterID && userID != invite.InviteeID {
		return nil, util.ErrInviteNotFound
	}
	return invite, nil
}

// Do 执行一次状态转移。成功后重算卡片、回写消息并广播到会话。
func (s *InviteService) Do(userID uint, inviteID, action string) (*model.AssessmentInvite, error) {
	invite, err := s.Get(userID, inviteID)
	if err != nil {
		return nil, err
	}

	if err := checkTransition(invite, action, userID, s.Features.InviterCancel); err != nil {
		monitoring.InviteTransitionCounter.WithLabelValues(action, "rejected").Inc()
		return nil, err
	}

	var assessment *model.Assessment

	switch action {
	case InviteActionAccept:
		err = s.InviteRepo.Updates(s.DB, invite.ID, map[string]interface{}{
			"status": model.InviteAccepted,
		})
		if err != nil {
			return nil, err
		}
		invite.Status = model.InviteAccepted

	case InviteActionReject:
		err = s.InviteRepo.Updates(s.DB, invite.ID, map[string]interface{}{
			"status": model.InviteRejected,
		})
		if err != nil {
			return nil, err
		}
		invite.Status = model.InviteRejected

	case InviteActionCancel:
		// 取消要同时解绑并清空关联测评，必须原子完成
		err = s.DB.Transaction(func(tx *gorm.DB) error {
			if invite.AssessmentID != nil {
				if err := s.AssessmentRepo.WipeProgress(tx, *invite.AssessmentID); err != nil {
					return err
				}
			}
			return s.InviteRepo.Updates(tx, invite.ID, map[string]interface{}{
				"status":        model.InviteCanceled,
				"assessment_id": nil,
			})
		})
		if err != nil {
			return nil, err
		}
		invite.Status = model.InviteCanceled
		invite.AssessmentID = nil
	}

	monitoring.InviteTransitionCounter.WithLabelValues(action, "ok").Inc()

	if err := s.Chat.SyncInviteCard(invite, assessment); err != nil {
		// 卡片同步失败不回滚状态转移，下一次写入会重新投影
		logger.Log.Warn("invite card sync failed",
			zap.String("inviteId", invite.ID), zap.Error(err))
	}

	return invite, nil
}
