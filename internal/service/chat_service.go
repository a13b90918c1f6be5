package service

import (
	"encoding/json"
	"errors"
	"time"

	"mindwell_backend/internal/model"
	"mindwell_backend/internal/repository"
	"mindwell_backend/internal/util"
	"mindwell_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pusher 推送端，生产环境由 ChatHub 实现
type Pusher interface {
	PushToUsers(userIDs []uint, msg WSMessage)
}

type ChatService struct {
	ChatRepo   *repository.ChatRepository
	InviteRepo *repository.InviteRepository
	Hub        Pusher
	DB         *gorm.DB
}

func NewChatService(chatRepo *repository.ChatRepository, inviteRepo *repository.InviteRepository, hub Pusher, db *gorm.DB) *ChatService {
	return &ChatService{
		ChatRepo:   chatRepo,
		InviteRepo: inviteRepo,
		Hub:        hub,
		DB:         db,
	}
}

// BroadcastToRoom 把事件扇出到会话所有活跃成员的全部连接。
// 尽力而为、至多一次：任何投递失败都被吞掉，绝不反噬触发它的写请求；
// 掉线的客户端重连后自行拉取最新状态补齐。
func (s *ChatService) BroadcastToRoom(roomID, event string, data interface{}) {
	memberIDs, err := s.ChatRepo.GetActiveMemberIDs(roomID)
	if err != nil {
		logger.Log.Warn("broadcast: resolve members failed",
			zap.String("roomId", roomID), zap.Error(err))
		return
	}
	if len(memberIDs) == 0 {
		return
	}
	s.Hub.PushToUsers(memberIDs, WSMessage{Type: event, Data: data})
}

func (s *ChatService) broadcastMessage(msg *model.Message) {
	s.BroadcastToRoom(msg.ConversationID, EventChatMessage, map[string]interface{}{
		"roomId":  msg.ConversationID,
		"message": msg,
	})
}

// SyncInviteCard 重算卡片投影、回写消息记录并广播。
// 状态机与合并引擎的每次成功写入都以它收尾。
func (s *ChatService) SyncInviteCard(invite *model.AssessmentInvite, a *model.Assessment) error {
	card := ProjectCard(invite, a)
	raw, err := json.Marshal(card)
	if err != nil {
		return err
	}

	if err := s.ChatRepo.UpdateMessageContent(invite.MessageID, string(raw)); err != nil {
		return err
	}

	msg, err := s.ChatRepo.GetMessage(invite.MessageID)
	if err != nil {
		// 卡片已落库，广播失败走重连补偿
		logger.Log.Warn("card sync: reload message failed",
			zap.String("messageId", invite.MessageID), zap.Error(err))
		return nil
	}
	s.broadcastMessage(msg)
	return nil
}

// CreatePrivateConversation 获取或创建两人私聊
func (s *ChatService) CreatePrivateConversation(userID, targetID uint) (*model.Conversation, error) {
	if userID == targetID {
		return nil, util.ErrValidation
	}

	if conv, err := s.ChatRepo.FindPrivateConversation(userID, targetID); err == nil {
		return conv, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv := &model.Conversation{
		Type:      "private",
		CreatorID: userID,
		Members: []model.ConversationMember{
			{UserID: userID, Role: "member"},
			{UserID: targetID, Role: "member"},
		},
	}
	if err := s.ChatRepo.CreateConversation(conv); err != nil {
		return nil, err
	}
	return s.ChatRepo.GetConversation(conv.ID)
}

func (s *ChatService) ListConversations(userID uint, page, limit int) ([]model.Conversation, int64, error) {
	return s.ChatRepo.GetUserConversations(userID, limit, (page-1)*limit)
}

func (s *ChatService) GetMessages(convID string, userID uint, page, limit int) ([]model.Message, int64, error) {
	if _, err := s.ChatRepo.GetMember(convID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, util.ErrNotMember
		}
		return nil, 0, err
	}
	return s.ChatRepo.GetMessages(convID, limit, (page-1)*limit)
}

func (s *ChatService) HideConversation(convID string, userID uint) error {
	if _, err := s.ChatRepo.GetMember(convID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrNotMember
		}
		return err
	}
	return s.ChatRepo.HideConversation(convID, userID)
}

type SendMessageRequest struct {
	Type        string         `json:"type" binding:"required"`
	Content     string         `json:"content"`
	TestType    model.TestType `json:"testType"`
	ClientMsgID string         `json:"clientMsgId"`
}

// SendMessage 发送文本消息或测评邀请消息。
// 邀请消息会在同一事务里创建邀请记录（与消息一一对应）并写入初始 pending 卡片。
func (s *ChatService) SendMessage(userID uint, convID string, req SendMessageRequest) (*model.Message, error) {
	if _, err := s.ChatRepo.GetMember(convID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrNotMember
		}
		return nil, err
	}

	// 请求重试去重
	if req.ClientMsgID != "" {
		if existing, err := s.ChatRepo.FindMessageByClientID(convID, req.ClientMsgID); err == nil {
			return existing, nil
		}
	}

	switch req.Type {
	case model.MessageTypeText:
		if req.Content == "" {
			return nil, util.ErrValidation
		}
		msg := &model.Message{
			ConversationID: convID,
			SenderID:       &userID,
			Type:           model.MessageTypeText,
			Content:        req.Content,
			ClientMsgID:    req.ClientMsgID,
		}
		if err := s.ChatRepo.CreateMessage(msg); err != nil {
			return nil, err
		}
		s.afterNewMessage(msg)
		return s.ChatRepo.GetMessage(msg.ID)

	case model.MessageTypeInvite:
		return s.sendInviteMessage(userID, convID, req)

	default:
		return nil, util.ErrValidation
	}
}

func (s *ChatService) sendInviteMessage(userID uint, convID string, req SendMessageRequest) (*model.Message, error) {
	if !model.ValidTestType(req.TestType) {
		return nil, util.ErrUnknownTestType
	}

	conv, err := s.ChatRepo.GetConversation(convID)
	if err != nil {
		return nil, util.ErrConvNotFound
	}
	if conv.Type != "private" {
		return nil, util.ErrValidation
	}

	var inviteeID uint
	for _, m := range conv.Members {
		if m.UserID != userID {
			inviteeID = m.UserID
		}
	}
	if inviteeID == 0 {
		return nil, util.ErrValidation
	}

	msg := &model.Message{
		UUIDBase:       model.UUIDBase{ID: model.GenerateUUID()},
		ConversationID: convID,
		SenderID:       &userID,
		Type:           model.MessageTypeInvite,
		ClientMsgID:    req.ClientMsgID,
	}
	invite := &model.AssessmentInvite{
		ConversationID: convID,
		MessageID:      msg.ID,
		InviterID:      userID,
		InviteeID:      inviteeID,
		Type:           req.TestType,
		Status:         model.InvitePending,
	}

	// 初始卡片也必须出自投影函数
	card := ProjectCard(invite, nil)
	raw, err := json.Marshal(card)
	if err != nil {
		return nil, err
	}
	msg.Content = string(raw)

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return s.InviteRepo.Create(tx, invite)
	})
	if err != nil {
		return nil, err
	}

	s.afterNewMessage(msg)
	return s.ChatRepo.GetMessage(msg.ID)
}

// RevokeMessage 撤回自己发送的消息。邀请消息承载状态卡片，撤回会使两侧漂移，不允许。
func (s *ChatService) RevokeMessage(userID uint, msgID string) (*model.Message, error) {
	msg, err := s.ChatRepo.GetMessage(msgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrMessageNotFound
		}
		return nil, err
	}
	if msg.SenderID == nil || *msg.SenderID != userID {
		return nil, util.ErrPermissionDenied
	}
	if msg.Type == model.MessageTypeInvite {
		return nil, util.ErrInvalidState
	}
	if msg.IsRevoked {
		return msg, nil
	}

	if err := s.ChatRepo.RevokeMessage(msg.ID); err != nil {
		return nil, err
	}
	msg.IsRevoked = true
	msg.Content = ""
	s.broadcastMessage(msg)
	return msg, nil
}

// afterNewMessage 新消息后的固定动作：恢复被隐藏的会话、刷新会话时间、广播
func (s *ChatService) afterNewMessage(msg *model.Message) {
	if err := s.ChatRepo.UnhideConversation(msg.ConversationID); err != nil {
		logger.Log.Warn("unhide conversation failed",
			zap.String("conversationId", msg.ConversationID), zap.Error(err))
	}
	s.DB.Model(&model.Conversation{}).
		Where("id = ?", msg.ConversationID).
		Update("updated_at", time.Now())

	if full, err := s.ChatRepo.GetMessage(msg.ID); err == nil {
		s.broadcastMessage(full)
	} else {
		s.broadcastMessage(msg)
	}
}
