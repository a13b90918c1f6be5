package repository

import (
	"context"
	"fmt"
	"time"

	"mindwell_backend/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const memberCacheTTL = 5 * time.Minute

type ChatRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
	ctx   context.Context
}

func NewChatRepository(db *gorm.DB, rdb *redis.Client) *ChatRepository {
	return &ChatRepository{
		DB:    db,
		Redis: rdb,
		ctx:   context.Background(),
	}
}

func (r *ChatRepository) CreateConversation(conv *model.Conversation) error {
	return r.DB.Create(conv).Error
}

func (r *ChatRepository) GetConversation(id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB.Preload("Members.User").First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	fillMemberIDs(&conv)
	return &conv, nil
}

// fillMemberIDs 展平成员ID列表，客户端无需遍历 Members
func fillMemberIDs(conv *model.Conversation) {
	ids := make([]uint, 0, len(conv.Members))
	for _, m := range conv.Members {
		ids = append(ids, m.UserID)
	}
	conv.MemberIDs = ids
}

func (r *ChatRepository) GetUserConversations(userID uint, limit, offset int) ([]model.Conversation, int64, error) {
	var convs []model.Conversation
	var total int64

	db := r.DB.Model(&model.Conversation{}).
		Joins("JOIN conversation_members ON conversation_members.conversation_id = conversations.id").
		Where("conversation_members.user_id = ?", userID).
		Where("conversation_members.hidden_at IS NULL")

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Members.User").
		Order("conversations.updated_at DESC").
		Limit(limit).Offset(offset).
		Find(&convs).Error
	for i := range convs {
		fillMemberIDs(&convs[i])
	}

	return convs, total, err
}

// FindPrivateConversation 查找两个用户共同参与且类型为private的会话
func (r *ChatRepository) FindPrivateConversation(userID1, userID2 uint) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB.Table("conversations").
		Joins("JOIN conversation_members cm1 ON cm1.conversation_id = conversations.id").
		Joins("JOIN conversation_members cm2 ON cm2.conversation_id = conversations.id").
		Where("conversations.type = ?", "private").
		Where("cm1.user_id = ?", userID1).
		Where("cm2.user_id = ?", userID2).
		Preload("Members.User").
		First(&conv).Error

	if err != nil {
		return nil, err
	}
	fillMemberIDs(&conv)
	return &conv, nil
}

func (r *ChatRepository) GetMember(convID string, userID uint) (*model.ConversationMember, error) {
	var member model.ConversationMember
	err := r.DB.Where("conversation_id = ? AND user_id = ?", convID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetActiveMemberIDs 解析会话当前活跃成员：隐藏/退出的成员不参与广播。
// 结果短暂缓存在 redis，发消息高频路径避免每次查库。
func (r *ChatRepository) GetActiveMemberIDs(convID string) ([]uint, error) {
	cacheKey := fmt.Sprintf("chat:members:active:%s", convID)

	if r.Redis != nil {
		var cached []uint
		if err := getJSONCache(r.ctx, r.Redis, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	var ids []uint
	err := r.DB.Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND hidden_at IS NULL", convID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}

	if r.Redis != nil {
		setJSONCache(r.ctx, r.Redis, cacheKey, ids, memberCacheTTL)
	}
	return ids, nil
}

// HideConversation 用户隐藏某个会话（从会话列表中移除，收到新消息时自动恢复）
func (r *ChatRepository) HideConversation(convID string, userID uint) error {
	now := time.Now()
	err := r.DB.Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Update("hidden_at", now).Error
	if err == nil {
		r.invalidateMemberCache(convID)
	}
	return err
}

// UnhideConversation 取消隐藏会话（收到新消息时自动调用）
func (r *ChatRepository) UnhideConversation(convID string) error {
	err := r.DB.Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND hidden_at IS NOT NULL", convID).
		Update("hidden_at", nil).Error
	if err == nil {
		r.invalidateMemberCache(convID)
	}
	return err
}

func (r *ChatRepository) invalidateMemberCache(convID string) {
	if r.Redis != nil {
		r.Redis.Del(r.ctx, fmt.Sprintf("chat:members:active:%s", convID))
	}
}

func (r *ChatRepository) CreateMessage(msg *model.Message) error {
	return r.DB.Create(msg).Error
}

func (r *ChatRepository) GetMessage(id string) (*model.Message, error) {
	var msg model.Message
	err := r.DB.Preload("Sender").First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *ChatRepository) GetMessages(convID string, limit, offset int) ([]model.Message, int64, error) {
	var msgs []model.Message
	var total int64

	db := r.DB.Model(&model.Message{}).Where("conversation_id = ?", convID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Sender").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error

	return msgs, total, err
}

// FindMessageByClientID 按客户端消息ID去重（请求重试不产生重复消息）
func (r *ChatRepository) FindMessageByClientID(convID, clientMsgID string) (*model.Message, error) {
	var msg model.Message
	err := r.DB.Where("conversation_id = ? AND client_msg_id = ?", convID, clientMsgID).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// RevokeMessage 标记撤回并清空正文
func (r *ChatRepository) RevokeMessage(msgID string) error {
	return r.DB.Model(&model.Message{}).
		Where("id = ?", msgID).
		Updates(map[string]interface{}{
			"is_revoked": true,
			"content":    "",
		}).Error
}

// UpdateMessageContent 回写卡片投影等派生内容
func (r *ChatRepository) UpdateMessageContent(msgID, content string) error {
	return r.DB.Model(&model.Message{}).
		Where("id = ?", msgID).
		Update("content", content).Error
}

// GetRelatedUserIDs 获取与该用户同处任一会话的所有用户ID（在线状态通知用）
func (r *ChatRepository) GetRelatedUserIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Table("conversation_members cm1").
		Select("DISTINCT cm2.user_id").
		Joins("JOIN conversation_members cm2 ON cm2.conversation_id = cm1.conversation_id").
		Where("cm1.user_id = ? AND cm2.user_id != ?", userID, userID).
		Pluck("cm2.user_id", &ids).Error
	return ids, err
}
