package model

import (
	"time"
)

// 消息类型：invite 消息的 Content 存放测评卡片 JSON（由卡片投影函数统一生成）
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
	MessageTypeInvite = "assessment_invite"
)

// Conversation 存储会话（私聊、群聊信息）
type Conversation struct {
	UUIDBase
	Type      string               `gorm:"size:20;default:'private'" json:"type"`
	Name      string               `gorm:"size:100" json:"name"`
	CreatorID uint                 `gorm:"index" json:"creatorId"`
	Members   []ConversationMember `gorm:"foreignKey:ConversationID" json:"members"`
	MemberIDs []uint               `gorm:"-" json:"memberIds"` // 扁平化的成员ID列表
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMember 维护成员关系；HiddenAt 非空表示该用户已将会话从列表移除，
// 广播解析成员时会跳过这类成员
type ConversationMember struct {
	ConversationID  string     `gorm:"primaryKey;type:varchar(36)" json:"conversationId"`
	UserID          uint       `gorm:"primaryKey;index" json:"userId"`
	User            User       `gorm:"foreignKey:UserID" json:"user"`
	Role            string     `gorm:"size:20;default:'member'" json:"role"`
	LastReadMsgID   string     `gorm:"type:varchar(36);default:''" json:"lastReadMsgId"`
	LastReadMsgTime *time.Time `json:"lastReadMsgTime"`
	HiddenAt        *time.Time `gorm:"index" json:"hiddenAt,omitempty"`
	JoinedAt        time.Time  `gorm:"autoCreateTime" json:"joinedAt"`
}

func (ConversationMember) TableName() string {
	return "conversation_members"
}

// Message 消息记录
type Message struct {
	UUIDBase
	ConversationID string       `gorm:"index;index:idx_conv_created;type:varchar(36);not null" json:"conversationId"`
	CreatedAt      time.Time    `gorm:"index:idx_conv_created" json:"createdAt"`
	SenderID       *uint        `gorm:"index" json:"senderId"`
	Sender         User         `gorm:"foreignKey:SenderID" json:"sender"`
	Conversation   Conversation `gorm:"foreignKey:ConversationID" json:"conversation"`
	Type           string       `gorm:"size:32;default:'text';index" json:"type"`
	Content        string       `gorm:"type:text" json:"content"`
	IsRevoked      bool         `gorm:"default:false" json:"isRevoked"`
	ClientMsgID    string       `gorm:"size:50;index" json:"clientMsgId"` // 用于识别重复消息
}

func (Message) TableName() string {
	return "messages"
}
