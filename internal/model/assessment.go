package model

import (
	"time"

	"gorm.io/datatypes"
)

type TestType string

const (
	TestMBTI  TestType = "mbti"
	TestPHQ9  TestType = "phq9"
	TestGAD7  TestType = "gad7"
	TestSCL90 TestType = "scl90"
	TestSDS   TestType = "sds"
)

// TestInfo 量表元信息；QuestionCount 即卡片进度中的 total，固定不随答题变化
type TestInfo struct {
	Type          TestType `json:"type"`
	Name          string   `json:"name"`
	QuestionCount int      `json:"questionCount"`
	PageSize      int      `json:"pageSize"`
}

// TestCatalog 支持的量表目录
var TestCatalog = map[TestType]TestInfo{
	TestMBTI:  {Type: TestMBTI, Name: "MBTI 职业性格测试", QuestionCount: 93, PageSize: 10},
	TestPHQ9:  {Type: TestPHQ9, Name: "PHQ-9 抑郁症筛查量表", QuestionCount: 9, PageSize: 9},
	TestGAD7:  {Type: TestGAD7, Name: "GAD-7 焦虑症筛查量表", QuestionCount: 7, PageSize: 7},
	TestSCL90: {Type: TestSCL90, Name: "SCL-90 症状自评量表", QuestionCount: 90, PageSize: 15},
	TestSDS:   {Type: TestSDS, Name: "SDS 抑郁自评量表", QuestionCount: 20, PageSize: 10},
}

func ValidTestType(t TestType) bool {
	_, ok := TestCatalog[t]
	return ok
}

type AssessmentStatus string

const (
	AssessmentInProgress AssessmentStatus = "in_progress"
	AssessmentCompleted  AssessmentStatus = "completed"
	AssessmentAnalyzed   AssessmentStatus = "analyzed"
)

// Assessment 一次测评尝试。进度字段（RawAnswers/CurrentPage/ElapsedTime/PausedAt）
// 只经由进度合并写路径修改；终态字段只由提交路径写入。
type Assessment struct {
	BaseModel
	UserID        uint              `gorm:"index;index:idx_user_type" json:"userId"`
	Type          TestType          `gorm:"size:32;index:idx_user_type;not null" json:"type"`
	Status        AssessmentStatus  `gorm:"size:20;default:'in_progress';index" json:"status"`
	RawAnswers    datatypes.JSONMap `gorm:"type:json" json:"rawAnswers"` // 题目ID -> 答案
	CurrentPage   int               `gorm:"default:0" json:"currentPage"`
	ElapsedTime   int               `gorm:"default:0" json:"elapsedTime"` // 秒
	PausedAt      *time.Time        `json:"pausedAt"`
	DeletedByUser bool              `gorm:"default:false;index" json:"deletedByUser"`

	// 终态载荷，提交后由完成钩子一次性写入
	AnalysisResult datatypes.JSON `gorm:"type:json" json:"analysisResult,omitempty"`
	OverallScore   float64        `gorm:"default:0" json:"overallScore"`
	RiskLevel      string         `gorm:"size:20" json:"riskLevel"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

func (a *Assessment) AnsweredCount() int {
	return len(a.RawAnswers)
}

type InviteStatus string

const (
	InvitePending   InviteStatus = "pending"
	InviteAccepted  InviteStatus = "accepted"
	InviteRejected  InviteStatus = "rejected"
	InviteCanceled  InviteStatus = "canceled"
	InviteCompleted InviteStatus = "completed"
)

// Terminal 判断是否终态；终态之后任何转移都会被拒绝
func (s InviteStatus) Terminal() bool {
	return s == InviteRejected || s == InviteCanceled || s == InviteCompleted
}

// AssessmentInvite 测评邀请，与一条聊天消息一一对应。
// 记录只做状态流转，从不物理删除，保留完整历史。
type AssessmentInvite struct {
	UUIDBase
	ConversationID string       `gorm:"index;type:varchar(36);not null" json:"conversationId"`
	MessageID      string       `gorm:"uniqueIndex;type:varchar(36);not null" json:"messageId"`
	InviterID      uint         `gorm:"index" json:"inviterId"`
	InviteeID      uint         `gorm:"index" json:"inviteeId"`
	Type           TestType     `gorm:"size:32;not null" json:"type"`
	Status         InviteStatus `gorm:"size:20;default:'pending';index" json:"status"`
	AssessmentID   *uint        `gorm:"index" json:"assessmentId"` // 受邀人开始测评后绑定，取消时解绑
}

func (AssessmentInvite) TableName() string {
	return "assessment_invites"
}
