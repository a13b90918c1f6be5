package model

// 聊天气泡内的结构化卡片。按消息类型区分 kind，目前只有测评邀请一种卡片。
const CardKindInvite = "invite"

type CardProgress struct {
	AnsweredCount int `json:"answeredCount"`
	Total         int `json:"total"`
	Percent       int `json:"percent"`
}

// InviteCard 邀请消息气泡的完整载荷。
// 该结构只能由 service.ProjectCard 组装，任何地方都不允许手工修补字段，
// 否则邀请侧与测评侧看到的卡片会漂移。
type InviteCard struct {
	Kind         string       `json:"kind"`
	TestType     TestType     `json:"testType"`
	TestName     string       `json:"testName"`
	Status       InviteStatus `json:"status"`
	InviterID    uint         `json:"inviterId"`
	InviteeID    uint         `json:"inviteeId"`
	InProgress   bool         `json:"inProgress"`
	Paused       bool         `json:"paused"`
	Progress     CardProgress `json:"progress"`
	Summary      string       `json:"summary,omitempty"`
	AssessmentID *uint        `json:"assessmentId,omitempty"`
}
