package service

import (
	"encoding/json"
	"math"

	"mindwell_backend/internal/model"
)

// ProjectCard 由 (邀请, 测评) 推导聊天气泡卡片，是卡片 JSON 唯一的组装点。
// 邀请状态机和进度合并引擎都在落库后经由它重算卡片，保证两侧永不漂移。
// 纯函数：不读库、不改参数。
func ProjectCard(invite *model.AssessmentInvite, a *model.Assessment) model.InviteCard {
	info := model.TestCatalog[invite.Type]

	card := model.InviteCard{
		Kind:      model.CardKindInvite,
		TestType:  invite.Type,
		TestName:  info.Name,
		Status:    invite.Status,
		InviterID: invite.InviterID,
		InviteeID: invite.InviteeID,
		Progress:  model.CardProgress{Total: info.QuestionCount},
	}

	switch invite.Status {
	case model.InviteAccepted:
		card.InProgress = true
		card.AssessmentID = invite.AssessmentID
		if a != nil {
			card.Paused = a.PausedAt != nil
			card.Progress.AnsweredCount = a.AnsweredCount()
			card.Progress.Percent = ProgressPercent(a.AnsweredCount(), info.QuestionCount)
		}

	case model.InviteCompleted:
		card.AssessmentID = invite.AssessmentID
		card.Progress.Percent = 100
		if a != nil {
			card.Progress.AnsweredCount = a.AnsweredCount()
			card.Summary = cardSummary(a, info)
		}

	case model.InviteCanceled:
		// 取消后进度归零、解绑测评，卡片回到 {0, total, 0}

	case model.InvitePending, model.InviteRejected:
		// 进度保持默认值
	}

	return card
}

// ProgressPercent 完成度百分比，四舍五入并收敛到 [0,100]
func ProgressPercent(answered, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(answered) / float64(total) * 100))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// cardSummary 完成态卡片的一句话摘要，优先取分析结果里的 summary 字段
func cardSummary(a *model.Assessment, info model.TestInfo) string {
	if len(a.AnalysisResult) > 0 {
		var parsed struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal(a.AnalysisResult, &parsed); err == nil && parsed.Summary != "" {
			return parsed.Summary
		}
	}
	return info.Name + "已完成"
}
