package service

import (
	"testing"
	"time"

	"mindwell_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestProjectCard_Pending(t *testing.T) {
	invite := newInvite(model.InvitePending)
	card := ProjectCard(invite, nil)

	assert.Equal(t, model.CardKindInvite, card.Kind)
	assert.Equal(t, model.TestPHQ9, card.TestType)
	assert.Equal(t, "PHQ-9 抑郁症筛查量表", card.TestName)
	assert.Equal(t, model.InvitePending, card.Status)
	assert.False(t, card.InProgress)
	assert.False(t, card.Paused)
	assert.Equal(t, 0, card.Progress.AnsweredCount)
	assert.Equal(t, 9, card.Progress.Total)
	assert.Equal(t, 0, card.Progress.Percent)
	assert.Nil(t, card.AssessmentID)
}

func TestProjectCard_AcceptedWithProgress(t *testing.T) {
	aid := uint(7)
	invite := newInvite(model.InviteAccepted)
	invite.AssessmentID = &aid

	now := time.Now()
	a := &model.Assessment{
		Type:     model.TestPHQ9,
		Status:   model.AssessmentInProgress,
		PausedAt: &now,
		RawAnswers: datatypes.JSONMap{
			"q1": "2", "q2": "1", "q3": "0",
		},
	}

	card := ProjectCard(invite, a)
	assert.True(t, card.InProgress)
	assert.True(t, card.Paused)
	assert.Equal(t, 3, card.Progress.AnsweredCount)
	assert.Equal(t, 9, card.Progress.Total)
	assert.Equal(t, 33, card.Progress.Percent)
	assert.Equal(t, &aid, card.AssessmentID)
}

func TestProjectCard_AcceptedWithoutAssessment(t *testing.T) {
	// 已接受但尚未开始答题
	card := ProjectCard(newInvite(model.InviteAccepted), nil)
	assert.True(t, card.InProgress)
	assert.False(t, card.Paused)
	assert.Equal(t, 0, card.Progress.Percent)
}

func TestProjectCard_Completed(t *testing.T) {
	aid := uint(7)
	invite := newInvite(model.InviteCompleted)
	invite.AssessmentID = &aid

	a := &model.Assessment{
		Type:           model.TestPHQ9,
		Status:         model.AssessmentCompleted,
		RawAnswers:     datatypes.JSONMap{"q1": "2"},
		AnalysisResult: datatypes.JSON(`{"summary":"轻度抑郁倾向","overallScore":35}`),
	}

	card := ProjectCard(invite, a)
	assert.False(t, card.InProgress)
	assert.Equal(t, 100, card.Progress.Percent)
	assert.Equal(t, "轻度抑郁倾向", card.Summary)
}

func TestProjectCard_CompletedSummaryFallback(t *testing.T) {
	invite := newInvite(model.InviteCompleted)
	a := &model.Assessment{Type: model.TestPHQ9, Status: model.AssessmentCompleted}

	card := ProjectCard(invite, a)
	assert.Equal(t, "PHQ-9 抑郁症筛查量表已完成", card.Summary)
}

func TestProjectCard_CanceledResetsProgress(t *testing.T) {
	invite := newInvite(model.InviteCanceled)
	invite.AssessmentID = nil

	card := ProjectCard(invite, nil)
	assert.False(t, card.InProgress)
	assert.False(t, card.Paused)
	assert.Equal(t, 0, card.Progress.AnsweredCount)
	assert.Equal(t, 9, card.Progress.Total)
	assert.Equal(t, 0, card.Progress.Percent)
	assert.Nil(t, card.AssessmentID)
	assert.Empty(t, card.Summary)
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, ProgressPercent(0, 0))
	assert.Equal(t, 0, ProgressPercent(5, 0))
	assert.Equal(t, 0, ProgressPercent(0, 9))
	assert.Equal(t, 33, ProgressPercent(3, 9))
	assert.Equal(t, 56, ProgressPercent(5, 9))
	assert.Equal(t, 100, ProgressPercent(9, 9))
	// 异常输入收敛到边界
	assert.Equal(t, 100, ProgressPercent(12, 9))
	assert.Equal(t, 0, ProgressPercent(-1, 9))
}
