package service

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"mindwell_backend/internal/config"
	"mindwell_backend/internal/model"
	"mindwell_backend/internal/repository"
	"mindwell_backend/internal/util"
	"mindwell_backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// capturePusher 记录广播事件，代替依赖 redis 的 hub
type capturePusher struct {
	events []WSMessage
}

func (p *capturePusher) PushToUsers(userIDs []uint, msg WSMessage) {
	p.events = append(p.events, msg)
}

type fixedAnalyzer struct {
	called bool
}

func (a *fixedAnalyzer) Analyze(t model.TestType, answers map[string]interface{}, elapsedTime int) (*AnalysisResult, error) {
	a.called = true
	return &AnalysisResult{Summary: "状态平稳", OverallScore: 10, RiskLevel: "low"}, nil
}

type testEnv struct {
	db          *gorm.DB
	pusher      *capturePusher
	analyzer    *fixedAnalyzer
	chat        *ChatService
	invites     *InviteService
	assessments *AssessmentService
	inviter     *model.User
	invitee     *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Conversation{}, &model.ConversationMember{},
		&model.Message{}, &model.Assessment{}, &model.AssessmentInvite{},
	))

	inviter := &model.User{Nickname: "发起人", Email: "inviter@example.com", Password: "x"}
	invitee := &model.User{Nickname: "受邀人", Email: "invitee@example.com", Password: "x"}
	require.NoError(t, db.Create(inviter).Error)
	require.NoError(t, db.Create(invitee).Error)

	chatRepo := repository.NewChatRepository(db, nil)
	inviteRepo := repository.NewInviteRepository(db)
	assessRepo := repository.NewAssessmentRepository(db)

	pusher := &capturePusher{}
	analyzer := &fixedAnalyzer{}
	chat := NewChatService(chatRepo, inviteRepo, pusher, db)

	return &testEnv{
		db:          db,
		pusher:      pusher,
		analyzer:    analyzer,
		chat:        chat,
		invites:     NewInviteService(inviteRepo, assessRepo, chat, db, config.FeaturesConfig{}),
		assessments: NewAssessmentService(assessRepo, inviteRepo, chat, analyzer, db),
		inviter:     inviter,
		invitee:     invitee,
	}
}

// sendInvite 建私聊并发出一条邀请消息
func (e *testEnv) sendInvite(t *testing.T) (*model.Message, *model.AssessmentInvite) {
	conv, err := e.chat.CreatePrivateConversation(e.inviter.ID, e.invitee.ID)
	require.NoError(t, err)

	msg, err := e.chat.SendMessage(e.inviter.ID, conv.ID, SendMessageRequest{
		Type:     model.MessageTypeInvite,
		TestType: model.TestPHQ9,
	})
	require.NoError(t, err)

	invite, err := e.invites.Get(e.invitee.ID, msg.ID)
	require.NoError(t, err)
	return msg, invite
}

func TestInviteLookupByMessageID(t *testing.T) {
	env := newTestEnv(t)
	msg, invite := env.sendInvite(t)

	// 邀请ID与消息ID都能定位同一条邀请
	assert.Equal(t, msg.ID, invite.MessageID)
	byID, err := env.invites.Get(env.inviter.ID, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, invite.ID, byID.ID)

	// 非参与者不可见
	_, err = env.invites.Get(999, msg.ID)
	assert.ErrorIs(t, err, util.ErrInviteNotFound)
}

func TestCancelWipesBoundAssessment(t *testing.T) {
	env := newTestEnv(t)
	msg, invite := env.sendInvite(t)

	_, err := env.invites.Do(env.invitee.ID, invite.ID, InviteActionAccept)
	require.NoError(t, err)

	a, err := env.assessments.Start(env.invitee.ID, model.TestPHQ9, invite.ID)
	require.NoError(t, err)

	// 写入部分进度
	now := time.Now()
	require.NoError(t, env.db.Model(&model.Assessment{}).Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"raw_answers":  datatypes.JSONMap{"q1": "2", "q2": "1"},
			"current_page": 2,
			"elapsed_time": 120,
			"paused_at":    &now,
		}).Error)

	canceled, err := env.invites.Do(env.invitee.ID, invite.ID, InviteActionCancel)
	require.NoError(t, err)
	assert.Equal(t, model.InviteCanceled, canceled.Status)
	assert.Nil(t, canceled.AssessmentID)

	// 测评进度整体清空
	var wiped model.Assessment
	require.NoError(t, env.db.First(&wiped, a.ID).Error)
	assert.Len(t, wiped.RawAnswers, 0)
	assert.Equal(t, 0, wiped.CurrentPage)
	assert.Equal(t, 0, wiped.ElapsedTime)
	assert.Nil(t, wiped.PausedAt)
	assert.True(t, wiped.DeletedByUser)

	// 邀请侧解绑并进入终态
	var stored model.AssessmentInvite
	require.NoError(t, env.db.First(&stored, "id = ?", invite.ID).Error)
	assert.Equal(t, model.InviteCanceled, stored.Status)
	assert.Nil(t, stored.AssessmentID)

	// 消息里的卡片回到初始进度
	reloaded, err := env.chat.ChatRepo.GetMessage(msg.ID)
	require.NoError(t, err)
	var card model.InviteCard
	require.NoError(t, json.Unmarshal([]byte(reloaded.Content), &card))
	assert.Equal(t, model.InviteCanceled, card.Status)
	assert.Equal(t, 0, card.Progress.AnsweredCount)
	assert.Equal(t, 0, card.Progress.Percent)
	assert.Nil(t, card.AssessmentID)

	// 取消后状态机封死
	_, err = env.invites.Do(env.invitee.ID, invite.ID, InviteActionAccept)
	assert.ErrorIs(t, err, util.ErrInvalidState)
}

func TestStartRequiresAcceptedInvite(t *testing.T) {
	env := newTestEnv(t)
	_, invite := env.sendInvite(t)

	_, err := env.assessments.Start(env.invitee.ID, model.TestPHQ9, invite.ID)
	assert.ErrorIs(t, err, util.ErrInviteNotAcceptable)

	// 发起人不能替受邀人开始
	_, err = env.assessments.Start(env.inviter.ID, model.TestPHQ9, invite.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestSubmitRequiresCompleteAnswers(t *testing.T) {
	env := newTestEnv(t)

	a := &model.Assessment{
		UserID:     env.invitee.ID,
		Type:       model.TestPHQ9,
		Status:     model.AssessmentInProgress,
		RawAnswers: datatypes.JSONMap{},
	}
	require.NoError(t, env.db.Create(a).Error)

	// PHQ-9 共9题，只交1题不能进入完成态
	_, err := env.assessments.Submit(env.invitee.ID, a.ID, SubmitRequest{
		Answers:     map[string]string{"q1": "2"},
		ElapsedTime: 60,
	})
	assert.ErrorIs(t, err, util.ErrValidation)
	assert.False(t, env.analyzer.called, "不完整的提交不应触发分析")

	var unchanged model.Assessment
	require.NoError(t, env.db.First(&unchanged, a.ID).Error)
	assert.Equal(t, model.AssessmentInProgress, unchanged.Status)
	assert.Nil(t, unchanged.CompletedAt)
}

func TestRevokeMessage(t *testing.T) {
	env := newTestEnv(t)
	conv, err := env.chat.CreatePrivateConversation(env.inviter.ID, env.invitee.ID)
	require.NoError(t, err)

	msg, err := env.chat.SendMessage(env.inviter.ID, conv.ID, SendMessageRequest{
		Type:    model.MessageTypeText,
		Content: "你好",
	})
	require.NoError(t, err)

	// 非发送者不能撤回
	_, err = env.chat.RevokeMessage(env.invitee.ID, msg.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	revoked, err := env.chat.RevokeMessage(env.inviter.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, revoked.IsRevoked)
	assert.Empty(t, revoked.Content)

	// 邀请消息承载卡片，不可撤回
	inviteMsg, _ := env.sendInvite(t)
	_, err = env.chat.RevokeMessage(env.inviter.ID, inviteMsg.ID)
	assert.ErrorIs(t, err, util.ErrInvalidState)

	_, err = env.chat.RevokeMessage(env.inviter.ID, "missing-id")
	assert.ErrorIs(t, err, util.ErrMessageNotFound)
}

func TestConversationMemberIDs(t *testing.T) {
	env := newTestEnv(t)
	conv, err := env.chat.CreatePrivateConversation(env.inviter.ID, env.invitee.ID)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uint{env.inviter.ID, env.invitee.ID}, conv.MemberIDs)
}
