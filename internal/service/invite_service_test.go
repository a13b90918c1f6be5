package service

import (
	"testing"

	"mindwell_backend/internal/model"
	"mindwell_backend/internal/util"

	"github.com/stretchr/testify/assert"
)

func newInvite(status model.InviteStatus) *model.AssessmentInvite {
	return &model.AssessmentInvite{
		InviterID: 1,
		InviteeID: 2,
		Type:      model.TestPHQ9,
		Status:    status,
	}
}

func TestCheckTransition_AcceptReject(t *testing.T) {
	tests := []struct {
		name    string
		status  model.InviteStatus
		action  string
		actorID uint
		wantErr error
	}{
		{"受邀人接受pending", model.InvitePending, InviteActionAccept, 2, nil},
		{"受邀人拒绝pending", model.InvitePending, InviteActionReject, 2, nil},
		{"发起人不能接受", model.InvitePending, InviteActionAccept, 1, util.ErrPermissionDenied},
		{"发起人不能拒绝", model.InvitePending, InviteActionReject, 1, util.ErrPermissionDenied},
		{"第三方不能接受", model.InvitePending, InviteActionAccept, 99, util.ErrPermissionDenied},
		{"accepted不能再接受", model.InviteAccepted, InviteActionAccept, 2, util.ErrInvalidState},
		{"accepted不能再拒绝", model.InviteAccepted, InviteActionReject, 2, util.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTransition(newInvite(tt.status), tt.action, tt.actorID, false)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckTransition_Cancel(t *testing.T) {
	// 受邀人在 pending 与 accepted 都可取消
	assert.NoError(t, checkTransition(newInvite(model.InvitePending), InviteActionCancel, 2, false))
	assert.NoError(t, checkTransition(newInvite(model.InviteAccepted), InviteActionCancel, 2, false))

	// 发起人撤回默认关闭
	err := checkTransition(newInvite(model.InvitePending), InviteActionCancel, 1, false)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	// 开关放开后发起人可撤回 pending，但不能撤回已接受的邀请
	assert.NoError(t, checkTransition(newInvite(model.InvitePending), InviteActionCancel, 1, true))
	err = checkTransition(newInvite(model.InviteAccepted), InviteActionCancel, 1, true)
	assert.ErrorIs(t, err, util.ErrInvalidState)

	// 第三方在任何开关下都不能取消
	err = checkTransition(newInvite(model.InvitePending), InviteActionCancel, 99, true)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestCheckTransition_TerminalImmutable(t *testing.T) {
	terminals := []model.InviteStatus{model.InviteRejected, model.InviteCanceled, model.InviteCompleted}
	actions := []string{InviteActionAccept, InviteActionReject, InviteActionCancel}

	for _, status := range terminals {
		for _, action := range actions {
			for _, actor := range []uint{1, 2} {
				err := checkTransition(newInvite(status), action, actor, true)
				assert.Error(t, err,
					"status=%s action=%s actor=%d 应当被拒绝", status, action, actor)
			}
		}
	}
}

func TestCheckTransition_UnknownAction(t *testing.T) {
	err := checkTransition(newInvite(model.InvitePending), "complete", 2, false)
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestInviteStatusTerminal(t *testing.T) {
	assert.False(t, model.InvitePending.Terminal())
	assert.False(t, model.InviteAccepted.Terminal())
	assert.True(t, model.InviteRejected.Terminal())
	assert.True(t, model.InviteCanceled.Terminal())
	assert.True(t, model.InviteCompleted.Terminal())
}
