package util

import "errors"

// 状态机与合并引擎的错误分类：全部在任何写入发生之前同步返回，
// 控制器按类别映射到 403/409/404/400
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrInvalidState        = errors.New("operation not allowed in current state")
	ErrInviteNotFound      = errors.New("invite not found")
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrConvNotFound        = errors.New("conversation not found")
	ErrNotMember           = errors.New("not a member of this conversation")
	ErrValidation          = errors.New("invalid request payload")
	ErrUnknownTestType     = errors.New("unknown test type")
	ErrUserNotFound        = errors.New("用户不存在")
	ErrEmailRegistered     = errors.New("该邮箱已被注册")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInviteAlreadyBound  = errors.New("invite already bound to an assessment")
	ErrInviteNotAcceptable = errors.New("invite must be accepted before starting")
)
