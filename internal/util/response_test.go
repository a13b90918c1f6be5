package util

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func recordDomainError(err error) int {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	DomainError(c, err)
	return w.Code
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrNotMember, http.StatusForbidden},
		{ErrInvalidState, http.StatusConflict},
		{ErrInviteAlreadyBound, http.StatusConflict},
		{ErrInviteNotAcceptable, http.StatusConflict},
		{ErrInviteNotFound, http.StatusNotFound},
		{ErrAssessmentNotFound, http.StatusNotFound},
		{ErrMessageNotFound, http.StatusNotFound},
		{ErrConvNotFound, http.StatusNotFound},
		{ErrUserNotFound, http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnknownTestType, http.StatusBadRequest},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, recordDomainError(tt.err), "err=%v", tt.err)
	}
}
