package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mindwell_backend/internal/model"
	"mindwell_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func runRoleCheck(role model.UserRole, required ...model.UserRole) (int, bool) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("user", &util.Claims{UserID: 1, Role: role})

	RoleMiddleware(required...)(c)
	return w.Code, c.IsAborted()
}

func TestRoleMiddleware(t *testing.T) {
	_, aborted := runRoleCheck(model.RoleAdmin, model.RoleAdmin)
	assert.False(t, aborted)

	_, aborted = runRoleCheck(model.RoleCounselor, model.RoleCounselor)
	assert.False(t, aborted)

	// 管理员越过所有角色限制
	_, aborted = runRoleCheck(model.RoleAdmin, model.RoleCounselor)
	assert.False(t, aborted)

	code, aborted := runRoleCheck(model.RoleUser, model.RoleAdmin)
	assert.True(t, aborted)
	assert.Equal(t, http.StatusForbidden, code)

	code, aborted = runRoleCheck(model.RoleUser, model.RoleCounselor)
	assert.True(t, aborted)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRoleMiddleware_MissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RoleMiddleware(model.RoleAdmin)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
