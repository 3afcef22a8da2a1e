package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
)

func newTestEnforcer(t *testing.T) *Enforcer {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	e, err := NewEnforcer(&database.DB{DB: gormDB}, logger.NewNop())
	require.NoError(t, err)
	return e
}

type fixture struct {
	tokens *TokenManager
	jwt    *JWTMiddleware
	router *gin.Engine
	mr     *miniredis.Miniredis
}

func setup(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens := newTestTokens(t)
	enforcer := newTestEnforcer(t)
	require.NoError(t, enforcer.AddRole("u-admin", RoleAdmin))

	mw := NewJWTMiddleware(tokens, client, "umbraco")
	rbac := NewCasbinMiddleware(enforcer)

	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	router := gin.New()
	api := router.Group("/api", mw.Handle())
	api.POST("/logout", mw.Logout)
	api.GET("/webhooks", rbac.Authorize(ResourceWebhooks), ok)
	api.DELETE("/webhooks", rbac.Authorize(ResourceWebhooks), ok)
	api.GET("/checks", rbac.Authorize(ResourceHealthChecks), ok)
	api.POST("/checks/run", rbac.RequirePermission(ResourceHealthChecks, ActionCreate), ok)

	return &fixture{tokens: tokens, jwt: mw, router: router, mr: mr}
}

func (f *fixture) do(method, path, header string) int {
	req := httptest.NewRequest(method, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w.Code
}

func (f *fixture) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	token, err := f.tokens.GenerateToken(userID, roles)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestJWTMiddleware_Authentication(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/webhooks", ""))
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/webhooks", "Basic dXNlcjpwYXNz"))
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/webhooks", "Bearer garbage"))
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/webhooks", f.token(t, "u-admin")))
}

func TestCasbinMiddleware_Permissions(t *testing.T) {
	f := setup(t)

	admin := f.token(t, "u-admin")
	editor := f.token(t, "u-2", RoleEditor)
	writer := f.token(t, "u-3", RoleWriter)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"admin deletes webhooks", http.MethodDelete, "/api/webhooks", admin, http.StatusOK},
		{"admin runs checks", http.MethodPost, "/api/checks/run", admin, http.StatusOK},
		{"editor reads checks", http.MethodGet, "/api/checks", editor, http.StatusOK},
		{"editor cannot run checks", http.MethodPost, "/api/checks/run", editor, http.StatusForbidden},
		{"editor cannot read webhooks", http.MethodGet, "/api/webhooks", editor, http.StatusForbidden},
		{"writer has no settings access", http.MethodGet, "/api/checks", writer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(tt.method, tt.path, tt.header))
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := setup(t)
	token := f.token(t, "u-admin")

	require.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/logout", token))
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/webhooks", token))

	keys := f.mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "umbraco:blacklist:")
	assert.InDelta(t, time.Hour.Seconds(), f.mr.TTL(keys[0]).Seconds(), 5)

	// other tokens of the same user are unaffected
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/webhooks", f.token(t, "u-admin")))
}

func TestEnforcer_SeedsOnce(t *testing.T) {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	db := &database.DB{DB: gormDB}

	e, err := NewEnforcer(db, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, e.AddPermission(RoleWriter, ResourceHealthChecks, ActionRead))

	// a second enforcer on the same table keeps the stored policy as is
	again, err := NewEnforcer(db, logger.NewNop())
	require.NoError(t, err)
	allowed, err := again.CheckPermission(RoleWriter, ResourceHealthChecks, ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)

	var count int64
	require.NoError(t, gormDB.Table("casbin_rule").Where("ptype = ?", "p").Count(&count).Error)
	assert.Equal(t, int64(len(DefaultPolicies)+1), count)
}

func TestEnforcer_Roles(t *testing.T) {
	e := newTestEnforcer(t)

	require.NoError(t, e.AddRole("u-1", RoleAdmin))
	require.NoError(t, e.AddRole("u-1", RoleAdmin))
	roles, err := e.GetRoles("u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{RoleAdmin}, roles)

	allowed, err := e.CheckPermission("u-1", ResourceWebhooks, ActionDelete)
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, e.RemoveRole("u-1", RoleAdmin))
	allowed, err = e.CheckPermission("u-1", ResourceWebhooks, ActionDelete)
	require.NoError(t, err)
	assert.False(t, allowed)
}
