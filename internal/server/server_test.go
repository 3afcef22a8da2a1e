package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/healthcheck"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/config"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/middleware/auth"
)

func testConfig(siteURL string) *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 8080, ReadTimeout: 5, WriteTimeout: 5},
		Database:  config.DatabaseConfig{Driver: "sqlite"},
		Cache:     config.CacheConfig{Prefix: "umbraco", TTL: 60},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100, LoginAttempts: 5, LoginWindow: 60},
		Login: config.LoginConfig{
			AllowPasswordReset: true,
			UsernameIsEmail:    true,
			MFAEnabled:         true,
			SessionTTL:         600,
			CookieName:         "umb_login_session",
		},
		Identity:     config.IdentityConfig{BaseURL: "http://127.0.0.1:0", Timeout: 1},
		HealthChecks: config.HealthCheckConfig{SiteURL: siteURL, Schedule: "0 */5 * * * *", Timeout: 2},
	}
}

func newTestServer(t *testing.T, withRedis bool, opts ...func(*config.Config)) (*Server, *httptest.Server) {
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	db := &database.DB{DB: gormDB}

	deps := Deps{DB: db}
	if withRedis {
		mr := miniredis.RunT(t)
		deps.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}

	// the health checks probe the server itself
	var handler atomic.Pointer[http.Handler]
	notFound := http.NotFoundHandler()
	handler.Store(&notFound)
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		(*handler.Load()).ServeHTTP(w, r)
	}))
	t.Cleanup(site.Close)

	cfg := testConfig(site.URL + "/health")
	for _, opt := range opts {
		opt(cfg)
	}

	srv, err := NewWithDeps(cfg, deps, logger.NewNop())
	require.NoError(t, err)
	h := srv.Handler()
	handler.Store(&h)
	t.Cleanup(func() { _ = db.Close() })

	return srv, site
}

func request(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return requestAs(t, srv, "", method, path, body)
}

func requestAs(t *testing.T, srv *Server, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	for _, withRedis := range []bool{false, true} {
		srv, _ := newTestServer(t, withRedis)

		w := request(t, srv, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

		w = request(t, srv, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)
	request(t, srv, http.MethodGet, "/health", nil)

	w := request(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestWebhookRoutes(t *testing.T) {
	srv, _ := newTestServer(t, true)

	w := request(t, srv, http.MethodPost, "/umbraco/management/api/v1/webhooks", map[string]interface{}{
		"url":     "https://example.com/hook",
		"events":  []string{"ContentPublish"},
		"enabled": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = request(t, srv, http.MethodGet, "/umbraco/management/api/v1/webhooks/"+created.Key, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, srv, http.MethodDelete, "/umbraco/management/api/v1/webhooks/"+created.Key, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = request(t, srv, http.MethodGet, "/umbraco/management/api/v1/webhooks/"+created.Key, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginRoutes(t *testing.T) {
	srv, _ := newTestServer(t, false)

	w := request(t, srv, http.MethodGet, "/umbraco/login/view/login/invite", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view struct {
		Path string `json:"path"`
		View struct {
			Name string `json:"name"`
		} `json:"view"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	// invites are not allowed by the test configuration
	assert.Equal(t, "login", view.Path)
	assert.Equal(t, "default-login", view.View.Name)
}

func TestHealthCheckRoutes(t *testing.T) {
	srv, _ := newTestServer(t, false)

	w := request(t, srv, http.MethodPost, "/umbraco/management/api/v1/health-checks/run", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var run struct {
		Results []healthcheck.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	require.Len(t, run.Results, 1)
	assert.Equal(t, healthcheck.NoSniffCheckID, run.Results[0].CheckID)
	assert.Equal(t, healthcheck.StatusSuccess, run.Results[0].Status)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/umbraco/login/config", nil)
	req.Header.Set("Origin", "https://backoffice.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://backoffice.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func withAuth(cfg *config.Config) {
	cfg.Auth = config.AuthConfig{
		Enabled:     true,
		JWTSecret:   "test-secret",
		Issuer:      "umbraco-cms",
		TokenExpiry: 3600,
		AdminUsers:  []string{"u-admin"},
	}
}

func TestManagementAPIRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, true, withAuth)

	w := request(t, srv, http.MethodGet, "/umbraco/management/api/v1/health-checks", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = requestAs(t, srv, "not-a-jwt", http.MethodGet, "/umbraco/management/api/v1/health-checks", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// login routes stay public
	w = request(t, srv, http.MethodGet, "/umbraco/login/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestManagementAPIPermissions(t *testing.T) {
	srv, _ := newTestServer(t, true, withAuth)

	admin, err := srv.security.issue(context.Background(), "u-admin")
	require.NoError(t, err)
	editor, err := srv.security.tokens.GenerateToken("u-editor", []string{auth.RoleEditor})
	require.NoError(t, err)

	w := requestAs(t, srv, admin, http.MethodPost, "/umbraco/management/api/v1/webhooks", map[string]interface{}{
		"url":    "https://example.com/hook",
		"events": []string{"ContentPublish"},
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = requestAs(t, srv, editor, http.MethodGet, "/umbraco/management/api/v1/health-checks", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = requestAs(t, srv, editor, http.MethodPost, "/umbraco/management/api/v1/health-checks/run", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = requestAs(t, srv, editor, http.MethodPost, "/umbraco/management/api/v1/webhooks", map[string]interface{}{
		"url":    "https://example.com/hook",
		"events": []string{"ContentPublish"},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	srv, _ := newTestServer(t, true, withAuth)

	token, err := srv.security.issue(context.Background(), "u-admin")
	require.NoError(t, err)

	w := requestAs(t, srv, token, http.MethodGet, "/umbraco/management/api/v1/webhooks", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = requestAs(t, srv, token, http.MethodPost, "/umbraco/management/api/v1/security/back-office/logout", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = requestAs(t, srv, token, http.MethodGet, "/umbraco/management/api/v1/webhooks", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSchedulerRunsWithoutHealthChecks(t *testing.T) {
	srv, _ := newTestServer(t, false)
	require.False(t, srv.config.HealthChecks.Enabled)
	// only the session sweep is scheduled
	assert.Equal(t, 1, srv.scheduler.Len())

	var ran atomic.Int32
	require.NoError(t, srv.scheduler.AddJob("* * * * * *", func() { ran.Add(1) }))

	srv.httpServer.Addr = "127.0.0.1:0"
	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	assert.Eventually(t, func() bool { return ran.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-done)
}

func TestSchedulerWithHealthChecks(t *testing.T) {
	srv, _ := newTestServer(t, false, func(cfg *config.Config) { cfg.HealthChecks.Enabled = true })
	assert.Equal(t, 2, srv.scheduler.Len())
}
