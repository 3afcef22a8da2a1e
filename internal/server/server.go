package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/healthcheck"
	loginhandlers "github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/adapters/http/handlers"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/adapters/identity"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/adapters/session"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/controller"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/flow"
	loginservice "github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/service"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/webhook/adapters/db/repository"
	webhookhandlers "github.com/ravindersinghsandhu/Umbraco-CMS/internal/webhook/adapters/http/handlers"
	webhookservice "github.com/ravindersinghsandhu/Umbraco-CMS/internal/webhook/app/service"
	webhookports "github.com/ravindersinghsandhu/Umbraco-CMS/internal/webhook/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/cache"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/config"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/events"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/middleware/auth"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/ratelimit"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/telemetry"
	"github.com/redis/go-redis/v9"
)

const (
	serviceName       = "umbraco-cms"
	managementAPIBase = "/umbraco/management/api/v1"
	loginBase         = "/umbraco/login"
	sessionSweepSpec  = "0 * * * * *"
)

// Deps are the infrastructure handles the server runs on. Redis may be nil,
// in which case caches, sessions and login rate limits stay in process.
type Deps struct {
	DB        *database.DB
	Redis     redis.UniversalClient
	EventBus  events.EventBus
	Telemetry *telemetry.Telemetry
	// Identity overrides the HTTP identity provider client.
	Identity ports.IdentityProvider
}

type Server struct {
	config     *config.Config
	logger     logger.Logger
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
	scheduler  *healthcheck.Scheduler
	registry   *healthcheck.Registry
	sessions   *loginservice.SessionManager
	security   *security
}

// security is the management API guard, nil when auth is disabled.
type security struct {
	tokens   *auth.TokenManager
	enforcer *auth.Enforcer
	jwt      *auth.JWTMiddleware
	rbac     *auth.CasbinMiddleware
}

// New connects to every backing service named in cfg and builds the server.
func New(cfg *config.Config, log logger.Logger) (*Server, error) {
	db, err := database.New(cfg.Database.ToDatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := database.NewMonitor(db, log.Named("database"), cfg.Database.SlowQuery()); err != nil {
		return nil, fmt.Errorf("failed to register database monitor: %w", err)
	}

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		redisClient = client
	}

	var eventBus events.EventBus
	if cfg.Kafka.Enabled {
		eventBus, err = events.NewKafkaEventBus(cfg.Kafka.ToKafkaConfig(), log.Named("events"))
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
	} else {
		eventBus = events.NewMemoryEventBus()
	}

	tel, err := telemetry.New(cfg.Telemetry.ToTelemetryConfig(""))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return NewWithDeps(cfg, Deps{
		DB:        db,
		Redis:     redisClient,
		EventBus:  eventBus,
		Telemetry: tel,
	}, log)
}

// NewWithDeps wires services and routes on top of already opened infrastructure.
func NewWithDeps(cfg *config.Config, deps Deps, log logger.Logger) (*Server, error) {
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.NewNop()
	}
	if deps.EventBus == nil {
		deps.EventBus = events.NewMemoryEventBus()
	}

	webhookRepo := repository.NewWebhookRepository(deps.DB)
	if err := webhookRepo.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate webhook tables: %w", err)
	}
	webhookService := webhookservice.NewWebhookService(
		cachedWebhooks(cfg, deps, webhookRepo, log),
		deps.DB,
		deps.EventBus,
		deps.Telemetry,
		log.Named("webhooks"),
	)

	sessions := newSessionManager(cfg, deps, log.Named("login"))

	registry := healthcheck.NewRegistry(cfg.HealthChecks.RequestTimeout(), deps.EventBus, deps.Telemetry, log.Named("healthchecks"))
	registry.Register(healthcheck.NewNoSniffCheck(cfg.HealthChecks.SiteURL, &http.Client{Timeout: cfg.HealthChecks.RequestTimeout()}))

	// the session sweep always runs, the health checks only when enabled
	checkSpec := ""
	if cfg.HealthChecks.Enabled {
		checkSpec = cfg.HealthChecks.Schedule
	}
	scheduler, err := healthcheck.NewScheduler(registry, checkSpec, log.Named("scheduler"))
	if err != nil {
		return nil, err
	}
	if err := scheduler.AddJob(sessionSweepSpec, func() { sessions.Sweep() }); err != nil {
		return nil, err
	}

	sec, err := newSecurity(cfg, deps, log.Named("auth"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		logger:    log,
		deps:      deps,
		scheduler: scheduler,
		registry:  registry,
		sessions:  sessions,
		security:  sec,
	}

	login := loginhandlers.NewLoginHandlers(sessions, loginhandlers.CookieConfig{
		Name: cfg.Login.CookieName,
		Path: loginBase,
		TTL:  cfg.Login.SessionDuration(),
	}, log.Named("login"))
	if sec != nil {
		login.WithTokenIssuer(sec.issue)
	}

	s.router = s.setupRouter(
		webhookhandlers.NewWebhookHandlers(webhookService, log.Named("webhooks")),
		login,
		healthcheck.NewHandlers(registry),
	)

	read, write, _ := cfg.Server.Timeouts()
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  read,
		WriteTimeout: write,
	}
	return s, nil
}

func cachedWebhooks(cfg *config.Config, deps Deps, repo *repository.WebhookRepository, log logger.Logger) webhookports.WebhookRepository {
	if deps.Redis == nil {
		return repo
	}
	c := cache.NewRedisCache(deps.Redis, cfg.Cache.ToCacheOptions("webhooks"))
	return repository.NewCachedWebhookRepository(repo, c, log.Named("webhook-cache"))
}

func newSessionManager(cfg *config.Config, deps Deps, log logger.Logger) *loginservice.SessionManager {
	var c cache.Cache
	if deps.Redis != nil {
		c = cache.NewRedisCache(deps.Redis, cfg.Cache.ToCacheOptions("login"))
	} else {
		c = cache.NewMemoryCache(cfg.Cache.ToCacheOptions("login"))
	}

	idp := deps.Identity
	if idp == nil {
		idp = identity.NewClient(identity.Config{
			BaseURL: cfg.Identity.BaseURL,
			Timeout: cfg.Identity.RequestTimeout(),
		}, log.Named("identity"))
	}

	return loginservice.NewSessionManager(
		loginFlowConfig(cfg.Login),
		session.NewStore(c, cfg.Login.SessionDuration()),
		controller.FormDeps{
			Identity:  idp,
			EventBus:  deps.EventBus,
			Telemetry: deps.Telemetry,
			Logger:    log,
		},
		cfg.Login.SessionDuration(),
		log,
	)
}

func newSecurity(cfg *config.Config, deps Deps, log logger.Logger) (*security, error) {
	if !cfg.Auth.Enabled {
		return nil, nil
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenDuration())
	if err != nil {
		return nil, err
	}
	enforcer, err := auth.NewEnforcer(deps.DB, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rbac: %w", err)
	}
	for _, userID := range cfg.Auth.AdminUsers {
		if err := enforcer.AddRole(userID, auth.RoleAdmin); err != nil {
			return nil, err
		}
	}

	return &security{
		tokens:   tokens,
		enforcer: enforcer,
		jwt:      auth.NewJWTMiddleware(tokens, deps.Redis, cfg.Cache.Prefix),
		rbac:     auth.NewCasbinMiddleware(enforcer),
	}, nil
}

func (s *security) issue(_ context.Context, userID string) (string, error) {
	roles, err := s.enforcer.GetRoles(userID)
	if err != nil {
		return "", err
	}
	return s.tokens.GenerateToken(userID, roles)
}

// guard returns the middleware protecting resource, none when auth is off.
func (s *Server) guard(resource string) []gin.HandlerFunc {
	if s.security == nil {
		return nil
	}
	return []gin.HandlerFunc{s.security.rbac.Authorize(resource)}
}

func loginFlowConfig(c config.LoginConfig) flow.Config {
	return flow.Config{
		AllowPasswordReset: c.AllowPasswordReset,
		AllowUserInvite:    c.AllowUserInvite,
		UsernameIsEmail:    c.UsernameIsEmail,
		DisableLocalLogin:  c.DisableLocalLogin,
		MFAEnabled:         c.MFAEnabled,
		BackgroundImage:    c.BackgroundImage,
		LogoImage:          c.LogoImage,
	}
}

func (s *Server) setupRouter(webhooks *webhookhandlers.WebhookHandlers, login *loginhandlers.LoginHandlers, checks *healthcheck.Handlers) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(s.deps.Telemetry.HTTPMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(corsMiddleware(s.config.Server.AllowedOrigins))
	router.Use(loggingMiddleware(s.logger))
	router.Use(metricsMiddleware())

	router.GET("/health", s.Health)
	router.GET("/ready", s.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	management := router.Group(managementAPIBase,
		ratelimit.Middleware(
			ratelimit.NewKeyedLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, 10*time.Minute),
			ratelimit.APIKeyFunc,
		),
	)
	if s.security != nil {
		management.Use(s.security.jwt.Handle())
		management.POST("/security/back-office/logout", s.security.jwt.Logout)
	}
	webhooks.RegisterRoutes(management.Group("/webhooks", s.guard(auth.ResourceWebhooks)...))
	checks.RegisterRoutes(management.Group("/health-checks", s.guard(auth.ResourceHealthChecks)...))

	login.RegisterRoutes(router.Group(loginBase), ratelimit.Middleware(s.loginLimiter(), ratelimit.IPKeyFunc))

	return router
}

func (s *Server) loginLimiter() ratelimit.RateLimiter {
	rl := s.config.RateLimit
	if s.deps.Redis != nil {
		return ratelimit.NewRedisRateLimiter(s.deps.Redis, s.config.Cache.Prefix+":ratelimit:login", rl.LoginAttempts, rl.LoginWindowDuration())
	}
	window := rl.LoginWindowDuration()
	if window <= 0 {
		window = time.Minute
	}
	// in process fallback: LoginAttempts per window as a token bucket
	return ratelimit.NewKeyedLimiter(float64(rl.LoginAttempts)/window.Seconds(), rl.LoginAttempts, 2*window)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
}

// Ready reports whether the database and, if configured, redis answer.
func (s *Server) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true

	if err := s.deps.DB.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		ready = false
	} else {
		checks["database"] = "ok"
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

func (s *Server) Start() error {
	s.scheduler.Start()

	s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.scheduler.Stop(ctx)

	if err := s.deps.EventBus.Close(); err != nil {
		s.logger.Error("Failed to close event bus", "error", err)
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close Redis", "error", err)
		}
	}
	if err := s.deps.DB.Close(); err != nil {
		s.logger.Error("Failed to close database", "error", err)
	}
	if err := s.deps.Telemetry.Close(ctx); err != nil {
		s.logger.Error("Failed to flush traces", "error", err)
	}
	return nil
}
