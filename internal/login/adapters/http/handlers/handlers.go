package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/controller"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/flow"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/service"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

const sessionKey = "loginSession"

type CookieConfig struct {
	Name   string
	Path   string
	TTL    time.Duration
	Secure bool
}

// TokenIssuer mints a back office token for a user who just signed in.
type TokenIssuer func(ctx context.Context, userID string) (string, error)

type LoginHandlers struct {
	sessions *service.SessionManager
	cookie   CookieConfig
	issuer   TokenIssuer
	logger   logger.Logger
	now      func() time.Time
}

func NewLoginHandlers(sessions *service.SessionManager, cookie CookieConfig, logger logger.Logger) *LoginHandlers {
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &LoginHandlers{
		sessions: sessions,
		cookie:   cookie,
		logger:   logger,
		now:      time.Now,
	}
}

// WithTokenIssuer makes successful logins answer with a signed token.
func (h *LoginHandlers) WithTokenIssuer(issuer TokenIssuer) *LoginHandlers {
	h.issuer = issuer
	return h
}

type OverrideFlowRequest struct {
	Flow string `json:"flow"`
}

type ReturnPathRequest struct {
	ReturnPath string `json:"returnPath"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Persist  bool   `json:"persist"`
}

type ResetPasswordRequest struct {
	Username string `json:"username"`
}

type NewPasswordRequest struct {
	UserID    string `json:"userId"`
	ResetCode string `json:"resetCode"`
	Password  string `json:"password"`
}

type Layout struct {
	Greeting        string `json:"greeting"`
	BackgroundImage string `json:"backgroundImage,omitempty"`
	LogoImage       string `json:"logoImage,omitempty"`
}

type SubmitResponse struct {
	controller.Result
	Token string `json:"token,omitempty"`
}

type ViewResponse struct {
	flow.Navigation
	Layout     Layout `json:"layout"`
	ReturnPath string `json:"returnPath,omitempty"`
}

// RegisterRoutes mounts the login endpoints on rg. submitLimit guards the
// form submissions, e.g. with a per-IP rate limiter.
func (h *LoginHandlers) RegisterRoutes(rg *gin.RouterGroup, submitLimit ...gin.HandlerFunc) {
	rg.Use(h.session())

	rg.GET("/config", h.GetConfig)
	rg.GET("/view/*path", h.GetView)
	rg.POST("/flow", h.OverrideFlow)
	rg.PUT("/return-path", h.SetReturnPath)
	rg.DELETE("/session", h.EndSession)

	api := rg.Group("/api", submitLimit...)
	api.POST("/login", h.Login)
	api.POST("/reset-password", h.ResetPassword)
	api.POST("/new-password", h.NewPassword)
}

// session attaches the caller's login session, issuing a cookie on first
// contact, and persists the controller state once the handler is done.
func (h *LoginHandlers) session() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(h.cookie.Name)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.New().String()
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookie.Name, id, int(h.cookie.TTL.Seconds()), h.cookie.Path, "", h.cookie.Secure, true)

		s, err := h.sessions.Get(c.Request.Context(), id)
		if err != nil {
			h.logger.Error("Failed to load login session", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load login session"})
			return
		}
		c.Set(sessionKey, s)

		c.Next()

		if err := h.sessions.Save(c.Request.Context(), s); err != nil {
			h.logger.Error("Failed to save login session", "session", id, "error", err)
		}
	}
}

func current(c *gin.Context) *service.Session {
	return c.MustGet(sessionKey).(*service.Session)
}

func (h *LoginHandlers) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": h.sessions.Config(),
		"layout": h.layout(),
	})
}

// GetView navigates the session to path and returns the resolved view.
func (h *LoginHandlers) GetView(c *gin.Context) {
	s := current(c)
	nav, err := s.Controller.Navigate(c.Param("path"), c.Request.URL.Query())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.viewResponse(c, s, nav))
}

func (h *LoginHandlers) OverrideFlow(c *gin.Context) {
	var req OverrideFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := current(c)
	nav, err := s.Controller.OverrideFlow(req.Flow)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.viewResponse(c, s, nav))
}

func (h *LoginHandlers) SetReturnPath(c *gin.Context) {
	var req ReturnPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := current(c)
	if err := s.Controller.SetReturnPath(req.ReturnPath); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"returnPath": s.Controller.ReturnPath()})
}

func (h *LoginHandlers) EndSession(c *gin.Context) {
	s := current(c)
	if err := h.sessions.End(c.Request.Context(), s.ID); err != nil {
		h.logger.Error("Failed to end login session", "session", s.ID, "error", err)
	}
	c.Status(http.StatusNoContent)
}

func (h *LoginHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, controller.KindLogin, controller.Values{
		Username: req.Username,
		Password: req.Password,
		Persist:  req.Persist,
	})
}

func (h *LoginHandlers) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, controller.KindResetPassword, controller.Values{Username: req.Username})
}

func (h *LoginHandlers) NewPassword(c *gin.Context) {
	var req NewPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, controller.KindNewPassword, controller.Values{
		UserID:    req.UserID,
		ResetCode: req.ResetCode,
		Password:  req.Password,
	})
}

// submit runs a form. Outcomes, failed ones included, are answered with 200;
// only a submission racing one still in flight gets 409.
func (h *LoginHandlers) submit(c *gin.Context, kind controller.Kind, values controller.Values) {
	s := current(c)
	result, err := s.Form(kind).Submit(c.Request.Context(), values)
	if errors.Is(err, controller.ErrSubmissionInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "result": result})
		return
	}

	resp := SubmitResponse{Result: result}
	if kind == controller.KindLogin && result.State == controller.StateSuccess {
		if h.issuer != nil {
			token, err := h.issuer(c.Request.Context(), result.UserID)
			if err != nil {
				h.logger.Error("Failed to issue back office token", "user", result.UserID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
				return
			}
			resp.Token = token
		}
		if err := h.sessions.End(c.Request.Context(), s.ID); err != nil {
			h.logger.Warn("Failed to end login session", "session", s.ID, "error", err)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LoginHandlers) viewResponse(c *gin.Context, s *service.Session, nav flow.Navigation) ViewResponse {
	trace.SpanFromContext(c.Request.Context()).SetAttributes(telemetry.LoginViewAttribute(string(nav.View.Name)))
	return ViewResponse{
		Navigation: nav,
		Layout:     h.layout(),
		ReturnPath: s.Controller.ReturnPath(),
	}
}

func (h *LoginHandlers) layout() Layout {
	cfg := h.sessions.Config()
	return Layout{
		Greeting:        flow.Greeting(h.now().Weekday()),
		BackgroundImage: cfg.BackgroundImage,
		LogoImage:       cfg.LogoImage,
	}
}

func (h *LoginHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, flow.ErrUnsafeReturnPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, controller.ErrClosed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, flow.ErrNoRoute):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Login navigation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
