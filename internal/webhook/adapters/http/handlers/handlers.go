package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/webhook/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
)

type WebhookHandlers struct {
	service ports.WebhookService
	logger  logger.Logger
}

func NewWebhookHandlers(svc ports.WebhookService, logger logger.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		service: svc,
		logger:  logger,
	}
}

type CreateWebhookRequest struct {
	URL        string      `json:"url" binding:"required"`
	Events     []string    `json:"events"`
	EntityKeys []uuid.UUID `json:"entityKeys"`
	Enabled    bool        `json:"enabled"`
}

type UpdateWebhookRequest struct {
	URL        *string      `json:"url"`
	Events     *[]string    `json:"events"`
	EntityKeys *[]uuid.UUID `json:"entityKeys"`
	Enabled    *bool        `json:"enabled"`
}

// RegisterRoutes mounts the management endpoints on rg.
func (h *WebhookHandlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.ListEvents)
	rg.GET("", h.ListWebhooks)
	rg.POST("", h.CreateWebhook)
	rg.GET("/:key", h.GetWebhook)
	rg.PUT("/:key", h.UpdateWebhook)
	rg.DELETE("/:key", h.DeleteWebhook)
	rg.POST("/:key/enable", h.EnableWebhook)
	rg.POST("/:key/disable", h.DisableWebhook)
}

func (h *WebhookHandlers) ListEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": webhook.Events()})
}

// ListWebhooks returns every webhook, or only the requested ones when key
// query parameters are given.
func (h *WebhookHandlers) ListWebhooks(c *gin.Context) {
	rawKeys, filtered := c.GetQueryArray("key")

	var (
		webhooks []*webhook.Webhook
		err      error
	)
	if filtered {
		keys := make([]uuid.UUID, 0, len(rawKeys))
		for _, raw := range rawKeys {
			key, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook key", "key": raw})
				return
			}
			keys = append(keys, key)
		}
		webhooks, err = h.service.GetMultiple(c.Request.Context(), keys)
	} else {
		webhooks, err = h.service.GetAll(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("Failed to list webhooks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list webhooks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": webhooks, "total": len(webhooks)})
}

func (h *WebhookHandlers) GetWebhook(c *gin.Context) {
	key, ok := parseKey(c)
	if !ok {
		return
	}

	wh, found, err := h.service.Get(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("Failed to get webhook", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get webhook"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": webhook.ErrWebhookNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, wh)
}

func (h *WebhookHandlers) CreateWebhook(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := webhook.ParseEvents(req.Events)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wh, err := webhook.New(req.URL,
		webhook.WithEvents(events...),
		webhook.WithEntityKeys(req.EntityKeys...),
		webhook.WithEnabled(req.Enabled),
	)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.Create(c.Request.Context(), wh)
	if err != nil {
		h.writeError(c, "create", err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *WebhookHandlers) UpdateWebhook(c *gin.Context) {
	key, ok := parseKey(c)
	if !ok {
		return
	}

	var req UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := webhook.Patch{
		URL:        req.URL,
		EntityKeys: req.EntityKeys,
		Enabled:    req.Enabled,
	}
	if req.Events != nil {
		events, err := webhook.ParseEvents(*req.Events)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		patch.Events = &events
	}

	h.patch(c, key, patch)
}

func (h *WebhookHandlers) EnableWebhook(c *gin.Context) {
	h.toggle(c, true)
}

func (h *WebhookHandlers) DisableWebhook(c *gin.Context) {
	h.toggle(c, false)
}

func (h *WebhookHandlers) toggle(c *gin.Context, enabled bool) {
	key, ok := parseKey(c)
	if !ok {
		return
	}
	h.patch(c, key, webhook.Patch{Enabled: &enabled})
}

func (h *WebhookHandlers) patch(c *gin.Context, key uuid.UUID, patch webhook.Patch) {
	ctx := c.Request.Context()

	current, found, err := h.service.Get(ctx, key)
	if err != nil {
		h.writeError(c, "update", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": webhook.ErrWebhookNotFound.Error()})
		return
	}

	next, changed, err := current.Apply(patch)
	if err != nil {
		h.writeError(c, "update", err)
		return
	}

	if !changed.IsEmpty() {
		if err := h.service.Update(ctx, &next, changed); err != nil {
			h.writeError(c, "update", err)
			return
		}
	}

	c.JSON(http.StatusOK, next)
}

func (h *WebhookHandlers) DeleteWebhook(c *gin.Context) {
	key, ok := parseKey(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), key); err != nil {
		h.writeError(c, "delete", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *WebhookHandlers) writeError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, webhook.ErrWebhookNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, webhook.ErrURLRequired), errors.Is(err, webhook.ErrUnknownEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Webhook request failed", "operation", operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + operation + " webhook"})
	}
}

func parseKey(c *gin.Context) (uuid.UUID, bool) {
	key, err := uuid.Parse(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook key"})
		return uuid.Nil, false
	}
	return key, true
}
