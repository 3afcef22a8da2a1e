package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/webhook/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/events"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/metrics"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrNilWebhook = errors.New("webhook is nil")

// WebhookService runs every webhook operation in its own scope: one repository
// call, then commit. Domain events go out only once the scope has committed.
type WebhookService struct {
	repo      ports.WebhookRepository
	scopes    database.ScopeProvider
	eventBus  events.EventBus
	telemetry *telemetry.Telemetry
	logger    logger.Logger
}

var _ ports.WebhookService = (*WebhookService)(nil)

func NewWebhookService(
	repo ports.WebhookRepository,
	scopes database.ScopeProvider,
	eventBus events.EventBus,
	tel *telemetry.Telemetry,
	logger logger.Logger,
) *WebhookService {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	return &WebhookService{
		repo:      repo,
		scopes:    scopes,
		eventBus:  eventBus,
		telemetry: tel,
		logger:    logger,
	}
}

// Create persists wh and returns it with its key populated.
func (s *WebhookService) Create(ctx context.Context, wh *webhook.Webhook) (*webhook.Webhook, error) {
	if wh == nil {
		return nil, ErrNilWebhook
	}
	if err := wh.Validate(); err != nil {
		return nil, err
	}

	err := s.run(ctx, "create", func(ctx context.Context) error {
		if err := s.repo.Save(ctx, wh); err != nil {
			return err
		}
		s.publishAfterCommit(ctx, events.WebhookCreated, wh)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Webhook created", "key", wh.Key, "url", wh.URL)
	return wh, nil
}

// Get returns found == false when no webhook has key.
func (s *WebhookService) Get(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error) {
	var (
		wh    *webhook.Webhook
		found bool
	)
	err := s.run(ctx, "get", func(ctx context.Context) error {
		var err error
		wh, found, err = s.repo.Get(ctx, key)
		return err
	}, telemetry.WebhookKeyAttribute(key.String()))
	if err != nil {
		return nil, false, err
	}
	return wh, found, nil
}

// GetMultiple returns the webhooks that exist among keys. Unknown keys are
// omitted and an empty key set yields an empty result.
func (s *WebhookService) GetMultiple(ctx context.Context, keys []uuid.UUID) ([]*webhook.Webhook, error) {
	if len(keys) == 0 {
		return []*webhook.Webhook{}, nil
	}

	var out []*webhook.Webhook
	err := s.run(ctx, "get_multiple", func(ctx context.Context) error {
		var err error
		out, err = s.repo.GetMany(ctx, keys)
		return err
	}, telemetry.WebhookCountAttribute(len(keys)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *WebhookService) GetAll(ctx context.Context) ([]*webhook.Webhook, error) {
	var out []*webhook.Webhook
	err := s.run(ctx, "get_all", func(ctx context.Context) error {
		var err error
		out, err = s.repo.GetAll(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update persists the changed fields of an existing webhook. An unknown key
// yields webhook.ErrWebhookNotFound.
func (s *WebhookService) Update(ctx context.Context, wh *webhook.Webhook, changed webhook.Fields) error {
	if wh == nil {
		return ErrNilWebhook
	}

	err := s.run(ctx, "update", func(ctx context.Context) error {
		if err := s.repo.Update(ctx, wh, changed); err != nil {
			return err
		}
		s.publishAfterCommit(ctx, events.WebhookUpdated, wh, "changed", changed.String())
		return nil
	}, telemetry.WebhookKeyAttribute(wh.Key.String()))
	if err != nil {
		return err
	}

	s.logger.Info("Webhook updated", "key", wh.Key, "changed", changed.String())
	return nil
}

// Delete removes the webhook with key; an unknown key is a silent no-op.
func (s *WebhookService) Delete(ctx context.Context, key uuid.UUID) error {
	deleted := false
	err := s.run(ctx, "delete", func(ctx context.Context) error {
		wh, found, err := s.repo.Delete(ctx, key)
		if err != nil || !found {
			return err
		}
		deleted = true
		s.publishAfterCommit(ctx, events.WebhookDeleted, wh)
		return nil
	}, telemetry.WebhookKeyAttribute(key.String()))
	if err != nil {
		return err
	}

	if deleted {
		s.logger.Info("Webhook deleted", "key", key)
	}
	return nil
}

func (s *WebhookService) run(ctx context.Context, operation string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.telemetry.StartSpan(ctx, "webhook."+operation, trace.WithAttributes(attrs...))
	start := time.Now()

	err := s.scopes.InScope(ctx, fn)

	metrics.RecordWebhookOperation(operation, err, time.Since(start).Seconds())
	telemetry.End(span, err)
	if err != nil && !errors.Is(err, webhook.ErrWebhookNotFound) {
		s.logger.Error("Webhook operation failed", "operation", operation, "error", err)
	}
	return err
}

func (s *WebhookService) publishAfterCommit(ctx context.Context, eventType string, wh *webhook.Webhook, extra ...string) {
	builder := events.NewEventBuilder(eventType).
		WithAggregateID(wh.Key.String()).
		WithAggregateType("webhook").
		WithTraceID(telemetry.TraceID(ctx)).
		WithPayload("url", wh.URL).
		WithPayload("enabled", wh.Enabled).
		WithPayload("events", wh.Events)
	for i := 0; i+1 < len(extra); i += 2 {
		builder.WithPayload(extra[i], extra[i+1])
	}
	event := builder.Build()

	database.AfterCommit(ctx, func(ctx context.Context) {
		if s.eventBus == nil {
			return
		}
		if err := s.eventBus.Publish(ctx, event); err != nil {
			s.logger.Error("Failed to publish webhook event", "type", eventType, "key", wh.Key, "error", err)
		}
	})
}
