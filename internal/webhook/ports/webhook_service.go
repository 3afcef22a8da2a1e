package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
)

// WebhookService is the CRUD facade used by the management API.
type WebhookService interface {
	Create(ctx context.Context, wh *webhook.Webhook) (*webhook.Webhook, error)
	Get(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error)
	GetMultiple(ctx context.Context, keys []uuid.UUID) ([]*webhook.Webhook, error)
	GetAll(ctx context.Context) ([]*webhook.Webhook, error)
	Update(ctx context.Context, wh *webhook.Webhook, changed webhook.Fields) error
	Delete(ctx context.Context, key uuid.UUID) error
}
