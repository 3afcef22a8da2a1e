package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
)

// WebhookRepository persists webhooks. Implementations run on the scope carried
// by ctx when one is open.
type WebhookRepository interface {
	// Save inserts wh, assigning a key when it is zero.
	Save(ctx context.Context, wh *webhook.Webhook) error
	// Get returns found == false, and no error, for an unknown key.
	Get(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error)
	// GetMany returns the existing subset of keys; unknown keys are omitted.
	GetMany(ctx context.Context, keys []uuid.UUID) ([]*webhook.Webhook, error)
	GetAll(ctx context.Context) ([]*webhook.Webhook, error)
	// Update persists the changed fields of wh, or every field when changed is
	// empty. An unknown key yields webhook.ErrWebhookNotFound.
	Update(ctx context.Context, wh *webhook.Webhook, changed webhook.Fields) error
	// Delete removes the webhook with key and returns the removed row. An
	// unknown key is a no-op reporting found == false.
	Delete(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error)
}
