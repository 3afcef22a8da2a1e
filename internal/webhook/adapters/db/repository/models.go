package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
)

type webhookRecord struct {
	ID         string                   `gorm:"primaryKey;type:varchar(36)"`
	URL        string                   `gorm:"type:text;not null"`
	Enabled    bool                     `gorm:"not null"`
	CreatedAt  time.Time                `gorm:"index"`
	UpdatedAt  time.Time
	Events     []webhookEventRecord     `gorm:"foreignKey:WebhookID;constraint:OnDelete:CASCADE"`
	EntityKeys []webhookEntityKeyRecord `gorm:"foreignKey:WebhookID;constraint:OnDelete:CASCADE"`
}

func (webhookRecord) TableName() string { return "webhooks" }

type webhookEventRecord struct {
	WebhookID string `gorm:"primaryKey;type:varchar(36)"`
	Event     string `gorm:"primaryKey;type:varchar(64)"`
}

func (webhookEventRecord) TableName() string { return "webhook_events" }

type webhookEntityKeyRecord struct {
	WebhookID string `gorm:"primaryKey;type:varchar(36)"`
	EntityKey string `gorm:"primaryKey;type:varchar(36)"`
}

func (webhookEntityKeyRecord) TableName() string { return "webhook_entity_keys" }

// Models lists every table the webhook store needs, for migrations.
func Models() []interface{} {
	return []interface{}{&webhookRecord{}, &webhookEventRecord{}, &webhookEntityKeyRecord{}}
}

func toRecord(wh *webhook.Webhook) *webhookRecord {
	id := wh.Key.String()
	return &webhookRecord{
		ID:         id,
		URL:        wh.URL,
		Enabled:    wh.Enabled,
		CreatedAt:  wh.CreatedAt,
		UpdatedAt:  wh.UpdatedAt,
		Events:     eventRecords(id, wh.Events),
		EntityKeys: entityKeyRecords(id, wh.EntityKeys),
	}
}

func eventRecords(id string, events []webhook.Event) []webhookEventRecord {
	out := make([]webhookEventRecord, 0, len(events))
	for _, e := range webhook.NormalizeEvents(events) {
		out = append(out, webhookEventRecord{WebhookID: id, Event: string(e)})
	}
	return out
}

func entityKeyRecords(id string, keys []uuid.UUID) []webhookEntityKeyRecord {
	out := make([]webhookEntityKeyRecord, 0, len(keys))
	for _, k := range webhook.NormalizeEntityKeys(keys) {
		out = append(out, webhookEntityKeyRecord{WebhookID: id, EntityKey: k.String()})
	}
	return out
}

func (r *webhookRecord) toDomain() (*webhook.Webhook, error) {
	key, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("webhook %q has a malformed key: %w", r.ID, err)
	}

	events := make([]webhook.Event, 0, len(r.Events))
	for _, e := range r.Events {
		events = append(events, webhook.Event(e.Event))
	}

	entityKeys := make([]uuid.UUID, 0, len(r.EntityKeys))
	for _, k := range r.EntityKeys {
		parsed, err := uuid.Parse(k.EntityKey)
		if err != nil {
			return nil, fmt.Errorf("webhook %s has a malformed entity key %q: %w", r.ID, k.EntityKey, err)
		}
		entityKeys = append(entityKeys, parsed)
	}

	return &webhook.Webhook{
		Key:        key,
		URL:        r.URL,
		Enabled:    r.Enabled,
		Events:     webhook.NormalizeEvents(events),
		EntityKeys: webhook.NormalizeEntityKeys(entityKeys),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}, nil
}
