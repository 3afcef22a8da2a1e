package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/sets"
	"gorm.io/gorm"
)

type WebhookRepository struct {
	db *database.DB
}

func NewWebhookRepository(db *database.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Migrate() error {
	return r.db.Migrate(Models()...)
}

func (r *WebhookRepository) Save(ctx context.Context, wh *webhook.Webhook) error {
	if err := wh.Validate(); err != nil {
		return err
	}
	if wh.Key == uuid.Nil {
		wh.Key = uuid.New()
	}
	now := time.Now().UTC()
	if wh.CreatedAt.IsZero() {
		wh.CreatedAt = now
	}
	wh.UpdatedAt = now

	if err := r.db.Conn(ctx).Create(toRecord(wh)).Error; err != nil {
		return fmt.Errorf("failed to insert webhook %s: %w", wh.Key, err)
	}
	return nil
}

func (r *WebhookRepository) Get(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error) {
	var rec webhookRecord
	err := r.withChildren(r.db.Conn(ctx)).Where("id = ?", key.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load webhook %s: %w", key, err)
	}

	wh, err := rec.toDomain()
	if err != nil {
		return nil, false, err
	}
	return wh, true, nil
}

func (r *WebhookRepository) GetMany(ctx context.Context, keys []uuid.UUID) ([]*webhook.Webhook, error) {
	if len(keys) == 0 {
		return []*webhook.Webhook{}, nil
	}

	ids := make([]string, 0, len(keys))
	for _, k := range sets.Dedupe(keys) {
		ids = append(ids, k.String())
	}

	var recs []webhookRecord
	err := r.withChildren(r.db.Conn(ctx)).
		Where("id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}
	return toDomainList(recs)
}

func (r *WebhookRepository) GetAll(ctx context.Context) ([]*webhook.Webhook, error) {
	var recs []webhookRecord
	err := r.withChildren(r.db.Conn(ctx)).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}
	return toDomainList(recs)
}

func (r *WebhookRepository) Update(ctx context.Context, wh *webhook.Webhook, changed webhook.Fields) error {
	if err := wh.Validate(); err != nil {
		return err
	}

	conn := r.db.Conn(ctx)
	id := wh.Key.String()

	var count int64
	if err := conn.Model(&webhookRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up webhook %s: %w", wh.Key, err)
	}
	if count == 0 {
		return webhook.ErrWebhookNotFound
	}

	all := changed.IsEmpty()
	now := time.Now().UTC()

	columns := map[string]interface{}{"updated_at": now}
	if all || changed.Has(webhook.FieldURL) {
		columns["url"] = wh.URL
	}
	if all || changed.Has(webhook.FieldEnabled) {
		columns["enabled"] = wh.Enabled
	}
	if err := conn.Model(&webhookRecord{}).Where("id = ?", id).Updates(columns).Error; err != nil {
		return fmt.Errorf("failed to update webhook %s: %w", wh.Key, err)
	}

	if all || changed.Has(webhook.FieldEvents) {
		if err := replaceChildren(conn, id, &webhookEventRecord{}, eventRecords(id, wh.Events)); err != nil {
			return fmt.Errorf("failed to update events of webhook %s: %w", wh.Key, err)
		}
	}
	if all || changed.Has(webhook.FieldEntityKeys) {
		if err := replaceChildren(conn, id, &webhookEntityKeyRecord{}, entityKeyRecords(id, wh.EntityKeys)); err != nil {
			return fmt.Errorf("failed to update entity keys of webhook %s: %w", wh.Key, err)
		}
	}

	wh.UpdatedAt = now
	return nil
}

func (r *WebhookRepository) Delete(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error) {
	wh, found, err := r.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	conn := r.db.Conn(ctx)
	id := key.String()

	// child rows go first; sqlite only enforces the cascade with foreign_keys on
	if err := conn.Where("webhook_id = ?", id).Delete(&webhookEventRecord{}).Error; err != nil {
		return nil, false, fmt.Errorf("failed to delete events of webhook %s: %w", key, err)
	}
	if err := conn.Where("webhook_id = ?", id).Delete(&webhookEntityKeyRecord{}).Error; err != nil {
		return nil, false, fmt.Errorf("failed to delete entity keys of webhook %s: %w", key, err)
	}
	res := conn.Where("id = ?", id).Delete(&webhookRecord{})
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to delete webhook %s: %w", key, res.Error)
	}
	// removed concurrently between the load and the delete
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return wh, true, nil
}

func (r *WebhookRepository) withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("event ASC") }).
		Preload("EntityKeys", func(db *gorm.DB) *gorm.DB { return db.Order("entity_key ASC") })
}

func replaceChildren[T any](conn *gorm.DB, id string, model *T, rows []T) error {
	if err := conn.Where("webhook_id = ?", id).Delete(model).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return conn.Create(&rows).Error
}

func toDomainList(recs []webhookRecord) ([]*webhook.Webhook, error) {
	out := make([]*webhook.Webhook, 0, len(recs))
	for i := range recs {
		wh, err := recs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, nil
}
