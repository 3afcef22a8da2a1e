package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/webhook/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/cache"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
)

const allKey = "all"

// CachedWebhookRepository wraps a WebhookRepository with a read-through cache
// for Get and GetAll. Cache writes and invalidations wait for the surrounding
// scope to commit, so uncommitted rows never reach the cache.
type CachedWebhookRepository struct {
	repo   ports.WebhookRepository
	cache  cache.Cache
	logger logger.Logger
}

func NewCachedWebhookRepository(repo ports.WebhookRepository, c cache.Cache, log logger.Logger) *CachedWebhookRepository {
	return &CachedWebhookRepository{
		repo:   repo,
		cache:  c,
		logger: log,
	}
}

func keyFor(key uuid.UUID) string {
	return "key:" + key.String()
}

func (r *CachedWebhookRepository) Save(ctx context.Context, wh *webhook.Webhook) error {
	if err := r.repo.Save(ctx, wh); err != nil {
		return err
	}
	r.invalidate(ctx, allKey)
	return nil
}

func (r *CachedWebhookRepository) Get(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error) {
	var cached webhook.Webhook
	err := r.cache.Get(ctx, keyFor(key), &cached)
	if err == nil {
		return &cached, true, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("Webhook cache read failed", "key", key, "error", err)
	}

	wh, found, err := r.repo.Get(ctx, key)
	if err != nil || !found {
		// misses are not cached
		return wh, found, err
	}

	r.store(ctx, keyFor(key), wh.Clone())
	return wh, true, nil
}

func (r *CachedWebhookRepository) GetMany(ctx context.Context, keys []uuid.UUID) ([]*webhook.Webhook, error) {
	return r.repo.GetMany(ctx, keys)
}

func (r *CachedWebhookRepository) GetAll(ctx context.Context) ([]*webhook.Webhook, error) {
	var cached []*webhook.Webhook
	err := r.cache.Get(ctx, allKey, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("Webhook cache read failed", "key", allKey, "error", err)
	}

	all, err := r.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make([]*webhook.Webhook, len(all))
	for i, wh := range all {
		snapshot[i] = wh.Clone()
	}
	r.store(ctx, allKey, snapshot)
	return all, nil
}

func (r *CachedWebhookRepository) Update(ctx context.Context, wh *webhook.Webhook, changed webhook.Fields) error {
	if err := r.repo.Update(ctx, wh, changed); err != nil {
		return err
	}
	r.invalidate(ctx, keyFor(wh.Key), allKey)
	return nil
}

func (r *CachedWebhookRepository) Delete(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error) {
	wh, found, err := r.repo.Delete(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	r.invalidate(ctx, keyFor(key), allKey)
	return wh, true, nil
}

func (r *CachedWebhookRepository) store(ctx context.Context, key string, value interface{}) {
	database.AfterCommit(ctx, func(ctx context.Context) {
		if err := r.cache.Set(ctx, key, value, 0); err != nil {
			r.logger.Warn("Failed to cache webhooks", "key", key, "error", err)
		}
	})
}

func (r *CachedWebhookRepository) invalidate(ctx context.Context, keys ...string) {
	// drop now so reads inside the scope see the database, and again after commit
	// to evict anything cached by a concurrent reader meanwhile
	r.evict(ctx, keys...)
	database.AfterCommit(ctx, func(ctx context.Context) {
		r.evict(ctx, keys...)
	})
}

func (r *CachedWebhookRepository) evict(ctx context.Context, keys ...string) {
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Error("Failed to invalidate webhook cache", "keys", keys, "error", err)
	}
}
