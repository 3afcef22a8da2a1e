package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/cache"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCachedRepo(t *testing.T) (*CachedWebhookRepository, *database.DB, *miniredis.Miniredis) {
	db := setupTestDB(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewRedisCache(client, &cache.Options{Name: "webhooks", Namespace: "webhooks", DefaultTTL: time.Minute})
	return NewCachedWebhookRepository(NewWebhookRepository(db), c, logger.NewNop()), db, mr
}

func TestCachedWebhookRepository_ReadThrough(t *testing.T) {
	repo, _, mr := setupCachedRepo(t)
	ctx := context.Background()

	wh := newWebhook(t, "https://example.com", webhook.WithEvents(webhook.EventContentPublish))
	require.NoError(t, repo.Save(ctx, wh))
	assert.False(t, mr.Exists("webhooks:"+keyFor(wh.Key)))

	got, found, err := repo.Get(ctx, wh.Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, mr.Exists("webhooks:"+keyFor(wh.Key)))

	cached, found, err := repo.Get(ctx, wh.Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, got.URL, cached.URL)
	assert.Equal(t, got.Events, cached.Events)
}

func TestCachedWebhookRepository_MissNotCached(t *testing.T) {
	repo, _, mr := setupCachedRepo(t)

	wh := newWebhook(t, "https://example.com")
	_, found, err := repo.Get(context.Background(), wh.Key)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, mr.Keys())
}

func TestCachedWebhookRepository_UpdateInvalidates(t *testing.T) {
	repo, _, mr := setupCachedRepo(t)
	ctx := context.Background()

	wh := newWebhook(t, "https://old.example.com")
	require.NoError(t, repo.Save(ctx, wh))
	_, _, err := repo.Get(ctx, wh.Key)
	require.NoError(t, err)
	_, err = repo.GetAll(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("webhooks:all"))

	url := "https://new.example.com"
	next, changed, err := wh.Apply(webhook.Patch{URL: &url})
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &next, changed))

	assert.False(t, mr.Exists("webhooks:"+keyFor(wh.Key)))
	assert.False(t, mr.Exists("webhooks:all"))

	got, _, err := repo.Get(ctx, wh.Key)
	require.NoError(t, err)
	assert.Equal(t, url, got.URL)
}

func TestCachedWebhookRepository_DeleteInvalidates(t *testing.T) {
	repo, _, _ := setupCachedRepo(t)
	ctx := context.Background()

	wh := newWebhook(t, "https://example.com")
	require.NoError(t, repo.Save(ctx, wh))
	_, _, err := repo.Get(ctx, wh.Key)
	require.NoError(t, err)

	_, found, err := repo.Delete(ctx, wh.Key)
	require.NoError(t, err)
	require.True(t, found)

	_, found, err = repo.Get(ctx, wh.Key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCachedWebhookRepository_RolledBackReadNotCached(t *testing.T) {
	repo, db, mr := setupCachedRepo(t)
	ctx := context.Background()

	wh := newWebhook(t, "https://example.com")
	_ = db.InScope(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Save(ctx, wh))
		_, found, err := repo.Get(ctx, wh.Key)
		require.NoError(t, err)
		require.True(t, found)
		return assert.AnError
	})

	assert.False(t, mr.Exists("webhooks:"+keyFor(wh.Key)))
}
