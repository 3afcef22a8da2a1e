package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/domain/webhook"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/events"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockWebhookRepository is a mock implementation of ports.WebhookRepository
type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) Save(ctx context.Context, wh *webhook.Webhook) error {
	args := m.Called(ctx, wh)
	return args.Error(0)
}

func (m *MockWebhookRepository) Get(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*webhook.Webhook), args.Bool(1), args.Error(2)
}

func (m *MockWebhookRepository) GetMany(ctx context.Context, keys []uuid.UUID) ([]*webhook.Webhook, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*webhook.Webhook), args.Error(1)
}

func (m *MockWebhookRepository) GetAll(ctx context.Context) ([]*webhook.Webhook, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*webhook.Webhook), args.Error(1)
}

func (m *MockWebhookRepository) Update(ctx context.Context, wh *webhook.Webhook, changed webhook.Fields) error {
	args := m.Called(ctx, wh, changed)
	return args.Error(0)
}

func (m *MockWebhookRepository) Delete(ctx context.Context, key uuid.UUID) (*webhook.Webhook, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*webhook.Webhook), args.Bool(1), args.Error(2)
}

// countingScopes passes straight through and counts opened scopes
type countingScopes struct {
	mu     sync.Mutex
	opened int
}

func (s *countingScopes) InScope(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return fn(ctx)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func setupTestService(t *testing.T) (*WebhookService, *MockWebhookRepository, *countingScopes, *recordedEvents) {
	repo := new(MockWebhookRepository)
	scopes := &countingScopes{}

	bus := events.NewMemoryEventBus()
	recorded := &recordedEvents{}
	require.NoError(t, bus.Subscribe("*", recorded.handle))

	svc := NewWebhookService(repo, scopes, bus, nil, logger.NewNop())
	return svc, repo, scopes, recorded
}

func TestWebhookService_CreatePublishesEvent(t *testing.T) {
	svc, repo, scopes, recorded := setupTestService(t)
	ctx := context.Background()

	wh, err := webhook.New("https://example.com")
	require.NoError(t, err)

	repo.On("Save", mock.Anything, wh).Run(func(args mock.Arguments) {
		args.Get(1).(*webhook.Webhook).Key = uuid.New()
	}).Return(nil)

	created, err := svc.Create(ctx, wh)
	require.NoError(t, err)
	assert.Same(t, wh, created)
	assert.NotEqual(t, uuid.Nil, created.Key)
	assert.Equal(t, 1, scopes.opened)
	assert.Equal(t, []string{events.WebhookCreated}, recorded.types())
	repo.AssertExpectations(t)
}

func TestWebhookService_CreateRejectsInvalid(t *testing.T) {
	svc, repo, scopes, _ := setupTestService(t)

	_, err := svc.Create(context.Background(), &webhook.Webhook{})
	assert.ErrorIs(t, err, webhook.ErrURLRequired)

	_, err = svc.Create(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilWebhook)

	assert.Zero(t, scopes.opened)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestWebhookService_CreateFailureDoesNotPublish(t *testing.T) {
	svc, repo, _, recorded := setupTestService(t)
	boom := errors.New("insert failed")

	wh, err := webhook.New("https://example.com")
	require.NoError(t, err)
	repo.On("Save", mock.Anything, wh).Return(boom)

	_, err = svc.Create(context.Background(), wh)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, recorded.types())
}

func TestWebhookService_GetMissing(t *testing.T) {
	svc, repo, _, _ := setupTestService(t)
	key := uuid.New()
	repo.On("Get", mock.Anything, key).Return(nil, false, nil)

	wh, found, err := svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, wh)
}

func TestWebhookService_GetMultipleEmptyKeys(t *testing.T) {
	svc, repo, scopes, _ := setupTestService(t)

	out, err := svc.GetMultiple(context.Background(), []uuid.UUID{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Zero(t, scopes.opened)
	repo.AssertNotCalled(t, "GetMany", mock.Anything, mock.Anything)
}

func TestWebhookService_UpdateUnknownKeyPropagates(t *testing.T) {
	svc, repo, _, recorded := setupTestService(t)

	wh, err := webhook.New("https://example.com")
	require.NoError(t, err)
	wh.Key = uuid.New()
	changed := webhook.NewFields(webhook.FieldURL)

	repo.On("Update", mock.Anything, wh, changed).Return(webhook.ErrWebhookNotFound)

	err = svc.Update(context.Background(), wh, changed)
	assert.Equal(t, webhook.ErrWebhookNotFound, err)
	assert.Empty(t, recorded.types())
}

func TestWebhookService_UpdatePublishesChangedFields(t *testing.T) {
	svc, repo, _, recorded := setupTestService(t)

	wh, err := webhook.New("https://example.com")
	require.NoError(t, err)
	wh.Key = uuid.New()
	changed := webhook.NewFields(webhook.FieldEnabled, webhook.FieldURL)
	repo.On("Update", mock.Anything, wh, changed).Return(nil)

	require.NoError(t, svc.Update(context.Background(), wh, changed))

	require.Len(t, recorded.events, 1)
	assert.Equal(t, events.WebhookUpdated, recorded.events[0].Type)
	assert.Equal(t, "enabled,url", recorded.events[0].Payload["changed"])
}

func TestWebhookService_DeleteMissingIsNoop(t *testing.T) {
	svc, repo, _, recorded := setupTestService(t)
	key := uuid.New()
	repo.On("Delete", mock.Anything, key).Return(nil, false, nil)

	require.NoError(t, svc.Delete(context.Background(), key))

	assert.Empty(t, recorded.types())
	repo.AssertExpectations(t)
}

func TestWebhookService_DeleteExisting(t *testing.T) {
	svc, repo, scopes, recorded := setupTestService(t)

	wh, err := webhook.New("https://example.com")
	require.NoError(t, err)
	wh.Key = uuid.New()

	repo.On("Delete", mock.Anything, wh.Key).Return(wh, true, nil).Once()

	require.NoError(t, svc.Delete(context.Background(), wh.Key))

	assert.Equal(t, 1, scopes.opened)
	require.Len(t, recorded.events, 1)
	assert.Equal(t, events.WebhookDeleted, recorded.events[0].Type)
	assert.Equal(t, wh.Key.String(), recorded.events[0].AggregateID)
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestWebhookService_PublishFailureIsNotReturned(t *testing.T) {
	repo := new(MockWebhookRepository)
	bus := events.NewMemoryEventBus()
	require.NoError(t, bus.Subscribe(events.WebhookCreated, func(context.Context, events.Event) error {
		return errors.New("broker down")
	}))
	svc := NewWebhookService(repo, &countingScopes{}, bus, nil, logger.NewNop())

	wh, err := webhook.New("https://example.com")
	require.NoError(t, err)
	repo.On("Save", mock.Anything, wh).Return(nil)

	_, err = svc.Create(context.Background(), wh)
	assert.NoError(t, err)
}
