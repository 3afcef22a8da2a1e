package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
)

func TestMemoryEventBus_Delivers(t *testing.T) {
	bus := NewMemoryEventBus()

	var byType, all []Event
	require.NoError(t, bus.Subscribe(WebhookCreated, func(_ context.Context, e Event) error {
		byType = append(byType, e)
		return nil
	}))
	require.NoError(t, bus.Subscribe("*", func(_ context.Context, e Event) error {
		all = append(all, e)
		return nil
	}))

	created := NewEventBuilder(WebhookCreated).WithAggregateID("k-1").WithAggregateType("webhook").Build()
	require.NoError(t, bus.Publish(context.Background(), created))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: WebhookDeleted}))

	require.Len(t, byType, 1)
	assert.Equal(t, "k-1", byType[0].AggregateID)
	require.Len(t, all, 2)
	// events published without id or timestamp get them stamped
	assert.NotEmpty(t, all[1].ID)
	assert.False(t, all[1].Timestamp.IsZero())
}

func TestMemoryEventBus_JoinsHandlerErrors(t *testing.T) {
	bus := NewMemoryEventBus()
	boom := errors.New("boom")
	require.NoError(t, bus.Subscribe(UserLoggedIn, func(context.Context, Event) error { return boom }))

	err := bus.Publish(context.Background(), Event{Type: UserLoggedIn})
	assert.ErrorIs(t, err, boom)
}

func TestMemoryEventBus_Closed(t *testing.T) {
	bus := NewMemoryEventBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: UserLoggedIn}), ErrBusClosed)
	assert.ErrorIs(t, bus.Subscribe(UserLoggedIn, func(context.Context, Event) error { return nil }), ErrBusClosed)
}

func TestNewKafkaEventBus_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaEventBus(KafkaConfig{Topic: "umbraco.events"}, logger.NewNop())
	assert.Error(t, err)

	bus, err := NewKafkaEventBus(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "umbraco.events"}, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Subscribe("umbraco.events", func(context.Context, Event) error { return nil }), ErrBusClosed)
}
