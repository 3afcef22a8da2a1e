package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	AggregateID   string                 `json:"aggregateId"`
	AggregateType string                 `json:"aggregateType"`
	Timestamp     time.Time              `json:"timestamp"`
	UserID        string                 `json:"userId,omitempty"`
	Version       int                    `json:"version"`
	Payload       map[string]interface{} `json:"payload"`
	Metadata      EventMetadata          `json:"metadata"`
}

type EventMetadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
	TraceID       string `json:"traceId,omitempty"`
}

type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(topic string, handler EventHandler) error
	Close() error
}

type EventHandler func(ctx context.Context, event Event) error

var ErrBusClosed = errors.New("event bus closed")

type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

type KafkaEventBus struct {
	config  KafkaConfig
	writer  *kafka.Writer
	logger  logger.Logger
	mu      sync.Mutex
	readers map[string]*kafka.Reader
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewKafkaEventBus(config KafkaConfig, log logger.Logger) (*KafkaEventBus, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka event bus requires at least one broker")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaEventBus{
		config:  config,
		writer:  writer,
		logger:  log,
		readers: make(map[string]*kafka.Reader),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (k *KafkaEventBus) Publish(ctx context.Context, event Event) error {
	event = stamp(event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// keyed by aggregate so events of one webhook stay ordered in a partition
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "trace-id", Value: []byte(event.Metadata.TraceID)},
			{Key: "correlation-id", Value: []byte(event.Metadata.CorrelationID)},
		},
	}

	err = k.writer.WriteMessages(ctx, msg)
	metrics.RecordEventPublished(event.Type, err)
	return err
}

func (k *KafkaEventBus) Subscribe(topic string, handler EventHandler) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.ctx.Err() != nil {
		return ErrBusClosed
	}
	if _, exists := k.readers[topic]; exists {
		return fmt.Errorf("already subscribed to topic %s", topic)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       topic,
		GroupID:     k.config.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
		MaxWait:     1 * time.Second,
	})
	k.readers[topic] = reader

	k.wg.Add(1)
	go k.consume(reader, handler)

	return nil
}

func (k *KafkaEventBus) consume(reader *kafka.Reader, handler EventHandler) {
	defer k.wg.Done()

	for {
		msg, err := reader.ReadMessage(k.ctx)
		if err != nil {
			if k.ctx.Err() != nil {
				return
			}
			k.logger.Error("Failed to read message", "topic", reader.Config().Topic, "error", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			k.logger.Warn("Dropping undecodable event", "offset", msg.Offset, "error", err)
			continue
		}

		if err := handler(k.ctx, event); err != nil {
			k.logger.Error("Failed to handle event", "type", event.Type, "id", event.ID, "error", err)
		}
	}
}

func (k *KafkaEventBus) Close() error {
	k.cancel()

	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	if err := k.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
	}
	for topic, reader := range k.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader for topic %s: %w", topic, err))
		}
	}
	k.wg.Wait()

	return errors.Join(errs...)
}

// MemoryEventBus delivers events synchronously to in-process subscribers.
// Used when no broker is configured.
type MemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	closed   bool
}

func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{handlers: make(map[string][]EventHandler)}
}

// Publish hands the event to every handler subscribed to its type, or to "*".
func (m *MemoryEventBus) Publish(ctx context.Context, event Event) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrBusClosed
	}
	handlers := append([]EventHandler{}, m.handlers[event.Type]...)
	handlers = append(handlers, m.handlers["*"]...)
	m.mu.RUnlock()

	event = stamp(event)

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	metrics.RecordEventPublished(event.Type, err)
	return err
}

func (m *MemoryEventBus) Subscribe(topic string, handler EventHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBusClosed
	}
	m.handlers[topic] = append(m.handlers[topic], handler)
	return nil
}

func (m *MemoryEventBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.handlers = make(map[string][]EventHandler)
	return nil
}

func stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

type EventBuilder struct {
	event Event
}

func NewEventBuilder(eventType string) *EventBuilder {
	return &EventBuilder{
		event: Event{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Version:   1,
			Payload:   make(map[string]interface{}),
		},
	}
}

func (b *EventBuilder) WithAggregateID(id string) *EventBuilder {
	b.event.AggregateID = id
	return b
}

func (b *EventBuilder) WithAggregateType(aggregateType string) *EventBuilder {
	b.event.AggregateType = aggregateType
	return b
}

func (b *EventBuilder) WithUserID(userID string) *EventBuilder {
	b.event.UserID = userID
	return b
}

func (b *EventBuilder) WithPayload(key string, value interface{}) *EventBuilder {
	b.event.Payload[key] = value
	return b
}

func (b *EventBuilder) WithCorrelationID(id string) *EventBuilder {
	b.event.Metadata.CorrelationID = id
	return b
}

func (b *EventBuilder) WithTraceID(id string) *EventBuilder {
	b.event.Metadata.TraceID = id
	return b
}

func (b *EventBuilder) Build() Event {
	return b.event
}

// Event types
const (
	// Webhook events
	WebhookCreated = "webhook.created"
	WebhookUpdated = "webhook.updated"
	WebhookDeleted = "webhook.deleted"

	// Login events
	UserLoggedIn           = "user.logged_in"
	UserMFARequired        = "user.mfa_required"
	PasswordResetRequested = "user.password_reset_requested"
	PasswordChanged        = "user.password_changed"

	// Health check events
	HealthCheckFailed = "healthcheck.failed"
)
