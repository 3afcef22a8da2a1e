package webhook

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/sets"
)

var (
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrURLRequired     = errors.New("webhook url is required")
	ErrUnknownEvent    = errors.New("unknown webhook event")
)

// Event is a content or media notification a webhook can subscribe to.
type Event string

const (
	EventContentPublish   Event = "ContentPublish"
	EventContentUnpublish Event = "ContentUnpublish"
	EventContentDelete    Event = "ContentDelete"
	EventMediaSave        Event = "MediaSave"
	EventMediaDelete      Event = "MediaDelete"
)

var knownEvents = []Event{
	EventContentPublish,
	EventContentUnpublish,
	EventContentDelete,
	EventMediaSave,
	EventMediaDelete,
}

// Events lists every supported event kind.
func Events() []Event {
	out := make([]Event, len(knownEvents))
	copy(out, knownEvents)
	return out
}

// ParseEvent matches name case-insensitively against the known event kinds.
func ParseEvent(name string) (Event, error) {
	for _, e := range knownEvents {
		if strings.EqualFold(string(e), strings.TrimSpace(name)) {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// ParseEvents parses every name, failing on the first unknown one.
func ParseEvents(names []string) ([]Event, error) {
	out := make([]Event, 0, len(names))
	for _, name := range names {
		e, err := ParseEvent(name)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Webhook is an outbound notification endpoint, optionally scoped to a set of
// content or media entities.
type Webhook struct {
	Key        uuid.UUID   `json:"key"`
	URL        string      `json:"url"`
	Events     []Event     `json:"events"`
	EntityKeys []uuid.UUID `json:"entityKeys"`
	Enabled    bool        `json:"enabled"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type Option func(*Webhook)

func WithEnabled(enabled bool) Option {
	return func(w *Webhook) { w.Enabled = enabled }
}

func WithEvents(events ...Event) Option {
	return func(w *Webhook) { w.Events = events }
}

func WithEntityKeys(keys ...uuid.UUID) Option {
	return func(w *Webhook) { w.EntityKeys = keys }
}

// New creates an unsaved webhook. The key stays zero until the store assigns one.
func New(url string, opts ...Option) (*Webhook, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrURLRequired
	}

	w := &Webhook{URL: url}
	for _, opt := range opts {
		opt(w)
	}
	w.Events = NormalizeEvents(w.Events)
	w.EntityKeys = NormalizeEntityKeys(w.EntityKeys)

	return w, nil
}

// Validate checks the invariants the store relies on.
func (w *Webhook) Validate() error {
	if strings.TrimSpace(w.URL) == "" {
		return ErrURLRequired
	}
	for _, e := range w.Events {
		if _, err := ParseEvent(string(e)); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (w *Webhook) Clone() *Webhook {
	c := *w
	c.Events = append(make([]Event, 0, len(w.Events)), w.Events...)
	c.EntityKeys = append(make([]uuid.UUID, 0, len(w.EntityKeys)), w.EntityKeys...)
	return &c
}

// HasEvent reports whether the webhook subscribes to e.
func (w *Webhook) HasEvent(e Event) bool {
	for _, have := range w.Events {
		if have == e {
			return true
		}
	}
	return false
}

// AppliesTo reports whether the webhook is scoped to entityKey. An empty key set
// applies to every entity.
func (w *Webhook) AppliesTo(entityKey uuid.UUID) bool {
	if len(w.EntityKeys) == 0 {
		return true
	}
	for _, k := range w.EntityKeys {
		if k == entityKey {
			return true
		}
	}
	return false
}

// NormalizeEvents returns the distinct events in a stable order, never nil.
func NormalizeEvents(events []Event) []Event {
	return sets.Normalize(events, func(a, b Event) int {
		return strings.Compare(string(a), string(b))
	})
}

// NormalizeEntityKeys returns the distinct keys in byte order, never nil.
func NormalizeEntityKeys(keys []uuid.UUID) []uuid.UUID {
	return sets.Normalize(keys, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
}
