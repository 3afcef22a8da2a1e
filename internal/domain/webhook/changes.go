package webhook

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/sets"
)

// Field names a persisted webhook property.
type Field string

const (
	FieldURL        Field = "url"
	FieldEvents     Field = "events"
	FieldEntityKeys Field = "entityKeys"
	FieldEnabled    Field = "enabled"
)

// Fields is the set of properties changed by a mutation.
type Fields struct {
	set sets.Set[Field]
}

func NewFields(fields ...Field) Fields {
	return Fields{set: sets.Of(fields...)}
}

func (f Fields) Has(field Field) bool {
	return f.set.Has(field)
}

func (f Fields) Len() int {
	return f.set.Len()
}

func (f Fields) IsEmpty() bool {
	return f.set.Len() == 0
}

// List returns the changed fields sorted by name.
func (f Fields) List() []Field {
	out := f.set.Items()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f Fields) String() string {
	names := make([]string, 0, f.Len())
	for _, field := range f.List() {
		names = append(names, string(field))
	}
	return strings.Join(names, ",")
}

func (f *Fields) add(field Field) {
	if f.set == nil {
		f.set = sets.Of[Field]()
	}
	f.set.Add(field)
}

// Patch describes a partial update. Nil members are left untouched; a pointer to
// an empty slice clears the collection.
type Patch struct {
	URL        *string      `json:"url,omitempty"`
	Events     *[]Event     `json:"events,omitempty"`
	EntityKeys *[]uuid.UUID `json:"entityKeys,omitempty"`
	Enabled    *bool        `json:"enabled,omitempty"`
}

// Apply returns a copy of w with p applied together with the fields whose value
// actually changed. Collections are compared as sets, so reordering or repeating
// members does not mark them dirty.
func (w Webhook) Apply(p Patch) (Webhook, Fields, error) {
	next := *w.Clone()
	var changed Fields

	if p.URL != nil {
		if strings.TrimSpace(*p.URL) == "" {
			return w, Fields{}, ErrURLRequired
		}
		if *p.URL != w.URL {
			next.URL = *p.URL
			changed.add(FieldURL)
		}
	}

	if p.Events != nil {
		events := NormalizeEvents(*p.Events)
		if !sets.EqualUnordered(events, w.Events) {
			next.Events = events
			changed.add(FieldEvents)
		}
	}

	if p.EntityKeys != nil {
		keys := NormalizeEntityKeys(*p.EntityKeys)
		if !sets.EqualUnordered(keys, w.EntityKeys) {
			next.EntityKeys = keys
			changed.add(FieldEntityKeys)
		}
	}

	if p.Enabled != nil && *p.Enabled != w.Enabled {
		next.Enabled = *p.Enabled
		changed.add(FieldEnabled)
	}

	if err := next.Validate(); err != nil {
		return w, Fields{}, err
	}

	return next, changed, nil
}
