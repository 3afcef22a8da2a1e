// Package controller holds the stateful side of the login application: the
// current route, the override flow, the return path and the forms.
package controller

import (
	"errors"
	"net/url"
	"sync"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/flow"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/metrics"
)

var ErrClosed = errors.New("login controller is closed")

type EventType string

const (
	EventNavigated    EventType = "navigated"
	EventLoginSuccess EventType = "login-success"
)

type Event struct {
	Type       EventType
	Navigation flow.Navigation
	ReturnPath string
	UserID     string
}

type Listener func(Event)

// Controller tracks one browser session. All methods are safe for concurrent
// use; listeners are invoked outside the lock.
type Controller struct {
	router *flow.Router

	mu        sync.Mutex
	state     ports.SessionState
	current   *flow.Navigation
	listeners map[uint64]Listener
	nextID    uint64
	closed    bool
}

func New(router *flow.Router) *Controller {
	return &Controller{
		router:    router,
		listeners: make(map[uint64]Listener),
	}
}

// Restore rebuilds a controller from persisted session state. The last
// route is resolved again without notifying anyone.
func Restore(router *flow.Router, state ports.SessionState) *Controller {
	c := New(router)
	c.state = state
	if state.Path != "" {
		if nav, err := router.Navigate(state.Path, c.input()); err == nil {
			c.current = &nav
		}
	}
	return c
}

func (c *Controller) Config() flow.Config {
	return c.router.Config()
}

// Navigate routes path with the given query and makes the result current.
func (c *Controller) Navigate(path string, query url.Values) (flow.Navigation, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return flow.Navigation{}, ErrClosed
	}

	q := flow.QueryFrom(query)
	nav, err := c.router.Navigate(path, flow.Input{Query: q, Override: c.state.Override})
	if err != nil {
		c.mu.Unlock()
		return flow.Navigation{}, err
	}
	c.state.Path = nav.Path
	c.state.Query = q
	c.current = &nav
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	metrics.RecordLoginView(string(nav.View.Name))
	emit(listeners, Event{Type: EventNavigated, Navigation: nav})
	return nav, nil
}

// OverrideFlow forces a sub-flow regardless of the URL and re-resolves the
// current route. Unknown values clear the override.
func (c *Controller) OverrideFlow(value string) (flow.Navigation, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return flow.Navigation{}, ErrClosed
	}

	c.state.Override = flow.ParseFlow(value)
	path := c.state.Path
	if path == "" {
		path = flow.RouteLogin
	}
	nav, err := c.router.Navigate(path, c.input())
	if err != nil {
		c.mu.Unlock()
		return flow.Navigation{}, err
	}
	c.state.Path = nav.Path
	c.current = &nav
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	metrics.RecordLoginView(string(nav.View.Name))
	emit(listeners, Event{Type: EventNavigated, Navigation: nav})
	return nav, nil
}

// SetReturnPath sets the programmatic destination after login. An empty
// value clears it.
func (c *Controller) SetReturnPath(p string) error {
	safe := ""
	if p != "" {
		var err error
		if safe, err = flow.SafeReturnPath(p); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.state.ReturnPath = safe
	return nil
}

// ReturnPath is the query returnPath of the current route when present,
// otherwise the programmatic one.
func (c *Controller) ReturnPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return flow.ReturnPath(c.state.Query, c.state.ReturnPath)
}

// Current returns the last navigation, if any.
func (c *Controller) Current() (flow.Navigation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return flow.Navigation{}, false
	}
	return *c.current, true
}

func (c *Controller) State() ports.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers l and returns a function removing it again.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = l

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// NotifyLoginSuccess tells every listener that the session is now signed in.
func (c *Controller) NotifyLoginSuccess(userID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	listeners := c.snapshotListeners()
	ev := Event{Type: EventLoginSuccess, ReturnPath: flow.ReturnPath(c.state.Query, c.state.ReturnPath), UserID: userID}
	if c.current != nil {
		ev.Navigation = *c.current
	}
	c.mu.Unlock()

	emit(listeners, ev)
}

// Close drops every listener. Later calls fail with ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.listeners = make(map[uint64]Listener)
	return nil
}

func (c *Controller) input() flow.Input {
	return flow.Input{Query: c.state.Query, Override: c.state.Override}
}

func (c *Controller) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for id := uint64(0); id < c.nextID; id++ {
		if l, ok := c.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func emit(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}
