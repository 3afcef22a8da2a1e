// Package service keeps the live login controllers of all browser sessions
// and persists their state between requests.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/controller"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/flow"
	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
)

// Session is one browser's login controller and its forms.
type Session struct {
	ID         string
	Controller *controller.Controller

	mu       sync.Mutex
	forms    map[controller.Kind]*controller.Form
	deps     controller.FormDeps
	lastSeen time.Time
	ended    bool
}

// Form returns the form of the given kind, creating it on first use so its
// state survives across requests.
func (s *Session) Form(kind controller.Kind) *controller.Form {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.forms[kind]
	if !ok {
		f = controller.NewForm(kind, s.Controller, s.deps)
		s.forms[kind] = f
	}
	return f
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

type SessionManager struct {
	router *flow.Router
	store  ports.SessionStore
	deps   controller.FormDeps
	idle   time.Duration
	logger logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(cfg flow.Config, store ports.SessionStore, deps controller.FormDeps, idle time.Duration, log logger.Logger) *SessionManager {
	if deps.Logger == nil {
		deps.Logger = log
	}
	return &SessionManager{
		router:   flow.NewDefaultRouter(cfg),
		store:    store,
		deps:     deps,
		idle:     idle,
		logger:   log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (m *SessionManager) Config() flow.Config {
	return m.router.Config()
}

// Get returns the live session id, restoring it from the store or starting
// a fresh one when neither has it.
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		s.mu.Lock()
		s.lastSeen = m.now()
		s.mu.Unlock()
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	state, found, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	var ctrl *controller.Controller
	if found {
		ctrl = controller.Restore(m.router, state)
	} else {
		ctrl = controller.New(m.router)
	}

	s := &Session{
		ID:         id,
		Controller: ctrl,
		forms:      make(map[controller.Kind]*controller.Form),
		deps:       m.deps,
		lastSeen:   m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// another request may have restored it meanwhile
	if existing, ok := m.sessions[id]; ok {
		_ = ctrl.Close()
		return existing, nil
	}
	m.sessions[id] = s
	m.watch(s)
	return s, nil
}

// Save persists the controller state of s unless the session has ended.
func (m *SessionManager) Save(ctx context.Context, s *Session) error {
	if s.Ended() {
		return nil
	}
	return m.store.Save(ctx, s.ID, s.Controller.State())
}

// End tears a session down: listeners are dropped and the stored state deleted.
func (m *SessionManager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		_ = s.Controller.Close()
	}
	return m.store.Delete(ctx, id)
}

// Sweep closes in-memory sessions idle for longer than the idle timeout.
// Their state stays in the store until it expires there.
func (m *SessionManager) Sweep() int {
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		_ = s.Controller.Close()
	}
	if len(stale) > 0 {
		m.logger.Debug("Swept idle login sessions", "count", len(stale))
	}
	return len(stale)
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) watch(s *Session) {
	log := m.logger.With("session", s.ID)
	s.Controller.Subscribe(func(ev controller.Event) {
		switch ev.Type {
		case controller.EventNavigated:
			log.Debug("Login view resolved", "path", ev.Navigation.Path, "view", ev.Navigation.View.Name)
		case controller.EventLoginSuccess:
			log.Info("User logged in", "user_id", ev.UserID, "return_path", ev.ReturnPath)
		}
	})
}
