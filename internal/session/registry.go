package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-surveys/internal/engine"
	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/metrics"
)

var ErrNotFound = errors.New("session not found")

// Session is one engine owned by one client.
type Session struct {
	ID       string
	ClientID string
	Engine   *engine.Engine
	lastUsed time.Time
}

// Registry holds live engine sessions keyed by id. Idle sessions are
// closed by Sweep.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type Option func(*Registry)

func WithIdleTimeout(d time.Duration) Option { return func(r *Registry) { r.idle = d } }
func WithMetrics(m *metrics.Metrics) Option  { return func(r *Registry) { r.metrics = m } }
func WithLogger(l *zap.Logger) Option        { return func(r *Registry) { r.log = logging.OrNop(l) } }
func WithClock(now func() time.Time) Option  { return func(r *Registry) { r.now = now } }

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: map[string]*Session{},
		idle:     30 * time.Minute,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Add registers e for clientID and returns the new session.
func (r *Registry) Add(clientID string, e *engine.Engine) *Session {
	s := &Session{ID: uuid.NewString(), ClientID: clientID, Engine: e, lastUsed: r.now()}
	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.gauge(n)
	return s
}

// Get returns the session when it exists and belongs to clientID.
func (r *Registry) Get(id, clientID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.ClientID != clientID {
		return nil, ErrNotFound
	}
	s.lastUsed = r.now()
	return s, nil
}

// Remove resets and drops the session.
func (r *Registry) Remove(id, clientID string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.ClientID != clientID {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	s.Engine.Reset()
	s.Engine.Close()
	r.gauge(n)
	return nil
}

// Sweep closes sessions idle for longer than the idle timeout and
// reports how many were removed. Pending draft saves are flushed first,
// so an abandoned session can be resumed from its draft.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)
	var stale []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range stale {
		s.Engine.Close()
		r.log.Debug("session expired", zap.String("session_id", s.ID))
	}
	if len(stale) > 0 {
		r.gauge(n)
	}
	return len(stale)
}

// CloseAll flushes and drops every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()
	for _, s := range all {
		s.Engine.Close()
	}
	r.gauge(0)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) gauge(n int) {
	if r.metrics != nil {
		r.metrics.Sessions.Set(float64(n))
	}
}
