package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/prharmony/internal/application"
)

// sessionEntry tracks an open editor session and when it was last used.
type sessionEntry struct {
	session  *application.EditorSession
	lastSeen time.Time
}

// SessionRegistry holds the editor sessions opened by browsers, keyed by a
// random id. Sessions idle for longer than the TTL are closed by Sweep.
type SessionRegistry struct {
	clock  clockwork.Clock
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(clock clockwork.Clock, ttl time.Duration, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		clock:    clock,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
	}
}

// Add registers sess and returns its id.
func (r *SessionRegistry) Add(sess *application.EditorSession) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{session: sess, lastSeen: r.clock.Now()}
	return id
}

// Get returns the session for id and marks it used.
func (r *SessionRegistry) Get(id string) (*application.EditorSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.clock.Now()
	return entry.session, true
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes and forgets sessions idle for longer than the TTL. Returns
// the number of sessions removed.
func (r *SessionRegistry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*application.EditorSession
	for id, entry := range r.sessions {
		if entry.lastSeen.Before(cutoff) {
			expired = append(expired, entry.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	if len(expired) > 0 {
		r.logger.Debug("expired editor sessions closed", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps every half TTL until ctx is canceled, then closes every session.
func (r *SessionRegistry) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

func (r *SessionRegistry) closeAll() {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[string]*sessionEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.session.Close()
	}
}
