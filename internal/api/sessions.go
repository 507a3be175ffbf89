package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ernie/hostlog/internal/logindex"
	"github.com/ernie/hostlog/internal/viewer"
)

// viewSession owns the line indexes one viewer has built
type viewSession struct {
	indexes  *logindex.Registry
	lastUsed time.Time
}

// SessionManager hands out view sessions and drops idle ones
type SessionManager struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*viewSession
}

// NewSessionManager creates a manager expiring sessions idle for ttl
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*viewSession),
	}
}

// Resolve returns the session named by id, or a new one when id is empty,
// malformed or expired
func (m *SessionManager) Resolve(id string) (string, *logindex.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if parsed, err := uuid.Parse(id); err == nil {
		if s, ok := m.sessions[parsed.String()]; ok {
			s.lastUsed = m.now()
			return parsed.String(), s.indexes
		}
	}

	id = uuid.NewString()
	s := &viewSession{indexes: logindex.NewRegistry(), lastUsed: m.now()}
	m.sessions[id] = s
	return id, s.indexes
}

// FromRequest resolves the session a request names in its session query
// parameter or header and echoes the id back in the response header
func (m *SessionManager) FromRequest(w http.ResponseWriter, req *http.Request) *logindex.Registry {
	id := req.URL.Query().Get("session")
	if id == "" {
		id = req.Header.Get(viewer.SessionHeader)
	}
	id, indexes := m.Resolve(id)
	w.Header().Set(viewer.SessionHeader, id)
	return indexes
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Expire drops sessions idle longer than the ttl and returns how many went
func (m *SessionManager) Expire() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	n := 0
	for id, s := range m.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run expires idle sessions until ctx is done
func (m *SessionManager) Run(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(max(m.ttl/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Expire(); n > 0 {
				log.Printf("Expired %d idle view sessions (%d active)", n, m.Len())
			}
		}
	}
}
