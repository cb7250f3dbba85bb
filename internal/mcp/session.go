package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcpgateway/internal/platform/telemetry"
)

// Session holds the per-connection protocol state for one MCP client.
// A session is created only by an initialize request and is keyed by an
// opaque id carried in the Mcp-Session-Id header.
type Session struct {
	ID              string
	ProtocolVersion string
	ClientName      string
	CreatedAt       time.Time
}

// Registry maps session ids to live sessions. It is shared by all
// concurrent connections; creation and deletion are mutually exclusive so
// a close racing a create can never leak an entry.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  *telemetry.GatewayMetrics
}

// NewRegistry creates an empty session registry.
// The metrics parameter is optional; pass nil to skip metric recording.
func NewRegistry(m *telemetry.GatewayMetrics) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		metrics:  m,
	}
}

// Create allocates a new session with a unique id and stores it.
func (r *Registry) Create(ctx context.Context, protocolVersion, clientName string) *Session {
	s := &Session{
		ID:              uuid.New().String(),
		ProtocolVersion: protocolVersion,
		ClientName:      clientName,
		CreatedAt:       time.Now(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SessionOpened(ctx)
	}
	return s
}

// Get returns the session for the given id, if it exists.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close removes the session for the given id and reports whether it
// existed. A closed id is never reused; ids are random UUIDs and removal
// is terminal.
func (r *Registry) Close(ctx context.Context, id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok && r.metrics != nil {
		r.metrics.SessionClosed(ctx)
	}
	return ok
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
