package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/arranmoreferry/mcp-server/internal/domain"
	"github.com/arranmoreferry/mcp-server/internal/infrastructure/logging"
)

// defaultNotificationBufferSize bounds how many push messages may queue per
// session before sends start being dropped.
const defaultNotificationBufferSize = 100

// SessionRegistry maps session identifiers to live sessions. It is the sole
// owner of the process-wide session map; other components borrow sessions
// for the duration of one request only.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*StreamSession

	generateID func() string
	bufferSize int
	logger     *logging.Logger
}

// RegistryOption configures a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithIDGenerator overrides how session identifiers are generated.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *SessionRegistry) {
		r.generateID = gen
	}
}

// WithNotificationBufferSize overrides the per-session push buffer size.
func WithNotificationBufferSize(size int) RegistryOption {
	return func(r *SessionRegistry) {
		r.bufferSize = size
	}
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(logger *logging.Logger, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		sessions:   make(map[string]*StreamSession),
		generateID: func() string { return uuid.New().String() },
		bufferSize: defaultNotificationBufferSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a fresh session in the Uninitialized state. The session
// is not visible to Lookup until it is committed with Add after a
// successful initialize handshake.
func (r *SessionRegistry) Create() *StreamSession {
	return newStreamSession(r.generateID(), r.bufferSize)
}

// Add commits a session to the registry under its identifier. From this
// point the registry removes the entry automatically when the session
// closes, without relying on an explicit DELETE from the client.
func (r *SessionRegistry) Add(sess *StreamSession) {
	sess.onClose = r.detach

	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session registered", logging.Fields{
		"sessionID": sess.ID(),
		"sessions":  count,
	})
}

// Lookup retrieves a session by its identifier.
func (r *SessionRegistry) Lookup(id string) (*StreamSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, domain.NewSessionNotFoundError(id)
	}
	return sess, nil
}

// Remove deletes the session with the given identifier and releases its
// resources. Removing an absent id is a no-op.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}

	// Close outside the lock; the session's close hook re-enters detach.
	sess.Close()

	r.logger.Info("session removed", logging.Fields{"sessionID": id})
}

// detach drops the map entry for an already-closing session.
func (r *SessionRegistry) detach(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Active returns a snapshot of all sessions currently in the Active state.
func (r *SessionRegistry) Active() []*StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*StreamSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if sess.State() == domain.SessionActive {
			active = append(active, sess)
		}
	}
	return active
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll terminates every registered session, for process shutdown.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*StreamSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*StreamSession)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}
