package server

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/arranmoreferry/mcp-server/internal/domain"
	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
)

// StreamSession represents one logical client connection. It owns the
// notification channel through which server-initiated messages reach the
// client's push stream.
type StreamSession struct {
	id      string
	notifCh chan shared.JSONRPCNotification
	done    chan struct{}

	mu    sync.RWMutex
	state domain.SessionState

	closeOnce sync.Once
	onClose   func(id string)
}

func newStreamSession(id string, bufferSize int) *StreamSession {
	return &StreamSession{
		id:      id,
		notifCh: make(chan shared.JSONRPCNotification, bufferSize),
		done:    make(chan struct{}),
		state:   domain.SessionUninitialized,
	}
}

// ID returns the unique identifier for this session.
func (s *StreamSession) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *StreamSession) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Activate marks the session as having completed the initialize handshake.
// Activating a closed session has no effect.
func (s *StreamSession) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionUninitialized {
		s.state = domain.SessionActive
	}
}

// Done returns a channel that is closed when the session terminates. Demo
// stream timers and push-channel pumps select on it so they stop
// deterministically instead of leaking.
func (s *StreamSession) Done() <-chan struct{} {
	return s.done
}

// Notifications returns the channel carrying queued push messages.
func (s *StreamSession) Notifications() <-chan shared.JSONRPCNotification {
	return s.notifCh
}

// Publish queues a notification for delivery over the push channel. It
// never blocks: a closed session or a full buffer yields an error that the
// caller is expected to log and discard.
func (s *StreamSession) Publish(notification shared.JSONRPCNotification) error {
	select {
	case <-s.done:
		return errors.Errorf("session %s is closed", s.id)
	default:
	}

	select {
	case s.notifCh <- notification:
		return nil
	case <-s.done:
		return errors.Errorf("session %s is closed", s.id)
	default:
		return errors.Errorf("notification channel for session %s is full", s.id)
	}
}

// Close terminates the session. It is idempotent and safe to call from any
// goroutine; the notification channel itself is left open so concurrent
// publishers never panic, they observe Done instead.
func (s *StreamSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = domain.SessionClosed
		s.mu.Unlock()

		close(s.done)

		if s.onClose != nil {
			s.onClose(s.id)
		}
	})
}
