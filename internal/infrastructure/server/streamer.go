package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/arranmoreferry/mcp-server/internal/domain"
	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
	"github.com/arranmoreferry/mcp-server/internal/infrastructure/logging"
)

const (
	// defaultRefreshInterval is how often the tool catalog is recomputed
	// and the change announced to active sessions.
	defaultRefreshInterval = 5 * time.Second

	// defaultStreamInterval spaces out the bounded demo push sequence.
	defaultStreamInterval = time.Second

	// demoMessageCount is how many timed messages the demo sequence emits
	// before its closing message.
	demoMessageCount = 2
)

// NotificationStreamer delivers out-of-band messages to sessions over their
// push channel and drives the periodic catalog-refresh broadcast. Delivery
// is best-effort: a closed or saturated recipient is logged and skipped,
// never surfaced to the caller.
type NotificationStreamer struct {
	registry *SessionRegistry
	catalog  *ToolCatalog
	logger   *logging.Logger

	refreshInterval time.Duration
	streamInterval  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// StreamerOption configures a NotificationStreamer.
type StreamerOption func(*NotificationStreamer)

// WithRefreshInterval overrides the catalog refresh period.
func WithRefreshInterval(d time.Duration) StreamerOption {
	return func(s *NotificationStreamer) {
		s.refreshInterval = d
	}
}

// WithStreamInterval overrides the spacing of the demo push sequence.
func WithStreamInterval(d time.Duration) StreamerOption {
	return func(s *NotificationStreamer) {
		s.streamInterval = d
	}
}

// NewNotificationStreamer creates a streamer over the given registry and
// catalog.
func NewNotificationStreamer(registry *SessionRegistry, catalog *ToolCatalog, logger *logging.Logger, opts ...StreamerOption) *NotificationStreamer {
	s := &NotificationStreamer{
		registry:        registry,
		catalog:         catalog,
		logger:          logger,
		refreshInterval: defaultRefreshInterval,
		streamInterval:  defaultStreamInterval,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send wraps the notification in a JSON-RPC envelope and queues it on the
// session's push channel. Failures are logged and discarded.
func (s *NotificationStreamer) Send(sess *StreamSession, notification *domain.Notification) {
	envelope := shared.JSONRPCNotification{
		JSONRPC: shared.JSONRPCVersion,
		Method:  notification.Method,
		Params:  notification.Params,
	}

	if err := sess.Publish(envelope); err != nil {
		s.logger.Warn("dropping notification", logging.Fields{
			"sessionID": sess.ID(),
			"method":    notification.Method,
			"error":     err.Error(),
		})
	}
}

// Broadcast delivers the notification to every session currently in the
// Active state. Sessions joining or leaving mid-broadcast are not
// guaranteed to receive it.
func (s *NotificationStreamer) Broadcast(notification *domain.Notification) {
	for _, sess := range s.registry.Active() {
		s.Send(sess, notification)
	}
}

// Start launches the process-wide catalog refresh loop. On each tick the
// catalog is recomputed and every active session is told the tool list
// changed.
func (s *NotificationStreamer) Start() {
	go func() {
		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				tools := s.catalog.Refresh()
				s.logger.Debug("catalog refreshed", logging.Fields{"tools": len(tools)})
				s.Broadcast(&domain.Notification{
					Method: shared.NotificationToolsListChanged,
				})
			}
		}
	}()
}

// Stop cancels the refresh loop. Per-session demo streams are cancelled by
// their own session's termination, not here.
func (s *NotificationStreamer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// StreamDemo emits the bounded push sequence on a freshly opened stream: an
// opening message, demoMessageCount timed messages, then a closing message.
// The sequence self-terminates and dies with the session.
func (s *NotificationStreamer) StreamDemo(sess *StreamSession) {
	s.Send(sess, domain.NewLogMessage("info", "SSE Connection established"))

	go func() {
		ticker := time.NewTicker(s.streamInterval)
		defer ticker.Stop()

		count := 0
		for {
			select {
			case <-sess.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				count++
				data := fmt.Sprintf("Message %d at %s", count, time.Now().Format(time.RFC3339))
				s.Send(sess, domain.NewLogMessage("info", data))

				if count == demoMessageCount {
					s.Send(sess, domain.NewLogMessage("info", "Streaming complete!"))
					return
				}
			}
		}
	}()
}
