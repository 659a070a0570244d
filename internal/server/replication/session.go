package replication

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"confhub/internal/events"
	"confhub/internal/metrics"
	"confhub/internal/value"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of a session
type State int32

const (
	StateConnecting State = iota
	StateSynced
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSynced:
		return "synced"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Close reasons
const (
	ReasonClientClosed   = "client_closed"
	ReasonSlowConsumer   = "slow_consumer"
	ReasonResync         = "resync"
	ReasonWriteFailed    = "write_failed"
	ReasonShutdown       = "shutdown"
	ReasonMissingConfigs = "missing_configs"
	ReasonLoadFailed     = "load_failed"
)

// Session is one connected SDK client
type Session struct {
	id            string
	projectID     string
	environmentID string
	context       value.Value
	openedAt      time.Time

	state   atomic.Int32
	rolling *RollingState
	queue   chan events.ConfigChanged
	stream  Stream
	hub     *Hub
	logger  *zap.Logger

	done        chan struct{}
	closeOnce   sync.Once
	closeReason atomic.Value
}

func newSession(hub *Hub, params OpenParams, stream Stream) *Session {
	id := uuid.NewString()
	s := &Session{
		id:            id,
		projectID:     params.ProjectID,
		environmentID: params.EnvironmentID,
		context:       params.Context,
		openedAt:      time.Now(),
		rolling:       NewRollingState(),
		queue:         make(chan events.ConfigChanged, hub.config.SessionQueueSize),
		stream:        stream,
		hub:           hub,
		done:          make(chan struct{}),
		logger: hub.logger.With(
			zap.String("session_id", id),
			zap.String("project_id", params.ProjectID),
			zap.String("environment_id", params.EnvironmentID)),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed when the session closes
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CloseReason returns why the session closed, or "" while it is open
func (s *Session) CloseReason() string {
	reason, _ := s.closeReason.Load().(string)
	return reason
}

// Close closes the session on behalf of the client
func (s *Session) Close() {
	s.close(ReasonClientClosed)
}

// enqueue hands an event to the session without blocking.
// It returns false when the queue is full.
func (s *Session) enqueue(event events.ConfigChanged) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

// run delivers queued events until the session or the hub closes
func (s *Session) run(ctx context.Context) {
	defer s.hub.wg.Done()
	defer func() { s.rolling = nil }()

	for {
		select {
		case <-ctx.Done():
			s.close(ReasonShutdown)
			return
		case <-s.done:
			return
		case event := <-s.queue:
			s.deliver(ctx, event)
		}
	}
}

func (s *Session) deliver(ctx context.Context, event events.ConfigChanged) {
	if event.Config == nil || event.ProjectID != s.projectID {
		return
	}
	if s.rolling.Upsert(event.Name, event.Version) == Ignored {
		metrics.ReplicationIgnored.Inc()
		return
	}

	snap := s.hub.snapshot(event.Config, s.environmentID, s.context)
	if err := s.stream.Send(ctx, &Message{Type: MessageConfigChange, Configs: []Snapshot{snap}}); err != nil {
		s.logger.Warn("Failed to push config change",
			zap.Error(err),
			zap.String("config", event.Name),
			zap.Int64("version", event.Version))
		s.close(ReasonWriteFailed)
		return
	}
	metrics.ReplicationPushes.WithLabelValues(string(MessageConfigChange)).Inc()
}

// close transitions to Closed exactly once, closes the transport and
// removes the session from the hub
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		s.closeReason.Store(reason)
		previous := State(s.state.Swap(int32(StateClosed)))
		close(s.done)

		if err := s.stream.Close(); err != nil {
			s.logger.Debug("Failed to close session stream", zap.Error(err))
		}
		s.hub.remove(s)

		metrics.ReplicationSessionsClosed.WithLabelValues(reason).Inc()
		s.logger.Info("Replication session closed",
			zap.String("reason", reason),
			zap.String("previous_state", previous.String()),
			zap.Duration("duration", time.Since(s.openedAt)))
	})
}
