package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"confhub/internal/events"
	"confhub/internal/metrics"
	"confhub/internal/override"
	"confhub/internal/server/config"
	"confhub/internal/types"
	"confhub/internal/value"

	"go.uber.org/zap"
)

// ErrHubStopped is returned when opening a session on a stopped hub
var ErrHubStopped = errors.New("replication hub is stopped")

// ConfigLister loads the live configs of a project
type ConfigLister interface {
	List(ctx context.Context, projectID string) ([]*types.Config, error)
}

// OpenParams describes a session handshake
type OpenParams struct {
	ProjectID     string
	EnvironmentID string
	Context       value.Value
	Current       []Snapshot
	Required      []string
	Fallbacks     []Snapshot
}

// project holds the sessions of one project and the latest known configs
// used to resolve references
type project struct {
	configs  map[string]*types.Config
	sessions map[string]*Session
}

// Hub coordinates replication sessions. It subscribes to change events
// once and fans them out to the sessions of the event's project.
type Hub struct {
	config config.ReplicationConfig
	bus    events.Bus
	lister ConfigLister
	logger *zap.Logger

	mu       sync.RWMutex
	projects map[string]*project
	stopped  bool

	sub    *events.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a new replication hub
func NewHub(cfg config.ReplicationConfig, bus events.Bus, lister ConfigLister, logger *zap.Logger) *Hub {
	if cfg.SessionQueueSize <= 0 {
		cfg.SessionQueueSize = 64
	}
	return &Hub{
		config:   cfg,
		bus:      bus,
		lister:   lister,
		logger:   logger.With(zap.String("component", "replication")),
		projects: make(map[string]*project),
	}
}

// Start subscribes to the bus and starts dispatching. The subscription is
// in place before any session loads its snapshot.
func (h *Hub) Start(ctx context.Context, buffer int) {
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.sub = h.bus.Subscribe(buffer)

	h.wg.Add(1)
	go h.dispatch()
}

// Stop closes every session and stops dispatching
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.cancel == nil || h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	h.cancel()
	h.sub.Close()

	for _, s := range h.sessions() {
		s.close(ReasonShutdown)
	}
	h.wg.Wait()
}

// Len returns the number of open sessions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, p := range h.projects {
		n += len(p.sessions)
	}
	return n
}

// Open performs the handshake of a new session: it merges the client's
// configs with the server state, checks required configs, sends the initial
// snapshot and starts streaming. The returned session runs until it is
// closed or the hub stops.
func (h *Hub) Open(ctx context.Context, params OpenParams, stream Stream) (*Session, error) {
	if params.ProjectID == "" {
		return nil, types.BadRequest("project id is required")
	}
	if h.ctx == nil || h.ctx.Err() != nil {
		return nil, ErrHubStopped
	}

	s := newSession(h, params, stream)

	// Register first so no change committed during the load is missed
	if !h.register(s) {
		s.close(ReasonShutdown)
		return nil, ErrHubStopped
	}

	configs, err := h.lister.List(ctx, params.ProjectID)
	if err != nil {
		s.close(ReasonLoadFailed)
		return nil, fmt.Errorf("failed to load configs: %w", err)
	}
	h.cache(params.ProjectID, configs)

	server := make([]Snapshot, 0, len(configs))
	for _, cfg := range configs {
		server = append(server, h.snapshot(cfg, params.EnvironmentID, params.Context))
	}

	merged := Merge(params.Current, server, params.Fallbacks)
	if err := RequireConfigs(merged, params.Required); err != nil {
		var missing *MissingConfigsError
		if errors.As(err, &missing) {
			_ = stream.Send(ctx, &Message{Type: MessageError, Error: err.Error(), Missing: missing.Names})
		}
		s.close(ReasonMissingConfigs)
		return nil, err
	}

	for name, snap := range merged {
		s.rolling.Upsert(name, snap.Version)
	}

	initial := missingFrom(merged, params.Current)
	if err := stream.Send(ctx, &Message{Type: MessageInit, Configs: initial}); err != nil {
		s.close(ReasonWriteFailed)
		return nil, fmt.Errorf("failed to send initial snapshot: %w", err)
	}
	metrics.ReplicationPushes.WithLabelValues(string(MessageInit)).Add(float64(len(initial)))
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateSynced))

	// The stopped check and wg.Add share the lock Stop marks under
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		s.close(ReasonShutdown)
		return nil, ErrHubStopped
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go s.run(h.ctx)
	s.state.CompareAndSwap(int32(StateSynced), int32(StateStreaming))

	s.logger.Info("Replication session opened",
		zap.Int("configs", len(merged)),
		zap.Int("initial", len(initial)))
	return s, nil
}

// dispatch fans bus events out to the sessions of the event's project
func (h *Hub) dispatch() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.sub.Lagged:
			h.resync()
		case event, ok := <-h.sub.C:
			if !ok {
				return
			}
			for _, s := range h.observe(event) {
				if !s.enqueue(event) {
					s.logger.Warn("Session queue full, disconnecting slow consumer",
						zap.String("config", event.Name),
						zap.Int64("version", event.Version))
					s.close(ReasonSlowConsumer)
				}
			}
		}
	}
}

// resync closes every session after the hub's subscription missed change
// events. Clients reconnect and merge against the stored configs.
func (h *Hub) resync() {
	sessions := h.sessions()
	h.logger.Warn("Change events were dropped, forcing sessions to resync",
		zap.Int("sessions", len(sessions)),
		zap.Int64("dropped", h.sub.Dropped()))
	for _, s := range sessions {
		s.close(ReasonResync)
	}
}

// observe records the event's config and returns the project's sessions.
// Events of projects without sessions are ignored.
func (h *Hub) observe(event events.ConfigChanged) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.projects[event.ProjectID]
	if !ok || event.Config == nil {
		return nil
	}
	if existing, ok := p.configs[event.Name]; !ok || existing.Version < event.Version {
		p.configs[event.Name] = event.Config
	}

	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// cache stores loaded configs unless a newer version is already known
func (h *Hub) cache(projectID string, configs []*types.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.projects[projectID]
	if !ok {
		return
	}
	for _, cfg := range configs {
		if existing, ok := p.configs[cfg.Name]; !ok || existing.Version < cfg.Version {
			p.configs[cfg.Name] = cfg
		}
	}
}

// snapshot evaluates cfg for a session's environment and context
func (h *Hub) snapshot(cfg *types.Config, environmentID string, ctx value.Value) Snapshot {
	resolve := func(name string) (value.Value, bool) {
		h.mu.RLock()
		defer h.mu.RUnlock()

		p, ok := h.projects[cfg.ProjectID]
		if !ok {
			return value.Null(), false
		}
		return override.ConfigResolver(p.configs, environmentID)(name)
	}

	base, overrides := cfg.Resolved(environmentID)
	resolved := override.Resolve(overrides, resolve)
	return Snapshot{
		Name:      cfg.Name,
		Version:   cfg.Version,
		Value:     override.Evaluate(base, resolved, ctx),
		Overrides: resolved,
	}
}

// register adds the session unless the hub is stopped
func (h *Hub) register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}

	p, ok := h.projects[s.projectID]
	if !ok {
		p = &project{
			configs:  make(map[string]*types.Config),
			sessions: make(map[string]*Session),
		}
		h.projects[s.projectID] = p
	}
	p.sessions[s.id] = s
	metrics.ReplicationSessions.Inc()
	return true
}

// remove drops the session and, with the last session, the project cache
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.projects[s.projectID]
	if !ok {
		return
	}
	if _, ok := p.sessions[s.id]; !ok {
		return
	}
	delete(p.sessions, s.id)
	metrics.ReplicationSessions.Dec()
	if len(p.sessions) == 0 {
		delete(h.projects, s.projectID)
	}
}

func (h *Hub) sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Session
	for _, p := range h.projects {
		for _, s := range p.sessions {
			out = append(out, s)
		}
	}
	return out
}
