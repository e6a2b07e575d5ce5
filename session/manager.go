package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/flow"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/tool"
)

// Session is one isolated conversation: its history, its controller, and the
// bookkeeping the manager exposes for inspection. The run mutex serializes
// Process calls so iterations within a session are strictly sequential.
type Session struct {
	ID           string
	Conversation *core.Conversation
	Controller   *flow.Controller
	CreatedAt    time.Time

	runMu              sync.Mutex
	mu                 sync.Mutex
	lastActivityAt     time.Time
	messageCount       int
	transportConnected bool
	closed             bool
}

// SetTransportConnected records whether an external transport is currently
// attached to this session. The engine itself never reads it; it exists so a
// hosting layer can track connection state alongside the session.
func (s *Session) SetTransportConnected(connected bool) {
	s.mu.Lock()
	s.transportConnected = connected
	s.mu.Unlock()
}

// TransportConnected reports the last recorded transport state.
func (s *Session) TransportConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportConnected
}

// LastActivityAt reports when the session last processed input.
func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// MessageCount reports how many user inputs the session has processed.
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageCount
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.messageCount++
	s.mu.Unlock()
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ManagerConfig carries the per-session wiring the manager clones for every
// new session.
type ManagerConfig struct {
	// SystemPrompt seeds each new conversation. It may contain template
	// markers expanded against PromptData, e.g.
	// "Today is {{.Date}}. Available tools: {{join \", \" .Tools}}."
	SystemPrompt string
	// Flow configures the iteration controller.
	Flow flow.Config
}

// DefaultManagerConfig returns production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SystemPrompt: "You are a helpful assistant.",
		Flow:         flow.DefaultConfig(),
	}
}

// Manager is the concurrent session table. Lookups create on miss, atomically:
// two goroutines racing on the same unseen id observe the same session, and
// exactly one creation happens.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	client     *model.Client
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	cfg        ManagerConfig
	logger     logging.Logger
	observer   core.Observer
}

// NewManager wires a session manager over shared collaborators. The client,
// registry and dispatcher are shared across sessions; conversation state is
// never shared.
func NewManager(
	client *model.Client,
	registry *tool.Registry,
	dispatcher *tool.Dispatcher,
	cfg ManagerConfig,
	logger logging.Logger,
	observer core.Observer,
) *Manager {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultManagerConfig().SystemPrompt
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		client:     client,
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logging.OrDefault(logger),
		observer:   observer,
	}
}

// GetOrCreate returns the session for id, creating it if absent. An empty id
// mints a fresh one, so callers without an external identifier still get an
// addressable session. Safe for concurrent use; the double-checked write path
// guarantees a single creation per id.
func (m *Manager) GetOrCreate(id string) *Session {
	if id == "" {
		id = core.NewID()
	}
	m.mu.RLock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.RUnlock()
		return sess
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess
	}
	sess := m.newSession(id)
	m.sessions[id] = sess
	m.logger.Info("session.created", "session_id", id)
	return sess
}

// Get returns the session for id without creating it.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Delete removes the session from the table and marks it closed. A Process
// call already in flight on that session runs to completion against its own
// state; cleanup is cooperative, never forced mid-iteration.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	sess.close()
	m.logger.Info("session.deleted", "session_id", id)
	return true
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the live session ids in no particular order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Process routes one user input through the session's controller. Calls for
// the same session id run one at a time in arrival order; calls for distinct
// ids proceed in parallel. An empty id mints a fresh session per call; use
// GetOrCreate first when the minted id must be retained.
func (m *Manager) Process(ctx context.Context, id, input string) (flow.Result, error) {
	sess := m.GetOrCreate(id)

	sess.runMu.Lock()
	defer sess.runMu.Unlock()

	if sess.isClosed() {
		return flow.Result{}, fmt.Errorf("session %q is closed", id)
	}
	sess.touch()

	start := time.Now()
	res := sess.Controller.Run(ctx, input)
	m.logger.Info("session.processed",
		"session_id", id,
		"outcome", res.Outcome.String(),
		"iterations", res.Iterations,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (m *Manager) newSession(id string) *Session {
	data := PromptData{SessionID: id, Date: today()}
	if m.registry != nil {
		data.Tools = m.registry.Names()
	}
	prompt := renderPrompt(m.cfg.SystemPrompt, data)
	conv := core.NewConversation(prompt)
	ctrl := flow.NewController(id, conv, m.client, m.registry, m.dispatcher, m.cfg.Flow, m.logger, m.observer)
	now := time.Now()
	return &Session{
		ID:             id,
		Conversation:   conv,
		Controller:     ctrl,
		CreatedAt:      now,
		lastActivityAt: now,
	}
}
