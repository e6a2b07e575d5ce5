// Package agentloop provides a high-level façade over the iterative model
// loop: a resilient model client, streaming reassembly, response
// interpretation, tool dispatch and session management, wired together behind
// a small surface. Most applications interact with this package by:
//  1. Creating an Engine via New() with a model backend and optional tools
//  2. Calling Process() with a session id and user input
//  3. Optionally subscribing an Observer for streaming fragments and
//     tool-call progress
//
// All defaults are safe for local development and testing; production
// deployments typically supply a structured logger and tuned retry and
// iteration limits.
package agentloop

import (
	"context"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/flow"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/session"
	"github.com/agentloop/agentloop/tool"
)

// Options configures the Engine instance.
type Options struct {
	// SystemPrompt seeds every new session's conversation.
	SystemPrompt string

	// Client tunes retry behavior of the model client (attempt bound,
	// backoff base and cap, per-call timeout).
	Client model.ClientConfig

	// Flow tunes the iteration loop (iteration bound, empty-response
	// threshold, streaming delivery).
	Flow flow.Config

	// Dispatcher tunes tool execution (per-call timeout).
	Dispatcher tool.DispatcherConfig

	// Tools is the capability set shared by all sessions.
	Tools []tool.Tool

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// Observer receives engine events: content fragments, retry and
	// tool-call progress, final answers. Nil disables notification.
	Observer core.Observer
}

// Engine is the high-level façade aggregating the model client, tool
// dispatcher and session manager.
type Engine struct {
	opts     Options
	client   *model.Client
	registry *tool.Registry
	sessions *session.Manager
}

// New creates an Engine over the given model backend with optional overrides.
func New(backend model.Model, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		SystemPrompt: session.DefaultManagerConfig().SystemPrompt,
		Client:       model.DefaultClientConfig(),
		Flow:         flow.DefaultConfig(),
		Dispatcher:   tool.DefaultDispatcherConfig(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry, err := tool.NewRegistry(opts.Tools...)
	if err != nil {
		return nil, err
	}

	client := model.NewClient(backend, opts.Client, opts.Logger, opts.Observer)
	dispatcher := tool.NewDispatcher(registry, opts.Dispatcher, opts.Logger, opts.Observer)
	manager := session.NewManager(client, registry, dispatcher, session.ManagerConfig{
		SystemPrompt: opts.SystemPrompt,
		Flow:         opts.Flow,
	}, opts.Logger, opts.Observer)

	return &Engine{
		opts:     opts,
		client:   client,
		registry: registry,
		sessions: manager,
	}, nil
}

// MustNew is New that panics on error. Intended for wiring code where the
// tool set is static.
func MustNew(backend model.Model, optFns ...func(o *Options)) *Engine {
	e, err := New(backend, optFns...)
	if err != nil {
		panic(err)
	}
	return e
}

// Process routes one user input through the session's iteration loop and
// returns the terminal result. Calls for the same session id are serialized;
// distinct ids proceed in parallel.
func (e *Engine) Process(ctx context.Context, sessionID, input string) (flow.Result, error) {
	return e.sessions.Process(ctx, sessionID, input)
}

// Sessions exposes the session manager for lifecycle operations (lookup,
// deletion, enumeration).
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Tools returns the registered tool names.
func (e *Engine) Tools() []string { return e.registry.Names() }
