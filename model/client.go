package model

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/stream"
)

// ClientConfig tunes retry and timeout behavior of the resilient client.
type ClientConfig struct {
	// MaxRetries is the number of retry attempts after the initial call.
	MaxRetries int
	// BackoffBase is the delay before the first retry; subsequent delays
	// double per attempt.
	BackoffBase time.Duration
	// BackoffCap bounds the computed backoff delay.
	BackoffCap time.Duration
	// CallTimeout bounds one backend attempt. Zero disables the bound.
	CallTimeout time.Duration
}

// DefaultClientConfig returns production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:  3,
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
		CallTimeout: 2 * time.Minute,
	}
}

// Client is the resilient model client. It sends the full conversation to a
// backend, reassembles streamed output into an AssistantTurn and retries
// transient faults with exponential backoff. Fatal faults propagate
// immediately. Retry state is local to one Call and discarded afterwards.
type Client struct {
	backend  Model
	cfg      ClientConfig
	logger   logging.Logger
	observer core.Observer
}

// NewClient wraps a backend model. Logger and observer may be nil.
func NewClient(backend Model, cfg ClientConfig, logger logging.Logger, observer core.Observer) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	return &Client{
		backend:  backend,
		cfg:      cfg,
		logger:   logging.OrDefault(logger),
		observer: observer,
	}
}

// Info exposes the wrapped backend's metadata.
func (c *Client) Info() Info { return c.backend.Info() }

// Call executes one model call for the given session, streaming fragments to
// the observer when req.Stream is set. On transient failure it retries up to
// MaxRetries times with capped exponential backoff, emitting a best-effort
// "retrying" event before each sleep and a terminal "error" event when
// retries are exhausted or the fault is fatal.
func (c *Client) Call(ctx context.Context, sessionID string, req Request) (core.AssistantTurn, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		turn, err := c.callOnce(ctx, sessionID, req)
		if err == nil {
			return turn, nil
		}
		lastErr = err

		if Classify(err) == FaultFatal {
			c.logger.Error("model.call.fatal", "attempt", attempt, "error", err.Error())
			c.notifyError(sessionID, err)
			return core.AssistantTurn{}, fmt.Errorf("model call failed: %w", err)
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn("model.call.retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
		core.Notify(c.observer, core.Event{
			Type:      core.EventRetrying,
			SessionID: sessionID,
			Payload:   err.Error(),
			Meta: map[string]string{
				"attempt":  strconv.Itoa(attempt + 1),
				"delay_ms": strconv.FormatInt(delay.Milliseconds(), 10),
			},
		})

		select {
		case <-ctx.Done():
			c.logger.Warn("model.call.cancelled", "attempt", attempt, "error", ctx.Err().Error())
			c.notifyError(sessionID, ctx.Err())
			return core.AssistantTurn{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	c.logger.Error("model.call.exhausted", "max_retries", c.cfg.MaxRetries, "error", lastErr.Error())
	c.notifyError(sessionID, lastErr)
	return core.AssistantTurn{}, fmt.Errorf("model call failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

// callOnce performs a single backend attempt, delegating frame reassembly to
// the stream package. Fragments are only forwarded to the observer in
// streaming mode.
func (c *Client) callOnce(ctx context.Context, sessionID string, req Request) (core.AssistantTurn, error) {
	callCtx := ctx
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	frames, errs := c.backend.Generate(callCtx, req)

	var observer core.Observer
	if req.Stream {
		observer = c.observer
	}
	return stream.Collect(callCtx, sessionID, frames, errs, observer)
}

// backoff computes base × 2^attempt capped at BackoffCap.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BackoffBase << uint(attempt)
	if delay <= 0 || delay > c.cfg.BackoffCap {
		return c.cfg.BackoffCap
	}
	return delay
}

func (c *Client) notifyError(sessionID string, err error) {
	core.Notify(c.observer, core.Event{
		Type:      core.EventError,
		SessionID: sessionID,
		Payload:   err.Error(),
	})
}
