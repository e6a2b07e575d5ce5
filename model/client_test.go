package model

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  4 * time.Millisecond,
	}
}

func TestClient_SuccessFirstAttempt(t *testing.T) {
	backend := NewScriptModel().AddTextTurn("hello")
	client := NewClient(backend, fastConfig(), nil, nil)

	turn, err := client.Call(context.Background(), "s1", Request{})
	require.NoError(t, err)
	assert.Equal(t, "hello", turn.Text)
	assert.Equal(t, 1, backend.Calls())
}

func TestClient_RetriesTransientThenSucceeds(t *testing.T) {
	backend := NewScriptModel().
		AddErrorTurn(fmt.Errorf("connection reset by peer")).
		AddErrorTurn(fmt.Errorf("503 service unavailable")).
		AddTextTurn("recovered")
	client := NewClient(backend, fastConfig(), nil, nil)

	turn, err := client.Call(context.Background(), "s1", Request{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", turn.Text)
	assert.Equal(t, 3, backend.Calls())
}

func TestClient_RetryBound(t *testing.T) {
	backend := NewScriptModel()
	for i := 0; i < 10; i++ {
		backend.AddErrorTurn(fmt.Errorf("ETIMEDOUT"))
	}
	client := NewClient(backend, fastConfig(), nil, nil)

	_, err := client.Call(context.Background(), "s1", Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 retries")
	// 1 initial attempt + 3 retries, never more.
	assert.Equal(t, 4, backend.Calls())
}

func TestClient_FatalNoRetry(t *testing.T) {
	backend := NewScriptModel().AddErrorTurn(fmt.Errorf("401 invalid api key"))
	client := NewClient(backend, fastConfig(), nil, nil)

	_, err := client.Call(context.Background(), "s1", Request{})
	require.Error(t, err)
	assert.Equal(t, 1, backend.Calls())
}

func TestClient_RetryingEventsEmitted(t *testing.T) {
	var events []core.Event
	obs := core.ObserverFunc(func(ev core.Event) { events = append(events, ev) })

	backend := NewScriptModel()
	for i := 0; i < 5; i++ {
		backend.AddErrorTurn(fmt.Errorf("rate limit exceeded"))
	}
	client := NewClient(backend, fastConfig(), nil, obs)

	_, err := client.Call(context.Background(), "s1", Request{})
	require.Error(t, err)

	var retrying, terminal int
	for _, ev := range events {
		switch ev.Type {
		case core.EventRetrying:
			retrying++
			assert.Equal(t, "s1", ev.SessionID)
		case core.EventError:
			terminal++
		}
	}
	assert.Equal(t, 3, retrying, "one retrying event per backoff sleep")
	assert.Equal(t, 1, terminal, "single terminal error event")
}

func TestClient_StreamingFragmentsReachObserver(t *testing.T) {
	var fragments string
	obs := core.ObserverFunc(func(ev core.Event) {
		if ev.Type == core.EventContentFragment {
			fragments += ev.Payload
		}
	})

	backend := NewScriptModel().AddTurn(
		core.Frame{Text: "str"},
		core.Frame{Text: "eam"},
		core.Frame{Done: true},
	)
	client := NewClient(backend, fastConfig(), nil, obs)

	turn, err := client.Call(context.Background(), "s1", Request{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "stream", turn.Text)
	assert.Equal(t, turn.Text, fragments)
}

func TestClient_NonStreamingSuppressesFragments(t *testing.T) {
	var sawFragment bool
	obs := core.ObserverFunc(func(ev core.Event) {
		if ev.Type == core.EventContentFragment {
			sawFragment = true
		}
	})
	backend := NewScriptModel().AddTextTurn("quiet")
	client := NewClient(backend, fastConfig(), nil, obs)

	_, err := client.Call(context.Background(), "s1", Request{Stream: false})
	require.NoError(t, err)
	assert.False(t, sawFragment)
}

func TestClient_CancelDuringBackoffEmitsTerminalError(t *testing.T) {
	var errEvents int
	obs := core.ObserverFunc(func(ev core.Event) {
		if ev.Type == core.EventError {
			errEvents++
		}
	})

	backend := NewScriptModel()
	for i := 0; i < 5; i++ {
		backend.AddErrorTurn(fmt.Errorf("503 service unavailable"))
	}
	client := NewClient(backend, ClientConfig{
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		BackoffCap:  time.Second,
	}, nil, obs)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := client.Call(ctx, "s1", Request{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, errEvents, "cancellation during backoff still emits the terminal error event")
}

func TestClient_BackoffDoublesAndCaps(t *testing.T) {
	client := NewClient(NewScriptModel(), ClientConfig{
		MaxRetries:  5,
		BackoffBase: 100 * time.Millisecond,
		BackoffCap:  350 * time.Millisecond,
	}, nil, nil)

	assert.Equal(t, 100*time.Millisecond, client.backoff(0))
	assert.Equal(t, 200*time.Millisecond, client.backoff(1))
	assert.Equal(t, 350*time.Millisecond, client.backoff(2), "capped")
	assert.Equal(t, 350*time.Millisecond, client.backoff(10), "capped")
}

func TestClassify(t *testing.T) {
	transient := []error{
		fmt.Errorf("ECONNRESET"),
		fmt.Errorf("ETIMEDOUT"),
		fmt.Errorf("429 rate limit"),
		fmt.Errorf("500 server error"),
		fmt.Errorf("upstream 503"),
		context.DeadlineExceeded,
	}
	for _, err := range transient {
		assert.True(t, IsTransient(err), "%v", err)
	}

	fatal := []error{
		fmt.Errorf("invalid api key"),
		fmt.Errorf("401 unauthorized"),
		fmt.Errorf("quota exceeded"),
		fmt.Errorf("malformed request body"),
		context.Canceled,
	}
	for _, err := range fatal {
		assert.False(t, IsTransient(err), "%v", err)
	}
	assert.False(t, IsTransient(nil))
}
