package core

import "time"

// EventType enumerates the notification kinds delivered to observers.
type EventType string

// Observer event types. These mirror what a transport typically forwards to
// an end user: retry notices, live content fragments, tool activity, the
// final answer and terminal errors.
const (
	EventRetrying        EventType = "retrying"
	EventContentFragment EventType = "content-fragment"
	EventToolCallStarted EventType = "tool-call-started"
	EventToolCallResult  EventType = "tool-call-result"
	EventFinalAnswer     EventType = "final-answer"
	EventError           EventType = "error"
)

// Event is a best-effort notification keyed by session id. Payload carries
// the event-specific text (fragment, answer, error message); Meta carries
// small structured extras such as tool names or attempt counters.
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id"`
	Payload   string            `json:"payload,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Observer receives orchestration events. Implementations must be safe for
// concurrent use; they should return quickly since slow observers delay
// nothing but see stale fragments. Failures inside an observer must never
// affect orchestration - use Notify, which swallows panics.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// NoopObserver discards all events.
type NoopObserver struct{}

// OnEvent implements Observer.
func (NoopObserver) OnEvent(Event) {}

// MultiObserver fans one event out to several observers in order.
type MultiObserver []Observer

// OnEvent implements Observer.
func (m MultiObserver) OnEvent(ev Event) {
	for _, o := range m {
		Notify(o, ev)
	}
}

// Notify delivers an event to an observer, stamping the time and swallowing
// any panic the observer raises. A nil observer is a no-op. Notification is
// strictly best-effort: orchestration correctness never depends on it.
func Notify(o Observer, ev Event) {
	if o == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	defer func() { _ = recover() }()
	o.OnEvent(ev)
}
