package core

import (
	"sync"
	"time"
)

// Conversation is the ordered, append-only message history of one session.
//
// Contract:
//   - The first message, if present, has role system; it is installed at
//     construction and replaced only by an explicit Reset.
//   - Append never reorders or mutates prior entries.
//   - Messages returns a defensive copy to avoid external mutation.
//
// Each Conversation is owned by exactly one iteration controller; the mutex
// guards against observers or debug endpoints reading while the owner
// appends, not against concurrent writers.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
	updated  time.Time
}

// NewConversation creates a conversation seeded with the given system prompt.
// An empty prompt yields an empty conversation.
func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{updated: time.Now().UTC()}
	if systemPrompt != "" {
		c.messages = append(c.messages, SystemMessage(systemPrompt))
	}
	return c
}

// Append adds messages to the end of the history in argument order.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
	c.updated = time.Now().UTC()
}

// Messages returns a copy of the full history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message and whether one exists.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Updated returns the time of the last append or reset.
func (c *Conversation) Updated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// Reset discards the history and reinstalls the system prompt. This is the
// only operation allowed to remove the leading system message.
func (c *Conversation) Reset(systemPrompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = c.messages[:0]
	if systemPrompt != "" {
		c.messages = append(c.messages, SystemMessage(systemPrompt))
	}
	c.updated = time.Now().UTC()
}
