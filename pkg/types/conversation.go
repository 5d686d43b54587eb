package types

import "time"

// Conversation is an append-only log of turns. Entries are never reordered
// or removed individually; Reset is the only bulk operation and exists for
// explicit caller-driven restarts. Length is unbounded here; callers bound
// the context sent to the completion service with Recent.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// Append adds a message to the end of the log.
func (c *Conversation) Append(role Role, content string, at time.Time) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content, Timestamp: at})
}

// Recent returns the last n messages. The returned slice aliases the log and
// must not be mutated. n <= 0 or n >= len returns the whole log.
func (c *Conversation) Recent(n int) []Message {
	if n <= 0 || n >= len(c.Messages) {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// Len reports the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// WireFormat converts messages to the completion service shape, remapping
// the engine-internal directive role to "system".
func (c *Conversation) WireFormat() []WireMessage {
	return WireFormat(c.Messages)
}

// WireFormat converts an arbitrary message window to the completion service
// shape. Used with Recent when the caller bounds the outgoing context.
func WireFormat(messages []Message) []WireMessage {
	out := make([]WireMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role.String()
		if m.Role == RoleDirective {
			role = "system"
		}
		out = append(out, WireMessage{Role: role, Content: m.Content})
	}
	return out
}

// Reset clears the log. With keepDirective, directive messages survive so a
// restarted conversation keeps its seeded instruction.
func (c *Conversation) Reset(keepDirective bool) {
	if !keepDirective {
		c.Messages = nil
		return
	}
	kept := c.Messages[:0]
	for _, m := range c.Messages {
		if m.Role == RoleDirective {
			kept = append(kept, m)
		}
	}
	c.Messages = kept
}
