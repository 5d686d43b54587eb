// Package types provides the persisted and wire-level data types for the
// dayplan session engine.
package types

import "time"

// SchemaVersion is written into new session files and reserved for future
// migrations.
const SchemaVersion = "2.0"

// Metadata tracks session identity and usage counters.
type Metadata struct {
	// ID is the session identifier, a YYYY-MM-DD date by convention.
	ID                  string    `json:"id"`
	CreatedAt           time.Time `json:"created_at"`
	LastUpdated         time.Time `json:"last_updated"`
	SchemaVersion       string    `json:"schema_version"`
	CompletionCallCount int       `json:"completion_call_count"`
	UserTurnCount       int       `json:"user_turn_count"`
}

// QuestionAnswer is one pending clarifying question and its answer, if any.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Session is the aggregate persisted once per session id. Only the session
// orchestrator mutates it in memory; the store serializes and deserializes
// it and repairs timestamps, nothing more.
type Session struct {
	Metadata         Metadata         `json:"metadata"`
	State            State            `json:"state"`
	Plan             *Plan            `json:"plan"`
	PendingQuestions []QuestionAnswer `json:"pending_questions"`
	Conversation     Conversation     `json:"conversation"`
}

// NewSession creates a fresh idle session seeded with the directive message,
// so the conversation is never empty once a session exists.
func NewSession(id, directive string, now time.Time) *Session {
	s := &Session{
		Metadata: Metadata{
			ID:            id,
			CreatedAt:     now,
			LastUpdated:   now,
			SchemaVersion: SchemaVersion,
		},
		State: StateIdle,
	}
	s.Conversation.Append(RoleDirective, directive, now)
	return s
}

// Touch advances last_updated, clamping to created_at if the supplied clock
// runs behind it.
func (s *Session) Touch(now time.Time) {
	if now.Before(s.Metadata.CreatedAt) {
		s.Metadata.LastUpdated = s.Metadata.CreatedAt
		return
	}
	s.Metadata.LastUpdated = now
}

// RepairTimestamps enforces last_updated >= created_at. It reports whether a
// violation was corrected.
func (s *Session) RepairTimestamps() bool {
	if s.Metadata.LastUpdated.Before(s.Metadata.CreatedAt) {
		s.Metadata.LastUpdated = s.Metadata.CreatedAt
		return true
	}
	return false
}

// StructuredResult is the schema the completion service is expected to
// return for every turn. It is interpreted and summarized, never stored in
// the conversation verbatim.
type StructuredResult struct {
	State     State    `json:"state"`
	Plan      *Plan    `json:"plan,omitempty"`
	Questions []string `json:"questions"`
}
