package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStateJSONRoundTrip(t *testing.T) {
	for _, s := range []State{StateIdle, StateAwaitingClarification, StateAwaitingFeedback, StateFinalized} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var back State
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != s {
			t.Errorf("round trip mismatch: got %v, want %v", back, s)
		}
	}
}

func TestStateRejectsUnknownValue(t *testing.T) {
	var s State
	if err := json.Unmarshal([]byte(`"paused"`), &s); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestRoleRejectsUnknownValue(t *testing.T) {
	var r Role
	if err := json.Unmarshal([]byte(`"system"`), &r); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestNewSessionSeedsDirective(t *testing.T) {
	now := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	s := NewSession("2026-01-20", "plan the day", now)

	if s.State != StateIdle {
		t.Errorf("new session state = %v, want idle", s.State)
	}
	if s.Conversation.Len() != 1 {
		t.Fatalf("conversation length = %d, want 1", s.Conversation.Len())
	}
	if s.Conversation.Messages[0].Role != RoleDirective {
		t.Errorf("first message role = %v, want directive", s.Conversation.Messages[0].Role)
	}
	if !s.Metadata.LastUpdated.Equal(s.Metadata.CreatedAt) {
		t.Error("new session timestamps should match")
	}
}

func TestRepairTimestamps(t *testing.T) {
	now := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	s := NewSession("2026-01-20", "d", now)

	if s.RepairTimestamps() {
		t.Error("consistent timestamps should not be repaired")
	}

	s.Metadata.LastUpdated = now.Add(-time.Hour)
	if !s.RepairTimestamps() {
		t.Error("expected repair of inverted timestamps")
	}
	if !s.Metadata.LastUpdated.Equal(s.Metadata.CreatedAt) {
		t.Errorf("last_updated = %v, want %v", s.Metadata.LastUpdated, s.Metadata.CreatedAt)
	}
}

func TestTouchClampsToCreatedAt(t *testing.T) {
	now := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	s := NewSession("2026-01-20", "d", now)

	s.Touch(now.Add(-time.Minute))
	if !s.Metadata.LastUpdated.Equal(s.Metadata.CreatedAt) {
		t.Error("touch with a lagging clock should clamp to created_at")
	}

	later := now.Add(time.Minute)
	s.Touch(later)
	if !s.Metadata.LastUpdated.Equal(later) {
		t.Errorf("last_updated = %v, want %v", s.Metadata.LastUpdated, later)
	}
}

func TestConversationWireFormatRemapsDirective(t *testing.T) {
	now := time.Now()
	var c Conversation
	c.Append(RoleDirective, "instructions", now)
	c.Append(RoleUser, "hello", now)
	c.Append(RoleAssistant, "hi", now)

	wire := c.WireFormat()
	if len(wire) != 3 {
		t.Fatalf("wire length = %d, want 3", len(wire))
	}
	if wire[0].Role != "system" {
		t.Errorf("directive mapped to %q, want system", wire[0].Role)
	}
	if wire[1].Role != "user" || wire[2].Role != "assistant" {
		t.Errorf("unexpected roles: %q, %q", wire[1].Role, wire[2].Role)
	}
}

func TestConversationRecent(t *testing.T) {
	now := time.Now()
	var c Conversation
	for i := 0; i < 5; i++ {
		c.Append(RoleUser, "m", now)
	}

	if got := len(c.Recent(2)); got != 2 {
		t.Errorf("Recent(2) length = %d, want 2", got)
	}
	if got := len(c.Recent(0)); got != 5 {
		t.Errorf("Recent(0) length = %d, want 5 (full history)", got)
	}
	if got := len(c.Recent(10)); got != 5 {
		t.Errorf("Recent(10) length = %d, want 5", got)
	}
}

func TestConversationResetKeepsDirective(t *testing.T) {
	now := time.Now()
	var c Conversation
	c.Append(RoleDirective, "instructions", now)
	c.Append(RoleUser, "hello", now)
	c.Append(RoleAssistant, "hi", now)

	c.Reset(true)
	if c.Len() != 1 || c.Messages[0].Role != RoleDirective {
		t.Errorf("reset kept %d messages, want only the directive", c.Len())
	}

	c.Reset(false)
	if c.Len() != 0 {
		t.Errorf("full reset kept %d messages", c.Len())
	}
}

func TestScheduleItemDuration(t *testing.T) {
	tests := []struct {
		item ScheduleItem
		want int
	}{
		{ScheduleItem{Time: "09:00-10:30", Task: "deep work"}, 90},
		{ScheduleItem{Time: "09:00-10:00", Task: "x", DurationMinutes: 45}, 45},
		{ScheduleItem{Time: "bogus", Task: "x"}, 0},
		{ScheduleItem{Time: "10:00-09:00", Task: "inverted"}, 0},
	}
	for _, tt := range tests {
		if got := tt.item.Duration(); got != tt.want {
			t.Errorf("Duration(%q) = %d, want %d", tt.item.Time, got, tt.want)
		}
	}
}

func TestPlanTotalMinutes(t *testing.T) {
	p := Plan{Schedule: []ScheduleItem{
		{Time: "09:00-10:00", Task: "a"},
		{Time: "10:00-10:30", Task: "b"},
	}}
	if got := p.TotalMinutes(); got != 90 {
		t.Errorf("TotalMinutes = %d, want 90", got)
	}
}
