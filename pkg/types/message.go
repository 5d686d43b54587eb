package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a conversation message.
type Role int

const (
	// RoleDirective is the engine-internal role for the instruction seeded
	// into every new conversation. It maps to the completion service's
	// "system" role on the wire.
	RoleDirective Role = iota
	// RoleUser is input provided by the user.
	RoleUser
	// RoleAssistant is a summary of a completion result.
	RoleAssistant
)

const (
	roleDirectiveStr = "directive"
	roleUserStr      = "user"
	roleAssistantStr = "assistant"
)

// String returns the persisted name of the role.
func (r Role) String() string {
	switch r {
	case RoleDirective:
		return roleDirectiveStr
	case RoleUser:
		return roleUserStr
	case RoleAssistant:
		return roleAssistantStr
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole converts a persisted name into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case roleDirectiveStr:
		return RoleDirective, nil
	case roleUserStr:
		return RoleUser, nil
	case roleAssistantStr:
		return RoleAssistant, nil
	}
	return RoleDirective, fmt.Errorf("unknown message role %q", s)
}

// MarshalJSON encodes the role as its persisted name.
func (r Role) MarshalJSON() ([]byte, error) {
	switch r {
	case RoleDirective, RoleUser, RoleAssistant:
		return json.Marshal(r.String())
	}
	return nil, fmt.Errorf("cannot encode invalid message role %d", int(r))
}

// UnmarshalJSON decodes a persisted name, rejecting unknown values.
func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Message is a single conversation turn. A message is owned by exactly one
// conversation and is never shared between sessions.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// WireMessage is the outbound shape sent to the completion service.
// The directive role is remapped to "system" before it reaches the wire.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
