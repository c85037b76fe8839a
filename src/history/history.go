// Package history owns the conversation turns replayed to the AI backend as
// context. All mutation goes through Append and Clear.
package history

import (
	"fmt"
	"sync"
)

// Role identifies who produced a turn.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if r != RoleUser && r != RoleAssistant {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "user":
		*r = RoleUser
	case "assistant":
		*r = RoleAssistant
	default:
		return fmt.Errorf("invalid role %q", string(b))
	}
	return nil
}

// Turn is one message of the conversation. Turns are values and are never
// modified after they are appended.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Store is the process-lifetime conversation history.
type Store struct {
	mu    sync.Mutex
	turns []Turn
}

func New() *Store {
	return &Store{}
}

// Append adds a user turn followed by an assistant turn in one critical
// section, so readers never observe half a pair.
func (s *Store) Append(userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns,
		Turn{Role: RoleUser, Text: userText},
		Turn{Role: RoleAssistant, Text: assistantText},
	)
}

// Snapshot returns a copy of the history as of the call.
func (s *Store) Snapshot() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return nil
	}
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Clear drops every turn. Appends that completed before Clear are gone;
// appends that complete after it are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
