package state

import (
	"encoding/json"
	"fmt"
)

// Serialize encodes a session state as self-describing JSON. Timestamps are
// rendered as RFC 3339 absolute-time strings by encoding/json. The encoding
// round-trips every field: Deserialize(Serialize(s)) preserves idea_id,
// message count and order, and every enumerated value exactly.
func Serialize(s *State) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), nil
}

// Deserialize reconstructs a session state from its serialized form. Dates
// present in the input become first-class time values; absent dates stay
// absent rather than raising an error (CreatedAt/UpdatedAt and per-message
// CreatedAt are pointers for exactly this reason).
func Deserialize(text string) (*State, error) {
	var s State
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	return &s, nil
}
