package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
)

// State is the JSON object threaded through a workflow run.
type State map[string]any

// ParseState decodes a JSON object into a State.
func ParseState(data []byte) (State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if state == nil {
		state = State{}
	}
	return state, nil
}

// Clone returns a copy of the top-level mapping.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge adds or overwrites the keys of update and returns them sorted. Keys absent from
// update are never removed.
func (s State) Merge(update map[string]any) []string {
	keys := make([]string, 0, len(update))
	for k, v := range update {
		s[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSON serializes the state for a step request.
func (s State) JSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("serialize state: %w", err)
	}
	return string(data), nil
}
