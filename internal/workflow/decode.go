package workflow

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotObject is reported when a response parses as JSON but is not an object.
var ErrNotObject = errors.New("response is not a JSON object")

// Decoded is the outcome of decoding a step response. Err is set when the response is
// not a usable state update.
type Decoded struct {
	Update map[string]any
	Raw    string
	Err    error
}

// OK reports whether the response carried an update.
func (d Decoded) OK() bool {
	return d.Err == nil
}

// DecodeUpdate parses raw as a JSON object. A single surrounding markdown code fence is
// tolerated.
func DecodeUpdate(raw string) Decoded {
	body := stripFence(strings.TrimSpace(raw))

	var value any
	if err := json.Unmarshal([]byte(body), &value); err != nil {
		return Decoded{Raw: raw, Err: err}
	}
	update, ok := value.(map[string]any)
	if !ok {
		return Decoded{Raw: raw, Err: ErrNotObject}
	}
	return Decoded{Update: update, Raw: raw}
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(s, "```")
	newline := strings.IndexByte(inner, '\n')
	if newline < 0 {
		return s
	}
	// Drop the opening fence and its optional language tag.
	return strings.TrimSpace(inner[newline+1:])
}
