package chain

import (
	"encoding/json"
	"strings"
)

// Input is the content flowing between chain hops: plain text or parsed JSON.
type Input struct {
	raw    string
	value  any
	isJSON bool
}

// ParseInput wraps raw text, parsing it as JSON when possible.
func ParseInput(raw string) Input {
	in := Input{raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return in
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		in.value = v
		in.isJSON = true
	}
	return in
}

// TextInput wraps raw text without attempting a JSON parse.
func TextInput(raw string) Input {
	return Input{raw: raw}
}

// IsJSON reports whether the input parsed as JSON.
func (in Input) IsJSON() bool { return in.isJSON }

// JSON returns the decoded value when the input is JSON.
func (in Input) JSON() (any, bool) { return in.value, in.isJSON }

// String returns the raw text the input was built from.
func (in Input) String() string { return in.raw }
