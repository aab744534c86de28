package chain

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// Condition guards a branch arm or an agent node.
type Condition struct {
	Input *InputCondition `json:"input,omitempty"`
}

// InputCondition constrains the runtime input. All present constraints must hold.
type InputCondition struct {
	IsJSON      *bool       `json:"is_json,omitempty"`
	JSONMatches JSONMatches `json:"json_matches,omitempty"`
}

// JSONMatch requires the value at Pointer to equal Value.
type JSONMatch struct {
	Pointer string `json:"pointer"`
	Value   any    `json:"value"`
}

// JSONMatches decodes from a single match object or a list of them.
type JSONMatches []JSONMatch

func (m *JSONMatches) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var one JSONMatch
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*m = JSONMatches{one}
		return nil
	}
	var many []JSONMatch
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*m = many
	return nil
}

// Matches evaluates the condition against the input.
// A condition without an input section never matches.
func (c Condition) Matches(in Input) bool {
	if c.Input == nil {
		return false
	}
	return c.Input.Matches(in)
}

// Matches evaluates the input constraints.
func (ic *InputCondition) Matches(in Input) bool {
	if ic.IsJSON != nil && *ic.IsJSON != in.IsJSON() {
		return false
	}
	if ic.JSONMatches == nil {
		return true
	}

	doc, ok := in.JSON()
	if !ok {
		return false
	}
	for _, m := range ic.JSONMatches {
		if !m.matches(doc) {
			return false
		}
	}
	return true
}

func (m JSONMatch) matches(doc any) bool {
	ptr, err := jsonpointer.New(m.Pointer)
	if err != nil {
		return false
	}
	got, _, err := ptr.Get(doc)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(got, m.Value)
}

// String renders the condition for humans, e.g. `/category == 1`.
func (c Condition) String() string {
	if c.Input == nil {
		return "never"
	}
	var parts []string
	if c.Input.IsJSON != nil {
		if *c.Input.IsJSON {
			parts = append(parts, "is json")
		} else {
			parts = append(parts, "is text")
		}
	}
	for _, m := range c.Input.JSONMatches {
		v, err := json.Marshal(m.Value)
		if err != nil {
			v = []byte("?")
		}
		parts = append(parts, m.Pointer+" == "+string(v))
	}
	if len(parts) == 0 {
		return "always"
	}
	return strings.Join(parts, " and ")
}
