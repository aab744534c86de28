package chain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor is an index path into a chain. It is a value type: every method
// that changes the path returns a new Cursor and leaves the receiver intact.
type Cursor []int

// Clone returns an independent copy of the cursor.
func (c Cursor) Clone() Cursor {
	if c == nil {
		return nil
	}
	out := make(Cursor, len(c))
	copy(out, c)
	return out
}

// Equal reports whether both cursors address the same location.
func (c Cursor) Equal(other Cursor) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Push returns the cursor extended with idxs.
func (c Cursor) Push(idxs ...int) Cursor {
	out := make(Cursor, len(c), len(c)+len(idxs))
	copy(out, c)
	return append(out, idxs...)
}

// Pop returns the cursor without its last index.
func (c Cursor) Pop() Cursor {
	if len(c) == 0 {
		return Cursor{}
	}
	return c[:len(c)-1].Clone()
}

// IncLast returns the cursor with its last index incremented.
func (c Cursor) IncLast() Cursor {
	out := c.Clone()
	if len(out) > 0 {
		out[len(out)-1]++
	}
	return out
}

// PopAndInc drops the last index and increments the new last one.
// It returns false when nothing is left to increment.
func (c Cursor) PopAndInc() (Cursor, bool) {
	if len(c) < 2 {
		return nil, false
	}
	return c.Pop().IncLast(), true
}

func (c Cursor) String() string {
	parts := make([]string, len(c))
	for i, idx := range c {
		parts[i] = fmt.Sprint(idx)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

type cursorJSON struct {
	Idxs []int `json:"idxs"`
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	idxs := []int(c)
	if idxs == nil {
		idxs = []int{}
	}
	return json.Marshal(cursorJSON{Idxs: idxs})
}

func (c *Cursor) UnmarshalJSON(data []byte) error {
	var cj cursorJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	for _, idx := range cj.Idxs {
		if idx < 0 {
			return fmt.Errorf("cursor index cannot be negative: %d", idx)
		}
	}
	*c = Cursor(cj.Idxs)
	if *c == nil {
		*c = Cursor{}
	}
	return nil
}
