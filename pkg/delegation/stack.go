// Package delegation implements the call stack that lets one agent's chain
// delegate to another agent's chain and resume afterwards.
package delegation

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/domain"
)

// Item is one pending resumption point: a position in one agent's chain.
type Item struct {
	AgentUID string       `json:"agent_uid"`
	Cursor   chain.Cursor `json:"cursor"`
}

// NewItemAtStart returns an item positioned before the agent's first node.
func NewItemAtStart(agentUID string) Item {
	return Item{AgentUID: agentUID, Cursor: chain.Cursor{}}
}

// Stack is a LIFO stack of Items. The last element of Items is the top.
// An empty stack means the walk is finished for the current input.
type Stack struct {
	Items []Item `json:"items"`
}

// NewAtAgent seeds a stack with a single item at the start of the agent's chain.
func NewAtAgent(agentUID string) *Stack {
	return &Stack{Items: []Item{NewItemAtStart(agentUID)}}
}

func (s *Stack) Push(item Item) {
	s.Items = append(s.Items, item)
}

// Pop removes and returns the top item.
func (s *Stack) Pop() (Item, bool) {
	if len(s.Items) == 0 {
		return Item{}, false
	}
	top := s.Items[len(s.Items)-1]
	s.Items = s.Items[:len(s.Items)-1]
	return top, true
}

// Peek returns the top item without removing it.
func (s *Stack) Peek() (Item, bool) {
	if len(s.Items) == 0 {
		return Item{}, false
	}
	return s.Items[len(s.Items)-1], true
}

func (s *Stack) Len() int { return len(s.Items) }

func (s *Stack) IsEmpty() bool { return len(s.Items) == 0 }

// Clone returns a deep copy of the stack.
func (s *Stack) Clone() *Stack {
	out := &Stack{Items: make([]Item, len(s.Items))}
	for i, it := range s.Items {
		out.Items[i] = Item{AgentUID: it.AgentUID, Cursor: it.Cursor.Clone()}
	}
	return out
}

// ToJSON serializes the stack into the persisted form.
func (s *Stack) ToJSON() (string, error) {
	items := s.Items
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(Stack{Items: items})
	if err != nil {
		return "", fmt.Errorf("failed to serialize stack: %w", err)
	}
	return string(data), nil
}

// FromJSON parses a persisted stack.
func FromJSON(data string) (*Stack, error) {
	var s Stack
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStackParse, err)
	}
	for i := range s.Items {
		if s.Items[i].Cursor == nil {
			s.Items[i].Cursor = chain.Cursor{}
		}
	}
	return &s, nil
}
