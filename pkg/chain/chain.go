package chain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/tidwall/jsonc"
)

// Element is anything a Cursor can address: a Node or an Arm.
type Element interface {
	element()
}

// Node is an entry of a chain or of an arm: *AgentNode or *BranchNode.
type Node interface {
	Element
	node()
}

// Chain is the parsed, immutable workflow attached to an agent.
type Chain struct {
	Nodes []Node
}

// AgentNode invokes an agent.
// When is optional. A nil When always activates.
type AgentNode struct {
	Agent      AgentRef
	NameInput  string
	NameOutput string
	When       *Condition
}

// BranchNode forks the walk into exactly one of its arms.
type BranchNode struct {
	Arms []Arm
}

// Arm is one conditional path of a BranchNode.
type Arm struct {
	Cond  Condition
	Nodes []Node
}

func (*AgentNode) element() {}
func (*AgentNode) node() {}
func (*BranchNode) element() {}
func (*BranchNode) node() {}
func (*Arm) element() {}

// Activates reports whether the node should run for the given input.
func (n *AgentNode) Activates(in Input) bool {
	if n.When == nil {
		return true
	}
	return n.When.Matches(in)
}

// Default returns the chain used by agents that define none: a single call
// to the agent itself.
func Default() *Chain {
	return &Chain{Nodes: []Node{&AgentNode{Agent: Self()}}}
}

// Parse decodes a chain definition. Comments and trailing commas are accepted.
func Parse(data []byte) (*Chain, error) {
	var c Chain
	if err := json.Unmarshal(jsonc.ToJSON(data), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChainParse, err)
	}
	return &c, nil
}

// ForAgent returns the agent's chain, or Default when the agent has none.
func ForAgent(a *domain.Agent) (*Chain, error) {
	if strings.TrimSpace(a.Chain) == "" {
		return Default(), nil
	}
	c, err := Parse([]byte(a.Chain))
	if err != nil {
		return nil, fmt.Errorf("agent '%s': %w", a.UID, err)
	}
	return c, nil
}

// Walk calls fn for every node in pre-order together with its cursor.
// Returning false from fn stops the walk.
func (c *Chain) Walk(fn func(cur Cursor, n Node) bool) {
	walkNodes(c.Nodes, nil, fn)
}

func walkNodes(nodes []Node, prefix Cursor, fn func(Cursor, Node) bool) bool {
	for i, n := range nodes {
		cur := prefix.Push(i)
		if !fn(cur, n) {
			return false
		}
		b, ok := n.(*BranchNode)
		if !ok {
			continue
		}
		for ai := range b.Arms {
			if !walkNodes(b.Arms[ai].Nodes, cur.Push(ai), fn) {
				return false
			}
		}
	}
	return true
}
