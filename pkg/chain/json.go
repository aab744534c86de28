package chain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type chainJSON struct {
	Nodes []json.RawMessage `json:"nodes"`
}

type nodeJSON struct {
	Agent      *AgentRef         `json:"agent"`
	NameInput  string            `json:"name_input"`
	NameOutput string            `json:"name_output"`
	When       *Condition        `json:"when"`
	Branch     []json.RawMessage `json:"branch"`
}

type armJSON struct {
	Cond  Condition         `json:"cond"`
	Nodes []json.RawMessage `json:"nodes"`
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var raw chainJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	nodes, err := decodeNodes(raw.Nodes)
	if err != nil {
		return err
	}
	c.Nodes = nodes
	return nil
}

func decodeNodes(raws []json.RawMessage) ([]Node, error) {
	nodes := make([]Node, 0, len(raws))
	for i, raw := range raws {
		n, err := decodeNode(raw)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func decodeNode(raw json.RawMessage) (Node, error) {
	var nj nodeJSON
	if err := json.Unmarshal(raw, &nj); err != nil {
		return nil, err
	}

	if nj.Branch != nil {
		if nj.Agent != nil {
			return nil, errors.New("node cannot be both an agent and a branch")
		}
		b := &BranchNode{Arms: make([]Arm, 0, len(nj.Branch))}
		for ai, rawArm := range nj.Branch {
			var aj armJSON
			if err := json.Unmarshal(rawArm, &aj); err != nil {
				return nil, fmt.Errorf("arm %d: %w", ai, err)
			}
			armNodes, err := decodeNodes(aj.Nodes)
			if err != nil {
				return nil, fmt.Errorf("arm %d: %w", ai, err)
			}
			b.Arms = append(b.Arms, Arm{Cond: aj.Cond, Nodes: armNodes})
		}
		return b, nil
	}

	n := &AgentNode{
		Agent:      Self(),
		NameInput:  nj.NameInput,
		NameOutput: nj.NameOutput,
		When:       nj.When,
	}
	if nj.Agent != nil {
		n.Agent = *nj.Agent
	}
	return n, nil
}
