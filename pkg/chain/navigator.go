package chain

// GetElement returns the element addressed by cur.
// It returns false as soon as an index is out of range for its container.
// Agent nodes have no children, and the empty cursor addresses nothing.
func GetElement(c *Chain, cur Cursor) (Element, bool) {
	if c == nil || len(cur) == 0 {
		return nil, false
	}

	var el Element
	for i, idx := range cur {
		if idx < 0 {
			return nil, false
		}
		if i == 0 {
			if idx >= len(c.Nodes) {
				return nil, false
			}
			el = c.Nodes[idx]
			continue
		}
		switch parent := el.(type) {
		case *BranchNode:
			if idx >= len(parent.Arms) {
				return nil, false
			}
			el = &parent.Arms[idx]
		case *Arm:
			if idx >= len(parent.Nodes) {
				return nil, false
			}
			el = parent.Nodes[idx]
		default:
			return nil, false
		}
	}
	return el, true
}

// AgentNodeAt returns the agent node addressed by cur, if any.
func AgentNodeAt(c *Chain, cur Cursor) (*AgentNode, bool) {
	el, ok := GetElement(c, cur)
	if !ok {
		return nil, false
	}
	n, ok := el.(*AgentNode)
	return n, ok
}

// Advance returns the address of the node that follows cur, without ever
// drilling into branch arms. From the empty cursor it returns the first root
// node. Once an arm is exhausted the walk climbs back to the owning branch
// and continues with the branch's next sibling, never with the next arm.
func Advance(c *Chain, cur Cursor) (Cursor, bool) {
	if c == nil {
		return nil, false
	}
	if len(cur) == 0 {
		if len(c.Nodes) == 0 {
			return nil, false
		}
		return Cursor{0}, true
	}

	cur = cur.Clone()
	// ascended is true when cur was just reached by climbing out of an
	// exhausted container, so it already addresses a fresh sibling.
	ascended := false
	for len(cur) > 0 {
		el, ok := GetElement(c, cur)
		if !ok {
			if cur, ok = cur.PopAndInc(); !ok {
				return nil, false
			}
			ascended = true
			continue
		}

		if _, isArm := el.(*Arm); isArm {
			cur = cur.Pop()
			ascended = false
			continue
		}

		if ascended {
			return cur, true
		}
		cur = cur.IncLast()
		if _, ok := GetElement(c, cur); ok {
			return cur, true
		}
	}
	return nil, false
}

// NextAgentCursor returns the cursor of the next agent node to run after cur
// for the given input. Branches select their first matching arm, in
// declaration order, and the walk lands on that arm's first node without
// advancing. A branch with no matching arm contributes nothing. Agent nodes
// whose activation condition rejects the input are skipped.
// It returns false when the chain has no further agent node.
func NextAgentCursor(c *Chain, cur Cursor, in Input) (Cursor, bool) {
	next, ok := Advance(c, cur)
	for ok {
		el, found := GetElement(c, next)
		if !found {
			// an empty arm was entered
			next, ok = Advance(c, next)
			continue
		}

		switch n := el.(type) {
		case *AgentNode:
			if n.Activates(in) {
				return next, true
			}
		case *BranchNode:
			if arm := n.SelectArm(in); arm >= 0 {
				next = next.Push(arm, 0)
				continue
			}
		}
		next, ok = Advance(c, next)
	}
	return nil, false
}

// SelectArm returns the index of the first arm whose condition matches in,
// or -1 when none does.
func (b *BranchNode) SelectArm(in Input) int {
	for i := range b.Arms {
		if b.Arms[i].Cond.Matches(in) {
			return i
		}
	}
	return -1
}
