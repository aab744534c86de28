package delegation

import (
	"context"
	"fmt"

	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/domain"
)

// DefaultMaxIterations bounds ComputeNext against cyclic or malformed chains.
const DefaultMaxIterations = 10

// Resolver looks up the agents a chain refers to.
type Resolver interface {
	// AgentByUID returns the agent owning a stack item.
	AgentByUID(ctx context.Context, uid string) (*domain.Agent, error)
	// Resolve turns a reference found in base's chain into a concrete agent.
	Resolve(ctx context.Context, base *domain.Agent, ref chain.AgentRef) (*domain.Agent, error)
}

type options struct {
	maxIterations int
}

// Option configures ComputeNext.
type Option func(*options)

// WithMaxIterations overrides DefaultMaxIterations.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// ComputeNext advances the stack for the given input.
//
// Each iteration pops the top item and walks its agent's chain to the next
// agent node. A node pointing back at the same agent pushes one resumption
// point and stops. A node pointing at a different agent pushes the caller's
// resumption point and then the callee at the start of its chain, and the
// loop continues so the callee's chain is evaluated against the same input.
// An exhausted item is dropped and the loop tries the one below it.
//
// The returned stack is empty when the whole walk is finished; otherwise its
// top item addresses the next agent to run. The input stack is not modified.
func ComputeNext(ctx context.Context, stack *Stack, in chain.Input, r Resolver, opts ...Option) (*Stack, error) {
	o := options{maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&o)
	}

	next := stack.Clone()
	for i := 0; i < o.maxIterations; i++ {
		item, ok := next.Pop()
		if !ok {
			return next, nil
		}

		agent, err := r.AgentByUID(ctx, item.AgentUID)
		if err != nil {
			return nil, err
		}
		c, err := chain.ForAgent(agent)
		if err != nil {
			return nil, err
		}

		cur, ok := chain.NextAgentCursor(c, item.Cursor, in)
		if !ok {
			continue
		}
		node, _ := chain.AgentNodeAt(c, cur)

		target, err := r.Resolve(ctx, agent, node.Agent)
		if err != nil {
			return nil, err
		}

		next.Push(Item{AgentUID: agent.UID, Cursor: cur})
		if target.UID == agent.UID {
			return next, nil
		}
		next.Push(NewItemAtStart(target.UID))
	}

	if next.IsEmpty() {
		return next, nil
	}
	top, _ := next.Peek()
	return nil, fmt.Errorf("%w: %d iterations, last agent '%s'", domain.ErrStackLimit, o.maxIterations, top.AgentUID)
}
