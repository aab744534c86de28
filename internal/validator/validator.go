// Package validator checks agent chains before they are run.
package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/delegation"
	"github.com/aretw0/tendril/pkg/domain"
)

// ValidateChain checks the chain of start and of every agent reachable from
// it. Reported problems are references that do not resolve, chains that do
// not parse, agents without a model and branch arms that can never match.
func ValidateChain(ctx context.Context, start *domain.Agent, r delegation.Resolver) error {
	visited := make(map[string]bool)
	queue := []*domain.Agent{start}

	var problems []string

	for len(queue) > 0 {
		agent := queue[0]
		queue = queue[1:]

		if visited[agent.UID] {
			continue
		}
		visited[agent.UID] = true

		if agent.Model == "" {
			problems = append(problems, fmt.Sprintf("agent '%s': no model", agent.UID))
		}

		c, err := chain.ForAgent(agent)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}

		c.Walk(func(cur chain.Cursor, n chain.Node) bool {
			switch n := n.(type) {
			case *chain.AgentNode:
				target, err := r.Resolve(ctx, agent, n.Agent)
				if err != nil {
					problems = append(problems, fmt.Sprintf("agent '%s' at %s: reference %s: %v", agent.UID, cur, n.Agent, err))
					return true
				}
				if !visited[target.UID] {
					queue = append(queue, target)
				}
			case *chain.BranchNode:
				if len(n.Arms) == 0 {
					problems = append(problems, fmt.Sprintf("agent '%s' at %s: branch has no arms", agent.UID, cur))
				}
				for i, arm := range n.Arms {
					if arm.Cond.Input == nil {
						problems = append(problems, fmt.Sprintf("agent '%s' at %s: arm %d never matches", agent.UID, cur, i))
					}
				}
			}
			return ctx.Err() == nil
		})

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}
