package graph

import (
	"github.com/aretw0/tendril/pkg/delegation"
	"github.com/aretw0/tendril/pkg/domain"
)

// OverlayFromSteps marks the positions of agentUID's chain recorded in the
// call stacks of steps. Current is the top of the last resolved stack when it
// belongs to agentUID. Steps whose stack cannot be parsed are skipped.
func OverlayFromSteps(agentUID string, steps []*domain.Step) *GraphOverlay {
	overlay := &GraphOverlay{}
	for _, step := range steps {
		if step.CallStack == nil {
			continue
		}
		stack, err := delegation.FromJSON(*step.CallStack)
		if err != nil {
			continue
		}

		overlay.Current = nil
		for _, item := range stack.Items {
			if item.AgentUID == agentUID && len(item.Cursor) > 0 {
				overlay.Visited = append(overlay.Visited, item.Cursor)
			}
		}
		if top, ok := stack.Peek(); ok && top.AgentUID == agentUID {
			overlay.Current = top.Cursor.Clone()
		}
	}
	return overlay
}
