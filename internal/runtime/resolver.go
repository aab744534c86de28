package runtime

import (
	"context"

	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/delegation"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/store"
)

// AgentResolver resolves chain references against the agent repository.
type AgentResolver struct {
	agents *store.AgentRepo
}

var _ delegation.Resolver = (*AgentResolver)(nil)

// NewAgentResolver creates a resolver over agents.
func NewAgentResolver(agents *store.AgentRepo) *AgentResolver {
	return &AgentResolver{agents: agents}
}

func (r *AgentResolver) AgentByUID(ctx context.Context, uid string) (*domain.Agent, error) {
	return r.agents.GetByUID(ctx, uid)
}

// Resolve returns base for a self reference. Name references pick the first
// agent with that name in storage order.
func (r *AgentResolver) Resolve(ctx context.Context, base *domain.Agent, ref chain.AgentRef) (*domain.Agent, error) {
	switch ref.Kind {
	case chain.RefID:
		return r.agents.Get(ctx, ref.ID)
	case chain.RefUID:
		return r.agents.GetByUID(ctx, ref.UID)
	case chain.RefName:
		return r.agents.FirstByName(ctx, ref.Name)
	default:
		return base, nil
	}
}
