package store

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// ConvRepo persists conversations.
type ConvRepo struct {
	*base
}

func (r *ConvRepo) Create(ctx context.Context, agentID int64, title string) (int64, error) {
	return r.create(ctx, ports.TableConv, ports.Row{
		"uid":        newUID(),
		"agent_id":   agentID,
		"title":      nullable(title),
		"work_tnew":  nil,
		"work_tdone": nil,
	})
}

func (r *ConvRepo) Get(ctx context.Context, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.get(ctx, ports.TableConv, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConvRepo) List(ctx context.Context) ([]*domain.Conversation, error) {
	rows, err := r.rows.List(ctx, ports.TableConv, nil, ports.ListOptions{})
	if err != nil {
		return nil, wrap(err, "list convs")
	}
	return decodeRows[domain.Conversation](rows)
}

// TouchWorkNew records that new work was requested for the conversation.
func (r *ConvRepo) TouchWorkNew(ctx context.Context, id int64) error {
	return r.update(ctx, ports.TableConv, id, ports.Row{"work_tnew": r.stamp()})
}

// TouchWorkDone records that the conversation has no work left.
func (r *ConvRepo) TouchWorkDone(ctx context.Context, id int64) error {
	return r.update(ctx, ports.TableConv, id, ports.Row{"work_tdone": r.stamp()})
}
