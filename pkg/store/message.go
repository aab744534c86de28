package store

import (
	"context"
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// MessageRepo persists conversation messages. It is the ports.AnswerSink
// used by the runtime.
type MessageRepo struct {
	*base
}

var _ ports.AnswerSink = (*MessageRepo)(nil)

// CreateUserMsg appends a user message to the conversation.
func (r *MessageRepo) CreateUserMsg(ctx context.Context, convID int64, content string) (int64, error) {
	return r.create(ctx, ports.TableMessage, ports.Row{
		"uid":         newUID(),
		"conv_id":     convID,
		"orig_msg_id": nil,
		"author_kind": string(domain.AuthorUser),
		"agent_id":    nil,
		"content":     content,
	})
}

// CreateAgentMsg appends an agent answer to the user message origMsgID.
func (r *MessageRepo) CreateAgentMsg(ctx context.Context, convID, origMsgID int64, agentID *int64, content string) (int64, error) {
	var agent any
	if agentID != nil {
		agent = *agentID
	}
	return r.create(ctx, ports.TableMessage, ports.Row{
		"uid":         newUID(),
		"conv_id":     convID,
		"orig_msg_id": origMsgID,
		"author_kind": string(domain.AuthorAgent),
		"agent_id":    agent,
		"content":     content,
	})
}

// RecordAnswer stores text as the agent answer to the step's originating message.
func (r *MessageRepo) RecordAnswer(ctx context.Context, step *domain.Step, text string) (*domain.Message, error) {
	orig, err := r.Get(ctx, step.OrigMsgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load original message: %w", err)
	}
	id, err := r.CreateAgentMsg(ctx, orig.ConvID, orig.ID, nil, text)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *MessageRepo) Get(ctx context.Context, id int64) (*domain.Message, error) {
	var m domain.Message
	if err := r.get(ctx, ports.TableMessage, id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListForConv returns the conversation messages in creation order.
func (r *MessageRepo) ListForConv(ctx context.Context, convID int64) ([]*domain.Message, error) {
	rows, err := r.rows.List(ctx, ports.TableMessage, ports.Filter{ports.Eq("conv_id", convID)}, ports.ListOptions{})
	if err != nil {
		return nil, wrap(err, "list messages for conv %d", convID)
	}
	return decodeRows[domain.Message](rows)
}

// AnswerFor returns the agent answer to the user message origMsgID, if any.
func (r *MessageRepo) AnswerFor(ctx context.Context, origMsgID int64) (*domain.Message, error) {
	row, err := r.rows.First(ctx, ports.TableMessage, ports.Filter{
		ports.Eq("orig_msg_id", origMsgID),
		ports.Eq("author_kind", string(domain.AuthorAgent)),
	}, ports.ListOptions{})
	if err != nil {
		return nil, wrap(err, "get answer for message %d", origMsgID)
	}
	var m domain.Message
	if err := decodeRow(row, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
