package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// StepRepo persists execution hops.
type StepRepo struct {
	*base
}

// ResolveEnd holds the outcome of a Resolve phase.
type ResolveEnd struct {
	CallStack string
	Model     string
	Closer    bool
}

// CreateFirstFromMsg creates the step that starts the traversal of a message.
// Its first_step_id points to itself.
func (r *StepRepo) CreateFirstFromMsg(ctx context.Context, msgID int64) (int64, error) {
	var msg domain.Message
	if err := r.get(ctx, ports.TableMessage, msgID, &msg); err != nil {
		return 0, err
	}

	id, err := r.create(ctx, ports.TableStep, ports.Row{
		"uid":           newUID(),
		"conv_id":       msg.ConvID,
		"orig_msg_id":   msgID,
		"first_step_id": nil,
		"prev_step_id":  nil,
		"closer":        false,
	})
	if err != nil {
		return 0, err
	}
	if err := r.update(ctx, ports.TableStep, id, ports.Row{"first_step_id": id}); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateNextFromStep creates the successor of prev, carrying its message and
// first step forward.
func (r *StepRepo) CreateNextFromStep(ctx context.Context, prev *domain.Step) (int64, error) {
	if prev.FirstStepID == nil {
		return 0, fmt.Errorf("%w: step %d has no first_step_id", domain.ErrPersistence, prev.ID)
	}
	return r.create(ctx, ports.TableStep, ports.Row{
		"uid":           newUID(),
		"conv_id":       prev.ConvID,
		"orig_msg_id":   prev.OrigMsgID,
		"first_step_id": *prev.FirstStepID,
		"prev_step_id":  prev.ID,
		"closer":        false,
	})
}

func (r *StepRepo) Get(ctx context.Context, id int64) (*domain.Step, error) {
	var s domain.Step
	if err := r.get(ctx, ports.TableStep, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StepRepo) UpdateResolveStart(ctx context.Context, id int64) error {
	return r.update(ctx, ports.TableStep, id, ports.Row{"resolve_tstart": r.stamp()})
}

func (r *StepRepo) UpdateResolveEnd(ctx context.Context, id int64, end ResolveEnd) error {
	return r.update(ctx, ports.TableStep, id, ports.Row{
		"call_stack":    end.CallStack,
		"resolve_model": nullable(end.Model),
		"closer":        end.Closer,
		"resolve_tend":  r.stamp(),
	})
}

func (r *StepRepo) UpdateRunStart(ctx context.Context, id int64) error {
	return r.update(ctx, ports.TableStep, id, ports.Row{"run_tstart": r.stamp()})
}

// UpdateRunEndOK records a successful agent run.
func (r *StepRepo) UpdateRunEndOK(ctx context.Context, id int64, out string, agent *domain.Agent) error {
	return r.update(ctx, ports.TableStep, id, ports.Row{
		"call_out":       out,
		"run_agent_uid":  agent.UID,
		"run_agent_name": agent.Name,
		"run_tend":       r.stamp(),
	})
}

// UpdateRunEndClosed records the end of a closer step.
func (r *StepRepo) UpdateRunEndClosed(ctx context.Context, id int64) error {
	return r.update(ctx, ports.TableStep, id, ports.Row{"run_tend": r.stamp()})
}

// UpdateRunEndFail records a failed run. Both run_tend and run_terr are set.
func (r *StepRepo) UpdateRunEndFail(ctx context.Context, id int64, runErr error) error {
	ts := r.stamp()
	return r.update(ctx, ports.TableStep, id, ports.Row{
		"call_err": runErr.Error(),
		"run_tend": ts,
		"run_terr": ts,
	})
}

// GetPrevStepCallOut returns the output of the step before s, or nil if that
// step produced none.
func (r *StepRepo) GetPrevStepCallOut(ctx context.Context, s *domain.Step) (*string, error) {
	if s.PrevStepID == nil {
		return nil, nil
	}
	prev, err := r.Get(ctx, *s.PrevStepID)
	if err != nil {
		return nil, err
	}
	return prev.CallOut, nil
}

// SeekNextToResolve returns the oldest step of the conversation whose
// Resolve has not completed, or domain.ErrNotFound. A step interrupted after
// resolve_tstart is returned again; Resolve only reads its predecessor.
func (r *StepRepo) SeekNextToResolve(ctx context.Context, convID int64) (*domain.Step, error) {
	return r.first(ctx, ports.Filter{
		ports.Eq("conv_id", convID),
		ports.IsNull("resolve_tend"),
	})
}

// SeekNextToRun returns the oldest resolved step of the conversation whose
// Run has neither ended nor failed, or domain.ErrNotFound. A step interrupted
// after run_tstart is returned again.
func (r *StepRepo) SeekNextToRun(ctx context.Context, convID int64) (*domain.Step, error) {
	return r.first(ctx, ports.Filter{
		ports.Eq("conv_id", convID),
		ports.NotNull("resolve_tend"),
		ports.IsNull("run_tend"),
		ports.IsNull("run_terr"),
	})
}

// ListForConv returns every step of the conversation in creation order.
func (r *StepRepo) ListForConv(ctx context.Context, convID int64) ([]*domain.Step, error) {
	rows, err := r.rows.List(ctx, ports.TableStep, ports.Filter{ports.Eq("conv_id", convID)}, ports.ListOptions{})
	if err != nil {
		return nil, wrap(err, "list steps for conv %d", convID)
	}
	return decodeRows[domain.Step](rows)
}

// ListForMsg returns the steps of one message traversal in creation order.
func (r *StepRepo) ListForMsg(ctx context.Context, origMsgID int64) ([]*domain.Step, error) {
	rows, err := r.rows.List(ctx, ports.TableStep, ports.Filter{ports.Eq("orig_msg_id", origMsgID)}, ports.ListOptions{})
	if err != nil {
		return nil, wrap(err, "list steps for message %d", origMsgID)
	}
	return decodeRows[domain.Step](rows)
}

// PendingConvIDs returns the conversations that have steps left to resolve
// or run, including steps interrupted mid-phase. Failed steps set run_tend
// and are not pending.
func (r *StepRepo) PendingConvIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.rows.List(ctx, ports.TableStep, ports.Filter{ports.IsNull("run_tend")}, ports.ListOptions{})
	if err != nil {
		return nil, wrap(err, "list pending steps")
	}
	steps, err := decodeRows[domain.Step](rows)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, s := range steps {
		if !seen[s.ConvID] {
			seen[s.ConvID] = true
			ids = append(ids, s.ConvID)
		}
	}
	return ids, nil
}

func (r *StepRepo) first(ctx context.Context, filter ports.Filter) (*domain.Step, error) {
	row, err := r.rows.First(ctx, ports.TableStep, filter, ports.ListOptions{})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, wrap(err, "seek step")
	}
	var s domain.Step
	if err := decodeRow(row, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
