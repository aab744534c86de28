package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// AgentRepo persists agents.
type AgentRepo struct {
	*base
}

func agentRow(a domain.AgentForCreate) ports.Row {
	kind := a.Kind
	if kind == "" {
		kind = domain.AgentKindAI
	}
	format := a.OutFormat
	if format == "" {
		format = domain.OutFormatText
	}
	return ports.Row{
		"name":          a.Name,
		"kind":          string(kind),
		"desc":          nullable(a.Desc),
		"space_default": a.SpaceDefault,
		"provider":      nullable(a.Provider),
		"model":         nullable(a.Model),
		"inst":          nullable(a.Inst),
		"prompt_tmpl":   nullable(a.PromptTmpl),
		"chain":         nullable(a.Chain),
		"out_format":    string(format),
	}
}

// Create inserts an agent, generating a uid when none is given.
func (r *AgentRepo) Create(ctx context.Context, a domain.AgentForCreate) (int64, error) {
	row := agentRow(a)
	row["uid"] = a.UID
	if a.UID == "" {
		row["uid"] = newUID()
	}
	return r.create(ctx, ports.TableAgent, row)
}

// Update replaces the editable fields of an agent.
func (r *AgentRepo) Update(ctx context.Context, id int64, a domain.AgentForCreate) error {
	return r.update(ctx, ports.TableAgent, id, agentRow(a))
}

// Upsert creates the agent or updates the one with the same uid.
func (r *AgentRepo) Upsert(ctx context.Context, a domain.AgentForCreate) (int64, bool, error) {
	if a.UID != "" {
		existing, err := r.GetByUID(ctx, a.UID)
		if err == nil {
			return existing.ID, false, r.Update(ctx, existing.ID, a)
		}
		if !errors.Is(err, domain.ErrAgentNotFound) {
			return 0, false, err
		}
	}
	id, err := r.Create(ctx, a)
	return id, true, err
}

func (r *AgentRepo) Get(ctx context.Context, id int64) (*domain.Agent, error) {
	var a domain.Agent
	if err := r.get(ctx, ports.TableAgent, id, &a); err != nil {
		return nil, agentLookupErr(err, "id", strconv.FormatInt(id, 10))
	}
	return &a, nil
}

func (r *AgentRepo) GetByUID(ctx context.Context, uid string) (*domain.Agent, error) {
	row, err := r.rows.GetByUID(ctx, ports.TableAgent, uid)
	if err != nil {
		return nil, agentLookupErr(wrap(err, "get agent by uid"), "uid", uid)
	}
	var a domain.Agent
	if err := decodeRow(row, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// FirstByName returns the first agent, in storage order, with the given name.
func (r *AgentRepo) FirstByName(ctx context.Context, name string) (*domain.Agent, error) {
	row, err := r.rows.First(ctx, ports.TableAgent, ports.Filter{ports.Eq("name", name)}, ports.ListOptions{})
	if err != nil {
		return nil, agentLookupErr(wrap(err, "get agent by name"), "name", name)
	}
	var a domain.Agent
	if err := decodeRow(row, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AgentRepo) List(ctx context.Context) ([]*domain.Agent, error) {
	rows, err := r.rows.List(ctx, ports.TableAgent, nil, ports.ListOptions{})
	if err != nil {
		return nil, wrap(err, "list agents")
	}
	return decodeRows[domain.Agent](rows)
}

func (r *AgentRepo) Delete(ctx context.Context, id int64) error {
	if err := r.rows.Delete(ctx, ports.TableAgent, id); err != nil {
		return wrap(err, "delete agent %d", id)
	}
	return nil
}

func agentLookupErr(err error, by, key string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.AgentNotFoundError{By: by, Key: key}
	}
	return err
}
