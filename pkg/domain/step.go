package domain

import "time"

// Step is one persisted execution hop of a message's chain traversal.
//
// FirstStepID is set once, at creation, to the id of the step that started
// the traversal. PrevStepID links back to the predecessor and is nil only on
// the first step. CallStack holds the serialized delegation stack computed by
// the Resolve phase.
type Step struct {
	ID          int64  `json:"id" mapstructure:"id"`
	UID         string `json:"uid" mapstructure:"uid"`
	ConvID      int64  `json:"conv_id" mapstructure:"conv_id"`
	OrigMsgID   int64  `json:"orig_msg_id" mapstructure:"orig_msg_id"`
	FirstStepID *int64 `json:"first_step_id,omitempty" mapstructure:"first_step_id"`
	PrevStepID  *int64 `json:"prev_step_id,omitempty" mapstructure:"prev_step_id"`
	Closer      bool   `json:"closer" mapstructure:"closer"`

	CallStack *string `json:"call_stack,omitempty" mapstructure:"call_stack"`
	CallOut   *string `json:"call_out,omitempty" mapstructure:"call_out"`
	CallErr   *string `json:"call_err,omitempty" mapstructure:"call_err"`

	ResolveTStart *time.Time `json:"resolve_tstart,omitempty" mapstructure:"resolve_tstart"`
	ResolveTEnd   *time.Time `json:"resolve_tend,omitempty" mapstructure:"resolve_tend"`
	ResolveModel  *string    `json:"resolve_model,omitempty" mapstructure:"resolve_model"`

	RunAgentUID  *string    `json:"run_agent_uid,omitempty" mapstructure:"run_agent_uid"`
	RunAgentName *string    `json:"run_agent_name,omitempty" mapstructure:"run_agent_name"`
	RunTStart    *time.Time `json:"run_tstart,omitempty" mapstructure:"run_tstart"`
	RunTEnd      *time.Time `json:"run_tend,omitempty" mapstructure:"run_tend"`
	RunTErr      *time.Time `json:"run_terr,omitempty" mapstructure:"run_terr"`

	CTime time.Time `json:"ctime" mapstructure:"ctime"`
	MTime time.Time `json:"mtime" mapstructure:"mtime"`
}

// IsFirst reports whether the step started its traversal.
func (s *Step) IsFirst() bool {
	return s.PrevStepID == nil
}

// IsResolved reports whether the Resolve phase completed.
func (s *Step) IsResolved() bool {
	return s.ResolveTEnd != nil
}

// IsRun reports whether the Run phase completed, successfully or not.
func (s *Step) IsRun() bool {
	return s.RunTEnd != nil || s.RunTErr != nil
}

// Failed reports whether the Run phase ended in error.
func (s *Step) Failed() bool {
	return s.RunTErr != nil
}

// RunResult is the outcome of a successful Run phase.
type RunResult int

const (
	// RunOngoing means an agent ran and a successor step was created.
	RunOngoing RunResult = iota
	// RunEnded means the closer step recorded the final answer.
	RunEnded
)

func (r RunResult) String() string {
	if r == RunEnded {
		return "ended"
	}
	return "ongoing"
}
