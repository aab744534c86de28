package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrPersistence wraps failures reported by the row store.
var ErrPersistence = errors.New("persistence failure")

// ErrChainParse is returned when a stored chain definition is malformed.
var ErrChainParse = errors.New("chain parse failed")

// ErrStackParse is returned when a stored delegation stack is malformed.
var ErrStackParse = errors.New("stack parse failed")

// ErrStackLimit is returned when computing the next delegation stack does not
// settle within the configured number of iterations.
var ErrStackLimit = errors.New("delegation iteration limit reached")

// ErrAgentNotFound is returned when an agent reference cannot be resolved.
var ErrAgentNotFound = errors.New("agent not found")

// ErrStackEmptyOnRun is returned when Run is called on a non-closer step
// whose stored stack has nothing to pop.
var ErrStackEmptyOnRun = errors.New("cannot run step: call stack is empty")

// ErrModelMissing is returned when the agent selected to run has no model.
var ErrModelMissing = errors.New("agent has no model")

// ErrModelNotImplemented is returned when no provider client serves a model.
var ErrModelNotImplemented = errors.New("model not implemented")

// ErrProvider wraps failures reported by an AI provider.
var ErrProvider = errors.New("provider failure")

// ErrPromptRender is returned when an agent prompt template fails to render.
var ErrPromptRender = errors.New("prompt render failed")

// ErrPrevStepNoOutput is returned when a closer step's predecessor has no output.
var ErrPrevStepNoOutput = errors.New("previous step has no output")

// ErrPrevStepNoStack is returned when a step's predecessor was never resolved.
var ErrPrevStepNoStack = errors.New("previous step has no call stack")

// ErrStepNoMessage is returned when a first step's message is missing or empty.
var ErrStepNoMessage = errors.New("step message has no content")

// AgentNotFoundError names the lookup that failed.
type AgentNotFoundError struct {
	By  string
	Key string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent not found for %s '%s'", e.By, e.Key)
}

func (e *AgentNotFoundError) Unwrap() error {
	return ErrAgentNotFound
}

// ProviderError carries the model and the underlying provider failure.
type ProviderError struct {
	Model string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider failed for model '%s': %v", e.Model, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}
