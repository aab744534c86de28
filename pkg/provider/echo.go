package provider

import (
	"context"
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

const (
	// EchoPrefix is the model prefix served by Echo.
	EchoPrefix = "fc-mock-"
	// ModelEchoInst answers with the agent instructions.
	ModelEchoInst = "fc-mock-echo-inst"
	// ModelEchoPrompt answers with the rendered prompt.
	ModelEchoPrompt = "fc-mock-echo-prompt"
)

// Echo is a deterministic provider for tests and local runs.
type Echo struct{}

func (Echo) Generate(ctx context.Context, model string, req ports.GenRequest) (string, error) {
	switch model {
	case ModelEchoInst:
		return req.Instructions, nil
	case ModelEchoPrompt:
		return req.Prompt, nil
	}
	return "", fmt.Errorf("%w: echo client has no model '%s'", domain.ErrModelNotImplemented, model)
}
