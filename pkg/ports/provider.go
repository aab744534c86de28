package ports

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
)

// GenRequest is one text generation request.
type GenRequest struct {
	Prompt       string
	Instructions string
	Format       domain.OutFormat
}

// Provider generates text with a model.
type Provider interface {
	Generate(ctx context.Context, model string, req GenRequest) (string, error)
}

// AnswerSink records the final answer of a traversal.
type AnswerSink interface {
	RecordAnswer(ctx context.Context, step *domain.Step, text string) (*domain.Message, error)
}
