// Package anthropic serves Claude models through the Anthropic Messages API.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// Prefix is the model prefix this client is registered under.
const Prefix = "claude-"

const defaultMaxTokens = 1024

const jsonInstruction = "Respond with a single valid JSON value and nothing else."

// Client implements ports.Provider.
type Client struct {
	api       sdk.Client
	maxTokens int64
}

// Option configures a Client.
type Option func(*Client)

// WithMaxTokens caps the length of generated answers.
func WithMaxTokens(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New creates a client. Request options such as option.WithAPIKey or
// option.WithBaseURL are passed through to the SDK.
func New(reqOpts []option.RequestOption, opts ...Option) *Client {
	c := &Client{
		api:       sdk.NewClient(reqOpts...),
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Generate(ctx context.Context, model string, req ports.GenRequest) (string, error) {
	inst := req.Instructions
	if req.Format == domain.OutFormatJSON {
		inst = strings.TrimSpace(inst + "\n\n" + jsonInstruction)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if inst != "" {
		params.System = []sdk.TextBlockParam{{Text: inst}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", &domain.ProviderError{Model: model, Err: err}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
