// Package conv is the entry point for user conversations: it stores
// messages and wakes the worker.
package conv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/internal/worker"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/store"
)

// Service manages conversations and their messages.
type Service struct {
	store  *store.Store
	hub    ports.Hub
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service. A nil hub disables notifications; the caller
// then drives the runtime itself.
func NewService(s *store.Store, hub ports.Hub, opts ...Option) *Service {
	svc := &Service{store: s, hub: hub, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateConv starts a conversation owned by the agent with the given uid.
func (s *Service) CreateConv(ctx context.Context, agentUID, title string) (*domain.Conversation, error) {
	agent, err := s.store.Agents.GetByUID(ctx, agentUID)
	if err != nil {
		return nil, err
	}
	id, err := s.store.Convs.Create(ctx, agent.ID, title)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Conversation created", "conv_id", id, "agent", agent.Name)
	return s.store.Convs.Get(ctx, id)
}

// AddMessage appends a user message, creates the first step of its
// traversal and publishes WorkNew for the conversation.
func (s *Service) AddMessage(ctx context.Context, convID int64, text string) (*domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrStepNoMessage)
	}
	if _, err := s.store.Convs.Get(ctx, convID); err != nil {
		return nil, err
	}

	msgID, err := s.store.Messages.CreateUserMsg(ctx, convID, text)
	if err != nil {
		return nil, err
	}
	stepID, err := s.store.Steps.CreateFirstFromMsg(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Convs.TouchWorkNew(ctx, convID); err != nil {
		return nil, err
	}

	log := s.logger.With("conv_id", convID, "step_id", stepID)
	if s.hub != nil {
		if err := worker.Notify(ctx, s.hub, domain.WorkNew, convID); err != nil {
			return nil, err
		}
	}
	log.Debug("Message added", "msg_id", msgID)
	return s.store.Messages.Get(ctx, msgID)
}

// ListMessages returns the conversation messages in creation order.
func (s *Service) ListMessages(ctx context.Context, convID int64) ([]*domain.Message, error) {
	if _, err := s.store.Convs.Get(ctx, convID); err != nil {
		return nil, err
	}
	return s.store.Messages.ListForConv(ctx, convID)
}

// ListSteps returns the execution hops recorded for the conversation.
func (s *Service) ListSteps(ctx context.Context, convID int64) ([]*domain.Step, error) {
	return s.store.Steps.ListForConv(ctx, convID)
}
