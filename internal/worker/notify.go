package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/tendril/internal/codec"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// Notify publishes a work event for a conversation on the hub.
func Notify(ctx context.Context, hub ports.Hub, kind domain.WorkKind, convID int64) error {
	data, err := codec.EncodeWorkEvent(domain.WorkEvent{
		Kind:   kind,
		ConvID: convID,
		At:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := hub.Publish(ctx, domain.TopicConvWork, data); err != nil {
		return fmt.Errorf("failed to publish %s for conv %d: %w", kind, convID, err)
	}
	return nil
}
