package redis

import (
	"context"
	"fmt"

	"github.com/aretw0/tendril/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Hub implements ports.Hub on Redis pub/sub. Topics map to channels under
// the hub prefix.
type Hub struct {
	client *backend.Client
	prefix string
}

var _ ports.Hub = (*Hub)(nil)

// NewHub creates a hub publishing on prefix+topic channels.
func NewHub(client *backend.Client, prefix string) *Hub {
	return &Hub{client: client, prefix: prefix}
}

func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := h.client.Publish(ctx, h.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed by the server before
// returning, so a Publish issued afterwards is delivered.
func (h *Hub) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ps := h.client.Subscribe(ctx, h.prefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to redis: %w", err)
	}

	in := ps.Channel()
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
