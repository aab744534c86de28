// Package nats implements ports.Hub on NATS core subjects.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/tendril/pkg/ports"
	"github.com/nats-io/nats.go"
)

// Hub publishes topics as subjects under a prefix.
type Hub struct {
	conn   *nats.Conn
	prefix string
	buffer int
}

var _ ports.Hub = (*Hub)(nil)

// Connect dials url and returns a hub owning the connection.
func Connect(url, prefix string) (*Hub, error) {
	conn, err := nats.Connect(url,
		nats.Name("tendril"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return NewHub(conn, prefix), nil
}

// NewHub wraps an existing connection.
func NewHub(conn *nats.Conn, prefix string) *Hub {
	return &Hub{conn: conn, prefix: prefix, buffer: 64}
}

func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := h.conn.Publish(h.prefix+topic, payload); err != nil {
		return fmt.Errorf("failed to publish to nats: %w", err)
	}
	return nil
}

// Subscribe flushes the subscription to the server before returning. Slow
// consumers drop payloads once the buffer is full.
func (h *Hub) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	out := make(chan []byte, h.buffer)
	var mu sync.Mutex
	closed := false

	sub, err := h.conn.Subscribe(h.prefix+topic, func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- msg.Data:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to nats: %w", err)
	}
	if err := h.conn.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to confirm nats subscription: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

// Close drains and closes the connection.
func (h *Hub) Close() error {
	return h.conn.Drain()
}
