package memory

import (
	"context"
	"sync"
)

// Hub is an in-process ports.Hub. Slow subscribers drop payloads rather
// than block publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

type subscriber struct {
	ch     chan []byte
	closed bool
}

// NewHub creates a hub whose subscriptions buffer up to 64 payloads.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), buffer: 64}
}

func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[topic] {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	sub := &subscriber{ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscriber]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[topic], sub)
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}()
	return sub.ch, nil
}
