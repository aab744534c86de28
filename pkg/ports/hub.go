package ports

import "context"

// Hub is a minimal publish/subscribe transport used to wake workers.
// Payloads are opaque to the hub.
type Hub interface {
	// Publish delivers payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe returns a channel receiving every payload published on topic
	// after Subscribe returns. The channel is closed once ctx is done.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
}
