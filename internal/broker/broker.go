// Package broker defines the pub/sub boundary that mirrors room traffic
// between hub instances, with NATS, Postgres LISTEN/NOTIFY, and in-process
// implementations.
package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned by Publish after the broker has been closed.
var ErrClosed = errors.New("broker: closed")

// Handler receives one payload published under a topic by any hub instance,
// including the local one. Handlers run on the broker's receive goroutine and
// must not block.
type Handler func(topic string, payload []byte)

// Broker is the collaborator boundary for cross-instance fan-out. The hub
// only needs publish and deliver-on-subscribe semantics; everything else is
// implementation detail.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}
