package network

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/nats-io/nats.go"
)

// Message is the transport envelope used by the runtime.
type Message struct {
	Topic   string
	Payload []byte
}

// PubSub is a minimal interface for broadcast-style communication.
type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (<-chan Message, func(), error)
}

// Transport is a PubSub that owns connections and must be closed.
type Transport interface {
	PubSub
	io.Closer
}

var (
	ErrClosed     = errors.New("transport closed")
	ErrEmptyTopic = errors.New("topic must not be empty")
)

// IsTransient reports whether err is worth retrying. Structural failures
// (closed transport, bad topic, auth) are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrEmptyTopic) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrConnectionReconnecting) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var tmp interface{ Temporary() bool }
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	return false
}
