package network

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	KindMemory = "memory"
	KindLibp2p = "libp2p"
	KindNATS   = "nats"
	KindKafka  = "kafka"
	KindMQTT   = "mqtt"
)

// Options selects and configures one transport backend.
type Options struct {
	Kind   string
	Libp2p Libp2pOptions
	NATS   NATSOptions
	Kafka  KafkaOptions
	MQTT   MQTTOptions
	Logger *slog.Logger
}

// Open builds the backend named by opts.Kind.
func Open(ctx context.Context, opts Options) (Transport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryPubSub(), nil
	case KindLibp2p:
		o := opts.Libp2p
		o.Logger = logger
		return NewLibp2pPubSub(ctx, o)
	case KindNATS:
		o := opts.NATS
		o.Logger = logger
		return NATSConnect(ctx, o)
	case KindKafka:
		o := opts.Kafka
		o.Logger = logger
		return NewKafkaPubSub(ctx, o)
	case KindMQTT:
		o := opts.MQTT
		o.Logger = logger
		return NewMQTTPubSub(o)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", opts.Kind)
	}
}
