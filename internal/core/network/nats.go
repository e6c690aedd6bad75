package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSOptions configures the NATS transport. When Stream is set, samples go
// through JetStream so late joiners and brief disconnects do not lose them.
type NATSOptions struct {
	URL        string
	TLSEnabled bool
	ClientCert string
	ClientKey  string
	RootCA     string

	Stream         string
	StreamSubjects []string
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

// NATSPubSub maps channel topics onto NATS subjects.
type NATSPubSub struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	nc      *nats.Conn
	js      jetstream.JetStream
	stream  string
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// ErrStreamSubjects is returned when a JetStream stream has no usable
// subjects. A bare ">" would overlap the $JS.API subjects.
var ErrStreamSubjects = errors.New("jetstream stream needs subjects below a partition, e.g. EnvironmentalData.>")

// CheckStreamSubjects reports whether subjects can back a JetStream stream.
func CheckStreamSubjects(subjects []string) error {
	if len(subjects) == 0 {
		return ErrStreamSubjects
	}
	for _, s := range subjects {
		if s == "" || s == ">" {
			return fmt.Errorf("%w: got %q", ErrStreamSubjects, s)
		}
	}
	return nil
}

func NATSConnect(parent context.Context, opts NATSOptions) (*NATSPubSub, error) {
	if opts.Stream != "" {
		if err := CheckStreamSubjects(opts.StreamSubjects); err != nil {
			return nil, err
		}
	}
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	natsOpts := []nats.Option{
		nats.Name("envdata"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}
	if opts.TLSEnabled {
		if opts.ClientCert != "" && opts.ClientKey != "" {
			natsOpts = append(natsOpts, nats.ClientCert(opts.ClientCert, opts.ClientKey))
		}
		if opts.RootCA != "" {
			natsOpts = append(natsOpts, nats.RootCAs(opts.RootCA))
		}
	}
	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", opts.URL, err)
	}

	ctx, cancel := context.WithCancel(parent)
	p := &NATSPubSub{
		ctx:     ctx,
		cancel:  cancel,
		log:     logger,
		nc:      nc,
		stream:  opts.Stream,
		timeout: opts.PublishTimeout,
	}

	if opts.Stream != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			cancel()
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		sctx, scancel := context.WithTimeout(ctx, 10*time.Second)
		defer scancel()
		if _, err := js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
			Name:      opts.Stream,
			Retention: jetstream.LimitsPolicy,
			Subjects:  opts.StreamSubjects,
			MaxAge:    time.Hour,
		}); err != nil {
			nc.Close()
			cancel()
			return nil, fmt.Errorf("create stream %s: %w", opts.Stream, err)
		}
		p.js = js
	}

	logger.Info("nats transport ready", "url", nc.ConnectedUrl(), "stream", opts.Stream)
	return p, nil
}

func (p *NATSPubSub) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if p.isClosed() {
		return ErrClosed
	}
	if p.js == nil {
		return p.nc.Publish(topic, payload)
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	_, err := p.js.Publish(ctx, topic, payload)
	return err
}

func (p *NATSPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	if topic == "" {
		return nil, nil, ErrEmptyTopic
	}
	if p.isClosed() {
		return nil, nil, ErrClosed
	}

	out := make(chan Message, 64)
	var (
		mu   sync.Mutex
		done bool
	)
	deliver := func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case out <- Message{Topic: topic, Payload: append([]byte(nil), data...)}:
		default:
		}
	}
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		if !done {
			done = true
			close(out)
		}
	}

	if p.js == nil {
		sub, err := p.nc.Subscribe(topic, func(m *nats.Msg) { deliver(m.Data) })
		if err != nil {
			return nil, nil, err
		}
		return out, func() {
			_ = sub.Unsubscribe()
			finish()
		}, nil
	}

	cons, err := p.js.OrderedConsumer(p.ctx, p.stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{topic},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ordered consumer %s: %w", topic, err)
	}
	cc, err := cons.Consume(func(m jetstream.Msg) { deliver(m.Data()) })
	if err != nil {
		return nil, nil, fmt.Errorf("consume %s: %w", topic, err)
	}
	return out, func() {
		cc.Stop()
		finish()
	}, nil
}

func (p *NATSPubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
	return nil
}

func (p *NATSPubSub) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
