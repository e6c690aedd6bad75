package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaOptions configures the Kafka transport.
type KafkaOptions struct {
	Brokers      []string
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// KafkaPubSub uses one writer for all topics and one partition reader per
// subscription. Readers start at the log end, so only fresh samples show up.
type KafkaPubSub struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	brokers []string
	writer  *kafka.Writer
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	readers map[*kafka.Reader]struct{}
	wg      sync.WaitGroup
}

func NewKafkaPubSub(parent context.Context, opts KafkaOptions) (*KafkaPubSub, error) {
	brokers := make([]string, 0, len(opts.Brokers))
	for _, b := range opts.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(parent)
	p := &KafkaPubSub{
		ctx:     ctx,
		cancel:  cancel,
		log:     logger,
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		timeout: opts.WriteTimeout,
		readers: make(map[*kafka.Reader]struct{}),
	}
	logger.Info("kafka transport ready", "brokers", brokers)
	return p, nil
}

func (p *KafkaPubSub) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if p.isClosed() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: payload, Time: time.Now()})
}

func (p *KafkaPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	if topic == "" {
		return nil, nil, ErrEmptyTopic
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, ErrClosed
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     p.brokers,
		Topic:       topic,
		Partition:   0,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     100 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	p.readers[r] = struct{}{}
	p.mu.Unlock()

	out := make(chan Message, 64)
	subCtx, subCancel := context.WithCancel(p.ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)
		for {
			m, err := r.ReadMessage(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				p.log.Warn("kafka read error", "topic", topic, "err", err)
				select {
				case <-subCtx.Done():
					return
				case <-time.After(500 * time.Millisecond):
				}
				continue
			}
			select {
			case out <- Message{Topic: topic, Payload: m.Value}:
			default:
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			subCancel()
			p.mu.Lock()
			delete(p.readers, r)
			p.mu.Unlock()
			if err := r.Close(); err != nil {
				p.log.Warn("failed to close kafka reader", "topic", topic, "err", err)
			}
		})
	}
	return out, cancel, nil
}

func (p *KafkaPubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	readers := make([]*kafka.Reader, 0, len(p.readers))
	for r := range p.readers {
		readers = append(readers, r)
	}
	p.readers = map[*kafka.Reader]struct{}{}
	p.mu.Unlock()

	p.cancel()
	var errs []error
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
	}
	return errors.Join(errs...)
}

func (p *KafkaPubSub) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
