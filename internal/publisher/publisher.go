// Package publisher runs the sensor publishing loop: one writer per sensor
// kind, a fresh value from each kind's generator every period.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"EnvData-Apps/internal/channel"
	"EnvData-Apps/internal/sensor"
)

const DefaultPeriod = 100 * time.Millisecond

var (
	ErrNotRunning     = errors.New("publisher is not running")
	ErrAlreadyStarted = errors.New("publisher already started")
)

type State int32

const (
	StateInit State = iota
	StateRunning
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Binder opens channel handles. *channel.Participant satisfies it.
type Binder interface {
	Open(name string, role channel.Role, opts ...channel.OpenOption) (*channel.Handle, error)
}

type Config struct {
	NodeID string
	Host   string
	Period time.Duration
	// Kinds defaults to sensor.PublishOrder.
	Kinds []sensor.Kind
	// Generators defaults to sensor.DefaultGenerator per kind.
	Generators map[sensor.Kind]sensor.Generator
	Console    io.Writer
	Logger     *slog.Logger
}

type sensorWriter struct {
	kind    sensor.Kind
	gen     sensor.Generator
	reading sensor.Reading
	handle  *channel.Handle
}

type Publisher struct {
	binder  Binder
	console io.Writer
	log     *slog.Logger

	state  atomic.Int32
	period atomic.Int64

	mu      sync.Mutex
	writers []*sensorWriter
}

// New validates cfg and builds the readings. No channel is opened until
// Start.
func New(b Binder, cfg Config) (*Publisher, error) {
	if b == nil {
		return nil, errors.New("publisher: nil binder")
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = sensor.PublishOrder
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	console := cfg.Console
	if console == nil {
		console = io.Discard
	}

	writers := make([]*sensorWriter, 0, len(kinds))
	for _, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("publisher: unknown sensor kind %d", int(k))
		}
		r, err := sensor.NewReading(cfg.Host, cfg.NodeID, k)
		if err != nil {
			return nil, fmt.Errorf("publisher: %w", err)
		}
		gen := cfg.Generators[k]
		if gen == nil {
			gen = sensor.DefaultGenerator(k, nil)
		}
		writers = append(writers, &sensorWriter{kind: k, gen: gen, reading: r})
	}

	p := &Publisher{
		binder:  b,
		console: console,
		log:     logger.With("component", "publisher"),
		writers: writers,
	}
	p.SetPeriod(cfg.Period)
	return p, nil
}

func (p *Publisher) State() State { return State(p.state.Load()) }

// SetPeriod changes the pacing from the next iteration on. Non-positive
// values restore the default.
func (p *Publisher) SetPeriod(d time.Duration) {
	if d <= 0 {
		d = DefaultPeriod
	}
	p.period.Store(int64(d))
}

func (p *Publisher) Period() time.Duration { return time.Duration(p.period.Load()) }

// Start opens one writer per kind. On failure the writers already opened
// are closed and the bind error is returned.
func (p *Publisher) Start() error {
	if !p.state.CompareAndSwap(int32(StateInit), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.writers {
		h, err := p.binder.Open(w.kind.Channel(), channel.RoleWriter)
		if err != nil {
			for _, opened := range p.writers[:i] {
				_ = opened.handle.Close()
				opened.handle = nil
			}
			p.state.Store(int32(StateShutdown))
			return err
		}
		w.handle = h
	}
	fmt.Fprintln(p.console, "=== [Publisher] Ready ...")
	p.log.Info("publisher ready", "writers", len(p.writers), "period", p.Period())
	return nil
}

// PublishOnce draws a value for every kind and sends it, in order.
func (p *Publisher) PublishOnce() error {
	if p.State() != StateRunning {
		return ErrNotRunning
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.writers {
		if w.handle == nil {
			return ErrNotRunning
		}
		w.reading.Value = w.gen()
		if err := w.handle.Send(w.reading); err != nil {
			return err
		}
	}
	return nil
}

// Run publishes until ctx is done or a send fails for good. Cancellation
// is a clean stop and returns nil.
func (p *Publisher) Run(ctx context.Context) error {
	if p.State() != StateRunning {
		return ErrNotRunning
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("publisher stopping", "reason", ctx.Err())
			return nil
		case <-timer.C:
		}
		if err := p.PublishOnce(); err != nil {
			if errors.Is(err, ErrNotRunning) && ctx.Err() != nil {
				return nil
			}
			p.log.Error("publish failed", "error", err)
			return err
		}
		timer.Reset(p.Period())
	}
}

// Readings returns the current value of every sensor.
func (p *Publisher) Readings() []sensor.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sensor.Reading, 0, len(p.writers))
	for _, w := range p.writers {
		out = append(out, w.reading)
	}
	return out
}

// Shutdown closes every writer. It is safe to call more than once.
func (p *Publisher) Shutdown() error {
	if State(p.state.Swap(int32(StateShutdown))) == StateShutdown {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, w := range p.writers {
		if w.handle == nil {
			continue
		}
		if err := w.handle.Close(); err != nil && !errors.Is(err, channel.ErrClosed) {
			errs = append(errs, err)
		}
		w.handle = nil
	}
	p.log.Info("publisher shut down")
	return errors.Join(errs...)
}
