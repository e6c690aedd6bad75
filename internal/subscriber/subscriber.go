// Package subscriber runs the polling loop that drains every sensor
// channel and hands valid readings to observers.
package subscriber

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
	ErrNotRunning     = errors.New("subscriber is not running")
	ErrAlreadyStarted = errors.New("subscriber already started")
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

// Observer is handed every valid sample in poll order.
type Observer interface {
	Observe(k sensor.Kind, s channel.Sample)
}

type ObserverFunc func(k sensor.Kind, s channel.Sample)

func (f ObserverFunc) Observe(k sensor.Kind, s channel.Sample) { f(k, s) }

type Config struct {
	Period time.Duration
	// Kinds defaults to sensor.PollOrder.
	Kinds []sensor.Kind
	// Listeners are attached per kind. A nil map gives the temperature
	// reader a logging listener.
	Listeners map[sensor.Kind]channel.Listener
	Observers []Observer
	Console   io.Writer
	Logger    *slog.Logger
}

type sensorReader struct {
	kind   sensor.Kind
	handle *channel.Handle
}

type Subscriber struct {
	binder    Binder
	kinds     []sensor.Kind
	listeners map[sensor.Kind]channel.Listener
	observers []Observer
	console   io.Writer
	log       *slog.Logger

	state  atomic.Int32
	period atomic.Int64

	mu      sync.Mutex
	readers []sensorReader
}

func New(b Binder, cfg Config) (*Subscriber, error) {
	if b == nil {
		return nil, errors.New("subscriber: nil binder")
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = sensor.PollOrder
	}
	for _, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("subscriber: unknown sensor kind %d", int(k))
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	console := cfg.Console
	if console == nil {
		console = io.Discard
	}
	listeners := cfg.Listeners
	if listeners == nil {
		listeners = map[sensor.Kind]channel.Listener{
			sensor.Temperature: channel.LogListener(logger),
		}
	}
	s := &Subscriber{
		binder:    b,
		kinds:     kinds,
		listeners: listeners,
		observers: cfg.Observers,
		console:   console,
		log:       logger.With("component", "subscriber"),
	}
	s.SetPeriod(cfg.Period)
	return s, nil
}

func (s *Subscriber) State() State { return State(s.state.Load()) }

// SetPeriod changes the poll interval from the next iteration on.
func (s *Subscriber) SetPeriod(d time.Duration) {
	if d <= 0 {
		d = DefaultPeriod
	}
	s.period.Store(int64(d))
}

func (s *Subscriber) Period() time.Duration { return time.Duration(s.period.Load()) }

// Start opens one reader per kind, in poll order.
func (s *Subscriber) Start() error {
	if !s.state.CompareAndSwap(int32(StateInit), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.kinds {
		var opts []channel.OpenOption
		if l, ok := s.listeners[k]; ok {
			opts = append(opts, channel.WithListener(l))
		}
		h, err := s.binder.Open(k.Channel(), channel.RoleReader, opts...)
		if err != nil {
			for _, r := range s.readers {
				_ = r.handle.Close()
			}
			s.readers = nil
			s.state.Store(int32(StateShutdown))
			return err
		}
		s.readers = append(s.readers, sensorReader{kind: k, handle: h})
	}
	fmt.Fprintln(s.console, "=== [Subscriber] Ready ...")
	s.log.Info("subscriber ready", "readers", len(s.readers), "period", s.Period())
	return nil
}

// PollOnce drains every reader once and dispatches the valid samples.
// It returns how many valid samples were dispatched.
func (s *Subscriber) PollOnce() (int, error) {
	if s.State() != StateRunning {
		return 0, ErrNotRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.readers {
		samples, err := r.handle.Receive()
		if err != nil {
			return n, err
		}
		for _, smp := range samples {
			if !smp.Valid {
				s.log.Debug("instance state changed", "channel", r.kind.Channel(), "id", smp.Reading.ID, "state", smp.Info.State.String())
				continue
			}
			for _, o := range s.observers {
				o.Observe(r.kind, smp)
			}
			n++
		}
	}
	return n, nil
}

// Run polls until ctx is done or a reader fails. Cancellation returns nil.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.State() != StateRunning {
		return ErrNotRunning
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("subscriber stopping", "reason", ctx.Err())
			return nil
		case <-timer.C:
		}
		if _, err := s.PollOnce(); err != nil {
			if errors.Is(err, ErrNotRunning) && ctx.Err() != nil {
				return nil
			}
			s.log.Error("poll failed", "error", err)
			return err
		}
		timer.Reset(s.Period())
	}
}

// Shutdown closes every reader. It is safe to call more than once.
func (s *Subscriber) Shutdown() error {
	if State(s.state.Swap(int32(StateShutdown))) == StateShutdown {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, r := range s.readers {
		if err := r.handle.Close(); err != nil && !errors.Is(err, channel.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.readers = nil
	s.log.Info("subscriber shut down")
	return errors.Join(errs...)
}
