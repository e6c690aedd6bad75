// Package channel is the typed client over a pub/sub transport. A
// Participant owns the transport binding, the QoS profile and the set of
// open channel handles; each Handle is one channel bound for one role.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"EnvData-Apps/internal/core/network"
	"EnvData-Apps/internal/metrics"
	"EnvData-Apps/internal/qos"
	"EnvData-Apps/internal/sensor"
)

// Options configures a Participant. Zero values select defaults.
type Options struct {
	Profile  *qos.Profile
	TypeName string
	Logger   *slog.Logger
	Metrics  *metrics.Channel
	Now      func() time.Time
}

type bindingKey struct {
	name string
	role Role
}

// Participant is the root of all channel bindings in a process.
type Participant struct {
	ps       network.PubSub
	profile  qos.Profile
	guid     uuid.UUID
	typeName string
	log      *slog.Logger
	metrics  *metrics.Channel
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	bindings map[bindingKey]*Handle
}

func NewParticipant(ps network.PubSub, opts Options) (*Participant, error) {
	if ps == nil {
		return nil, errors.New("channel: nil transport")
	}
	profile := qos.Default()
	if opts.Profile != nil {
		profile = *opts.Profile
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	typeName := opts.TypeName
	if typeName == "" {
		typeName = sensor.TypeName
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	guid := uuid.New()
	return &Participant{
		ps:       ps,
		profile:  profile,
		guid:     guid,
		typeName: typeName,
		log:      logger.With("participant", guid.String()),
		metrics:  m,
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
		bindings: make(map[bindingKey]*Handle),
	}, nil
}

// GUID identifies this participant in every sample it writes.
func (p *Participant) GUID() uuid.UUID { return p.guid }

func (p *Participant) Profile() qos.Profile { return p.profile }

// OpenOption adjusts a single Open call.
type OpenOption func(*openConfig)

type openConfig struct {
	listener Listener
}

// WithListener attaches l to a reader. Writers ignore it.
func WithListener(l Listener) OpenOption {
	return func(c *openConfig) { c.listener = l }
}

// Open binds name for role using the participant's QoS profile. Readers
// are subscribed before Open returns. Opening a name and role that is
// already bound fails with ErrAlreadyBound.
func (p *Participant) Open(name string, role Role, opts ...OpenOption) (*Handle, error) {
	var cfg openConfig
	for _, o := range opts {
		o(&cfg)
	}
	fail := func(step string, err error) (*Handle, error) {
		p.log.Error("bind failed", "channel", name, "role", role.String(), "step", step, "error", err)
		return nil, &BindError{Channel: name, Role: role, Step: step, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fail(StepRegisterType, ErrClosed)
	}
	if p.typeName == "" {
		return fail(StepRegisterType, errors.New("empty type name"))
	}
	if err := validateName(name); err != nil {
		return fail(StepCreateTopic, err)
	}

	step := StepCreateWriter
	partition := p.profile.Publisher.Partition
	if role == RoleReader {
		step = StepCreateReader
		partition = p.profile.Subscriber.Partition
	} else if role != RoleWriter {
		return fail(StepCreateTopic, fmt.Errorf("%w: %s", ErrWrongRole, role))
	}

	key := bindingKey{name: name, role: role}
	if _, ok := p.bindings[key]; ok {
		return fail(step, ErrAlreadyBound)
	}

	h := &Handle{
		p:     p,
		name:  name,
		role:  role,
		topic: qos.TopicFor(partition, name),
		log:   p.log.With("channel", name, "role", role.String()),
	}
	if role == RoleWriter {
		h.writerQos = p.profile.DataWriter
	} else {
		h.readerQos = p.profile.ReaderFor(name)
		if err := h.startReader(cfg.listener); err != nil {
			return fail(step, err)
		}
	}
	p.bindings[key] = h
	h.log.Info("channel bound", "topic", h.topic)
	return h, nil
}

func (p *Participant) release(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := bindingKey{name: h.name, role: h.role}
	if p.bindings[key] == h {
		delete(p.bindings, key)
	}
}

// Close closes every handle still open and then the participant itself.
// The transport is left to its owner.
func (p *Participant) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	open := make([]*Handle, 0, len(p.bindings))
	for _, h := range p.bindings {
		open = append(open, h)
	}
	p.mu.Unlock()

	var errs []error
	for _, h := range open {
		if err := h.Close(); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}
	p.cancel()
	return errors.Join(errs...)
}

// validateName rejects names that would not map to a single transport
// topic on every backend.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidChannel)
	}
	if strings.ContainsAny(name, ".*>#+/ \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}
	return nil
}
