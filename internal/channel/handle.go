package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"EnvData-Apps/internal/codec"
	"EnvData-Apps/internal/core/network"
	"EnvData-Apps/internal/qos"
	"EnvData-Apps/internal/sensor"
)

const retryBase = 5 * time.Millisecond

// Handle is one channel bound for one role.
type Handle struct {
	p     *Participant
	name  string
	role  Role
	topic string
	log   *slog.Logger

	writerQos qos.DataWriterQos
	readerQos qos.DataReaderQos

	mu     sync.Mutex
	closed bool
	seq    uint64
	lastID string

	// reader side
	cache    *history
	unsub    func()
	flush    chan chan struct{}
	stop     chan struct{}
	done     chan struct{}
	listener Listener
	lost     error
	missed   DeadlineMissedStatus
}

func (h *Handle) Name() string  { return h.name }
func (h *Handle) Role() Role    { return h.role }
func (h *Handle) Topic() string { return h.topic }

// Send publishes r as an alive sample. Under reliable QoS transient
// transport errors are retried with exponential backoff.
func (h *Handle) Send(r sensor.Reading) error {
	if h.role != RoleWriter {
		return &SendError{Channel: h.name, Err: ErrWrongRole}
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return &SendError{Channel: h.name, Err: ErrClosed}
	}
	h.seq++
	env := codec.Envelope{
		State:     codec.StateAlive,
		Writer:    h.p.guid,
		Seq:       h.seq,
		Timestamp: h.p.now(),
		TypeName:  h.p.typeName,
		Reading:   r,
	}
	h.lastID = r.ID
	h.mu.Unlock()

	payload, err := codec.Marshal(env)
	if err != nil {
		h.p.metrics.SendErrors.WithLabelValues(h.name).Inc()
		return &SendError{Channel: h.name, Err: err}
	}
	start := time.Now()
	err = h.publish(payload)
	h.p.metrics.SendDuration.WithLabelValues(h.name).Observe(time.Since(start).Seconds())
	if err != nil {
		h.p.metrics.SendErrors.WithLabelValues(h.name).Inc()
		h.log.Error("send failed", "seq", env.Seq, "error", err)
		return &SendError{Channel: h.name, Err: err}
	}
	h.p.metrics.SamplesSent.WithLabelValues(h.name).Inc()
	h.p.metrics.ReadingValue.WithLabelValues(h.name).Set(float64(r.Value))
	return nil
}

func (h *Handle) publish(payload []byte) error {
	wq := h.writerQos
	if wq.Reliability != qos.Reliable || wq.MaxSendRetries == 0 {
		return h.p.ps.Publish(h.topic, payload)
	}
	b := retry.NewExponential(retryBase)
	if wq.MaxBlockingTime > 0 {
		b = retry.WithCappedDuration(wq.MaxBlockingTime, b)
	}
	b = retry.WithMaxRetries(wq.MaxSendRetries, b)

	attempt := 0
	return retry.Do(h.p.ctx, b, func(ctx context.Context) error {
		if attempt > 0 {
			h.p.metrics.SendRetries.WithLabelValues(h.name).Inc()
		}
		attempt++
		err := h.p.ps.Publish(h.topic, payload)
		if err != nil && network.IsTransient(err) {
			h.log.Warn("transient send error", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// Receive takes every pending sample in delivery order, including those the
// transport has queued but the reader has not yet cached. An empty result
// with a nil error means nothing was pending.
func (h *Handle) Receive() ([]Sample, error) {
	if h.role != RoleReader {
		return nil, &ReceiveError{Channel: h.name, Err: ErrWrongRole}
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, &ReceiveError{Channel: h.name, Err: ErrClosed}
	}
	h.flushQueued()

	h.mu.Lock()
	lost := h.lost
	h.mu.Unlock()
	out := h.cache.take()
	if len(out) == 0 && lost != nil {
		return nil, &ReceiveError{Channel: h.name, Err: lost}
	}
	return out, nil
}

// flushQueued waits until the pump has cached everything already queued on the
// subscription. The pump stays the only consumer so arrival order holds.
func (h *Handle) flushQueued() {
	ack := make(chan struct{})
	select {
	case h.flush <- ack:
		<-ack
	case <-h.done:
	}
}

// Pending reports how many samples a reader holds. Writers hold none.
func (h *Handle) Pending() int {
	if h.cache == nil {
		return 0
	}
	return h.cache.len()
}

// DeadlineMissed returns the reader's deadline status so far.
func (h *Handle) DeadlineMissed() DeadlineMissedStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.missed
}

// Close releases the binding. A writer first announces that its instance
// is gone. Closing twice returns ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.closed = true
	seq, lastID := h.seq+1, h.lastID
	h.mu.Unlock()

	defer h.p.release(h)

	if h.role == RoleWriter {
		if seq > 1 {
			h.unregister(seq, lastID)
		}
		h.log.Info("channel closed")
		return nil
	}

	close(h.stop)
	h.unsub()
	<-h.done
	h.log.Info("channel closed")
	return nil
}

func (h *Handle) unregister(seq uint64, id string) {
	state := codec.StateUnregistered
	if h.writerQos.AutodisposeUnregistered {
		state = codec.StateDisposed
	}
	payload, err := codec.Marshal(codec.Envelope{
		State:     state,
		Writer:    h.p.guid,
		Seq:       seq,
		Timestamp: h.p.now(),
		TypeName:  h.p.typeName,
		Reading:   sensor.Reading{ID: id},
	})
	if err == nil {
		err = h.p.ps.Publish(h.topic, payload)
	}
	if err != nil {
		h.log.Warn("could not announce instance state", "state", state.String(), "error", err)
	}
}

func (h *Handle) startReader(l Listener) error {
	msgs, unsub, err := h.p.ps.Subscribe(h.topic)
	if err != nil {
		return err
	}
	h.cache = newHistory(h.readerQos)
	h.unsub = unsub
	h.listener = l
	h.flush = make(chan chan struct{})
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.pump(msgs)
	return nil
}

// pump moves transport messages into the history cache and runs the
// deadline timer. It is the only consumer of msgs, so delivery order is
// kept. The deadline is armed by the first alive sample.
func (h *Handle) pump(msgs <-chan network.Message) {
	defer close(h.done)

	period := h.readerQos.Deadline
	var timer *time.Timer
	var deadline <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	// deliver reports false once the transport has ended the subscription.
	deliver := func(msg network.Message, ok bool) bool {
		if !ok {
			h.mu.Lock()
			if !h.closed {
				h.lost = network.ErrClosed
			}
			h.mu.Unlock()
			return false
		}
		s, ok := h.accept(msg.Payload)
		if !ok {
			return true
		}
		if s.Valid && period > 0 {
			if timer == nil {
				timer = time.NewTimer(period)
				deadline = timer.C
			} else {
				timer.Reset(period)
			}
		}
		h.listener.dataAvailable(h.name)
		return true
	}

	for {
		select {
		case <-h.stop:
			return
		case msg, ok := <-msgs:
			if !deliver(msg, ok) {
				return
			}
		case ack := <-h.flush:
			live := drainQueued(msgs, deliver)
			close(ack)
			if !live {
				return
			}
		case <-deadline:
			h.mu.Lock()
			h.missed.TotalCount++
			h.missed.TotalCountChange = 1
			st := h.missed
			h.mu.Unlock()
			h.p.metrics.DeadlineMissed.WithLabelValues(h.name).Inc()
			h.listener.deadlineMissed(h.name, st)
			timer.Reset(period)
		}
	}
}

// drainQueued delivers what msgs already holds without waiting for more.
func drainQueued(msgs <-chan network.Message, deliver func(network.Message, bool) bool) bool {
	for {
		select {
		case msg, ok := <-msgs:
			if !deliver(msg, ok) {
				return false
			}
		default:
			return true
		}
	}
}

func (h *Handle) accept(payload []byte) (Sample, bool) {
	env, err := codec.Unmarshal(payload)
	if err != nil {
		h.reject("decode", err)
		return Sample{}, false
	}
	if env.TypeName != h.p.typeName {
		h.reject("type_mismatch", errors.New("unexpected type "+env.TypeName))
		return Sample{}, false
	}
	s := Sample{
		Reading: env.Reading,
		Valid:   env.State == codec.StateAlive,
		Info: SampleInfo{
			Writer:          env.Writer,
			Seq:             env.Seq,
			SourceTimestamp: env.Timestamp,
			State:           env.State,
		},
	}
	if !h.cache.push(s) {
		h.reject("resource_limit", nil)
		return Sample{}, false
	}
	h.p.metrics.SamplesReceived.WithLabelValues(h.name).Inc()
	if s.Valid {
		h.p.metrics.ReadingValue.WithLabelValues(h.name).Set(float64(s.Reading.Value))
	}
	return s, true
}

func (h *Handle) reject(reason string, err error) {
	h.p.metrics.SamplesRejected.WithLabelValues(h.name, reason).Inc()
	if err != nil {
		h.log.Debug("sample rejected", "reason", reason, "error", err)
	} else {
		h.log.Debug("sample rejected", "reason", reason)
	}
}
