package subscriber

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"EnvData-Apps/internal/channel"
	"EnvData-Apps/internal/sensor"
)

// ConsoleObserver prints "<Label>: <value>" for every sample.
type ConsoleObserver struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleObserver(w io.Writer) *ConsoleObserver {
	return &ConsoleObserver{w: w}
}

func (c *ConsoleObserver) Observe(k sensor.Kind, s channel.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s: %s\n", k.ConsoleLabel(), sensor.FormatValue(s.Reading.Value))
}

// Entry is the last reading seen for one kind.
type Entry struct {
	Kind       string         `json:"kind"`
	Reading    sensor.Reading `json:"reading"`
	Writer     string         `json:"writer"`
	Seq        uint64         `json:"seq"`
	SourceTime time.Time      `json:"source_time"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Board keeps the latest reading per kind and streams updates to
// subscribers as JSON.
type Board struct {
	mu     sync.RWMutex
	latest map[sensor.Kind]Entry
	subs   map[chan []byte]struct{}
	now    func() time.Time
	log    *slog.Logger
}

func NewBoard() *Board {
	return &Board{
		latest: make(map[sensor.Kind]Entry),
		subs:   make(map[chan []byte]struct{}),
		now:    time.Now,
		log:    slog.Default(),
	}
}

// WithLogger sets where entries that cannot be encoded are reported.
func (b *Board) WithLogger(l *slog.Logger) *Board {
	if l != nil {
		b.log = l
	}
	return b
}

func (b *Board) Observe(k sensor.Kind, s channel.Sample) {
	e := Entry{
		Kind:       k.Channel(),
		Reading:    s.Reading,
		Writer:     s.Info.Writer.String(),
		Seq:        s.Info.Seq,
		SourceTime: s.Info.SourceTimestamp,
		ReceivedAt: b.now().UTC(),
	}
	msg, err := json.Marshal(e)
	if err != nil {
		b.log.Warn("reading not published to board", "channel", e.Kind, "id", e.Reading.ID, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[k] = e
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Latest returns the last entry for k.
func (b *Board) Latest(k sensor.Kind) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.latest[k]
	return e, ok
}

// Snapshot returns the last entry of every kind seen so far, in poll order.
func (b *Board) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.latest))
	for _, k := range sensor.PollOrder {
		if e, ok := b.latest[k]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe returns a stream of JSON encoded entries. Slow readers miss
// updates rather than stall the poll loop.
func (b *Board) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
}
