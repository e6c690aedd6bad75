package publisher

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"EnvData-Apps/internal/channel"
	"EnvData-Apps/internal/core/network"
	"EnvData-Apps/internal/sensor"
)

func newParticipant(t *testing.T, bus network.PubSub) *channel.Participant {
	t.Helper()
	p, err := channel.NewParticipant(bus, channel.Options{})
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func drain(t *testing.T, r *channel.Handle, n int) []channel.Sample {
	t.Helper()
	var got []channel.Sample
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		s, err := r.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		got = append(got, s...)
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) < n {
		t.Fatalf("%s: expected %d samples, got %d", r.Name(), n, len(got))
	}
	return got
}

func TestStartPublishAndShutdown(t *testing.T) {
	bus := network.NewMemoryPubSub()
	subP := newParticipant(t, bus)
	readers := map[sensor.Kind]*channel.Handle{}
	for _, k := range sensor.PollOrder {
		r, err := subP.Open(k.Channel(), channel.RoleReader)
		if err != nil {
			t.Fatalf("open reader: %v", err)
		}
		readers[k] = r
	}

	var console bytes.Buffer
	pub, err := New(newParticipant(t, bus), Config{
		NodeID:  "1",
		Host:    "host1",
		Console: &console,
		Generators: map[sensor.Kind]sensor.Generator{
			sensor.Humidity:    sensor.Constant(69.5),
			sensor.Temperature: sensor.Constant(26),
			sensor.Rain:        sensor.Constant(1),
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if pub.State() != StateInit {
		t.Fatalf("expected INIT, got %s", pub.State())
	}
	if err := pub.PublishOnce(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("publish before start: %v", err)
	}
	if err := pub.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(console.String(), "=== [Publisher] Ready ...") {
		t.Fatalf("missing banner in %q", console.String())
	}
	if err := pub.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: %v", err)
	}
	if err := pub.PublishOnce(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	want := map[sensor.Kind]sensor.Reading{
		sensor.Humidity:    {ID: "host1N1S0hum", Type: "humidity sensor", Value: 69.5},
		sensor.Temperature: {ID: "host1N1S1tem", Type: "temperature sensor", Value: 26},
		sensor.Rain:        {ID: "host1N1S2rai", Type: "rain sensor", Value: 1},
	}
	for k, r := range readers {
		got := drain(t, r, 1)
		if len(got) != 1 || !got[0].Valid || got[0].Reading != want[k] {
			t.Fatalf("%s: unexpected samples %+v", k, got)
		}
	}

	if err := pub.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if pub.State() != StateShutdown {
		t.Fatalf("expected SHUTDOWN, got %s", pub.State())
	}
	if err := pub.Shutdown(); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	for k, r := range readers {
		got := drain(t, r, 1)
		if got[0].Valid || got[0].Reading.ID != want[k].ID {
			t.Fatalf("%s: expected lifecycle sample after shutdown, got %+v", k, got)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	bus := network.NewMemoryPubSub()
	subP := newParticipant(t, bus)
	r, err := subP.Open("humidity", channel.RoleReader)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	pub, err := New(newParticipant(t, bus), Config{
		NodeID:     "2",
		Host:       "h",
		Period:     5 * time.Millisecond,
		Kinds:      []sensor.Kind{sensor.Humidity},
		Generators: map[sensor.Kind]sensor.Generator{sensor.Humidity: sensor.Sequence(10, 11, 12)},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := pub.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Run(ctx) }()

	got := drain(t, r, 3)
	for i, want := range []float32{10, 11, 12} {
		if got[i].Reading.Value != want {
			t.Fatalf("sample %d: got %v want %v", i, got[i].Reading.Value, want)
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if err := pub.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestRunReturnsSendError(t *testing.T) {
	bus := network.NewMemoryPubSub()
	pub, err := New(newParticipant(t, bus), Config{NodeID: "1", Host: "h", Period: time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := pub.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = bus.Close()

	done := make(chan error, 1)
	go func() { done <- pub.Run(context.Background()) }()
	select {
	case err := <-done:
		var sendErr *channel.SendError
		if !errors.As(err, &sendErr) || !errors.Is(err, network.ErrClosed) {
			t.Fatalf("expected SendError from a closed transport, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run should stop on an unrecoverable send error")
	}
}

// failingBinder refuses to open the channel named fail.
type failingBinder struct {
	*channel.Participant
	fail string
}

func (b failingBinder) Open(name string, role channel.Role, opts ...channel.OpenOption) (*channel.Handle, error) {
	if name == b.fail {
		return nil, &channel.BindError{Channel: name, Role: role, Step: channel.StepCreateTopic, Err: errors.New("refused")}
	}
	return b.Participant.Open(name, role, opts...)
}

func TestStartClosesOpenedWritersOnBindFailure(t *testing.T) {
	part := newParticipant(t, network.NewMemoryPubSub())
	pub, err := New(failingBinder{Participant: part, fail: "rain"}, Config{NodeID: "1", Host: "h"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = pub.Start()
	var bindErr *channel.BindError
	if !errors.As(err, &bindErr) || bindErr.Channel != "rain" {
		t.Fatalf("expected rain BindError, got %v", err)
	}
	if pub.State() != StateShutdown {
		t.Fatalf("expected SHUTDOWN after failed start, got %s", pub.State())
	}
	// humidity and temperature were released, so they can be bound again
	for _, name := range []string{"humidity", "temperature"} {
		h, err := part.Open(name, channel.RoleWriter)
		if err != nil {
			t.Fatalf("%s should be free: %v", name, err)
		}
		_ = h.Close()
	}
}

func TestNewRejectsMissingNodeID(t *testing.T) {
	part := newParticipant(t, network.NewMemoryPubSub())
	if _, err := New(part, Config{Host: "h"}); !errors.Is(err, sensor.ErrEmptyNodeID) {
		t.Fatalf("expected ErrEmptyNodeID, got %v", err)
	}
}

func TestSetPeriod(t *testing.T) {
	pub, err := New(newParticipant(t, network.NewMemoryPubSub()), Config{NodeID: "1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if pub.Period() != DefaultPeriod {
		t.Fatalf("default period = %v", pub.Period())
	}
	pub.SetPeriod(250 * time.Millisecond)
	if pub.Period() != 250*time.Millisecond {
		t.Fatalf("period = %v", pub.Period())
	}
	pub.SetPeriod(-1)
	if pub.Period() != DefaultPeriod {
		t.Fatalf("non-positive period should restore the default, got %v", pub.Period())
	}
}
