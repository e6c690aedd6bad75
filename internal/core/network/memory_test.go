package network

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestMemoryPublishFanOut(t *testing.T) {
	m := NewMemoryPubSub()
	a, cancelA, err := m.Subscribe("EnvironmentalData.humidity")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer cancelA()
	b, cancelB, err := m.Subscribe("EnvironmentalData.humidity")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer cancelB()

	if err := m.Publish("EnvironmentalData.humidity", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for name, ch := range map[string]<-chan Message{"a": a, "b": b} {
		select {
		case msg := <-ch:
			if string(msg.Payload) != "x" || msg.Topic != "EnvironmentalData.humidity" {
				t.Fatalf("%s: unexpected message %+v", name, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no message", name)
		}
	}
}

func TestMemoryPayloadIsCopied(t *testing.T) {
	m := NewMemoryPubSub()
	ch, cancel, err := m.Subscribe("t")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	buf := []byte("abc")
	if err := m.Publish("t", buf); err != nil {
		t.Fatalf("publish: %v", err)
	}
	buf[0] = 'z'
	if got := string((<-ch).Payload); got != "abc" {
		t.Fatalf("payload aliased caller buffer: %q", got)
	}
}

func TestMemoryCancelAndClose(t *testing.T) {
	m := NewMemoryPubSub()
	ch, cancel, err := m.Subscribe("t")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if m.Subscribers("t") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	if m.Subscribers("t") != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}

	ch2, cancel2, err := m.Subscribe("t")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-ch2; ok {
		t.Fatal("channel should be closed after transport close")
	}
	cancel2()
	if err := m.Publish("t", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, _, err := m.Subscribe("t"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on subscribe, got %v", err)
	}
}

func TestMemoryRejectsEmptyTopic(t *testing.T) {
	m := NewMemoryPubSub()
	if err := m.Publish("", nil); !errors.Is(err, ErrEmptyTopic) {
		t.Fatalf("expected ErrEmptyTopic, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrClosed, false},
		{fmt.Errorf("wrapped: %w", ErrClosed), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errPublishTimeout, true},
		{kafka.LeaderNotAvailable, true},
		{kafka.TopicAuthorizationFailed, false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestOpenUnknownKind(t *testing.T) {
	if _, err := Open(context.Background(), Options{Kind: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown transport")
	}
	tr, err := Open(context.Background(), Options{Kind: KindMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	_ = tr.Close()
}
