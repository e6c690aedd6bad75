package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"EnvData-Apps/internal/core/network"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// spyTransport records every call made to it.
type spyTransport struct {
	mu    sync.Mutex
	calls int
}

func (s *spyTransport) Publish(string, []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func (s *spyTransport) Subscribe(string) (<-chan network.Message, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return make(chan network.Message), func() {}, nil
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "envdata.yaml")
	body := `
transport:
  kind: memory
publisher:
  period: 10ms
subscriber:
  period: 10ms
logging:
  level: error
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestPublisherMissingNodeID(t *testing.T) {
	for _, args := range [][]string{nil, {"-config", writeConfig(t)}, {" "}} {
		var out bytes.Buffer
		spy := &spyTransport{}
		err := RunPublisher(context.Background(), args, Env{Stdout: &out, Stderr: &out, Transport: spy})

		var argErr *ArgumentError
		if !errors.As(err, &argErr) || argErr.Name != "node-id" {
			t.Fatalf("args %q: expected node-id ArgumentError, got %v", args, err)
		}
		if ExitCode(err) == 0 {
			t.Fatalf("args %q: expected non-zero exit code", args)
		}
		if out.String() != "ERROR: NODE ID MISSING! EXITING NOW...\n" {
			t.Fatalf("args %q: unexpected output %q", args, out.String())
		}
		if spy.calls != 0 {
			t.Fatalf("args %q: no channel should be opened, transport saw %d calls", args, spy.calls)
		}
	}
}

func TestSubscriberRejectsArguments(t *testing.T) {
	var out bytes.Buffer
	err := RunSubscriber(context.Background(), []string{"extra"}, Env{Stdout: &out, Stderr: &out, Transport: &spyTransport{}})
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestBadFlag(t *testing.T) {
	var out bytes.Buffer
	err := RunPublisher(context.Background(), []string{"-nope", "1"}, Env{Stdout: &out, Stderr: &out})
	var argErr *ArgumentError
	if !errors.As(err, &argErr) || ExitCode(err) != 1 {
		t.Fatalf("expected ArgumentError for unknown flag, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("nil should map to 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatal("errors should map to 1")
	}
}

func TestPublisherToSubscriber(t *testing.T) {
	cfg := writeConfig(t)
	bus := network.NewMemoryPubSub()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subOut := &syncBuffer{}
	subDone := make(chan error, 1)
	go func() {
		subDone <- RunSubscriber(ctx, []string{"-config", cfg}, Env{Stdout: subOut, Stderr: &syncBuffer{}, Transport: bus})
	}()
	waitFor(t, subOut, "=== [Subscriber] Ready ...")

	pubOut := &syncBuffer{}
	pubDone := make(chan error, 1)
	go func() {
		pubDone <- RunPublisher(ctx, []string{"-config", cfg, "1"}, Env{
			Stdout:    pubOut,
			Stderr:    &syncBuffer{},
			Hostname:  func() (string, error) { return "host1", nil },
			Transport: bus,
		})
	}()
	waitFor(t, pubOut, "=== [Publisher] Ready ...")
	for _, prefix := range []string{"Humi: ", "Rain: ", "Temperature: "} {
		waitFor(t, subOut, prefix)
	}

	cancel()
	for name, ch := range map[string]chan error{"publisher": pubDone, "subscriber": subDone} {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("%s did not stop", name)
		}
	}
}

func waitFor(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in %q", want, b.String())
}
