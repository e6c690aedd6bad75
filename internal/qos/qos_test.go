package qos

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Publisher.Partition != DefaultPartition || p.DataReader.History.Kind != KeepAll {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qos.yaml")
	doc := `
name: TestProfile
datawriter:
  reliability: best_effort
  max_blocking_time: 250ms
datareader:
  history:
    kind: keep_last
    depth: 4
  deadline: 2s
channels:
  temperature:
    deadline: 500ms
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "TestProfile" || p.DataWriter.Reliability != BestEffort {
		t.Fatalf("file values not applied: %+v", p)
	}
	if p.DataWriter.MaxBlockingTime != 250*time.Millisecond {
		t.Fatalf("max_blocking_time = %v", p.DataWriter.MaxBlockingTime)
	}
	if p.DataWriter.MaxSendRetries != Default().DataWriter.MaxSendRetries {
		t.Fatalf("unset field should keep its default, got %d", p.DataWriter.MaxSendRetries)
	}
	if p.Subscriber.Partition != DefaultPartition {
		t.Fatalf("partition default lost: %q", p.Subscriber.Partition)
	}

	if r := p.ReaderFor("temperature"); r.Deadline != 500*time.Millisecond || r.History.Depth != 4 {
		t.Fatalf("temperature reader qos = %+v", r)
	}
	if r := p.ReaderFor("rain"); r.Deadline != 2*time.Second {
		t.Fatalf("rain reader qos = %+v", r)
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qos.yaml")
	doc := `
datareader:
  reliability: sometimes
  history:
    kind: keep_last
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "datareader.reliability") || !strings.Contains(msg, "depth") {
		t.Fatalf("error should name both problems, got %q", msg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTopicFor(t *testing.T) {
	if got := TopicFor("", "rain"); got != "EnvironmentalData.rain" {
		t.Fatalf("got %q", got)
	}
	if got := TopicFor("Lab", "humidity"); got != "Lab.humidity" {
		t.Fatalf("got %q", got)
	}
}
