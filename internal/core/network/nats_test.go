package network

import (
	"context"
	"errors"
	"testing"
)

func TestNATSStreamNeedsPartitionSubjects(t *testing.T) {
	for _, subjects := range [][]string{nil, {">"}, {"EnvironmentalData.>", ""}} {
		_, err := NATSConnect(context.Background(), NATSOptions{
			URL:            "nats://127.0.0.1:1",
			Stream:         "ENVDATA",
			StreamSubjects: subjects,
		})
		if !errors.Is(err, ErrStreamSubjects) {
			t.Fatalf("subjects %q: expected ErrStreamSubjects, got %v", subjects, err)
		}
	}
	if err := CheckStreamSubjects([]string{"EnvironmentalData.>"}); err != nil {
		t.Fatalf("partition wildcard rejected: %v", err)
	}
}
