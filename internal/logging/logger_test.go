package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewTeesIntoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "envdata.log")
	var out bytes.Buffer
	logger, closer, err := New(Options{Level: "debug", Format: "json", FilePath: path}, &out)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug("channel bound", "channel", "rain")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for name, got := range map[string]string{"writer": out.String(), "file": string(data)} {
		if !strings.Contains(got, `"msg":"channel bound"`) || !strings.Contains(got, `"channel":"rain"`) {
			t.Fatalf("%s: unexpected log output %q", name, got)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var out bytes.Buffer
	logger, _, err := New(Options{Level: "warn"}, &out)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(out.String(), "hidden") || !strings.Contains(out.String(), "msg=shown") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}, nil); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, _, err := New(Options{Format: "xml"}, nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
