package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"EnvData-Apps/internal/channel"
	"EnvData-Apps/internal/metrics"
	"EnvData-Apps/internal/sensor"
	"EnvData-Apps/internal/subscriber"
)

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SamplesSent.WithLabelValues("humidity").Add(3)

	srv := New(Options{Role: "publisher", State: func() string { return "RUNNING" }, Gatherer: reg})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" || health["role"] != "publisher" || health["state"] != "RUNNING" {
		t.Fatalf("unexpected health body %v", health)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `envdata_samples_sent_total{channel="humidity"} 3`) {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readings", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("publisher should not serve readings, got %d", rec.Code)
	}
}

func TestReadingsRoutes(t *testing.T) {
	board := subscriber.NewBoard()
	h := New(Options{Role: "subscriber", Gatherer: prometheus.NewRegistry(), Readings: board}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readings/humidity", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 before any sample, got %d", rec.Code)
	}

	board.Observe(sensor.Humidity, channel.Sample{
		Reading: sensor.Reading{ID: "host1N1S0hum", Type: "humidity sensor", Value: 69.5},
		Valid:   true,
		Info:    channel.SampleInfo{Seq: 4},
	})

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readings/Humidity/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reading status %d: %s", rec.Code, rec.Body.String())
	}
	var e subscriber.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if e.Reading.Value != 69.5 || e.Seq != 4 || e.Kind != "humidity" {
		t.Fatalf("unexpected entry %+v", e)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readings", nil))
	var list struct {
		Readings []subscriber.Entry `json:"readings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Readings) != 1 {
		t.Fatalf("expected one reading, got %+v", list.Readings)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readings/pressure", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown kind should be 404, got %d", rec.Code)
	}
}

func TestReadingStream(t *testing.T) {
	board := subscriber.NewBoard()
	ts := httptest.NewServer(New(Options{Role: "subscriber", Gatherer: prometheus.NewRegistry(), Readings: board}).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/readings/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	board.Observe(sensor.Rain, channel.Sample{Reading: sensor.Reading{ID: "r", Type: "rain sensor", Value: 1}, Valid: true})

	rd := bufio.NewReader(resp.Body)
	var event, data string
	for data == "" {
		line, err := rd.ReadString('\n')
		if err != nil && err != io.EOF {
			t.Fatalf("read stream: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
		if err == io.EOF {
			break
		}
	}
	if event != "reading" {
		t.Fatalf("event = %q", event)
	}
	var e subscriber.Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if e.Kind != "rain" || e.Reading.ID != "r" {
		t.Fatalf("unexpected event %+v", e)
	}
}
