package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/config"
	"arunlabs/synapse/pkg/routing"
)

type upRecorder struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (r *upRecorder) ObserveBackendUp(name string, up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	r.seen[name] = up
}

func testTable(t *testing.T, backends map[string]config.BackendConfig) *routing.Table {
	t.Helper()
	table, err := routing.NewTable(&config.Config{Backends: backends})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestAggregatorCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	table := testTable(t, map[string]config.BackendConfig{
		"llama-router":   {URL: healthy.URL, Type: "llm", Health: "/health"},
		"chatterbox-tts": {URL: failing.URL, Type: "tts", Health: "/health"},
		"whisper-stt":    {URL: deadURL, Type: "stt", Health: "/health"},
	})
	client := backend.NewClient(backend.Config{
		RetryDelays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	})
	defer client.Close()

	observer := &upRecorder{}
	agg := NewAggregator(client, table, observer, nil)

	snapshot := agg.Check(context.Background())
	if snapshot.Healthy() {
		t.Fatal("snapshot healthy with failing backends")
	}
	if snapshot.Status != "degraded" {
		t.Fatalf("status = %q", snapshot.Status)
	}
	if len(snapshot.Backends) != 3 {
		t.Fatalf("backends = %d", len(snapshot.Backends))
	}

	llm := snapshot.Backends["llama-router"]
	if !llm.Healthy || llm.Status != http.StatusOK || llm.Type != "llm" {
		t.Fatalf("llama-router = %+v", llm)
	}
	tts := snapshot.Backends["chatterbox-tts"]
	if tts.Healthy || tts.Status != http.StatusServiceUnavailable || tts.Error == "" {
		t.Fatalf("chatterbox-tts = %+v", tts)
	}
	stt := snapshot.Backends["whisper-stt"]
	if stt.Healthy || stt.Error == "" {
		t.Fatalf("whisper-stt = %+v", stt)
	}

	if !observer.seen["llama-router"] || observer.seen["chatterbox-tts"] || observer.seen["whisper-stt"] {
		t.Fatalf("observer = %v", observer.seen)
	}

	// The snapshot is cached for Last.
	last, ok := agg.Last()
	if !ok || last.Status != "degraded" {
		t.Fatalf("Last = %+v, %v", last, ok)
	}
}

func TestAggregatorAllHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	table := testTable(t, map[string]config.BackendConfig{
		"llama-router": {URL: srv.URL, Type: "llm", Health: "/health"},
	})
	client := backend.NewClient(backend.Config{
		RetryDelays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	})
	defer client.Close()

	snapshot := NewAggregator(client, table, nil, nil).Check(context.Background())
	if !snapshot.Healthy() {
		t.Fatalf("snapshot = %+v, want healthy", snapshot)
	}
}

func TestAggregatorLastBeforeAnyCheck(t *testing.T) {
	table := testTable(t, map[string]config.BackendConfig{
		"llama-router": {URL: "http://localhost:1", Type: "llm", Health: "/health"},
	})
	client := backend.NewClient(backend.Config{})
	defer client.Close()

	if _, ok := NewAggregator(client, table, nil, nil).Last(); ok {
		t.Fatal("Last reported a snapshot before any check ran")
	}
}

func TestAggregatorReportsOpenCircuit(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	table := testTable(t, map[string]config.BackendConfig{
		"whisper-stt": {URL: deadURL, Type: "stt", Health: "/health"},
	})
	client := backend.NewClient(backend.Config{
		MaxAttempts: 1,
		RetryDelays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	})
	defer client.Close()

	agg := NewAggregator(client, table, nil, nil)
	ctx := context.Background()

	// Enough failed probes to trip the breaker, then one more check that
	// short-circuits without a network attempt.
	for i := 0; i < 5; i++ {
		agg.Check(ctx)
	}
	snapshot := agg.Check(ctx)

	result := snapshot.Backends["whisper-stt"]
	if result.Healthy {
		t.Fatal("open circuit reported healthy")
	}
	if result.Error != "circuit open" {
		t.Fatalf("error = %q, want circuit open marker", result.Error)
	}
	if result.Circuit != string(backend.CircuitOpen) {
		t.Fatalf("circuit = %q", result.Circuit)
	}
}
