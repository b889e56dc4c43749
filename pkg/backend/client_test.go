package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arunlabs/synapse/pkg/routing"
)

// fastDelays keeps retry waits out of test runtime.
var fastDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}

func testBackend(name, baseURL string) *routing.Backend {
	return &routing.Backend{
		Name:       name,
		BaseURL:    baseURL,
		Type:       "llm",
		HealthPath: "/health",
		Timeout:    routing.ClassDefault,
	}
}

// deadEndpoint returns a URL nothing listens on.
func deadEndpoint(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

type recordingObserver struct {
	mu       sync.Mutex
	requests int
	retries  int
}

func (o *recordingObserver) ObserveRequest(string, int, time.Duration) {
	o.mu.Lock()
	o.requests++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveRetry(string) {
	o.mu.Lock()
	o.retries++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveCircuit(string, CircuitStatus) {}

func TestClientRetriesConnectionFaults(t *testing.T) {
	obs := &recordingObserver{}
	client := NewClient(Config{RetryDelays: fastDelays, Observer: obs})
	defer client.Close()

	_, err := client.Do(context.Background(), Request{
		Backend: testBackend("dead", deadEndpoint(t)),
		Method:  http.MethodGet,
		Path:    "/anything",
	})
	if err == nil {
		t.Fatal("expected error calling dead backend")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %T, want *ConnectionError", err)
	}
	if !IsConnectionFault(err) {
		t.Fatal("connection error not classified as connection fault")
	}
	if connErr.Attempts != 3 {
		t.Fatalf("Attempts = %d, want the full attempt count", connErr.Attempts)
	}
	if obs.retries != 2 {
		t.Fatalf("retries = %d, want 2 (3 attempts per logical call)", obs.retries)
	}
}

func TestClientHTTPErrorIsNotAFault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{RetryDelays: fastDelays})
	defer client.Close()
	b := testBackend("erroring", srv.URL)

	// Far more calls than the breaker threshold.
	for i := 0; i < 10; i++ {
		resp, err := client.Do(context.Background(), Request{
			Backend: b,
			Method:  http.MethodGet,
			Path:    "/v1/chat/completions",
		})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("call %d: status = %d, want 500", i, resp.StatusCode)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	if int(calls.Load()) != 10 {
		t.Fatalf("backend saw %d calls, want 10 (HTTP errors must not retry)", calls.Load())
	}
	if got := client.CircuitState("erroring").Status; got != CircuitClosed {
		t.Fatalf("circuit = %s, want closed: reachable backends never trip the breaker", got)
	}
}

func TestClientOpensCircuitAndFailsFast(t *testing.T) {
	client := NewClient(Config{MaxAttempts: 1, RetryDelays: fastDelays})
	defer client.Close()
	b := testBackend("down", deadEndpoint(t))

	for i := 0; i < 5; i++ {
		if _, err := client.Do(context.Background(), Request{Backend: b, Method: http.MethodGet, Path: "/x"}); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}
	if got := client.CircuitState("down").Status; got != CircuitOpen {
		t.Fatalf("circuit = %s after 5 faults, want open", got)
	}

	start := time.Now()
	_, err := client.Do(context.Background(), Request{Backend: b, Method: http.MethodGet, Path: "/x"})
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("error = %T, want *CircuitOpenError", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("open-circuit rejection took %s, want immediate", elapsed)
	}
	if openErr.RetryIn <= 0 || openErr.RetryIn > 30*time.Second {
		t.Fatalf("RetryIn = %s, want within (0, 30s]", openErr.RetryIn)
	}
}

func TestClientHalfOpenProbeRecovers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	client := NewClient(Config{
		MaxAttempts: 1,
		RetryDelays: fastDelays,
		now: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			return clock
		},
	})
	defer client.Close()

	// Trip the breaker against a dead endpoint, then point the same backend
	// name at a healthy server.
	dead := testBackend("flaky", deadEndpoint(t))
	for i := 0; i < 5; i++ {
		client.Do(context.Background(), Request{Backend: dead, Method: http.MethodGet, Path: "/x"})
	}
	if got := client.CircuitState("flaky").Status; got != CircuitOpen {
		t.Fatalf("circuit = %s, want open", got)
	}

	clockMu.Lock()
	clock = clock.Add(31 * time.Second)
	clockMu.Unlock()

	alive := testBackend("flaky", srv.URL)
	resp, err := client.Do(context.Background(), Request{Backend: alive, Method: http.MethodGet, Path: "/x"})
	if err != nil {
		t.Fatalf("probe after cooldown failed: %v", err)
	}
	resp.Body.Close()
	if got := client.CircuitState("flaky").Status; got != CircuitClosed {
		t.Fatalf("circuit = %s after successful probe, want closed", got)
	}
}

func TestClientCanceledProbeDoesNotWedgeCircuit(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	hanging := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer hanging.Close()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	client := NewClient(Config{
		MaxAttempts: 1,
		RetryDelays: fastDelays,
		now: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			return clock
		},
	})
	defer client.Close()

	advance := func(d time.Duration) {
		clockMu.Lock()
		clock = clock.Add(d)
		clockMu.Unlock()
	}

	dead := testBackend("wedge", deadEndpoint(t))
	for i := 0; i < 5; i++ {
		client.Do(context.Background(), Request{Backend: dead, Method: http.MethodGet, Path: "/x"})
	}
	advance(31 * time.Second)

	// The admitted probe's caller hangs up mid-request, so the probe ends
	// with no verdict.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	slow := testBackend("wedge", hanging.URL)
	if _, err := client.Do(ctx, Request{Backend: slow, Method: http.MethodGet, Path: "/x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("probe error = %v, want context.Canceled", err)
	}

	// Long after the cooldown, a healthy backend must be reachable again.
	advance(4 * time.Hour)
	alive := testBackend("wedge", healthy.URL)
	for i := 0; i < 3; i++ {
		resp, err := client.Do(context.Background(), Request{Backend: alive, Method: http.MethodGet, Path: "/x"})
		if err != nil {
			t.Fatalf("call %d after aborted probe: %v", i, err)
		}
		resp.Body.Close()
	}
	if got := client.CircuitState("wedge").Status; got != CircuitClosed {
		t.Fatalf("circuit = %s, want closed", got)
	}
}

func TestClientDeadlineIsConnectionFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(Config{MaxAttempts: 1, RetryDelays: fastDelays})
	defer client.Close()
	b := testBackend("slow", srv.URL)

	_, err := client.Do(context.Background(), Request{
		Backend: b,
		Method:  http.MethodGet,
		Path:    "/x",
		Timeout: 30 * time.Millisecond,
	})
	var deadlineErr *DeadlineError
	if !errors.As(err, &deadlineErr) {
		t.Fatalf("error = %T (%v), want *DeadlineError", err, err)
	}
	if !IsConnectionFault(err) {
		t.Fatal("deadline not classified as connection fault")
	}
	if got := client.CircuitState("slow").ConsecutiveFailures; got != 1 {
		t.Fatalf("failures = %d, want 1: timeouts count toward the breaker", got)
	}
}

func TestClientCancellationIsNotAFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(Config{RetryDelays: fastDelays})
	defer client.Close()
	b := testBackend("abandoned", srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := client.Do(ctx, Request{Backend: b, Method: http.MethodGet, Path: "/x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := client.CircuitState("abandoned").ConsecutiveFailures; got != 0 {
		t.Fatalf("failures = %d, want 0: client disconnects are not backend faults", got)
	}
}
