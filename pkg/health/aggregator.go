// Package health polls every configured backend's health endpoint and
// aggregates the results into one gateway-level status.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/routing"
)

// probeTimeout bounds a single health probe. Health answers should be
// instant; anything slower counts as unhealthy.
const probeTimeout = 5 * time.Second

// BackendHealth is one backend's probe result.
type BackendHealth struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Healthy   bool   `json:"healthy"`
	Status    int    `json:"status,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Circuit   string `json:"circuit"`
	Error     string `json:"error,omitempty"`
}

// Snapshot aggregates all backend probes. Status is "healthy" when every
// backend answered, "degraded" otherwise. The gateway itself being up is
// what the snapshot existing means.
type Snapshot struct {
	Status    string                   `json:"status"`
	CheckedAt time.Time                `json:"checked_at"`
	Backends  map[string]BackendHealth `json:"backends"`
}

// Healthy reports whether every backend probe succeeded.
func (s Snapshot) Healthy() bool { return s.Status == "healthy" }

// Observer receives per-backend up/down results for metrics.
type Observer interface {
	ObserveBackendUp(name string, up bool)
}

// Aggregator probes backends through the resilient client, so an open
// circuit short-circuits to unhealthy without a network attempt.
type Aggregator struct {
	client   *backend.Client
	table    *routing.Table
	observer Observer
	logger   *slog.Logger

	mu   sync.RWMutex
	last *Snapshot
}

// NewAggregator creates an aggregator over the routing table's backends.
func NewAggregator(client *backend.Client, table *routing.Table, observer Observer, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		client:   client,
		table:    table,
		observer: observer,
		logger:   logger.With("component", "health"),
	}
}

// Check probes every backend concurrently and returns the aggregate. The
// snapshot is also cached for Last.
func (a *Aggregator) Check(ctx context.Context) Snapshot {
	backends := a.table.Backends()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]BackendHealth, len(names))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func(b *routing.Backend) {
			defer wg.Done()
			result := a.probe(ctx, b)
			mu.Lock()
			results[b.Name] = result
			mu.Unlock()
		}(backends[name])
	}
	wg.Wait()

	status := "healthy"
	for _, r := range results {
		if a.observer != nil {
			a.observer.ObserveBackendUp(r.Name, r.Healthy)
		}
		if !r.Healthy {
			status = "degraded"
		}
	}

	snapshot := Snapshot{Status: status, CheckedAt: time.Now().UTC(), Backends: results}
	a.mu.Lock()
	a.last = &snapshot
	a.mu.Unlock()
	return snapshot
}

// Last returns the most recent snapshot, if any check has run.
func (a *Aggregator) Last() (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return Snapshot{}, false
	}
	return *a.last, true
}

// probe performs one health request. Probes never retry; a transient miss
// just shows as degraded until the next check.
func (a *Aggregator) probe(ctx context.Context, b *routing.Backend) BackendHealth {
	result := BackendHealth{
		Name:    b.Name,
		Type:    b.Type,
		Circuit: string(a.client.CircuitState(b.Name).Status),
	}

	start := time.Now()
	resp, err := a.client.Do(ctx, backend.Request{
		Backend: b,
		Method:  http.MethodGet,
		Path:    b.HealthPath,
		Timeout: probeTimeout,
		NoRetry: true,
	})
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		var open *backend.CircuitOpenError
		if errors.As(err, &open) {
			result.Error = "circuit open"
		} else {
			result.Error = err.Error()
		}
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.Healthy = resp.StatusCode < 400
	if !result.Healthy {
		result.Error = http.StatusText(resp.StatusCode)
	}
	return result
}
