package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"arunlabs/synapse/pkg/routing"
)

// DefaultTimeouts maps timeout classes to per-call deadlines. LLM calls get
// the longest budget to cover slow completions and model loads.
var DefaultTimeouts = map[routing.TimeoutClass]time.Duration{
	routing.ClassLLM:        300 * time.Second,
	routing.ClassTTS:        120 * time.Second,
	routing.ClassSTT:        120 * time.Second,
	routing.ClassSpeaker:    120 * time.Second,
	routing.ClassAudio:      60 * time.Second,
	routing.ClassEmbeddings: 60 * time.Second,
	routing.ClassDefault:    60 * time.Second,
}

// DefaultRetryDelays is the wait schedule between attempts.
var DefaultRetryDelays = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// Observer receives client events for metrics collection. All methods must
// be safe for concurrent use.
type Observer interface {
	ObserveRequest(backend string, status int, duration time.Duration)
	ObserveRetry(backend string)
	ObserveCircuit(backend string, state CircuitStatus)
}

// Config configures the resilient client.
type Config struct {
	// MaxAttempts is the attempt budget per logical call. Default: 3
	MaxAttempts int

	// RetryDelays is the wait schedule between attempts; the last entry
	// repeats if there are more attempts than delays.
	// Default: 0.5s, 1s, 2s
	RetryDelays []time.Duration

	// BreakerThreshold is the consecutive connection-fault count that
	// opens a circuit. Default: 5
	BreakerThreshold uint

	// BreakerCooldown is how long an open circuit rejects calls before
	// admitting a probe. Default: 30s
	BreakerCooldown time.Duration

	// Timeouts overrides DefaultTimeouts per class when non-nil.
	Timeouts map[routing.TimeoutClass]time.Duration

	// MaxIdleConns / MaxIdleConnsPerHost / IdleConnTimeout tune the
	// shared connection pool.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// Observer receives request/retry/circuit events. Optional.
	Observer Observer

	// Logger is used for retry and breaker transitions. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// now is injectable for breaker cooldown tests.
	now func() time.Time
}

// Request is one outbound backend call.
type Request struct {
	// Backend is the resolved backend descriptor.
	Backend *routing.Backend

	// Method and Path form the call; Path is joined to the backend base
	// URL and may carry a query string.
	Method string
	Path   string

	// Body is the request body; retried attempts resend the same bytes.
	Body []byte

	// Header entries are copied onto the outbound request.
	Header http.Header

	// Timeout overrides the backend's timeout class when positive.
	Timeout time.Duration

	// NoRetry disables the retry loop (streaming responses, probes).
	NoRetry bool
}

// Client is the resilient per-backend HTTP client: one shared connection
// pool, a retry policy for connection-level faults, and an independent
// circuit breaker per backend name. It never mutates the routing table.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewClient creates a resilient client with pooled connections.
func NewClient(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = DefaultRetryDelays
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = DefaultTimeouts
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 20
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		cfg:      cfg,
		http:     &http.Client{Transport: transport},
		logger:   logger.With("component", "backend.client"),
		breakers: make(map[string]*breaker),
	}
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// CircuitState returns the current circuit snapshot for a backend.
func (c *Client) CircuitState(backend string) CircuitState {
	return c.breaker(backend).snapshot()
}

// Do performs one logical call: circuit check, up to MaxAttempts network
// attempts with the configured delays between them, fault accounting.
//
// The returned response body is streamed from the backend; the caller must
// close it. HTTP error statuses are returned as responses, not errors, and
// reset the breaker's failure counter.
//
// Cancellation of ctx by the inbound client is surfaced as the context
// error and is not counted as a backend fault.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	br := c.breaker(req.Backend.Name)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeoutFor(req.Backend.Timeout)
	}

	attempts := c.cfg.MaxAttempts
	if req.NoRetry {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.observeRetry(req.Backend.Name)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay(attempt - 1)):
			}
		}

		if retryIn, ok := br.allow(); !ok {
			c.observeCircuit(req.Backend.Name, CircuitOpen)
			return nil, &CircuitOpenError{Backend: req.Backend.Name, RetryIn: retryIn}
		}

		resp, err := c.attempt(ctx, req, timeout, attempt+1)
		if err == nil {
			br.recordSuccess()
			c.observeCircuit(req.Backend.Name, CircuitClosed)
			return resp, nil
		}

		// Inbound cancellation is not the backend's fault. No verdict is
		// recorded, so an admitted probe must be handed back.
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			br.abortProbe()
			return nil, ctx.Err()
		}

		lastErr = err
		if !IsConnectionFault(err) {
			br.abortProbe()
			return nil, err
		}

		br.recordFailure()
		c.observeCircuit(req.Backend.Name, br.snapshot().Status)
		c.logger.Warn("backend attempt failed",
			"backend", req.Backend.Name,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"error", err,
		)
	}

	return nil, lastErr
}

// DoJSON performs a call with a JSON body and Content-Type header.
func (c *Client) DoJSON(ctx context.Context, req Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.Do(ctx, req)
}

// attempt performs a single network attempt with a hard per-call deadline.
// attemptNo is 1-based and reported in connection errors.
func (c *Client) attempt(ctx context.Context, req Request, timeout time.Duration, attemptNo int) (*http.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, req.Backend.BaseURL+req.Path, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		c.observeRequest(req.Backend.Name, 0, time.Since(start))
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &DeadlineError{Backend: req.Backend.Name, Timeout: timeout}
		}
		return nil, &ConnectionError{Backend: req.Backend.Name, Attempts: attemptNo, Cause: err}
	}

	c.observeRequest(req.Backend.Name, resp.StatusCode, time.Since(start))

	// Keep the deadline alive while the caller streams the body.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) breaker(name string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	br, ok := c.breakers[name]
	if !ok {
		br = newBreaker(c.cfg.BreakerThreshold, c.cfg.BreakerCooldown, c.cfg.now)
		c.breakers[name] = br
	}
	return br
}

func (c *Client) timeoutFor(class routing.TimeoutClass) time.Duration {
	if d, ok := c.cfg.Timeouts[class]; ok {
		return d
	}
	return DefaultTimeouts[routing.ClassDefault]
}

func (c *Client) retryDelay(i int) time.Duration {
	if i >= len(c.cfg.RetryDelays) {
		i = len(c.cfg.RetryDelays) - 1
	}
	return c.cfg.RetryDelays[i]
}

func (c *Client) observeRequest(backend string, status int, d time.Duration) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveRequest(backend, status, d)
	}
}

func (c *Client) observeRetry(backend string) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveRetry(backend)
	}
}

func (c *Client) observeCircuit(backend string, state CircuitStatus) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveCircuit(backend, state)
	}
}

// cancelOnClose ties a per-call context to the response body lifetime.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
