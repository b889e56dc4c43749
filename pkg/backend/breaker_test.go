package backend

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	br := newBreaker(5, 30*time.Second, nil)

	for i := 0; i < 4; i++ {
		br.recordFailure()
	}
	if got := br.snapshot().Status; got != CircuitClosed {
		t.Fatalf("status after 4 failures = %s, want closed", got)
	}

	br.recordFailure()
	state := br.snapshot()
	if state.Status != CircuitOpen {
		t.Fatalf("status after 5 failures = %s, want open", state.Status)
	}
	if state.ConsecutiveFailures != 5 {
		t.Fatalf("failures = %d, want 5", state.ConsecutiveFailures)
	}
	if state.OpenedAt == nil {
		t.Fatal("OpenedAt not set on open circuit")
	}
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	br := newBreaker(5, 30*time.Second, nil)

	for i := 0; i < 4; i++ {
		br.recordFailure()
	}
	br.recordSuccess()
	for i := 0; i < 4; i++ {
		br.recordFailure()
	}
	if got := br.snapshot().Status; got != CircuitClosed {
		t.Fatalf("status = %s, want closed: counter should reset on success", got)
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	br := newBreaker(5, 30*time.Second, func() time.Time { return clock })

	for i := 0; i < 5; i++ {
		br.recordFailure()
	}

	retryIn, ok := br.allow()
	if ok {
		t.Fatal("open circuit admitted a call before cooldown")
	}
	if retryIn != 30*time.Second {
		t.Fatalf("retryIn = %s, want 30s", retryIn)
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	br := newBreaker(5, 30*time.Second, func() time.Time { return clock })

	for i := 0; i < 5; i++ {
		br.recordFailure()
	}
	clock = clock.Add(31 * time.Second)

	if _, ok := br.allow(); !ok {
		t.Fatal("circuit did not admit a probe after cooldown")
	}
	if got := br.snapshot().Status; got != CircuitHalfOpen {
		t.Fatalf("status = %s, want half_open", got)
	}
	if _, ok := br.allow(); ok {
		t.Fatal("half-open circuit admitted a second concurrent probe")
	}
}

func TestBreakerAbortedProbeReleasesSlot(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	br := newBreaker(5, 30*time.Second, func() time.Time { return clock })

	for i := 0; i < 5; i++ {
		br.recordFailure()
	}
	clock = clock.Add(31 * time.Second)

	if _, ok := br.allow(); !ok {
		t.Fatal("circuit did not admit a probe after cooldown")
	}
	if _, ok := br.allow(); ok {
		t.Fatal("second call admitted while the probe is outstanding")
	}

	// The probe ends with no verdict. The slot must come back.
	br.abortProbe()
	if _, ok := br.allow(); !ok {
		t.Fatal("circuit stayed wedged after an aborted probe")
	}
	br.recordSuccess()
	if got := br.snapshot().Status; got != CircuitClosed {
		t.Fatalf("status = %s, want closed after the replacement probe", got)
	}
}

func TestBreakerProbeOutcomes(t *testing.T) {
	t.Run("probe success closes", func(t *testing.T) {
		clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		br := newBreaker(5, 30*time.Second, func() time.Time { return clock })
		for i := 0; i < 5; i++ {
			br.recordFailure()
		}
		clock = clock.Add(31 * time.Second)
		br.allow()
		br.recordSuccess()
		if got := br.snapshot().Status; got != CircuitClosed {
			t.Fatalf("status = %s, want closed", got)
		}
		if _, ok := br.allow(); !ok {
			t.Fatal("closed circuit rejected a call")
		}
	})

	t.Run("probe failure reopens", func(t *testing.T) {
		clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		br := newBreaker(5, 30*time.Second, func() time.Time { return clock })
		for i := 0; i < 5; i++ {
			br.recordFailure()
		}
		clock = clock.Add(31 * time.Second)
		br.allow()
		br.recordFailure()
		if got := br.snapshot().Status; got != CircuitOpen {
			t.Fatalf("status = %s, want open", got)
		}
		// The cooldown restarts from the failed probe.
		if _, ok := br.allow(); ok {
			t.Fatal("reopened circuit admitted a call immediately")
		}
	})
}
