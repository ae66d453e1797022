// Package health implements Kubernetes-style liveness and readiness probes.
//
// All registered probes are evaluated by a single background poller at a
// fixed interval. Probes flip state only after consecutive results cross a
// threshold (three failures to go unhealthy, one success to recover), so a
// single slow database ping does not knock the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes a single component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	failuresToTrip   = 3
	successesToReset = 1
)

type probeKind int

const (
	kindLiveness probeKind = iota
	kindReadiness
)

// probe is one registered check plus its sliding state. All fields after
// check are guarded by Health.mu; the poller and the HTTP handlers both
// take the lock, never holding it across a check invocation.
type probe struct {
	name    string
	kind    probeKind
	timeout time.Duration
	check   CheckFunc

	healthy    bool
	lastErr    error
	failStreak int
	okStreak   int
}

// Health tracks the probe set and the manual ready flag for a service.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Health with no probes. The service starts not-ready;
// call SetReady(true) once initialization is complete.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe reported on the liveness endpoint.
// Liveness failures mean the process itself is wedged (goroutine leaks,
// runaway GC) and should be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(name, kindLiveness, timeout, check)
}

// AddReadinessCheck registers a probe reported on the readiness endpoint.
// Readiness failures mean the service should be taken out of rotation
// (database unreachable, dependency down) but not restarted.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(name, kindReadiness, timeout, check)
}

func (h *Health) add(name string, kind probeKind, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.probes = append(h.probes, &probe{
		name:    name,
		kind:    kind,
		timeout: timeout,
		check:   check,
		healthy: true, // assume healthy until proven otherwise
	})
}

// Start launches the background poller. Each cycle evaluates every probe
// sequentially, each under its own timeout. Probes registered after Start
// are picked up on the next cycle.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	go h.poll(ctx, interval)
}

func (h *Health) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.runAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runAll(ctx)
		}
	}
}

func (h *Health) runAll(ctx context.Context) {
	h.mu.Lock()
	probes := make([]*probe, len(h.probes))
	copy(probes, h.probes)
	h.mu.Unlock()

	for _, p := range probes {
		checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.check(checkCtx)
		cancel()

		h.mu.Lock()
		p.lastErr = err
		if err != nil {
			p.okStreak = 0
			p.failStreak++
			if p.failStreak >= failuresToTrip {
				p.healthy = false
			}
		} else {
			p.failStreak = 0
			p.okStreak++
			if p.okStreak >= successesToReset {
				p.healthy = true
			}
		}
		h.mu.Unlock()
	}
}

// SetReady flips the manual readiness flag. Call with true after startup,
// and with false at the start of graceful shutdown to drain traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service should receive traffic: the manual
// flag must be set and every readiness probe must be passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return len(h.failures(kindReadiness)) == 0
}

// Stop halts the background poller. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Health) failures(kind probeKind) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var failed map[string]string
	for _, p := range h.probes {
		if p.kind != kind || p.healthy {
			continue
		}
		if failed == nil {
			failed = make(map[string]string)
		}
		if p.lastErr != nil {
			failed[p.name] = p.lastErr.Error()
		} else {
			failed[p.name] = "check is unhealthy"
		}
	}
	return failed
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves the liveness probe. 200 when every liveness check
// passes, 503 with per-check errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(kindLiveness))
}

// ReadyEndpoint serves the readiness probe. 200 only when the service has
// been marked ready and every readiness check passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := h.failures(kindReadiness)
	if !h.ready.Load() {
		if failed == nil {
			failed = make(map[string]string)
		}
		failed["not_ready"] = "service is not accepting traffic"
	}
	writeStatus(w, failed)
}

func writeStatus(w http.ResponseWriter, failed map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failed
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
