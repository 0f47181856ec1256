package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker is one dependency probed by /health.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the document store.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// HealthHandler probes every checker concurrently and answers 503 if any fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return healthHandler(checkers, 5*time.Second)
}

func healthHandler(checkers map[string]HealthChecker, budget time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), budget)
		defer cancel()

		health := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]CheckStatus, len(checkers)),
		}

		type result struct {
			name string
			st   CheckStatus
		}
		// buffered so a checker that outlives the deadline never blocks
		results := make(chan result, len(checkers))
		for name, checker := range checkers {
			go func(name string, checker HealthChecker) {
				start := time.Now()
				err := checker.Check(ctx)
				st := CheckStatus{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
				if err != nil {
					st.Status = "unhealthy"
					st.Message = err.Error()
				}
				results <- result{name: name, st: st}
			}(name, checker)
		}

	collect:
		for range checkers {
			select {
			case r := <-results:
				health.Checks[r.name] = r.st
			case <-ctx.Done():
				break collect
			}
		}
		for name := range checkers {
			if _, ok := health.Checks[name]; !ok {
				health.Checks[name] = CheckStatus{Status: "unhealthy", Message: "check timed out"}
			}
		}
		for _, st := range health.Checks {
			if st.Status != "healthy" {
				health.Status = "unhealthy"
			}
		}

		code := http.StatusOK
		if health.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// Readiness is flipped off when the server starts draining so load balancers
// stop routing new scans to it.
type Readiness struct {
	draining atomic.Bool
}

// Drain marks the process as not ready.
func (r *Readiness) Drain() { r.draining.Store(true) }

// Ready reports whether new requests should be routed here. A nil Readiness is always ready.
func (r *Readiness) Ready() bool { return r == nil || !r.draining.Load() }

// ReadinessHandler answers 200 while ready and 503 while draining.
func ReadinessHandler(state *Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, code := "ready", http.StatusOK
		if !state.Ready() {
			status, code = "draining", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC(),
		})
	}
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
