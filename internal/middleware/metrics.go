package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Scan failure kinds reported to ScanFinished.
const (
	ScanFailureValidation  = "validation"
	ScanFailureAnalysis    = "analysis"
	ScanFailureNoReport    = "no_report"
	ScanFailureUnavailable = "report_unavailable"
	ScanFailureInternal    = "internal"
)

// counterSet is a set of counters keyed by a label such as a settlement status.
type counterSet struct {
	m sync.Map
}

func (c *counterSet) inc(key string) {
	v, _ := c.m.LoadOrStore(key, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
}

func (c *counterSet) snapshot() map[string]uint64 {
	out := map[string]uint64{}
	c.m.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}

// Metrics stores process-wide counters for the API and the scan workflow.
type Metrics struct {
	startTime time.Time

	requests   atomic.Uint64
	inFlight   atomic.Int64
	byClass    counterSet // "2xx", "4xx", ...
	scans      atomic.Uint64
	scansBusy  atomic.Int64
	scanMillis atomic.Uint64
	failures   counterSet // by ScanFailure* kind
	settlement counterSet // by creditDeductionStatus
}

var globalMetrics = &Metrics{startTime: time.Now()}

// ScanStarted marks one scan request entering the workflow.
func ScanStarted() {
	globalMetrics.scans.Add(1)
	globalMetrics.scansBusy.Add(1)
}

// ScanFinished records how long a scan request took and, when failure is
// non-empty, why it failed.
func ScanFinished(d time.Duration, failure string) {
	globalMetrics.scansBusy.Add(-1)
	globalMetrics.scanMillis.Add(uint64(d.Milliseconds()))
	if failure != "" {
		globalMetrics.failures.inc(failure)
	}
}

// RecordSettlement counts one credit settlement outcome.
func RecordSettlement(status string) {
	globalMetrics.settlement.inc(status)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	g := globalMetrics
	scans := g.scans.Load()
	var avgMillis uint64
	if scans > 0 {
		avgMillis = g.scanMillis.Load() / scans
	}

	return map[string]any{
		"requests_total":       g.requests.Load(),
		"requests_in_progress": g.inFlight.Load(),
		"responses_by_class":   g.byClass.snapshot(),
		"scans_total":          scans,
		"scans_running":        g.scansBusy.Load(),
		"scan_avg_ms":          avgMillis,
		"scan_failures":        g.failures.snapshot(),
		"credit_settlements":   g.settlement.snapshot(),
		"uptime_seconds":       time.Since(g.startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes": m.Alloc,
			"sys_bytes":   m.Sys,
			"num_gc":      m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware counts requests and their response status class.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		globalMetrics.requests.Add(1)
		globalMetrics.inFlight.Add(1)
		defer globalMetrics.inFlight.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		globalMetrics.byClass.inc(statusClass(wrapped.statusCode))
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(GetMetrics())
}
