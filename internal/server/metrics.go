// metrics.go - Application counters and their text exposition.
//
// Deliberately not a metrics-library dependency: a handful of atomic
// counters rendered in the Prometheus text format covers what operations
// needs here.
package server

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

type appMetrics struct {
	requestsTotal atomic.Int64
	errors4xx     atomic.Int64
	errors5xx     atomic.Int64

	prepares    atomic.Int64
	confirms    atomic.Int64
	uploadBytes atomic.Int64
	downloads   atomic.Int64
	textSaves   atomic.Int64

	deletes      atomic.Int64
	lazyExpiries atomic.Int64
	sweepRuns    atomic.Int64
	sweepDeleted atomic.Int64
	claims       atomic.Int64
}

var metrics appMetrics

func (m *appMetrics) recordRequest(status int) {
	m.requestsTotal.Add(1)
	switch {
	case status >= 500:
		m.errors5xx.Add(1)
	case status >= 400:
		m.errors4xx.Add(1)
	}
}

// metricsHandler renders the counters at GET /metrics.
func metricsHandler() http.HandlerFunc {
	counter := func(w http.ResponseWriter, name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, r, errMethod)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := &metrics
		counter(w, "kd_requests_total", "Total HTTP requests", m.requestsTotal.Load())
		counter(w, "kd_request_errors_4xx_total", "Requests answered 4xx", m.errors4xx.Load())
		counter(w, "kd_request_errors_5xx_total", "Requests answered 5xx", m.errors5xx.Load())
		counter(w, "kd_upload_prepares_total", "Upload prepare calls accepted", m.prepares.Load())
		counter(w, "kd_upload_confirms_total", "Upload confirm calls accepted", m.confirms.Load())
		counter(w, "kd_upload_bytes_total", "Bytes accepted at confirm", m.uploadBytes.Load())
		counter(w, "kd_downloads_total", "Download redirects issued", m.downloads.Load())
		counter(w, "kd_text_saves_total", "Clipboard saves", m.textSaves.Load())
		counter(w, "kd_deletes_total", "Explicit drop deletions", m.deletes.Load())
		counter(w, "kd_lazy_expiries_total", "Drops expired on access", m.lazyExpiries.Load())
		counter(w, "kd_sweep_runs_total", "Expiry sweep runs", m.sweepRuns.Load())
		counter(w, "kd_sweep_deleted_total", "Drops deleted by sweeps", m.sweepDeleted.Load())
		counter(w, "kd_claims_total", "Drops claimed by registrations", m.claims.Load())
	}
}
