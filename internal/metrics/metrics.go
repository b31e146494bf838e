// Package metrics wires the historian's Prometheus registry to an
// HTTP endpoint, matching the teacher's bare ":2112"/"/metrics"
// wiring in cmd/mqtt-to-postgresql/main.go.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Serve starts the Prometheus metrics endpoint on addr in its own
// goroutine. Errors are logged, not returned, since a metrics outage
// must never take down ingestion.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			zap.S().Errorw("metrics: server stopped", "addr", addr, "error", err)
		}
	}()
}
