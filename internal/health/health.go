// Package health wires heptiolabs/healthcheck's liveness/readiness
// handler, matching the teacher's ":8086" healthcheck server.
package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// New returns a fresh healthcheck.Handler with the goroutine-leak
// guard the teacher applies to every service, plus room for
// component-specific liveness checks (bus connectivity, database
// reachability) registered by the caller.
func New() healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000))
	return h
}

// Serve starts the healthcheck handler on addr in its own goroutine.
func Serve(addr string, h healthcheck.Handler) {
	go func() {
		if err := http.ListenAndServe(addr, h); err != nil {
			zap.S().Errorw("health: server stopped", "addr", addr, "error", err)
		}
	}()
}
