// Package shutdown provides a graceful shutdown handler shared by the
// historian's cmd entrypoint: it traps SIGINT/SIGTERM, runs a single
// teardown function, and force-exits if that teardown doesn't
// complete within a grace period.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Handler lets callers trigger a shutdown programmatically, check
// whether one is already in progress, and block until it completes.
type Handler interface {
	Shutdown()
	ShuttingDown() bool
	Wait()
}

type handler struct {
	quit         chan os.Signal
	shuttingDown chan bool
	wg           sync.WaitGroup
}

// New starts a handler that waits for SIGINT/SIGTERM (or a
// programmatic Shutdown call), then runs onShutdown. If onShutdown
// doesn't return within grace, the process is force-exited with
// status 1 — the historian's buffered writes and open bus connection
// are assumed lost at that point.
func New(grace time.Duration, onShutdown func() error) Handler {
	h := &handler{
		quit:         make(chan os.Signal, 1),
		shuttingDown: make(chan bool, 1),
	}
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		signal.Notify(h.quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-h.quit
		h.shuttingDown <- true
		zap.S().Infow("received signal, shutting down", "signal", sig.String())

		if onShutdown == nil {
			os.Exit(0)
		}

		zap.S().Infow("waiting for shutdown tasks to complete", "timeout", grace)
		go func() {
			<-time.After(grace)
			zap.S().Errorw("shutdown tasks did not complete in time", "timeout", grace)
			_ = zap.S().Sync()
			os.Exit(1)
		}()

		if err := onShutdown(); err != nil {
			zap.S().Errorw("error during shutdown", "error", err)
			return
		}
		zap.S().Info("shutdown tasks completed, exiting")
		os.Exit(0)
	}()

	return h
}

func (h *handler) ShuttingDown() bool {
	select {
	case <-h.shuttingDown:
		h.shuttingDown <- true
		return true
	default:
		return false
	}
}

func (h *handler) Shutdown() {
	if !h.ShuttingDown() {
		h.quit <- syscall.SIGTERM
	}
}

func (h *handler) Wait() {
	h.wg.Wait()
}
