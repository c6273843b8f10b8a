package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

type shutdownStage struct {
	name string
	fn   func(context.Context) error
}

// ShutdownManager stops the HTTP server and then runs the registered stages
// in reverse registration order, like deferred calls, under one deadline
type ShutdownManager struct {
	log     *logrus.Logger
	server  *http.Server
	timeout time.Duration

	mu     sync.Mutex
	stages []shutdownStage
	once   sync.Once
	err    error
}

// NewShutdownManager creates a new shutdown manager. server may be nil.
func NewShutdownManager(log *logrus.Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{log: log, server: server, timeout: timeout}
}

// OnShutdown registers a named stage. Stages registered later run first.
func (sm *ShutdownManager) OnShutdown(name string, fn func(context.Context) error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stages = append(sm.stages, shutdownStage{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx is done, then shuts down
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		sm.log.WithField("signal", sig.String()).Info("starting graceful shutdown")
	case <-ctx.Done():
		sm.log.Info("context done, starting graceful shutdown")
	}
	return sm.Shutdown()
}

// Shutdown runs once; later calls return the first result. A stage that
// fails is logged and the remaining stages still run.
func (sm *ShutdownManager) Shutdown() error {
	sm.once.Do(func() {
		sm.err = sm.shutdown()
	})
	return sm.err
}

func (sm *ShutdownManager) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var errs []error
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.log.WithError(err).Error("http server shutdown failed")
			errs = append(errs, fmt.Errorf("http server: %w", err))
		} else {
			sm.log.Info("http server stopped")
		}
	}

	sm.mu.Lock()
	stages := append([]shutdownStage(nil), sm.stages...)
	sm.mu.Unlock()

	for i := len(stages) - 1; i >= 0; i-- {
		s := stages[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: skipped, shutdown deadline exceeded", s.name))
			continue
		}

		start := time.Now()
		err := s.fn(ctx)
		entry := sm.log.WithFields(logrus.Fields{
			"stage":       s.name,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if err != nil {
			entry.WithError(err).Error("shutdown stage failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		entry.Debug("shutdown stage complete")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.log.Info("graceful shutdown complete")
	return nil
}
