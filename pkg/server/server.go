// Package server runs the vidforge protocol adapters and the metrics server
// as one unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/pkg/adapter"
	"github.com/marmos91/vidforge/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultStopTimeout bounds the Stop calls issued during shutdown.
const DefaultStopTimeout = 30 * time.Second

// Server manages the lifecycle of the protocol adapters and the optional
// metrics server.
//
// Lifecycle:
//  1. Creation: New() with an optional metrics server
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts everything concurrently
//  4. Shutdown: context cancellation, or any component failing, stops all
//     adapters in reverse registration order
//
// Thread safety:
// AddAdapter may be called concurrently before Serve. Serve may only be
// called once.
type Server struct {
	metricsServer *metrics.Server
	stopTimeout   time.Duration

	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a server. metricsServer may be nil when metrics are disabled.
// A stopTimeout of zero uses DefaultStopTimeout.
func New(metricsServer *metrics.Server, stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{
		metricsServer: metricsServer,
		stopTimeout:   stopTimeout,
		adapters:      make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter.
//
// Duplicate protocols and port conflicts are rejected. Port 0 (ephemeral)
// never conflicts.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter while serving")
	}

	protocol, port := a.Protocol(), a.Port()
	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}
	if s.metricsServer != nil && port != 0 && s.metricsServer.Port() == port {
		return fmt.Errorf("port %d already in use by the metrics server", port)
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve runs every adapter and the metrics server until ctx is cancelled or
// one of them fails.
//
// Returns ctx.Err() after a requested shutdown, or the first component error.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("server is already serving")
	}
	s.served = true
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	if len(adapters) == 0 {
		return errors.New("no adapters registered")
	}

	logger.Info("Starting vidforge with %d adapter(s)", len(adapters))

	g, gctx := errgroup.WithContext(ctx)

	for _, a := range adapters {
		g.Go(func() error {
			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(gctx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
				if gctx.Err() == nil {
					return fmt.Errorf("%s adapter exited unexpectedly", protocol)
				}
				return nil
			case gctx.Err() != nil:
				// a forced shutdown still counts as a shutdown
				logger.Warn("%s adapter stopped: %v", protocol, err)
				return nil
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				return fmt.Errorf("%s adapter error: %w", protocol, err)
			}
		})
	}

	if s.metricsServer != nil {
		g.Go(func() error {
			return s.metricsServer.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		} else {
			logger.Error("A component failed, initiating shutdown of all adapters")
		}
		s.stopAllAdapters(adapters)
		return nil
	})

	err := g.Wait()
	logger.Info("vidforge stopped")

	if err != nil {
		return err
	}
	return ctx.Err()
}

// stopAllAdapters stops adapters in reverse registration order. Errors are
// logged and the remaining adapters are still stopped.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		} else {
			logger.Debug("%s adapter stopped", a.Protocol())
		}
	}
}

// Adapters returns a copy of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
