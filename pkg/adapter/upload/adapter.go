// Package upload implements the vidforge upload server: a TCP acceptor that
// admits one request per client address and a per-connection pipeline that
// receives, stores, processes and answers a single framed request.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/internal/ratelimiter"
	"github.com/marmos91/vidforge/pkg/admission"
	"github.com/marmos91/vidforge/pkg/archive"
	"github.com/marmos91/vidforge/pkg/capacity"
	"github.com/marmos91/vidforge/pkg/jobs"
	"github.com/marmos91/vidforge/pkg/metrics"
	"github.com/marmos91/vidforge/pkg/processor"
	"github.com/marmos91/vidforge/pkg/protocol"
	"github.com/marmos91/vidforge/pkg/storage"
)

// noticeWriteTimeout bounds writing a busy notice to a refused connection.
const noticeWriteTimeout = time.Second

// Dependencies are the collaborators a request pipeline needs.
type Dependencies struct {
	// Admission limits each client address to one request. A fresh gate is
	// created when nil.
	Admission *admission.Gate

	// Capacity is the storage quota check. Required.
	Capacity *capacity.Gate

	// Storage persists payloads. Required.
	Storage storage.Writer

	// Processor transforms stored uploads. Required.
	Processor processor.Processor

	// Jobs records request outcomes. Optional.
	Jobs jobs.Store

	// Archive receives processed outputs. Optional.
	Archive archive.Archiver

	// BaseName is the file stem for stored uploads. Default "upload".
	BaseName string
}

func (d *Dependencies) applyDefaults() {
	if d.Admission == nil {
		d.Admission = admission.New()
	}
	if d.Archive == nil {
		d.Archive = archive.Noop{}
	}
	if d.BaseName == "" {
		d.BaseName = "upload"
	}
}

func (d *Dependencies) validate() error {
	switch {
	case d.Capacity == nil:
		return errors.New("capacity gate is required")
	case d.Storage == nil:
		return errors.New("storage writer is required")
	case d.Processor == nil:
		return errors.New("processor is required")
	}
	return nil
}

// Adapter implements adapter.Adapter for the upload protocol.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Wait for in-flight requests to finish (up to ShutdownTimeout)
//  4. Cancel the request context and force-close remaining sockets
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown is guarded by sync.Once.
type Adapter struct {
	config  Config
	deps    Dependencies
	metrics metrics.UploadMetrics
	limiter *ratelimiter.Limiter

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	// activeConns tracks handler goroutines for graceful shutdown
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount atomic.Int32

	// requestCtx is handed to every pipeline and cancelled only when the
	// shutdown timeout expires
	requestCtx     context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure
	activeConnections sync.Map
}

// New creates a stopped upload adapter.
//
// Zero config values are replaced with defaults. A nil uploadMetrics disables metrics.
func New(config Config, deps Dependencies, uploadMetrics metrics.UploadMetrics) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid upload config: %w", err)
	}

	deps.applyDefaults()
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid upload dependencies: %w", err)
	}

	if uploadMetrics == nil {
		uploadMetrics = metrics.NewNoopUploadMetrics()
	}

	requestCtx, cancelRequests := context.WithCancel(context.Background())

	return &Adapter{
		config:         config,
		deps:           deps,
		metrics:        uploadMetrics,
		limiter:        ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		requestCtx:     requestCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// Serve listens on the configured address and runs the accept loop until ctx
// is cancelled or Stop is called.
//
// Each Accept call waits at most AcceptPollInterval so the loop notices
// shutdown within one interval even if the listener close is missed.
func (s *Adapter) Serve(ctx context.Context) error {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create upload listener on %s: %w", address, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	select {
	case <-s.shutdown:
		// Stop won the race with Serve
		_ = listener.Close()
		return s.gracefulShutdown()
	default:
	}

	logger.Info("Upload server listening on %s", listener.Addr())
	logger.Debug("Upload config: max_payload=%d read_timeout=%v write_timeout=%v accept_poll=%v accept_rate=%v",
		s.config.MaxPayloadBytes, s.config.ReadTimeout, s.config.WriteTimeout, s.config.AcceptPollInterval, s.config.AcceptRate)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Upload shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	deadliner, canPoll := listener.(interface{ SetDeadline(time.Time) error })

	for {
		select {
		case <-s.shutdown:
			return s.gracefulShutdown()
		default:
		}

		if canPoll {
			if err := deadliner.SetDeadline(time.Now().Add(s.config.AcceptPollInterval)); err != nil {
				logger.Debug("Failed to set accept deadline: %v", err)
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("upload listener closed unexpectedly: %w", err)
			}
			logger.Debug("Error accepting upload connection: %v", err)
			continue
		}

		s.dispatch(tcpConn)
	}
}

// dispatch applies the accept rate limit and the admission gate, then hands
// the connection to its own goroutine.
func (s *Adapter) dispatch(tcpConn net.Conn) {
	remote := tcpConn.RemoteAddr().String()
	ip := clientIP(tcpConn.RemoteAddr())

	if !s.limiter.Allow() {
		logger.Warn("Rejecting connection from %s: accept rate exceeded", remote)
		s.metrics.RecordConnectionRejected("rate_limited")
		go refuse(tcpConn, protocol.RateLimitedNotice)
		return
	}

	if !s.deps.Admission.Acquire(ip) {
		logger.Warn("Rejecting connection from %s: %s already has a request in flight", remote, ip)
		s.metrics.RecordConnectionRejected("busy")
		go refuse(tcpConn, protocol.BusyNotice)
		return
	}

	s.activeConns.Add(1)
	current := s.connCount.Add(1)
	s.activeConnections.Store(remote, tcpConn)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)
	logger.Debug("Upload connection accepted from %s (active: %d)", remote, current)

	conn := newConnection(s, tcpConn, ip)
	go func() {
		defer func() {
			s.deps.Admission.Release(ip)
			s.activeConnections.Delete(remote)
			s.activeConns.Done()

			remaining := s.connCount.Add(-1)
			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(remaining)
			logger.Debug("Upload connection closed from %s (active: %d)", remote, remaining)
		}()

		conn.Serve(s.requestCtx)
	}()
}

// refuse writes a plaintext notice and closes the connection. It runs on its
// own goroutine so a peer that does not read cannot stall the accept loop.
func refuse(conn net.Conn, notice string) {
	_ = conn.SetWriteDeadline(time.Now().Add(noticeWriteTimeout))
	if _, err := conn.Write([]byte(notice)); err != nil {
		logger.Debug("Failed to send busy notice to %s: %v", conn.RemoteAddr(), err)
	}
	_ = conn.Close()
}

// clientIP extracts the host part of a remote address.
func clientIP(addr net.Addr) string {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// initiateShutdown closes the shutdown channel and the listener. Safe to
// call multiple times.
func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Upload shutdown initiated")
		close(s.shutdown)

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				logger.Debug("Error closing upload listener: %v", err)
			}
		}
	})
}

// gracefulShutdown waits for in-flight requests up to ShutdownTimeout, then
// cancels them and force-closes their sockets.
func (s *Adapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Upload graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	if s.waitForConnections(s.config.ShutdownTimeout) {
		s.cancelRequests()
		logger.Info("Upload graceful shutdown complete: all connections closed")
		return nil
	}

	remaining := s.connCount.Load()
	logger.Warn("Upload shutdown timeout exceeded: %d connection(s) still active after %v, forcing closure",
		remaining, s.config.ShutdownTimeout)

	s.cancelRequests()
	s.forceCloseConnections()

	return fmt.Errorf("upload shutdown timeout: %d connections force-closed", remaining)
}

func (s *Adapter) waitForConnections(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Adapter) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d upload connection(s)", closedCount)
	}
}

// Stop initiates shutdown and waits for active connections until ctx is done.
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Upload shutdown context cancelled: %d connection(s) still active: %v", remaining, ctx.Err())
		return ctx.Err()
	}
}

func (s *Adapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("Upload metrics: active_connections=%d admitted_clients=%d storage_quota=%d",
				s.connCount.Load(), s.deps.Admission.Len(), s.deps.Capacity.Quota())
		}
	}
}

// Ready is closed once the listener is bound.
func (s *Adapter) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Serve has bound it.
func (s *Adapter) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// GetActiveConnections returns the number of connections being served.
func (s *Adapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Admission returns the gate used by this adapter.
func (s *Adapter) Admission() *admission.Gate {
	return s.deps.Admission
}

// Port returns the configured TCP port.
func (s *Adapter) Port() int {
	return s.config.Port
}

// Protocol returns "UPLOAD".
func (s *Adapter) Protocol() string {
	return "UPLOAD"
}
