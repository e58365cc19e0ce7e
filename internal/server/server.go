package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc/websocket"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/owner"
	"github.com/GriffinCanCode/AgentOS/remote/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
)

const shutdownTimeout = 10 * time.Second

// HostFactory builds the objects served to one renderer inside that
// connection's runtime.
type HostFactory func(vm *goja.Runtime) (owner.Host, error)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	config   *config.Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	pool     *sandbox.Pool
	hosts    HostFactory
	upgrader gorilla.Upgrader

	// base is cancelled on Close and bounds every live session.
	base     context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
	active   atomic.Int64
}

// New creates a server serving hosts from pool.
func New(cfg *config.Config, pool *sandbox.Pool, hosts HostFactory, logger *zap.Logger, metrics *monitoring.Metrics) *Server {
	logger = logging.OrNop(logger).Named("server")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	tracer := tracing.New("remote-host", logger)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(corsMiddleware(cfg.Server.AllowOrigins))

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:  router,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		pool:    pool,
		hosts:   hosts,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.Server.AllowOrigins),
		},
		base:   base,
		cancel: cancel,
	}

	path := cfg.Server.Path
	if path == "" {
		path = "/ipc"
	}
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET(path, s.serveIPC)
	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// Close ends every live session and waits for their runtimes to return to
// the pool. Hijacked connections are not covered by http.Server.Shutdown.
func (s *Server) Close() {
	s.cancel()
	s.sessions.Wait()
	s.tracer.Close()
}

// Sessions returns the number of connected renderers.
func (s *Server) Sessions() int64 {
	return s.active.Load()
}

type healthResponse struct {
	Status   string              `json:"status"`
	Uptime   float64             `json:"uptime_seconds"`
	Sessions int64               `json:"sessions"`
	Pool     sandbox.PoolStats   `json:"pool"`
	Metrics  monitoring.Snapshot `json:"metrics"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:   "healthy",
		Uptime:   s.metrics.UptimeSeconds(),
		Sessions: s.active.Load(),
		Pool:     s.pool.Stats(),
		Metrics:  s.metrics.Snapshot(),
	})
}

func (s *Server) serveIPC(c *gin.Context) {
	if s.base.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}

	// Lease the runtime first so a saturated pool is reported as an HTTP
	// error rather than a dropped socket.
	sb, err := s.pool.Acquire(c.Request.Context())
	if err != nil {
		s.logger.Warn("No sandbox available", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer func() {
		if err := s.pool.Release(sb); err != nil {
			s.logger.Warn("Failed to release sandbox", zap.Error(err))
		}
	}()

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	conn, err := websocket.NewConn(ws, websocket.OptionsFromConfig(s.config.Transport))
	if err != nil {
		s.logger.Error("Failed to set up connection", zap.Error(err))
		_ = ws.Close()
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Done()
	s.active.Add(1)
	defer s.active.Add(-1)
	s.metrics.IncWSSessions()
	defer s.metrics.DecWSSessions()

	epOpts := ipc.OptionsFromConfig(s.config, "owner")
	epOpts.Logger = s.logger
	epOpts.Metrics = s.metrics
	ep := ipc.NewEndpoint(conn, epOpts)
	defer ep.Close()

	sessionID := id.NewSessionID()
	span, _ := s.tracer.StartSpan(c.Request.Context(), "session")
	span.SetTag("session_id", sessionID.String())
	span.SetTag("peer", ep.Peer().String())
	defer s.tracer.Submit(span)

	logger := s.logger.With(
		zap.String("session_id", sessionID.String()),
		zap.String("peer", ep.Peer().String()),
		zap.String("trace_id", string(span.TraceID)),
		zap.String("remote_addr", c.Request.RemoteAddr))
	logger.Info("Session opened")

	err = sb.Guard(s.base, func(vm *goja.Runtime) error {
		return s.session(vm, ep, logger)
	})
	if err != nil && !closedNormally(err) {
		span.SetError(err)
		logger.Warn("Session ended", zap.Error(err))
		return
	}
	logger.Info("Session closed")
}

// session serves one renderer until it disconnects or the server closes.
func (s *Server) session(vm *goja.Runtime, ep *ipc.Endpoint, logger *zap.Logger) error {
	host, err := s.hosts(vm)
	if err != nil {
		return fmt.Errorf("failed to build host: %w", err)
	}

	opts := owner.OptionsFromConfig(s.config)
	opts.Logger = logger
	opts.Metrics = s.metrics
	sess, err := owner.NewSession(vm, ep, host, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	return ep.Serve(s.base)
}

func closedNormally(err error) bool {
	return errors.Is(err, ipc.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway)
}
