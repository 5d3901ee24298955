package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
)

// Options bounds the resources the HTTP transport may consume.
type Options struct {
	Addr              string
	Workers           int           // concurrent requests admitted to handlers
	MaxConnections    int           // simultaneously open connections
	MaxConnectionRate int           // new connections accepted per second
	KeepAlive         time.Duration // idle keep-alive timeout
	RequestTimeout    time.Duration // time allowed to read a request
	DisconnectTimeout time.Duration // grace for writing the response after the request is read
	ShutdownTimeout   time.Duration // grace for in-flight requests on shutdown
}

func DefaultOptions(addr string, workers int) Options {
	return Options{
		Addr:              addr,
		Workers:           max(1, workers),
		MaxConnections:    10000,
		MaxConnectionRate: 1000,
		KeepAlive:         30 * time.Second,
		RequestTimeout:    30 * time.Second,
		DisconnectTimeout: 2 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// NewRouter registers the transport's routes and wraps them with logging,
// security headers, compression and the worker pool.
func NewRouter(api *API, workers int, logger *slog.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(workerPool(max(1, workers)))

	router.HandleFunc("/health", api.Health).Methods(http.MethodGet)
	router.HandleFunc("/metrics", api.Metrics).Methods(http.MethodGet)
	router.HandleFunc("/sse", api.SSE).Methods(http.MethodGet)
	router.HandleFunc("/mcp", api.HandleMessage).Methods(http.MethodPost)
	router.HandleFunc("/", api.HandleMessage).Methods(http.MethodPost)
	router.HandleFunc("/", api.Health).Methods(http.MethodGet)

	return accessLog(logger, securityHeaders(handlers.CompressHandler(router)))
}

type Server struct {
	handler http.Handler
	opts    Options
	logger  *slog.Logger
}

func NewServer(api *API, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler: NewRouter(api, opts.Workers, logger),
		opts:    opts,
		logger:  logger,
	}
}

// Run listens on the configured address and serves until ctx is cancelled
// or the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln. On cancellation it stops accepting connections and
// waits up to ShutdownTimeout for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.opts.MaxConnectionRate > 0 {
		ln = &rateLimitedListener{
			Listener: ln,
			limiter:  rate.NewLimiter(rate.Limit(s.opts.MaxConnectionRate), s.opts.MaxConnectionRate),
		}
	}
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.RequestTimeout,
		ReadTimeout:       s.opts.RequestTimeout,
		WriteTimeout:      s.opts.RequestTimeout + s.opts.DisconnectTimeout,
		IdleTimeout:       s.opts.KeepAlive,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("HTTP transport listening",
		slog.String("addr", ln.Addr().String()),
		slog.Int("workers", s.opts.Workers),
		slog.Int("max_connections", s.opts.MaxConnections),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP transport")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	}
}

// rateLimitedListener paces Accept to bound the rate of new connections.
type rateLimitedListener struct {
	net.Listener
	limiter *rate.Limiter
}

func (l *rateLimitedListener) Accept() (net.Conn, error) {
	if err := l.limiter.Wait(context.Background()); err != nil {
		return nil, err
	}
	return l.Listener.Accept()
}
