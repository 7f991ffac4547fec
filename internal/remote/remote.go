package remote

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/satmihir/justlru/internal/constants"
	"github.com/satmihir/justlru/storage"
)

const (
	cachePathPrefix = "/cache/"

	// Header names
	headerSize       = "x-jc-size"
	headerTTL        = "x-jc-ttl"
	headerDryRun     = "x-jc-dryrun"
	headerPromiseTTL = "x-jc-promise-ttl"
	headerRetryAfter = "Retry-After"
	headerRequestID  = "X-Request-ID"

	shutdownTimeout = 5 * time.Second
)

// Options tunes a CacheServer. The zero value is usable.
type Options struct {
	Logger *zerolog.Logger
	// DefaultTTL applies to PUTs without x-jc-ttl.
	DefaultTTL time.Duration
	// RateLimit is requests per second across all clients; 0 disables it.
	RateLimit float64
	RateBurst int
	// CORSOrigins enables CORS for the listed origins ("*" for any).
	CORSOrigins []string
}

// CacheServer exposes a storage.LocalStorage over HTTP.
type CacheServer struct {
	addr       string
	handler    http.Handler
	storage    storage.LocalStorage
	promises   *PromiseMap
	logger     zerolog.Logger
	defaultTTL time.Duration
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
}

func NewCacheServer(addr string, store storage.LocalStorage, opts Options) *CacheServer {
	s := &CacheServer{
		addr:       addr,
		storage:    store,
		promises:   NewPromiseMap(),
		logger:     zerolog.Nop(),
		defaultTTL: opts.DefaultTTL,
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "remote").Logger()
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = constants.DefaultEntryTTL
	}
	s.registerMetrics()

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.wrap(mux, opts)
	return s
}

func (s *CacheServer) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+cachePathPrefix+"{key...}", s.handleGet)
	mux.HandleFunc("POST "+cachePathPrefix+"{key...}", s.handlePost)
	mux.HandleFunc("PUT "+cachePathPrefix+"{key...}", s.handlePut)
	mux.HandleFunc("DELETE "+cachePathPrefix+"{key...}", s.handleDelete)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metricsHandler())
}

// Handler returns the fully wrapped HTTP handler, for tests and embedding.
func (s *CacheServer) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *CacheServer) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("cache server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Stop()
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down cache server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Stop()
	if err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop releases background resources. It does not close listeners.
func (s *CacheServer) Stop() {
	s.promises.Stop()
}
