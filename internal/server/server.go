// Package server exposes the blob store and garbage collector over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cosensync/internal/blobstore"
	"cosensync/internal/gc"
	"cosensync/internal/models"
)

const (
	allowRemoteEnvKey = "COSENSYNC_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 5 * time.Minute
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second
	gcConcurrency     = 1

	defaultMaxUploadBytes     int64 = 20 << 20
	defaultMultipartMaxMemory int64 = 8 << 20
	defaultMaxExportBytes     int64 = 64 << 20
)

// RunJournal records collector runs and lists them back.
type RunJournal interface {
	gc.Recorder
	ListRuns(ctx context.Context, limit int) ([]models.GCRun, error)
}

// Options tunes request handling.
type Options struct {
	Version string
	// StorageBackend is reported by /api/info.
	StorageBackend string
	// Mount is the URL path prefix blobs are served under.
	Mount string
	// PublicBaseURL, when set, replaces the request scheme and host in
	// upload responses.
	PublicBaseURL           string
	MaxUploadBytes          int64
	MultipartMaxMemory      int64
	RejectMediaTypeMismatch bool
	MaxExportBytes          int64
	AllowedOrigins          []string
}

func (o Options) withDefaults() Options {
	if o.Mount == "" {
		o.Mount = "/uploads"
	}
	if len(o.Mount) > 1 {
		o.Mount = strings.TrimRight(o.Mount, "/")
	}
	if !strings.HasPrefix(o.Mount, "/") {
		o.Mount = "/" + o.Mount
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = defaultMaxUploadBytes
	}
	if o.MultipartMaxMemory <= 0 {
		o.MultipartMaxMemory = defaultMultipartMaxMemory
	}
	if o.MaxExportBytes <= 0 {
		o.MaxExportBytes = defaultMaxExportBytes
	}
	if o.StorageBackend == "" {
		o.StorageBackend = "local"
	}
	o.PublicBaseURL = strings.TrimRight(o.PublicBaseURL, "/")
	return o
}

// Server wraps HTTP handlers for the upload and gc API.
type Server struct {
	addr      string
	blobs     blobstore.BlobStore
	collector *gc.Collector
	journal   RunJournal
	logger    *slog.Logger
	opts      Options
	gcLimiter chan struct{}
}

// New creates a new server instance. journal may be nil, in which case runs
// are not recorded and /api/gc/runs reports an empty list.
func New(addr string, blobs blobstore.BlobStore, journal RunJournal, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gcOpts := gc.Options{Logger: logger.With("component", "gc")}
	if journal != nil {
		gcOpts.Recorder = journal
	}

	return &Server{
		addr:      addr,
		blobs:     blobs,
		collector: gc.New(blobs, gcOpts),
		journal:   journal,
		logger:    logger,
		opts:      opts.withDefaults(),
		gcLimiter: make(chan struct{}, gcConcurrency),
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled,
// then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log().Info("starting server", "addr", s.addr, "mount", s.opts.Mount, "backend", s.opts.StorageBackend)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("a %s run is already in progress", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, limiter chan struct{}, name string, fn func()) {
	if !s.acquireLimiter(limiter, w, r, name) {
		return
	}
	defer s.releaseLimiter(limiter)
	fn()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
