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

	"famvault/internal/attach"
	"famvault/internal/store"
)

const (
	allowRemoteEnvKey       = "FAMVAULT_ALLOW_REMOTE"
	readHeaderTimeout       = 5 * time.Second
	idleTimeout             = 60 * time.Second
	shutdownTimeout         = 15 * time.Second
	defaultUploadLimit      = 16
	defaultMultipartMemory  = 1 << 20
	gcConcurrencyLimit      = 1
	adminTokenHeader        = "X-Admin-Token"
	confirmHeader           = "X-Confirm"
	downloadCopyBufferBytes = 32 << 10
)

// Deps are the collaborators a Server routes requests to.
type Deps struct {
	Records    store.RecordStore
	Tokens     store.TokenStore
	Normalizer *attach.Normalizer
	Binder     *attach.Binder
	Gateway    *attach.Gateway
	Reaper     *attach.Reaper
}

// Options tune limits and admin access.
type Options struct {
	AdminToken string
	// UploadConcurrency caps requests carrying a file body at once.
	UploadConcurrency int
	// MultipartMaxMemory bounds the non-file form fields of one request.
	MultipartMaxMemory int64
	GCGracePeriod      time.Duration
	GCBatchSize        int
}

// Server wraps HTTP handlers for the famvault API.
type Server struct {
	addr          string
	records       store.RecordStore
	tokens        store.TokenStore
	service       *RecordService
	gateway       *attach.Gateway
	reaper        *attach.Reaper
	logger        *slog.Logger
	opts          Options
	uploadLimiter chan struct{}
	gcLimiter     chan struct{}
	authLimiter   *authFailureLimiter
}

// New creates a new server instance.
func New(addr string, deps Deps, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = defaultUploadLimit
	}
	if opts.MultipartMaxMemory <= 0 {
		opts.MultipartMaxMemory = defaultMultipartMemory
	}
	opts.AdminToken = strings.TrimSpace(opts.AdminToken)

	return &Server{
		addr:          addr,
		records:       deps.Records,
		tokens:        deps.Tokens,
		service:       NewRecordService(deps.Records, deps.Normalizer, deps.Binder, logger),
		gateway:       deps.Gateway,
		reaper:        deps.Reaper,
		logger:        logger,
		opts:          opts,
		uploadLimiter: make(chan struct{}, opts.UploadConcurrency),
		gcLimiter:     make(chan struct{}, gcConcurrencyLimit),
		authLimiter:   newAuthFailureLimiter(authMaxFailures, authFailureWindow, authBlockDuration),
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := s.routes()
	return s.withRequestLogging(mux, s.withAuth(mux))
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests. There is no write timeout: downloads are paced by the client.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
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
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
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
