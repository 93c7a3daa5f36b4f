// Package httpapi exposes the daemon's fixed, bearer-authenticated HTTP
// vocabulary over a loopback listener, translating each route to a store
// operation and every store error to its wire status and code.
package httpapi

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/highbeam/teamd/internal/logging"
	"github.com/highbeam/teamd/internal/store"
)

// Options configures a Server. Zero values are filled with sane defaults
// by NewServer.
type Options struct {
	Token             string
	Version           string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

func (o *Options) setDefaults() {
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 10 * time.Second
	}
	if o.ReadHeaderTimeout == 0 {
		o.ReadHeaderTimeout = 5 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.Version == "" {
		o.Version = "dev"
	}
}

// Server is the daemon's HTTP surface. It owns no state beyond the store
// it was constructed with.
type Server struct {
	http   *http.Server
	store  *store.Store
	opts   Options
	logger zerolog.Logger
}

// NewServer builds a Server wired to st. The caller supplies the listener
// separately (via Serve) so the daemon can bind an ephemeral port and read
// it back before starting to accept connections.
func NewServer(st *store.Store, opts Options) *Server {
	opts.setDefaults()
	s := &Server{store: st, opts: opts, logger: logging.For("httpapi")}

	mux := http.NewServeMux()
	s.routes(mux)

	s.http = &http.Server{
		Handler:           s.withLogging(mux),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/v1/teams", s.withAuth(s.handleTeams))
	mux.HandleFunc("/v1/teams/{id}", s.withAuth(s.handleTeamByID))

	mux.HandleFunc("/v1/tasks", s.withAuth(s.handleTasks))
	mux.HandleFunc("/v1/tasks/{id}", s.withAuth(s.handleTaskByID))
	mux.HandleFunc("/v1/tasks/{id}/claim", s.withAuth(s.handleClaim))
	mux.HandleFunc("/v1/tasks/{id}/renew", s.withAuth(s.handleRenew))
	mux.HandleFunc("/v1/tasks/{id}/complete", s.withAuth(s.handleComplete))
	mux.HandleFunc("/v1/tasks/{id}/fail", s.withAuth(s.handleFail))

	mux.HandleFunc("/v1/threads", s.withAuth(s.handleThreads))
	mux.HandleFunc("/v1/threads/search", s.withAuth(s.handleThreadSearch))
	mux.HandleFunc("/v1/threads/{id}/messages", s.withAuth(s.handlePostMessage))
	mux.HandleFunc("/v1/threads/{id}/tail", s.withAuth(s.handleThreadTail))
	mux.HandleFunc("/v1/threads/{id}/link", s.withAuth(s.handleLinkThread))

	mux.HandleFunc("/v1/inbox", s.withAuth(s.handleInbox))
	mux.HandleFunc("/v1/can-write", s.withAuth(s.handleCanWrite))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { notFound(w) })
}

// Handler returns the server's request handler, for embedding in an
// httptest.Server or a larger mux.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve blocks accepting connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	err := s.http.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, bounded by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		h := r.Header.Get("Authorization")
		if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
			writeErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed Authorization header")
			return
		}
		given := h[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(given), []byte(s.opts.Token)) != 1 {
			writeErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credential")
			return
		}
		next(w, r)
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "no such route")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.opts.Version})
}
