package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/tools"
)

const maxBodyBytes = 64 << 10

// Options configures the tool server.
type Options struct {
	Addr        string
	ToolTimeout time.Duration
	// RateLimit is the number of tool calls allowed per client per minute;
	// zero disables limiting.
	RateLimit int
	// TrustProxy keys clients on X-Forwarded-For and X-Real-IP. Leave it off
	// unless a proxy in front of the server sets those headers.
	TrustProxy bool
	// Ready reports whether the ledger is connected.
	Ready  func() bool
	Logger *log.Logger
}

// Server exposes a Toolset over HTTP.
type Server struct {
	http.Server
	tools       *tools.Toolset
	ready       func() bool
	timeout     time.Duration
	logger      *log.Logger
	rateLimiter *rateLimiter
	trustProxy  bool

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(ts *tools.Toolset, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		tools:   ts,
		ready:   opts.Ready,
		timeout: opts.ToolTimeout,
		logger:  logger.WithComponent(log.ComponentHTTP),

		trustProxy: opts.TrustProxy,
	}
	if s.ready == nil {
		s.ready = func() bool { return true }
	}
	if opts.RateLimit > 0 {
		s.rateLimiter = newRateLimiter(opts.RateLimit, time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("POST /tools/{name}", s.handleCallTool)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.withRequestLogging(withSecurityHeaders(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "ledger not connected")
		return
	}
	_, _ = io.WriteString(w, "ready")
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.Specs())
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := r.Context()

	if !s.tools.Has(name) {
		writeJSON(w, http.StatusNotFound, tools.Result{Status: tools.StatusError, Message: "Unknown tool " + name + "."})
		return
	}
	if ip := s.clientIP(r); s.rateLimiter != nil && !s.rateLimiter.allow(ip) {
		s.logger.WarnContext(ctx, "rate limit exceeded", log.FieldClientIP, ip, log.FieldTool, name)
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, tools.Result{Status: tools.StatusError, Message: "Too many requests, please slow down."})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, tools.Result{Status: tools.StatusError, Message: "Could not read request body."})
		return
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	writeJSON(w, http.StatusOK, s.tools.Call(ctx, name, body))
}

// withRequestLogging assigns a request ID, stores a request-scoped logger
// in the context and logs each completed request.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := log.WithRequestID(r.Context(), requestID)
		ctx = log.NewContext(ctx, s.logger.With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.InfoContext(ctx, "request completed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, s.clientIP(r))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP is the peer address; forwarding headers count only behind a
// trusted proxy, since any client can set them.
func (s *Server) clientIP(r *http.Request) string {
	if s.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			return strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
