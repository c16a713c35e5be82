// Package api serves the relay over HTTP: the websocket endpoint clients
// speak the nostr protocol on, the NIP-11 relay information document,
// prometheus metrics and a health check.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/session"
)

// Handler is the root HTTP handler for a relay.
type Handler struct {
	relay      *relay.Relay
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	trustProxy bool
	upgrader   websocket.Upgrader
	mux        *http.ServeMux

	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithGatherer exposes g on /metrics. Without it /metrics is not served.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithTrustProxy takes the client address from X-Forwarded-For and
// X-Real-IP. Only enable it behind a proxy that sets them.
func WithTrustProxy(trust bool) Option {
	return func(h *Handler) { h.trustProxy = trust }
}

// NewHandler creates the HTTP handler for r.
func NewHandler(r *relay.Relay, opts ...Option) *Handler {
	h := &Handler{
		relay:  r,
		logger: slog.Default(),
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: true,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /{$}", h.root)
	h.mux.HandleFunc("OPTIONS /{$}", h.preflight)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	if h.gatherer != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

// Close ends every websocket session and waits for them until ctx is
// done. Call it after relay.Shutdown so sessions drain first.
func (h *Handler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	switch {
	case websocket.IsWebSocketUpgrade(r):
		h.serveWebsocket(w, r)
	case acceptsNostrJSON(r):
		h.info(w, r)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Please use a nostr client to connect.\n"))
	}
}

// track counts a session for Close to wait on. It fails once Close began.
func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions.Add(1)
	return true
}

func (h *Handler) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if !h.track() {
		writeError(w, http.StatusServiceUnavailable, "relay shutting down")
		return
	}
	defer h.sessions.Done()

	ip := h.clientIP(r)
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	ws.SetReadLimit(readLimit(h.relay.Config().Limits.MaxEventSize))

	s, err := session.New(h.relay, newTransport(ws), ip, session.WithLogger(h.logger))
	if err != nil {
		code := session.CloseTryAgainLater
		if errors.Is(err, relay.ErrShuttingDown) {
			code = session.CloseGoingAway
		}
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	if err := s.Run(h.ctx); err != nil {
		h.logger.Debug("session ended with error", "conn_id", s.ID(), "error", err)
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.relay.Store().Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientIP returns the address used for permission checks.
func (h *Handler) clientIP(r *http.Request) string {
	if h.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
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

// readLimit leaves room for the envelope around the largest event.
func readLimit(maxEvent int) int64 {
	const floor = 1 << 20
	if n := int64(maxEvent) * 2; n > floor {
		return n
	}
	return floor
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
