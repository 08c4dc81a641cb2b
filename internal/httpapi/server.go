// Package httpapi is the angelsharkd HTTP front-end: a thin layer that
// decodes requests into Runner/Haystack calls and encodes their results as
// JSON, plus the cross-cutting concerns (CORS, per-IP rate limiting,
// request IDs, audit logging) every route shares.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ehrlich-b/angelshark"
	"github.com/ehrlich-b/angelshark/internal/audit"
)

// Config controls cross-cutting request handling. Origin and Debug mirror
// config.Config's fields of the same name so callers can pass those
// straight through.
type Config struct {
	Origin          string
	Debug           bool
	RateLimitPerSec float64
}

func (c Config) permissiveCORS() bool {
	return c.Debug || c.Origin == "*" || c.Origin == ""
}

// Server wires a live Runner template (ACM registrations, no queued
// inputs), a Haystack, and an optional audit log into an http.Handler.
type Server struct {
	cfg       Config
	runnerTpl func() *angelshark.Runner
	haystack  *angelshark.Haystack
	auditLog  *audit.Log // nil disables audit recording
	rateLimit *rateLimiter
	mux       *http.ServeMux
}

// NewServer builds a Server. runnerTpl is called fresh on every request so
// a hot-reloaded login file takes effect immediately; its ACM
// registrations are cloned per-request so concurrent requests never share
// a queue.
func NewServer(cfg Config, runnerTpl func() *angelshark.Runner, haystack *angelshark.Haystack, auditLog *audit.Log) *Server {
	s := &Server{
		cfg:       cfg,
		runnerTpl: runnerTpl,
		haystack:  haystack,
		auditLog:  auditLog,
		rateLimit: newRateLimiter(cfg.RateLimitPerSec, int(cfg.RateLimitPerSec*2)+1),
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /ossi/run", s.handleRun)
	s.mux.HandleFunc("POST /ossi/manual", s.handleManual)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("POST /search/refresh", s.handleSearchRefresh)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	return s
}

// ServeHTTP implements http.Handler, applying CORS, rate limiting, and
// request-ID assignment ahead of routing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withCORS(s.withRateLimit(s.withRequestID(s.mux))).ServeHTTP(w, r)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.permissiveCORS() {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", s.cfg.Origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimit.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ok":      true,
		"entries": s.haystack.EntryCount(),
	}
	if t, ok := s.haystack.LastRefreshed(); ok {
		resp["last_refreshed"] = t.UTC().Format(time.RFC3339)
		resp["last_refreshed_human"] = humanize.Time(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// rateLimiter applies per-client-IP request limiting, evicting idle
// entries so a long-running daemon doesn't accumulate one limiter per
// address seen since boot.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(reqPerSec float64, burst int) *rateLimiter {
	if reqPerSec <= 0 {
		reqPerSec = 5
	}
	if burst < 1 {
		burst = 1
	}
	rl := &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(reqPerSec),
		burst:    burst,
	}
	go rl.evictLoop()
	return rl
}

func (rl *rateLimiter) evictLoop() {
	for range time.Tick(5 * time.Minute) {
		rl.mu.Lock()
		for ip, l := range rl.limiters {
			if time.Since(l.lastSeen) > 10*time.Minute {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[ip]
	if !ok {
		l = &ipLimiter{lim: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = l
	}
	l.lastSeen = time.Now()
	lim := l.lim
	rl.mu.Unlock()
	return lim.Allow()
}

func logRequestError(ctx context.Context, msg string, err error) {
	slog.Default().Warn(msg, "error", err, "request_id", requestID(ctx), "component", "httpapi")
}
