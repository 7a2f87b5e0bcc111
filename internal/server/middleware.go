// Package server implements the avc-server HTTP handlers and middleware.
package server

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyProfileID contextKey = "profile_id"
)

const (
	headerRequestID = "X-Request-ID"
	// headerProfileID names the acting profile. Authentication happens upstream.
	headerProfileID = "X-Profile-ID"
)

// requestIDMiddleware tags each request with a UUID, reusing a well-formed
// X-Request-ID from the client.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(contextKeyRequestID).(string)
	return id
}

// profileMiddleware puts the X-Profile-ID header into the context.
func profileMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(headerProfileID); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), contextKeyProfileID, id))
		}
		next.ServeHTTP(w, r)
	})
}

func profileID(r *http.Request) string {
	id, _ := r.Context().Value(contextKeyProfileID).(string)
	return id
}

// loggingMiddleware emits one line per request once the handler returns.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"latency_ms", time.Since(start).Milliseconds(),
				"profile", r.Header.Get(headerProfileID),
				"request_id", requestID(r),
			)
		})
	}
}

// recoveryMiddleware turns a handler panic into a 500 unless a response
// was already started.
func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				logger.Error("panic recovered", "error", rec, "path", r.URL.Path, "request_id", requestID(r))
				if !sw.wroteHeader {
					writeJSON(sw, http.StatusInternalServerError, errorBody("internal_error", "internal server error"))
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

// profileLimiter keeps one token bucket per profile. Requests without a
// profile share a bucket per client host.
type profileLimiter struct {
	perMinute int
	every     rate.Limit
	idleTTL   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newProfileLimiter(requestsPerMinute int) *profileLimiter {
	pl := &profileLimiter{
		perMinute: requestsPerMinute,
		every:     rate.Limit(float64(requestsPerMinute) / 60),
		idleTTL:   5 * time.Minute,
		buckets:   make(map[string]*bucket),
		done:      make(chan struct{}),
	}
	if requestsPerMinute > 0 {
		go pl.evictIdle()
	}
	return pl
}

func (pl *profileLimiter) allow(key string) bool {
	now := time.Now()
	pl.mu.Lock()
	defer pl.mu.Unlock()
	b, ok := pl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(pl.every, pl.perMinute)}
		pl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// retryAfter is the wait, in whole seconds, for one token to refill.
func (pl *profileLimiter) retryAfter() string {
	return strconv.Itoa(int(math.Ceil(60 / float64(pl.perMinute))))
}

func (pl *profileLimiter) evictIdle() {
	ticker := time.NewTicker(pl.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			pl.mu.Lock()
			for k, b := range pl.buckets {
				if now.Sub(b.lastSeen) > pl.idleTTL {
					delete(pl.buckets, k)
				}
			}
			pl.mu.Unlock()
		case <-pl.done:
			return
		}
	}
}

// Stop ends the eviction goroutine. Safe to call more than once.
func (pl *profileLimiter) Stop() {
	pl.once.Do(func() { close(pl.done) })
}

func (pl *profileLimiter) middleware(next http.Handler) http.Handler {
	if pl.perMinute <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := profileID(r)
		if key == "" {
			key = clientHost(r)
		}
		if !pl.allow(key) {
			w.Header().Set("Retry-After", pl.retryAfter())
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate_limited", "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusWriter records the status code written through it.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.status = http.StatusOK
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
