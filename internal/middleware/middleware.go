package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/spotmeet/spotmeet/internal/logger"
	"github.com/spotmeet/spotmeet/internal/observability"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Logging logs each request with a request id (from X-Request-ID or
// freshly minted) and records latency metrics.
func Logging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = logger.NewID()
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := logger.WithRequestID(r.Context(), reqID)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sw, r.WithContext(ctx))
			elapsed := time.Since(start)

			observability.ObserveHTTP(r.Method, r.URL.Path, sw.status, elapsed.Seconds())
			log.Debug("http request",
				"method", r.Method, "path", r.URL.Path,
				"status", sw.status, "elapsed", elapsed, "request_id", reqID)
		}
		return http.HandlerFunc(fn)
	}
}

// Recover converts panics into 500s instead of tearing down the server.
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic in handler", "path", r.URL.Path, "panic", rec)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

// CORS is a permissive CORS layer for browser clients.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
