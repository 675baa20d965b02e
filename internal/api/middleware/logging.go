package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger returns a request logging middleware using zerolog. Server errors
// log at error level, client errors at warn, and probe endpoints at debug.
// Live channel upgrades are logged when the socket closes.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				event := levelFor(logger, r.URL.Path, status)
				if strings.HasPrefix(r.URL.Path, "/ws/") {
					event = event.Dur("connected", time.Since(start))
				} else {
					event = event.Dur("latency", time.Since(start)).Int("bytes", ww.BytesWritten())
				}
				if user := r.Header.Get("X-Chat-User"); user != "" {
					event = event.Str("user", user)
				}
				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func levelFor(logger zerolog.Logger, path string, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return logger.Error()
	case status >= http.StatusBadRequest:
		return logger.Warn()
	case path == "/health" || path == "/metrics":
		return logger.Debug()
	}
	return logger.Info()
}
