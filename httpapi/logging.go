package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"pkt.systems/pslog"
)

type sessionLookupFunc func(*http.Request) string

// withRequestLogging logs one line per request. Streams, drag updates and the
// asset tree log at debug level unless they fail.
func withRequestLogging(lookup sessionLookupFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger := pslog.Ctx(r.Context()).With("remote", clientIP(r), "request_id", middleware.GetReqID(r.Context()))
			if lookup != nil {
				if sessionID := lookup(r); sessionID != "" {
					logger = logger.With("http_session", sessionID)
				}
			}
			fields := []any{"method", r.Method, "path", r.URL.RequestURI(), "status", status, "bytes", ww.BytesWritten(), "duration_ms", time.Since(start).Milliseconds()}
			if quietPath(r.URL.Path) && status < http.StatusBadRequest {
				logger.Debug("http request", fields...)
			} else {
				logger.Info("http request", fields...)
			}
			logger.Trace("http request details", "ua", r.UserAgent(), "proto", r.Proto)
		})
	}
}

func quietPath(path string) bool {
	return strings.Contains(path, "/assets/") || strings.HasSuffix(path, "/stream") || strings.Contains(path, "/drag/")
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
