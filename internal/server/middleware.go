package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/acessivel/mobility/internal/logger"
)

func requestLogger(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.WithFields(map[string]interface{}{
				"method":    r.Method,
				"path":      r.URL.Path,
				"status":    ww.Status(),
				"bytes":     ww.BytesWritten(),
				"duration":  time.Since(start).String(),
				"requestID": middleware.GetReqID(r.Context()),
			}).Debug("HTTP request")
		})
	}
}

// quotaWarning flags responses while the backend is near its daily limit.
// The request is still served.
func (s *Server) quotaWarning(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.c.Quota.ShouldThrottle() {
			w.Header().Set(QuotaWarningHeader, "near-limit")
		}
		next.ServeHTTP(w, r)
	})
}
