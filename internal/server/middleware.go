package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"nestling/internal/auth"
	"nestling/internal/logging"
)

type contextKey string

const authContextKey contextKey = "nestling.auth"

// requestLogger logs one zap line per request, plus a debug line in the
// server category file when debug mode is on.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", elapsed),
		)
		logging.ServerDebug("%s %s -> %d (%v)", r.Method, r.URL.Path, ww.Status(), elapsed)
	})
}

// requireAuth resolves the bearer token into an auth context or fails 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		actx, err := s.auth.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey, actx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authContext fetches the auth context placed by requireAuth.
func authContext(r *http.Request) *auth.Context {
	actx, _ := r.Context().Value(authContextKey).(*auth.Context)
	return actx
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// Cookie fallback for browser clients.
	if c, err := r.Cookie("nestling_session"); err == nil {
		return c.Value
	}
	return ""
}
