package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger writes one log line per request.
// It must run after Authenticate so the principal is visible.
type RequestLogger struct {
	logger     *zap.Logger
	quietPaths map[string]struct{}
}

// NewRequestLogger creates a RequestLogger. Requests to quietPaths are
// logged at debug level and never reported as unauthenticated.
func NewRequestLogger(logger *zap.Logger, quietPaths ...string) *RequestLogger {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}
	return &RequestLogger{logger: logger, quietPaths: quiet}
}

// Handler wraps next with request logging
func (l *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		ctx := r.Context()
		fields := []zap.Field{
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int("bytes", ww.BytesWritten()),
		}

		_, quiet := l.quietPaths[r.URL.Path]

		principal, ok := GetPrincipalFromContext(ctx)
		switch {
		case ok:
			fields = append(fields,
				zap.String("username", principal.Username()),
				zap.Strings("roles", principal.Roles()))
			l.logger.Info("request completed", fields...)
		case quiet:
			l.logger.Debug("request completed", fields...)
		default:
			l.logger.Warn("unauthenticated request", fields...)
		}
	})
}
