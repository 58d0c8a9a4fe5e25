package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-gateway/internal/logging"
)

type (
	requestIDKey struct{}
	bodyKey      struct{}
)

// RequestID returns the ID assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestBody(ctx context.Context) []byte {
	body, _ := ctx.Value(bodyKey{}).([]byte)
	return body
}

func requestIDMiddleware(newID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := newID()
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bodyMiddleware buffers the request body so it can be logged, echoed in error
// responses and still read by handlers. A declared JSON body that does not parse
// is rejected with 400 before any route runs.
func bodyMiddleware(maxBytes int64, clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
				_ = r.Body.Close()
				if err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]any{
						"success":   false,
						"error":     "failed to read request body",
						"timestamp": formatTimestamp(clock()),
					})
					return
				}
				if int64(len(body)) > maxBytes {
					writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
						"success":   false,
						"error":     "Request body too large",
						"timestamp": formatTimestamp(clock()),
					})
					return
				}
			}
			if isJSON(r) && !validJSONBody(body) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"success":   false,
					"error":     "Invalid JSON body",
					"timestamp": formatTimestamp(clock()),
				})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), bodyKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(zap.String("request_id", RequestID(r.Context())))
			reqLogger.Info("incoming request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Object("headers", logging.Headers(r.Header)),
				zap.ByteString("body", requestBody(r.Context())),
				zap.String("query", r.URL.RawQuery),
			)
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqLogger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger, clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("request_id", RequestID(r.Context())),
						zap.Stack("stack"),
					)
					writeJSON(w, http.StatusInternalServerError, map[string]any{
						"success":   false,
						"error":     "internal server error",
						"timestamp": formatTimestamp(clock()),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
