package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Middleware returns a chi middleware that records HTTP request metrics.
// Requests on a wildcard route whose suffix names one of routines are labelled
// with that routine (/scrape/google); any other suffix keeps the wildcard
// pattern so unknown paths cannot grow the label set.
func Middleware(routines ...string) func(http.Handler) http.Handler {
	known := make(map[string]struct{}, len(routines))
	for _, name := range routines {
		known[name] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			ObserveHTTPRequest(r.Method, routeLabel(r, known), ww.status, time.Since(start))
		})
	}
}

func routeLabel(r *http.Request, routines map[string]struct{}) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return "unknown"
	}
	pattern := rctx.RoutePattern()
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	if !wildcard {
		return pattern
	}
	name := strings.TrimSuffix(rctx.URLParam("*"), "/")
	if _, ok := routines[name]; ok {
		return prefix + name
	}
	return pattern
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
