package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware("google"))
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	teapotBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))

	ts := httptest.NewServer(r)
	defer ts.Close()

	for _, path := range []string{"/test", "/teapot"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		if errInner := resp.Body.Close(); errInner != nil {
			t.Log(errInner)
		}
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); val != okBefore+1 {
		t.Errorf("Expected httpRequestsTotal for GET /test to grow by 1, got %f", val-okBefore)
	}
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")); val != teapotBefore+1 {
		t.Errorf("Expected httpRequestsTotal for GET /teapot to grow by 1, got %f", val-teapotBefore)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}

func TestRouteLabel(t *testing.T) {
	routines := map[string]struct{}{"google": {}}
	var got string
	r := chi.NewRouter()
	r.HandleFunc("/scrape/*", func(w http.ResponseWriter, r *http.Request) {
		got = routeLabel(r, routines)
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		got = routeLabel(r, routines)
		w.WriteHeader(http.StatusOK)
	})

	testCases := []struct {
		path     string
		expected string
	}{
		{"/scrape/google", "/scrape/google"},
		{"/scrape/google/", "/scrape/google"},
		{"/scrape/custom", "/scrape/*"},
		{"/scrape/google/extra", "/scrape/*"},
		{"/health", "/health"},
	}
	for _, tc := range testCases {
		got = ""
		req := httptest.NewRequest(http.MethodPost, tc.path, nil)
		if tc.path == "/health" {
			req.Method = http.MethodGet
		}
		r.ServeHTTP(httptest.NewRecorder(), req)
		if got != tc.expected {
			t.Errorf("routeLabel(%q) = %q; want %q", tc.path, got, tc.expected)
		}
	}

	outside := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	if label := routeLabel(outside, routines); label != "unknown" {
		t.Errorf("expected unknown label outside a router, got %q", label)
	}
}
