package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/scrape-gateway/internal/browser/browsertest"
	"github.com/JakeFAU/scrape-gateway/internal/clock/system"
	"github.com/JakeFAU/scrape-gateway/internal/scrape"
)

func TestLoggingMiddlewareLogsRequestDetails(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	registry, err := scrape.NewRegistry(fastGoogle())
	require.NoError(t, err)
	server := NewServer(browsertest.NewLauncher(browsertest.NewPage(pageHTML)), registry, nil, &fakeIDGen{},
		system.Fixed(fixedNow), testConfig(), zap.New(core))

	req := httptest.NewRequest(http.MethodPost, "/scrape/google?src=test", strings.NewReader(`{"searchTerm":"logs"}`))
	req.Header.Set("X-Trace", "abc")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	incoming := logs.FilterMessage("incoming request").All()
	require.Len(t, incoming, 1)
	fields := incoming[0].ContextMap()
	assert.Equal(t, "id-1", fields["request_id"])
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/scrape/google", fields["path"])
	assert.Equal(t, `{"searchTerm":"logs"}`, fields["body"])
	assert.Equal(t, "src=test", fields["query"])
	headers, ok := fields["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc", headers["X-Trace"])

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	assert.EqualValues(t, http.StatusOK, completed[0].ContextMap()["status"])
}

func TestBodyMiddlewareRestoresBody(t *testing.T) {
	t.Parallel()

	var seen string
	handler := bodyMiddleware(64, system.Fixed(fixedNow).Now)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		seen = buf.String()
		assert.Equal(t, seen, string(requestBody(r.Context())))
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, `{"a":1}`, seen)
}

func TestBodyValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{}, bodyValue(nil))
	assert.Equal(t, map[string]any{}, bodyValue([]byte("  ")))
	assert.Equal(t, `{"a":1}`, string(bodyValue([]byte(`{"a":1}`)).(json.RawMessage)))
	assert.Equal(t, "not json", bodyValue([]byte("not json")))
}

func TestBodyMiddlewareRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	called := false
	handler := bodyMiddleware(64, system.Fixed(fixedNow).Now)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{name: "truncated json", contentType: "application/json", body: `{"a":`, want: http.StatusBadRequest},
		{name: "bare scalar", contentType: "application/json", body: `true`, want: http.StatusBadRequest},
		{name: "empty json", contentType: "application/json", body: "", want: http.StatusNoContent},
		{name: "array", contentType: "application/json", body: `[1]`, want: http.StatusNoContent},
		{name: "plain text", contentType: "text/plain", body: `{"a":`, want: http.StatusNoContent},
		{name: "no content type", body: `{"a":`, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		called = false
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, tt.name)
		assert.Equal(t, tt.want == http.StatusNoContent, called, tt.name)
		if tt.want == http.StatusBadRequest {
			var out map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, "Invalid JSON body", out["error"])
			assert.Equal(t, "2024-03-01T12:00:00.123Z", out["timestamp"])
		}
	}
}

func TestIsJSON(t *testing.T) {
	t.Parallel()

	for ct, want := range map[string]bool{
		"application/json":                true,
		"Application/JSON; charset=utf-8": true,
		"text/plain":                      false,
		"":                                false,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Content-Type", ct)
		assert.Equal(t, want, isJSON(req), ct)
	}
}
