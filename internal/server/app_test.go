package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-gateway/internal/config"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return &cfg
}

func TestBuildWithoutSinks(t *testing.T) {
	cfg := baseConfig(t)

	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.API())
	assert.Nil(t, app.runStore)
	assert.Nil(t, app.storage)
	assert.Contains(t, app.API().Routes(), "POST /scrape/google")
}

func TestBuildWithLocalAndMemorySinks(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Archive.Backend = config.BackendLocal
	cfg.Archive.LocalDir = t.TempDir()
	cfg.Notify.Backend = config.BackendMemory
	cfg.Runs.Backend = config.BackendMemory

	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	rec, err := app.setupRecorder(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.Enabled())
}

func TestBuildRejectsBadPostgresDSN(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Runs.Backend = config.BackendPostgres
	cfg.Runs.DSN = "://not-a-dsn"

	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run store init failed")
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := baseConfig(t)
	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	url := fmt.Sprintf("http://%s/health", ln.Addr().String())
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = client.Get(url) //nolint:noctx // test helper
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
