// Package server builds the gateway's dependencies and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-gateway/internal/api"
	"github.com/JakeFAU/scrape-gateway/internal/browser"
	"github.com/JakeFAU/scrape-gateway/internal/clock/system"
	"github.com/JakeFAU/scrape-gateway/internal/config"
	"github.com/JakeFAU/scrape-gateway/internal/hash/sha256"
	"github.com/JakeFAU/scrape-gateway/internal/id/uuid"
	"github.com/JakeFAU/scrape-gateway/internal/logging"
	"github.com/JakeFAU/scrape-gateway/internal/metrics"
	memorypublisher "github.com/JakeFAU/scrape-gateway/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/scrape-gateway/internal/publisher/pubsub"
	"github.com/JakeFAU/scrape-gateway/internal/runs"
	"github.com/JakeFAU/scrape-gateway/internal/scrape"
	gcsstorage "github.com/JakeFAU/scrape-gateway/internal/storage/gcs"
	localstorage "github.com/JakeFAU/scrape-gateway/internal/storage/local"
	memorystorage "github.com/JakeFAU/scrape-gateway/internal/storage/memory"
	pgstore "github.com/JakeFAU/scrape-gateway/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	runStore     *pgstore.RunStore
}

// Build creates the application's dependencies, including the process-wide logger.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("environment", cfg.Environment),
	)
	metrics.Init()

	launcher, err := browser.NewChromedp(cfg.BrowserOptions(), logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser launcher init failed: %w", err)
	}
	if path := cfg.BrowserExecPath(); path != "" {
		app.logger.Info("using fixed browser binary", zap.String("path", path))
	}

	registry, err := scrape.NewRegistry(scrape.NewGoogle(cfg.GoogleRoutine(), logger.Named("scrape")))
	if err != nil {
		return nil, fmt.Errorf("routine registry init failed: %w", err)
	}

	recorder, err := app.setupRecorder(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.apiServer = api.NewServer(
		launcher,
		registry,
		recorder,
		uuid.New(),
		system.New(),
		*cfg,
		logger.Named("api"),
	)
	return app, nil
}

func (a *App) setupRecorder(ctx context.Context) (*runs.Recorder, error) {
	blobs, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.setupNotify(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.setupRuns(ctx)
	if err != nil {
		return nil, err
	}
	if blobs == nil && publisher == nil && store == nil {
		a.logger.Info("no run sinks configured")
		return nil, nil
	}
	var hasher runs.Hasher
	if blobs != nil {
		hasher = sha256.New()
	}
	return runs.NewRecorder(blobs, publisher, store, hasher, runs.Config{
		BlobPrefix:  a.cfg.Archive.Prefix,
		ContentType: a.cfg.Archive.ContentType,
		Topic:       a.cfg.Notify.Topic,
		Timeout:     a.cfg.SinkTimeout(),
	}, a.logger.Named("runs")), nil
}

func (a *App) setupArchive(ctx context.Context) (runs.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS snapshot archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:       a.cfg.Archive.GCSBucket,
			CacheControl: a.cfg.Archive.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, nil
	case config.BackendLocal:
		a.logger.Info("using local snapshot archive", zap.String("path", a.cfg.Archive.LocalDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory snapshot archive")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupNotify(ctx context.Context) (runs.Publisher, error) {
	switch a.cfg.Notify.Backend {
	case config.BackendPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.publisher = gcppublisher.New(client.Topic(a.cfg.Notify.Topic))
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Notify.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
		return a.publisher, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory run notifications")
		return memorypublisher.New(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupRuns(ctx context.Context) (runs.Store, error) {
	switch a.cfg.Runs.Backend {
	case config.BackendPostgres:
		store, err := pgstore.NewRunStore(ctx, pgstore.RunStoreConfig{
			DSN:             a.cfg.Runs.DSN,
			Table:           a.cfg.Runs.Table,
			MaxConns:        a.cfg.Runs.MaxConns,
			MinConns:        a.cfg.Runs.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.Runs.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("run store init failed: %w", err)
		}
		a.runStore = store
		a.logger.Info("run ledger initialized", zap.String("table", a.cfg.Runs.Table))
		return store, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory run ledger")
		return memorystorage.NewRunStore(), nil
	default:
		return nil, nil
	}
}

// API exposes the HTTP gateway, mainly for the one-shot CLI.
func (a *App) API() *api.Server {
	return a.apiServer
}

// Run listens on the configured address until SIGINT, SIGTERM or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is done, then closes the listener and
// every open connection at once. In-flight scrapes are not drained; their
// request contexts are canceled, which tears their browsers down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: time.Duration(a.cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown initiated")
	if err := srv.Close(); err != nil {
		a.logger.Warn("server close error", zap.Error(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Warn("http server error", zap.Error(err))
	}
	return nil
}

// Close releases sink clients and flushes the logger.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
}

// RunRoutine runs a registered routine once outside of HTTP.
func (a *App) RunRoutine(ctx context.Context, name string, req scrape.Request) (scrape.Result, error) {
	return a.apiServer.RunRoutine(ctx, name, req)
}
