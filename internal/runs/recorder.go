package runs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/scrape-gateway/internal/metrics"
)

const (
	sinkArchive = "archive"
	sinkNotify  = "notify"
	sinkLedger  = "ledger"

	defaultContentType = "text/html; charset=utf-8"
	defaultTimeout     = 10 * time.Second
)

// Config controls snapshot naming and sink deadlines.
type Config struct {
	BlobPrefix  string
	ContentType string
	Topic       string
	Timeout     time.Duration
}

// Recorder fans a finished run out to whichever sinks are configured. Nil sinks are skipped.
type Recorder struct {
	blobs     BlobStore
	publisher Publisher
	store     Store
	hasher    Hasher
	cfg       Config
	logger    *zap.Logger
}

// NewRecorder wires the optional sinks.
func NewRecorder(
	blobs BlobStore,
	publisher Publisher,
	store Store,
	hasher Hasher,
	cfg Config,
	logger *zap.Logger,
) *Recorder {
	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		blobs:     blobs,
		publisher: publisher,
		store:     store,
		hasher:    hasher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Enabled reports whether at least one sink is configured.
func (r *Recorder) Enabled() bool {
	return r != nil && (r.blobs != nil || r.publisher != nil || r.store != nil)
}

// Record archives the snapshot of a successful run first, then publishes and
// stores the run concurrently. It returns the run as persisted plus any sink errors.
// The caller's cancellation is ignored so a disconnecting client does not drop the record.
func (r *Recorder) Record(ctx context.Context, run Run, html string) (Run, error) {
	if !r.Enabled() {
		return run, nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
	defer cancel()

	logger := r.logger.With(zap.String("run_id", run.ID), zap.String("routine", run.Routine))
	var errs []error

	if r.blobs != nil && run.Status == StatusSucceeded && html != "" {
		archived, err := r.archive(ctx, run, html)
		if err != nil {
			metrics.ObserveSinkFailure(sinkArchive)
			logger.Warn("snapshot archive failed", zap.Error(err))
			errs = append(errs, err)
		} else {
			run = archived
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if r.publisher != nil {
		event := EventFor(run)
		g.Go(func() error {
			id, err := r.publisher.Publish(gctx, r.cfg.Topic, event)
			if err != nil {
				metrics.ObserveSinkFailure(sinkNotify)
				logger.Warn("run notification failed", zap.Error(err))
				return fmt.Errorf("publish run event: %w", err)
			}
			logger.Debug("run notification published", zap.String("message_id", id))
			return nil
		})
	}
	if r.store != nil {
		g.Go(func() error {
			if err := r.store.StoreRun(gctx, run); err != nil {
				metrics.ObserveSinkFailure(sinkLedger)
				logger.Warn("run ledger write failed", zap.Error(err))
				return fmt.Errorf("store run: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return run, errors.Join(errs...)
}

func (r *Recorder) archive(ctx context.Context, run Run, html string) (Run, error) {
	data := []byte(html)
	if r.hasher != nil {
		digest, err := r.hasher.Hash(data)
		if err != nil {
			return run, fmt.Errorf("hash snapshot: %w", err)
		}
		run.ContentHash = digest
	}
	uri, err := r.blobs.PutObject(ctx, r.snapshotPath(run), r.cfg.ContentType, strings.NewReader(html))
	if err != nil {
		return run, fmt.Errorf("put snapshot: %w", err)
	}
	run.BlobURI = uri
	return run, nil
}

// snapshotPath lays snapshots out as <prefix>/<routine>/<yyyy>/<mm>/<dd>/<run id>.html.
func (r *Recorder) snapshotPath(run Run) string {
	started := run.StartedAt.UTC()
	return path.Join(
		r.cfg.BlobPrefix,
		run.Routine,
		started.Format("2006"),
		started.Format("01"),
		started.Format("02"),
		run.ID+".html",
	)
}
