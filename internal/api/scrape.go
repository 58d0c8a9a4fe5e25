package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-gateway/internal/metrics"
	"github.com/JakeFAU/scrape-gateway/internal/runs"
	"github.com/JakeFAU/scrape-gateway/internal/scrape"
)

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"success": false,
			"error":   "Method not allowed",
			"requestDetails": map[string]any{
				"method": r.Method,
			},
		})
		return
	}

	name := strings.TrimSuffix(chi.URLParam(r, "*"), "/")
	routine, err := s.registry.Lookup(name)
	if err != nil {
		s.logger.Info("unknown scrape routine", zap.String("routine", name))
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Route not found",
		})
		return
	}

	body := requestBody(r.Context())
	var req scrape.Request
	if isJSON(r) {
		req = scrape.DecodeRequest(body)
	}

	ctx := r.Context()
	if timeout := s.cfg.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, runErr := s.run(ctx, routine, req, RequestID(r.Context()))
	if runErr != nil {
		s.logger.Error("scraping failed",
			zap.String("routine", routine.Name()),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(runErr),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   runErr.Error(),
			"requestDetails": map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
				"body":   bodyValue(body),
				"query":  queryValue(r),
			},
			"timestamp": formatTimestamp(s.clock.Now()),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
	})
}

// RunRoutine looks up a routine by name and runs it exactly as POST
// /scrape/{name} would, without the HTTP envelope.
func (s *Server) RunRoutine(ctx context.Context, name string, req scrape.Request) (scrape.Result, error) {
	routine, err := s.registry.Lookup(name)
	if err != nil {
		return scrape.Result{}, err
	}
	return s.run(ctx, routine, req, "")
}

// run executes routine in a fresh browser, then reports the outcome to metrics
// and the configured sinks. The browser is closed before run returns.
func (s *Server) run(ctx context.Context, routine scrape.Routine, req scrape.Request, requestID string) (scrape.Result, error) {
	started := s.clock.Now()
	result, err := s.execute(ctx, routine, req)
	duration := s.clock.Now().Sub(started)

	status := runs.StatusSucceeded
	if err != nil {
		status = runs.StatusFailed
		result = scrape.Result{}
	}
	metrics.ObserveScrape(routine.Name(), string(status), result.HTMLLength, duration)
	s.record(ctx, runs.Run{
		Routine:    routine.Name(),
		SearchTerm: req.SearchTerm,
		Status:     status,
		HTMLLength: result.HTMLLength,
		Error:      errorText(err),
		RequestID:  requestID,
		StartedAt:  started,
		Duration:   duration,
	}, result.HTML)
	return result, err
}

// execute owns the browser for one request: the session is closed on every
// path before execute returns, so no response is written while it is alive.
func (s *Server) execute(ctx context.Context, routine scrape.Routine, req scrape.Request) (scrape.Result, error) {
	session, err := s.launcher.Launch(ctx)
	if err != nil {
		return scrape.Result{}, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		s.logger.Debug("closing browser", zap.String("routine", routine.Name()))
		if cerr := session.Close(); cerr != nil {
			s.logger.Warn("browser close failed", zap.Error(cerr))
		}
	}()
	return routine.Run(ctx, session.Page(), req)
}

func (s *Server) record(ctx context.Context, run runs.Run, html string) {
	if !s.recorder.Enabled() {
		return
	}
	id, err := s.idGen.NewID()
	if err != nil {
		s.logger.Warn("run id generation failed", zap.Error(err))
		return
	}
	run.ID = id
	if _, err := s.recorder.Record(ctx, run, html); err != nil {
		s.logger.Warn("run recording incomplete", zap.String("run_id", id), zap.Error(err))
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
