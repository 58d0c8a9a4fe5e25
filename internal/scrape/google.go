package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-gateway/internal/browser"
)

// GoogleName is the route name of the Google search routine.
const GoogleName = "google"

// GoogleConfig parameterizes the Google routine. Zero delays skip the pause.
type GoogleConfig struct {
	URL               string
	DefaultSearchTerm string
	ConsentSelector   string
	InputSelector     string
	NavigationTimeout time.Duration
	// ConsentClickTimeout bounds the banner click; a hidden banner never becomes clickable.
	ConsentClickTimeout time.Duration
	ConsentPause        time.Duration
	InputTimeout        time.Duration
	SettleDelay         time.Duration
	// TrailingDelay runs after the content capture and before returning.
	TrailingDelay time.Duration
}

// DefaultGoogleConfig returns the production step parameters.
func DefaultGoogleConfig() GoogleConfig {
	return GoogleConfig{
		URL:                 "https://www.google.com",
		DefaultSearchTerm:   "ChatGPT",
		ConsentSelector:     `button[id="L2AGLb"]`,
		InputSelector:       "textarea",
		NavigationTimeout:   30 * time.Second,
		ConsentClickTimeout: 2 * time.Second,
		ConsentPause:        time.Second,
		InputTimeout:        10 * time.Second,
		SettleDelay:         3 * time.Second,
		TrailingDelay:       5 * time.Second,
	}
}

// Google searches for a term on google.com and reports the length of the results page.
type Google struct {
	cfg    GoogleConfig
	logger *zap.Logger
}

// NewGoogle builds the routine; blank fields in cfg fall back to DefaultGoogleConfig.
func NewGoogle(cfg GoogleConfig, logger *zap.Logger) *Google {
	def := DefaultGoogleConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.DefaultSearchTerm == "" {
		cfg.DefaultSearchTerm = def.DefaultSearchTerm
	}
	if cfg.ConsentSelector == "" {
		cfg.ConsentSelector = def.ConsentSelector
	}
	if cfg.InputSelector == "" {
		cfg.InputSelector = def.InputSelector
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.ConsentClickTimeout <= 0 {
		cfg.ConsentClickTimeout = def.ConsentClickTimeout
	}
	if cfg.InputTimeout <= 0 {
		cfg.InputTimeout = def.InputTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Google{cfg: cfg, logger: logger}
}

// Name implements Routine.
func (g *Google) Name() string {
	return GoogleName
}

// Run implements Routine.
func (g *Google) Run(ctx context.Context, page browser.Page, req Request) (Result, error) {
	term := req.SearchTerm
	if term == "" {
		term = g.cfg.DefaultSearchTerm
	}
	logger := g.logger.With(zap.String("routine", GoogleName), zap.String("search_term", term))

	logger.Info("navigating", zap.String("url", g.cfg.URL))
	if err := page.Navigate(ctx, g.cfg.URL, g.cfg.NavigationTimeout); err != nil {
		return Result{}, fmt.Errorf("navigate: %w", err)
	}

	g.dismissConsent(ctx, page, logger)

	if err := page.WaitVisible(ctx, g.cfg.InputSelector, g.cfg.InputTimeout); err != nil {
		return Result{}, fmt.Errorf("wait for search input: %w", err)
	}
	if err := page.Type(ctx, g.cfg.InputSelector, term); err != nil {
		return Result{}, fmt.Errorf("type search term: %w", err)
	}
	if err := page.PressEnter(ctx); err != nil {
		return Result{}, fmt.Errorf("submit search: %w", err)
	}
	logger.Info("search submitted, waiting for results")

	if err := sleep(ctx, g.cfg.SettleDelay); err != nil {
		return Result{}, fmt.Errorf("wait for results: %w", err)
	}

	html, err := page.Content(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("capture content: %w", err)
	}
	result := Result{HTMLLength: HTMLLength(html), HTML: html}
	logger.Info("content captured", zap.Int("html_length", result.HTMLLength))

	if err := sleep(ctx, g.cfg.TrailingDelay); err != nil {
		return Result{}, fmt.Errorf("trailing delay: %w", err)
	}
	return result, nil
}

// dismissConsent clicks the cookie banner when present. Failures are tolerated.
func (g *Google) dismissConsent(ctx context.Context, page browser.Page, logger *zap.Logger) {
	present, err := page.Exists(ctx, g.cfg.ConsentSelector)
	if err != nil || !present {
		logger.Info("no cookie banner found or already accepted", zap.Error(err))
		return
	}
	if err := page.Click(ctx, g.cfg.ConsentSelector, g.cfg.ConsentClickTimeout); err != nil {
		logger.Info("cookie banner click failed", zap.Error(err))
		return
	}
	if err := sleep(ctx, g.cfg.ConsentPause); err != nil {
		logger.Debug("consent pause interrupted", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
