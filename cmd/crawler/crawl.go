package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alvmarrod/link-weaver/internal/config"
	"github.com/alvmarrod/link-weaver/internal/crawler"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/render"
	"github.com/alvmarrod/link-weaver/internal/search"
	"github.com/alvmarrod/link-weaver/internal/storage"
	"github.com/sirupsen/logrus"
)

// runCrawl wires the renderer, crawler, storage and metrics together and
// prints the discovered links to out
func runCrawl(ctx context.Context, cfg *config.Config, out io.Writer, filesOnly bool) error {
	logrus.Infof("Configuration loaded: seed=%s, depth=%d, workers=%d, renderer=%s",
		cfg.SeedURL, cfg.Depth(), cfg.Workers, cfg.Renderer)

	seeds, err := buildSeeds(cfg)
	if err != nil {
		return err
	}

	classifier := crawler.NewClassifier(cfg.FileExtensions, cfg.NonNavigablePrefixes, cfg.SkipPaths)

	// Renderer startup is fatal: nothing is visited or written if it fails
	sessions, release, err := openSessions(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start renderer: %w", err)
	}
	defer release()

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	logrus.Infof("Database initialized: %s", cfg.DBPath)

	runID, err := store.CreateRun(strings.Join(seeds, " "), cfg.Depth())
	if err != nil {
		return err
	}

	tracker := metrics.NewTracker()
	c, err := crawler.NewCrawler(sessions, classifier, crawler.WithObserver(tracker))
	if err != nil {
		return err
	}

	stopProgress := startProgressLogger(tracker, 10*time.Second)
	result, err := c.RunSeeds(ctx, seeds, cfg.Depth())
	stopProgress()
	if err != nil {
		return err
	}

	reason := "completed"
	if result.Cancelled != nil {
		reason = "cancelled"
	}

	logrus.Info("Flushing link graph to database...")
	if err := result.Graph.Flush(store, runID, classifier); err != nil {
		logrus.Errorf("Failed to flush link graph: %v", err)
	}
	if err := store.FinishRun(runID, reason); err != nil {
		logrus.Errorf("Failed to finish run: %v", err)
	}

	for _, f := range result.Failures {
		logrus.Warnf("Not expanded: %s (depth=%d): %v", f.URL, f.Depth, f.Err)
	}

	links := result.Discovered
	if filesOnly {
		links = result.Files
	}
	for _, link := range links {
		if _, err := fmt.Fprintln(out, link); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
	}

	logrus.Info("Final stats: " + tracker.LogProgress())
	if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	logrus.Infof("Crawl finished (%s): %d links discovered, %d files, %d pages visited, %d failed",
		reason, len(result.Discovered), len(result.Files), len(result.Visited), len(result.Failures))
	return nil
}

// buildSeeds returns the seed URL followed by any search result pages
func buildSeeds(cfg *config.Config) ([]string, error) {
	var seeds []string
	if cfg.SeedURL != "" {
		seeds = append(seeds, cfg.SeedURL)
	}

	if strings.TrimSpace(cfg.SearchQuery) != "" {
		engine, err := search.Lookup(cfg.SearchEngine)
		if err != nil {
			return nil, err
		}
		pages, err := engine.ResultPages(cfg.SearchQuery, cfg.SearchPages)
		if err != nil {
			return nil, err
		}
		logrus.Infof("Seeding %d %s result pages for %q", len(pages), engine.Name, cfg.SearchQuery)
		seeds = append(seeds, pages...)
	}

	if len(seeds) == 0 {
		return nil, errors.New("no seed URL or search query given")
	}
	return seeds, nil
}

// openSessions starts one render session per worker. The returned release
// function must be called on every exit path.
func openSessions(ctx context.Context, cfg *config.Config) ([]render.Session, func(), error) {
	timeout := time.Duration(cfg.RenderTimeoutMs) * time.Millisecond

	if cfg.Renderer == config.RendererHTTP {
		sessions := make([]render.Session, 0, cfg.Workers)
		for i := 0; i < cfg.Workers; i++ {
			sessions = append(sessions, render.NewHTTPSession(render.HTTPOptions{
				UserAgent: cfg.UserAgent,
				Timeout:   timeout,
			}))
		}
		return sessions, func() {}, nil
	}

	browser, err := render.NewChromeBrowser(ctx, render.ChromeOptions{
		ExecPath:      cfg.ChromePath,
		Headless:      cfg.IsHeadless(),
		UserAgent:     cfg.UserAgent,
		Timeout:       timeout,
		ReadyTimeout:  time.Duration(cfg.ReadyTimeoutMs) * time.Millisecond,
		ReadySelector: cfg.ReadySelector,
	})
	if err != nil {
		return nil, nil, err
	}

	tabs := make([]*render.ChromeSession, 0, cfg.Workers)
	release := func() {
		for _, tab := range tabs {
			tab.Close()
		}
		browser.Close()
	}

	sessions := make([]render.Session, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		tab, err := browser.NewSession()
		if err != nil {
			release()
			return nil, nil, err
		}
		tabs = append(tabs, tab)
		sessions = append(sessions, tab)
	}

	return sessions, release, nil
}

// startProgressLogger logs tracker progress periodically until stopped
func startProgressLogger(tracker *metrics.Tracker, every time.Duration) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}
