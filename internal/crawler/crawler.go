package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alvmarrod/link-weaver/internal/extract"
	"github.com/alvmarrod/link-weaver/internal/memory"
	"github.com/alvmarrod/link-weaver/internal/render"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidSeed is returned when no usable seed URL is given
	ErrInvalidSeed = errors.New("invalid seed URL")
	// ErrInvalidDepth is returned for a negative depth bound
	ErrInvalidDepth = errors.New("max depth must be >= 0")
	// ErrNoSessions is returned when the crawler is built without renderer sessions
	ErrNoSessions = errors.New("at least one render session is required")
)

// ExtractFunc returns the absolute link targets found in markup
type ExtractFunc func(markup, baseURL string) []string

// Observer receives crawl progress events. Implementations must be safe for
// concurrent use since workers of the same level report in parallel.
type Observer interface {
	LevelStarted(depth, size int)
	PageVisited(event VisitResult, newLinks, newFiles int)
	LevelCompleted(depth int)
}

// VisitResult is the outcome of a single page visit: either links or a
// recoverable failure, never both
type VisitResult struct {
	URL      string
	FinalURL string
	Depth    int
	Links    []string
	Latency  time.Duration
	Err      error
}

// PageFailure describes a URL that was visited but could not be rendered
type PageFailure struct {
	URL   string
	Depth int
	Err   error
}

// Result is everything a run collected
type Result struct {
	Discovered []string
	Files      []string
	Visited    []string
	Failures   []PageFailure
	Levels     int
	Cancelled  error
	Graph      *memory.LinkGraph
}

// Option customizes a Crawler
type Option func(*Crawler)

// WithExtractor replaces the markup extractor
func WithExtractor(fn ExtractFunc) Option {
	return func(c *Crawler) {
		c.extract = fn
	}
}

// WithObserver registers a progress observer
func WithObserver(o Observer) Option {
	return func(c *Crawler) {
		c.observer = o
	}
}

// Crawler runs a depth-bounded breadth-first traversal. Each session is owned
// by one worker, so the number of sessions sets the per-level parallelism.
type Crawler struct {
	sessions   []render.Session
	classifier *Classifier
	extract    ExtractFunc
	observer   Observer
}

// NewCrawler creates a crawler over the given sessions. The caller keeps
// ownership of the sessions and must release them after the last run.
func NewCrawler(sessions []render.Session, classifier *Classifier, opts ...Option) (*Crawler, error) {
	if len(sessions) == 0 {
		return nil, ErrNoSessions
	}
	if classifier == nil {
		classifier = DefaultClassifier()
	}

	c := &Crawler{
		sessions:   sessions,
		classifier: classifier,
		extract:    extract.ExtractAbsoluteLinks,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run crawls from a single seed URL. Depth 0 visits only the seed.
func (c *Crawler) Run(ctx context.Context, seedURL string, maxDepth int) (*Result, error) {
	return c.RunSeeds(ctx, []string{seedURL}, maxDepth)
}

// RunSeeds crawls starting with every seed at depth 0.
// A cancelled context stops the run early; the partial result is returned
// with Cancelled set and no error.
func (c *Crawler) RunSeeds(ctx context.Context, seeds []string, maxDepth int) (*Result, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDepth, maxDepth)
	}

	frontier := NewFrontier()
	graph := memory.NewLinkGraph()
	run := &runState{frontier: frontier, graph: graph, maxDepth: maxDepth}

	for _, seed := range seeds {
		if seed = strings.TrimSpace(seed); seed != "" {
			frontier.EnqueueIfUnseen(seed)
		}
	}
	if frontier.Pending() == 0 {
		return nil, ErrInvalidSeed
	}

	result := &Result{Graph: graph}
	for depth := 0; depth <= maxDepth && frontier.Pending() > 0; depth++ {
		if err := ctx.Err(); err != nil {
			result.Cancelled = err
			break
		}

		level := frontier.TakeLevel()
		logrus.Infof("Level %d: visiting %d URLs with %d workers", depth, len(level), len(c.sessions))
		if c.observer != nil {
			c.observer.LevelStarted(depth, len(level))
		}

		c.crawlLevel(ctx, run, level, depth)

		if err := ctx.Err(); err != nil {
			result.Cancelled = err
			break
		}

		result.Levels++
		if c.observer != nil {
			c.observer.LevelCompleted(depth)
		}
		logrus.Infof("Level %d complete: %d pending for next level", depth, frontier.Pending())
	}

	if result.Cancelled != nil {
		logrus.Warnf("Crawl cancelled after %d levels: %v", result.Levels, result.Cancelled)
	}

	result.Discovered = graph.Discovered()
	result.Files = c.classifier.FileLinks(result.Discovered)
	result.Visited = frontier.Visited()
	sort.Strings(result.Visited)
	result.Failures = run.sortedFailures()

	return result, nil
}

// GetFileLinks returns the file-resource subset of discovered URLs
func (c *Crawler) GetFileLinks(discovered []string) []string {
	return c.classifier.FileLinks(discovered)
}

// runState holds the per-run mutable state shared by the workers of a level
type runState struct {
	frontier *Frontier
	graph    *memory.LinkGraph
	maxDepth int

	mu       sync.Mutex
	failures []PageFailure
}

func (r *runState) addFailure(f PageFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

func (r *runState) sortedFailures() []PageFailure {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PageFailure, len(r.failures))
	copy(out, r.failures)
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// crawlLevel distributes the level's URLs over one worker per session and
// waits for all of them to finish
func (c *Crawler) crawlLevel(ctx context.Context, run *runState, level []string, depth int) {
	urls := make(chan string)

	var g errgroup.Group
	for i, session := range c.sessions {
		id := i + 1
		g.Go(func() error {
			c.worker(ctx, id, session, run, urls, depth)
			return nil
		})
	}

feed:
	for _, u := range level {
		select {
		case urls <- u:
		case <-ctx.Done():
			break feed
		}
	}
	close(urls)

	_ = g.Wait()
}

// worker visits URLs until the level channel is closed
func (c *Crawler) worker(ctx context.Context, id int, session render.Session, run *runState, urls <-chan string, depth int) {
	for u := range urls {
		if ctx.Err() != nil {
			continue
		}

		if !run.frontier.MarkVisited(u) {
			logrus.Debugf("Worker %d: %s already visited, skipping", id, u)
			continue
		}

		result := c.visit(ctx, session, u, depth)
		if result.Err != nil && ctx.Err() != nil {
			// Interrupted by cancellation, not a page failure
			continue
		}
		c.handleResult(id, run, result)
	}
}

// visit renders one page and extracts its links. Panics from the session or
// extractor are turned into a failed result.
func (c *Crawler) visit(ctx context.Context, session render.Session, u string, depth int) (result VisitResult) {
	result = VisitResult{URL: u, Depth: depth}

	defer func() {
		if r := recover(); r != nil {
			result.Links = nil
			result.Err = &render.RenderError{URL: u, Kind: render.KindSession, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	start := time.Now()
	page, err := session.Open(ctx, u)
	result.Latency = time.Since(start)
	if err != nil {
		result.Err = err
		return result
	}

	result.FinalURL = page.FinalURL
	if result.FinalURL == "" {
		result.FinalURL = u
	}
	result.Links = c.extract(page.Markup, result.FinalURL)
	return result
}

// handleResult merges a visit into the run state and feeds the next level
func (c *Crawler) handleResult(id int, run *runState, result VisitResult) {
	run.graph.RecordVisit(result.URL, result.Depth, result.Err)

	if result.Err != nil {
		logrus.Warnf("Worker %d: failed to render %s (depth=%d): %v", id, result.URL, result.Depth, result.Err)
		run.addFailure(PageFailure{URL: result.URL, Depth: result.Depth, Err: result.Err})
		if c.observer != nil {
			c.observer.PageVisited(result, 0, 0)
		}
		return
	}

	added := run.graph.AddLinks(result.URL, result.Links)
	newLinks := len(added)
	newFiles := len(c.classifier.FileLinks(added))

	enqueued := 0
	if result.Depth < run.maxDepth {
		for _, link := range result.Links {
			if !c.classifier.IsDiscoverable(link) {
				continue
			}
			if run.frontier.EnqueueIfUnseen(link) {
				enqueued++
				logrus.Debugf("Worker %d: enqueued %s (depth=%d)", id, link, result.Depth+1)
			}
		}
	}

	logrus.Infof("Worker %d: rendered %s (depth=%d, links=%d, new=%d, enqueued=%d, %v)",
		id, result.URL, result.Depth, len(result.Links), newLinks, enqueued, result.Latency.Round(time.Millisecond))

	if c.observer != nil {
		c.observer.PageVisited(result, newLinks, newFiles)
	}
}
