package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/link-weaver/internal/crawler"
	"github.com/alvmarrod/link-weaver/internal/storage"
)

// Tracker holds and manages crawl metrics. It implements crawler.Observer.
type Tracker struct {
	mu                sync.Mutex
	data              storage.Metrics
	totalRenderTimeMs int64
	renderCount       int
}

var _ crawler.Observer = (*Tracker)(nil)

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
		},
	}
}

// LevelStarted is called before the workers of a level start
func (t *Tracker) LevelStarted(depth, size int) {}

// LevelCompleted increments the completed levels counter
func (t *Tracker) LevelCompleted(depth int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.LevelsCompleted++
}

// PageVisited records the outcome of a single visit
func (t *Tracker) PageVisited(event crawler.VisitResult, newLinks, newFiles int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Err != nil {
		t.data.PagesFailed++
		return
	}

	t.data.PagesRendered++
	t.data.LinksDiscovered += newLinks
	t.data.FilesFound += newFiles
	t.totalRenderTimeMs += event.Latency.Milliseconds()
	t.renderCount++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalRenderTimeMs = t.totalRenderTimeMs

	if t.renderCount > 0 {
		snapshot.AvgRenderTimeMs = t.totalRenderTimeMs / int64(t.renderCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.mu.Unlock()

	jsonData, err := json.MarshalIndent(t.GetSnapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Pages: %d rendered, %d failed | Links: %d discovered, %d files | Levels: %d",
		t.data.PagesRendered,
		t.data.PagesFailed,
		t.data.LinksDiscovered,
		t.data.FilesFound,
		t.data.LevelsCompleted,
	)
}
