package storage

import "time"

// Run represents one crawl invocation
type Run struct {
	RunID     int
	SeedURL   string
	MaxDepth  int
	StartedAt time.Time
	Status    string
}

// Link represents a URL observed during a run
type Link struct {
	URL          string
	IsFile       bool
	Discoverable bool
}

// Edge represents a hyperlink from one page to another
type Edge struct {
	FromURL string
	ToURL   string
	Weight  int
}

// Visit records the outcome of rendering a single URL
type Visit struct {
	URL   string
	Depth int
	OK    bool
	Error string
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	PagesRendered     int       `json:"pages_rendered"`
	PagesFailed       int       `json:"pages_failed"`
	LinksDiscovered   int       `json:"links_discovered"`
	FilesFound        int       `json:"files_found"`
	LevelsCompleted   int       `json:"levels_completed"`
	TotalRenderTimeMs int64     `json:"total_render_time_ms"`
	AvgRenderTimeMs   int64     `json:"avg_render_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}
