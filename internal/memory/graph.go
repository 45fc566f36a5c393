package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/alvmarrod/link-weaver/internal/storage"
	"github.com/sirupsen/logrus"
)

// Classifier labels URLs when the graph is written to storage
type Classifier interface {
	IsFileResource(url string) bool
	IsDiscoverable(url string) bool
}

type edgeKey struct {
	from string
	to   string
}

// LinkGraph accumulates every URL observed during a run, the page-to-link
// edges and the outcome of each visit. Safe for concurrent use.
type LinkGraph struct {
	discovered map[string]bool
	edges      map[edgeKey]int
	visits     map[string]storage.Visit
	mu         sync.RWMutex
}

// NewLinkGraph creates an empty graph
func NewLinkGraph() *LinkGraph {
	return &LinkGraph{
		discovered: make(map[string]bool),
		edges:      make(map[edgeKey]int),
		visits:     make(map[string]storage.Visit),
	}
}

// AddLinks records the links found on source.
// Returns the links that had not been seen before
func (g *LinkGraph) AddLinks(source string, links []string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var added []string
	for _, link := range links {
		if !g.discovered[link] {
			g.discovered[link] = true
			added = append(added, link)
		}
		g.edges[edgeKey{from: source, to: link}]++
	}
	return added
}

// RecordVisit stores the outcome of rendering u at depth.
// Seeds only become discovered when some page links to them.
func (g *LinkGraph) RecordVisit(u string, depth int, visitErr error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := storage.Visit{URL: u, Depth: depth, OK: visitErr == nil}
	if visitErr != nil {
		v.Error = visitErr.Error()
	}
	g.visits[u] = v
}

// Contains reports whether u has been observed
func (g *LinkGraph) Contains(u string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.discovered[u]
}

// Discovered returns every observed URL, sorted
func (g *LinkGraph) Discovered() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.discovered))
	for u := range g.discovered {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Visits returns the recorded visits ordered by depth then URL
func (g *LinkGraph) Visits() []storage.Visit {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]storage.Visit, 0, len(g.visits))
	for _, v := range g.visits {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Outlinks returns the sorted targets linked from source
func (g *LinkGraph) Outlinks(source string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for key := range g.edges {
		if key.from == source {
			out = append(out, key.to)
		}
	}
	sort.Strings(out)
	return out
}

// GetStats returns current graph statistics
func (g *LinkGraph) GetStats() (urlCount, edgeCount, visitCount int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.discovered), len(g.edges), len(g.visits)
}

// Flush writes the graph to storage under runID.
// Individual write failures are logged and the first one is returned.
func (g *LinkGraph) Flush(store *storage.Storage, runID int, classifier Classifier) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	startTime := time.Now()
	logrus.Info("Starting flush to database...")

	linksWritten := 0
	edgesWritten := 0
	visitsWritten := 0
	var firstErr error

	keepErr := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for u := range g.discovered {
		link := storage.Link{
			URL:          u,
			IsFile:       classifier.IsFileResource(u),
			Discoverable: classifier.IsDiscoverable(u),
		}
		if err := store.UpsertLink(runID, link); err != nil {
			keepErr(err)
			logrus.Warnf("Failed to flush link %s: %v", u, err)
			continue
		}
		linksWritten++
	}

	for key, weight := range g.edges {
		edge := storage.Edge{FromURL: key.from, ToURL: key.to, Weight: weight}
		if err := store.UpsertEdge(runID, edge); err != nil {
			keepErr(err)
			logrus.Warnf("Failed to flush edge %s -> %s: %v", key.from, key.to, err)
			continue
		}
		edgesWritten++
	}

	for _, v := range g.visits {
		if err := store.RecordVisit(runID, v); err != nil {
			keepErr(err)
			logrus.Warnf("Failed to flush visit %s: %v", v.URL, err)
			continue
		}
		visitsWritten++
	}

	duration := time.Since(startTime)
	logrus.Infof("Flush complete: %d links, %d edges, %d visits written in %v",
		linksWritten, edgesWritten, visitsWritten, duration)

	return firstErr
}
