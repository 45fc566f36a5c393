package crawler

import (
	"sync"
)

// Frontier tracks pending URLs for the next BFS level and the set of visited URLs.
// All methods are safe for concurrent use.
type Frontier struct {
	mu      sync.Mutex
	pending map[string]bool
	visited map[string]bool
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		pending: make(map[string]bool),
		visited: make(map[string]bool),
	}
}

// EnqueueIfUnseen adds a URL to the pending level unless it was already visited.
// Returns true if added, false if visited or already pending
func (f *Frontier) EnqueueIfUnseen(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.visited[u] || f.pending[u] {
		return false
	}

	f.pending[u] = true
	return true
}

// TakeLevel removes and returns every pending URL.
// Iteration order of the returned slice is unspecified.
func (f *Frontier) TakeLevel() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	level := make([]string, 0, len(f.pending))
	for u := range f.pending {
		level = append(level, u)
	}
	f.pending = make(map[string]bool)

	return level
}

// MarkVisited records a URL as visited.
// Returns true if this call was the first to visit it
func (f *Frontier) MarkVisited(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.visited[u] {
		return false
	}
	f.visited[u] = true
	return true
}

// IsVisited returns true if the URL has been visited in this run
func (f *Frontier) IsVisited(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[u]
}

// Pending returns the number of URLs waiting for the next level
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Visited returns a snapshot of the visited set
func (f *Frontier) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.visited))
	for u := range f.visited {
		out = append(out, u)
	}
	return out
}
