package memory_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alvmarrod/link-weaver/internal/memory"
	"github.com/alvmarrod/link-weaver/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type suffixClassifier struct{}

func (suffixClassifier) IsFileResource(u string) bool { return strings.HasSuffix(u, ".pdf") }
func (suffixClassifier) IsDiscoverable(u string) bool {
	return strings.HasPrefix(u, "https://") && !strings.HasSuffix(u, ".pdf")
}

func TestLinkGraph_AddLinks(t *testing.T) {
	t.Parallel()

	g := memory.NewLinkGraph()

	added := g.AddLinks("https://site/", []string{"https://site/a", "https://site/b"})
	assert.Equal(t, []string{"https://site/a", "https://site/b"}, added)

	added = g.AddLinks("https://site/a", []string{"https://site/b", "https://site/c"})
	assert.Equal(t, []string{"https://site/c"}, added)

	assert.Equal(t, []string{"https://site/a", "https://site/b", "https://site/c"}, g.Discovered())
	assert.True(t, g.Contains("https://site/b"))
	assert.False(t, g.Contains("https://site/"))
	assert.Equal(t, []string{"https://site/b", "https://site/c"}, g.Outlinks("https://site/a"))

	urls, edges, visits := g.GetStats()
	assert.Equal(t, 3, urls)
	assert.Equal(t, 4, edges)
	assert.Equal(t, 0, visits)
}

func TestLinkGraph_RecordVisit(t *testing.T) {
	t.Parallel()

	g := memory.NewLinkGraph()
	g.RecordVisit("https://site/", 0, nil)
	g.RecordVisit("https://site/x", 1, errors.New("timeout"))

	assert.Equal(t, []storage.Visit{
		{URL: "https://site/", Depth: 0, OK: true},
		{URL: "https://site/x", Depth: 1, OK: false, Error: "timeout"},
	}, g.Visits())

	// Visiting alone does not make a URL discovered
	assert.Empty(t, g.Discovered())
}

func TestLinkGraph_Flush(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	runID, err := store.CreateRun("https://site/", 1)
	require.NoError(t, err)

	g := memory.NewLinkGraph()
	g.AddLinks("https://site/", []string{"https://site/a", "https://site/doc.pdf", "mailto:x@y.z"})
	g.AddLinks("https://site/a", []string{"https://site/doc.pdf"})
	g.RecordVisit("https://site/", 0, nil)
	g.RecordVisit("https://site/a", 1, nil)

	require.NoError(t, g.Flush(store, runID, suffixClassifier{}))

	links, err := store.ListLinks(runID, false)
	require.NoError(t, err)
	assert.Equal(t, []storage.Link{
		{URL: "https://site/a", Discoverable: true},
		{URL: "https://site/doc.pdf", IsFile: true},
		{URL: "mailto:x@y.z"},
	}, links)

	edges, err := store.ListEdges(runID)
	require.NoError(t, err)
	assert.Len(t, edges, 4)

	visits, err := store.ListVisits(runID)
	require.NoError(t, err)
	assert.Len(t, visits, 2)
}
