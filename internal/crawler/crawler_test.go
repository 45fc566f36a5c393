package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alvmarrod/link-weaver/internal/crawler"
	"github.com/alvmarrod/link-weaver/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSite serves canned markup and records every URL that was opened
type fakeSite struct {
	mu        sync.Mutex
	pages     map[string]string
	redirects map[string]string
	failures  map[string]error
	onOpen    func(url string)
	opened    []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:     make(map[string]string),
		redirects: make(map[string]string),
		failures:  make(map[string]error),
	}
}

func (s *fakeSite) page(url string, hrefs ...string) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, href)
	}
	b.WriteString("</body></html>")
	s.pages[url] = b.String()
}

func (s *fakeSite) openedCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, u := range s.opened {
		if u == url {
			n++
		}
	}
	return n
}

func (s *fakeSite) openedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

// fakeSession is one worker's handle on a fakeSite
type fakeSession struct {
	site *fakeSite
}

func (f *fakeSession) Open(_ context.Context, url string) (*render.Page, error) {
	s := f.site
	s.mu.Lock()
	s.opened = append(s.opened, url)
	onOpen := s.onOpen
	err := s.failures[url]
	markup, ok := s.pages[url]
	final := url
	if r, redirected := s.redirects[url]; redirected {
		final = r
	}
	s.mu.Unlock()

	if onOpen != nil {
		onOpen(url)
	}
	if err != nil {
		return nil, &render.RenderError{URL: url, Kind: render.KindNavigation, Err: err}
	}
	if !ok {
		return nil, &render.RenderError{URL: url, Kind: render.KindNavigation, Err: errors.New("not found")}
	}
	return &render.Page{URL: url, FinalURL: final, Markup: markup, AnchorsReady: true}, nil
}

func sessions(site *fakeSite, n int) []render.Session {
	out := make([]render.Session, n)
	for i := range out {
		out[i] = &fakeSession{site: site}
	}
	return out
}

func newCrawler(t *testing.T, site *fakeSite, workers int, opts ...crawler.Option) *crawler.Crawler {
	t.Helper()
	c, err := crawler.NewCrawler(sessions(site, workers), crawler.DefaultClassifier(), opts...)
	require.NoError(t, err)
	return c
}

func TestCrawler_Run(t *testing.T) {
	t.Parallel()

	t.Run("depth zero renders only the seed", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://site/index", "/about", "/report.pdf", "javascript:void(0)", "/login")
		site.page("https://site/about", "/team")

		c := newCrawler(t, site, 1)
		result, err := c.Run(context.Background(), "https://site/index", 0)

		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://site/about",
			"https://site/login",
			"https://site/report.pdf",
			"javascript:void(0)",
		}, result.Discovered)
		assert.Equal(t, []string{"https://site/report.pdf"}, result.Files)
		assert.Equal(t, []string{"https://site/report.pdf"}, c.GetFileLinks(result.Discovered))
		assert.Equal(t, []string{"https://site/index"}, site.openedURLs())
		assert.Equal(t, []string{"https://site/index"}, result.Visited)
		assert.Equal(t, 1, result.Levels)
		assert.Empty(t, result.Failures)
		assert.NoError(t, result.Cancelled)
	})

	t.Run("depth one follows only discoverable links", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://site/index", "/about", "/report.pdf", "javascript:void(0)", "/login")
		site.page("https://site/about", "/index", "/team")
		site.page("https://site/team", "/index")

		c := newCrawler(t, site, 1)
		result, err := c.Run(context.Background(), "https://site/index", 1)

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"https://site/index", "https://site/about"}, site.openedURLs())
		assert.Equal(t, []string{
			"https://site/about",
			"https://site/index",
			"https://site/login",
			"https://site/report.pdf",
			"https://site/team",
			"javascript:void(0)",
		}, result.Discovered)
		assert.Equal(t, 2, result.Levels)
	})

	t.Run("cycle terminates and visits each page once", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://site/a", "/b")
		site.page("https://site/b", "/a")

		c := newCrawler(t, site, 1)
		result, err := c.Run(context.Background(), "https://site/a", 1)

		require.NoError(t, err)
		assert.Equal(t, []string{"https://site/a", "https://site/b"}, result.Visited)
		assert.Equal(t, []string{"https://site/a", "https://site/b"}, result.Discovered)
		assert.Equal(t, 1, site.openedCount("https://site/a"))
		assert.Equal(t, 1, site.openedCount("https://site/b"))
	})

	t.Run("cycle with a large depth stops when the frontier empties", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://site/a", "/b")
		site.page("https://site/b", "/a", "/b")

		c := newCrawler(t, site, 2)
		result, err := c.Run(context.Background(), "https://site/a", 50)

		require.NoError(t, err)
		assert.Equal(t, 2, result.Levels)
		assert.Len(t, site.openedURLs(), 2)
	})

	t.Run("render failure is isolated to its URL", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://site/index", "/x", "/y")
		site.page("https://site/y", "/y1", "/x")
		site.page("https://site/y1", "/x")
		site.failures["https://site/x"] = errors.New("navigation timeout")

		c := newCrawler(t, site, 1)
		result, err := c.Run(context.Background(), "https://site/index", 3)

		require.NoError(t, err)
		assert.Contains(t, result.Visited, "https://site/x")
		assert.Contains(t, result.Visited, "https://site/y")
		assert.Contains(t, result.Discovered, "https://site/y1")
		assert.Equal(t, 1, site.openedCount("https://site/x"), "failed URL must not be retried")

		require.Len(t, result.Failures, 1)
		assert.Equal(t, "https://site/x", result.Failures[0].URL)
		assert.Equal(t, 1, result.Failures[0].Depth)
		var renderErr *render.RenderError
		assert.ErrorAs(t, result.Failures[0].Err, &renderErr)

		assert.Empty(t, result.Graph.Outlinks("https://site/x"))
	})

	t.Run("links resolve against the final URL", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://site/old", "page", "../up")
		site.redirects["https://site/old"] = "https://site/new/"

		c := newCrawler(t, site, 1)
		result, err := c.Run(context.Background(), "https://site/old", 0)

		require.NoError(t, err)
		assert.Equal(t, []string{"https://site/new/page", "https://site/up"}, result.Discovered)
	})

	t.Run("panicking session becomes a page failure", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://site/index", "/boom", "/fine")
		site.page("https://site/boom")
		site.page("https://site/fine", "/leaf")
		site.onOpen = func(url string) {
			if url == "https://site/boom" {
				panic("renderer crashed")
			}
		}

		c := newCrawler(t, site, 1)
		result, err := c.Run(context.Background(), "https://site/index", 1)

		require.NoError(t, err)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "https://site/boom", result.Failures[0].URL)
		assert.Contains(t, result.Discovered, "https://site/leaf")
	})
}

func TestCrawler_Workers(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	var hrefs []string
	for i := 0; i < 40; i++ {
		hrefs = append(hrefs, fmt.Sprintf("/p%d", i))
		// Every child links to every other child and back to the root
		site.page(fmt.Sprintf("https://site/p%d", i), "/", "/p0", "/p1", "/p2", fmt.Sprintf("/leaf%d", i))
	}
	site.page("https://site/", hrefs...)

	c := newCrawler(t, site, 4)
	result, err := c.Run(context.Background(), "https://site/", 1)

	require.NoError(t, err)
	assert.Len(t, site.openedURLs(), 41)
	for i := 0; i < 40; i++ {
		u := fmt.Sprintf("https://site/p%d", i)
		assert.Equal(t, 1, site.openedCount(u), u)
		assert.Contains(t, result.Discovered, fmt.Sprintf("https://site/leaf%d", i))
	}
	assert.Contains(t, result.Discovered, "https://site/")
}

func TestCrawler_RunSeeds(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page("https://site/", "/docs")
	site.page("https://search/results?q=site", "https://site/", "https://other/page")

	c := newCrawler(t, site, 2)
	result, err := c.RunSeeds(context.Background(), []string{"https://site/", "https://search/results?q=site", "https://site/"}, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://other/page", "https://site/", "https://site/docs"}, result.Discovered)
	assert.Equal(t, 1, site.openedCount("https://site/"))
}

func TestCrawler_Cancellation(t *testing.T) {
	t.Parallel()

	t.Run("cancelled before start returns an empty result", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite()
		site.page("https://site/", "/a")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := newCrawler(t, site, 1)
		result, err := c.Run(ctx, "https://site/", 2)

		require.NoError(t, err)
		assert.ErrorIs(t, result.Cancelled, context.Canceled)
		assert.Empty(t, site.openedURLs())
		assert.Empty(t, result.Discovered)
		assert.Equal(t, 0, result.Levels)
	})

	t.Run("cancelled mid-level keeps what was collected", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		site := newFakeSite()
		site.page("https://site/", "/a", "/b")
		site.page("https://site/a", "/a1")
		site.page("https://site/b", "/b1")
		site.onOpen = func(url string) {
			if url != "https://site/" {
				cancel()
			}
		}

		c := newCrawler(t, site, 1)
		result, err := c.Run(ctx, "https://site/", 3)

		require.NoError(t, err)
		assert.ErrorIs(t, result.Cancelled, context.Canceled)
		assert.Equal(t, 1, result.Levels)
		assert.Contains(t, result.Discovered, "https://site/a")
		assert.Contains(t, result.Discovered, "https://site/b")
		assert.Len(t, site.openedURLs(), 2, "no visit starts after cancellation")
	})
}

func TestCrawler_InvalidArguments(t *testing.T) {
	t.Parallel()

	_, err := crawler.NewCrawler(nil, nil)
	assert.ErrorIs(t, err, crawler.ErrNoSessions)

	c := newCrawler(t, newFakeSite(), 1)

	_, err = c.Run(context.Background(), "https://site/", -1)
	assert.ErrorIs(t, err, crawler.ErrInvalidDepth)

	_, err = c.Run(context.Background(), "  ", 1)
	assert.ErrorIs(t, err, crawler.ErrInvalidSeed)

	_, err = c.RunSeeds(context.Background(), nil, 1)
	assert.ErrorIs(t, err, crawler.ErrInvalidSeed)
}

type recordingObserver struct {
	mu        sync.Mutex
	started   []int
	completed []int
	ok        int
	failed    int
	newLinks  int
	newFiles  int
}

func (o *recordingObserver) LevelStarted(depth, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, depth)
}

func (o *recordingObserver) LevelCompleted(depth int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, depth)
}

func (o *recordingObserver) PageVisited(event crawler.VisitResult, newLinks, newFiles int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if event.Err != nil {
		o.failed++
		return
	}
	o.ok++
	o.newLinks += newLinks
	o.newFiles += newFiles
}

func TestCrawler_Observer(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page("https://site/", "/a", "/broken", "/a.pdf")
	site.page("https://site/a", "/", "/b.pdf", "/a.pdf")

	obs := &recordingObserver{}
	c := newCrawler(t, site, 2, crawler.WithObserver(obs))
	result, err := c.Run(context.Background(), "https://site/", 1)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, obs.started)
	assert.Equal(t, []int{0, 1}, obs.completed)
	assert.Equal(t, 2, obs.ok)
	assert.Equal(t, 1, obs.failed)
	assert.Equal(t, len(result.Discovered), obs.newLinks)
	assert.Equal(t, 2, obs.newFiles)
}

func TestCrawler_WithExtractor(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.pages["https://site/"] = "ignored"

	c := newCrawler(t, site, 1, crawler.WithExtractor(func(markup, baseURL string) []string {
		return []string{baseURL + "#from-extractor"}
	}))
	result, err := c.Run(context.Background(), "https://site/", 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://site/#from-extractor"}, result.Discovered)
}
