package render

import (
	"context"
	"errors"
	"time"

	"github.com/gocolly/colly/v2"
)

// HTTPOptions configures the plain HTTP session
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps the response body in bytes. Zero reads the whole body,
	// so anchors near the end of large pages are kept.
	MaxBodySize int
}

// HTTPSession fetches raw markup with colly. Scripts are not executed.
type HTTPSession struct {
	collector *colly.Collector
	last      *Page
}

// NewHTTPSession creates a synchronous collector for a single worker
func NewHTTPSession(opts HTTPOptions) *HTTPSession {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(), // Revisits are managed by the crawl frontier
		colly.MaxDepth(0),
	)
	if opts.UserAgent != "" {
		c.UserAgent = opts.UserAgent
	}
	c.SetRequestTimeout(opts.Timeout)
	c.MaxBodySize = opts.MaxBodySize

	s := &HTTPSession{collector: c}
	c.OnResponse(func(r *colly.Response) {
		s.last = &Page{
			URL:          r.Request.URL.String(),
			FinalURL:     r.Request.URL.String(),
			Markup:       string(r.Body),
			AnchorsReady: true,
		}
	})
	return s
}

// Open fetches url and returns the response body as markup
func (s *HTTPSession) Open(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, newRenderError(url, err)
	}

	// Requests are bound to ctx so a cancelled run interrupts a slow fetch
	s.collector.Context = ctx
	defer func() { s.collector.Context = context.Background() }()

	s.last = nil
	start := time.Now()
	if err := s.collector.Visit(url); err != nil {
		return nil, newRenderError(url, err)
	}
	if s.last == nil {
		return nil, newRenderError(url, errors.New("no response received"))
	}

	page := s.last
	page.URL = url
	page.Latency = time.Since(start)
	return page, nil
}
