// Package search builds result-page URLs for external search engines so they
// can be crawled alongside the target site.
package search

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Engine describes how to address result pages of a search engine.
// URLTemplate must contain {query} and may contain {offset}.
type Engine struct {
	Name        string
	URLTemplate string
	PageSize    int
	OffsetBase  int
}

var builtins = map[string]Engine{
	"duckduckgo": {
		Name:        "duckduckgo",
		URLTemplate: "https://html.duckduckgo.com/html/?q={query}&s={offset}",
		PageSize:    30,
	},
	"bing": {
		Name:        "bing",
		URLTemplate: "https://www.bing.com/search?q={query}&first={offset}",
		PageSize:    10,
		OffsetBase:  1,
	},
}

// Lookup returns a built-in engine by name (case-insensitive)
func Lookup(name string) (Engine, error) {
	e, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Engine{}, fmt.Errorf("unknown search engine %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return e, nil
}

// Names lists the built-in engines
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResultPages returns the URLs of the first pages of results for query
func (e Engine) ResultPages(query string, pages int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if pages < 1 {
		return nil, fmt.Errorf("pages must be >= 1, got %d", pages)
	}
	if !strings.Contains(e.URLTemplate, "{query}") {
		return nil, fmt.Errorf("search engine %q template has no {query} placeholder", e.Name)
	}
	if pages > 1 && !strings.Contains(e.URLTemplate, "{offset}") {
		pages = 1
	}

	urls := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		u := strings.ReplaceAll(e.URLTemplate, "{query}", url.QueryEscape(query))
		u = strings.ReplaceAll(u, "{offset}", strconv.Itoa(e.OffsetBase+i*e.PageSize))
		if _, err := url.Parse(u); err != nil {
			return nil, fmt.Errorf("invalid result page URL %q: %w", u, err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}
