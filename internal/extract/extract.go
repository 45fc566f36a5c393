// Package extract pulls hyperlink targets out of rendered markup.
package extract

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// ExtractAbsoluteLinks returns the de-duplicated, sorted set of anchor targets
// in markup, resolved against baseURL. It never fails: markup that cannot be
// parsed yields an empty set, and anchors that cannot be resolved are skipped.
func ExtractAbsoluteLinks(markup, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		logrus.Warnf("Failed to parse markup from %s: %v", baseURL, err)
		return []string{}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		logrus.Warnf("Invalid base URL %q, keeping only absolute links: %v", baseURL, err)
		base = nil
	}

	seen := make(map[string]bool)
	links := make([]string, 0)

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}

		link, ok := resolve(base, strings.TrimSpace(href))
		if !ok || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})

	sort.Strings(links)
	return links
}

func resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	if base == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}

	return base.ResolveReference(ref).String(), true
}
