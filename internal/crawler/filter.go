package crawler

import (
	"net/url"
	"sort"
	"strings"
)

// DefaultFileExtensions lists path extensions treated as non-HTML resources
var DefaultFileExtensions = []string{
	// Documents
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".txt", ".csv", ".rtf", ".odt", ".ods", ".odp",
	// Images
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".ico",
	// Archives
	".zip", ".rar", ".tar", ".gz", ".7z", ".bz2",
	// Media
	".mp4", ".avi", ".mov", ".wmv", ".flv", ".mp3", ".wav", ".ogg",
	// Data
	".json", ".xml", ".yaml", ".yml", ".sql",
	// Other
	".exe", ".dmg", ".apk", ".jar",
}

// DefaultNonNavigablePrefixes are URL prefixes that never lead to a page
var DefaultNonNavigablePrefixes = []string{
	"javascript:",
	"mailto:",
	"tel:",
	"ftp:",
	"file:",
	"#",
}

// DefaultSkipPaths are session-boundary path fragments (substring match)
var DefaultSkipPaths = []string{
	"/logout",
	"/signout",
	"/sign-out",
	"/login",
	"/signin",
	"/sign-in",
	"/register",
	"/signup",
	"/sign-up",
}

// Classifier decides whether a URL is a file resource and whether it may be crawled.
// It holds no mutable state once built and is safe for concurrent use.
type Classifier struct {
	extensions map[string]bool
	prefixes   []string
	skipPaths  []string
}

// NewClassifier builds a classifier from the given tables.
// A nil or empty table falls back to the matching default.
func NewClassifier(extensions, prefixes, skipPaths []string) *Classifier {
	if len(extensions) == 0 {
		extensions = DefaultFileExtensions
	}
	if len(prefixes) == 0 {
		prefixes = DefaultNonNavigablePrefixes
	}
	if len(skipPaths) == 0 {
		skipPaths = DefaultSkipPaths
	}

	c := &Classifier{
		extensions: make(map[string]bool, len(extensions)),
		prefixes:   lowerAll(prefixes),
		skipPaths:  lowerAll(skipPaths),
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.extensions[ext] = true
	}
	return c
}

// DefaultClassifier returns a classifier using the built-in tables
func DefaultClassifier() *Classifier {
	return NewClassifier(nil, nil, nil)
}

// IsFileResource reports whether the final path segment carries a known file extension
func (c *Classifier) IsFileResource(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	ext := pathExtension(parsed.Path)
	if ext == "" {
		return false
	}
	return c.extensions[ext]
}

// IsDiscoverable reports whether a URL is eligible for further crawling.
// The file check always runs first.
func (c *Classifier) IsDiscoverable(rawURL string) bool {
	if c.IsFileResource(rawURL) {
		return false
	}

	lower := strings.ToLower(rawURL)
	for _, prefix := range c.prefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	// Substring match on purpose: /login-help is skipped as well
	lowerPath := strings.ToLower(parsed.Path)
	for _, skip := range c.skipPaths {
		if strings.Contains(lowerPath, skip) {
			return false
		}
	}

	if parsed.Scheme != "" {
		scheme := strings.ToLower(parsed.Scheme)
		if scheme != "http" && scheme != "https" {
			return false
		}
	}

	return true
}

// FileLinks returns the sorted subset of links that are file resources
func (c *Classifier) FileLinks(links []string) []string {
	return c.filter(links, c.IsFileResource)
}

// DiscoverableLinks returns the sorted subset of links eligible for crawling
func (c *Classifier) DiscoverableLinks(links []string) []string {
	return c.filter(links, c.IsDiscoverable)
}

func (c *Classifier) filter(links []string, keep func(string) bool) []string {
	seen := make(map[string]bool, len(links))
	filtered := make([]string, 0)

	for _, link := range links {
		if seen[link] || !keep(link) {
			continue
		}
		seen[link] = true
		filtered = append(filtered, link)
	}

	sort.Strings(filtered)
	return filtered
}

// pathExtension returns the lowercased extension of the final path segment,
// dot included. Leading dots of the segment do not start an extension.
func pathExtension(p string) string {
	segment := p
	if idx := strings.LastIndex(segment, "/"); idx >= 0 {
		segment = segment[idx+1:]
	}
	segment = strings.TrimLeft(segment, ".")

	idx := strings.LastIndex(segment, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(segment[idx:])
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
