// Package main provides the link-weaver CLI.
//
// link-weaver renders pages of a target site, extracts their hyperlinks and
// expands them breadth-first up to a depth bound. Search-engine result pages
// can be added as extra seeds.
//
// Usage:
//
//	link-weaver --seed https://example.com --depth 2
//	link-weaver --config crawl.yaml --files-only
package main

func main() {
	Execute()
}
