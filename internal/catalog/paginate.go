// Package catalog harvests maps and layers from a Map Warper catalog.
package catalog

import (
	"fmt"
	"iter"
	"net/url"
	"strings"
)

// PageCount returns ceil(totalItems/pageSize). Non-positive inputs yield zero.
func PageCount(totalItems, pageSize int) int {
	if totalItems <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}

// Pages yields the page indices 1..PageCount(totalItems, pageSize) in order.
func Pages(totalItems, pageSize int) iter.Seq[int] {
	n := PageCount(totalItems, pageSize)
	return func(yield func(int) bool) {
		for page := 1; page <= n; page++ {
			if !yield(page) {
				return
			}
		}
	}
}

// URLs builds catalog endpoint URLs.
type URLs struct {
	base    string
	perPage int
}

// NewURLs returns a URL builder rooted at baseURL (a trailing slash is added
// when missing).
func NewURLs(baseURL string, perPage int) URLs {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return URLs{base: baseURL, perPage: perPage}
}

// Base returns the catalog root URL, always ending in a slash.
func (u URLs) Base() string { return u.base }

// PerPage returns the configured page size.
func (u URLs) PerPage() int { return u.perPage }

// query encodes per_page, and page only when it is past the first.
func (u URLs) query(page int) string {
	q := fmt.Sprintf("per_page=%d", u.perPage)
	if page > 1 {
		q += fmt.Sprintf("&page=%d", page)
	}
	return q
}

// Maps returns the maps.json URL for page.
func (u URLs) Maps(page int) string {
	return u.base + "maps.json?" + u.query(page)
}

// Layers returns the layers.json URL for page.
func (u URLs) Layers(page int) string {
	return u.base + "layers.json?" + u.query(page)
}

// MapLayers returns the URL listing the layers a map belongs to.
func (u URLs) MapLayers(mapID int64, page int) string {
	return fmt.Sprintf("%smaps/%d/layers.json?%s", u.base, mapID, u.query(page))
}

// Resolve expands path against the catalog root. Absolute URLs pass through.
func (u URLs) Resolve(path string) string {
	if parsed, err := url.Parse(path); err == nil && parsed.IsAbs() {
		return path
	}
	return u.base + strings.TrimPrefix(path, "/")
}
