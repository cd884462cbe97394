// Package fetcher retrieves catalog resources over HTTP with bounded retries,
// a request timeout, optional rate limiting and a post-fetch delay.
package fetcher

import (
	"context"
	"fmt"
)

// Fetcher defines a single network retrieval.
type Fetcher interface {
	// Fetch returns the response body of a GET request to url.
	Fetch(ctx context.Context, url string) ([]byte, error)

	// FetchJSON decodes the JSON body of a GET request to url into v.
	FetchJSON(ctx context.Context, url string, v any) error
}

// FetchError is returned once a retrieval has failed for good.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
