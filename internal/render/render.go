// Package render loads pages and returns their markup after scripts have run.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBrowserUnavailable is returned when the browser engine cannot be launched.
// It is fatal for a run.
var ErrBrowserUnavailable = errors.New("browser unavailable")

// ErrorKind classifies a per-page render failure
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindNavigation ErrorKind = "navigation"
	KindSession    ErrorKind = "session"
)

// Page is the outcome of a successful render
type Page struct {
	URL          string
	FinalURL     string
	Markup       string
	AnchorsReady bool
	Latency      time.Duration
}

// Session renders one page at a time. A session is owned by a single worker
// and must not be used concurrently.
type Session interface {
	Open(ctx context.Context, url string) (*Page, error)
}

// RenderError is a recoverable failure scoped to a single URL
type RenderError struct {
	URL  string
	Kind ErrorKind
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func newRenderError(url string, err error) *RenderError {
	kind := KindNavigation
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		kind = KindTimeout
	}
	return &RenderError{URL: url, Kind: kind, Err: err}
}
