package harvest

import (
	"context"
	"encoding/json"
	"time"
)

// Fetcher retrieves a single URL over the plain HTTP path.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Renderer produces a DOM snapshot of a script-heavy page.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
	Close(ctx context.Context) error
}

// Detector decides whether a plain fetch result warrants a rendered retry.
type Detector interface {
	NeedsRender(page Page) bool
}

// Filter narrows Count/Find to records whose payload fields equal the
// given values.
type Filter map[string]string

// Store is the persistence contract the pipeline relies on. Upsert is
// idempotent: re-running with an identical natural key overwrites the
// existing record.
type Store interface {
	Upsert(ctx context.Context, kind Kind, key string, record any) error
	Count(ctx context.Context, kind Kind, filter Filter) (int, error)
	Find(ctx context.Context, kind Kind, filter Filter) ([]json.RawMessage, error)
	Close()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
