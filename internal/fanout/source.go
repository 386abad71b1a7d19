// Package fanout fetches raw procurement records from multiple independent
// sources concurrently, with per-source timeouts and circuit breaking.
// Partial success is the expected case: results are unioned and de-duplicated
// by natural key; a designated fallback aggregator source is tried only when
// every primary source fails.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
)

// FetchResult is what a data source returns for one query.
type FetchResult struct {
	Records *procurement.RecordSet

	// Partial indicates the source knows it returned an incomplete view
	// (pagination cut short, upstream degradation).
	Partial bool
}

// Source is the adapter contract for one government data source. Adapters
// are otherwise opaque to the engine.
type Source interface {
	// Name identifies the source for logging and failure accounting.
	Name() string

	// Timeout is the per-call deadline this source declares for itself.
	Timeout() time.Duration

	// Fetch retrieves records matching the query. Implementations must
	// honor ctx cancellation.
	Fetch(ctx context.Context, query procurement.Query) (FetchResult, error)
}

// SourceFetchError reports a single source failure. Fan-out tolerates these
// unless every source fails.
type SourceFetchError struct {
	Source string
	Cause  error
}

// Error implements the error interface.
func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s fetch failed: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SourceFetchError) Unwrap() error {
	return e.Cause
}
