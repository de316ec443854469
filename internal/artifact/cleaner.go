package artifact

import (
	"context"
	"errors"

	"feedline/internal/observability"
)

// Cleaner deletes artifacts on a best-effort basis: failures are logged and
// counted but never returned.
type Cleaner struct {
	store Store
}

func NewCleaner(store Store) *Cleaner {
	return &Cleaner{store: store}
}

// Remove deletes url and reports whether it is gone.
func (c *Cleaner) Remove(ctx context.Context, operation, url string) bool {
	if c == nil || c.store == nil || url == "" {
		return false
	}
	err := c.store.Delete(ctx, url)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNotFound):
		observability.GlobalLogger.DebugContext(ctx, "artifact already absent", "url", url)
		return true
	default:
		observability.ArtifactCleanupFailures.WithLabelValues(c.store.Name()).Inc()
		observability.LogBestEffortFailure(ctx, operation, "artifact_cleanup", err, map[string]any{"url": url})
		return false
	}
}
