// Package rate implements fixed-window request limits keyed by caller.
package rate

import (
	"context"
	"time"
)

// Limiter reports whether key may make another request in the current
// window, and how long it must wait when it may not.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}
