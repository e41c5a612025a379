// Package ratelimit enforces rolling-window notification limits.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Rule caps acquisitions on Key to Limit per Window.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// ExceededError reports the first rule that was full and the earliest time
// a slot frees up.
type ExceededError struct {
	Key     string
	RetryAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit %s exceeded, retry at %s", e.Key, e.RetryAt.Format(time.RFC3339))
}

// Limiter acquires one slot on every rule atomically: either all rules
// record the acquisition or none do.
type Limiter interface {
	Acquire(ctx context.Context, now time.Time, member string, rules ...Rule) error
}

// GlobalKey and BuilderKey name the notification limit buckets.
func GlobalKey() string { return "notify:rl:global" }

func BuilderKey(builderID string) string { return "notify:rl:builder:" + builderID }
