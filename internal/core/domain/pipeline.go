package domain

import (
	"net/http"
	"time"
)

// RateLimitResult is the outcome of one fixed-window check.
type RateLimitResult struct {
	// Current is the number of requests seen in the window including this one.
	Current int64
	// Limit is the configured maximum per window.
	Limit int
	// Remaining is never negative.
	Remaining int64
	// Exceeded is true once Current passes Limit.
	Exceeded bool
	// WindowSeconds is the window length the check ran with.
	WindowSeconds int
}

// NewRateLimitResult derives a result from the pre-increment counter value.
func NewRateLimitResult(preIncrement int64, limit, windowSeconds int) RateLimitResult {
	current := preIncrement + 1
	remaining := int64(limit) - current
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Current:       current,
		Limit:         limit,
		Remaining:     remaining,
		Exceeded:      preIncrement >= int64(limit),
		WindowSeconds: windowSeconds,
	}
}

// IdempotencyRecord is a cached successful response.
type IdempotencyRecord struct {
	Status int         `json:"status"`
	Body   []byte      `json:"body"`
	Header http.Header `json:"header,omitempty"`
	Expiry time.Time   `json:"expiry"`
}

// Expired reports whether the record must be treated as absent.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !r.Expiry.After(now)
}
