package port

import (
	"context"
	"time"
)

// RateWindow is the state of a sliding window after an admission attempt.
type RateWindow struct {
	Admitted bool
	// Count is the number of requests inside the window, including this one when admitted.
	Count int
	// Oldest is the earliest request still inside the window. Zero when the window is empty.
	Oldest time.Time
}

// RateLimitStore admits requests into per-key sliding windows. The check and the write are a
// single step: two callers racing for the last slot cannot both be admitted.
type RateLimitStore interface {
	Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (RateWindow, error)
}
