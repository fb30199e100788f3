package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v9"
)

// FixedWindowLimiter is the in-process fallback for deployments
// without redis (development mode). Fixed window per key, the window
// starts with the first request seen.
type FixedWindowLimiter struct {
	mutex   sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

func NewFixedWindowLimiter() *FixedWindowLimiter {
	return &FixedWindowLimiter{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= limit.Period {
		w = &rateWindow{start: now}
		l.windows[key] = w
	}

	if w.count < limit.Rate {
		w.count++
		return &redis_rate.Result{
			Limit:      limit,
			Allowed:    1,
			Remaining:  limit.Rate - w.count,
			ResetAfter: w.start.Add(limit.Period).Sub(now),
		}, nil
	}

	retryAfter := w.start.Add(limit.Period).Sub(now)
	return &redis_rate.Result{
		Limit:      limit,
		Allowed:    0,
		Remaining:  0,
		RetryAfter: retryAfter,
		ResetAfter: retryAfter,
	}, nil
}
