package rpc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterEvictAfter = 5 * time.Minute

// sourceLimiter caps pcidss_submit_iso8583 calls with a token bucket per
// client source. A nil limiter admits everything, which is the default: the
// cap only exists when the config asks for one.
type sourceLimiter struct {
	perMinute int
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
}

func newSourceLimiter(perMinute int) *sourceLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &sourceLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]*rate.Limiter),
	}
}

func (l *sourceLimiter) allow(source string) bool {
	if l == nil {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	l.mu.Lock()
	bucket, ok := l.buckets[source]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute)
		l.buckets[source] = bucket
		go l.evictLater(source)
	}
	l.mu.Unlock()
	return bucket.Allow()
}

// evictLater drops the bucket after a fixed interval so idle sources do not
// accumulate. A returning source simply gets a fresh bucket.
func (l *sourceLimiter) evictLater(source string) {
	timer := time.NewTimer(limiterEvictAfter)
	defer timer.Stop()
	<-timer.C
	l.mu.Lock()
	delete(l.buckets, source)
	l.mu.Unlock()
}
