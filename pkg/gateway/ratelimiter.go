package gateway

import (
	"sync"
	"time"
)

const (
	defaultRequestsPerMinute = 60
	defaultMaxConcurrent     = 10

	reasonRateLimited   = "rate limit exceeded"
	reasonTooConcurrent = "too many concurrent requests"
)

// ClientRateLimiter enforces a sliding one-minute request window and a
// concurrency cap for one client.
type ClientRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	requests          []time.Time
	concurrent        int
	now               func() time.Time
}

// NewClientRateLimiter creates a limiter. Non-positive limits fall back to
// 60 requests per minute and 10 concurrent requests.
func NewClientRateLimiter(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// Acquire admits one request or reports why it was refused. Every admitted
// request must be paired with Release.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrent >= r.maxConcurrent {
		return false, reasonTooConcurrent
	}

	now := r.now()
	r.prune(now)
	if len(r.requests) >= r.requestsPerMinute {
		return false, reasonRateLimited
	}

	r.requests = append(r.requests, now)
	r.concurrent++
	return true, ""
}

// Release ends an admitted request.
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrent > 0 {
		r.concurrent--
	}
}

// Stats returns the requests inside the current window and the number in flight.
func (r *ClientRateLimiter) Stats() (requests, concurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	return len(r.requests), r.concurrent
}

func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(r.requests) && !r.requests[i].After(cutoff) {
		i++
	}
	r.requests = r.requests[i:]
}
