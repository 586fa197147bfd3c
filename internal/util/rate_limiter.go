package util

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/drallgood/gqlstore/internal/logger"
)

var (
	// DefaultRate is the default minimum time between requests
	DefaultRate = 100 * time.Millisecond
	// DefaultBurst is the default burst size
	DefaultBurst = 10
	// DefaultMaxConcurrent is the default number of in-flight requests
	DefaultMaxConcurrent = 3
)

// RateLimiter is a token bucket with a cap on in-flight requests.
// Every successful Wait must be paired with a Release.
type RateLimiter struct {
	mu        sync.Mutex
	last      time.Time
	rate      time.Duration
	minRate   time.Duration
	maxRate   time.Duration
	tokens    int
	maxTokens int
	slots     chan struct{}
	logger    *logger.Logger
}

// NewRateLimiter creates a RateLimiter.
// rate is the minimum time between requests once the burst is spent,
// burst is the bucket size and maxConcurrent bounds in-flight requests.
func NewRateLimiter(rate time.Duration, burst, maxConcurrent int, log *logger.Logger) *RateLimiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	return &RateLimiter{
		last:      time.Now(),
		rate:      rate,
		minRate:   rate,
		maxRate:   5 * time.Second,
		tokens:    burst,
		maxTokens: burst,
		slots:     make(chan struct{}, maxConcurrent),
		logger:    logger.OrGlobal(log).Component("rate_limiter"),
	}
}

// Wait blocks until a token and a concurrency slot are available or ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.takeToken(ctx); err != nil {
		return err
	}

	select {
	case r.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the concurrency slot taken by Wait
func (r *RateLimiter) Release() {
	select {
	case <-r.slots:
	default:
	}
}

func (r *RateLimiter) takeToken(ctx context.Context) error {
	r.mu.Lock()

	now := time.Now()
	if newTokens := int(now.Sub(r.last) / r.rate); newTokens > 0 {
		r.tokens += newTokens
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.last = now
	}

	if r.tokens > 0 {
		r.tokens--
		r.mu.Unlock()
		return nil
	}

	// up to 20% jitter
	wait := r.rate + time.Duration(rand.Float64()*0.2*float64(r.rate))
	next := r.last.Add(wait)
	r.mu.Unlock()

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		r.mu.Lock()
		r.last = next
		r.tokens = 0
		r.mu.Unlock()
		return nil
	}
}

// OnRateLimit slows the limiter down after the server pushed back and
// returns how long the caller should wait before retrying
func (r *RateLimiter) OnRateLimit(retryAfter time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rate = time.Duration(1.5 * float64(r.rate))
	if r.rate > r.maxRate {
		r.rate = r.maxRate
	}

	r.logger.Warn("Rate limited, increasing delay between requests", map[string]interface{}{
		"new_rate":    r.rate.String(),
		"retry_after": retryAfter.String(),
	})

	if retryAfter > r.rate {
		return retryAfter
	}
	return r.rate
}

// ResetRate resets the rate limiter to its configured rate
func (r *RateLimiter) ResetRate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = r.minRate
}

// GetRate returns the current rate
func (r *RateLimiter) GetRate() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// ParseRetryAfter parses a Retry-After header given in seconds or as an HTTP date.
// It returns zero when the header is empty or malformed.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := time.Parse(time.RFC1123, header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
