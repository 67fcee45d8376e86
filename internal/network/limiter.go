package network

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiter struct {
	mu           sync.Mutex
	maxConns     int
	maxStreams   int
	connCounts   map[string]int
	streamCounts map[string]int
}

func newIPLimiter(maxConns, maxStreams int) *ipLimiter {
	return &ipLimiter{
		maxConns:     maxConns,
		maxStreams:   maxStreams,
		connCounts:   make(map[string]int),
		streamCounts: make(map[string]int),
	}
}

func acquire(mu *sync.Mutex, counts map[string]int, limit int, ip string) bool {
	if limit <= 0 {
		return true
	}
	mu.Lock()
	defer mu.Unlock()
	if counts[ip] >= limit {
		return false
	}
	counts[ip]++
	return true
}

func release(mu *sync.Mutex, counts map[string]int, limit int, ip string) {
	if limit <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if counts[ip] <= 1 {
		delete(counts, ip)
		return
	}
	counts[ip]--
}

func (l *ipLimiter) acquireConn(ip string) bool {
	return acquire(&l.mu, l.connCounts, l.maxConns, ip)
}

func (l *ipLimiter) releaseConn(ip string) {
	release(&l.mu, l.connCounts, l.maxConns, ip)
}

func (l *ipLimiter) acquireStream(ip string) bool {
	return acquire(&l.mu, l.streamCounts, l.maxStreams, ip)
}

func (l *ipLimiter) releaseStream(ip string) {
	release(&l.mu, l.streamCounts, l.maxStreams, ip)
}

const rateIdle = 10 * time.Minute

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// rateLimiter is a token bucket per client IP. A nil limiter allows all.
type rateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*ipBucket
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(perSec float64, burst int) *rateLimiter {
	if perSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(perSec) + 1
	}
	return &rateLimiter{
		limit:     rate.Limit(perSec),
		burst:     burst,
		buckets:   make(map[string]*ipBucket),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (r *rateLimiter) allow(ip string) bool {
	if r == nil {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastSweep) > rateIdle {
		for k, b := range r.buckets {
			if now.Sub(b.seen) > rateIdle {
				delete(r.buckets, k)
			}
		}
		r.lastSweep = now
	}
	b := r.buckets[ip]
	if b == nil {
		b = &ipBucket{lim: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}
