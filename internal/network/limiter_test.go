package network

import (
	"testing"
	"time"
)

func TestIPLimiterConnCap(t *testing.T) {
	lim := newIPLimiter(1, 0)
	if !lim.acquireConn("1.2.3.4") {
		t.Fatalf("expected first conn acquire")
	}
	if lim.acquireConn("1.2.3.4") {
		t.Fatalf("expected conn cap")
	}
	lim.releaseConn("1.2.3.4")
	if !lim.acquireConn("1.2.3.4") {
		t.Fatalf("expected acquire after release")
	}
}

func TestIPLimiterStreamCap(t *testing.T) {
	lim := newIPLimiter(0, 2)
	if !lim.acquireStream("1.2.3.4") || !lim.acquireStream("1.2.3.4") {
		t.Fatalf("expected stream acquire")
	}
	if lim.acquireStream("1.2.3.4") {
		t.Fatalf("expected stream cap")
	}
	lim.releaseStream("1.2.3.4")
	if !lim.acquireStream("1.2.3.4") {
		t.Fatalf("expected acquire after release")
	}
}

func TestIPLimiterSeparateIPs(t *testing.T) {
	lim := newIPLimiter(1, 1)
	if !lim.acquireConn("1.2.3.4") || !lim.acquireConn("2.3.4.5") {
		t.Fatalf("expected one conn per ip")
	}
	if !lim.acquireStream("1.2.3.4") || !lim.acquireStream("2.3.4.5") {
		t.Fatalf("expected one stream per ip")
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	lim := newRateLimiter(1, 2)
	now := time.Unix(1000, 0)
	lim.now = func() time.Time { return now }
	if !lim.allow("a") || !lim.allow("a") {
		t.Fatalf("expected burst of 2")
	}
	if lim.allow("a") {
		t.Fatalf("expected third request to be limited")
	}
	if !lim.allow("b") {
		t.Fatalf("expected separate bucket for b")
	}
	now = now.Add(time.Second)
	if !lim.allow("a") {
		t.Fatalf("expected refill after one second")
	}
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	lim := newRateLimiter(1, 1)
	now := time.Unix(1000, 0)
	lim.lastSweep = now
	lim.now = func() time.Time { return now }
	lim.allow("a")
	now = now.Add(2 * rateIdle)
	lim.allow("b")
	if _, ok := lim.buckets["a"]; ok {
		t.Fatalf("expected idle bucket to be swept")
	}
}

func TestNilRateLimiterAllows(t *testing.T) {
	lim := newRateLimiter(0, 0)
	if !lim.allow("x") {
		t.Fatalf("expected disabled limiter to allow")
	}
}
