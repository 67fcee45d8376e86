package network

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"

	"zoldnode/internal/debuglog"
)

const (
	clientMaxRetries  = 2
	clientBackoffBase = 100 * time.Millisecond
	clientBackoffMax  = 1 * time.Second
	clientConnIdle    = 30 * time.Second
	clientTimeout     = 8 * time.Second
)

// peerState is everything the client remembers about one remote address: a
// live connection, if any, and how many exchanges in a row have failed.
type peerState struct {
	conn     *quic.Conn
	lastUsed time.Time
	failures int
}

func (s *peerState) live(now time.Time, idle time.Duration) bool {
	return s.conn != nil && s.conn.Context().Err() == nil && now.Sub(s.lastUsed) <= idle
}

type clientPool struct {
	mu    sync.Mutex
	peers map[string]*peerState
	idle  time.Duration
	dial  func(ctx context.Context, addr string, tlsConf *tls.Config, conf *quic.Config) (*quic.Conn, error)
}

func newClientPool(idleAfter time.Duration) *clientPool {
	if idleAfter <= 0 {
		idleAfter = clientConnIdle
	}
	return &clientPool{
		peers: make(map[string]*peerState),
		idle:  idleAfter,
		dial:  quic.DialAddr,
	}
}

// state must be called with mu held.
func (p *clientPool) state(addr string) *peerState {
	s := p.peers[addr]
	if s == nil {
		s = &peerState{}
		p.peers[addr] = s
	}
	return s
}

// get returns the pooled connection to addr, dialing when there is none or
// the old one went stale. A connection dialed concurrently by another
// exchange wins over ours.
func (p *clientPool) get(ctx context.Context, addr string, tlsConf *tls.Config, quicConf *quic.Config) (*quic.Conn, error) {
	if addr == "" {
		return nil, errors.New("missing addr")
	}
	now := time.Now()
	p.mu.Lock()
	s := p.state(addr)
	if s.live(now, p.idle) {
		s.lastUsed = now
		conn := s.conn
		p.mu.Unlock()
		return conn, nil
	}
	stale := s.conn
	s.conn = nil
	p.mu.Unlock()
	if stale != nil {
		_ = stale.CloseWithError(0, "stale")
	}

	debuglog.Debugf("quic dial to %s", addr)
	conn, err := p.dial(ctx, addr, tlsConf, quicConf)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	s = p.state(addr)
	if s.live(now, p.idle) {
		existing := s.conn
		p.mu.Unlock()
		_ = conn.CloseWithError(0, "duplicate")
		return existing, nil
	}
	s.conn, s.lastUsed = conn, now
	p.mu.Unlock()
	return conn, nil
}

func (p *clientPool) touch(addr string, conn *quic.Conn) {
	p.mu.Lock()
	if s := p.peers[addr]; s != nil && s.conn == conn {
		s.lastUsed = time.Now()
	}
	p.mu.Unlock()
}

func (p *clientPool) drop(addr string, conn *quic.Conn, reason string) {
	p.mu.Lock()
	if s := p.peers[addr]; s != nil && s.conn == conn {
		s.conn = nil
	}
	p.mu.Unlock()
	_ = conn.CloseWithError(0, reason)
}

func (p *clientPool) closeAll() {
	p.mu.Lock()
	var conns []*quic.Conn
	for _, s := range p.peers {
		if s.conn != nil {
			conns = append(conns, s.conn)
			s.conn = nil
		}
	}
	p.mu.Unlock()
	for _, c := range conns {
		_ = c.CloseWithError(0, "client closed")
	}
}

// recordFailure returns the consecutive failure count including this one.
func (p *clientPool) recordFailure(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state(addr)
	s.failures++
	return s.failures
}

func (p *clientPool) resetFailures(addr string) {
	p.mu.Lock()
	if s := p.peers[addr]; s != nil {
		s.failures = 0
	}
	p.mu.Unlock()
}

func (p *clientPool) failures(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.peers[addr]; s != nil {
		return s.failures
	}
	return 0
}

// withDefaultTimeout bounds ctx by clientTimeout unless it already carries
// a deadline.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, clientTimeout)
}

func backoffDelay(failures int) time.Duration {
	d := clientBackoffBase << uint(min(max(failures-1, 0), 10))
	return min(d, clientBackoffMax)
}

// backoffRetry sleeps for the failure count's backoff and reports whether a
// retry is still worth it.
func backoffRetry(ctx context.Context, failures int) bool {
	if failures <= 0 {
		return false
	}
	t := time.NewTimer(backoffDelay(failures))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
