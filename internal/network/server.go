package network

import (
	"context"
	"errors"
	"net"
	"time"

	quic "github.com/quic-go/quic-go"

	"zoldnode/internal/debuglog"
	"zoldnode/internal/metrics"
	"zoldnode/internal/proto"
)

const defaultStreamTimeout = 30 * time.Second

// Handler answers one request frame from peer. A nil response with an error
// resets the stream without answering.
type Handler func(ctx context.Context, peer string, payload []byte) ([]byte, error)

type ServerOptions struct {
	MaxConnsPerIP   int
	MaxStreamsPerIP int
	// RatePerSec and RateBurst bound requests per client IP; zero disables.
	RatePerSec    float64
	RateBurst     int
	StreamTimeout time.Duration
	Metrics       *metrics.Metrics
}

type server struct {
	opts    ServerOptions
	handle  Handler
	conns   *ipLimiter
	rates   *rateLimiter
	metrics *metrics.Metrics
}

// ListenAndServe accepts peers until ctx is cancelled. The bound address is
// sent on ready once the listener is up.
func ListenAndServe(ctx context.Context, addr string, opts ServerOptions, ready chan<- net.Addr, h Handler) error {
	if h == nil {
		return errors.New("missing handler")
	}
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		MaxIdleTimeout:  maxIdleTimeout,
		KeepAlivePeriod: keepAlivePeriod,
	})
	if err != nil {
		return err
	}
	defer ln.Close()
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = defaultStreamTimeout
	}
	s := &server{
		opts:    opts,
		handle:  h,
		conns:   newIPLimiter(opts.MaxConnsPerIP, opts.MaxStreamsPerIP),
		rates:   newRateLimiter(opts.RatePerSec, opts.RateBurst),
		metrics: opts.Metrics,
	}
	debuglog.Logf("quic listening on %s", ln.Addr())
	if ready != nil {
		ready <- ln.Addr()
	}
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *server) drop(reason string) {
	if s.metrics != nil {
		s.metrics.IncDrop(reason)
	}
}

func peerIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (s *server) serveConn(ctx context.Context, conn *quic.Conn) {
	ip := peerIP(conn.RemoteAddr())
	if !s.conns.acquireConn(ip) {
		s.drop("conn_cap")
		_ = conn.CloseWithError(0, "too many connections")
		return
	}
	defer s.conns.releaseConn(ip)
	if s.metrics != nil {
		s.metrics.AddConns(1)
		defer s.metrics.AddConns(-1)
	}
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			debuglog.Debugf("quic accept stream from %s: %v", ip, err)
			return
		}
		if !s.conns.acquireStream(ip) {
			s.drop("stream_cap")
			stream.CancelRead(0)
			stream.CancelWrite(0)
			continue
		}
		if !s.rates.allow(ip) {
			s.conns.releaseStream(ip)
			s.drop("rate")
			debuglog.RateLimitedf("rate:"+ip, 10*time.Second, "rate limited peer %s", ip)
			stream.CancelRead(0)
			stream.CancelWrite(0)
			continue
		}
		go func() {
			defer s.conns.releaseStream(ip)
			s.serveStream(ctx, ip, stream)
		}()
	}
}

func (s *server) serveStream(ctx context.Context, ip string, stream *quic.Stream) {
	_ = stream.SetDeadline(time.Now().Add(s.opts.StreamTimeout))
	req, err := proto.ReadFrameWithTypeCap(stream, proto.SoftMaxFrameSize, proto.MaxSizeForType)
	if err != nil {
		s.drop("bad_frame")
		debuglog.Debugf("read frame from %s: %v", ip, err)
		stream.CancelRead(0)
		stream.CancelWrite(0)
		return
	}
	resp, err := s.handle(ctx, ip, req)
	if err != nil || len(resp) == 0 {
		debuglog.Debugf("handler for %s gave no answer: %v", ip, err)
		stream.CancelWrite(0)
		return
	}
	if err := proto.WriteFrame(stream, resp); err != nil {
		debuglog.Debugf("write frame to %s: %v", ip, err)
		stream.CancelWrite(0)
		return
	}
	_ = stream.Close()
}
