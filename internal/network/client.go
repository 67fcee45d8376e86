package network

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	quic "github.com/quic-go/quic-go"

	"zoldnode/internal/proto"
)

const (
	maxIdleTimeout       = 60 * time.Second
	keepAlivePeriod      = 15 * time.Second
	handshakeIdleTimeout = 5 * time.Second
)

type ClientOptions struct {
	// Insecure skips peer certificate checks.
	Insecure bool
	// CAPath is a PEM bundle of trusted peer certificates.
	CAPath    string
	IdleAfter time.Duration
}

// Client sends one request frame per QUIC stream and reads one response.
// Connections are pooled per address.
type Client struct {
	pool     *clientPool
	tlsConf  *tls.Config
	quicConf *quic.Config
}

func NewClient(opts ClientOptions) (*Client, error) {
	tlsConf, err := clientTLSConfig(opts.Insecure, opts.CAPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		pool:    newClientPool(opts.IdleAfter),
		tlsConf: tlsConf,
		quicConf: &quic.Config{
			MaxIdleTimeout:       maxIdleTimeout,
			KeepAlivePeriod:      keepAlivePeriod,
			HandshakeIdleTimeout: handshakeIdleTimeout,
		},
	}, nil
}

// Exchange retries transport failures with backoff until ctx expires. A
// response frame is returned as is, even if it carries an error message.
func (c *Client) Exchange(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	var lastErr error
	for attempt := 0; attempt <= clientMaxRetries; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ctx.Err()
		}
		resp, err := c.exchangeOnce(ctx, addr, payload)
		if err == nil {
			c.pool.resetFailures(addr)
			return resp, nil
		}
		lastErr = err
		if !backoffRetry(ctx, c.pool.recordFailure(addr)) {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("exchange failed")
	}
	return nil, lastErr
}

func (c *Client) exchangeOnce(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	conn, err := c.pool.get(ctx, addr, c.tlsConf, c.quicConf)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		c.pool.drop(addr, conn, "open stream failed")
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(dl)
	}
	if err := proto.WriteFrame(stream, payload); err != nil {
		stream.CancelRead(0)
		_ = stream.Close()
		c.pool.drop(addr, conn, "write failed")
		return nil, err
	}
	// closing the send side tells the peer the request is complete
	if err := stream.Close(); err != nil {
		c.pool.drop(addr, conn, "close write failed")
		return nil, err
	}
	resp, err := proto.ReadFrameWithTypeCap(stream, proto.SoftMaxFrameSize, proto.MaxSizeForType)
	if err != nil {
		stream.CancelRead(0)
		c.pool.drop(addr, conn, "read failed")
		return nil, err
	}
	c.pool.touch(addr, conn)
	return resp, nil
}

func (c *Client) Close() {
	c.pool.closeAll()
}

// Failures is the number of consecutive failed exchanges with addr.
func (c *Client) Failures(addr string) int {
	return c.pool.failures(addr)
}
