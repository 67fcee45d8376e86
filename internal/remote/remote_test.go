package remote_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoldnode/internal/proto"
	"zoldnode/internal/reconcile"
	"zoldnode/internal/remote"
	"zoldnode/internal/score"
	"zoldnode/internal/testutil"
	"zoldnode/internal/wallet"
)

var (
	_ reconcile.Remote = (*remote.Memory)(nil)
	_ reconcile.Remote = (*remote.Peer)(nil)
	_ reconcile.Remote = (*remote.Redis)(nil)
)

func sample(t *testing.T, id uint64) wallet.Wallet {
	return wallet.Wallet{
		ID:      id,
		Key:     "key",
		Network: "test",
		Ledger:  wallet.NewLedger(testutil.Tx(t, 1, -10, "xksQuJa9", 2)),
	}
}

// fakePeer answers requests from an in-memory wallet table.
type fakePeer struct {
	wallets  map[string]string
	suffixes []string
	lastReq  proto.Request
	err      error
}

func (f *fakePeer) Exchange(_ context.Context, _ string, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	req, err := proto.DecodeRequest(payload)
	if err != nil {
		return nil, err
	}
	f.lastReq = req
	resp := proto.Response{Type: req.Type + "_ok", RequestID: req.RequestID}
	switch req.Type {
	case proto.TypeScore:
		resp.Suffixes = f.suffixes
	case proto.TypePull:
		text, ok := f.wallets[req.ID]
		if !ok {
			resp = proto.ErrorResponse(req.RequestID, proto.CodeNotFound, "no such wallet")
		}
		resp.Wallet = text
	case proto.TypePush:
		f.wallets[req.ID] = req.Wallet
	}
	return proto.EncodeResponse(resp)
}

func TestPeerPushThenPull(t *testing.T) {
	f := &fakePeer{wallets: map[string]string{}}
	p := remote.NewPeer("10.0.0.1:4096", f, score.New("a"))
	w := sample(t, 0x42)
	require.NoError(t, p.Push(context.Background(), w))
	assert.Equal(t, proto.TypePush, f.lastReq.Type)
	assert.Equal(t, "0000000000000042", f.lastReq.ID)

	got, err := p.Pull(context.Background(), 0x42)
	require.NoError(t, err)
	assert.True(t, wallet.Equal(w, got))
	assert.Equal(t, "10.0.0.1:4096", p.Name())
}

func TestPeerPullNotFound(t *testing.T) {
	p := remote.NewPeer("peer", &fakePeer{wallets: map[string]string{}}, score.Score{})
	_, err := p.Pull(context.Background(), 9)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestPeerPullRejectsBadWalletText(t *testing.T) {
	f := &fakePeer{wallets: map[string]string{proto.FormatWalletID(9): "garbage"}}
	p := remote.NewPeer("peer", f, score.Score{})
	_, err := p.Pull(context.Background(), 9)
	assert.ErrorIs(t, err, wallet.ErrBadHeader)
}

func TestPeerTransportError(t *testing.T) {
	boom := errors.New("boom")
	p := remote.NewPeer("peer", &fakePeer{err: boom}, score.Score{})
	_, err := p.Pull(context.Background(), 9)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, p.Push(context.Background(), sample(t, 9)), boom)
}

func TestPeerRefreshCachesScore(t *testing.T) {
	f := &fakePeer{suffixes: []string{"a", "b", "c"}}
	p := remote.NewPeer("peer", f, score.New("x"))
	assert.Equal(t, 1, p.Score().Len())
	s, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, p.Score().Len())
}

func TestMemoryFailAndHeal(t *testing.T) {
	m := remote.NewMemory("m", score.Score{})
	m.Put(sample(t, 1))
	m.Fail(errors.New("down"))
	_, err := m.Pull(context.Background(), 1)
	require.Error(t, err)
	m.Fail(nil)
	_, err = m.Pull(context.Background(), 1)
	require.NoError(t, err)
}

func TestMemoryDelayHonoursContext(t *testing.T) {
	m := remote.NewMemory("m", score.Score{})
	m.Delay(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Pull(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRedisRoundTrip requires a running redis at ZOLD_REDIS_ADDR.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("ZOLD_REDIS_ADDR")
	if addr == "" {
		t.Skip("ZOLD_REDIS_ADDR not set")
	}
	r := remote.NewRedis(addr, "", 0, score.New("r"), time.Minute)
	defer r.Close()
	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	w := sample(t, 0xfeedface)
	require.NoError(t, r.Push(ctx, w))
	got, err := r.Pull(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, wallet.Equal(w, got))

	_, err = r.Pull(ctx, 0xdeadbeef00000001)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}
