package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"zoldnode/internal/debuglog"
	"zoldnode/internal/proto"
	"zoldnode/internal/score"
	"zoldnode/internal/wallet"
)

// Exchanger sends one request frame and returns the response frame.
// *network.Client is the production implementation.
type Exchanger interface {
	Exchange(ctx context.Context, addr string, payload []byte) ([]byte, error)
}

// Peer is a remote node reached over the peer protocol. Its score is cached
// and only changes on Refresh.
type Peer struct {
	addr string
	ex   Exchanger

	mu    sync.RWMutex
	score score.Score
}

func NewPeer(addr string, ex Exchanger, s score.Score) *Peer {
	return &Peer{addr: addr, ex: ex, score: s}
}

func (p *Peer) Name() string {
	return p.addr
}

func (p *Peer) Score() score.Score {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.score
}

func (p *Peer) roundTrip(ctx context.Context, req proto.Request) (proto.Response, error) {
	payload, err := proto.EncodeRequest(req)
	if err != nil {
		return proto.Response{}, err
	}
	data, err := p.ex.Exchange(ctx, p.addr, payload)
	if err != nil {
		return proto.Response{}, fmt.Errorf("%s %s: %w", req.Type, p.addr, err)
	}
	resp, err := proto.DecodeResponse(data, req)
	if err != nil {
		return proto.Response{}, fmt.Errorf("%s %s: %w", req.Type, p.addr, err)
	}
	return resp, nil
}

// Refresh asks the peer for its current score and caches it.
func (p *Peer) Refresh(ctx context.Context) (score.Score, error) {
	resp, err := p.roundTrip(ctx, proto.NewRequest(proto.TypeScore, 0, ""))
	if err != nil {
		return score.Score{}, err
	}
	if err := resp.Err(); err != nil {
		return score.Score{}, err
	}
	s := score.New(resp.Suffixes...)
	p.mu.Lock()
	p.score = s
	p.mu.Unlock()
	debuglog.Debugf("remote %s score %d", p.addr, s.Len())
	return s, nil
}

func (p *Peer) Pull(ctx context.Context, id uint64) (wallet.Wallet, error) {
	resp, err := p.roundTrip(ctx, proto.NewRequest(proto.TypePull, id, ""))
	if err != nil {
		return wallet.Wallet{}, err
	}
	if err := resp.Err(); err != nil {
		var re *proto.RemoteError
		if errors.As(err, &re) && re.Code == proto.CodeNotFound {
			return wallet.Wallet{}, fmt.Errorf("%w: %016x on %s", ErrNotFound, id, p.addr)
		}
		return wallet.Wallet{}, err
	}
	w, err := wallet.Unmarshal(resp.Wallet)
	if err != nil {
		return wallet.Wallet{}, fmt.Errorf("pull %s: %w", p.addr, err)
	}
	return w, nil
}

func (p *Peer) Push(ctx context.Context, w wallet.Wallet) error {
	text, err := wallet.Marshal(w)
	if err != nil {
		return err
	}
	resp, err := p.roundTrip(ctx, proto.NewRequest(proto.TypePush, w.ID, text))
	if err != nil {
		return err
	}
	return resp.Err()
}
