// Package remote implements the reconcile.Remote capability over different
// backends: in memory, QUIC peers and a redis replica cache.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zoldnode/internal/score"
	"zoldnode/internal/wallet"
)

var ErrNotFound = errors.New("wallet not found on remote")

// Memory is a remote backed by a map. Tests use it as a peer double.
type Memory struct {
	name  string
	score score.Score

	mu      sync.Mutex
	wallets map[uint64]wallet.Wallet
	err     error
	delay   time.Duration
	pushes  int
}

func NewMemory(name string, s score.Score) *Memory {
	return &Memory{name: name, score: s, wallets: make(map[uint64]wallet.Wallet)}
}

func (m *Memory) Name() string {
	return m.name
}

func (m *Memory) Score() score.Score {
	return m.score
}

func (m *Memory) Put(w wallet.Wallet) {
	m.mu.Lock()
	m.wallets[w.ID] = w
	m.mu.Unlock()
}

// Fail makes every later call return err; nil heals the remote.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Delay holds every later call for d or until its context ends.
func (m *Memory) Delay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

func (m *Memory) Pushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes
}

func (m *Memory) wait(ctx context.Context) error {
	m.mu.Lock()
	d, err := m.delay, m.err
	m.mu.Unlock()
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *Memory) Push(ctx context.Context, w wallet.Wallet) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.wallets[w.ID] = w
	m.pushes++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Pull(ctx context.Context, id uint64) (wallet.Wallet, error) {
	if err := m.wait(ctx); err != nil {
		return wallet.Wallet{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return wallet.Wallet{}, fmt.Errorf("%w: %016x on %s", ErrNotFound, id, m.name)
	}
	return w, nil
}
