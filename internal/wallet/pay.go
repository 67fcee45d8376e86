package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"zoldnode/internal/txn"
)

var (
	ErrInvalidPayment = errors.New("invalid payment")
	ErrLedgerFull     = errors.New("no transaction ids left")
)

// PaymentRequest describes an outgoing payment. Amount is in zents and must be
// positive; it is recorded negated in the payer's ledger.
type PaymentRequest struct {
	Amount      int64
	Beneficiary uint64
	Details     string
	Time        time.Time
}

// Pay appends one signed outgoing transaction to w and returns the new wallet.
// rnd feeds the transaction prefix; nil uses crypto/rand.
func Pay(ctx context.Context, w Wallet, req PaymentRequest, signer txn.Signer, rnd io.Reader) (Wallet, error) {
	if req.Amount <= 0 {
		return Wallet{}, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidPayment, req.Amount)
	}
	if req.Beneficiary == w.ID {
		return Wallet{}, fmt.Errorf("%w: wallet %016x cannot pay itself", ErrInvalidPayment, w.ID)
	}
	id, err := nextID(w.Ledger)
	if err != nil {
		return Wallet{}, err
	}
	tx, err := txn.NewPayment(ctx, signer, rnd, txn.Payment{
		ID:          id,
		Time:        req.Time,
		Amount:      -req.Amount,
		Beneficiary: req.Beneficiary,
		Details:     req.Details,
	})
	if err != nil {
		return Wallet{}, err
	}
	out := w
	out.Ledger = w.Ledger.Append(tx)
	return out, nil
}

// nextID is one past the highest id among outgoing transactions.
func nextID(l Ledger) (uint16, error) {
	var top uint32
	for _, tx := range l.txs {
		amount, err := tx.Amount()
		if err != nil {
			return 0, err
		}
		if amount >= 0 {
			continue
		}
		id, err := tx.ID()
		if err != nil {
			return 0, err
		}
		if uint32(id) > top {
			top = uint32(id)
		}
	}
	if top >= 0xffff {
		return 0, ErrLedgerFull
	}
	return uint16(top + 1), nil
}

// Locks serializes writers per wallet id. The zero value is ready to use.
type Locks struct {
	mu sync.Mutex
	m  map[uint64]*walletLock
}

type walletLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until id is free and returns the matching unlock.
func (l *Locks) Lock(id uint64) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[uint64]*walletLock)
	}
	wl := l.m[id]
	if wl == nil {
		wl = &walletLock{}
		l.m[id] = wl
	}
	wl.refs++
	l.mu.Unlock()

	wl.mu.Lock()
	return func() {
		wl.mu.Unlock()
		l.mu.Lock()
		wl.refs--
		if wl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
