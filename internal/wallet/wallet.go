// Package wallet holds the wallet value, its ledger and the merge rule that
// folds a foreign copy of a ledger into a local one.
package wallet

import (
	"errors"
	"fmt"
	"slices"

	"zoldnode/internal/txn"
)

var ErrIDMismatch = errors.New("wallet id mismatch")

// MismatchError reports a merge between two different wallets.
type MismatchError struct {
	Ours   uint64
	Theirs uint64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Wallet ID mismatch, ours is %d, theirs is %d", e.Ours, e.Theirs)
}

func (e *MismatchError) Unwrap() error {
	return ErrIDMismatch
}

// Ledger is an ordered, immutable sequence of transactions. Append and merge
// build new ledgers; the backing array of an existing ledger is never written.
type Ledger struct {
	txs []txn.Transaction
}

func NewLedger(txs ...txn.Transaction) Ledger {
	return Ledger{txs: slices.Clone(txs)}
}

func (l Ledger) Append(tx txn.Transaction) Ledger {
	out := make([]txn.Transaction, len(l.txs), len(l.txs)+1)
	copy(out, l.txs)
	return Ledger{txs: append(out, tx)}
}

func (l Ledger) Len() int {
	return len(l.txs)
}

func (l Ledger) At(i int) txn.Transaction {
	return l.txs[i]
}

func (l Ledger) Transactions() []txn.Transaction {
	return slices.Clone(l.txs)
}

// Equal is byte-exact: same records in the same order.
func (l Ledger) Equal(other Ledger) bool {
	return slices.Equal(l.txs, other.txs)
}

type Wallet struct {
	ID      uint64
	Key     string
	Network string
	Ledger  Ledger
}

// Equal is content equality as used when grouping copies: same id and the
// same ledger records. Key and network are not compared.
func Equal(a, b Wallet) bool {
	return a.ID == b.ID && a.Ledger.Equal(b.Ledger)
}

func (w Wallet) String() string {
	return fmt.Sprintf("%016x(%d txns)", w.ID, w.Ledger.Len())
}

// Balance sums the ledger amounts in zents.
// Validate checks every field of every transaction.
func (l Ledger) Validate() error {
	for i, tx := range l.txs {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction #%d: %w", i+1, err)
		}
	}
	return nil
}

func (l Ledger) Balance() (int64, error) {
	var sum int64
	for i, tx := range l.txs {
		amt, err := tx.Amount()
		if err != nil {
			return 0, fmt.Errorf("transaction #%d: %w", i+1, err)
		}
		sum += amt
	}
	return sum, nil
}
