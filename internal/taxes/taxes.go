// Package taxes picks the remotes eligible for protocol incentive payments.
package taxes

import (
	"fmt"

	"zoldnode/internal/reconcile"
	"zoldnode/internal/score"
	"zoldnode/internal/txn"
	"zoldnode/internal/wallet"
)

// MinScore is the fewest suffixes a remote needs to receive taxes.
const MinScore = 16

// ErrNotImplemented is shared with the placeholder signer.
var ErrNotImplemented = txn.ErrNotImplemented

// Beneficiaries keeps remotes with at least MinScore suffixes, best first.
func Beneficiaries(remotes []reconcile.Remote) []reconcile.Remote {
	out := make([]reconcile.Remote, 0, len(remotes))
	for _, r := range remotes {
		if r.Score().Len() >= MinScore {
			out = append(out, r)
		}
	}
	score.SortDesc(out, reconcile.Remote.Score)
	return out
}

type Taxes struct {
	beneficiaries []reconcile.Remote
}

func New(remotes []reconcile.Remote) *Taxes {
	return &Taxes{beneficiaries: Beneficiaries(remotes)}
}

func (t *Taxes) Beneficiaries() []reconcile.Remote {
	return append([]reconcile.Remote(nil), t.beneficiaries...)
}

// Pay would settle w's tax debt with the beneficiaries in rank order. The
// payout rule is not defined yet.
func (t *Taxes) Pay(w wallet.Wallet) error {
	return fmt.Errorf("tax payout for %016x to %d beneficiaries: %w", w.ID, len(t.beneficiaries), ErrNotImplemented)
}
