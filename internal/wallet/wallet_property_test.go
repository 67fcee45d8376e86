//go:build property
// +build property

package wallet_test

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"zoldnode/internal/txn"
	"zoldnode/internal/wallet"
)

var propSignature = strings.Repeat("QCuL", 170) + "uVr="

func prefixOf(n uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return base64.StdEncoding.EncodeToString(b[2:])
}

func compose(id uint16, amount int64, bnf uint64, salt uint64, details string) (txn.Transaction, error) {
	return txn.Compose(txn.Fields{
		ID:          id,
		Time:        time.Unix(int64(salt%4102444800), 0).UTC(),
		Amount:      amount,
		Prefix:      prefixOf(salt),
		Beneficiary: bnf,
		Details:     details,
		Signature:   propSignature,
	})
}

func detailsGen() gopter.Gen {
	return gen.Identifier().SuchThat(func(s string) bool { return len(s) <= txn.MaxDetailsSize })
}

// Property: Parse(Format(tx)) == tx for any record built from valid fields.
func TestTransactionRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("format then parse is identity", prop.ForAll(
		func(id uint16, amount int64, bnf uint64, salt uint64, details string) bool {
			tx, err := compose(id, amount, bnf, salt, details)
			if err != nil {
				return false
			}
			back, err := txn.ParseStrict(txn.Format(tx))
			if err != nil || !txn.Equal(tx, back) {
				return false
			}
			got, err := back.Amount()
			return err == nil && got == amount
		},
		gen.UInt16(), gen.Int64(), gen.UInt64(), gen.UInt64(), detailsGen(),
	))
	properties.TestingRun(t)
}

// Property: Merge(w, w) == w, and wallets with different ids never merge.
func TestMergeProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("merge with itself changes nothing", prop.ForAll(
		func(id uint64, salts []uint64) bool {
			var txs []txn.Transaction
			for i, s := range salts {
				tx, err := compose(uint16(i), int64(s%1000)-500, s, s, "memo")
				if err != nil {
					return false
				}
				txs = append(txs, tx)
			}
			w := wallet.Wallet{ID: id, Network: "test", Ledger: wallet.NewLedger(txs...)}
			merged, err := wallet.Merge(w, w)
			return err == nil && wallet.Equal(w, merged)
		},
		gen.UInt64(), gen.SliceOf(gen.UInt64()),
	))
	properties.Property("different ids always fail", prop.ForAll(
		func(a, b uint64) bool {
			if a == b {
				return true
			}
			merged, err := wallet.Merge(wallet.Wallet{ID: a}, wallet.Wallet{ID: b})
			return err != nil && merged.Ledger.Len() == 0
		},
		gen.UInt64(), gen.UInt64(),
	))
	properties.TestingRun(t)
}
