// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"strings"
	"testing"
	"time"

	"zoldnode/internal/txn"
)

const (
	DefaultMaxFuzzBytes = 1 << 16
	DefaultFuzzTimeout  = 100 * time.Millisecond
)

// Signature has the shape of a real record signature. Nothing verifies it.
var Signature = strings.Repeat("QCuL", 170) + "uVr="

var TxTime = time.Date(2017, 7, 19, 21, 25, 7, 0, time.UTC)

// Tx composes a valid record, failing the test if it does not validate.
func Tx(t testing.TB, id uint16, amount int64, prefix string, bnf uint64) txn.Transaction {
	t.Helper()
	tx, err := txn.Compose(txn.Fields{
		ID:          id,
		Time:        TxTime,
		Amount:      amount,
		Prefix:      prefix,
		Beneficiary: bnf,
		Details:     "For food",
		Signature:   Signature,
	})
	if err != nil {
		t.Fatalf("compose test transaction: %v", err)
	}
	return tx
}

func CapBytes(b []byte, max int) []byte {
	if max <= 0 || len(b) <= max {
		return b
	}
	return b[:max]
}

// WithTimeout fails the test if fn runs longer than d.
func WithTimeout(t testing.TB, d time.Duration, fn func()) {
	t.Helper()
	if d <= 0 {
		d = DefaultFuzzTimeout
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("timeout after %s", d)
	}
}
