package txn

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"
)

// Fields is the decoded form of a record, used to author new transactions.
type Fields struct {
	ID          uint16
	Time        time.Time
	Amount      int64
	Prefix      string
	Beneficiary uint64
	Details     string
	Signature   string
}

func (f Fields) body() string {
	return strings.Join([]string{
		fmt.Sprintf("%04x", f.ID),
		f.Time.Format(time.RFC3339),
		fmt.Sprintf("%016x", uint64(f.Amount)),
		f.Prefix,
		fmt.Sprintf("%016x", f.Beneficiary),
		f.Details,
	}, separator)
}

// Compose encodes f and validates the result strictly.
func Compose(f Fields) (Transaction, error) {
	return ParseStrict(f.body() + separator + f.Signature)
}

// Signer produces the base64 signature for a record body. The codec never
// verifies signatures; it only checks their shape.
type Signer interface {
	Sign(ctx context.Context, body string) (string, error)
}

// PlaceholderSigner stands in where no key material is configured.
type PlaceholderSigner struct{}

func (PlaceholderSigner) Sign(context.Context, string) (string, error) {
	return "", fmt.Errorf("transaction signing: %w", ErrNotImplemented)
}

// Payment is a locally authored transaction before signing.
type Payment struct {
	ID          uint16
	Time        time.Time
	Amount      int64
	Beneficiary uint64
	Details     string
}

// NewPayment builds, signs and strictly validates a transaction. The prefix is
// drawn from rnd so tests can pin it.
func NewPayment(ctx context.Context, signer Signer, rnd io.Reader, p Payment) (Transaction, error) {
	if signer == nil {
		signer = PlaceholderSigner{}
	}
	prefix, err := NewPrefix(rnd)
	if err != nil {
		return Transaction{}, err
	}
	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	f := Fields{
		ID:          p.ID,
		Time:        ts.UTC().Truncate(time.Second),
		Amount:      p.Amount,
		Prefix:      prefix,
		Beneficiary: p.Beneficiary,
		Details:     p.Details,
	}
	sig, err := signer.Sign(ctx, f.body())
	if err != nil {
		return Transaction{}, err
	}
	f.Signature = sig
	return Compose(f)
}

// NewPrefix returns MinPrefixSize base64 characters of randomness.
func NewPrefix(rnd io.Reader) (string, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	buf := make([]byte, MinPrefixSize/4*3)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return "", fmt.Errorf("read prefix entropy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
