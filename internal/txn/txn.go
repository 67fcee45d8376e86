// Package txn implements the wallet transaction record:
//
//	id;time;amount;prefix;beneficiary;details;signature
//
// Parse only checks the record shape. Every accessor validates its own field,
// so a record with a bad signature still yields its id. ParseStrict validates
// all fields up front and is what storage and remote replies go through.
package txn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	FieldCount     = 7
	SignatureSize  = 684
	MinPrefixSize  = 8
	MaxPrefixSize  = 32
	MaxDetailsSize = 512
	separator      = ";"
)

const (
	fieldID = iota
	fieldTime
	fieldAmount
	fieldPrefix
	fieldBeneficiary
	fieldDetails
	fieldSignature
)

const detailsExpr = `[A-Za-z0-9 \-.]{1,512}`

var (
	idPattern      = regexp.MustCompile(`^[A-Fa-f0-9]{4}$`)
	hexPattern     = regexp.MustCompile(`^[A-Fa-f0-9]{16}$`)
	prefixPattern  = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*([A-Za-z0-9+/]{4}|[A-Za-z0-9+/]{3}=|[A-Za-z0-9+/]{2}==)$`)
	detailsPattern = regexp.MustCompile(`^` + detailsExpr + `$`)
	signPattern    = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,3}$`)
)

// Transaction is an immutable record. Two transactions are equal exactly when
// their raw records are equal, so the struct is safe to compare with == and to
// use as a map key.
type Transaction struct {
	raw    string
	fields [FieldCount]string
}

func Parse(raw string) (Transaction, error) {
	if raw == "" {
		return Transaction{}, fieldError("record", raw, ErrMalformed,
			"Invalid transaction string: string is empty")
	}
	parts := strings.Split(raw, separator)
	if len(parts) != FieldCount {
		return Transaction{}, fieldError("record", raw, ErrMalformed,
			fmt.Sprintf("Invalid transaction string: expected %d fields, but found %d", FieldCount, len(parts)))
	}
	tx := Transaction{raw: raw}
	copy(tx.fields[:], parts)
	return tx, nil
}

func ParseStrict(raw string) (Transaction, error) {
	tx, err := Parse(raw)
	if err != nil {
		return Transaction{}, err
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Format is the inverse of Parse.
func Format(tx Transaction) string {
	return tx.raw
}

func Equal(a, b Transaction) bool {
	return a.raw == b.raw
}

func (t Transaction) String() string {
	return t.raw
}

// Validate checks every field in wire order and returns the first failure.
func (t Transaction) Validate() error {
	if t.raw == "" {
		return fieldError("record", "", ErrMalformed, "Invalid transaction string: string is empty")
	}
	if _, err := t.ID(); err != nil {
		return err
	}
	if _, err := t.Time(); err != nil {
		return err
	}
	if _, err := t.Amount(); err != nil {
		return err
	}
	if _, err := t.Prefix(); err != nil {
		return err
	}
	if _, err := t.BeneficiaryHex(); err != nil {
		return err
	}
	if _, err := t.Details(); err != nil {
		return err
	}
	_, err := t.Signature()
	return err
}

func (t Transaction) ID() (uint16, error) {
	v := t.fields[fieldID]
	if !idPattern.MatchString(v) {
		return 0, fieldError("id", v, ErrInvalidID,
			fmt.Sprintf("Invalid ID '%s' expecting 16-bit unsigned hex string with 4 symbols", v))
	}
	id, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, fieldError("id", v, ErrInvalidID,
			fmt.Sprintf("Invalid ID '%s' expecting 16-bit unsigned hex string with 4 symbols", v))
	}
	return uint16(id), nil
}

// offsetMinutes is an ISO offset date-time without seconds.
const offsetMinutes = "2006-01-02T15:04Z07:00"

// Time returns the *time.ParseError from the time package unwrapped, so a bad
// date is distinguishable from a bad record shape. Seconds may be omitted.
func (t Transaction) Time() (time.Time, error) {
	v := t.fields[fieldTime]
	ts, err := time.Parse(time.RFC3339, v)
	if err == nil {
		return ts, nil
	}
	if short, serr := time.Parse(offsetMinutes, v); serr == nil {
		return short, nil
	}
	return time.Time{}, err
}

// Amount decodes the field as the two's-complement bit pattern of an int64.
func (t Transaction) Amount() (int64, error) {
	v := t.fields[fieldAmount]
	if !hexPattern.MatchString(v) {
		return 0, fieldError("amount", v, ErrInvalidAmount,
			fmt.Sprintf("Invalid amount '%s' expecting 64-bit signed hex string with 16 symbols", v))
	}
	bits, err := strconv.ParseUint(v, 16, 64)
	if err != nil {
		return 0, fieldError("amount", v, ErrInvalidAmount,
			fmt.Sprintf("Invalid amount '%s' expecting 64-bit signed hex string with 16 symbols", v))
	}
	return int64(bits), nil
}

func (t Transaction) Prefix() (string, error) {
	v := t.fields[fieldPrefix]
	if len(v) < MinPrefixSize || len(v) > MaxPrefixSize || !prefixPattern.MatchString(v) {
		return "", fieldError("prefix", v, ErrInvalidPrefix,
			fmt.Sprintf("Invalid prefix string '%s'", v))
	}
	return v, nil
}

// BeneficiaryHex returns the payee wallet id exactly as written in the record.
func (t Transaction) BeneficiaryHex() (string, error) {
	v := t.fields[fieldBeneficiary]
	if !hexPattern.MatchString(v) {
		return "", fieldError("beneficiary", v, ErrInvalidBeneficiary,
			fmt.Sprintf("Invalid bnf string '%s', expecting hex string with 16 symbols", v))
	}
	return v, nil
}

func (t Transaction) Beneficiary() (uint64, error) {
	v, err := t.BeneficiaryHex()
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 16, 64)
}

func (t Transaction) Details() (string, error) {
	v := t.fields[fieldDetails]
	if !detailsPattern.MatchString(v) {
		return "", fieldError("details", v, ErrInvalidDetails,
			fmt.Sprintf("Invalid details string '%s', does not match pattern '%s'", v, detailsExpr))
	}
	return v, nil
}

func (t Transaction) Signature() (string, error) {
	v := t.fields[fieldSignature]
	if len(v) != SignatureSize || !signPattern.MatchString(v) {
		return "", fieldError("signature", v, ErrInvalidSignature,
			fmt.Sprintf("Invalid signature '%s', expecting base64 string with %d characters", v, SignatureSize))
	}
	return v, nil
}

// Body is the signed part of the record: everything before the signature.
func (t Transaction) Body() string {
	return strings.Join(t.fields[:fieldSignature], separator)
}
