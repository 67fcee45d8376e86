package wallet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"zoldnode/internal/txn"
)

const (
	Marker      = "zold"
	Version     = "2"
	headerLines = 5
	// records may carry a 512-char memo plus a 684-char signature.
	maxLineSize = 64 * 1024
)

var (
	ErrBadHeader   = errors.New("bad wallet header")
	supportedRange = mustConstraint(">= 2")
)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Decode reads the wallet file layout: marker, version, hex id, public key and
// network, then one record per line. Every record is strictly validated.
func Decode(r io.Reader) (Wallet, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)
	var header []string
	var w Wallet
	var txs []txn.Transaction
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSuffix(sc.Text(), "\r")
		if line <= headerLines {
			header = append(header, text)
			if line == headerLines {
				var err error
				if w, err = parseHeader(header); err != nil {
					return Wallet{}, err
				}
			}
			continue
		}
		if text == "" {
			continue
		}
		tx, err := txn.ParseStrict(text)
		if err != nil {
			return Wallet{}, fmt.Errorf("wallet line %d: %w", line, err)
		}
		txs = append(txs, tx)
	}
	if err := sc.Err(); err != nil {
		return Wallet{}, err
	}
	if line < headerLines {
		return Wallet{}, fmt.Errorf("%w: expected %d header lines, found %d", ErrBadHeader, headerLines, line)
	}
	w.Ledger = Ledger{txs: txs}
	return w, nil
}

func parseHeader(h []string) (Wallet, error) {
	if h[0] != Marker {
		return Wallet{}, fmt.Errorf("%w: unknown protocol marker %q", ErrBadHeader, h[0])
	}
	v, err := semver.NewVersion(h[1])
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: version %q: %v", ErrBadHeader, h[1], err)
	}
	if !supportedRange.Check(v) {
		return Wallet{}, fmt.Errorf("%w: unsupported version %s", ErrBadHeader, v)
	}
	id, err := strconv.ParseUint(h[2], 16, 64)
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: id %q: %v", ErrBadHeader, h[2], err)
	}
	if h[4] == "" {
		return Wallet{}, fmt.Errorf("%w: missing network", ErrBadHeader)
	}
	return Wallet{ID: id, Key: h[3], Network: h[4]}, nil
}

func Encode(out io.Writer, w Wallet) error {
	if strings.ContainsAny(w.Key, "\r\n") || strings.ContainsAny(w.Network, "\r\n") {
		return fmt.Errorf("%w: key and network must be single lines", ErrBadHeader)
	}
	if w.Network == "" {
		return fmt.Errorf("%w: missing network", ErrBadHeader)
	}
	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "%s\n%s\n%016x\n%s\n%s\n", Marker, Version, w.ID, w.Key, w.Network)
	for _, tx := range w.Ledger.txs {
		bw.WriteString(txn.Format(tx))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Marshal is Encode into a string, used by transports that carry wallets
// inline.
func Marshal(w Wallet) (string, error) {
	var sb strings.Builder
	if err := Encode(&sb, w); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func Unmarshal(s string) (Wallet, error) {
	return Decode(strings.NewReader(s))
}
