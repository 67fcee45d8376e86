// Package wallets keeps wallet files in one directory, one file per wallet.
package wallets

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"zoldnode/internal/txn"
	"zoldnode/internal/wallet"
)

const DefaultExt = "z"

var (
	ErrExists   = errors.New("wallet already exists")
	ErrNotFound = errors.New("wallet not found")
)

// ExistsError is returned by Create when the wallet file is already there.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("Wallet in path %s already exists", e.Path)
}

func (e *ExistsError) Unwrap() error {
	return ErrExists
}

type Options struct {
	// Ext is the file extension without the dot.
	Ext string
	// Rand draws ids for new wallets and transaction prefixes. nil uses crypto/rand.
	Rand io.Reader
}

type Dir struct {
	path  string
	ext   string
	rand  io.Reader
	locks wallet.Locks
}

func Open(path string, opts Options) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("missing wallets dir")
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	ext := strings.TrimPrefix(opts.Ext, ".")
	if ext == "" {
		ext = DefaultExt
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	return &Dir{path: path, ext: ext, rand: &lockedReader{r: rnd}}, nil
}

// lockedReader lets payments on different wallets share one random source.
type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}

func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) file(id uint64) string {
	return filepath.Join(d.path, fmt.Sprintf("%016x.%s", id, d.ext))
}

// List returns the ids of all wallet files, sorted.
func (d *Dir) List() ([]uint64, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	suffix := "." + d.ext
	var ids []uint64
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), suffix), 16, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (d *Dir) Load(id uint64) (wallet.Wallet, error) {
	f, err := os.Open(d.file(id))
	if err != nil {
		if os.IsNotExist(err) {
			return wallet.Wallet{}, fmt.Errorf("%w: %016x", ErrNotFound, id)
		}
		return wallet.Wallet{}, err
	}
	defer f.Close()
	w, err := wallet.Decode(f)
	if err != nil {
		return wallet.Wallet{}, fmt.Errorf("load %s: %w", f.Name(), err)
	}
	if w.ID != id {
		return wallet.Wallet{}, fmt.Errorf("load %s: %w", f.Name(), &wallet.MismatchError{Ours: id, Theirs: w.ID})
	}
	return w, nil
}

// Save atomically replaces the wallet file.
func (d *Dir) Save(w wallet.Wallet) error {
	path := d.file(w.ID)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if err := wallet.Encode(f, w); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	// close before rename, windows refuses to rename open files
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	syncDir(path)
	return nil
}

func syncDir(path string) {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return
	}
	defer dir.Close()
	_ = dir.Sync()
}

// Create writes a new empty wallet. A zero id draws a random one.
func (d *Dir) Create(id uint64, key, network string) (wallet.Wallet, error) {
	if id == 0 {
		var b [8]byte
		if _, err := io.ReadFull(d.rand, b[:]); err != nil {
			return wallet.Wallet{}, fmt.Errorf("draw wallet id: %w", err)
		}
		id = binary.BigEndian.Uint64(b[:])
	}
	path := d.file(id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return wallet.Wallet{}, &ExistsError{Path: path}
		}
		return wallet.Wallet{}, err
	}
	w := wallet.Wallet{ID: id, Key: key, Network: network}
	if err := wallet.Encode(f, w); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return wallet.Wallet{}, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return wallet.Wallet{}, err
	}
	return w, f.Close()
}

// Pay appends one outgoing payment to the wallet file. Concurrent payments
// from the same wallet are serialized.
func (d *Dir) Pay(ctx context.Context, id uint64, req wallet.PaymentRequest, signer txn.Signer) (wallet.Wallet, error) {
	unlock := d.locks.Lock(id)
	defer unlock()
	w, err := d.Load(id)
	if err != nil {
		return wallet.Wallet{}, err
	}
	paid, err := wallet.Pay(ctx, w, req, signer, d.rand)
	if err != nil {
		return wallet.Wallet{}, err
	}
	if err := d.Save(paid); err != nil {
		return wallet.Wallet{}, err
	}
	return paid, nil
}

// Update loads id, applies fn and saves the result under the wallet lock. A
// missing wallet reaches fn as ok=false.
func (d *Dir) Update(id uint64, fn func(w wallet.Wallet, ok bool) (wallet.Wallet, error)) (wallet.Wallet, error) {
	unlock := d.locks.Lock(id)
	defer unlock()
	w, err := d.Load(id)
	ok := true
	if errors.Is(err, ErrNotFound) {
		ok = false
	} else if err != nil {
		return wallet.Wallet{}, err
	}
	next, err := fn(w, ok)
	if err != nil {
		return wallet.Wallet{}, err
	}
	if next.ID != id {
		return wallet.Wallet{}, &wallet.MismatchError{Ours: id, Theirs: next.ID}
	}
	if err := d.Save(next); err != nil {
		return wallet.Wallet{}, err
	}
	return next, nil
}

// Merge folds an incoming copy into the stored wallet, or stores it as is
// when the wallet is new here.
func (d *Dir) Merge(w wallet.Wallet) (wallet.Wallet, error) {
	return d.Update(w.ID, func(local wallet.Wallet, ok bool) (wallet.Wallet, error) {
		if !ok {
			return w, nil
		}
		return wallet.Merge(local, w)
	})
}
