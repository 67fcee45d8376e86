// Package reconcile rebuilds a wallet from the copies held by many remotes:
// pull from all of them, group identical answers, rank by summed score and
// merge from the best copy down.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"zoldnode/internal/debuglog"
	"zoldnode/internal/metrics"
	"zoldnode/internal/wallet"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultWorkers = 8
)

type Options struct {
	// Timeout bounds every single remote call.
	Timeout time.Duration
	// Workers caps concurrent remote calls per fan-out.
	Workers int
	Metrics *metrics.Metrics
}

type Network struct {
	remotes []Remote
	timeout time.Duration
	workers int
	metrics *metrics.Metrics
}

func New(remotes []Remote, opts Options) *Network {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Network{
		remotes: slices.Clone(remotes),
		timeout: opts.Timeout,
		workers: opts.Workers,
		metrics: opts.Metrics,
	}
}

func (n *Network) Remotes() []Remote {
	return slices.Clone(n.remotes)
}

// call runs fn under its own deadline. A remote that ignores ctx still counts
// as timed out once the deadline passes; its goroutine is left to finish.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-cctx.Done():
		var zero T
		return zero, cctx.Err()
	}
}

// fanOut runs fn once per remote with at most n.workers in flight. Results are
// indexed by the remote's position, never by arrival.
func (n *Network) fanOut(fn func(i int, r Remote)) {
	var g errgroup.Group
	g.SetLimit(n.workers)
	for i, r := range n.remotes {
		g.Go(func() error {
			fn(i, r)
			return nil
		})
	}
	_ = g.Wait()
}

func (n *Network) Pull(ctx context.Context, id uint64) (wallet.Wallet, error) {
	replies := make([]*Reply, len(n.remotes))
	failures := make([]error, len(n.remotes))
	n.fanOut(func(i int, r Remote) {
		w, err := call(ctx, n.timeout, func(cctx context.Context) (wallet.Wallet, error) {
			return r.Pull(cctx, id)
		})
		if err == nil && w.ID != id {
			err = fmt.Errorf("%w: asked %016x, got %016x", ErrWrongWallet, id, w.ID)
		}
		if err == nil {
			if verr := w.Ledger.Validate(); verr != nil {
				err = fmt.Errorf("%w: %w", ErrBadCopy, verr)
			}
		}
		if err != nil {
			failures[i] = err
			n.countPullFailure(r, id, err)
			return
		}
		if n.metrics != nil {
			n.metrics.IncPullAnswered()
		}
		replies[i] = &Reply{Remote: r, Wallet: w}
	})
	if err := ctx.Err(); err != nil {
		return wallet.Wallet{}, err
	}

	var answered []Reply
	var failed []RemoteError
	for i, r := range n.remotes {
		if replies[i] != nil {
			answered = append(answered, *replies[i])
		} else {
			failed = append(failed, RemoteError{Remote: r.Name(), Err: failures[i]})
		}
	}
	rec := metrics.PullRecord{
		WalletID: fmt.Sprintf("%016x", id),
		At:       time.Now().UTC(),
		Answered: len(answered),
		Failed:   len(failed),
	}
	if len(answered) == 0 {
		err := &EmptyPullError{ID: id, Failures: failed}
		if n.metrics != nil {
			n.metrics.IncPullEmpty()
			rec.Error = err.Error()
			n.metrics.Recent().Add(rec)
		}
		return wallet.Wallet{}, err
	}

	copies := Group(id, answered)
	SortCopies(copies)
	acc := copies[0].Wallet
	for _, c := range copies[1:] {
		next, err := wallet.Merge(acc, c.Wallet)
		if err != nil {
			return wallet.Wallet{}, fmt.Errorf("merge copy from %s: %w", copyNames(c), err)
		}
		acc = next
	}
	debuglog.Debugf("pull %016x: %d answered, %d failed, %d copies, %d txns", id, len(answered), len(failed), len(copies), acc.Ledger.Len())
	if n.metrics != nil {
		n.metrics.AddCopies(len(copies))
		n.metrics.AddMerged(acc.Ledger.Len() - copies[0].Wallet.Ledger.Len())
		rec.Copies = len(copies)
		rec.Txns = acc.Ledger.Len()
		n.metrics.Recent().Add(rec)
	}
	return acc, nil
}

func (n *Network) countPullFailure(r Remote, id uint64, err error) {
	debuglog.RateLimitedf("pull:"+r.Name(), 10*time.Second, "pull %016x from %s failed: %v", id, r.Name(), err)
	if n.metrics == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		n.metrics.IncPullTimeout()
		return
	}
	n.metrics.IncPullFailed()
}

func copyNames(c Copy) string {
	names := make([]string, 0, len(c.Remotes))
	for _, r := range c.Remotes {
		names = append(names, r.Name())
	}
	return fmt.Sprint(names)
}

// PushReport lists which remotes took the wallet and which did not.
type PushReport struct {
	Pushed []string
	Failed []RemoteError
}

// Err joins the failures, nil when every remote accepted the push.
func (r PushReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Push sends w to every remote regardless of score and waits for all of them.
func (n *Network) Push(ctx context.Context, w wallet.Wallet) PushReport {
	errs := make([]error, len(n.remotes))
	n.fanOut(func(i int, r Remote) {
		_, err := call(ctx, n.timeout, func(cctx context.Context) (struct{}, error) {
			return struct{}{}, r.Push(cctx, w)
		})
		errs[i] = err
	})
	var rep PushReport
	for i, r := range n.remotes {
		if errs[i] == nil {
			rep.Pushed = append(rep.Pushed, r.Name())
			if n.metrics != nil {
				n.metrics.IncPushOK()
			}
			continue
		}
		rep.Failed = append(rep.Failed, RemoteError{Remote: r.Name(), Err: errs[i]})
		debuglog.Logf("push %016x to %s failed: %v", w.ID, r.Name(), errs[i])
		if n.metrics != nil {
			n.metrics.IncPushFailed()
		}
	}
	return rep
}

// PushAsync returns at once; the report arrives on the channel when every
// remote has answered or timed out.
func (n *Network) PushAsync(ctx context.Context, w wallet.Wallet) <-chan PushReport {
	ch := make(chan PushReport, 1)
	go func() {
		ch <- n.Push(ctx, w)
		close(ch)
	}()
	return ch
}
