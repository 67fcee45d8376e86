package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoCopies    = errors.New("no remote answered")
	ErrWrongWallet = errors.New("remote answered with another wallet")
	ErrBadCopy     = errors.New("remote answered with an invalid ledger")
)

// RemoteError is one remote's failure within a fan-out.
type RemoteError struct {
	Remote string
	Err    error
}

func (e RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Remote, e.Err)
}

func (e RemoteError) Unwrap() error {
	return e.Err
}

// EmptyPullError is returned when no remote produced a usable copy.
type EmptyPullError struct {
	ID       uint64
	Failures []RemoteError
}

func (e *EmptyPullError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("pull %016x: no remotes configured", e.ID)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("pull %016x: none of %d remotes answered: %s", e.ID, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes ErrNoCopies followed by every remote failure.
func (e *EmptyPullError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+1)
	out = append(out, ErrNoCopies)
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}
