package reconcile

import (
	"context"

	"zoldnode/internal/score"
	"zoldnode/internal/wallet"
)

// Remote is one peer that stores wallet replicas.
type Remote interface {
	Name() string
	Score() score.Score
	Push(ctx context.Context, w wallet.Wallet) error
	Pull(ctx context.Context, id uint64) (wallet.Wallet, error)
}

// Reply is the wallet one remote answered with.
type Reply struct {
	Remote Remote
	Wallet wallet.Wallet
}

// Copy is one distinct wallet content and the remotes that reported it.
type Copy struct {
	Wallet  wallet.Wallet
	Remotes []Remote
}

func (c Copy) Score() score.Score {
	scores := make([]score.Score, 0, len(c.Remotes))
	for _, r := range c.Remotes {
		scores = append(scores, r.Score())
	}
	return score.Sum(scores...)
}

// Group folds replies into copies in a single pass: a reply joins the first
// copy with equal content, otherwise it starts a new one. Copies come out in
// first-seen order. Replies for another wallet id are ignored.
func Group(id uint64, replies []Reply) []Copy {
	var copies []Copy
	for _, r := range replies {
		if r.Wallet.ID != id {
			continue
		}
		joined := false
		for i := range copies {
			if wallet.Equal(copies[i].Wallet, r.Wallet) {
				copies[i].Remotes = append(copies[i].Remotes, r.Remote)
				joined = true
				break
			}
		}
		if !joined {
			copies = append(copies, Copy{Wallet: r.Wallet, Remotes: []Remote{r.Remote}})
		}
	}
	return copies
}

// SortCopies orders copies by summed score, highest first. Ties keep their
// first-seen order.
func SortCopies(copies []Copy) {
	score.SortDesc(copies, Copy.Score)
}
