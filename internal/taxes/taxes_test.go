package taxes

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoldnode/internal/reconcile"
	"zoldnode/internal/remote"
	"zoldnode/internal/score"
	"zoldnode/internal/wallet"
)

func remoteWith(name string, n int) reconcile.Remote {
	s := make([]string, n)
	for i := range s {
		s[i] = fmt.Sprintf("%s-%d", name, i)
	}
	return remote.NewMemory(name, score.New(s...))
}

func TestBeneficiariesFilterAndRank(t *testing.T) {
	low := remoteWith("low", 15)
	mid := remoteWith("mid", 16)
	high := remoteWith("high", 40)
	tie := remoteWith("tie", 16)
	got := Beneficiaries([]reconcile.Remote{low, mid, high, tie})
	require.Len(t, got, 3)
	assert.Equal(t, "high", got[0].Name())
	assert.Equal(t, "mid", got[1].Name())
	assert.Equal(t, "tie", got[2].Name())
}

func TestBeneficiariesEmpty(t *testing.T) {
	assert.Empty(t, Beneficiaries(nil))
	assert.Empty(t, Beneficiaries([]reconcile.Remote{remoteWith("x", 1)}))
}

func TestPayIsNotImplemented(t *testing.T) {
	tx := New([]reconcile.Remote{remoteWith("a", 20), remoteWith("b", 2)})
	assert.Len(t, tx.Beneficiaries(), 1)
	err := tx.Pay(wallet.Wallet{ID: 1})
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.Contains(t, err.Error(), "1 beneficiaries")
}
