package wallet

import "zoldnode/internal/txn"

type idBnf struct {
	id  uint16
	bnf string
}

// ledgerIndex answers the merge exclusion rules against one ledger in O(1).
type ledgerIndex struct {
	raws     map[txn.Transaction]struct{}
	ids      map[uint16]struct{}
	pairs    map[idBnf]struct{}
	prefixes map[string]struct{}
}

func indexLedger(l Ledger) (ledgerIndex, error) {
	ix := ledgerIndex{
		raws:     make(map[txn.Transaction]struct{}, l.Len()),
		ids:      make(map[uint16]struct{}, l.Len()),
		pairs:    make(map[idBnf]struct{}, l.Len()),
		prefixes: make(map[string]struct{}, l.Len()),
	}
	for _, tx := range l.txs {
		id, err := tx.ID()
		if err != nil {
			return ledgerIndex{}, err
		}
		bnf, err := tx.BeneficiaryHex()
		if err != nil {
			return ledgerIndex{}, err
		}
		prefix, err := tx.Prefix()
		if err != nil {
			return ledgerIndex{}, err
		}
		ix.raws[tx] = struct{}{}
		ix.ids[id] = struct{}{}
		ix.pairs[idBnf{id, bnf}] = struct{}{}
		ix.prefixes[prefix] = struct{}{}
	}
	return ix, nil
}

// excludes reports whether some existing transaction rules out tx:
// identical record, same id and beneficiary, same id with a negative amount,
// or same prefix.
func (ix ledgerIndex) excludes(tx txn.Transaction) (bool, error) {
	id, err := tx.ID()
	if err != nil {
		return false, err
	}
	bnf, err := tx.BeneficiaryHex()
	if err != nil {
		return false, err
	}
	amount, err := tx.Amount()
	if err != nil {
		return false, err
	}
	prefix, err := tx.Prefix()
	if err != nil {
		return false, err
	}
	if _, ok := ix.raws[tx]; ok {
		return true, nil
	}
	if _, ok := ix.pairs[idBnf{id, bnf}]; ok {
		return true, nil
	}
	if _, ok := ix.ids[id]; ok && amount < 0 {
		return true, nil
	}
	_, ok := ix.prefixes[prefix]
	return ok, nil
}

// Merge returns local with every transaction of other that no transaction of
// local excludes appended in its original order. Exclusion is checked against
// local's ledger only. A field that fails to decode aborts the merge.
func Merge(local, other Wallet) (Wallet, error) {
	if local.ID != other.ID {
		return Wallet{}, &MismatchError{Ours: local.ID, Theirs: other.ID}
	}
	ix, err := indexLedger(local.Ledger)
	if err != nil {
		return Wallet{}, err
	}
	merged := make([]txn.Transaction, local.Ledger.Len(), local.Ledger.Len()+other.Ledger.Len())
	copy(merged, local.Ledger.txs)
	for _, tx := range other.Ledger.txs {
		skip, err := ix.excludes(tx)
		if err != nil {
			return Wallet{}, err
		}
		if !skip {
			merged = append(merged, tx)
		}
	}
	return Wallet{
		ID:      local.ID,
		Key:     local.Key,
		Network: local.Network,
		Ledger:  Ledger{txs: merged},
	}, nil
}
