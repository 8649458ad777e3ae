// Package circuit holds the cryptographic side of the ledger state: the
// per-account leaf representation and the fixed-depth sparse Merkle tree the
// block operations are replayed against.  The tree is rebuilt in memory from
// an account snapshot for every block being prepared; nothing in this
// package is persistent.
package circuit

import (
	"math/big"

	"github.com/rollup-prover/prover-server/common"
)

// Account is the cryptographic representation of one ledger account: the
// field elements that form its tree leaf and their poseidon hash.  Derived
// 1:1 from a common.Account record.
type Account struct {
	Idx      common.Idx
	Elements [common.NLeafElems]*big.Int
	Hash     *big.Int
}

// AccountFromLedger derives the circuit representation of a ledger account
func AccountFromLedger(a *common.Account) (*Account, error) {
	elements, err := a.BigInts()
	if err != nil {
		return nil, common.Wrap(err)
	}
	hash, err := a.HashValue()
	if err != nil {
		return nil, common.Wrap(err)
	}
	return &Account{
		Idx:      a.Idx,
		Elements: elements,
		Hash:     hash,
	}, nil
}
