package circuit

import (
	"math/big"
	"sort"

	"github.com/iden3/go-merkletree"
	"github.com/iden3/go-merkletree/db/memory"

	"github.com/rollup-prover/prover-server/common"
)

// DefaultTreeDepth is the depth of the account tree when the configuration
// does not set one
const DefaultTreeDepth = 24

// AccountTree is a fixed-depth sparse Merkle tree of account leaves,
// indexed by account Idx.  It lives in memory and is thrown away once the
// block witness has been assembled.
type AccountTree struct {
	mt     *merkletree.MerkleTree
	leaves map[common.Idx]bool
}

// NewAccountTree allocates an empty in-memory account tree of the given
// depth
func NewAccountTree(depth int) (*AccountTree, error) {
	mt, err := merkletree.NewMerkleTree(memory.NewMemoryStorage(), depth)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return &AccountTree{
		mt:     mt,
		leaves: make(map[common.Idx]bool),
	}, nil
}

// TreeFromSnapshot builds an account tree out of a reconstructed ledger
// snapshot, inserting one leaf per account in ascending index order.  Cost
// is proportional to the snapshot size; there is no incremental reuse
// between blocks.
func TreeFromSnapshot(accounts common.AccountMap, depth int) (*AccountTree, error) {
	t, err := NewAccountTree(depth)
	if err != nil {
		return nil, common.Wrap(err)
	}
	idxs := make([]common.Idx, 0, len(accounts))
	for idx := range accounts {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	for _, idx := range idxs {
		if _, err := t.Set(accounts[idx]); err != nil {
			return nil, common.Wrap(err)
		}
	}
	return t, nil
}

// Root returns the current root commitment
func (t *AccountTree) Root() *big.Int {
	return t.mt.Root().BigInt()
}

// Depth returns the tree depth
func (t *AccountTree) Depth() int {
	return t.mt.MaxLevels()
}

// Contains reports whether a leaf for the given index has been set
func (t *AccountTree) Contains(idx common.Idx) bool {
	return t.leaves[idx]
}

// Set writes the leaf for the given ledger account, adding it on first
// sight and updating it afterwards, and returns the circom processor proof
// of the mutation.
func (t *AccountTree) Set(a *common.Account) (*merkletree.CircomProcessorProof, error) {
	circuitAccount, err := AccountFromLedger(a)
	if err != nil {
		return nil, common.Wrap(err)
	}
	if t.leaves[a.Idx] {
		proof, err := t.mt.Update(a.Idx.BigInt(), circuitAccount.Hash)
		if err != nil {
			return nil, common.Wrap(err)
		}
		return proof, nil
	}
	proof, err := t.mt.AddAndGetCircomProof(a.Idx.BigInt(), circuitAccount.Hash)
	if err != nil {
		return nil, common.Wrap(err)
	}
	t.leaves[a.Idx] = true
	return proof, nil
}

// AuditPath returns the inclusion proof of the given leaf against the
// current root
func (t *AccountTree) AuditPath(idx common.Idx) (*merkletree.CircomVerifierProof, error) {
	proof, err := t.mt.GenerateSCVerifierProof(idx.BigInt(), nil)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return proof, nil
}

// SiblingsToWitness converts a merkletree siblings slice into the *big.Int
// form consumed by the proving backend
func SiblingsToWitness(siblings []*merkletree.Hash) []*big.Int {
	out := make([]*big.Int, len(siblings))
	for i, sibling := range siblings {
		out[i] = sibling.BigInt()
	}
	return out
}
