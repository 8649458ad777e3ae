// Package witness turns the ordered operations of a committed block into
// the circuit-level data the proving backend consumes.  Each ledger
// operation is applied to the account tree, producing an operation witness;
// the witness is then expanded into one circuit operation per block chunk.
// The Builder accumulates circuit operations, public data and fees for one
// block and finalizes them into the committed witness bundle.
package witness

import (
	"math/big"

	"github.com/iden3/go-merkletree"

	"github.com/rollup-prover/prover-server/common"
)

// OpWitness is the tree-level witness of one replayed operation: the roots
// around the mutation and the processor proofs of each leaf write, in
// order.
type OpWitness struct {
	Type       common.TxType
	RootBefore *big.Int
	RootAfter  *big.Int
	Proofs     []*merkletree.CircomProcessorProof
	// Success is only meaningful for FullExit: present withdraw amount
	Success bool
}

// CircuitOp is one chunk-slot of replay data fed to the proving backend.  A
// ledger operation expands into Chunks() consecutive CircuitOps sharing the
// same witness data, each carrying its own chunk of public data.
type CircuitOp struct {
	Type       common.TxType `json:"type"`
	Chunk      int           `json:"chunk"`
	Pubdata    []byte        `json:"pubdata"`
	RootBefore *big.Int      `json:"rootBefore"`
	RootAfter  *big.Int      `json:"rootAfter"`
	Siblings   []*big.Int    `json:"siblings"`
	Success    bool          `json:"success,omitempty"`
	Sig        *SigData      `json:"sig,omitempty"`
}

// deriveCircuitOps expands an applied operation into its per-chunk circuit
// operations plus the operation's public data.  sig is nil for the
// variants that carry no rollup signature.
func deriveCircuitOps(op common.RollupOp, w *OpWitness, sig *SigData) ([]CircuitOp, []byte, error) {
	pubdata, err := op.Pubdata()
	if err != nil {
		return nil, nil, common.Wrap(err)
	}
	chunks := op.Chunks()
	if len(pubdata) != chunks*common.ChunkBytes {
		return nil, nil, common.Invariant("pubdata of %s is %d bytes, want %d",
			op.Type(), len(pubdata), chunks*common.ChunkBytes)
	}

	var siblings []*big.Int
	if len(w.Proofs) > 0 {
		siblings = siblingsToWitness(w.Proofs[0].Siblings)
	}

	ops := make([]CircuitOp, chunks)
	for c := 0; c < chunks; c++ {
		ops[c] = CircuitOp{
			Type:       op.Type(),
			Chunk:      c,
			Pubdata:    pubdata[c*common.ChunkBytes : (c+1)*common.ChunkBytes],
			RootBefore: w.RootBefore,
			RootAfter:  w.RootAfter,
			Siblings:   siblings,
			Success:    w.Success,
			Sig:        sig,
		}
	}
	return ops, pubdata, nil
}

// noopCircuitOp returns the filler circuit operation used to pad a block to
// its chunk capacity
func noopCircuitOp(root *big.Int) CircuitOp {
	return CircuitOp{
		Type:       common.TxTypeNoop,
		Chunk:      0,
		Pubdata:    make([]byte, common.ChunkBytes),
		RootBefore: root,
		RootAfter:  root,
	}
}

func siblingsToWitness(s []*merkletree.Hash) []*big.Int {
	b := make([]*big.Int, len(s))
	for i := 0; i < len(s); i++ {
		b[i] = s[i].BigInt()
	}
	return b
}
