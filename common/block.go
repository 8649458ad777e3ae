package common

import (
	"math/big"
	"time"
)

// BlockNum identifies a rollup block
type BlockNum int64

// BigInt returns a *big.Int representing the BlockNum
func (bn BlockNum) BigInt() *big.Int {
	return big.NewInt(int64(bn))
}

// Block is the commit record of a rollup block as produced by the committing
// pipeline: the roots before and after the block, the designated fee
// account and the circuit geometry the block was committed with.
type Block struct {
	Num        BlockNum  `meddler:"block_num" json:"blockNum"`
	FeeAccount Idx       `meddler:"fee_account" json:"feeAccount"`
	OldRoot    *big.Int  `meddler:"old_root,bigint" json:"oldRoot"`
	NewRoot    *big.Int  `meddler:"new_root,bigint" json:"newRoot"`
	Chunks     int       `meddler:"chunks" json:"chunks"`
	Timestamp  time.Time `meddler:"timestamp,utctime" json:"timestamp"`
	Verified   bool      `meddler:"verified" json:"verified"`
}

// Operation is a committed-but-unproven block together with its ordered
// ledger operations, as loaded from storage.  Immutable once loaded.
type Operation struct {
	Block Block      `json:"block"`
	Ops   []RollupOp `json:"ops"`
}

// BlockNum returns the block number the Operation is keyed by
func (o *Operation) BlockNum() BlockNum {
	return o.Block.Num
}
