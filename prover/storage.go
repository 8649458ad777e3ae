package prover

import (
	"github.com/rollup-prover/prover-server/common"
)

// Storage is the contract the pipeline needs from the block storage layer.
// All methods are fallible with opaque storage errors; the maintainer
// treats any failure as fatal for its worker.
type Storage interface {
	// LoadUnverifiedCommitsAfterBlock returns up to limit committed
	// blocks with block number greater than after that have no verified
	// proof yet, in ascending block order, each with its operations
	// attached.
	LoadUnverifiedCommitsAfterBlock(after common.BlockNum, limit int64) ([]*common.Operation, error)

	// LoadStateDiff returns the ordered account mutations between the
	// two heights and the height they advance to.  ok is false when the
	// heights are equal or storage has nothing pending between them.
	LoadStateDiff(from, to common.BlockNum) (height common.BlockNum,
		diff common.StateDiff, ok bool, err error)

	// LoadCommittedState returns the full account mapping as of the
	// given height
	LoadCommittedState(height common.BlockNum) (common.BlockNum, common.AccountMap, error)

	// GetBlockOperations returns the ordered ledger operations of the
	// block
	GetBlockOperations(blockNum common.BlockNum) ([]common.RollupOp, error)
}
