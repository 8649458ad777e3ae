// Package prover implements the witness preparation pipeline: a bounded
// pool of committed-but-unproven blocks and their prepared witness bundles,
// plus the maintainer worker that keeps the pool filled ahead of prover
// demand.
package prover

import (
	"math/big"

	"github.com/rollup-prover/prover-server/circuit"
	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/witness"
)

// ProverData is the finished witness bundle of one block, ready for the
// proving backend.  Immutable once built.
type ProverData struct {
	BlockNum             common.BlockNum             `json:"blockNum"`
	PublicDataCommitment *big.Int                    `json:"publicDataCommitment"`
	OldRoot              *big.Int                    `json:"oldRoot"`
	NewRoot              *big.Int                    `json:"newRoot"`
	ValidatorAddress     *big.Int                    `json:"validatorAddress"`
	Operations           []witness.CircuitOp         `json:"operations"`
	ValidatorBalances    map[common.TokenID]*big.Int `json:"validatorBalances"`
	ValidatorAuditPath   []*big.Int                  `json:"validatorAuditPath"`
	ValidatorAccount     *circuit.Account            `json:"validatorAccount"`
}
