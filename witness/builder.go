package witness

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/iden3/go-iden3-crypto/constants"

	"github.com/rollup-prover/prover-server/circuit"
	"github.com/rollup-prover/prover-server/common"
)

// Builder accumulates the witness of one block: it owns the account tree
// and ledger snapshot under mutation, replays operations against them and
// collects circuit operations, public data and fees.  It is ephemeral and
// single-use; a replay failure leaves it in an undefined state.
type Builder struct {
	tree       *circuit.AccountTree
	accounts   common.AccountMap
	feeAccount common.Idx
	blockNum   common.BlockNum

	initialRoot *big.Int
	operations  []CircuitOp
	pubdata     []byte
	fees        []common.CollectedFee

	rootAfterFees       *big.Int
	feeAccountBalances  map[common.TokenID]*big.Int
	feeAccountAuditPath []*big.Int
	feeAccountWitness   *circuit.Account
}

// NewBuilder binds a Builder to the tree and snapshot of the block being
// prepared.  The snapshot must be the one the tree was built from; the
// Builder takes ownership of both.
func NewBuilder(tree *circuit.AccountTree, accounts common.AccountMap,
	feeAccount common.Idx, blockNum common.BlockNum) *Builder {
	return &Builder{
		tree:        tree,
		accounts:    accounts,
		feeAccount:  feeAccount,
		blockNum:    blockNum,
		initialRoot: tree.Root(),
	}
}

// InitialRoot returns the tree root recorded at construction, before any
// operation was replayed
func (b *Builder) InitialRoot() *big.Int {
	return b.initialRoot
}

// BlockNum returns the block the Builder is bound to
func (b *Builder) BlockNum() common.BlockNum {
	return b.blockNum
}

// FeeAccount returns the fee account the Builder folds fees into
func (b *Builder) FeeAccount() common.Idx {
	return b.feeAccount
}

// ReplayOps replays the block operations in storage order, then appends the
// collected circuit operations and public data to the accumulator in one
// batch.  Order is significant: each operation mutates tree state consumed
// by the next one.
func (b *Builder) ReplayOps(ops []common.RollupOp) error {
	var circuitOps []CircuitOp
	var pubdata []byte
	for _, op := range ops {
		cops, pd, err := b.replayOne(op)
		if err != nil {
			return common.Wrap(err)
		}
		circuitOps = append(circuitOps, cops...)
		pubdata = append(pubdata, pd...)
	}
	b.operations = append(b.operations, circuitOps...)
	b.pubdata = append(b.pubdata, pubdata...)
	return nil
}

func (b *Builder) replayOne(op common.RollupOp) ([]CircuitOp, []byte, error) {
	switch o := op.(type) {
	case *common.Deposit:
		w, err := b.applyDeposit(o)
		if err != nil {
			return nil, nil, common.Wrap(err)
		}
		return deriveCircuitOps(o, w, nil)
	case *common.FullExit:
		w, err := b.applyFullExit(o)
		if err != nil {
			return nil, nil, common.Wrap(err)
		}
		return deriveCircuitOps(o, w, nil)
	case *common.Transfer:
		w, err := b.applyTransfer(o)
		if err != nil {
			return nil, nil, common.Wrap(err)
		}
		return b.deriveSigned(o, w)
	case *common.TransferToNew:
		w, err := b.applyTransferToNew(o)
		if err != nil {
			return nil, nil, common.Wrap(err)
		}
		return b.deriveSigned(o, w)
	case *common.Withdraw:
		w, err := b.applyWithdraw(o)
		if err != nil {
			return nil, nil, common.Wrap(err)
		}
		return b.deriveSigned(o, w)
	case *common.Close:
		w, err := b.applyClose(o)
		if err != nil {
			return nil, nil, common.Wrap(err)
		}
		return b.deriveSigned(o, w)
	case *common.ChangePubKey:
		w, err := b.applyChangePubKey(o)
		if err != nil {
			return nil, nil, common.Wrap(err)
		}
		return deriveCircuitOps(o, w, nil)
	case *common.Noop:
		// accounted for by the padding step only
		return nil, nil, nil
	default:
		return nil, nil, common.Invariant("unknown operation variant %T", op)
	}
}

// deriveSigned expands a signature-bearing operation: packs and validates
// the signature, derives the signature witness from the canonical signed
// encoding, and records the collected fee.
func (b *Builder) deriveSigned(op common.SignedOp, w *OpWitness) ([]CircuitOp, []byte, error) {
	packedSig, err := PackSignature(op.Signature())
	if err != nil {
		return nil, nil, common.Wrap(err)
	}
	sigBytes, err := op.SigBytes()
	if err != nil {
		return nil, nil, common.Wrap(err)
	}
	sig, err := PrepareSigData(packedSig, sigBytes, op.SignerPubKey())
	if err != nil {
		return nil, nil, common.Wrap(err)
	}
	ops, pubdata, err := deriveCircuitOps(op, w, sig)
	if err != nil {
		return nil, nil, common.Wrap(err)
	}
	b.fees = append(b.fees, op.Fee())
	return ops, pubdata, nil
}

// ExtendWithNoops pads the accumulated public data to exactly
// chunksPerBlock*ChunkBytes bytes and the circuit operations to exactly
// chunksPerBlock entries.  An overflow means the committed block geometry
// and the replayed operations disagree, which must never happen.
func (b *Builder) ExtendWithNoops(chunksPerBlock int) error {
	if len(b.operations) > chunksPerBlock {
		return common.Invariant("block %d holds %d circuit ops, capacity is %d",
			b.blockNum, len(b.operations), chunksPerBlock)
	}
	root := b.tree.Root()
	for len(b.operations) < chunksPerBlock {
		b.operations = append(b.operations, noopCircuitOp(root))
		b.pubdata = append(b.pubdata, make([]byte, common.ChunkBytes)...)
	}
	if len(b.operations) != chunksPerBlock ||
		len(b.pubdata) != chunksPerBlock*common.ChunkBytes {
		return common.Invariant("block %d padded to %d ops and %d pubdata bytes, want %d and %d",
			b.blockNum, len(b.operations), len(b.pubdata),
			chunksPerBlock, chunksPerBlock*common.ChunkBytes)
	}
	return nil
}

// CollectFees folds the fees withheld during replay into the fee account
// leaf and records the post-fee root, the fee account balances, its audit
// path and its account witness.
func (b *Builder) CollectFees() error {
	feeAccount, ok := b.accounts[b.feeAccount]
	if !ok {
		return common.Invariant("fee account %d not present in snapshot", b.feeAccount)
	}
	for _, fee := range b.fees {
		if fee.Amount == nil || fee.Amount.Sign() == 0 {
			continue
		}
		feeAccount.AddBalance(fee.Token, fee.Amount)
	}
	if _, err := b.tree.Set(feeAccount); err != nil {
		return common.Wrap(err)
	}

	b.rootAfterFees = b.tree.Root()
	b.feeAccountBalances = make(map[common.TokenID]*big.Int, len(feeAccount.Balances))
	for token, balance := range feeAccount.Balances {
		b.feeAccountBalances[token] = new(big.Int).Set(balance)
	}
	auditPath, err := b.tree.AuditPath(b.feeAccount)
	if err != nil {
		return common.Wrap(err)
	}
	b.feeAccountAuditPath = siblingsToWitness(auditPath.Siblings)
	witness, err := circuit.AccountFromLedger(feeAccount)
	if err != nil {
		return common.Wrap(err)
	}
	b.feeAccountWitness = witness
	return nil
}

// RootAfterFees returns the root recorded by CollectFees, nil before it ran
func (b *Builder) RootAfterFees() *big.Int {
	return b.rootAfterFees
}

// Operations returns the accumulated circuit operations
func (b *Builder) Operations() []CircuitOp {
	return b.operations
}

// Pubdata returns the accumulated public data stream
func (b *Builder) Pubdata() []byte {
	return b.pubdata
}

// FeeAccountBalances returns the post-fee balances recorded by CollectFees
func (b *Builder) FeeAccountBalances() map[common.TokenID]*big.Int {
	return b.feeAccountBalances
}

// FeeAccountAuditPath returns the post-fee audit path recorded by
// CollectFees
func (b *Builder) FeeAccountAuditPath() []*big.Int {
	return b.feeAccountAuditPath
}

// FeeAccountWitness returns the post-fee account witness recorded by
// CollectFees
func (b *Builder) FeeAccountWitness() *circuit.Account {
	return b.feeAccountWitness
}

// PubdataCommitment digests the padded public data stream together with the
// block number, the fee account and the surrounding roots into a single
// field element.
func (b *Builder) PubdataCommitment(oldRoot, newRoot *big.Int) *big.Int {
	h := sha256.New()
	var blockNumBytes [8]byte
	binary.BigEndian.PutUint64(blockNumBytes[:], uint64(b.blockNum))
	h.Write(blockNumBytes[:])
	var feeAccountBytes [8]byte
	binary.BigEndian.PutUint64(feeAccountBytes[:], uint64(b.feeAccount))
	h.Write(feeAccountBytes[:])
	var rootBytes [32]byte
	oldRoot.FillBytes(rootBytes[:])
	h.Write(rootBytes[:])
	newRoot.FillBytes(rootBytes[:])
	h.Write(rootBytes[:])
	h.Write(b.pubdata)

	digest := new(big.Int).SetBytes(h.Sum(nil))
	return digest.Mod(digest, constants.Q)
}
