package prover

import (
	"fmt"
	"time"

	"github.com/rollup-prover/prover-server/circuit"
	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/log"
	"github.com/rollup-prover/prover-server/metric"
	"github.com/rollup-prover/prover-server/witness"
)

// accountState is the maintainer-private cache of the reconstructed ledger
// state at a height.  It is owned by one worker and never locked.
type accountState struct {
	height   common.BlockNum
	accounts common.AccountMap
}

// MaintainerConfig are the tuning knobs of the maintainer worker
type MaintainerConfig struct {
	// RoundsInterval is the sleep between maintenance cycles
	RoundsInterval time.Duration
	// TreeDepth is the depth of the account tree
	TreeDepth int
	// ChunksPerBlock is the block chunk capacity used when a commit
	// record does not carry its own
	ChunksPerBlock int
}

// Maintainer is the worker that keeps the pool filled: it loads committed
// but unproven blocks while capacity allows and prepares one pending
// block's witness per cycle.
type Maintainer struct {
	storage Storage
	pool    *ProversDataPool
	cfg     MaintainerConfig

	// lazily initialized on first use, advances monotonically
	state *accountState
}

// NewMaintainer binds a Maintainer to its storage and pool
func NewMaintainer(storage Storage, pool *ProversDataPool, cfg MaintainerConfig) *Maintainer {
	if cfg.TreeDepth <= 0 {
		cfg.TreeDepth = circuit.DefaultTreeDepth
	}
	return &Maintainer{
		storage: storage,
		pool:    pool,
		cfg:     cfg,
	}
}

// Start spawns the maintainer worker.  The worker has no cancellation: it
// runs until a cycle fails or panics, then reports on panicNotify and
// terminates, leaving restart policy to the supervising layer.
func (m *Maintainer) Start(panicNotify chan<- bool) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("maintainer worker panicked", "panic", r)
			}
			panicNotify <- true
		}()
		log.Infow("maintainer worker started",
			"roundsInterval", m.cfg.RoundsInterval,
			"poolLimit", m.pool.Limit())
		for {
			if err := m.cycle(); err != nil {
				metric.FailedBuilds.Inc()
				log.Errorw("maintainer cycle failed", "err", err)
				return
			}
			time.Sleep(m.cfg.RoundsInterval)
		}
	}()
}

func (m *Maintainer) cycle() error {
	if m.pool.HasCapacity() {
		if err := m.takeNextCommits(); err != nil {
			return common.Wrap(err)
		}
	}
	if err := m.prepareNext(); err != nil {
		return common.Wrap(err)
	}
	return nil
}

// takeNextCommits loads the next committed-but-unverified blocks into the
// pool.  The pool lock is only held to snapshot the load window and to
// insert the results; the storage fetch runs unlocked.
func (m *Maintainer) takeNextCommits() error {
	after, limit := m.pool.LoadWindow()
	ops, err := m.storage.LoadUnverifiedCommitsAfterBlock(after, limit)
	if err != nil {
		return common.Wrap(err)
	}
	if len(ops) == 0 {
		return nil
	}
	m.pool.StoreAllToProve(ops)
	log.Debugw("loaded commits into pool", "count", len(ops),
		"after", after, "lastLoaded", m.pool.LastLoaded())
	return nil
}

// prepareNext prepares the witness of the lowest-numbered pending block,
// if any.
func (m *Maintainer) prepareNext() error {
	if m.pool.AllPrepared() {
		return nil
	}
	op, err := m.pool.TakeNextToProve()
	if err != nil {
		return common.Wrap(err)
	}
	pd, err := m.BuildProverData(op)
	if err != nil {
		return common.Wrap(err)
	}
	m.pool.MarkPrepared(op.BlockNum(), pd)
	log.Infow("prepared witness data", "block", op.BlockNum())
	return nil
}

// BuildProverData reconstructs the pre-block state, replays the block's
// operations against a freshly built account tree and assembles the
// witness bundle.  Any failure is fatal for the block and the worker.
func (m *Maintainer) BuildProverData(op *common.Operation) (*ProverData, error) {
	blockNum := op.Block.Num
	defer metric.MeasureDuration(metric.BuildProverData, time.Now(),
		blockNum.BigInt().String())

	if err := m.updateAccountState(blockNum - 1); err != nil {
		return nil, common.Wrap(err)
	}
	tree, accounts, err := m.buildAccountTree()
	if err != nil {
		return nil, common.Wrap(err)
	}

	builder := witness.NewBuilder(tree, accounts, op.Block.FeeAccount, blockNum)
	initialRoot := builder.InitialRoot()

	ops, err := m.storage.GetBlockOperations(blockNum)
	if err != nil {
		return nil, common.Wrap(err)
	}
	if err := builder.ReplayOps(ops); err != nil {
		return nil, common.Wrap(err)
	}

	chunks := op.Block.Chunks
	if chunks <= 0 {
		chunks = m.cfg.ChunksPerBlock
	}
	if err := builder.ExtendWithNoops(chunks); err != nil {
		return nil, common.Wrap(err)
	}
	if err := builder.CollectFees(); err != nil {
		return nil, common.Wrap(err)
	}

	rootAfterFees := builder.RootAfterFees()
	if op.Block.NewRoot == nil || rootAfterFees.Cmp(op.Block.NewRoot) != 0 {
		return nil, common.Invariant(
			"block %d root after fees %s does not match committed root %v",
			blockNum, rootAfterFees, op.Block.NewRoot)
	}
	if builder.FeeAccountBalances() == nil || builder.FeeAccountAuditPath() == nil ||
		builder.FeeAccountWitness() == nil {
		return nil, common.Invariant(
			"block %d fee folding left validator witness unpopulated", blockNum)
	}

	return &ProverData{
		BlockNum:             blockNum,
		PublicDataCommitment: builder.PubdataCommitment(initialRoot, op.Block.NewRoot),
		OldRoot:              initialRoot,
		NewRoot:              op.Block.NewRoot,
		ValidatorAddress:     op.Block.FeeAccount.BigInt(),
		Operations:           builder.Operations(),
		ValidatorBalances:    builder.FeeAccountBalances(),
		ValidatorAuditPath:   builder.FeeAccountAuditPath(),
		ValidatorAccount:     builder.FeeAccountWitness(),
	}, nil
}

// updateAccountState advances the cached ledger state to the target
// height: a full load on first use, an incremental diff afterwards.  A
// missing diff (equal heights or nothing pending) leaves the cache as is.
func (m *Maintainer) updateAccountState(target common.BlockNum) error {
	if m.state == nil {
		height, accounts, err := m.storage.LoadCommittedState(target)
		if err != nil {
			return common.Wrap(err)
		}
		if height != target {
			return common.Wrap(fmt.Errorf(
				"storage returned state at height %d, requested %d", height, target))
		}
		m.state = &accountState{height: height, accounts: accounts}
		metric.CacheHeight.Set(float64(height))
		log.Debugw("account state cache initialized",
			"height", height, "accounts", len(accounts))
		return nil
	}

	height, diff, ok, err := m.storage.LoadStateDiff(m.state.height, target)
	if err != nil {
		return common.Wrap(err)
	}
	if !ok {
		return nil
	}
	accounts := m.state.accounts.Clone()
	accounts.ApplyUpdates(diff)
	m.state = &accountState{height: height, accounts: accounts}
	metric.CacheHeight.Set(float64(height))
	log.Debugw("account state cache advanced",
		"height", height, "updates", len(diff))
	return nil
}

// buildAccountTree rebuilds the account tree from the cached snapshot.
// The snapshot is cloned first so that replay mutations never touch the
// cache.  An uninitialized cache here is a scheduling bug.
func (m *Maintainer) buildAccountTree() (*circuit.AccountTree, common.AccountMap, error) {
	if m.state == nil {
		return nil, nil, common.Invariant("account state cache not initialized")
	}
	accounts := m.state.accounts.Clone()
	tree, err := circuit.TreeFromSnapshot(accounts, m.cfg.TreeDepth)
	if err != nil {
		return nil, nil, common.Wrap(err)
	}
	return tree, accounts, nil
}
