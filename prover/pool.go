package prover

import (
	"sync"

	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/metric"
)

// DefaultPoolLimit is the look-ahead limit used when the configuration
// does not set one
const DefaultPoolLimit = 10

// ProversDataPool is the capacity-bounded in-memory store of loaded but
// unproven operations and prepared witness bundles, keyed by block number.
// One maintainer worker writes it; consumer request handlers read it and
// clean it up.  A single RWMutex mediates all access.
type ProversDataPool struct {
	rw sync.RWMutex

	// lastPrepared counts prepared blocks; lastLoaded is the highest
	// loaded block number.  With contiguous block numbering their
	// difference is the number of loaded-but-unprepared blocks.
	lastPrepared int64
	lastLoaded   common.BlockNum
	limit        int64

	operations map[common.BlockNum]*common.Operation
	prepared   map[common.BlockNum]*ProverData
}

// NewProversDataPool returns an empty pool with the given look-ahead
// limit, falling back to DefaultPoolLimit when limit is not positive.
func NewProversDataPool(limit int64) *ProversDataPool {
	if limit <= 0 {
		limit = DefaultPoolLimit
	}
	return &ProversDataPool{
		limit:      limit,
		operations: make(map[common.BlockNum]*common.Operation),
		prepared:   make(map[common.BlockNum]*ProverData),
	}
}

// Get returns the prepared witness bundle for the block, if present.  Read
// only, no side effects.
func (p *ProversDataPool) Get(blockNum common.BlockNum) (*ProverData, bool) {
	p.rw.RLock()
	defer p.rw.RUnlock()
	pd, ok := p.prepared[blockNum]
	return pd, ok
}

// CleanUp removes the prepared entry for the block once the consumer has
// retrieved it.  Removing an absent key is a no-op.
func (p *ProversDataPool) CleanUp(blockNum common.BlockNum) {
	p.rw.Lock()
	defer p.rw.Unlock()
	delete(p.prepared, blockNum)
}

// HasCapacity reports whether the pool may load further blocks.  Loaded
// but unprepared blocks and prepared but unconsumed bundles share one
// bounded window, so a lagging consumer also stalls loading.
func (p *ProversDataPool) HasCapacity() bool {
	p.rw.RLock()
	defer p.rw.RUnlock()
	return p.hasCapacity()
}

func (p *ProversDataPool) hasCapacity() bool {
	return int64(p.lastLoaded)-p.lastPrepared+int64(len(p.prepared)) < p.limit
}

// StoreToProve inserts an operation keyed by its block number and advances
// lastLoaded.  Callers must supply operations in increasing block order.
func (p *ProversDataPool) StoreToProve(op *common.Operation) {
	p.rw.Lock()
	defer p.rw.Unlock()
	p.storeToProve(op)
}

// StoreAllToProve inserts a batch of operations under one write lock
func (p *ProversDataPool) StoreAllToProve(ops []*common.Operation) {
	p.rw.Lock()
	defer p.rw.Unlock()
	for _, op := range ops {
		p.storeToProve(op)
	}
}

func (p *ProversDataPool) storeToProve(op *common.Operation) {
	blockNum := op.BlockNum()
	p.lastLoaded = blockNum
	p.operations[blockNum] = op
	metric.LoadedBlocks.Inc()
	metric.PoolPendingOps.Set(float64(len(p.operations)))
}

// TakeNextToProve removes and returns the pending operation with the
// smallest block number.  Calling it with nothing pending is a scheduling
// bug, reported as ErrInconsistentPool.
func (p *ProversDataPool) TakeNextToProve() (*common.Operation, error) {
	p.rw.Lock()
	defer p.rw.Unlock()
	if len(p.operations) == 0 {
		return nil, common.Wrap(common.ErrInconsistentPool)
	}
	var min common.BlockNum
	first := true
	for blockNum := range p.operations {
		if first || blockNum < min {
			min = blockNum
			first = false
		}
	}
	op := p.operations[min]
	delete(p.operations, min)
	metric.PoolPendingOps.Set(float64(len(p.operations)))
	return op, nil
}

// AllPrepared reports that nothing is left pending preparation.  The name
// is kept for continuity with the upstream pipeline; it does not say
// anything about the prepared map.
func (p *ProversDataPool) AllPrepared() bool {
	p.rw.RLock()
	defer p.rw.RUnlock()
	return len(p.operations) == 0
}

// MarkPrepared records a finished witness bundle: increments the prepared
// counter and publishes the bundle for consumers, atomically.
func (p *ProversDataPool) MarkPrepared(blockNum common.BlockNum, pd *ProverData) {
	p.rw.Lock()
	defer p.rw.Unlock()
	p.lastPrepared++
	p.prepared[blockNum] = pd
	metric.PreparedBlocks.Inc()
	metric.LastPreparedBlockNum.Set(float64(blockNum))
}

// LoadWindow snapshots the values the maintainer needs to fetch the next
// batch of commits, without holding the lock during the fetch itself.
func (p *ProversDataPool) LoadWindow() (after common.BlockNum, limit int64) {
	p.rw.RLock()
	defer p.rw.RUnlock()
	return p.lastLoaded, p.limit
}

// LastLoaded returns the highest loaded block number
func (p *ProversDataPool) LastLoaded() common.BlockNum {
	p.rw.RLock()
	defer p.rw.RUnlock()
	return p.lastLoaded
}

// Limit returns the look-ahead limit
func (p *ProversDataPool) Limit() int64 {
	return p.limit
}
