package prover

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/log"
)

func init() {
	log.Init("debug", []string{"stdout"})
}

func opForBlock(num common.BlockNum) *common.Operation {
	return &common.Operation{Block: common.Block{Num: num}}
}

func TestPoolDefaultLimit(t *testing.T) {
	assert.Equal(t, int64(DefaultPoolLimit), NewProversDataPool(0).Limit())
	assert.Equal(t, int64(DefaultPoolLimit), NewProversDataPool(-3).Limit())
	assert.Equal(t, int64(7), NewProversDataPool(7).Limit())
}

func TestPoolCapacityWindow(t *testing.T) {
	pool := NewProversDataPool(2)
	assert.True(t, pool.HasCapacity())

	pool.StoreToProve(opForBlock(1))
	assert.True(t, pool.HasCapacity())
	pool.StoreToProve(opForBlock(2))
	assert.False(t, pool.HasCapacity())

	// preparing a block does not free the window while the bundle sits
	// unconsumed: loaded-but-unprepared and prepared-but-unconsumed share it
	op, err := pool.TakeNextToProve()
	require.NoError(t, err)
	pool.MarkPrepared(op.BlockNum(), &ProverData{BlockNum: op.BlockNum()})
	assert.False(t, pool.HasCapacity())

	// only consumption does
	pool.CleanUp(op.BlockNum())
	assert.True(t, pool.HasCapacity())
}

func TestPoolTakeNextOrder(t *testing.T) {
	pool := NewProversDataPool(10)
	pool.StoreAllToProve([]*common.Operation{
		opForBlock(5), opForBlock(6), opForBlock(7),
	})
	assert.Equal(t, common.BlockNum(7), pool.LastLoaded())

	for want := common.BlockNum(5); want <= 7; want++ {
		op, err := pool.TakeNextToProve()
		require.NoError(t, err)
		assert.Equal(t, want, op.BlockNum())
	}

	_, err := pool.TakeNextToProve()
	require.Error(t, err)
	assert.Equal(t, common.ErrInconsistentPool, common.Unwrap(err))
}

func TestPoolAllPrepared(t *testing.T) {
	pool := NewProversDataPool(10)
	assert.True(t, pool.AllPrepared())

	pool.StoreToProve(opForBlock(1))
	assert.False(t, pool.AllPrepared())

	_, err := pool.TakeNextToProve()
	require.NoError(t, err)
	assert.True(t, pool.AllPrepared())
}

func TestPoolGetAndCleanUp(t *testing.T) {
	pool := NewProversDataPool(10)

	_, ok := pool.Get(1)
	assert.False(t, ok)

	pool.MarkPrepared(1, &ProverData{BlockNum: 1})
	pd, ok := pool.Get(1)
	require.True(t, ok)
	assert.Equal(t, common.BlockNum(1), pd.BlockNum)

	pool.CleanUp(1)
	_, ok = pool.Get(1)
	assert.False(t, ok)

	// removing an absent key is a no-op
	pool.CleanUp(1)
	pool.CleanUp(99)
}

func TestPoolLoadWindow(t *testing.T) {
	pool := NewProversDataPool(4)
	after, limit := pool.LoadWindow()
	assert.Equal(t, common.BlockNum(0), after)
	assert.Equal(t, int64(4), limit)

	pool.StoreAllToProve([]*common.Operation{opForBlock(1), opForBlock(2)})
	after, limit = pool.LoadWindow()
	assert.Equal(t, common.BlockNum(2), after)
	assert.Equal(t, int64(4), limit)
}

func TestPoolRandomizedModel(t *testing.T) {
	const limit = 4
	pool := NewProversDataPool(limit)
	rnd := rand.New(rand.NewSource(1))

	// shadow model of the pool counters
	var lastLoaded, lastPrepared int64
	pending := make(map[common.BlockNum]bool)
	prepared := make(map[common.BlockNum]bool)

	next := common.BlockNum(1)
	for step := 0; step < 500; step++ {
		switch rnd.Intn(3) {
		case 0: // load, when the window allows
			if lastLoaded-lastPrepared+int64(len(prepared)) < limit {
				pool.StoreToProve(opForBlock(next))
				pending[next] = true
				lastLoaded = int64(next)
				next++
			}
		case 1: // prepare the lowest pending block
			if len(pending) > 0 {
				op, err := pool.TakeNextToProve()
				require.NoError(t, err)
				require.True(t, pending[op.BlockNum()])
				delete(pending, op.BlockNum())
				pool.MarkPrepared(op.BlockNum(), &ProverData{BlockNum: op.BlockNum()})
				prepared[op.BlockNum()] = true
				lastPrepared++
			}
		case 2: // consume one prepared bundle
			for blockNum := range prepared {
				pool.CleanUp(blockNum)
				delete(prepared, blockNum)
				break
			}
		}

		wantCapacity := lastLoaded-lastPrepared+int64(len(prepared)) < limit
		require.Equal(t, wantCapacity, pool.HasCapacity(), "step %d", step)
		require.Equal(t, len(pending) == 0, pool.AllPrepared(), "step %d", step)
		for blockNum := range prepared {
			_, ok := pool.Get(blockNum)
			require.True(t, ok, "step %d block %d", step, blockNum)
		}
	}
}

func TestPoolDrainRefillSequence(t *testing.T) {
	pool := NewProversDataPool(3)

	next := common.BlockNum(1)
	load := func(n int) {
		ops := make([]*common.Operation, 0, n)
		for i := 0; i < n && pool.HasCapacity(); i++ {
			ops = append(ops, opForBlock(next))
			next++
		}
		pool.StoreAllToProve(ops)
	}

	load(3)
	assert.False(t, pool.HasCapacity())

	// prepare everything pending; window stays exhausted
	for !pool.AllPrepared() {
		op, err := pool.TakeNextToProve()
		require.NoError(t, err)
		pool.MarkPrepared(op.BlockNum(), &ProverData{BlockNum: op.BlockNum()})
	}
	assert.False(t, pool.HasCapacity())

	// consuming two bundles opens two slots
	pool.CleanUp(1)
	pool.CleanUp(2)
	assert.True(t, pool.HasCapacity())
	load(2)
	assert.Equal(t, common.BlockNum(5), pool.LastLoaded())
	assert.False(t, pool.HasCapacity())
}
