package prover

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup-prover/prover-server/circuit"
	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/witness"
)

const testTreeDepth = 16

// mockStorage serves committed blocks, state diffs and operations from
// memory, replaying diffs over a genesis snapshot the way the history
// database replays account update rows.
type mockStorage struct {
	genesis common.AccountMap
	commits []*common.Operation
	diffs   map[common.BlockNum]common.StateDiff
	ops     map[common.BlockNum][]common.RollupOp
}

func (s *mockStorage) LoadUnverifiedCommitsAfterBlock(after common.BlockNum,
	limit int64) ([]*common.Operation, error) {
	var out []*common.Operation
	for _, c := range s.commits {
		if c.BlockNum() > after && int64(len(out)) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *mockStorage) LoadStateDiff(from, to common.BlockNum) (common.BlockNum,
	common.StateDiff, bool, error) {
	if from == to {
		return 0, nil, false, nil
	}
	var diff common.StateDiff
	for b := from + 1; b <= to; b++ {
		diff = append(diff, s.diffs[b]...)
	}
	if len(diff) == 0 {
		return 0, nil, false, nil
	}
	return to, diff, true, nil
}

func (s *mockStorage) LoadCommittedState(height common.BlockNum) (common.BlockNum,
	common.AccountMap, error) {
	accounts := s.genesis.Clone()
	for b := common.BlockNum(1); b <= height; b++ {
		accounts.ApplyUpdates(s.diffs[b])
	}
	return height, accounts, nil
}

func (s *mockStorage) GetBlockOperations(blockNum common.BlockNum) ([]common.RollupOp, error) {
	return s.ops[blockNum], nil
}

func maintainerSk(t *testing.T, seed byte) *babyjub.PrivateKey {
	var sk babyjub.PrivateKey
	keyHex := bytes.Repeat([]byte{'0', '0' + seed%10}, 32)
	_, err := hex.Decode(sk[:], keyHex)
	require.NoError(t, err)
	return &sk
}

func testGenesis(t *testing.T) common.AccountMap {
	genesis := make(common.AccountMap)
	genesis[0] = common.NewAccount(0)
	genesis[0].PubKey = maintainerSk(t, 9).Public().Compress()
	genesis[1] = common.NewAccount(1)
	genesis[1].PubKey = maintainerSk(t, 1).Public().Compress()
	genesis[1].SetBalance(0, big.NewInt(1000))
	return genesis
}

// replayExpected runs the witness pipeline over a clone of the pre-block
// state and returns the roots a consistent commit record would carry.
func replayExpected(t *testing.T, pre common.AccountMap, feeAccount common.Idx,
	blockNum common.BlockNum, ops []common.RollupOp, chunks int) (oldRoot, newRoot *big.Int) {
	accounts := pre.Clone()
	tree, err := circuit.TreeFromSnapshot(accounts, testTreeDepth)
	require.NoError(t, err)
	builder := witness.NewBuilder(tree, accounts, feeAccount, blockNum)
	require.NoError(t, builder.ReplayOps(ops))
	require.NoError(t, builder.ExtendWithNoops(chunks))
	require.NoError(t, builder.CollectFees())
	return builder.InitialRoot(), builder.RootAfterFees()
}

// testFixture is a two-block chain: a deposit creating account 3, then a
// signed transfer from account 1 to it.
func testFixture(t *testing.T) *mockStorage {
	genesis := testGenesis(t)
	addr := ethCommon.HexToAddress("0x74E803744B7EEFc272E852f89a05D41515d431f2")
	pk3 := maintainerSk(t, 3).Public().Compress()

	deposit := &common.Deposit{
		Account: 3, Token: 0, Amount: big.NewInt(100), PubKey: pk3, EthAddr: addr,
	}
	old1, new1 := replayExpected(t, genesis, 0, 1, []common.RollupOp{deposit}, 8)

	diff1 := common.StateDiff{{
		BlockNum: 1, Idx: 3, TokenID: 0,
		Balance: big.NewInt(100), PubKey: pk3, EthAddr: addr,
	}}
	state1 := genesis.Clone()
	state1.ApplyUpdates(diff1)

	sk1 := maintainerSk(t, 1)
	transfer := &common.Transfer{
		From: 1, To: 3, Token: 0,
		Amount:    big.NewInt(200),
		FeeAmount: big.NewInt(10),
		Nonce:     0,
		Sig:       sk1.SignPoseidon(big.NewInt(42)).Compress(),
		PubKey:    sk1.Public().Compress(),
	}
	old2, new2 := replayExpected(t, state1, 0, 2, []common.RollupOp{transfer}, 8)
	require.Equal(t, new1.String(), old2.String())

	return &mockStorage{
		genesis: genesis,
		commits: []*common.Operation{
			{Block: common.Block{Num: 1, FeeAccount: 0, OldRoot: old1,
				NewRoot: new1, Chunks: 8}},
			{Block: common.Block{Num: 2, FeeAccount: 0, OldRoot: old2,
				NewRoot: new2, Chunks: 8}},
		},
		diffs: map[common.BlockNum]common.StateDiff{1: diff1},
		ops: map[common.BlockNum][]common.RollupOp{
			1: {deposit},
			2: {transfer},
		},
	}
}

func newTestMaintainer(storage Storage, limit int64) *Maintainer {
	return NewMaintainer(storage, NewProversDataPool(limit), MaintainerConfig{
		TreeDepth:      testTreeDepth,
		ChunksPerBlock: 8,
	})
}

func TestBuildProverData(t *testing.T) {
	storage := testFixture(t)
	m := newTestMaintainer(storage, 10)

	pd, err := m.BuildProverData(storage.commits[0])
	require.NoError(t, err)

	block := storage.commits[0].Block
	assert.Equal(t, common.BlockNum(1), pd.BlockNum)
	assert.Equal(t, block.OldRoot.String(), pd.OldRoot.String())
	assert.Equal(t, block.NewRoot.String(), pd.NewRoot.String())
	assert.Equal(t, block.FeeAccount.BigInt(), pd.ValidatorAddress)
	assert.Len(t, pd.Operations, 8)
	require.NotNil(t, pd.PublicDataCommitment)
	require.NotNil(t, pd.ValidatorBalances)
	require.NotNil(t, pd.ValidatorAuditPath)
	require.NotNil(t, pd.ValidatorAccount)

	// the deposit fills its chunks, noops fill the rest
	assert.Equal(t, common.TxTypeDeposit, pd.Operations[0].Type)
	assert.Equal(t, common.TxTypeNoop, pd.Operations[7].Type)
}

func TestBuildProverDataRootMismatch(t *testing.T) {
	storage := testFixture(t)
	m := newTestMaintainer(storage, 10)

	tampered := *storage.commits[0]
	tampered.Block.NewRoot = new(big.Int).Add(tampered.Block.NewRoot, big.NewInt(1))

	_, err := m.BuildProverData(&tampered)
	require.Error(t, err)
	assert.True(t, common.IsInvariant(err))
}

func TestMaintainerCycle(t *testing.T) {
	storage := testFixture(t)
	m := newTestMaintainer(storage, 10)

	// first cycle loads both commits and prepares the lowest block
	require.NoError(t, m.cycle())
	assert.Equal(t, common.BlockNum(2), m.pool.LastLoaded())
	_, ok := m.pool.Get(1)
	assert.True(t, ok)
	_, ok = m.pool.Get(2)
	assert.False(t, ok)

	require.NoError(t, m.cycle())
	_, ok = m.pool.Get(2)
	assert.True(t, ok)
	assert.True(t, m.pool.AllPrepared())

	// nothing pending: further cycles are no-ops
	require.NoError(t, m.cycle())
}

func TestMaintainerCacheMatchesFullReload(t *testing.T) {
	storage := testFixture(t)

	// incremental: block 1 first, then block 2 through the diff path
	incremental := newTestMaintainer(storage, 10)
	_, err := incremental.BuildProverData(storage.commits[0])
	require.NoError(t, err)
	pdIncremental, err := incremental.BuildProverData(storage.commits[1])
	require.NoError(t, err)

	// fresh: block 2 straight from a full state load
	fresh := newTestMaintainer(storage, 10)
	pdFresh, err := fresh.BuildProverData(storage.commits[1])
	require.NoError(t, err)

	assert.Equal(t, pdFresh.OldRoot.String(), pdIncremental.OldRoot.String())
	assert.Equal(t, pdFresh.NewRoot.String(), pdIncremental.NewRoot.String())
	assert.Equal(t, pdFresh.PublicDataCommitment.String(),
		pdIncremental.PublicDataCommitment.String())
	assert.Len(t, pdIncremental.Operations, len(pdFresh.Operations))
}
