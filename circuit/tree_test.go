package circuit

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/log"
)

func init() {
	log.Init("debug", []string{"stdout"})
}

const testDepth = 16

func testAccount(t *testing.T, idx common.Idx, balance int64) *common.Account {
	var sk babyjub.PrivateKey
	_, err := hex.Decode(sk[:],
		[]byte("0001020304050607080900010203040506070809000102030405060708090001"))
	require.NoError(t, err)

	account := common.NewAccount(idx)
	account.PubKey = sk.Public().Compress()
	account.SetBalance(0, big.NewInt(balance))
	return account
}

func TestTreeSetAndRoot(t *testing.T) {
	tree, err := NewAccountTree(testDepth)
	require.NoError(t, err)
	emptyRoot := tree.Root()
	assert.Equal(t, big.NewInt(0).String(), emptyRoot.String())

	account := testAccount(t, 3, 1000)
	proof, err := tree.Set(account)
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.True(t, tree.Contains(3))

	rootAfterAdd := tree.Root()
	assert.NotEqual(t, emptyRoot, rootAfterAdd)

	// update moves the root again
	account.AddBalance(0, big.NewInt(1))
	_, err = tree.Set(account)
	require.NoError(t, err)
	assert.NotEqual(t, rootAfterAdd, tree.Root())
}

func TestTreeFromSnapshotDeterministic(t *testing.T) {
	accounts := make(common.AccountMap)
	for i := int64(1); i <= 5; i++ {
		accounts[common.Idx(i)] = testAccount(t, common.Idx(i), 100*i)
	}

	t1, err := TreeFromSnapshot(accounts, testDepth)
	require.NoError(t, err)
	t2, err := TreeFromSnapshot(accounts, testDepth)
	require.NoError(t, err)
	assert.Equal(t, t1.Root(), t2.Root())
}

func TestTreeSnapshotVsIncremental(t *testing.T) {
	accounts := make(common.AccountMap)
	for i := int64(1); i <= 4; i++ {
		accounts[common.Idx(i)] = testAccount(t, common.Idx(i), 100*i)
	}
	full, err := TreeFromSnapshot(accounts, testDepth)
	require.NoError(t, err)

	// inserting one by one in index order must land on the same root
	incremental, err := NewAccountTree(testDepth)
	require.NoError(t, err)
	for i := int64(1); i <= 4; i++ {
		_, err := incremental.Set(accounts[common.Idx(i)])
		require.NoError(t, err)
	}
	assert.Equal(t, full.Root(), incremental.Root())
}

func TestTreeAuditPath(t *testing.T) {
	accounts := make(common.AccountMap)
	for i := int64(1); i <= 3; i++ {
		accounts[common.Idx(i)] = testAccount(t, common.Idx(i), 100*i)
	}
	tree, err := TreeFromSnapshot(accounts, testDepth)
	require.NoError(t, err)

	proof, err := tree.AuditPath(2)
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.Equal(t, tree.Root().String(), proof.Root.BigInt().String())
	assert.LessOrEqual(t, len(proof.Siblings), testDepth+1)
}

func TestAccountFromLedger(t *testing.T) {
	account := testAccount(t, 3, 1000)
	circuitAccount, err := AccountFromLedger(account)
	require.NoError(t, err)
	assert.Equal(t, common.Idx(3), circuitAccount.Idx)
	require.NotNil(t, circuitAccount.Hash)

	hash, err := account.HashValue()
	require.NoError(t, err)
	assert.Equal(t, hash, circuitAccount.Hash)
}
