package common

import (
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubdataLengths(t *testing.T) {
	pubKey := testPubKey(t)
	addr := ethCommon.HexToAddress("0x74E803744B7EEFc272E852f89a05D41515d431f2")
	ops := []RollupOp{
		&Deposit{Account: 3, Token: 0, Amount: big.NewInt(100), PubKey: pubKey, EthAddr: addr},
		&FullExit{Account: 3, Token: 0, EthAddr: addr, PubKey: pubKey,
			WithdrawAmount: big.NewInt(100)},
		&Transfer{From: 1, To: 2, Token: 0, Amount: big.NewInt(300),
			FeeAmount: big.NewInt(10), Nonce: 1, PubKey: pubKey},
		&TransferToNew{From: 1, To: 7, Token: 0, Amount: big.NewInt(300),
			FeeAmount: big.NewInt(10), Nonce: 1, ToPubKey: pubKey, ToEthAddr: addr,
			PubKey: pubKey},
		&Withdraw{From: 1, Token: 0, Amount: big.NewInt(300), FeeAmount: big.NewInt(10),
			Nonce: 1, EthAddr: addr, PubKey: pubKey},
		&Close{Account: 1, Nonce: 2, PubKey: pubKey},
		&ChangePubKey{Account: 1, NewPubKey: pubKey, EthAddr: addr, Nonce: 3},
		&Noop{},
	}
	for _, op := range ops {
		pubdata, err := op.Pubdata()
		require.NoError(t, err, "op %s", op.Type())
		assert.Equal(t, op.Chunks()*ChunkBytes, len(pubdata), "op %s", op.Type())
	}
}

func TestPubdataEncodesFields(t *testing.T) {
	a := &Transfer{From: 1, To: 2, Token: 0, Amount: big.NewInt(300),
		FeeAmount: big.NewInt(10), Nonce: 1}
	b := &Transfer{From: 1, To: 2, Token: 0, Amount: big.NewInt(301),
		FeeAmount: big.NewInt(10), Nonce: 1}
	pa, err := a.Pubdata()
	require.NoError(t, err)
	pb, err := b.Pubdata()
	require.NoError(t, err)
	assert.NotEqual(t, pa, pb)
}

func TestSigBytesDeterministic(t *testing.T) {
	op := &Transfer{From: 1, To: 2, Token: 0, Amount: big.NewInt(300),
		FeeAmount: big.NewInt(10), Nonce: 1}
	b1, err := op.SigBytes()
	require.NoError(t, err)
	b2, err := op.SigBytes()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	op.Nonce = 2
	b3, err := op.SigBytes()
	require.NoError(t, err)
	assert.NotEqual(t, b1, b3)
}

func TestRollupOpsJSONRoundTrip(t *testing.T) {
	pubKey := testPubKey(t)
	addr := ethCommon.HexToAddress("0x74E803744B7EEFc272E852f89a05D41515d431f2")
	ops := []RollupOp{
		&Deposit{Account: 3, Token: 0, Amount: big.NewInt(100), PubKey: pubKey, EthAddr: addr},
		&Transfer{From: 1, To: 2, Token: 0, Amount: big.NewInt(300),
			FeeAmount: big.NewInt(10), Nonce: 1, PubKey: pubKey},
		&FullExit{Account: 3, Token: 0, EthAddr: addr, PubKey: pubKey},
		&Noop{},
	}
	b, err := RollupOpsToJSON(ops)
	require.NoError(t, err)
	decoded, err := RollupOpsFromJSON(b)
	require.NoError(t, err)
	require.Len(t, decoded, len(ops))
	for i := range ops {
		assert.Equal(t, ops[i].Type(), decoded[i].Type())
	}
	// the failed FullExit keeps its nil withdraw amount
	fullExit, ok := decoded[2].(*FullExit)
	require.True(t, ok)
	assert.Nil(t, fullExit.WithdrawAmount)
}

func TestFloat40RoundTrip(t *testing.T) {
	for _, amount := range []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(300),
		big.NewInt(1000000),
		new(big.Int).Mul(big.NewInt(12345), new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)),
	} {
		f40, err := NewFloat40(amount)
		require.NoError(t, err)
		back, err := f40.BigInt()
		require.NoError(t, err)
		assert.Equal(t, amount.String(), back.String())
	}
}
