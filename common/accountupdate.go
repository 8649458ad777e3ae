package common

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/babyjub"
)

// AccountMap is the reconstructed ledger state: every existing account
// keyed by its tree index.
type AccountMap map[Idx]*Account

// Clone returns a deep copy of the AccountMap.  Cloning is explicit because
// accounts hold *big.Int balances that must not be shared between the cached
// snapshot and the copy being advanced.
func (m AccountMap) Clone() AccountMap {
	c := make(AccountMap, len(m))
	for idx, account := range m {
		c[idx] = account.Clone()
	}
	return c
}

// AccountUpdate represents one account mutation produced by a committed
// block: the resulting nonce, key material and the balance of one token.  A
// block emits one row per touched (account, token) pair, in replay order.
// Closed resets the account to the zero record; the leaf slot itself is
// never removed from the tree.
type AccountUpdate struct {
	ItemID   uint64                `meddler:"item_id,pk"`
	BlockNum BlockNum              `meddler:"block_num"`
	Idx      Idx                   `meddler:"idx"`
	TokenID  TokenID               `meddler:"token_id"`
	Nonce    Nonce                 `meddler:"nonce"`
	Balance  *big.Int              `meddler:"balance,bigint"`
	PubKey   babyjub.PublicKeyComp `meddler:"pub_key"`
	EthAddr  ethCommon.Address     `meddler:"eth_addr"`
	Closed   bool                  `meddler:"closed"`
}

// StateDiff is the ordered set of account mutations between two block
// heights.  Order matters: a later update to the same (account, token)
// supersedes an earlier one.
type StateDiff []AccountUpdate

// ApplyUpdates applies the diff mutations to the map in order, creating
// accounts on first sight and zeroing them on Closed entries.
func (m AccountMap) ApplyUpdates(updates StateDiff) {
	for i := range updates {
		upd := &updates[i]
		if upd.Closed {
			m[upd.Idx] = NewAccount(upd.Idx)
			continue
		}
		account, ok := m[upd.Idx]
		if !ok {
			account = NewAccount(upd.Idx)
			m[upd.Idx] = account
		}
		account.Nonce = upd.Nonce
		account.PubKey = upd.PubKey
		account.EthAddr = upd.EthAddr
		if upd.Balance != nil {
			account.SetBalance(upd.TokenID, upd.Balance)
		}
	}
}
