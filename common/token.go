package common

import (
	"encoding/binary"
	"math/big"
)

// TokenID is the unique identifier of a token supported by the rollup, as
// registered in the smart contract
type TokenID uint16

// TokenIDBytesLen is the number of bytes of a serialized TokenID
const TokenIDBytesLen = 2

// Bytes returns a byte array of length 2 representing the TokenID
func (t TokenID) Bytes() []byte {
	var tokenIDBytes [2]byte
	binary.BigEndian.PutUint16(tokenIDBytes[:], uint16(t))
	return tokenIDBytes[:]
}

// BigInt returns the *big.Int representation of the TokenID
func (t TokenID) BigInt() *big.Int {
	return big.NewInt(int64(t))
}

// CollectedFee is a fee withheld from a signed operation, pending folding
// into the fee account once the whole block has been replayed.
type CollectedFee struct {
	Token  TokenID  `json:"token"`
	Amount *big.Int `json:"amount"`
}
