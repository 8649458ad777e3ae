package common

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"
	cryptoUtils "github.com/iden3/go-iden3-crypto/utils"
)

// Idx represents the account index in the account tree
type Idx uint64

const (
	// NLeafElems is the number of elements of an account leaf
	NLeafElems = 4

	// IdxBytesLen idx bytes
	IdxBytesLen = 6

	// maxIdxValue is the maximum value that Idx can have (48 bits:
	// maxIdxValue=2**48-1)
	maxIdxValue = 0xffffffffffff
)

var (
	// FFAddr is used to check if an ethereum address is 0xff..ff
	FFAddr = ethCommon.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
	// EmptyAddr is used to check if an ethereum address is 0
	EmptyAddr = ethCommon.HexToAddress("0x0000000000000000000000000000000000000000")
)

// Bytes returns a byte array representing the Idx
func (idx Idx) Bytes() ([6]byte, error) {
	if idx > maxIdxValue {
		return [6]byte{}, Wrap(ErrIdxOverflow)
	}
	var idxBytes [8]byte
	binary.BigEndian.PutUint64(idxBytes[:], uint64(idx))
	var b [6]byte
	copy(b[:], idxBytes[2:])
	return b, nil
}

// IdxFromBytes returns Idx from a byte array
func IdxFromBytes(b []byte) (Idx, error) {
	if len(b) != IdxBytesLen {
		return 0, Wrap(fmt.Errorf("can not parse Idx, bytes len %d, expected %d",
			len(b), IdxBytesLen))
	}
	var idxBytes [8]byte
	copy(idxBytes[2:], b[:])
	idx := binary.BigEndian.Uint64(idxBytes[:])
	return Idx(idx), nil
}

// BigInt returns a *big.Int representing the Idx
func (idx Idx) BigInt() *big.Int {
	return big.NewInt(int64(idx))
}

// Account is the ledger record of a rollup account: balances per token,
// rollup public key, controlling ethereum address and nonce.  It is the data
// structure that generates the Value stored in the leaf of the account tree.
type Account struct {
	Idx      Idx                   `json:"idx"`
	PubKey   babyjub.PublicKeyComp `json:"pubKey"`
	EthAddr  ethCommon.Address     `json:"ethAddr"`
	Nonce    Nonce                 `json:"nonce"`
	Balances map[TokenID]*big.Int  `json:"balances"`
}

// NewAccount returns an Account with the balance map initialized
func NewAccount(idx Idx) *Account {
	return &Account{
		Idx:      idx,
		Balances: make(map[TokenID]*big.Int),
	}
}

// Balance returns the balance of the given token, 0 if the account never
// held it.  The returned value is a copy and can be mutated freely.
func (a *Account) Balance(token TokenID) *big.Int {
	if b, ok := a.Balances[token]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

// SetBalance replaces the balance of the given token
func (a *Account) SetBalance(token TokenID, balance *big.Int) {
	if a.Balances == nil {
		a.Balances = make(map[TokenID]*big.Int)
	}
	a.Balances[token] = new(big.Int).Set(balance)
}

// AddBalance adds delta (which may be negative) to the balance of the given
// token
func (a *Account) AddBalance(token TokenID, delta *big.Int) {
	a.SetBalance(token, new(big.Int).Add(a.Balance(token), delta))
}

// Clone returns a deep copy of the Account
func (a *Account) Clone() *Account {
	c := &Account{
		Idx:      a.Idx,
		PubKey:   a.PubKey,
		EthAddr:  a.EthAddr,
		Nonce:    a.Nonce,
		Balances: make(map[TokenID]*big.Int, len(a.Balances)),
	}
	for t, b := range a.Balances {
		c.Balances[t] = new(big.Int).Set(b)
	}
	return c
}

// TokenIDs returns the token identifiers held by the account in ascending
// order
func (a *Account) TokenIDs() []TokenID {
	tokens := make([]TokenID, 0, len(a.Balances))
	for t := range a.Balances {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens
}

// BalancesHash folds the per-token balances into a single field element by
// hashing (accumulator, tokenID, balance) triples in ascending token order.
// Zero balances contribute like any other entry so that the digest only
// depends on the map contents, not on the token insertion history.
func (a *Account) BalancesHash() (*big.Int, error) {
	h := big.NewInt(0)
	for _, t := range a.TokenIDs() {
		b := a.Balances[t]
		if !cryptoUtils.CheckBigIntInField(b) {
			return nil, Wrap(ErrNotInFF)
		}
		var err error
		h, err = poseidon.Hash([]*big.Int{h, t.BigInt(), b})
		if err != nil {
			return nil, Wrap(err)
		}
	}
	return h, nil
}

// BigInts returns the [4]*big.Int leaf representation of the Account, where
// each *big.Int is inside the Finite Field
func (a *Account) BigInts() ([NLeafElems]*big.Int, error) {
	e := [NLeafElems]*big.Int{}

	if a.Nonce > MaxNonceValue {
		return e, Wrap(fmt.Errorf("%s Nonce", ErrNumOverflow))
	}
	pkSign, pkY := babyjub.UnpackSignY(a.PubKey)

	// e0 = nonce (40 bits) | sign (1 bit, above the nonce)
	e0 := new(big.Int).SetUint64(uint64(a.Nonce))
	if pkSign {
		e0.SetBit(e0, 40, 1)
	}
	e[0] = e0

	balancesHash, err := a.BalancesHash()
	if err != nil {
		return e, Wrap(err)
	}
	e[1] = balancesHash

	if !cryptoUtils.CheckBigIntInField(pkY) {
		return e, Wrap(ErrNotInFF)
	}
	e[2] = pkY
	e[3] = new(big.Int).SetBytes(a.EthAddr.Bytes())

	return e, nil
}

// HashValue returns the value of the Account leaf, which is the Poseidon
// hash of its *big.Int representation
func (a *Account) HashValue() (*big.Int, error) {
	bi, err := a.BigInts()
	if err != nil {
		return nil, Wrap(err)
	}
	return poseidon.Hash(bi[:])
}
