package common

import (
	"encoding/json"
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/babyjub"
)

// TxType is the kind of a rollup ledger operation
type TxType string

const (
	// TxTypeNoop fills unused block chunks
	TxTypeNoop TxType = "Noop"
	// TxTypeDeposit credits an account from an L1 priority request
	TxTypeDeposit TxType = "Deposit"
	// TxTypeTransferToNew moves funds to a not-yet-existing account,
	// creating its leaf
	TxTypeTransferToNew TxType = "TransferToNew"
	// TxTypeWithdraw burns rollup funds and releases them on L1
	TxTypeWithdraw TxType = "Withdraw"
	// TxTypeClose removes an emptied account leaf
	TxTypeClose TxType = "Close"
	// TxTypeTransfer moves funds between two existing accounts
	TxTypeTransfer TxType = "Transfer"
	// TxTypeFullExit drains an account from an L1 priority request
	TxTypeFullExit TxType = "FullExit"
	// TxTypeChangePubKey rotates the rollup key of an account
	TxTypeChangePubKey TxType = "ChangePubKey"
)

// ChunkBytes is the public data width of one block chunk
const ChunkBytes = 64

// Chunk counts per operation type.  The committed block reserves this many
// chunks per operation; public data is zero-padded to the chunk boundary.
const (
	NoopChunks          = 1
	DepositChunks       = 6
	TransferToNewChunks = 5
	WithdrawChunks      = 6
	CloseChunks         = 1
	TransferChunks      = 2
	FullExitChunks      = 6
	ChangePubKeyChunks  = 6
)

// Operation codes, first byte of each operation's public data.
const (
	opCodeNoop byte = iota
	opCodeDeposit
	opCodeTransferToNew
	opCodeWithdraw
	opCodeClose
	opCodeTransfer
	opCodeFullExit
	opCodeChangePubKey
)

// RollupOp is the closed union of ledger operations a committed block can
// contain.  The set is sealed: every variant lives in this package and the
// witness dispatcher switches over all of them, treating anything else as a
// correctness bug.
type RollupOp interface {
	// Type returns the operation kind
	Type() TxType
	// Chunks returns the number of block chunks the operation occupies
	Chunks() int
	// Pubdata returns the operation's public data, zero-padded to
	// Chunks()*ChunkBytes bytes
	Pubdata() ([]byte, error)

	isRollupOp()
}

// SignedOp is implemented by the signature-bearing variants (Transfer,
// TransferToNew, Withdraw, Close).  The witness pipeline needs the packed
// signature, the signer key and the canonical signed byte encoding to derive
// the signature witness data, plus the fee the operation pays.
type SignedOp interface {
	RollupOp
	// SigBytes returns the canonical byte encoding the sender signed
	SigBytes() ([]byte, error)
	// Signature returns the compressed signature of SigBytes
	Signature() babyjub.SignatureComp
	// SignerPubKey returns the compressed public key of the signer
	SignerPubKey() babyjub.PublicKeyComp
	// Fee returns the fee collected from the operation
	Fee() CollectedFee
}

// Deposit credits Account with Amount of Token, creating the leaf with the
// given key material if it does not exist yet.
type Deposit struct {
	Account Idx                   `json:"account"`
	Token   TokenID               `json:"token"`
	Amount  *big.Int              `json:"amount"`
	PubKey  babyjub.PublicKeyComp `json:"pubKey"`
	EthAddr ethCommon.Address     `json:"ethAddr"`
}

// FullExit drains the full balance of Token from Account.  WithdrawAmount
// is the drained balance, nil when the exit failed upstream (unknown
// account or zero balance); success is defined by its presence.
type FullExit struct {
	Account        Idx                   `json:"account"`
	Token          TokenID               `json:"token"`
	EthAddr        ethCommon.Address     `json:"ethAddr"`
	PubKey         babyjub.PublicKeyComp `json:"pubKey"`
	WithdrawAmount *big.Int              `json:"withdrawAmount"`
}

// Transfer moves Amount of Token from From to the existing account To,
// paying FeeAmount to the block's fee account.
type Transfer struct {
	From      Idx                   `json:"from"`
	To        Idx                   `json:"to"`
	Token     TokenID               `json:"token"`
	Amount    *big.Int              `json:"amount"`
	FeeAmount *big.Int              `json:"fee"`
	Nonce     Nonce                 `json:"nonce"`
	Sig       babyjub.SignatureComp `json:"sig"`
	PubKey    babyjub.PublicKeyComp `json:"pubKey"`
}

// TransferToNew moves Amount of Token from From to the new account To,
// creating its leaf with the given key material.
type TransferToNew struct {
	From      Idx                   `json:"from"`
	To        Idx                   `json:"to"`
	Token     TokenID               `json:"token"`
	Amount    *big.Int              `json:"amount"`
	FeeAmount *big.Int              `json:"fee"`
	Nonce     Nonce                 `json:"nonce"`
	ToPubKey  babyjub.PublicKeyComp `json:"toPubKey"`
	ToEthAddr ethCommon.Address     `json:"toEthAddr"`
	Sig       babyjub.SignatureComp `json:"sig"`
	PubKey    babyjub.PublicKeyComp `json:"pubKey"`
}

// Withdraw burns Amount of Token from From, to be released to EthAddr.
type Withdraw struct {
	From      Idx                   `json:"from"`
	Token     TokenID               `json:"token"`
	Amount    *big.Int              `json:"amount"`
	FeeAmount *big.Int              `json:"fee"`
	Nonce     Nonce                 `json:"nonce"`
	EthAddr   ethCommon.Address     `json:"ethAddr"`
	Sig       babyjub.SignatureComp `json:"sig"`
	PubKey    babyjub.PublicKeyComp `json:"pubKey"`
}

// Close removes the (already emptied) Account leaf.
type Close struct {
	Account Idx                   `json:"account"`
	Nonce   Nonce                 `json:"nonce"`
	Sig     babyjub.SignatureComp `json:"sig"`
	PubKey  babyjub.PublicKeyComp `json:"pubKey"`
}

// ChangePubKey rotates the rollup key of Account.  Authorization happened
// on L1, so it carries no rollup signature.
type ChangePubKey struct {
	Account   Idx                   `json:"account"`
	NewPubKey babyjub.PublicKeyComp `json:"newPubKey"`
	EthAddr   ethCommon.Address     `json:"ethAddr"`
	Nonce     Nonce                 `json:"nonce"`
}

// Noop occupies one chunk and touches nothing.
type Noop struct{}

func (*Deposit) isRollupOp()       {}
func (*FullExit) isRollupOp()      {}
func (*Transfer) isRollupOp()      {}
func (*TransferToNew) isRollupOp() {}
func (*Withdraw) isRollupOp()      {}
func (*Close) isRollupOp()         {}
func (*ChangePubKey) isRollupOp()  {}
func (*Noop) isRollupOp()          {}

// Type implementations

// Type returns TxTypeDeposit
func (*Deposit) Type() TxType { return TxTypeDeposit }

// Type returns TxTypeFullExit
func (*FullExit) Type() TxType { return TxTypeFullExit }

// Type returns TxTypeTransfer
func (*Transfer) Type() TxType { return TxTypeTransfer }

// Type returns TxTypeTransferToNew
func (*TransferToNew) Type() TxType { return TxTypeTransferToNew }

// Type returns TxTypeWithdraw
func (*Withdraw) Type() TxType { return TxTypeWithdraw }

// Type returns TxTypeClose
func (*Close) Type() TxType { return TxTypeClose }

// Type returns TxTypeChangePubKey
func (*ChangePubKey) Type() TxType { return TxTypeChangePubKey }

// Type returns TxTypeNoop
func (*Noop) Type() TxType { return TxTypeNoop }

// Chunks implementations

// Chunks returns the chunks occupied by a Deposit
func (*Deposit) Chunks() int { return DepositChunks }

// Chunks returns the chunks occupied by a FullExit
func (*FullExit) Chunks() int { return FullExitChunks }

// Chunks returns the chunks occupied by a Transfer
func (*Transfer) Chunks() int { return TransferChunks }

// Chunks returns the chunks occupied by a TransferToNew
func (*TransferToNew) Chunks() int { return TransferToNewChunks }

// Chunks returns the chunks occupied by a Withdraw
func (*Withdraw) Chunks() int { return WithdrawChunks }

// Chunks returns the chunks occupied by a Close
func (*Close) Chunks() int { return CloseChunks }

// Chunks returns the chunks occupied by a ChangePubKey
func (*ChangePubKey) Chunks() int { return ChangePubKeyChunks }

// Chunks returns the chunks occupied by a Noop
func (*Noop) Chunks() int { return NoopChunks }

// padToChunks zero-pads b to exactly chunks*ChunkBytes bytes
func padToChunks(b []byte, chunks int) ([]byte, error) {
	size := chunks * ChunkBytes
	if len(b) > size {
		return nil, Wrap(fmt.Errorf("pubdata %d bytes exceeds %d chunks", len(b), chunks))
	}
	padded := make([]byte, size)
	copy(padded, b)
	return padded, nil
}

// amount16 returns the 16 byte big endian encoding of a full (unpacked)
// amount, as used by the L1-originated operations
func amount16(a *big.Int) ([]byte, error) {
	if a == nil {
		a = big.NewInt(0)
	}
	if len(a.Bytes()) > 16 {
		return nil, Wrap(fmt.Errorf("%s amount", ErrNumOverflow))
	}
	var b [16]byte
	a.FillBytes(b[:])
	return b[:], nil
}

// Pubdata implementations.  Layout: opcode byte, fixed-width fields, zero
// padding to the chunk boundary.  L1-originated amounts are full 16 byte
// integers; signed operation amounts and fees are Float40 packed.

// Pubdata returns the Deposit public data
func (op *Deposit) Pubdata() ([]byte, error) {
	idx, err := op.Account.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	amount, err := amount16(op.Amount)
	if err != nil {
		return nil, Wrap(err)
	}
	b := []byte{opCodeDeposit}
	b = append(b, idx[:]...)
	b = append(b, op.Token.Bytes()...)
	b = append(b, amount...)
	b = append(b, op.EthAddr.Bytes()...)
	b = append(b, op.PubKey[:]...)
	return padToChunks(b, DepositChunks)
}

// Pubdata returns the FullExit public data.  A failed exit encodes a zero
// withdraw amount.
func (op *FullExit) Pubdata() ([]byte, error) {
	idx, err := op.Account.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	amount, err := amount16(op.WithdrawAmount)
	if err != nil {
		return nil, Wrap(err)
	}
	b := []byte{opCodeFullExit}
	b = append(b, idx[:]...)
	b = append(b, op.EthAddr.Bytes()...)
	b = append(b, op.Token.Bytes()...)
	b = append(b, amount...)
	return padToChunks(b, FullExitChunks)
}

// Pubdata returns the Transfer public data
func (op *Transfer) Pubdata() ([]byte, error) {
	from, err := op.From.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	to, err := op.To.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	amount, err := packedAmountBytes(op.Amount)
	if err != nil {
		return nil, Wrap(err)
	}
	fee, err := packedAmountBytes(op.FeeAmount)
	if err != nil {
		return nil, Wrap(err)
	}
	b := []byte{opCodeTransfer}
	b = append(b, from[:]...)
	b = append(b, op.Token.Bytes()...)
	b = append(b, to[:]...)
	b = append(b, amount...)
	b = append(b, fee...)
	return padToChunks(b, TransferChunks)
}

// Pubdata returns the TransferToNew public data
func (op *TransferToNew) Pubdata() ([]byte, error) {
	from, err := op.From.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	to, err := op.To.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	amount, err := packedAmountBytes(op.Amount)
	if err != nil {
		return nil, Wrap(err)
	}
	fee, err := packedAmountBytes(op.FeeAmount)
	if err != nil {
		return nil, Wrap(err)
	}
	b := []byte{opCodeTransferToNew}
	b = append(b, from[:]...)
	b = append(b, op.Token.Bytes()...)
	b = append(b, amount...)
	b = append(b, op.ToPubKey[:]...)
	b = append(b, to[:]...)
	b = append(b, op.ToEthAddr.Bytes()...)
	b = append(b, fee...)
	return padToChunks(b, TransferToNewChunks)
}

// Pubdata returns the Withdraw public data
func (op *Withdraw) Pubdata() ([]byte, error) {
	from, err := op.From.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	amount, err := amount16(op.Amount)
	if err != nil {
		return nil, Wrap(err)
	}
	fee, err := packedAmountBytes(op.FeeAmount)
	if err != nil {
		return nil, Wrap(err)
	}
	b := []byte{opCodeWithdraw}
	b = append(b, from[:]...)
	b = append(b, op.Token.Bytes()...)
	b = append(b, amount...)
	b = append(b, fee...)
	b = append(b, op.EthAddr.Bytes()...)
	return padToChunks(b, WithdrawChunks)
}

// Pubdata returns the Close public data
func (op *Close) Pubdata() ([]byte, error) {
	idx, err := op.Account.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	b := []byte{opCodeClose}
	b = append(b, idx[:]...)
	return padToChunks(b, CloseChunks)
}

// Pubdata returns the ChangePubKey public data
func (op *ChangePubKey) Pubdata() ([]byte, error) {
	idx, err := op.Account.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	nonce, err := op.Nonce.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	b := []byte{opCodeChangePubKey}
	b = append(b, idx[:]...)
	b = append(b, op.NewPubKey[:]...)
	b = append(b, op.EthAddr.Bytes()...)
	b = append(b, nonce[:]...)
	return padToChunks(b, ChangePubKeyChunks)
}

// Pubdata returns the Noop public data: one zero chunk
func (*Noop) Pubdata() ([]byte, error) {
	return make([]byte, NoopChunks*ChunkBytes), nil
}

// packedAmountBytes encodes an amount as a 5 byte Float40
func packedAmountBytes(a *big.Int) ([]byte, error) {
	if a == nil {
		a = big.NewInt(0)
	}
	f40, err := NewFloat40(a)
	if err != nil {
		return nil, Wrap(err)
	}
	return f40.Bytes()
}

// SignedOp implementations

// SigBytes returns the canonical Transfer encoding the sender signed
func (op *Transfer) SigBytes() ([]byte, error) {
	return signedOpBytes(opCodeTransfer, op.From, op.To, op.Token, op.Amount,
		op.FeeAmount, op.Nonce, nil)
}

// Signature returns the Transfer signature
func (op *Transfer) Signature() babyjub.SignatureComp { return op.Sig }

// SignerPubKey returns the sender public key
func (op *Transfer) SignerPubKey() babyjub.PublicKeyComp { return op.PubKey }

// Fee returns the Transfer fee
func (op *Transfer) Fee() CollectedFee {
	return CollectedFee{Token: op.Token, Amount: feeOrZero(op.FeeAmount)}
}

// SigBytes returns the canonical TransferToNew encoding the sender signed
func (op *TransferToNew) SigBytes() ([]byte, error) {
	return signedOpBytes(opCodeTransferToNew, op.From, op.To, op.Token, op.Amount,
		op.FeeAmount, op.Nonce, op.ToEthAddr.Bytes())
}

// Signature returns the TransferToNew signature
func (op *TransferToNew) Signature() babyjub.SignatureComp { return op.Sig }

// SignerPubKey returns the sender public key
func (op *TransferToNew) SignerPubKey() babyjub.PublicKeyComp { return op.PubKey }

// Fee returns the TransferToNew fee
func (op *TransferToNew) Fee() CollectedFee {
	return CollectedFee{Token: op.Token, Amount: feeOrZero(op.FeeAmount)}
}

// SigBytes returns the canonical Withdraw encoding the sender signed
func (op *Withdraw) SigBytes() ([]byte, error) {
	return signedOpBytes(opCodeWithdraw, op.From, 0, op.Token, op.Amount,
		op.FeeAmount, op.Nonce, op.EthAddr.Bytes())
}

// Signature returns the Withdraw signature
func (op *Withdraw) Signature() babyjub.SignatureComp { return op.Sig }

// SignerPubKey returns the sender public key
func (op *Withdraw) SignerPubKey() babyjub.PublicKeyComp { return op.PubKey }

// Fee returns the Withdraw fee
func (op *Withdraw) Fee() CollectedFee {
	return CollectedFee{Token: op.Token, Amount: feeOrZero(op.FeeAmount)}
}

// SigBytes returns the canonical Close encoding the sender signed
func (op *Close) SigBytes() ([]byte, error) {
	return signedOpBytes(opCodeClose, op.Account, 0, 0, nil, nil, op.Nonce, nil)
}

// Signature returns the Close signature
func (op *Close) Signature() babyjub.SignatureComp { return op.Sig }

// SignerPubKey returns the closing account public key
func (op *Close) SignerPubKey() babyjub.PublicKeyComp { return op.PubKey }

// Fee returns the (zero) Close fee
func (op *Close) Fee() CollectedFee {
	return CollectedFee{Token: 0, Amount: big.NewInt(0)}
}

func feeOrZero(fee *big.Int) *big.Int {
	if fee == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(fee)
}

// signedOpBytes builds the canonical signed encoding shared by the
// signature-bearing operations: opcode, from, to, token, packed amount,
// packed fee, nonce and an optional trailing field.
func signedOpBytes(code byte, from, to Idx, token TokenID, amount,
	fee *big.Int, nonce Nonce, extra []byte) ([]byte, error) {
	fromBytes, err := from.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	toBytes, err := to.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	amountBytes, err := packedAmountBytes(amount)
	if err != nil {
		return nil, Wrap(err)
	}
	feeBytes, err := packedAmountBytes(fee)
	if err != nil {
		return nil, Wrap(err)
	}
	nonceBytes, err := nonce.Bytes()
	if err != nil {
		return nil, Wrap(err)
	}
	b := []byte{code}
	b = append(b, fromBytes[:]...)
	b = append(b, toBytes[:]...)
	b = append(b, token.Bytes()...)
	b = append(b, amountBytes...)
	b = append(b, feeBytes...)
	b = append(b, nonceBytes[:]...)
	b = append(b, extra...)
	return b, nil
}

// rollupOpEnvelope tags a serialized operation with its type so that the
// heterogeneous op list survives a JSON round trip.
type rollupOpEnvelope struct {
	Type TxType          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RollupOpToJSON serializes one operation as its JSON payload next to its
// type tag
func RollupOpToJSON(op RollupOp) (TxType, []byte, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return "", nil, Wrap(err)
	}
	return op.Type(), data, nil
}

// RollupOpFromJSON deserializes one operation from its type tag and JSON
// payload
func RollupOpFromJSON(txType TxType, data []byte) (RollupOp, error) {
	var op RollupOp
	switch txType {
	case TxTypeDeposit:
		op = &Deposit{}
	case TxTypeFullExit:
		op = &FullExit{}
	case TxTypeTransfer:
		op = &Transfer{}
	case TxTypeTransferToNew:
		op = &TransferToNew{}
	case TxTypeWithdraw:
		op = &Withdraw{}
	case TxTypeClose:
		op = &Close{}
	case TxTypeChangePubKey:
		op = &ChangePubKey{}
	case TxTypeNoop:
		op = &Noop{}
	default:
		return nil, Wrap(fmt.Errorf("unknown operation type %q", txType))
	}
	if err := json.Unmarshal(data, op); err != nil {
		return nil, Wrap(err)
	}
	return op, nil
}

// RollupOpsToJSON serializes a heterogeneous operation list
func RollupOpsToJSON(ops []RollupOp) ([]byte, error) {
	envelopes := make([]rollupOpEnvelope, len(ops))
	for i, op := range ops {
		txType, data, err := RollupOpToJSON(op)
		if err != nil {
			return nil, Wrap(err)
		}
		envelopes[i] = rollupOpEnvelope{Type: txType, Data: data}
	}
	b, err := json.Marshal(envelopes)
	return b, Wrap(err)
}

// RollupOpsFromJSON deserializes an operation list produced by
// RollupOpsToJSON
func RollupOpsFromJSON(b []byte) ([]RollupOp, error) {
	var envelopes []rollupOpEnvelope
	if err := json.Unmarshal(b, &envelopes); err != nil {
		return nil, Wrap(err)
	}
	ops := make([]RollupOp, len(envelopes))
	for i, envelope := range envelopes {
		op, err := RollupOpFromJSON(envelope.Type, envelope.Data)
		if err != nil {
			return nil, Wrap(err)
		}
		ops[i] = op
	}
	return ops, nil
}
