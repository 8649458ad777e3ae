package witness

import (
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"

	"github.com/rollup-prover/prover-server/common"
)

// sigMsgChunk is the byte width of each signature message field element
const sigMsgChunk = 31

// SigData is the signature witness of a signed operation: the three message
// digests the circuit consumes, the decomposed signature and the signer key
// expanded to bits.
type SigData struct {
	Msg1 *big.Int `json:"msg1"`
	Msg2 *big.Int `json:"msg2"`
	Msg3 *big.Int `json:"msg3"`

	R8x *big.Int `json:"r8x"`
	R8y *big.Int `json:"r8y"`
	S   *big.Int `json:"s"`

	SignerPubKeyBits [256]*big.Int `json:"signerPubKeyBits"`
}

// PackSignature validates a compressed signature and returns its packed
// byte form.  A signature whose R8 point does not decompress is rejected
// here, before any tree mutation is derived from it.
func PackSignature(sig babyjub.SignatureComp) ([]byte, error) {
	if _, err := sig.Decompress(); err != nil {
		return nil, common.Wrap(err)
	}
	packed := make([]byte, len(sig))
	copy(packed, sig[:])
	return packed, nil
}

// PrepareSigData derives the signature witness from a packed signature, the
// canonical signed byte encoding and the signer public key.
func PrepareSigData(packedSig []byte, sigMsg []byte,
	pubKey babyjub.PublicKeyComp) (*SigData, error) {
	var sigComp babyjub.SignatureComp
	if len(packedSig) != len(sigComp) {
		return nil, common.Wrap(common.ErrNumOverflow)
	}
	copy(sigComp[:], packedSig)
	sig, err := sigComp.Decompress()
	if err != nil {
		return nil, common.Wrap(err)
	}

	msgs, err := sigMsgElements(sigMsg)
	if err != nil {
		return nil, common.Wrap(err)
	}

	return &SigData{
		Msg1:             msgs[0],
		Msg2:             msgs[1],
		Msg3:             msgs[2],
		R8x:              sig.R8.X,
		R8y:              sig.R8.Y,
		S:                sig.S,
		SignerPubKeyBits: bjjCompressedTo256BigInts(pubKey),
	}, nil
}

// sigMsgElements splits the signed byte encoding into three field elements
// of sigMsgChunk bytes each, zero padded at the tail.
func sigMsgElements(msg []byte) ([3]*big.Int, error) {
	var elements [3]*big.Int
	if len(msg) > 3*sigMsgChunk {
		return elements, common.Wrap(common.ErrNumOverflow)
	}
	padded := make([]byte, 3*sigMsgChunk)
	copy(padded, msg)
	for i := 0; i < 3; i++ {
		elements[i] = new(big.Int).SetBytes(padded[i*sigMsgChunk : (i+1)*sigMsgChunk])
	}
	return elements, nil
}

// bjjCompressedTo256BigInts expands a compressed public key into its 256
// bits, one *big.Int (0 or 1) per bit, little endian within each byte.
func bjjCompressedTo256BigInts(pkComp babyjub.PublicKeyComp) [256]*big.Int {
	var bits [256]*big.Int

	for i := 0; i < 256; i++ {
		if pkComp[i/8]&(1<<(i%8)) == 0 {
			bits[i] = big.NewInt(0)
		} else {
			bits[i] = big.NewInt(1)
		}
	}

	return bits
}
