package adaptor

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// encryptedSignatureSize is rHat (33) + rCheck (33) + sHat (32) + the
// embedded dleqProof's c and z (32 each).
const encryptedSignatureSize = 33 + 33 + 32 + 32 + 32

// Bytes serializes the adaptor signature for transmission in Message3
// (tx_refund_encsig) and Message4 (tx_redeem_encsig).
func (e *EncryptedSignature) Bytes() []byte {
	buf := make([]byte, 0, encryptedSignatureSize)
	buf = append(buf, e.rHat.CompressedBytes()...)
	buf = append(buf, e.rCheck.CompressedBytes()...)
	buf = appendScalar(buf, e.sHat)
	buf = appendScalar(buf, e.proof.c)
	buf = appendScalar(buf, e.proof.z)
	return buf
}

func appendScalar(buf []byte, s *btcec.ModNScalar) []byte {
	var b [32]byte
	s.PutBytesUnchecked(b[:])
	return append(buf, b[:]...)
}

// EncryptedSignatureFromBytes parses an adaptor signature serialized by
// EncryptedSignature.Bytes.
func EncryptedSignatureFromBytes(data []byte) (*EncryptedSignature, error) {
	if len(data) != encryptedSignatureSize {
		return nil, fmt.Errorf("adaptor: encrypted signature must be %d bytes, got %d", encryptedSignatureSize, len(data))
	}

	rHat, err := secp256k1.NewBitcoinPublicFromBytes(data[0:33])
	if err != nil {
		return nil, fmt.Errorf("adaptor: invalid rHat: %w", err)
	}
	rCheck, err := secp256k1.NewBitcoinPublicFromBytes(data[33:66])
	if err != nil {
		return nil, fmt.Errorf("adaptor: invalid rCheck: %w", err)
	}

	var sHat, c, z btcec.ModNScalar
	sHat.SetByteSlice(data[66:98])
	c.SetByteSlice(data[98:130])
	z.SetByteSlice(data[130:162])

	return &EncryptedSignature{
		rHat:   rHat,
		rCheck: rCheck,
		sHat:   &sHat,
		proof:  &dleqProof{c: &c, z: &z},
	}, nil
}
