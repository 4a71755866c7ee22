package adaptor

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// dleqProof is a non-interactive Chaum-Pedersen proof that rHat and rCheck
// share the same discrete log k relative to bases G and Y respectively,
// i.e. rHat = k*G and rCheck = k*Y for the same k, without revealing k. This
// is what lets Verify check an EncryptedSignature without knowing y.
type dleqProof struct {
	// c is the Fiat-Shamir challenge.
	c *btcec.ModNScalar
	// z is the prover's response, t + c*k mod n.
	z *btcec.ModNScalar
}

var errDLEQFailed = errors.New("dleq: challenge mismatch")

// proveDLEQ proves that rHat = k*G and rCheck = k*Y for the same k.
func proveDLEQ(k *btcec.ModNScalar, rHat *secp256k1.BitcoinPublic, y *secp256k1.BitcoinPublic, rCheck *secp256k1.BitcoinPublic) (*dleqProof, error) {
	t, err := secp256k1.RandomScalar()
	if err != nil {
		return nil, err
	}

	t1 := secp256k1.ScalarBaseMult(t)
	t2 := secp256k1.ScalarMult(t, y)

	c, err := dleqChallenge(y, rHat, rCheck, t1, t2)
	if err != nil {
		return nil, err
	}

	// z = t + c*k mod n
	var ck btcec.ModNScalar
	ck.Set(c).Mul(k)
	var z btcec.ModNScalar
	z.Set(t).Add(&ck)

	return &dleqProof{c: c, z: &z}, nil
}

// verifyDLEQ checks a proof produced by proveDLEQ.
func verifyDLEQ(proof *dleqProof, rHat *secp256k1.BitcoinPublic, y *secp256k1.BitcoinPublic, rCheck *secp256k1.BitcoinPublic) error {
	if proof == nil {
		return errors.New("dleq: missing proof")
	}

	// T1' = z*G - c*rHat, T2' = z*Y - c*rCheck
	negC := new(btcec.ModNScalar).Set(proof.c).Negate()

	t1 := secp256k1.Add(secp256k1.ScalarBaseMult(proof.z), secp256k1.ScalarMult(negC, rHat))
	t2 := secp256k1.Add(secp256k1.ScalarMult(proof.z, y), secp256k1.ScalarMult(negC, rCheck))

	c, err := dleqChallenge(y, rHat, rCheck, t1, t2)
	if err != nil {
		return err
	}

	if !scalarEqual(c, proof.c) {
		return errDLEQFailed
	}
	return nil
}

func scalarEqual(a, b *btcec.ModNScalar) bool {
	var ab, bb [32]byte
	a.PutBytesUnchecked(ab[:])
	b.PutBytesUnchecked(bb[:])
	return bytes.Equal(ab[:], bb[:])
}

func dleqChallenge(y, rHat, rCheck, t1, t2 *secp256k1.BitcoinPublic) (*btcec.ModNScalar, error) {
	h := sha256.New()
	h.Write(secp256k1.ScalarBaseMult(new(btcec.ModNScalar).SetInt(1)).CompressedBytes())
	h.Write(y.CompressedBytes())
	h.Write(rHat.CompressedBytes())
	h.Write(rCheck.CompressedBytes())
	h.Write(t1.CompressedBytes())
	h.Write(t2.CompressedBytes())
	return secp256k1.NewScalarFromDigest(h.Sum(nil))
}
