// Package adaptor implements ECDSA adaptor signatures: a ciphertext over a
// message that, together with an encryption point Y = y*G, is verifiable by
// anyone, decryptable into a valid ECDSA signature by the holder of y, and
// extractable back into y by anyone who later observes the decrypted
// signature. This is the primitive that couples publication of Bob's
// TxRedeem signature to disclosure of Alice's Monero spend-key share.
//
// There is no widely-used Go library for this construction (the reference
// xmr-btc-swap implementation uses the Rust ecdsa_fun crate), so it is
// written from scratch here on top of btcec/v2's exported scalar and
// Jacobian-point primitives, following the same scheme: the ciphertext
// carries an auxiliary same-curve discrete-log-equality proof binding the
// "plain" nonce commitment to the "encrypted" one, which is what makes
// verification possible without knowing y.
package adaptor

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// EncryptedSignature is an ECDSA adaptor ciphertext over a message digest m,
// under signing key k and encryption point Y = y*G.
type EncryptedSignature struct {
	// rHat is the "plain" nonce commitment, k*G.
	rHat *secp256k1.BitcoinPublic
	// rCheck is the "encrypted" nonce commitment, k*Y.
	rCheck *secp256k1.BitcoinPublic
	// sHat is the adaptor scalar: k^-1 * (e + r*x) mod n, where r is
	// derived from rCheck's x-coordinate.
	sHat *btcec.ModNScalar
	// proof demonstrates that rHat and rCheck share the same discrete
	// log k relative to bases G and Y respectively.
	proof *dleqProof
}

var (
	// ErrZeroEncryptionPoint is returned when Y == 0; such a point would
	// make decryption and extraction meaningless.
	ErrZeroEncryptionPoint = errors.New("adaptor: encryption point must not be the identity")
	// ErrInvalidProof is returned when the embedded same-curve DLEQ proof
	// fails to verify.
	ErrInvalidProof = errors.New("adaptor: embedded proof is invalid")
	// ErrZeroR is returned in the vanishingly unlikely event the derived
	// r component is zero; callers should retry with fresh randomness.
	ErrZeroR = errors.New("adaptor: derived r is zero, retry signing")
	// ErrNotLinked is returned by Recover when sig and encsig do not
	// decrypt/extract consistently.
	ErrNotLinked = errors.New("adaptor: signature and ciphertext are not linked")
)

// EncSign computes an adaptor signature over digest under signing key sk,
// encrypted to point Y.
func EncSign(sk *secp256k1.BitcoinSecret, y *secp256k1.BitcoinPublic, digest []byte) (*EncryptedSignature, error) {
	if isIdentity(y) {
		return nil, ErrZeroEncryptionPoint
	}

	e, err := secp256k1.NewScalarFromDigest(digest)
	if err != nil {
		return nil, err
	}

	k, err := secp256k1.RandomScalar()
	if err != nil {
		return nil, err
	}

	rHat := secp256k1.ScalarBaseMult(k)
	rCheck := secp256k1.ScalarMult(k, y)

	r := secp256k1.XFieldToModNScalar(rCheck)
	if r.IsZero() {
		return nil, ErrZeroR
	}

	proof, err := proveDLEQ(k, rHat, y, rCheck)
	if err != nil {
		return nil, err
	}

	// sHat = k^-1 * (e + r*x) mod n
	x := sk.Scalar()
	var rx btcec.ModNScalar
	rx.Set(r).Mul(x)
	var sum btcec.ModNScalar
	sum.Set(e).Add(&rx)

	kInv := new(btcec.ModNScalar).Set(k).InverseNonConst()
	var sHat btcec.ModNScalar
	sHat.Set(kInv).Mul(&sum)

	return &EncryptedSignature{
		rHat:   rHat,
		rCheck: rCheck,
		sHat:   &sHat,
		proof:  proof,
	}, nil
}

// Verify checks that encsig is a well-formed adaptor signature over digest
// under public key pk, encrypted to point Y.
func Verify(pk *secp256k1.BitcoinPublic, y *secp256k1.BitcoinPublic, digest []byte, encsig *EncryptedSignature) error {
	if isIdentity(y) {
		return ErrZeroEncryptionPoint
	}

	if err := verifyDLEQ(encsig.proof, encsig.rHat, y, encsig.rCheck); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}

	e, err := secp256k1.NewScalarFromDigest(digest)
	if err != nil {
		return err
	}

	r := secp256k1.XFieldToModNScalar(encsig.rCheck)
	if r.IsZero() {
		return ErrZeroR
	}

	// check: sHat^-1 * (e*G + r*pk) == rHat
	sInv := new(btcec.ModNScalar).Set(encsig.sHat).InverseNonConst()

	eG := secp256k1.ScalarBaseMult(e)
	rPK := secp256k1.ScalarMult(r, pk)
	sum := secp256k1.Add(eG, rPK)

	candidate := secp256k1.ScalarMult(sInv, sum)
	if candidate.String() != encsig.rHat.String() {
		return errors.New("adaptor: signature equation does not hold")
	}

	return nil
}

// Decrypt uses the secp256k1 scalar form of a cross-curve secret y to
// recover a valid ECDSA signature on the message encsig was encrypted
// under.
func Decrypt(y *btcec.ModNScalar, encsig *EncryptedSignature) (*secp256k1.Signature, error) {
	if y.IsZero() {
		return nil, ErrZeroEncryptionPoint
	}

	r := secp256k1.XFieldToModNScalar(encsig.rCheck)
	if r.IsZero() {
		return nil, ErrZeroR
	}

	yInv := new(btcec.ModNScalar).Set(y).InverseNonConst()
	s := new(btcec.ModNScalar).Set(encsig.sHat).Mul(yInv)

	// ECDSA signatures are conventionally normalized to low-S form.
	if s.IsOverHalfOrder() {
		s.Negate()
	}

	return secp256k1.NewSignature(r, s), nil
}

// Recover extracts the encryption scalar y from a decrypted signature and
// the encrypted signature it was decrypted from. It fails if sig was not
// produced by decrypting encsig.
func Recover(y *secp256k1.BitcoinPublic, sig *secp256k1.Signature, encsig *EncryptedSignature) (*btcec.ModNScalar, error) {
	sInv := new(btcec.ModNScalar).Set(sig.S()).InverseNonConst()
	candidate := new(btcec.ModNScalar).Set(encsig.sHat).Mul(sInv)

	// also check the negated candidate, since Decrypt may have flipped
	// the sign of s to normalize to low-S form.
	for _, cand := range []*btcec.ModNScalar{candidate, new(btcec.ModNScalar).Set(candidate).Negate()} {
		if secp256k1.ScalarBaseMult(cand).String() == y.String() {
			return cand, nil
		}
	}

	return nil, ErrNotLinked
}

func isIdentity(p *secp256k1.BitcoinPublic) bool {
	return p == nil || p.Point() == nil
}
