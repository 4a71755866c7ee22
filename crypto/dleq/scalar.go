// Package dleq proves, across two different elliptic-curve groups, that a
// single scalar is simultaneously the discrete log of a known secp256k1
// point and a known ed25519 point. Alice and Bob each generate one
// CrossCurveScalar (their Monero spend-key share, s_a or s_b) and must
// convince the other, before any funds move, that the Bitcoin key they are
// about to rely on for the adaptor signature and the Monero key share they
// are about to rely on for the joint spend key are the same underlying
// secret.
//
// The construction follows the "ring of rings" idea behind Borromean ring
// signatures (G. Maxwell): each bit of the scalar is committed on both
// curves with the same blinding factor, and proved open to 0-or-1 with a
// disjunctive Schnorr proof whose two branches are forced to share a single
// Fiat-Shamir challenge split across both curves. A cheating prover who
// committed different bit values on the two curves cannot simulate both
// curves' proofs for the same ring position without already knowing a
// discrete log they do not have.
package dleq

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// NumBits is the number of bits a CrossCurveScalar is restricted to. 2^252
// is below both the secp256k1 order (~2^256) and the ed25519 group order
// l (2^252 plus a 125-bit term), so a value in [0, 2^NumBits) is always a valid
// scalar on both curves with no reduction ambiguity.
const NumBits = 252

// CrossCurveScalar is a scalar usable as a private key on both secp256k1
// and ed25519: Alice's and Bob's Monero spend-key shares, s_a and s_b.
type CrossCurveScalar struct {
	secp *btcec.ModNScalar
	ed   *edwards25519.Scalar
}

// GenerateCrossCurveScalar generates a new random CrossCurveScalar.
func GenerateCrossCurveScalar() (*CrossCurveScalar, error) {
	b := make([]byte, NumBits/8+1)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	// clear the top 4 bits of the last byte so the value fits in NumBits
	// bits (252 = 31*8 + 4).
	b[len(b)-1] &= 0x0f
	return NewCrossCurveScalar(b)
}

// NewCrossCurveScalar builds a CrossCurveScalar from a little-endian byte
// slice no wider than NumBits bits.
func NewCrossCurveScalar(little []byte) (*CrossCurveScalar, error) {
	v := new(big.Int).SetBytes(reverse(little))
	limit := new(big.Int).Lsh(big.NewInt(1), NumBits)
	if v.Sign() < 0 || v.Cmp(limit) >= 0 {
		return nil, fmt.Errorf("cross-curve scalar exceeds %d bits", NumBits)
	}

	var edBuf [32]byte
	v.FillBytes(edBuf[:])
	reverseInPlace(edBuf[:]) // big.Int is big-endian; edwards25519 wants little-endian
	edScalar, err := new(edwards25519.Scalar).SetCanonicalBytes(edBuf[:])
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 scalar: %w", err)
	}

	var secpScalar btcec.ModNScalar
	secpScalar.SetByteSlice(v.Bytes())

	return &CrossCurveScalar{secp: &secpScalar, ed: edScalar}, nil
}

// Secp256k1Scalar returns the secp256k1 representative of the scalar.
func (s *CrossCurveScalar) Secp256k1Scalar() *btcec.ModNScalar {
	return s.secp
}

// Ed25519Scalar returns the ed25519 representative of the scalar.
func (s *CrossCurveScalar) Ed25519Scalar() *edwards25519.Scalar {
	return s.ed
}

// Secp256k1Public returns K = s*G on secp256k1.
func (s *CrossCurveScalar) Secp256k1Public() *secp256k1.BitcoinPublic {
	return secp256k1.ScalarBaseMult(s.secp)
}

// Ed25519Public returns K = s*B on ed25519.
func (s *CrossCurveScalar) Ed25519Public() *edwards25519.Point {
	return new(edwards25519.Point).ScalarBaseMult(s.ed)
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func reverseInPlace(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
