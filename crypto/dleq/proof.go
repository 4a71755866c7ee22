package dleq

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// edOrder is l, the order of the ed25519 prime-order subgroup. All scalar
// arithmetic in this package (blinding factors, nonces, challenges,
// responses) is carried out mod edOrder rather than mod the much larger
// secp256k1 order n: l < n, so any value reduced mod l is automatically a
// valid, non-wrapping secp256k1 scalar too, which is what lets a single
// blinding factor open a commitment on both curves at once.
var edOrder, _ = new(big.Int).SetString("1000000000000000000000000000000014def9dea2f79cd65812631a5cf5d3ed", 16)

// secpOrder is n, the secp256k1 group order, needed only to pre-reduce the
// published blinding-sum aggregate (which can exceed 32 bytes) before
// converting it to a ModNScalar.
var secpOrder, _ = new(big.Int).SetString(
	"FFFFFFFF"+"FFFFFFFF"+"FFFFFFFF"+"FFFFFFFE"+"BAAEDCE6"+"AF48A03B"+"BFD25E8C"+"D0364141", 16)

// Proof is a cross-curve discrete-log-equality proof: evidence that the
// same CrossCurveScalar is the discrete log of a secp256k1 point and an
// ed25519 point, without revealing the scalar.
type Proof struct {
	bits []bitCommitment
	// blindingSum is R = sum(2^i * r_i), the aggregate of the per-bit
	// Pedersen blinding factors, published so the verifier can check that
	// the bit commitments' weighted sum opens to the claimed public keys.
	// Revealing it leaks nothing about the bits themselves: it is an
	// independent random aggregate fixed before the bits were committed.
	blindingSum *big.Int
}

type bitCommitment struct {
	cSecp *secp256k1.BitcoinPublic
	cEd   *edwards25519.Point

	e0, e1         *big.Int
	z0Secp, z1Secp *big.Int
	z0Ed, z1Ed     *big.Int
}

// VerifyResult carries the two public points a verified proof attests are
// the same underlying scalar.
type VerifyResult struct {
	Secp256k1Public *secp256k1.BitcoinPublic
	Ed25519Public   *edwards25519.Point
}

var (
	secpG = secp256k1.ScalarBaseMult(new(btcec.ModNScalar).SetInt(1))
	edG   = edwards25519.NewGeneratorPoint()
)

// Prove proves that secret is the discrete log of both secret.Secp256k1Public()
// and secret.Ed25519Public(). transcript should bind the proof to the
// context it is used in (curve identifiers, the two public points, and any
// swap-specific identifiers) so a proof cannot be replayed against a
// mismatched pair of keys.
func Prove(secret *CrossCurveScalar, transcript []byte) (*Proof, error) {
	bits := make([]bitCommitment, NumBits)

	value := scalarToBigInt(secret)

	rs := make([]*big.Int, NumBits)
	for i := 0; i < NumBits; i++ {
		r, err := randMod(edOrder)
		if err != nil {
			return nil, err
		}
		rs[i] = r
	}

	blindingSum := new(big.Int)
	for i := 0; i < NumBits; i++ {
		b := value.Bit(i)
		bc, err := proveBit(int(b), rs[i], transcript, i)
		if err != nil {
			return nil, err
		}
		bits[i] = *bc

		weighted := new(big.Int).Lsh(rs[i], uint(i))
		blindingSum.Add(blindingSum, weighted)
	}

	return &Proof{bits: bits, blindingSum: blindingSum}, nil
}

func proveBit(b int, r *big.Int, transcript []byte, index int) (*bitCommitment, error) {
	cSecp := pedersenSecp(b, r)
	cEd := pedersenEd(b, r)

	other := 1 - b

	w, err := randMod(edOrder)
	if err != nil {
		return nil, err
	}
	eFake, err := randMod(edOrder)
	if err != nil {
		return nil, err
	}
	zFake, err := randMod(edOrder)
	if err != nil {
		return nil, err
	}

	aRealSecp := secp256k1.ScalarMult(bigToSecpScalar(w), secpNUMSGenerator)
	aRealEd := edScalarMult(bigToEdScalar(w), edNUMSGenerator)

	targetFakeSecp := bitTargetSecp(cSecp, other)
	targetFakeEd := bitTargetEd(cEd, other)
	aFakeSecp := secpPointSub(
		secp256k1.ScalarMult(bigToSecpScalar(zFake), secpNUMSGenerator),
		secp256k1.ScalarMult(bigToSecpScalar(eFake), targetFakeSecp),
	)
	aFakeEd := edPointSub(
		edScalarMult(bigToEdScalar(zFake), edNUMSGenerator),
		edScalarMult(bigToEdScalar(eFake), targetFakeEd),
	)

	var a0Secp, a1Secp *secp256k1.BitcoinPublic
	var a0Ed, a1Ed *edwards25519.Point
	if b == 0 {
		a0Secp, a1Secp = aRealSecp, aFakeSecp
		a0Ed, a1Ed = aRealEd, aFakeEd
	} else {
		a0Secp, a1Secp = aFakeSecp, aRealSecp
		a0Ed, a1Ed = aFakeEd, aRealEd
	}

	c := bitChallenge(transcript, index, a0Secp, a0Ed, a1Secp, a1Ed)

	var e0, e1, zReal *big.Int
	if b == 0 {
		e1 = eFake
		e0 = new(big.Int).Mod(new(big.Int).Sub(c, e1), edOrder)
		zReal = new(big.Int).Mod(new(big.Int).Add(w, new(big.Int).Mul(e0, r)), edOrder)
	} else {
		e0 = eFake
		e1 = new(big.Int).Mod(new(big.Int).Sub(c, e0), edOrder)
		zReal = new(big.Int).Mod(new(big.Int).Add(w, new(big.Int).Mul(e1, r)), edOrder)
	}

	bc := &bitCommitment{cSecp: cSecp, cEd: cEd, e0: e0, e1: e1}
	if b == 0 {
		bc.z0Secp, bc.z0Ed = zReal, zReal
		bc.z1Secp, bc.z1Ed = zFake, zFake
	} else {
		bc.z1Secp, bc.z1Ed = zReal, zReal
		bc.z0Secp, bc.z0Ed = zFake, zFake
	}

	return bc, nil
}

// Verify checks proof against the claimed points, and transcript (which
// must match what was passed to Prove).
func Verify(secpPoint *secp256k1.BitcoinPublic, edPoint *edwards25519.Point, proof *Proof, transcript []byte) (*VerifyResult, error) {
	if len(proof.bits) != NumBits {
		return nil, fmt.Errorf("dleq: proof has %d bits, want %d", len(proof.bits), NumBits)
	}

	var sumSecp *secp256k1.BitcoinPublic
	sumEd := edwards25519.NewIdentityPoint()

	for i, bc := range proof.bits {
		if err := verifyBit(&bc, transcript, i); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: %w", i, err)
		}

		coeff := new(big.Int).Lsh(big.NewInt(1), uint(i))
		term := secp256k1.ScalarMult(bigToSecpScalar(coeff), bc.cSecp)
		if sumSecp == nil {
			sumSecp = term
		} else {
			sumSecp = secp256k1.Add(sumSecp, term)
		}
		sumEd = new(edwards25519.Point).Add(sumEd, edScalarMult(bigToEdScalar(coeff), bc.cEd))
	}

	// sumSecp = K_secp + R*H_secp and sumEd = K_ed + R*H_ed by
	// construction of the Pedersen commitments; check both hold for the
	// claimed public keys and the published blinding aggregate R.
	rSecp := bigToSecpScalarRaw(proof.blindingSum)
	rEd := bigToEdScalar(proof.blindingSum)

	expectSecp := secp256k1.Add(secpPoint, secp256k1.ScalarMult(rSecp, secpNUMSGenerator))
	if expectSecp.String() != sumSecp.String() {
		return nil, errors.New("dleq: secp256k1 opening does not match claimed public key")
	}

	expectEd := new(edwards25519.Point).Add(edPoint, edScalarMult(rEd, edNUMSGenerator))
	if expectEd.Equal(sumEd) != 1 {
		return nil, errors.New("dleq: ed25519 opening does not match claimed public key")
	}

	return &VerifyResult{Secp256k1Public: secpPoint, Ed25519Public: edPoint}, nil
}

func verifyBit(bc *bitCommitment, transcript []byte, index int) error {
	a0Secp := secpPointSub(
		secp256k1.ScalarMult(bigToSecpScalar(bc.z0Secp), secpNUMSGenerator),
		secp256k1.ScalarMult(bigToSecpScalar(bc.e0), bitTargetSecp(bc.cSecp, 0)),
	)
	a1Secp := secpPointSub(
		secp256k1.ScalarMult(bigToSecpScalar(bc.z1Secp), secpNUMSGenerator),
		secp256k1.ScalarMult(bigToSecpScalar(bc.e1), bitTargetSecp(bc.cSecp, 1)),
	)
	a0Ed := edPointSub(
		edScalarMult(bigToEdScalar(bc.z0Ed), edNUMSGenerator),
		edScalarMult(bigToEdScalar(bc.e0), bitTargetEd(bc.cEd, 0)),
	)
	a1Ed := edPointSub(
		edScalarMult(bigToEdScalar(bc.z1Ed), edNUMSGenerator),
		edScalarMult(bigToEdScalar(bc.e1), bitTargetEd(bc.cEd, 1)),
	)

	c := bitChallenge(transcript, index, a0Secp, a0Ed, a1Secp, a1Ed)
	sum := new(big.Int).Mod(new(big.Int).Add(bc.e0, bc.e1), edOrder)
	if sum.Cmp(c) != 0 {
		return errors.New("challenge split does not match")
	}
	return nil
}

func bitTargetSecp(c *secp256k1.BitcoinPublic, j int) *secp256k1.BitcoinPublic {
	if j == 0 {
		return c
	}
	return secpPointSub(c, secpG)
}

func bitTargetEd(c *edwards25519.Point, j int) *edwards25519.Point {
	if j == 0 {
		return c
	}
	return edPointSub(c, edG)
}

func pedersenSecp(b int, r *big.Int) *secp256k1.BitcoinPublic {
	blinding := secp256k1.ScalarMult(bigToSecpScalar(r), secpNUMSGenerator)
	if b == 0 {
		return blinding
	}
	return secp256k1.Add(secpG, blinding)
}

func pedersenEd(b int, r *big.Int) *edwards25519.Point {
	blinding := edScalarMult(bigToEdScalar(r), edNUMSGenerator)
	if b == 0 {
		return blinding
	}
	return new(edwards25519.Point).Add(edG, blinding)
}

func bitChallenge(transcript []byte, index int, a0Secp *secp256k1.BitcoinPublic, a0Ed *edwards25519.Point, a1Secp *secp256k1.BitcoinPublic, a1Ed *edwards25519.Point) *big.Int {
	h := sha256.New()
	h.Write(transcript)
	var idxBuf [4]byte
	idxBuf[0] = byte(index)
	idxBuf[1] = byte(index >> 8)
	h.Write(idxBuf[:])
	h.Write(a0Secp.CompressedBytes())
	h.Write(a0Ed.Bytes())
	h.Write(a1Secp.CompressedBytes())
	h.Write(a1Ed.Bytes())
	digest := h.Sum(nil)
	return new(big.Int).Mod(new(big.Int).SetBytes(digest), edOrder)
}

func edScalarMult(s *edwards25519.Scalar, p *edwards25519.Point) *edwards25519.Point {
	return new(edwards25519.Point).ScalarMult(s, p)
}

func edPointSub(a, b *edwards25519.Point) *edwards25519.Point {
	return new(edwards25519.Point).Subtract(a, b)
}

func randMod(order *big.Int) (*big.Int, error) {
	return rand.Int(rand.Reader, order)
}

func scalarToBigInt(s *CrossCurveScalar) *big.Int {
	b := s.Ed25519Scalar().Bytes() // little-endian canonical
	return new(big.Int).SetBytes(reverse(b))
}

func bigToSecpScalar(x *big.Int) *btcec.ModNScalar {
	reduced := new(big.Int).Mod(x, edOrder)
	var s btcec.ModNScalar
	s.SetByteSlice(reduced.Bytes())
	return &s
}

// bigToSecpScalarRaw converts x to a secp256k1 scalar by reducing mod the
// secp256k1 group order (via ModNScalar.SetByteSlice's built-in reduction),
// rather than mod edOrder first. Used only for the blinding-sum opening
// check, where x can be far larger than edOrder.
func bigToSecpScalarRaw(x *big.Int) *btcec.ModNScalar {
	reduced := new(big.Int).Mod(x, secpOrder)
	var s btcec.ModNScalar
	s.SetByteSlice(reduced.Bytes())
	return &s
}

func bigToEdScalar(x *big.Int) *edwards25519.Scalar {
	reduced := new(big.Int).Mod(x, edOrder)
	var buf [32]byte
	reduced.FillBytes(buf[:])
	reverseInPlace(buf[:])
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(buf[:])
	if err != nil {
		// reduced is by construction < edOrder, so this cannot happen.
		panic(fmt.Sprintf("dleq: unreachable: %v", err))
	}
	return s
}
