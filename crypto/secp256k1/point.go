package secp256k1

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ScalarBaseMult returns k*G.
func ScalarBaseMult(k *btcec.ModNScalar) *BitcoinPublic {
	var result btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(k, &result)
	result.ToAffine()
	return &BitcoinPublic{key: btcec.NewPublicKey(&result.X, &result.Y)}
}

// ScalarMult returns k*P for an arbitrary point P.
func ScalarMult(k *btcec.ModNScalar, p *BitcoinPublic) *BitcoinPublic {
	var jp, result btcec.JacobianPoint
	p.key.AsJacobian(&jp)
	btcec.ScalarMultNonConst(k, &jp, &result)
	result.ToAffine()
	return &BitcoinPublic{key: btcec.NewPublicKey(&result.X, &result.Y)}
}

// Add returns a+b as curve points.
func Add(a, b *BitcoinPublic) *BitcoinPublic {
	var ja, jb, result btcec.JacobianPoint
	a.key.AsJacobian(&ja)
	b.key.AsJacobian(&jb)
	btcec.AddNonConst(&ja, &jb, &result)
	result.ToAffine()
	return &BitcoinPublic{key: btcec.NewPublicKey(&result.X, &result.Y)}
}

// XFieldToModNScalar reduces a point's affine X coordinate mod the group
// order n, as ECDSA's r component requires.
func XFieldToModNScalar(p *BitcoinPublic) *btcec.ModNScalar {
	var jp btcec.JacobianPoint
	p.key.AsJacobian(&jp)
	jp.ToAffine()

	var r btcec.ModNScalar
	r.SetByteSlice(jp.X.Bytes()[:])
	return &r
}

// NewScalarFromDigest reduces a 32-byte hash into a scalar mod n, as ECDSA's
// message-digest component e = H(m).
func NewScalarFromDigest(digest []byte) (*btcec.ModNScalar, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	var e btcec.ModNScalar
	e.SetByteSlice(digest)
	return &e, nil
}

// RandomScalar returns a uniformly random non-zero scalar mod n.
func RandomScalar() (*btcec.ModNScalar, error) {
	for {
		key, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, err
		}
		if !key.Key.IsZero() {
			return &key.Key, nil
		}
	}
}
