package secp256k1

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestScalarBaseMultMatchesGeneratedKey(t *testing.T) {
	sk, err := GenerateBitcoinSecret()
	require.NoError(t, err)

	derived := ScalarBaseMult(sk.Scalar())
	require.Equal(t, sk.Public().String(), derived.String())
}

func TestAddIsCommutative(t *testing.T) {
	a, err := GenerateBitcoinSecret()
	require.NoError(t, err)
	b, err := GenerateBitcoinSecret()
	require.NoError(t, err)

	ab := Add(a.Public(), b.Public())
	ba := Add(b.Public(), a.Public())
	require.Equal(t, ab.String(), ba.String())
}

func TestScalarMultDistributesOverAdd(t *testing.T) {
	a, err := GenerateBitcoinSecret()
	require.NoError(t, err)
	b, err := GenerateBitcoinSecret()
	require.NoError(t, err)
	k, err := RandomScalar()
	require.NoError(t, err)

	lhs := ScalarMult(k, Add(a.Public(), b.Public()))
	rhs := Add(ScalarMult(k, a.Public()), ScalarMult(k, b.Public()))
	require.Equal(t, lhs.String(), rhs.String())
}

func TestRandomScalarNonZero(t *testing.T) {
	s, err := RandomScalar()
	require.NoError(t, err)
	require.False(t, s.IsZero())
}

func TestNewScalarFromDigestRejectsWrongLength(t *testing.T) {
	_, err := NewScalarFromDigest([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestXFieldToModNScalarDeterministic(t *testing.T) {
	sk, err := GenerateBitcoinSecret()
	require.NoError(t, err)
	r1 := XFieldToModNScalar(sk.Public())
	r2 := XFieldToModNScalar(sk.Public())
	var b1, b2 [32]byte
	r1.PutBytesUnchecked(b1[:])
	r2.PutBytesUnchecked(b2[:])
	require.Equal(t, b1, b2)
}

func TestScalarBaseMultIdentityScalarIsGenerator(t *testing.T) {
	one := new(btcec.ModNScalar).SetInt(1)
	g := ScalarBaseMult(one)
	require.NotNil(t, g)
	require.Equal(t, "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798", g.String())
}
