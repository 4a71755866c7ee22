package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeysAndProofVerifies(t *testing.T) {
	keys, err := GenerateKeysAndProof([]byte("swap-1:alice"))
	require.NoError(t, err)

	pub := keys.PublicKeyPair()
	err = VerifyDLEQ([]byte("swap-1:alice"), keys.Secret.Secp256k1Public(), pub.SpendKey(), keys.Proof)
	require.NoError(t, err)
}

func TestVerifyDLEQRejectsWrongTranscript(t *testing.T) {
	keys, err := GenerateKeysAndProof([]byte("swap-1:alice"))
	require.NoError(t, err)

	pub := keys.PublicKeyPair()
	err = VerifyDLEQ([]byte("swap-1:bob"), keys.Secret.Secp256k1Public(), pub.SpendKey(), keys.Proof)
	require.Error(t, err)
}

func TestAliceAndBobTranscriptsAreDistinct(t *testing.T) {
	aliceKeys, err := GenerateKeysAndProof([]byte("swap-1:alice"))
	require.NoError(t, err)
	bobKeys, err := GenerateKeysAndProof([]byte("swap-1:bob"))
	require.NoError(t, err)

	// Alice's proof must not verify under Bob's transcript, even against her
	// own public keys.
	pub := aliceKeys.PublicKeyPair()
	err = VerifyDLEQ([]byte("swap-1:bob"), aliceKeys.Secret.Secp256k1Public(), pub.SpendKey(), aliceKeys.Proof)
	require.Error(t, err)

	_ = bobKeys
}

func TestSpendKeyAndPublicKeyPairAgree(t *testing.T) {
	keys, err := GenerateKeysAndProof([]byte("swap-1:bob"))
	require.NoError(t, err)

	spend := keys.SpendKey()
	pair := keys.PublicKeyPair()
	require.Equal(t, spend.Public().String(), pair.SpendKey().String())
}

func TestRecoverCrossCurveScalarRoundTrip(t *testing.T) {
	keys, err := GenerateKeysAndProof([]byte("swap-1:alice"))
	require.NoError(t, err)

	secpScalar := keys.Secret.Secp256k1Scalar()
	recovered, err := RecoverCrossCurveScalar(secpScalar)
	require.NoError(t, err)

	require.Equal(t, keys.Secret.Secp256k1Public().String(), recovered.Secp256k1Public().String())
	require.Equal(t, keys.Secret.Ed25519Public().Bytes(), recovered.Ed25519Public().Bytes())
}

func TestPrivateKeyPairMatchesPublicKeyPair(t *testing.T) {
	keys, err := GenerateKeysAndProof([]byte("swap-1:alice"))
	require.NoError(t, err)

	priv := keys.PrivateKeyPair()
	pub := keys.PublicKeyPair()
	require.Equal(t, priv.SpendKey().Public().String(), pub.SpendKey().String())
}
