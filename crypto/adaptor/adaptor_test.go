package adaptor

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

func TestEncSignVerifyDecryptRecoverRoundTrip(t *testing.T) {
	sk, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)
	y, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("tx redeem digest"))

	encSig, err := EncSign(sk, y.Public(), digest[:])
	require.NoError(t, err)

	require.NoError(t, Verify(sk.Public(), y.Public(), digest[:], encSig))

	sig, err := Decrypt(y.Scalar(), encSig)
	require.NoError(t, err)
	require.True(t, sk.Public().Verify(digest[:], sig))

	recovered, err := Recover(y.Public(), sig, encSig)
	require.NoError(t, err)

	var wantBytes, gotBytes [32]byte
	y.Scalar().PutBytesUnchecked(wantBytes[:])
	recovered.PutBytesUnchecked(gotBytes[:])
	require.Equal(t, wantBytes, gotBytes)
}

func TestEncSignRejectsZeroEncryptionPoint(t *testing.T) {
	sk, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("msg"))

	_, err = EncSign(sk, nil, digest[:])
	require.ErrorIs(t, err, ErrZeroEncryptionPoint)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	sk, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)
	other, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)
	y, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("msg"))
	encSig, err := EncSign(sk, y.Public(), digest[:])
	require.NoError(t, err)

	require.Error(t, Verify(other.Public(), y.Public(), digest[:], encSig))
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	sk, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)
	y, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("msg"))
	encSig, err := EncSign(sk, y.Public(), digest[:])
	require.NoError(t, err)

	other := sha256.Sum256([]byte("different"))
	require.Error(t, Verify(sk.Public(), y.Public(), other[:], encSig))
}

func TestRecoverFailsOnUnlinkedSignature(t *testing.T) {
	sk, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)
	y, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("msg"))
	encSig, err := EncSign(sk, y.Public(), digest[:])
	require.NoError(t, err)

	otherDigest := sha256.Sum256([]byte("other"))
	unrelatedSig, err := sk.Sign(otherDigest[:])
	require.NoError(t, err)

	_, err = Recover(y.Public(), unrelatedSig, encSig)
	require.ErrorIs(t, err, ErrNotLinked)
}

func TestEncryptedSignatureBytesRoundTrip(t *testing.T) {
	sk, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)
	y, err := secp256k1.GenerateBitcoinSecret()
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("msg"))

	encSig, err := EncSign(sk, y.Public(), digest[:])
	require.NoError(t, err)

	raw := encSig.Bytes()
	require.Len(t, raw, encryptedSignatureSize)

	parsed, err := EncryptedSignatureFromBytes(raw)
	require.NoError(t, err)
	require.NoError(t, Verify(sk.Public(), y.Public(), digest[:], parsed))
}

func TestEncryptedSignatureFromBytesRejectsWrongLength(t *testing.T) {
	_, err := EncryptedSignatureFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}
