package alice

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/net/message"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
)

func testRefundAddress(t *testing.T) btcutil.Address {
	t.Helper()
	var hash [20]byte
	hash[0] = 0x03
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash[:], &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return addr
}

func buildMessage0(t *testing.T, params *protocol.Params) (*message.Message0, *protocol.KeysAndProof) {
	t.Helper()
	keys, err := protocol.GenerateKeysAndProof(params.BobTranscript())
	require.NoError(t, err)

	pub := keys.PublicKeyPair()
	return &message.Message0{
		B:             keys.MultisigKey.Public().CompressedBytes(),
		SBMonero:      pub.SpendKey().Bytes(),
		SBBitcoin:     keys.Secret.Secp256k1Public().CompressedBytes(),
		DLEqProof:     keys.Proof.Bytes(),
		Vb:            keys.ViewKey.Bytes(),
		RefundAddress: params.RefundAddress.EncodeAddress(),
	}, keys
}

func TestBobKeysFromMessage0Valid(t *testing.T) {
	params := &protocol.Params{SwapID: "swap-1", RefundAddress: testRefundAddress(t)}
	msg, keys := buildMessage0(t, params)

	bobKeys, err := bobKeysFromMessage0(params, common.Development, msg)
	require.NoError(t, err)
	require.Equal(t, keys.MultisigKey.Public().String(), bobKeys.MultisigKey.String())
	require.Equal(t, params.RefundAddress.EncodeAddress(), bobKeys.RefundAddress.EncodeAddress())
}

func TestBobKeysFromMessage0RejectsMismatchedRefundAddress(t *testing.T) {
	params := &protocol.Params{SwapID: "swap-1", RefundAddress: testRefundAddress(t)}
	msg, _ := buildMessage0(t, params)

	var hash [20]byte
	hash[0] = 0x0a
	different, err := btcutil.NewAddressWitnessPubKeyHash(hash[:], &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	msg.RefundAddress = different.EncodeAddress()

	_, err = bobKeysFromMessage0(params, common.Development, msg)
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))
}

func TestBobKeysFromMessage0RejectsProofForWrongTranscript(t *testing.T) {
	params := &protocol.Params{SwapID: "swap-1", RefundAddress: testRefundAddress(t)}
	msg, _ := buildMessage0(t, params)

	other, err := protocol.GenerateKeysAndProof([]byte("wrong-transcript"))
	require.NoError(t, err)
	msg.DLEqProof = other.Proof.Bytes()

	_, err = bobKeysFromMessage0(params, common.Development, msg)
	require.Error(t, err)
}
