package bob

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/dleq"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
	"github.com/athanorlabs/xmr-btc-swap/net/message"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
)

// AliceKeys is Bob's validated view of Alice's public handshake material:
// everything from Message1 once its DLEQ proof and addresses have checked
// out. Symmetric to protocol/alice's BobKeys.
type AliceKeys struct {
	// MultisigKey is A, Alice's half of every 2-of-2 witness script.
	MultisigKey *secp256k1.BitcoinPublic
	// Secp256k1Public is S_a_bitcoin, the point Bob's redeem adaptor
	// signature encrypts to.
	Secp256k1Public *secp256k1.BitcoinPublic
	// Ed25519Public is S_a_monero, Alice's Monero spend-key share.
	Ed25519Public *monero.PublicKey
	// ViewKey is v_a, disclosed in the clear.
	ViewKey *monero.PrivateViewKey
	// RedeemAddress is the Bitcoin address TxRedeem must pay.
	RedeemAddress btcutil.Address
	// PunishAddress is the Bitcoin address TxPunish must pay.
	PunishAddress btcutil.Address
}

// aliceKeysFromMessage1 parses and validates msg against params, returning
// Alice's keys only once her DLEQ proof verifies and her claimed addresses
// match the negotiated parameters.
func aliceKeysFromMessage1(params *protocol.Params, env common.Environment, msg *message.Message1) (*AliceKeys, error) {
	a, err := secp256k1.NewBitcoinPublicFromBytes(msg.A)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid A: %w", err)
	}
	saBitcoin, err := secp256k1.NewBitcoinPublicFromBytes(msg.SABitcoin)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid S_a_bitcoin: %w", err)
	}
	saMonero, err := monero.NewPublicKeyFromBytes(msg.SAMonero)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid S_a_monero: %w", err)
	}
	proof, err := dleq.ProofFromBytes(msg.DLEqProof)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid dleq proof encoding: %w", err)
	}
	if err := protocol.VerifyDLEQ(params.AliceTranscript(), saBitcoin, saMonero, proof); err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}
	viewKey, err := monero.NewPrivateViewKeyFromBytes(msg.Va)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid v_a: %w", err)
	}

	redeemAddr, err := btcutil.DecodeAddress(msg.RedeemAddress, btc.NetParams(env))
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid redeem address: %w", err)
	}
	if redeemAddr.EncodeAddress() != params.RedeemAddress.EncodeAddress() {
		return nil, common.Errorf(common.KindValidation, "bob: redeem address %s does not match negotiated %s",
			redeemAddr.EncodeAddress(), params.RedeemAddress.EncodeAddress())
	}

	punishAddr, err := btcutil.DecodeAddress(msg.PunishAddress, btc.NetParams(env))
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid punish address: %w", err)
	}
	if punishAddr.EncodeAddress() != params.PunishAddress.EncodeAddress() {
		return nil, common.Errorf(common.KindValidation, "bob: punish address %s does not match negotiated %s",
			punishAddr.EncodeAddress(), params.PunishAddress.EncodeAddress())
	}

	return &AliceKeys{
		MultisigKey:     a,
		Secp256k1Public: saBitcoin,
		Ed25519Public:   saMonero,
		ViewKey:         viewKey,
		RedeemAddress:   redeemAddr,
		PunishAddress:   punishAddr,
	}, nil
}
