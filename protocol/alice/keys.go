package alice

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

// BobKeys is Alice's validated view of Bob's public handshake material:
// everything from Message0 once its DLEQ proof and refund address have
// checked out.
type BobKeys struct {
	// MultisigKey is B, Bob's half of every 2-of-2 witness script.
	MultisigKey *secp256k1.BitcoinPublic
	// Secp256k1Public is S_b_bitcoin, the point Alice's refund adaptor
	// signature encrypts to.
	Secp256k1Public *secp256k1.BitcoinPublic
	// Ed25519Public is S_b_monero, Bob's Monero spend-key share.
	Ed25519Public *monero.PublicKey
	// ViewKey is v_b, disclosed in the clear.
	ViewKey *monero.PrivateViewKey
	// RefundAddress is the Bitcoin address TxRefund must pay.
	RefundAddress btcutil.Address
}

// bobKeysFromMessage0 parses and validates msg against params, returning
// Bob's keys only once his DLEQ proof verifies and his claimed refund
// address matches the negotiated parameters.
func bobKeysFromMessage0(params *protocol.Params, env common.Environment, msg *message.Message0) (*BobKeys, error) {
	b, err := secp256k1.NewBitcoinPublicFromBytes(msg.B)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: invalid B: %w", err)
	}
	sbBitcoin, err := secp256k1.NewBitcoinPublicFromBytes(msg.SBBitcoin)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: invalid S_b_bitcoin: %w", err)
	}
	sbMonero, err := monero.NewPublicKeyFromBytes(msg.SBMonero)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: invalid S_b_monero: %w", err)
	}
	proof, err := dleq.ProofFromBytes(msg.DLEqProof)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: invalid dleq proof encoding: %w", err)
	}
	if err := protocol.VerifyDLEQ(params.BobTranscript(), sbBitcoin, sbMonero, proof); err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}
	viewKey, err := monero.NewPrivateViewKeyFromBytes(msg.Vb)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: invalid v_b: %w", err)
	}

	refundAddr, err := btcutil.DecodeAddress(msg.RefundAddress, btc.NetParams(env))
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: invalid refund address: %w", err)
	}
	if refundAddr.EncodeAddress() != params.RefundAddress.EncodeAddress() {
		return nil, common.Errorf(common.KindValidation, "alice: refund address %s does not match negotiated %s",
			refundAddr.EncodeAddress(), params.RefundAddress.EncodeAddress())
	}

	return &BobKeys{
		MultisigKey:     b,
		Secp256k1Public: sbBitcoin,
		Ed25519Public:   sbMonero,
		ViewKey:         viewKey,
		RefundAddress:   refundAddr,
	}, nil
}
