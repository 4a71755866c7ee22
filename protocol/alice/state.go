// Package alice implements the swap state machine run by the party selling
// Monero for Bitcoin (the BTC buyer): State0 through State6, plus the
// cancel/punish branch taken when Bob fails to cooperate. Each state is an
// immutable, append-only struct (State(N+1) embeds *State(N)) so that a
// transition's signature can only accept the single prior state it is
// valid for — the typed-state-machine discipline spec.md §9 asks for,
// generalized from mewmix-atomic-swap's protocol/xmrmaker swapState
// (there, a single mutable struct advances its nextExpectedEvent field
// instead).
package alice

import (
	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/adaptor"
	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
	"github.com/athanorlabs/xmr-btc-swap/wallet"
)

// State0 holds the swap parameters and Alice's own freshly-generated key
// material, before any message has been exchanged.
type State0 struct {
	Params *protocol.Params
	Env    common.Environment
	Keys   *protocol.KeysAndProof
}

// NewState0 generates Alice's ephemeral key material for a fresh swap.
func NewState0(params *protocol.Params, env common.Environment) (*State0, error) {
	keys, err := protocol.GenerateKeysAndProof(params.AliceTranscript())
	if err != nil {
		return nil, err
	}
	return &State0{Params: params, Env: env, Keys: keys}, nil
}

// State1 additionally holds Bob's validated handshake material (Message0).
type State1 struct {
	*State0
	Bob *BobKeys
}

// State2 additionally holds the TxLock Bob proposed (Message2), recomputed
// and checked against the negotiated parameters rather than trusted.
type State2 struct {
	*State1
	TxLock *btc.TxLock
}

// State3 additionally holds the cooperative cancel signature and the
// refund adaptor signature Alice sends Bob in Message3: the material Bob's
// TxLock broadcast depends on him already holding, and the last point
// before on-chain commitments begin.
type State3 struct {
	*State2
	TxCancel       *btc.TxCancel
	TxCancelSigA   *secp256k1.Signature
	TxRefund       *btc.TxRefund
	TxRefundEncSig *adaptor.EncryptedSignature
}

// State4 marks TxLock as confirmed on chain.
type State4 struct {
	*State3
}

// State5 marks the Monero TxLock as published to S_a+S_b.
type State5 struct {
	*State4
	XMRTransferProof *wallet.TransferProof
}

// State6 additionally holds Bob's redeem adaptor signature (Message4),
// verified but not yet decrypted.
type State6 struct {
	*State5
	TxRedeem       *btc.TxRedeem
	TxRedeemEncSig *adaptor.EncryptedSignature
}

// Done is the terminal state reached once TxRedeem has broadcast
// successfully: Alice holds the BTC, and her broadcast has disclosed s_a
// to Bob.
type Done struct {
	*State6
	Txid string
}

// Cancelled marks that TxCancel has been observed confirmed on chain
// (published by Bob per the safety argument in spec.md §4.3.4; Alice
// cannot construct a valid TxCancel unilaterally, since its 2-of-2 input
// witness needs both her and Bob's signatures and only Bob ever receives
// Alice's half — see DESIGN.md's Open Question resolution). From here
// Alice waits out punish_timelock and broadcasts TxPunish.
type Cancelled struct {
	*State3
}

// Punished is the terminal state reached once TxPunish has broadcast:
// Alice recovers Bob's locked BTC as well as her own, and s_a is never
// disclosed.
type Punished struct {
	*Cancelled
	Txid string
}
