// Package bob implements the swap state machine run by the party selling
// Bitcoin for Monero (the BTC seller, XMR buyer): State0 through State6,
// plus the cancel/refund branch taken when the swap must be unwound. Each
// state is an immutable, append-only struct (State(N+1) embeds *State(N)),
// mirroring protocol/alice's typed-state discipline.
package bob

import (
	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/adaptor"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
)

// State0 holds the swap parameters, Bob's own freshly-generated key
// material, and the Monero address he sweeps his recovered funds to, before
// any message has been exchanged.
type State0 struct {
	Params            *protocol.Params
	Env               common.Environment
	Keys              *protocol.KeysAndProof
	XMRReceiveAddress monero.Address
}

// NewState0 generates Bob's ephemeral key material for a fresh swap.
func NewState0(params *protocol.Params, env common.Environment, xmrReceiveAddress monero.Address) (*State0, error) {
	keys, err := protocol.GenerateKeysAndProof(params.BobTranscript())
	if err != nil {
		return nil, err
	}
	return &State0{Params: params, Env: env, Keys: keys, XMRReceiveAddress: xmrReceiveAddress}, nil
}

// State1 additionally holds Alice's validated handshake material
// (Message1).
type State1 struct {
	*State0
	Alice *AliceKeys
}

// State2 additionally holds the TxLock Bob has built and funded, not yet
// broadcast: Bob must have Alice's cancel/refund material (Message3) in
// hand before committing it to the chain.
type State2 struct {
	*State1
	TxLock *btc.TxLock
}

// State3 additionally holds the cancel and refund transactions, Alice's
// cancel signature and refund adaptor signature (Message3, verified), and
// Bob's own cancel signature: the material that makes TxLock's broadcast
// safe, since Bob can now unilaterally reconstruct TxCancel at any time.
type State3 struct {
	*State2
	TxCancel            *btc.TxCancel
	TxCancelSigAlice    *secp256k1.Signature
	TxCancelSigBob      *secp256k1.Signature
	TxRefund            *btc.TxRefund
	TxRefundEncSigAlice *adaptor.EncryptedSignature
}

// State4 marks TxLock as broadcast and confirmed on chain.
type State4 struct {
	*State3
}

// State5 marks the Monero lock (Alice's transfer to S_a+S_b/V_a+V_b) as
// observed confirmed to the jointly-owned address's balance.
type State5 struct {
	*State4
}

// State6 additionally holds Bob's own redeem adaptor signature (sent to
// Alice in Message4) and the TxRedeem it signs over, kept so the
// transition can be persisted before disclosure and so Bob can later watch
// for its exact txid.
type State6 struct {
	*State5
	TxRedeem       *btc.TxRedeem
	TxRedeemEncSig *adaptor.EncryptedSignature
}

// Done is the terminal state reached once Bob has recovered s_a from
// Alice's broadcast TxRedeem and swept the jointly-owned Monero output to
// his own wallet.
type Done struct {
	*State6
	XMRTxHash string
}

// Cancelled marks that Bob has broadcast TxCancel (which he can always do
// unilaterally from State3 onward, holding both his own and Alice's cancel
// signature) and observed it confirm. From here Bob completes the refund.
type Cancelled struct {
	*State3
}

// Refunded is the terminal state reached once TxRefund has broadcast: Bob
// recovers his own BTC, and s_b is disclosed to Alice as a side effect.
type Refunded struct {
	*Cancelled
	Txid string
}

// Punished is the terminal state reached when Bob fails to broadcast
// TxRefund before punish_timelock elapses and Alice claims TxCancel's
// output instead: Bob loses his locked BTC.
type Punished struct {
	*Cancelled
}
