package protocol

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/athanorlabs/xmr-btc-swap/coins"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
)

// Params are the swap parameters fixed before either party's state machine
// advances past its initial state: amounts, timelocks, and the addresses
// each party's outgoing transactions must pay. Both roles construct an
// identical Params from the negotiated offer, and every subsequent
// receive(X) checks incoming wire material against it rather than trusting
// whatever the counterparty claims.
type Params struct {
	SwapID string

	BTCAmount btcutil.Amount
	XMRAmount coins.PiconeroAmount

	// CancelTimelock is the BIP68 relative-timelock (in blocks) on
	// TxCancel's input, counted from TxLock's confirmation.
	CancelTimelock uint32
	// PunishTimelock is the BIP68 relative-timelock (in blocks) on
	// TxPunish's input, counted from TxCancel's confirmation.
	PunishTimelock uint32

	// RedeemAddress is Alice's Bitcoin address TxRedeem pays.
	RedeemAddress btcutil.Address
	// PunishAddress is Alice's Bitcoin address TxPunish pays.
	PunishAddress btcutil.Address
	// RefundAddress is Bob's Bitcoin address TxRefund pays.
	RefundAddress btcutil.Address

	// MoneroReceiveAddress is the Monero address the swap is labeled
	// against. It is persisted with each checkpointed state; no protocol
	// transaction pays to it (the shared output's address is derived from
	// both parties' keys).
	MoneroReceiveAddress monero.Address
}

// AliceTranscript returns the DLEQ transcript prefix Alice's own
// GenerateKeysAndProof call binds its proof to.
func (p *Params) AliceTranscript() []byte {
	return []byte(p.SwapID + ":alice")
}

// BobTranscript returns the DLEQ transcript prefix Bob's own
// GenerateKeysAndProof call binds its proof to. Keeping Alice's and Bob's
// transcripts distinct (rather than both signing the bare swap id) means a
// proof generated for one role can never be replayed as if it were the
// other's.
func (p *Params) BobTranscript() []byte {
	return []byte(p.SwapID + ":bob")
}
