package alice

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/adaptor"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/net/message"
	"github.com/athanorlabs/xmr-btc-swap/net/transport"
	"github.com/athanorlabs/xmr-btc-swap/wallet"
)

var log = common.NewLogger("alice")

// chainPollInterval is the retry backoff between failed broadcasts in the
// punish path; wallet.BitcoinWallet.WatchForRawTransaction already retries
// confirmation watches on its own.
const chainPollInterval = 5 * time.Second

// Receive consumes Bob's Message0, verifying his DLEQ proof and refund
// address against the negotiated parameters, per spec's receive(X)
// contract: verify all proofs/signatures bound to the message, and reject
// if any address/key differs from the negotiated parameters.
func (s *State0) Receive(msg common.Message) (*State1, error) {
	m0, ok := msg.(*message.Message0)
	if !ok {
		return nil, common.ErrUnexpectedMessage
	}

	bobKeys, err := bobKeysFromMessage0(s.Params, s.Env, m0)
	if err != nil {
		return nil, err
	}

	return &State1{State0: s, Bob: bobKeys}, nil
}

// NextMessage returns Alice's Message1: her keys, DLEQ proof, and the
// redeem/punish addresses Bob must check TxRedeem/TxPunish pay.
func (s *State1) NextMessage() *message.Message1 {
	return &message.Message1{
		A:             s.Keys.MultisigKey.Public().CompressedBytes(),
		SAMonero:      s.Keys.Secret.Ed25519Public().Bytes(),
		SABitcoin:     s.Keys.Secret.Secp256k1Public().CompressedBytes(),
		DLEqProof:     s.Keys.Proof.Bytes(),
		Va:            s.Keys.ViewKey.Bytes(),
		RedeemAddress: s.Params.RedeemAddress.EncodeAddress(),
		PunishAddress: s.Params.PunishAddress.EncodeAddress(),
	}
}

// Receive consumes Bob's Message2 (TxLock's unsigned PSBT), recomputing its
// witness script and output from the negotiated multisig keys and
// parameters rather than trusting Bob's claimed transaction.
func (s *State1) Receive(msg common.Message) (*State2, error) {
	m2, ok := msg.(*message.Message2)
	if !ok {
		return nil, common.ErrUnexpectedMessage
	}

	pkt, err := psbt.NewFromRawBytes(bytes.NewReader(m2.TxLockPSBT), false)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: decoding TxLock PSBT: %w", err)
	}

	witnessScript, pkScript, err := btc.LockScripts(s.Keys.MultisigKey.Public(), s.Bob.MultisigKey)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: rebuilding lock scripts: %w", err)
	}

	outputIndex, amount, err := findLockOutput(pkt, pkScript)
	if err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}
	if amount != s.Params.BTCAmount {
		return nil, common.Errorf(common.KindValidation,
			"alice: TxLock pays %d, negotiated amount is %d", amount, s.Params.BTCAmount)
	}

	txLock := btc.TxLockFromPSBT(pkt, witnessScript, outputIndex, amount)
	return &State2{State1: s, TxLock: txLock}, nil
}

// findLockOutput locates pkScript among pkt's outputs, returning its index
// and value.
func findLockOutput(pkt *psbt.Packet, pkScript []byte) (uint32, btcutil.Amount, error) {
	for i, out := range pkt.UnsignedTx.TxOut {
		if bytes.Equal(out.PkScript, pkScript) {
			return uint32(i), btcutil.Amount(out.Value), nil
		}
	}
	return 0, 0, fmt.Errorf("alice: TxLock PSBT has no output matching the expected 2-of-2 script")
}

// NextMessage builds TxCancel and TxRefund, signs TxCancel cooperatively
// and adaptor-signs TxRefund encrypted to Bob's S_b_bitcoin, returning
// Message3. The returned State3 must be persisted before Message3 is sent:
// per spec.md §3.4, Bob's TxLock broadcast depends on this material, so it
// is the checkpoint a crash must not lose.
func (s *State2) NextMessage(ctx context.Context, btcWallet wallet.BitcoinWallet) (*message.Message3, *State3, error) {
	feeRate, err := btcWallet.FeeRate(ctx)
	if err != nil {
		return nil, nil, common.NewError(common.KindWallet, err)
	}

	a := s.Keys.MultisigKey.Public()
	b := s.Bob.MultisigKey

	cancelFee := btc.EstimateFee(btc.KindCancel, feeRate)
	txCancel, err := btc.BuildCancel(s.TxLock, s.Params.CancelTimelock, s.Params.PunishTimelock, cancelFee, a, b)
	if err != nil {
		return nil, nil, fmt.Errorf("alice: building TxCancel: %w", err)
	}
	cancelDigest, err := txCancel.Digest(s.TxLock.PkScript(), int64(s.TxLock.Amount))
	if err != nil {
		return nil, nil, fmt.Errorf("alice: computing TxCancel digest: %w", err)
	}
	sigCancelA, err := s.Keys.MultisigKey.Sign(cancelDigest)
	if err != nil {
		return nil, nil, fmt.Errorf("alice: signing TxCancel: %w", err)
	}

	refundFee := btc.EstimateFee(btc.KindRefund, feeRate)
	txRefund, err := btc.BuildRefund(txCancel, s.Bob.RefundAddress, refundFee)
	if err != nil {
		return nil, nil, fmt.Errorf("alice: building TxRefund: %w", err)
	}
	refundDigest, err := txRefund.Digest(txCancel.PkScript(), int64(txCancel.Amount))
	if err != nil {
		return nil, nil, fmt.Errorf("alice: computing TxRefund digest: %w", err)
	}
	refundEncSig, err := adaptor.EncSign(s.Keys.MultisigKey, s.Bob.Secp256k1Public, refundDigest)
	if err != nil {
		return nil, nil, fmt.Errorf("alice: adaptor-signing TxRefund: %w", err)
	}

	state3 := &State3{
		State2:         s,
		TxCancel:       txCancel,
		TxCancelSigA:   sigCancelA,
		TxRefund:       txRefund,
		TxRefundEncSig: refundEncSig,
	}
	msg3 := &message.Message3{
		TxCancelSigA:   sigCancelA.Serialize(),
		TxRefundEncSig: refundEncSig.Bytes(),
	}
	return msg3, state3, nil
}

// WatchForTxLock blocks until TxLock is confirmed on chain, tolerating the
// case where it is already confirmed (e.g. after a crash-restart). Per
// spec.md §5, this is a cancel-safe suspension point: ctx cancellation
// simply returns, leaving the persisted State3 untouched for a later
// retry.
func (s *State3) WatchForTxLock(ctx context.Context, btcWallet wallet.BitcoinWallet) (*State4, error) {
	if _, err := btcWallet.WatchForRawTransaction(ctx, s.TxLock.Txid()); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	return &State4{State3: s}, nil
}

// LockXMR publishes the negotiated XMR amount to the jointly-owned output
// S_a+S_b / V_a+V_b.
func (s *State4) LockXMR(ctx context.Context, xmrWallet wallet.MoneroWallet) (*State5, error) {
	bobPub := monero.NewPublicKeyPair(s.Bob.Ed25519Public, s.Bob.ViewKey.Public())
	dest := monero.SumSpendAndViewKeys(s.Keys.PublicKeyPair(), bobPub).Address(s.Env)

	if err := xmrWallet.OpenOrCreate(ctx, "alice-"+s.Params.SwapID); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}

	proof, err := xmrWallet.Transfer(ctx, dest, s.Params.XMRAmount)
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}

	return &State5{State4: s, XMRTransferProof: proof}, nil
}

// WatchForRedeemEncSig blocks until Bob's Message4 arrives, verifying his
// redeem adaptor signature against the TxRedeem Alice independently builds
// from her own copy of TxLock and her redeem address. The returned State6
// must be persisted before TxRedeem is ever broadcast: per spec.md §3.4, it
// is the checkpoint that makes completing (or safely abandoning) the swap
// possible after a crash.
func (s *State5) WatchForRedeemEncSig(ctx context.Context, t transport.Transport, timeout time.Duration, btcWallet wallet.BitcoinWallet) (*State6, error) {
	msg, err := t.Receive(ctx, timeout)
	if err != nil {
		return nil, err
	}
	m4, ok := msg.(*message.Message4)
	if !ok {
		return nil, common.ErrUnexpectedMessage
	}

	encSig, err := adaptor.EncryptedSignatureFromBytes(m4.TxRedeemEncSig)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "alice: invalid redeem adaptor signature encoding: %w", err)
	}

	feeRate, err := btcWallet.FeeRate(ctx)
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	redeemFee := btc.EstimateFee(btc.KindRedeem, feeRate)
	txRedeem, err := btc.BuildRedeem(s.TxLock, s.Params.RedeemAddress, redeemFee)
	if err != nil {
		return nil, fmt.Errorf("alice: building TxRedeem: %w", err)
	}
	digest, err := txRedeem.Digest(s.TxLock.PkScript(), int64(s.TxLock.Amount))
	if err != nil {
		return nil, fmt.Errorf("alice: computing TxRedeem digest: %w", err)
	}

	if err := adaptor.Verify(s.Bob.MultisigKey, s.Keys.Secret.Secp256k1Public(), digest, encSig); err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}

	return &State6{State5: s, TxRedeem: txRedeem, TxRedeemEncSig: encSig}, nil
}

// RedeemBTC decrypts Bob's redeem adaptor signature with Alice's own
// cross-curve secret s_a, assembles and broadcasts TxRedeem. Per the safety
// argument (spec.md §4.3.4), this broadcast inescapably discloses the plain
// signature Bob needs to recover s_a via adaptor.Recover.
func (s *State6) RedeemBTC(ctx context.Context, btcWallet wallet.BitcoinWallet) (*Done, error) {
	sigBob, err := adaptor.Decrypt(s.Keys.Secret.Secp256k1Scalar(), s.TxRedeemEncSig)
	if err != nil {
		return nil, fmt.Errorf("alice: decrypting redeem adaptor signature: %w", err)
	}

	digest, err := s.TxRedeem.Digest(s.TxLock.PkScript(), int64(s.TxLock.Amount))
	if err != nil {
		return nil, fmt.Errorf("alice: computing TxRedeem digest: %w", err)
	}
	sigAlice, err := s.Keys.MultisigKey.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("alice: signing TxRedeem: %w", err)
	}

	if err := s.TxRedeem.AddSignatures(s.TxLock.PkScript(), int64(s.TxLock.Amount),
		s.Keys.MultisigKey.Public(), s.Bob.MultisigKey, sigAlice, sigBob); err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}

	txid, err := btcWallet.Broadcast(ctx, s.TxRedeem.Tx)
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}

	return &Done{State6: s, Txid: txid.String()}, nil
}

// WaitForCancel blocks until TxCancel (published by Bob, per the Open
// Question resolution recorded in DESIGN.md) is confirmed on chain. Alice's
// driver takes this branch instead of S6's happy path only when Bob's
// Message4 does not arrive within RedeemWindow or fails to verify. It does
// not track cancel_timelock, so the timelock elapsing before she redeems
// does not by itself lead here.
func (s *State3) WaitForCancel(ctx context.Context, btcWallet wallet.BitcoinWallet) (*Cancelled, error) {
	if _, err := btcWallet.WatchForRawTransaction(ctx, s.TxCancel.Txid()); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	return &Cancelled{State3: s}, nil
}

// PublishPunish waits out punish_timelock past TxCancel's confirmation and
// broadcasts TxPunish, taking Bob's locked BTC. Broadcasts here are retried
// indefinitely per spec.md §7: this is the only safe action left once
// TxCancel has confirmed and Bob has not cooperated on refund.
func (s *Cancelled) PublishPunish(ctx context.Context, btcWallet wallet.BitcoinWallet) (*Punished, error) {
	feeRate, err := btcWallet.FeeRate(ctx)
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	punishFee := btc.EstimateFee(btc.KindPunish, feeRate)
	txPunish, err := btc.BuildPunish(s.TxCancel, s.Params.PunishAddress, s.Params.PunishTimelock, punishFee)
	if err != nil {
		return nil, fmt.Errorf("alice: building TxPunish: %w", err)
	}
	digest, err := txPunish.Digest(s.TxCancel.PkScript(), int64(s.TxCancel.Amount))
	if err != nil {
		return nil, fmt.Errorf("alice: computing TxPunish digest: %w", err)
	}
	sig, err := s.Keys.MultisigKey.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("alice: signing TxPunish: %w", err)
	}
	if err := txPunish.AddSignature(s.TxCancel.PkScript(), int64(s.TxCancel.Amount), s.Keys.MultisigKey.Public(), sig); err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}

	var txid string
	for {
		id, err := btcWallet.Broadcast(ctx, txPunish.Tx)
		if err == nil {
			txid = id.String()
			break
		}
		log.Warnf("broadcasting TxPunish failed, retrying: %s", err)
		if sleepErr := common.SleepWithContext(ctx, chainPollInterval); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return &Punished{Cancelled: s, Txid: txid}, nil
}
