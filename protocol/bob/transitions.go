package bob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/adaptor"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
	"github.com/athanorlabs/xmr-btc-swap/net/message"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
	"github.com/athanorlabs/xmr-btc-swap/wallet"
)

var log = common.NewLogger("bob")

// chainPollInterval is the retry backoff between failed broadcasts and
// Monero-lock polling.
const chainPollInterval = 5 * time.Second

// NextMessage returns Bob's Message0: his keys, DLEQ proof, view-key share,
// and the refund address he expects TxRefund to pay.
func (s *State0) NextMessage() *message.Message0 {
	return &message.Message0{
		B:             s.Keys.MultisigKey.Public().CompressedBytes(),
		SBMonero:      s.Keys.Secret.Ed25519Public().Bytes(),
		SBBitcoin:     s.Keys.Secret.Secp256k1Public().CompressedBytes(),
		DLEqProof:     s.Keys.Proof.Bytes(),
		Vb:            s.Keys.ViewKey.Bytes(),
		RefundAddress: s.Params.RefundAddress.EncodeAddress(),
	}
}

// Receive consumes Alice's Message1, verifying her DLEQ proof and her
// redeem/punish addresses against the negotiated parameters.
func (s *State0) Receive(msg common.Message) (*State1, error) {
	m1, ok := msg.(*message.Message1)
	if !ok {
		return nil, common.ErrUnexpectedMessage
	}

	aliceKeys, err := aliceKeysFromMessage1(s.Params, s.Env, m1)
	if err != nil {
		return nil, err
	}

	return &State1{State0: s, Alice: aliceKeys}, nil
}

// NextMessage builds and funds TxLock (not yet broadcast) and returns
// Message2, its unsigned PSBT wire form.
func (s *State1) NextMessage(ctx context.Context, btcWallet wallet.BitcoinWallet) (*message.Message2, *State2, error) {
	a := s.Alice.MultisigKey
	b := s.Keys.MultisigKey.Public()

	txLock, err := btc.BuildLock(btcWallet, s.Params.BTCAmount, a, b)
	if err != nil {
		return nil, nil, fmt.Errorf("bob: building TxLock: %w", err)
	}

	pkt, err := txLock.ToPSBT()
	if err != nil {
		return nil, nil, fmt.Errorf("bob: serializing TxLock PSBT: %w", err)
	}
	var buf bytes.Buffer
	if err := pkt.Serialize(&buf); err != nil {
		return nil, nil, fmt.Errorf("bob: encoding TxLock PSBT: %w", err)
	}

	msg2 := &message.Message2{TxLockPSBT: buf.Bytes()}
	return msg2, &State2{State1: s, TxLock: txLock}, nil
}

// Receive consumes Alice's Message3 (her cooperative cancel signature and
// her refund adaptor signature), rebuilding TxCancel and TxRefund
// independently and checking both against them before adding Bob's own
// cancel signature. The returned State3 must be persisted before TxLock is
// ever broadcast: per spec.md §3.4, Bob must hold enough of his own exit
// path before committing funds on chain.
func (s *State2) Receive(ctx context.Context, btcWallet wallet.BitcoinWallet, msg common.Message) (*State3, error) {
	m3, ok := msg.(*message.Message3)
	if !ok {
		return nil, common.ErrUnexpectedMessage
	}

	feeRate, err := btcWallet.FeeRate(ctx)
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}

	a := s.Alice.MultisigKey
	b := s.Keys.MultisigKey.Public()

	cancelFee := btc.EstimateFee(btc.KindCancel, feeRate)
	txCancel, err := btc.BuildCancel(s.TxLock, s.Params.CancelTimelock, s.Params.PunishTimelock, cancelFee, a, b)
	if err != nil {
		return nil, fmt.Errorf("bob: building TxCancel: %w", err)
	}
	cancelDigest, err := txCancel.Digest(s.TxLock.PkScript(), int64(s.TxLock.Amount))
	if err != nil {
		return nil, fmt.Errorf("bob: computing TxCancel digest: %w", err)
	}
	sigAlice, err := secp256k1.NewSignatureFromDER(m3.TxCancelSigA)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid TxCancel signature encoding: %w", err)
	}
	if !a.Verify(cancelDigest, sigAlice) {
		return nil, common.Errorf(common.KindValidation, "bob: alice's TxCancel signature does not verify")
	}
	sigBob, err := s.Keys.MultisigKey.Sign(cancelDigest)
	if err != nil {
		return nil, fmt.Errorf("bob: signing TxCancel: %w", err)
	}

	refundFee := btc.EstimateFee(btc.KindRefund, feeRate)
	txRefund, err := btc.BuildRefund(txCancel, s.Params.RefundAddress, refundFee)
	if err != nil {
		return nil, fmt.Errorf("bob: building TxRefund: %w", err)
	}
	refundDigest, err := txRefund.Digest(txCancel.PkScript(), int64(txCancel.Amount))
	if err != nil {
		return nil, fmt.Errorf("bob: computing TxRefund digest: %w", err)
	}
	refundEncSigAlice, err := adaptor.EncryptedSignatureFromBytes(m3.TxRefundEncSig)
	if err != nil {
		return nil, common.Errorf(common.KindValidation, "bob: invalid refund adaptor signature encoding: %w", err)
	}
	if err := adaptor.Verify(a, s.Keys.Secret.Secp256k1Public(), refundDigest, refundEncSigAlice); err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}

	return &State3{
		State2:              s,
		TxCancel:            txCancel,
		TxCancelSigAlice:    sigAlice,
		TxCancelSigBob:      sigBob,
		TxRefund:            txRefund,
		TxRefundEncSigAlice: refundEncSigAlice,
	}, nil
}

// PublishTxLock signs TxLock's wallet-funded inputs and broadcasts it, then
// waits for confirmation. This is the point of no return: once
// acknowledged, Bob holds enough of his own exit path (State3's cancel
// material) to always recover his funds.
func (s *State3) PublishTxLock(ctx context.Context, btcWallet wallet.BitcoinWallet) (*State4, error) {
	signedTx, err := btcWallet.SignTx(s.TxLock.Tx)
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	if _, err := btcWallet.Broadcast(ctx, signedTx); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	if _, err := btcWallet.WatchForRawTransaction(ctx, s.TxLock.Txid()); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	return &State4{State3: s}, nil
}

// WatchForXMRLock blocks until the jointly-owned Monero output's balance
// reaches the negotiated amount. No wire message carries Monero lock
// evidence directly (Message0..Message4 end at the Bitcoin handshake and
// cancel/refund material; see DESIGN.md's Open Question resolution), so
// Bob watches by opening the shared view-only wallet Alice's transfer pays
// into and polling its balance, rather than via CheckTransfer's
// attestation-based API, which has no transport to arrive on. The address
// is derived, like LockXMR's destination, from S_a+S_b and V_a+V_b.
func (s *State4) WatchForXMRLock(ctx context.Context, xmrWallet wallet.MoneroWallet) (*State5, error) {
	if err := xmrWallet.OpenOrCreate(ctx, "bob-viewonly-"+s.Params.SwapID); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}

	for {
		if err := xmrWallet.Refresh(ctx); err != nil {
			return nil, common.NewError(common.KindWallet, err)
		}
		balance, err := xmrWallet.GetBalance(ctx)
		if err != nil {
			return nil, common.NewError(common.KindWallet, err)
		}
		if balance >= s.Params.XMRAmount {
			break
		}
		if err := common.SleepWithContext(ctx, chainPollInterval); err != nil {
			return nil, err
		}
	}

	return &State5{State4: s}, nil
}

// NextMessage adaptor-signs TxRedeem, encrypted to Alice's S_a_bitcoin, and
// returns Message4. The returned State6 must be persisted before Message4
// is sent: publishing it is what lets Alice complete the redeem, and
// Bob needs TxRedeemEncSig on hand afterward to recognize and recover from
// its eventual disclosure.
func (s *State5) NextMessage(ctx context.Context, btcWallet wallet.BitcoinWallet) (*message.Message4, *State6, error) {
	feeRate, err := btcWallet.FeeRate(ctx)
	if err != nil {
		return nil, nil, common.NewError(common.KindWallet, err)
	}
	redeemFee := btc.EstimateFee(btc.KindRedeem, feeRate)
	txRedeem, err := btc.BuildRedeem(s.TxLock, s.Params.RedeemAddress, redeemFee)
	if err != nil {
		return nil, nil, fmt.Errorf("bob: building TxRedeem: %w", err)
	}
	digest, err := txRedeem.Digest(s.TxLock.PkScript(), int64(s.TxLock.Amount))
	if err != nil {
		return nil, nil, fmt.Errorf("bob: computing TxRedeem digest: %w", err)
	}
	encSig, err := adaptor.EncSign(s.Keys.MultisigKey, s.Alice.Secp256k1Public, digest)
	if err != nil {
		return nil, nil, fmt.Errorf("bob: adaptor-signing TxRedeem: %w", err)
	}

	state6 := &State6{State5: s, TxRedeem: txRedeem, TxRedeemEncSig: encSig}
	msg4 := &message.Message4{TxRedeemEncSig: encSig.Bytes()}
	return msg4, state6, nil
}

// WatchForRedeemThenClaimXMR blocks until Alice broadcasts TxRedeem
// (assuming her TxRedeem has the same txid Bob's own copy does, which holds
// only when both parties' wallets report the same FeeRate, since each side
// builds TxRedeem with a fee from its own wallet), extracts the signature verifying under Bob's own key from its
// witness, recovers Alice's Monero spend-key share via adaptor.Recover, and
// sweeps the jointly-owned Monero output to Bob's own address.
func (s *State6) WatchForRedeemThenClaimXMR(ctx context.Context, btcWallet wallet.BitcoinWallet, xmrWallet wallet.MoneroWallet) (*Done, error) {
	rawTx, err := btcWallet.WatchForRawTransaction(ctx, s.TxRedeem.Txid())
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}

	observed := &btc.TxRedeem{Tx: rawTx, WitnessScript: s.TxLock.WitnessScript}
	sigBob, err := observed.ExtractSignatureByKey(s.Keys.MultisigKey.Public(), s.TxLock.PkScript(), int64(s.TxLock.Amount))
	if err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}

	scalar, err := adaptor.Recover(s.Alice.Secp256k1Public, sigBob, s.TxRedeemEncSig)
	if err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}
	crossCurve, err := protocol.RecoverCrossCurveScalar(scalar)
	if err != nil {
		return nil, fmt.Errorf("bob: recovering alice's spend-key share: %w", err)
	}

	aliceSpend := monero.NewPrivateSpendKeyFromScalar(crossCurve.Ed25519Scalar())
	fullSpend := monero.SumPrivateSpendKeys(aliceSpend, s.Keys.SpendKey())
	fullView := monero.SumPrivateViewKeys(s.Alice.ViewKey, s.Keys.ViewKey)
	fullKeys := monero.NewPrivateKeyPair(fullSpend, fullView)

	txHash, err := xmrWallet.ImportOutput(ctx, fullKeys, s.XMRReceiveAddress)
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}

	return &Done{State6: s, XMRTxHash: txHash}, nil
}

// PublishCancel broadcasts TxCancel using Bob's and Alice's cancel
// signatures, both already in hand since State3: unlike Alice, Bob can
// always take this step unilaterally.
func (s *State3) PublishCancel(ctx context.Context, btcWallet wallet.BitcoinWallet) (*Cancelled, error) {
	if err := s.TxCancel.AddSignatures(s.TxLock.PkScript(), int64(s.TxLock.Amount),
		s.Alice.MultisigKey, s.Keys.MultisigKey.Public(), s.TxCancelSigAlice, s.TxCancelSigBob); err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}

	if _, err := btcWallet.Broadcast(ctx, s.TxCancel.Tx); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	if _, err := btcWallet.WatchForRawTransaction(ctx, s.TxCancel.Txid()); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}

	return &Cancelled{State3: s}, nil
}

// PublishRefund decrypts Alice's refund adaptor signature with Bob's own
// cross-curve secret s_b, assembles and broadcasts TxRefund, recovering
// Bob's BTC. Per the safety argument (spec.md §4.3.4), this broadcast
// inescapably discloses s_b to Alice.
func (s *Cancelled) PublishRefund(ctx context.Context, btcWallet wallet.BitcoinWallet) (*Refunded, error) {
	sigAlice, err := adaptor.Decrypt(s.Keys.Secret.Secp256k1Scalar(), s.TxRefundEncSigAlice)
	if err != nil {
		return nil, fmt.Errorf("bob: decrypting alice's refund signature: %w", err)
	}

	digest, err := s.TxRefund.Digest(s.TxCancel.PkScript(), int64(s.TxCancel.Amount))
	if err != nil {
		return nil, fmt.Errorf("bob: computing TxRefund digest: %w", err)
	}
	sigBob, err := s.Keys.MultisigKey.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("bob: signing TxRefund: %w", err)
	}

	if err := s.TxRefund.AddSignatures(s.TxCancel.PkScript(), int64(s.TxCancel.Amount),
		s.Alice.MultisigKey, s.Keys.MultisigKey.Public(), sigAlice, sigBob); err != nil {
		return nil, common.NewError(common.KindValidation, err)
	}

	var txid string
	for {
		id, err := btcWallet.Broadcast(ctx, s.TxRefund.Tx)
		if err == nil {
			txid = id.String()
			break
		}
		log.Warnf("broadcasting TxRefund failed, retrying: %s", err)
		if sleepErr := common.SleepWithContext(ctx, chainPollInterval); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return &Refunded{Cancelled: s, Txid: txid}, nil
}

// WatchForPunish blocks until Alice's TxPunish (assumed, as with TxRedeem,
// to have the txid of Bob's own rebuild, whose fee comes from Bob's wallet's
// FeeRate) confirms, meaning Bob failed to refund
// before punish_timelock and has lost his locked BTC.
func (s *Cancelled) WatchForPunish(ctx context.Context, btcWallet wallet.BitcoinWallet) (*Punished, error) {
	feeRate, err := btcWallet.FeeRate(ctx)
	if err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	fee := btc.EstimateFee(btc.KindPunish, feeRate)
	txPunish, err := btc.BuildPunish(s.TxCancel, s.Params.PunishAddress, s.Params.PunishTimelock, fee)
	if err != nil {
		return nil, fmt.Errorf("bob: building expected TxPunish: %w", err)
	}
	if _, err := btcWallet.WatchForRawTransaction(ctx, txPunish.Txid()); err != nil {
		return nil, common.NewError(common.KindWallet, err)
	}
	return &Punished{Cancelled: s}, nil
}
