package bob

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/coins"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/adaptor"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/db"
	"github.com/athanorlabs/xmr-btc-swap/net/message"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
)

// fakeTransport implements transport.Transport for driver tests that only
// need to control what Receive returns and record what was sent.
type fakeTransport struct {
	receive func(ctx context.Context, timeout time.Duration) (common.Message, error)
	sent    []common.Message
}

func (f *fakeTransport) Send(ctx context.Context, msg common.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeTransport) Receive(ctx context.Context, timeout time.Duration) (common.Message, error) {
	return f.receive(ctx, timeout)
}

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swaps.db")
	store, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// setupDriverSwap builds a fresh State0 plus the handshake/TxLock/cancel
// material Alice's side would send, mirroring buildBobThroughState3.
func setupDriverSwap(t *testing.T, swapID string) (*State0, *protocol.Params, *mockBitcoinWallet, *protocol.KeysAndProof, *message.Message1, *message.Message3, *btc.TxLock) {
	t.Helper()
	params := testParams(t, swapID)

	s0, err := NewState0(params, common.Development, monero.Address("bob-xmr-receive"))
	require.NoError(t, err)

	msg1, aliceKeys := buildMessage1(t, params)

	btcWallet := newFundingWallet(0x99)
	s1, err := s0.Receive(msg1)
	require.NoError(t, err)
	_, s2, err := s1.NextMessage(context.Background(), btcWallet)
	require.NoError(t, err)

	cancelFee := btc.EstimateFee(btc.KindCancel, 10)
	txCancel, err := btc.BuildCancel(s2.TxLock, params.CancelTimelock, params.PunishTimelock, cancelFee, aliceKeys.MultisigKey.Public(), s2.Keys.MultisigKey.Public())
	require.NoError(t, err)
	cancelDigest, err := txCancel.Digest(s2.TxLock.PkScript(), int64(s2.TxLock.Amount))
	require.NoError(t, err)
	sigAlice, err := aliceKeys.MultisigKey.Sign(cancelDigest)
	require.NoError(t, err)

	refundFee := btc.EstimateFee(btc.KindRefund, 10)
	txRefund, err := btc.BuildRefund(txCancel, params.RefundAddress, refundFee)
	require.NoError(t, err)
	refundDigest, err := txRefund.Digest(txCancel.PkScript(), int64(txCancel.Amount))
	require.NoError(t, err)
	refundEncSig, err := adaptor.EncSign(aliceKeys.MultisigKey, s2.Keys.Secret.Secp256k1Public(), refundDigest)
	require.NoError(t, err)

	msg3 := &message.Message3{
		TxCancelSigA:   sigAlice.Serialize(),
		TxRefundEncSig: refundEncSig.Bytes(),
	}

	return s0, params, btcWallet, aliceKeys, msg1, msg3, s2.TxLock
}

func TestDriverRunCompletesSwapToClaimXMR(t *testing.T) {
	s0, params, btcWallet, aliceKeys, msg1, msg3, txLock := setupDriverSwap(t, "swap-bob-driver-redeem")

	btcWallet.signTx = func(tx *wire.MsgTx) (*wire.MsgTx, error) { return tx, nil }
	btcWallet.broadcast = func(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
		return chainhash.Hash{}, nil
	}

	xmrWallet := &mockMoneroWallet{
		openOrCreate: func(context.Context, string) error { return nil },
		balances:     []coins.PiconeroAmount{params.XMRAmount},
	}

	queue := []common.Message{msg1, msg3}
	idx := 0
	transport := &fakeTransport{
		receive: func(ctx context.Context, timeout time.Duration) (common.Message, error) {
			m := queue[idx]
			idx++
			return m, nil
		},
	}

	d := &Driver{
		Store:     openTestStore(t),
		Transport: transport,
		BTCWallet: btcWallet,
		XMRWallet: xmrWallet,
	}

	// TxLock and the redeem fee/address are fixed by setupDriverSwap, so the
	// unsigned TxRedeem Bob's own NextMessage(State5) independently builds
	// is deterministic and can be precomputed here too. Bob's actual
	// TxRedeemEncSig is only known once Driver.Run sends Message4, so the
	// watch closure below reads it from what the fake transport captured
	// rather than from a separately-generated (and differently-nonced)
	// adaptor signature.
	redeemFee := btc.EstimateFee(btc.KindRedeem, 10)
	txRedeem, err := btc.BuildRedeem(txLock, params.RedeemAddress, redeemFee)
	require.NoError(t, err)
	redeemDigest, err := txRedeem.Digest(txLock.PkScript(), int64(txLock.Amount))
	require.NoError(t, err)

	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		if txid == txLock.Txid() {
			return txLock.Tx, nil
		}

		msg4 := transport.sent[len(transport.sent)-1].(*message.Message4)
		encSig, err := adaptor.EncryptedSignatureFromBytes(msg4.TxRedeemEncSig)
		require.NoError(t, err)

		// Simulate Alice: she decrypts Bob's redeem adaptor signature with
		// her own cross-curve secret, signs her own multisig half, and
		// assembles the broadcast TxRedeem.
		sigBobDecrypted, err := adaptor.Decrypt(aliceKeys.Secret.Secp256k1Scalar(), encSig)
		require.NoError(t, err)
		sigAliceFinal, err := aliceKeys.MultisigKey.Sign(redeemDigest)
		require.NoError(t, err)
		require.NoError(t, txRedeem.AddSignatures(txLock.PkScript(), int64(txLock.Amount),
			aliceKeys.MultisigKey.Public(), s0.Keys.MultisigKey.Public(), sigAliceFinal, sigBobDecrypted))

		return txRedeem.Tx, nil
	}

	var sweptTo monero.Address
	xmrWallet.importOutput = func(ctx context.Context, keys *monero.PrivateKeyPair, sweepTo monero.Address) (string, error) {
		sweptTo = sweepTo
		return "sweep-txid", nil
	}

	outcome, err := d.Run(context.Background(), s0)
	require.NoError(t, err)
	require.NotNil(t, outcome.Done)
	require.Nil(t, outcome.Refunded)
	require.Nil(t, outcome.Punished)
	require.Equal(t, "sweep-txid", outcome.Done.XMRTxHash)
	require.Equal(t, s0.XMRReceiveAddress, sweptTo)

	stored, err := d.Store.Get(db.RoleBob, params.SwapID)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestDriverRunPursuesRefundWhenAliceNeverRedeems(t *testing.T) {
	s0, params, btcWallet, _, msg1, msg3, _ := setupDriverSwap(t, "swap-bob-driver-refund")

	btcWallet.signTx = func(tx *wire.MsgTx) (*wire.MsgTx, error) { return tx, nil }
	btcWallet.broadcast = func(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
		return chainhash.Hash{}, nil
	}
	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		return wire.NewMsgTx(2), nil
	}

	xmrWallet := &mockMoneroWallet{
		openOrCreate: func(context.Context, string) error { return nil },
		balances:     []coins.PiconeroAmount{params.XMRAmount},
	}

	queue := []common.Message{msg1, msg3}
	idx := 0
	transport := &fakeTransport{
		receive: func(ctx context.Context, timeout time.Duration) (common.Message, error) {
			m := queue[idx]
			idx++
			return m, nil
		},
	}

	d := &Driver{
		Store:             openTestStore(t),
		Transport:         transport,
		BTCWallet:         btcWallet,
		XMRWallet:         xmrWallet,
		RedeemWatchWindow: time.Millisecond,
	}

	outcome, err := d.Run(context.Background(), s0)
	require.NoError(t, err)
	require.Nil(t, outcome.Done)
	require.NotNil(t, outcome.Refunded)
	require.NotEmpty(t, outcome.Refunded.Txid)

	stored, err := d.Store.Get(db.RoleBob, params.SwapID)
	require.NoError(t, err)
	require.Nil(t, stored)
}
