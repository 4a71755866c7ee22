package bob

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/coins"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/adaptor"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/net/message"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
	"github.com/athanorlabs/xmr-btc-swap/wallet"
)

// mockBitcoinWallet implements wallet.BitcoinWallet with overridable
// behavior per test; a method whose field is left nil panics if called, so
// a test only wires up what its transition actually reaches.
type mockBitcoinWallet struct {
	selectUTXOs func(btcutil.Amount) ([]btc.FundingUTXO, *wire.TxOut, error)
	signTx      func(*wire.MsgTx) (*wire.MsgTx, error)
	broadcast   func(context.Context, *wire.MsgTx) (chainhash.Hash, error)
	watchForRaw func(context.Context, chainhash.Hash) (*wire.MsgTx, error)
	feeRate     func(context.Context) (btcutil.Amount, error)

	broadcastCalls int
}

func (m *mockBitcoinWallet) SelectUTXOs(amount btcutil.Amount) ([]btc.FundingUTXO, *wire.TxOut, error) {
	return m.selectUTXOs(amount)
}
func (m *mockBitcoinWallet) SignTx(tx *wire.MsgTx) (*wire.MsgTx, error) { return m.signTx(tx) }
func (m *mockBitcoinWallet) Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
	m.broadcastCalls++
	return m.broadcast(ctx, tx)
}
func (m *mockBitcoinWallet) WatchForRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	return m.watchForRaw(ctx, txid)
}
func (m *mockBitcoinWallet) GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	panic("not implemented")
}
func (m *mockBitcoinWallet) ScriptStatus(ctx context.Context, pkScript []byte) (wallet.TxStatus, error) {
	panic("not implemented")
}
func (m *mockBitcoinWallet) Balance(ctx context.Context) (btcutil.Amount, error) {
	panic("not implemented")
}
func (m *mockBitcoinWallet) NewAddress(ctx context.Context) (btcutil.Address, error) {
	panic("not implemented")
}
func (m *mockBitcoinWallet) SendToAddress(ctx context.Context, addr btcutil.Address, amount btcutil.Amount) ([]byte, error) {
	panic("not implemented")
}
func (m *mockBitcoinWallet) SignAndFinalize(psbtBytes []byte) (*wire.MsgTx, error) {
	panic("not implemented")
}
func (m *mockBitcoinWallet) MaxGiveable(ctx context.Context, pkScriptLen int) (btcutil.Amount, error) {
	panic("not implemented")
}
func (m *mockBitcoinWallet) FeeRate(ctx context.Context) (btcutil.Amount, error) {
	return m.feeRate(ctx)
}

// mockMoneroWallet implements wallet.MoneroWallet.
type mockMoneroWallet struct {
	openOrCreate func(context.Context, string) error
	importOutput func(context.Context, *monero.PrivateKeyPair, monero.Address) (string, error)

	// balances are returned in order from successive GetBalance calls; the
	// last entry repeats once exhausted.
	balances     []coins.PiconeroAmount
	balanceIdx   int
	refreshCalls int
}

func (m *mockMoneroWallet) OpenOrCreate(ctx context.Context, name string) error {
	return m.openOrCreate(ctx, name)
}
func (m *mockMoneroWallet) Transfer(ctx context.Context, address monero.Address, amount coins.PiconeroAmount) (*wallet.TransferProof, error) {
	panic("not implemented")
}
func (m *mockMoneroWallet) CheckTransfer(ctx context.Context, publicSpend, publicView *monero.PublicKey, proof *wallet.TransferProof, amount coins.PiconeroAmount) error {
	panic("not implemented")
}
func (m *mockMoneroWallet) ImportOutput(ctx context.Context, keys *monero.PrivateKeyPair, sweepTo monero.Address) (string, error) {
	return m.importOutput(ctx, keys, sweepTo)
}
func (m *mockMoneroWallet) GetBalance(ctx context.Context) (coins.PiconeroAmount, error) {
	idx := m.balanceIdx
	if idx >= len(m.balances) {
		idx = len(m.balances) - 1
	}
	m.balanceIdx++
	return m.balances[idx], nil
}
func (m *mockMoneroWallet) GetMainAddress(ctx context.Context) (monero.Address, error) {
	panic("not implemented")
}
func (m *mockMoneroWallet) Refresh(ctx context.Context) error {
	m.refreshCalls++
	return nil
}
func (m *mockMoneroWallet) Height(ctx context.Context) (uint64, error) { panic("not implemented") }

func testParams(t *testing.T, swapID string) *protocol.Params {
	t.Helper()
	redeem, punish := testAliceAddresses(t)
	var refundHash [20]byte
	refundHash[0] = 0x03
	refund, err := btcutil.NewAddressWitnessPubKeyHash(refundHash[:], &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	return &protocol.Params{
		SwapID:               swapID,
		BTCAmount:            1_000_000,
		XMRAmount:            coins.PiconeroAmount(500_000_000_000),
		CancelTimelock:       10,
		PunishTimelock:       10,
		RedeemAddress:        redeem,
		PunishAddress:        punish,
		RefundAddress:        refund,
		MoneroReceiveAddress: monero.Address("dummy-address"),
	}
}

func newFundingWallet(fundByte byte) *mockBitcoinWallet {
	var fundHash [32]byte
	fundHash[0] = fundByte
	return &mockBitcoinWallet{
		selectUTXOs: func(amount btcutil.Amount) ([]btc.FundingUTXO, *wire.TxOut, error) {
			return []btc.FundingUTXO{
				{OutPoint: wire.OutPoint{Hash: fundHash, Index: 0}, Output: wire.NewTxOut(5_000_000, nil)},
			}, nil, nil
		},
		feeRate: func(context.Context) (btcutil.Amount, error) { return 10, nil },
	}
}

// buildBobThroughState3 drives a fresh Bob State0 through the handshake and
// State3, mirroring Driver.Run, and also returns the real Alice key material
// used to build Message1 so later tests can simulate Alice's side of the
// redeem/refund broadcasts.
func buildBobThroughState3(t *testing.T) (*State3, *mockBitcoinWallet, *protocol.KeysAndProof) {
	t.Helper()
	params := testParams(t, "swap-transitions-1")

	s0, err := NewState0(params, common.Development, monero.Address("bob-xmr-receive"))
	require.NoError(t, err)

	msg1, aliceKeys := buildMessage1(t, params)
	s1, err := s0.Receive(msg1)
	require.NoError(t, err)

	btcWallet := newFundingWallet(0xaa)
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

	s3, err := s2.Receive(context.Background(), btcWallet, msg3)
	require.NoError(t, err)
	return s3, btcWallet, aliceKeys
}

func TestStateZeroNextMessageShape(t *testing.T) {
	params := testParams(t, "swap-msg0")
	s0, err := NewState0(params, common.Development, monero.Address("bob-xmr-receive"))
	require.NoError(t, err)

	msg0 := s0.NextMessage()
	require.Len(t, msg0.B, 33)
	require.Len(t, msg0.SBMonero, 32)
	require.Len(t, msg0.SBBitcoin, 33)
	require.Equal(t, params.RefundAddress.EncodeAddress(), msg0.RefundAddress)
}

func TestReceiveMessage1RejectsWrongType(t *testing.T) {
	params := testParams(t, "swap-wrongtype")
	s0, err := NewState0(params, common.Development, monero.Address("bob-xmr-receive"))
	require.NoError(t, err)

	_, err = s0.Receive(s0.NextMessage())
	require.ErrorIs(t, err, common.ErrUnexpectedMessage)
}

func TestState2ReceiveRejectsBadCancelSignature(t *testing.T) {
	params := testParams(t, "swap-badsig")
	s0, err := NewState0(params, common.Development, monero.Address("bob-xmr-receive"))
	require.NoError(t, err)

	msg1, _ := buildMessage1(t, params)
	s1, err := s0.Receive(msg1)
	require.NoError(t, err)

	btcWallet := newFundingWallet(0xbb)
	_, s2, err := s1.NextMessage(context.Background(), btcWallet)
	require.NoError(t, err)

	wrongSigner, err := protocol.GenerateKeysAndProof([]byte("unrelated"))
	require.NoError(t, err)
	cancelFee := btc.EstimateFee(btc.KindCancel, 10)
	txCancel, err := btc.BuildCancel(s2.TxLock, params.CancelTimelock, params.PunishTimelock, cancelFee, s2.Alice.MultisigKey, s2.Keys.MultisigKey.Public())
	require.NoError(t, err)
	cancelDigest, err := txCancel.Digest(s2.TxLock.PkScript(), int64(s2.TxLock.Amount))
	require.NoError(t, err)
	badSig, err := wrongSigner.MultisigKey.Sign(cancelDigest)
	require.NoError(t, err)

	// TxRefundEncSig is never reached: Receive rejects the bad cancel
	// signature before it gets there.
	msg3 := &message.Message3{
		TxCancelSigA:   badSig.Serialize(),
		TxRefundEncSig: []byte{0x00},
	}
	_, err = s2.Receive(context.Background(), btcWallet, msg3)
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))
}

func TestPublishTxLockSignsBroadcastsAndWatches(t *testing.T) {
	s3, btcWallet, _ := buildBobThroughState3(t)

	watched := false
	btcWallet.signTx = func(tx *wire.MsgTx) (*wire.MsgTx, error) { return tx, nil }
	btcWallet.broadcast = func(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
		return chainhash.Hash{}, nil
	}
	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		watched = true
		return s3.TxLock.Tx, nil
	}

	s4, err := s3.PublishTxLock(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotNil(t, s4)
	require.True(t, watched)
	require.Equal(t, 1, btcWallet.broadcastCalls)
}

func TestWatchForXMRLockWaitsUntilBalanceMet(t *testing.T) {
	s3, _, _ := buildBobThroughState3(t)
	s4 := &State4{State3: s3}

	xmrWallet := &mockMoneroWallet{
		openOrCreate: func(context.Context, string) error { return nil },
		balances: []coins.PiconeroAmount{
			coins.PiconeroAmount(100),
			s3.Params.XMRAmount,
		},
	}

	s5, err := s4.WatchForXMRLock(context.Background(), xmrWallet)
	require.NoError(t, err)
	require.NotNil(t, s5)
	require.GreaterOrEqual(t, xmrWallet.refreshCalls, 2)
}

func TestWatchForXMRLockReturnsOnCancel(t *testing.T) {
	s3, _, _ := buildBobThroughState3(t)
	s4 := &State4{State3: s3}

	xmrWallet := &mockMoneroWallet{
		openOrCreate: func(context.Context, string) error { return nil },
		balances:     []coins.PiconeroAmount{coins.PiconeroAmount(0)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s4.WatchForXMRLock(ctx, xmrWallet)
	require.Error(t, err)
}

func buildBobThroughState6(t *testing.T) (*State6, *mockBitcoinWallet, *protocol.KeysAndProof) {
	t.Helper()
	s3, btcWallet, aliceKeys := buildBobThroughState3(t)
	s4 := &State4{State3: s3}
	s5 := &State5{State4: s4}

	_, s6, err := s5.NextMessage(context.Background(), btcWallet)
	require.NoError(t, err)
	return s6, btcWallet, aliceKeys
}

func TestBobNextMessageState5ProducesValidEncSig(t *testing.T) {
	s6, _, aliceKeys := buildBobThroughState6(t)
	require.NotNil(t, s6.TxRedeemEncSig)
	require.NotNil(t, s6.TxRedeem)

	digest, err := s6.TxRedeem.Digest(s6.TxLock.PkScript(), int64(s6.TxLock.Amount))
	require.NoError(t, err)
	require.NoError(t, adaptor.Verify(s6.Keys.MultisigKey.Public(), aliceKeys.Secret.Secp256k1Public(), digest, s6.TxRedeemEncSig))
}

func TestWatchForRedeemThenClaimXMRRecoversSpendKey(t *testing.T) {
	s6, btcWallet, aliceKeys := buildBobThroughState6(t)

	digest, err := s6.TxRedeem.Digest(s6.TxLock.PkScript(), int64(s6.TxLock.Amount))
	require.NoError(t, err)

	// Simulate Alice: she decrypts Bob's redeem adaptor signature with her
	// own cross-curve secret, signs her own multisig half, and assembles
	// the broadcast TxRedeem.
	sigBobDecrypted, err := adaptor.Decrypt(aliceKeys.Secret.Secp256k1Scalar(), s6.TxRedeemEncSig)
	require.NoError(t, err)
	sigAlice, err := aliceKeys.MultisigKey.Sign(digest)
	require.NoError(t, err)

	require.NoError(t, s6.TxRedeem.AddSignatures(s6.TxLock.PkScript(), int64(s6.TxLock.Amount),
		aliceKeys.MultisigKey.Public(), s6.Keys.MultisigKey.Public(), sigAlice, sigBobDecrypted))

	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		return s6.TxRedeem.Tx, nil
	}

	var sweptTo monero.Address
	xmrWallet := &mockMoneroWallet{
		importOutput: func(ctx context.Context, keys *monero.PrivateKeyPair, sweepTo monero.Address) (string, error) {
			sweptTo = sweepTo
			return "sweep-txid", nil
		},
	}

	done, err := s6.WatchForRedeemThenClaimXMR(context.Background(), btcWallet, xmrWallet)
	require.NoError(t, err)
	require.Equal(t, "sweep-txid", done.XMRTxHash)
	require.Equal(t, s6.XMRReceiveAddress, sweptTo)
}

func TestPublishCancelBroadcastsAndWatches(t *testing.T) {
	s3, btcWallet, _ := buildBobThroughState3(t)

	btcWallet.broadcast = func(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
		return chainhash.Hash{}, nil
	}
	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		return s3.TxCancel.Tx, nil
	}

	cancelled, err := s3.PublishCancel(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
}

func TestPublishRefundDecryptsAndBroadcasts(t *testing.T) {
	s3, btcWallet, _ := buildBobThroughState3(t)
	cancelled := &Cancelled{State3: s3}

	btcWallet.broadcast = func(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
		return chainhash.Hash{}, nil
	}

	refunded, err := cancelled.PublishRefund(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotEmpty(t, refunded.Txid)
	require.Equal(t, 1, btcWallet.broadcastCalls)
}

func TestWatchForPunishObservesConfirmation(t *testing.T) {
	s3, btcWallet, _ := buildBobThroughState3(t)
	cancelled := &Cancelled{State3: s3}

	var seenTxid chainhash.Hash
	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		seenTxid = txid
		return wire.NewMsgTx(2), nil
	}

	punished, err := cancelled.WatchForPunish(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotNil(t, punished)
	require.NotEqual(t, chainhash.Hash{}, seenTxid)
}
