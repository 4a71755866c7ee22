package alice

import (
	"bytes"
	"context"
	"testing"
	"time"

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

// fakeTransport implements transport.Transport for tests that only need to
// control what Receive returns.
type fakeTransport struct {
	receive func(ctx context.Context, timeout time.Duration) (common.Message, error)
}

func (f *fakeTransport) Send(ctx context.Context, msg common.Message) error { return nil }
func (f *fakeTransport) Receive(ctx context.Context, timeout time.Duration) (common.Message, error) {
	return f.receive(ctx, timeout)
}

// mockBitcoinWallet implements wallet.BitcoinWallet with overridable
// behavior per test; a method whose field is left nil panics if called, so
// a test only wires up what its transition actually reaches.
type mockBitcoinWallet struct {
	selectUTXOs func(btcutil.Amount) ([]btc.FundingUTXO, *wire.TxOut, error)
	broadcast   func(context.Context, *wire.MsgTx) (chainhash.Hash, error)
	watchForRaw func(context.Context, chainhash.Hash) (*wire.MsgTx, error)
	feeRate     func(context.Context) (btcutil.Amount, error)

	broadcastCalls int
}

func (m *mockBitcoinWallet) SelectUTXOs(amount btcutil.Amount) ([]btc.FundingUTXO, *wire.TxOut, error) {
	return m.selectUTXOs(amount)
}
func (m *mockBitcoinWallet) SignTx(tx *wire.MsgTx) (*wire.MsgTx, error) { panic("not implemented") }
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
	transfer     func(context.Context, monero.Address, coins.PiconeroAmount) (*wallet.TransferProof, error)
}

func (m *mockMoneroWallet) OpenOrCreate(ctx context.Context, name string) error {
	return m.openOrCreate(ctx, name)
}
func (m *mockMoneroWallet) Transfer(ctx context.Context, address monero.Address, amount coins.PiconeroAmount) (*wallet.TransferProof, error) {
	return m.transfer(ctx, address, amount)
}
func (m *mockMoneroWallet) CheckTransfer(ctx context.Context, publicSpend, publicView *monero.PublicKey, proof *wallet.TransferProof, amount coins.PiconeroAmount) error {
	panic("not implemented")
}
func (m *mockMoneroWallet) ImportOutput(ctx context.Context, keys *monero.PrivateKeyPair, sweepTo monero.Address) (string, error) {
	panic("not implemented")
}
func (m *mockMoneroWallet) GetBalance(ctx context.Context) (coins.PiconeroAmount, error) {
	panic("not implemented")
}
func (m *mockMoneroWallet) GetMainAddress(ctx context.Context) (monero.Address, error) {
	panic("not implemented")
}
func (m *mockMoneroWallet) Refresh(ctx context.Context) error { panic("not implemented") }
func (m *mockMoneroWallet) Height(ctx context.Context) (uint64, error) {
	panic("not implemented")
}

func testParams(t *testing.T, swapID string) *protocol.Params {
	t.Helper()
	var redeemHash, punishHash [20]byte
	redeemHash[0] = 0x01
	punishHash[0] = 0x02
	redeem, err := btcutil.NewAddressWitnessPubKeyHash(redeemHash[:], &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	punish, err := btcutil.NewAddressWitnessPubKeyHash(punishHash[:], &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	return &protocol.Params{
		SwapID:               swapID,
		BTCAmount:            1_000_000,
		XMRAmount:            coins.PiconeroAmount(500_000_000_000),
		CancelTimelock:       10,
		PunishTimelock:       10,
		RedeemAddress:        redeem,
		PunishAddress:        punish,
		RefundAddress:        testRefundAddress(t),
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

// buildState2 drives a fresh Alice State0 through the handshake and State2
// (TxLock received and validated), returning also the real Bob key
// material used to build Message0/Message2 so later tests can simulate
// Bob's side of the protocol.
func buildState2(t *testing.T) (*State2, *mockBitcoinWallet, *protocol.KeysAndProof) {
	t.Helper()
	params := testParams(t, "swap-alice-transitions-1")

	s0, err := NewState0(params, common.Development)
	require.NoError(t, err)

	msg0, bobKeys := buildMessage0(t, params)
	s1, err := s0.Receive(msg0)
	require.NoError(t, err)

	btcWallet := newFundingWallet(0x44)
	txLock, err := btc.BuildLock(btcWallet, params.BTCAmount, s1.Keys.MultisigKey.Public(), bobKeys.MultisigKey.Public())
	require.NoError(t, err)

	pkt, err := txLock.ToPSBT()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, pkt.Serialize(&buf))

	s2, err := s1.Receive(&message.Message2{TxLockPSBT: buf.Bytes()})
	require.NoError(t, err)
	return s2, btcWallet, bobKeys
}

func TestAliceNextMessageState1Shape(t *testing.T) {
	params := testParams(t, "swap-msg1")
	s0, err := NewState0(params, common.Development)
	require.NoError(t, err)

	msg0, _ := buildMessage0(t, params)
	s1, err := s0.Receive(msg0)
	require.NoError(t, err)

	msg1 := s1.NextMessage()
	require.Len(t, msg1.A, 33)
	require.Len(t, msg1.SAMonero, 32)
	require.Len(t, msg1.SABitcoin, 33)
	require.Equal(t, params.RedeemAddress.EncodeAddress(), msg1.RedeemAddress)
	require.Equal(t, params.PunishAddress.EncodeAddress(), msg1.PunishAddress)
}

func TestReceiveMessage0RejectsWrongType(t *testing.T) {
	params := testParams(t, "swap-wrongtype")
	s0, err := NewState0(params, common.Development)
	require.NoError(t, err)

	msg0, _ := buildMessage0(t, params)
	s1, err := s0.Receive(msg0)
	require.NoError(t, err)

	_, err = s1.Receive(s1.NextMessage())
	require.ErrorIs(t, err, common.ErrUnexpectedMessage)
}

func TestState1ReceiveRejectsWrongLockAmount(t *testing.T) {
	params := testParams(t, "swap-wrongamount")
	s0, err := NewState0(params, common.Development)
	require.NoError(t, err)

	msg0, bobKeys := buildMessage0(t, params)
	s1, err := s0.Receive(msg0)
	require.NoError(t, err)

	btcWallet := newFundingWallet(0x55)
	txLock, err := btc.BuildLock(btcWallet, params.BTCAmount+1000, s1.Keys.MultisigKey.Public(), bobKeys.MultisigKey.Public())
	require.NoError(t, err)
	pkt, err := txLock.ToPSBT()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, pkt.Serialize(&buf))

	_, err = s1.Receive(&message.Message2{TxLockPSBT: buf.Bytes()})
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))
}

func TestState1ReceiveRejectsMalformedPSBT(t *testing.T) {
	params := testParams(t, "swap-malformed")
	s0, err := NewState0(params, common.Development)
	require.NoError(t, err)

	msg0, _ := buildMessage0(t, params)
	s1, err := s0.Receive(msg0)
	require.NoError(t, err)

	_, err = s1.Receive(&message.Message2{TxLockPSBT: []byte("not a psbt")})
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))
}

func TestState2NextMessageBuildsCancelAndRefund(t *testing.T) {
	s2, btcWallet, bobKeys := buildState2(t)

	msg3, s3, err := s2.NextMessage(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotEmpty(t, msg3.TxCancelSigA)
	require.NotEmpty(t, msg3.TxRefundEncSig)

	digest, err := s3.TxRefund.Digest(s3.TxCancel.PkScript(), int64(s3.TxCancel.Amount))
	require.NoError(t, err)
	require.NoError(t, adaptor.Verify(s3.Keys.MultisigKey.Public(), bobKeys.Secret.Secp256k1Public(), digest, s3.TxRefundEncSig))
}

func buildTransitionsState3(t *testing.T) (*State3, *mockBitcoinWallet, *protocol.KeysAndProof) {
	t.Helper()
	s2, btcWallet, bobKeys := buildState2(t)
	_, s3, err := s2.NextMessage(context.Background(), btcWallet)
	require.NoError(t, err)
	return s3, btcWallet, bobKeys
}

func TestWatchForTxLockConfirms(t *testing.T) {
	s3, btcWallet, _ := buildTransitionsState3(t)

	var seenTxid chainhash.Hash
	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		seenTxid = txid
		return s3.TxLock.Tx, nil
	}

	s4, err := s3.WatchForTxLock(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotNil(t, s4)
	require.Equal(t, s3.TxLock.Txid(), seenTxid)
}

func TestWatchForTxLockReturnsOnCancel(t *testing.T) {
	s3, btcWallet, _ := buildTransitionsState3(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		return nil, ctx.Err()
	}

	_, err := s3.WatchForTxLock(ctx, btcWallet)
	require.Error(t, err)
}

func buildState5(t *testing.T) (*State5, *mockBitcoinWallet, *protocol.KeysAndProof) {
	t.Helper()
	s3, btcWallet, bobKeys := buildTransitionsState3(t)
	s4 := &State4{State3: s3}

	xmrWallet := &mockMoneroWallet{
		openOrCreate: func(context.Context, string) error { return nil },
		transfer: func(ctx context.Context, address monero.Address, amount coins.PiconeroAmount) (*wallet.TransferProof, error) {
			return &wallet.TransferProof{TxHash: "lock-txhash", Key: "lock-txkey"}, nil
		},
	}
	s5, err := s4.LockXMR(context.Background(), xmrWallet)
	require.NoError(t, err)
	return s5, btcWallet, bobKeys
}

func TestLockXMRPublishesToSharedAddress(t *testing.T) {
	s5, _, _ := buildState5(t)
	require.Equal(t, "lock-txhash", s5.XMRTransferProof.TxHash)
}

func TestWatchForRedeemEncSigVerifiesBobsSignature(t *testing.T) {
	s5, btcWallet, bobKeys := buildState5(t)

	redeemFee := btc.EstimateFee(btc.KindRedeem, 10)
	txRedeem, err := btc.BuildRedeem(s5.TxLock, s5.Params.RedeemAddress, redeemFee)
	require.NoError(t, err)
	digest, err := txRedeem.Digest(s5.TxLock.PkScript(), int64(s5.TxLock.Amount))
	require.NoError(t, err)
	encSig, err := adaptor.EncSign(bobKeys.MultisigKey, s5.Keys.Secret.Secp256k1Public(), digest)
	require.NoError(t, err)

	fakeTransport := &fakeTransport{
		receive: func(ctx context.Context, timeout time.Duration) (common.Message, error) {
			return &message.Message4{TxRedeemEncSig: encSig.Bytes()}, nil
		},
	}

	s6, err := s5.WatchForRedeemEncSig(context.Background(), fakeTransport, 0, btcWallet)
	require.NoError(t, err)
	require.NotNil(t, s6.TxRedeemEncSig)
}

func TestWatchForRedeemEncSigRejectsWrongType(t *testing.T) {
	s5, btcWallet, _ := buildState5(t)

	fakeTransport := &fakeTransport{
		receive: func(ctx context.Context, timeout time.Duration) (common.Message, error) {
			return &message.Message2{TxLockPSBT: []byte{0x01}}, nil
		},
	}

	_, err := s5.WatchForRedeemEncSig(context.Background(), fakeTransport, 0, btcWallet)
	require.ErrorIs(t, err, common.ErrUnexpectedMessage)
}

func buildState6(t *testing.T) (*State6, *mockBitcoinWallet, *protocol.KeysAndProof) {
	t.Helper()
	s5, btcWallet, bobKeys := buildState5(t)

	redeemFee := btc.EstimateFee(btc.KindRedeem, 10)
	txRedeem, err := btc.BuildRedeem(s5.TxLock, s5.Params.RedeemAddress, redeemFee)
	require.NoError(t, err)
	digest, err := txRedeem.Digest(s5.TxLock.PkScript(), int64(s5.TxLock.Amount))
	require.NoError(t, err)
	encSig, err := adaptor.EncSign(bobKeys.MultisigKey, s5.Keys.Secret.Secp256k1Public(), digest)
	require.NoError(t, err)

	fakeTransport := &fakeTransport{
		receive: func(ctx context.Context, timeout time.Duration) (common.Message, error) {
			return &message.Message4{TxRedeemEncSig: encSig.Bytes()}, nil
		},
	}

	s6, err := s5.WatchForRedeemEncSig(context.Background(), fakeTransport, 0, btcWallet)
	require.NoError(t, err)
	return s6, btcWallet, bobKeys
}

func TestRedeemBTCDecryptsAndBroadcasts(t *testing.T) {
	s6, btcWallet, _ := buildState6(t)

	btcWallet.broadcast = func(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
		return chainhash.Hash{}, nil
	}

	done, err := s6.RedeemBTC(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotEmpty(t, done.Txid)
	require.Equal(t, 1, btcWallet.broadcastCalls)
}

func TestWaitForCancelObservesConfirmation(t *testing.T) {
	s3, btcWallet, _ := buildTransitionsState3(t)

	var seenTxid chainhash.Hash
	btcWallet.watchForRaw = func(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
		seenTxid = txid
		return wire.NewMsgTx(2), nil
	}

	cancelled, err := s3.WaitForCancel(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	require.Equal(t, s3.TxCancel.Txid(), seenTxid)
}

func TestPublishPunishSignsAndBroadcasts(t *testing.T) {
	s3, btcWallet, _ := buildTransitionsState3(t)
	cancelled := &Cancelled{State3: s3}

	btcWallet.broadcast = func(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
		return chainhash.Hash{}, nil
	}

	punished, err := cancelled.PublishPunish(context.Background(), btcWallet)
	require.NoError(t, err)
	require.NotEmpty(t, punished.Txid)
	require.Equal(t, 1, btcWallet.broadcastCalls)
}
