package alice

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/fxamacker/cbor/v2"

	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/coins"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/adaptor"
	"github.com/athanorlabs/xmr-btc-swap/crypto/dleq"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
	"github.com/athanorlabs/xmr-btc-swap/db"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
	"github.com/athanorlabs/xmr-btc-swap/wallet"
)

// Persistence tags for Alice's checkpointed states. Per spec.md §3.4, a
// state is checkpointed only when losing it would strand funds or let a
// crash replay an already-disclosed secret: State3 (Bob's TxLock depends on
// Alice already holding this) and State6 (the last state before TxRedeem's
// broadcast discloses s_a).
const (
	TagState3 db.Tag = 1
	TagState6 db.Tag = 2
)

// KnownTags is the set of tags db.Decode accepts for Alice's bucket.
var KnownTags = map[db.Tag]bool{TagState3: true, TagState6: true}

type paramsSnapshot struct {
	SwapID               string `cbor:"1,keyasint"`
	BTCAmount            int64  `cbor:"2,keyasint"`
	XMRAmount            uint64 `cbor:"3,keyasint"`
	CancelTimelock       uint32 `cbor:"4,keyasint"`
	PunishTimelock       uint32 `cbor:"5,keyasint"`
	RedeemAddress        string `cbor:"6,keyasint"`
	PunishAddress        string `cbor:"7,keyasint"`
	RefundAddress        string `cbor:"8,keyasint"`
	MoneroReceiveAddress string `cbor:"9,keyasint"`
}

func encodeParams(p *protocol.Params) paramsSnapshot {
	return paramsSnapshot{
		SwapID:               p.SwapID,
		BTCAmount:            int64(p.BTCAmount),
		XMRAmount:            p.XMRAmount.Uint64(),
		CancelTimelock:       p.CancelTimelock,
		PunishTimelock:       p.PunishTimelock,
		RedeemAddress:        p.RedeemAddress.EncodeAddress(),
		PunishAddress:        p.PunishAddress.EncodeAddress(),
		RefundAddress:        p.RefundAddress.EncodeAddress(),
		MoneroReceiveAddress: string(p.MoneroReceiveAddress),
	}
}

func decodeParams(s paramsSnapshot, env common.Environment) (*protocol.Params, error) {
	netParams := btc.NetParams(env)
	redeemAddr, err := btcutil.DecodeAddress(s.RedeemAddress, netParams)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted redeem address: %w", err)
	}
	punishAddr, err := btcutil.DecodeAddress(s.PunishAddress, netParams)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted punish address: %w", err)
	}
	refundAddr, err := btcutil.DecodeAddress(s.RefundAddress, netParams)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted refund address: %w", err)
	}
	return &protocol.Params{
		SwapID:               s.SwapID,
		BTCAmount:            btcutil.Amount(s.BTCAmount),
		XMRAmount:            coins.PiconeroAmount(s.XMRAmount),
		CancelTimelock:       s.CancelTimelock,
		PunishTimelock:       s.PunishTimelock,
		RedeemAddress:        redeemAddr,
		PunishAddress:        punishAddr,
		RefundAddress:        refundAddr,
		MoneroReceiveAddress: monero.Address(s.MoneroReceiveAddress),
	}, nil
}

type keysSnapshot struct {
	MultisigKey []byte `cbor:"1,keyasint"`
	Secret      []byte `cbor:"2,keyasint"`
	Proof       []byte `cbor:"3,keyasint"`
	ViewKey     []byte `cbor:"4,keyasint"`
}

func encodeKeys(k *protocol.KeysAndProof) keysSnapshot {
	msk := k.MultisigKey.Bytes()
	var secretBE [32]byte
	k.Secret.Secp256k1Scalar().PutBytesUnchecked(secretBE[:])
	return keysSnapshot{
		MultisigKey: msk[:],
		Secret:      common.Reverse(secretBE[:]),
		Proof:       k.Proof.Bytes(),
		ViewKey:     k.ViewKey.Bytes(),
	}
}

func decodeKeys(s keysSnapshot) (*protocol.KeysAndProof, error) {
	msk, err := secp256k1.NewBitcoinSecret(s.MultisigKey)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted multisig key: %w", err)
	}
	secret, err := dleq.NewCrossCurveScalar(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted cross-curve secret: %w", err)
	}
	proof, err := dleq.ProofFromBytes(s.Proof)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted dleq proof: %w", err)
	}
	viewKey, err := monero.NewPrivateViewKeyFromBytes(s.ViewKey)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted view key: %w", err)
	}
	return &protocol.KeysAndProof{MultisigKey: msk, Secret: secret, Proof: proof, ViewKey: viewKey}, nil
}

type bobKeysSnapshot struct {
	MultisigKey     []byte `cbor:"1,keyasint"`
	Secp256k1Public []byte `cbor:"2,keyasint"`
	Ed25519Public   []byte `cbor:"3,keyasint"`
	ViewKey         []byte `cbor:"4,keyasint"`
	RefundAddress   string `cbor:"5,keyasint"`
}

func encodeBobKeys(b *BobKeys) bobKeysSnapshot {
	return bobKeysSnapshot{
		MultisigKey:     b.MultisigKey.CompressedBytes(),
		Secp256k1Public: b.Secp256k1Public.CompressedBytes(),
		Ed25519Public:   b.Ed25519Public.Bytes(),
		ViewKey:         b.ViewKey.Bytes(),
		RefundAddress:   b.RefundAddress.EncodeAddress(),
	}
}

func decodeBobKeys(s bobKeysSnapshot, env common.Environment) (*BobKeys, error) {
	msk, err := secp256k1.NewBitcoinPublicFromBytes(s.MultisigKey)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted bob multisig key: %w", err)
	}
	sb, err := secp256k1.NewBitcoinPublicFromBytes(s.Secp256k1Public)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted bob encryption point: %w", err)
	}
	ed, err := monero.NewPublicKeyFromBytes(s.Ed25519Public)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted bob spend-key share: %w", err)
	}
	vk, err := monero.NewPrivateViewKeyFromBytes(s.ViewKey)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted bob view key: %w", err)
	}
	addr, err := btcutil.DecodeAddress(s.RefundAddress, btc.NetParams(env))
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted bob refund address: %w", err)
	}
	return &BobKeys{
		MultisigKey:     msk,
		Secp256k1Public: sb,
		Ed25519Public:   ed,
		ViewKey:         vk,
		RefundAddress:   addr,
	}, nil
}

type txLockSnapshot struct {
	Tx            []byte `cbor:"1,keyasint"`
	WitnessScript []byte `cbor:"2,keyasint"`
	OutputIndex   uint32 `cbor:"3,keyasint"`
	Amount        int64  `cbor:"4,keyasint"`
}

func encodeTxLock(t *btc.TxLock) (txLockSnapshot, error) {
	raw, err := serializeTx(t.Tx)
	if err != nil {
		return txLockSnapshot{}, err
	}
	return txLockSnapshot{Tx: raw, WitnessScript: t.WitnessScript, OutputIndex: t.OutputIndex, Amount: int64(t.Amount)}, nil
}

func decodeTxLock(s txLockSnapshot) (*btc.TxLock, error) {
	tx, err := deserializeTx(s.Tx)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted TxLock: %w", err)
	}
	return &btc.TxLock{Tx: tx, WitnessScript: s.WitnessScript, OutputIndex: s.OutputIndex, Amount: btcutil.Amount(s.Amount)}, nil
}

type txCancelSnapshot struct {
	Tx             []byte `cbor:"1,keyasint"`
	WitnessScript  []byte `cbor:"2,keyasint"`
	OutputScript   []byte `cbor:"3,keyasint"`
	CancelTimelock uint32 `cbor:"4,keyasint"`
	PunishTimelock uint32 `cbor:"5,keyasint"`
	Amount         int64  `cbor:"6,keyasint"`
}

func encodeTxCancel(c *btc.TxCancel) (txCancelSnapshot, error) {
	raw, err := serializeTx(c.Tx)
	if err != nil {
		return txCancelSnapshot{}, err
	}
	return txCancelSnapshot{
		Tx:             raw,
		WitnessScript:  c.WitnessScript,
		OutputScript:   c.OutputScript,
		CancelTimelock: c.CancelTimelock,
		PunishTimelock: c.PunishTimelock,
		Amount:         int64(c.Amount),
	}, nil
}

func decodeTxCancel(s txCancelSnapshot) (*btc.TxCancel, error) {
	tx, err := deserializeTx(s.Tx)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted TxCancel: %w", err)
	}
	return &btc.TxCancel{
		Tx:             tx,
		WitnessScript:  s.WitnessScript,
		OutputScript:   s.OutputScript,
		CancelTimelock: s.CancelTimelock,
		PunishTimelock: s.PunishTimelock,
		Amount:         btcutil.Amount(s.Amount),
	}, nil
}

type txRefundSnapshot struct {
	Tx            []byte `cbor:"1,keyasint"`
	WitnessScript []byte `cbor:"2,keyasint"`
}

func encodeTxRefund(r *btc.TxRefund) (txRefundSnapshot, error) {
	raw, err := serializeTx(r.Tx)
	if err != nil {
		return txRefundSnapshot{}, err
	}
	return txRefundSnapshot{Tx: raw, WitnessScript: r.WitnessScript}, nil
}

func decodeTxRefund(s txRefundSnapshot) (*btc.TxRefund, error) {
	tx, err := deserializeTx(s.Tx)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted TxRefund: %w", err)
	}
	return &btc.TxRefund{Tx: tx, WitnessScript: s.WitnessScript}, nil
}

type txRedeemSnapshot struct {
	Tx            []byte `cbor:"1,keyasint"`
	WitnessScript []byte `cbor:"2,keyasint"`
}

func encodeTxRedeem(r *btc.TxRedeem) (txRedeemSnapshot, error) {
	raw, err := serializeTx(r.Tx)
	if err != nil {
		return txRedeemSnapshot{}, err
	}
	return txRedeemSnapshot{Tx: raw, WitnessScript: r.WitnessScript}, nil
}

func decodeTxRedeem(s txRedeemSnapshot) (*btc.TxRedeem, error) {
	tx, err := deserializeTx(s.Tx)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted TxRedeem: %w", err)
	}
	return &btc.TxRedeem{Tx: tx, WitnessScript: s.WitnessScript}, nil
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("alice: serializing transaction: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializeTx(raw []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}

type state3Snapshot struct {
	Params         paramsSnapshot   `cbor:"1,keyasint"`
	Env            byte             `cbor:"2,keyasint"`
	Keys           keysSnapshot     `cbor:"3,keyasint"`
	Bob            bobKeysSnapshot  `cbor:"4,keyasint"`
	TxLock         txLockSnapshot   `cbor:"5,keyasint"`
	TxCancel       txCancelSnapshot `cbor:"6,keyasint"`
	TxCancelSigA   []byte           `cbor:"7,keyasint"`
	TxRefund       txRefundSnapshot `cbor:"8,keyasint"`
	TxRefundEncSig []byte           `cbor:"9,keyasint"`
}

func (s *State3) toSnapshot() (state3Snapshot, error) {
	txLock, err := encodeTxLock(s.TxLock)
	if err != nil {
		return state3Snapshot{}, err
	}
	txCancel, err := encodeTxCancel(s.TxCancel)
	if err != nil {
		return state3Snapshot{}, err
	}
	txRefund, err := encodeTxRefund(s.TxRefund)
	if err != nil {
		return state3Snapshot{}, err
	}
	return state3Snapshot{
		Params:         encodeParams(s.Params),
		Env:            byte(s.Env),
		Keys:           encodeKeys(s.Keys),
		Bob:            encodeBobKeys(s.Bob),
		TxLock:         txLock,
		TxCancel:       txCancel,
		TxCancelSigA:   s.TxCancelSigA.Serialize(),
		TxRefund:       txRefund,
		TxRefundEncSig: s.TxRefundEncSig.Bytes(),
	}, nil
}

func state3FromSnapshot(snap state3Snapshot) (*State3, error) {
	env := common.Environment(snap.Env)
	params, err := decodeParams(snap.Params, env)
	if err != nil {
		return nil, err
	}
	keys, err := decodeKeys(snap.Keys)
	if err != nil {
		return nil, err
	}
	bobKeys, err := decodeBobKeys(snap.Bob, env)
	if err != nil {
		return nil, err
	}
	txLock, err := decodeTxLock(snap.TxLock)
	if err != nil {
		return nil, err
	}
	txCancel, err := decodeTxCancel(snap.TxCancel)
	if err != nil {
		return nil, err
	}
	sigA, err := secp256k1.NewSignatureFromDER(snap.TxCancelSigA)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted TxCancel signature: %w", err)
	}
	txRefund, err := decodeTxRefund(snap.TxRefund)
	if err != nil {
		return nil, err
	}
	encSig, err := adaptor.EncryptedSignatureFromBytes(snap.TxRefundEncSig)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted TxRefund adaptor signature: %w", err)
	}

	return &State3{
		State2: &State2{
			State1: &State1{
				State0: &State0{Params: params, Env: env, Keys: keys},
				Bob:    bobKeys,
			},
			TxLock: txLock,
		},
		TxCancel:       txCancel,
		TxCancelSigA:   sigA,
		TxRefund:       txRefund,
		TxRefundEncSig: encSig,
	}, nil
}

// Marshal encodes s as the persisted blob for TagState3.
func (s *State3) Marshal() ([]byte, error) {
	snap, err := s.toSnapshot()
	if err != nil {
		return nil, err
	}
	return db.Encode(TagState3, snap)
}

// UnmarshalState3 decodes a TagState3 payload back into a State3.
func UnmarshalState3(payload cbor.RawMessage) (*State3, error) {
	var snap state3Snapshot
	if err := db.DecodePayload(payload, &snap); err != nil {
		return nil, fmt.Errorf("alice: decoding persisted state3 payload: %w", err)
	}
	return state3FromSnapshot(snap)
}

type state6Snapshot struct {
	State3         state3Snapshot   `cbor:"1,keyasint"`
	XMRTxHash      string           `cbor:"2,keyasint"`
	XMRTxKey       string           `cbor:"3,keyasint"`
	TxRedeem       txRedeemSnapshot `cbor:"4,keyasint"`
	TxRedeemEncSig []byte           `cbor:"5,keyasint"`
}

// Marshal encodes s as the persisted blob for TagState6.
func (s *State6) Marshal() ([]byte, error) {
	base, err := s.State3.toSnapshot()
	if err != nil {
		return nil, err
	}
	txRedeem, err := encodeTxRedeem(s.TxRedeem)
	if err != nil {
		return nil, err
	}
	snap := state6Snapshot{
		State3:         base,
		XMRTxHash:      s.XMRTransferProof.TxHash,
		XMRTxKey:       s.XMRTransferProof.Key,
		TxRedeem:       txRedeem,
		TxRedeemEncSig: s.TxRedeemEncSig.Bytes(),
	}
	return db.Encode(TagState6, snap)
}

// UnmarshalState6 decodes a TagState6 payload back into a State6.
func UnmarshalState6(payload cbor.RawMessage) (*State6, error) {
	var snap state6Snapshot
	if err := db.DecodePayload(payload, &snap); err != nil {
		return nil, fmt.Errorf("alice: decoding persisted state6 payload: %w", err)
	}
	state3, err := state3FromSnapshot(snap.State3)
	if err != nil {
		return nil, err
	}
	txRedeem, err := decodeTxRedeem(snap.TxRedeem)
	if err != nil {
		return nil, err
	}
	encSig, err := adaptor.EncryptedSignatureFromBytes(snap.TxRedeemEncSig)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted TxRedeem adaptor signature: %w", err)
	}
	return &State6{
		State5: &State5{
			State4:           &State4{State3: state3},
			XMRTransferProof: &wallet.TransferProof{TxHash: snap.XMRTxHash, Key: snap.XMRTxKey},
		},
		TxRedeem:       txRedeem,
		TxRedeemEncSig: encSig,
	}, nil
}
