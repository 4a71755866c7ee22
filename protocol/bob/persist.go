package bob

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
)

// Persistence tags for Bob's checkpointed states. Symmetric to
// protocol/alice: State3 (before TxLock is ever broadcast) and State6
// (before Message4 discloses the material Alice needs to redeem).
const (
	TagState3 db.Tag = 1
	TagState6 db.Tag = 2
)

// KnownTags is the set of tags db.Decode accepts for Bob's bucket.
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
		return nil, fmt.Errorf("bob: decoding persisted redeem address: %w", err)
	}
	punishAddr, err := btcutil.DecodeAddress(s.PunishAddress, netParams)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted punish address: %w", err)
	}
	refundAddr, err := btcutil.DecodeAddress(s.RefundAddress, netParams)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted refund address: %w", err)
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
		return nil, fmt.Errorf("bob: decoding persisted multisig key: %w", err)
	}
	secret, err := dleq.NewCrossCurveScalar(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted cross-curve secret: %w", err)
	}
	proof, err := dleq.ProofFromBytes(s.Proof)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted dleq proof: %w", err)
	}
	viewKey, err := monero.NewPrivateViewKeyFromBytes(s.ViewKey)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted view key: %w", err)
	}
	return &protocol.KeysAndProof{MultisigKey: msk, Secret: secret, Proof: proof, ViewKey: viewKey}, nil
}

type aliceKeysSnapshot struct {
	MultisigKey     []byte `cbor:"1,keyasint"`
	Secp256k1Public []byte `cbor:"2,keyasint"`
	Ed25519Public   []byte `cbor:"3,keyasint"`
	ViewKey         []byte `cbor:"4,keyasint"`
	RedeemAddress   string `cbor:"5,keyasint"`
	PunishAddress   string `cbor:"6,keyasint"`
}

func encodeAliceKeys(a *AliceKeys) aliceKeysSnapshot {
	return aliceKeysSnapshot{
		MultisigKey:     a.MultisigKey.CompressedBytes(),
		Secp256k1Public: a.Secp256k1Public.CompressedBytes(),
		Ed25519Public:   a.Ed25519Public.Bytes(),
		ViewKey:         a.ViewKey.Bytes(),
		RedeemAddress:   a.RedeemAddress.EncodeAddress(),
		PunishAddress:   a.PunishAddress.EncodeAddress(),
	}
}

func decodeAliceKeys(s aliceKeysSnapshot, env common.Environment) (*AliceKeys, error) {
	msk, err := secp256k1.NewBitcoinPublicFromBytes(s.MultisigKey)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted alice multisig key: %w", err)
	}
	sa, err := secp256k1.NewBitcoinPublicFromBytes(s.Secp256k1Public)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted alice encryption point: %w", err)
	}
	ed, err := monero.NewPublicKeyFromBytes(s.Ed25519Public)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted alice spend-key share: %w", err)
	}
	vk, err := monero.NewPrivateViewKeyFromBytes(s.ViewKey)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted alice view key: %w", err)
	}
	netParams := btc.NetParams(env)
	redeemAddr, err := btcutil.DecodeAddress(s.RedeemAddress, netParams)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted alice redeem address: %w", err)
	}
	punishAddr, err := btcutil.DecodeAddress(s.PunishAddress, netParams)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted alice punish address: %w", err)
	}
	return &AliceKeys{
		MultisigKey:     msk,
		Secp256k1Public: sa,
		Ed25519Public:   ed,
		ViewKey:         vk,
		RedeemAddress:   redeemAddr,
		PunishAddress:   punishAddr,
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
		return nil, fmt.Errorf("bob: decoding persisted TxLock: %w", err)
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
		return nil, fmt.Errorf("bob: decoding persisted TxCancel: %w", err)
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
		return nil, fmt.Errorf("bob: decoding persisted TxRefund: %w", err)
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
		return nil, fmt.Errorf("bob: decoding persisted TxRedeem: %w", err)
	}
	return &btc.TxRedeem{Tx: tx, WitnessScript: s.WitnessScript}, nil
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("bob: serializing transaction: %w", err)
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
	Params              paramsSnapshot    `cbor:"1,keyasint"`
	Env                 byte              `cbor:"2,keyasint"`
	Keys                keysSnapshot      `cbor:"3,keyasint"`
	Alice               aliceKeysSnapshot `cbor:"4,keyasint"`
	TxLock              txLockSnapshot    `cbor:"5,keyasint"`
	TxCancel            txCancelSnapshot  `cbor:"6,keyasint"`
	TxCancelSigAlice    []byte            `cbor:"7,keyasint"`
	TxCancelSigBob      []byte            `cbor:"8,keyasint"`
	TxRefund            txRefundSnapshot  `cbor:"9,keyasint"`
	TxRefundEncSigAlice []byte            `cbor:"10,keyasint"`
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
		Params:              encodeParams(s.Params),
		Env:                 byte(s.Env),
		Keys:                encodeKeys(s.Keys),
		Alice:               encodeAliceKeys(s.Alice),
		TxLock:              txLock,
		TxCancel:            txCancel,
		TxCancelSigAlice:    s.TxCancelSigAlice.Serialize(),
		TxCancelSigBob:      s.TxCancelSigBob.Serialize(),
		TxRefund:            txRefund,
		TxRefundEncSigAlice: s.TxRefundEncSigAlice.Bytes(),
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
	aliceKeys, err := decodeAliceKeys(snap.Alice, env)
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
	sigAlice, err := secp256k1.NewSignatureFromDER(snap.TxCancelSigAlice)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted alice TxCancel signature: %w", err)
	}
	sigBob, err := secp256k1.NewSignatureFromDER(snap.TxCancelSigBob)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted bob TxCancel signature: %w", err)
	}
	txRefund, err := decodeTxRefund(snap.TxRefund)
	if err != nil {
		return nil, err
	}
	encSigAlice, err := adaptor.EncryptedSignatureFromBytes(snap.TxRefundEncSigAlice)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted alice refund adaptor signature: %w", err)
	}

	return &State3{
		State2: &State2{
			State1: &State1{
				State0: &State0{Params: params, Env: env, Keys: keys},
				Alice:  aliceKeys,
			},
			TxLock: txLock,
		},
		TxCancel:            txCancel,
		TxCancelSigAlice:    sigAlice,
		TxCancelSigBob:      sigBob,
		TxRefund:            txRefund,
		TxRefundEncSigAlice: encSigAlice,
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
		return nil, fmt.Errorf("bob: decoding persisted state3 payload: %w", err)
	}
	return state3FromSnapshot(snap)
}

type state6Snapshot struct {
	State3         state3Snapshot   `cbor:"1,keyasint"`
	TxRedeem       txRedeemSnapshot `cbor:"2,keyasint"`
	TxRedeemEncSig []byte           `cbor:"3,keyasint"`
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
		TxRedeem:       txRedeem,
		TxRedeemEncSig: s.TxRedeemEncSig.Bytes(),
	}
	return db.Encode(TagState6, snap)
}

// UnmarshalState6 decodes a TagState6 payload back into a State6.
func UnmarshalState6(payload cbor.RawMessage) (*State6, error) {
	var snap state6Snapshot
	if err := db.DecodePayload(payload, &snap); err != nil {
		return nil, fmt.Errorf("bob: decoding persisted state6 payload: %w", err)
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
		return nil, fmt.Errorf("bob: decoding persisted TxRedeem adaptor signature: %w", err)
	}
	return &State6{
		State5: &State5{State4: &State4{State3: state3}},
		TxRedeem:       txRedeem,
		TxRedeemEncSig: encSig,
	}, nil
}
