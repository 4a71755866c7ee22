package btc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// txSigHashAll is the SIGHASH_ALL type byte appended to every signature
// this package places in a witness stack.
const txSigHashAll = txscript.SigHashAll

// relativeLockTxVersion is the transaction version TxCancel and TxPunish
// are built with: BIP68 sequence locks and OP_CHECKSEQUENCEVERIFY only
// apply to transactions of version 2 or higher.
const relativeLockTxVersion = 2

// txscriptPayToAddr builds the output script paying addr, the standard
// library's own address-to-script resolver — there is no protocol-specific
// variation here, unlike the custom 2-of-2 and cancel scripts above.
func txscriptPayToAddr(addr btcutil.Address) ([]byte, error) {
	return txscript.PayToAddrScript(addr)
}

// FundingUTXO is one spendable coin a wallet offers up to fund TxLock.
type FundingUTXO struct {
	OutPoint wire.OutPoint
	Output   *wire.TxOut
}

// FundingSource is the minimal wallet capability build_lock needs: select
// enough confirmed UTXOs to cover amount plus fee, returning an optional
// change output. The full wallet capability contract (balance, addresses,
// broadcast, ...) lives outside this package, as an external collaborator.
type FundingSource interface {
	SelectUTXOs(amount btcutil.Amount) (utxos []FundingUTXO, change *wire.TxOut, err error)
}

// TxLock is the 2-of-2 output Bob funds, between Alice's A and Bob's B.
type TxLock struct {
	Tx            *wire.MsgTx
	WitnessScript []byte
	OutputIndex   uint32
	Amount        btcutil.Amount
}

// PkScript returns TxLock's P2WSH output script.
func (t *TxLock) PkScript() []byte {
	return t.Tx.TxOut[t.OutputIndex].PkScript
}

// OutPoint identifies TxLock's 2-of-2 output, the point every downstream
// transaction in the family spends from.
func (t *TxLock) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: t.Txid(), Index: t.OutputIndex}
}

// Txid returns TxLock's transaction hash, the identifier the driver
// watches the chain for.
func (t *TxLock) Txid() chainhash.Hash {
	return t.Tx.TxHash()
}

// BuildLock constructs TxLock: one 2-of-2 P2WSH output of amount between A
// and B, funded by whatever UTXOs funder selects, with funder's change
// output (if any) appended second.
func BuildLock(funder FundingSource, amount btcutil.Amount, a, b *secp256k1.BitcoinPublic) (*TxLock, error) {
	witnessScript, err := twoOfTwoScript(a, b)
	if err != nil {
		return nil, fmt.Errorf("btc: building lock witness script: %w", err)
	}
	pkScript, err := p2wshOutputScript(witnessScript)
	if err != nil {
		return nil, fmt.Errorf("btc: building lock pkscript: %w", err)
	}

	utxos, change, err := funder.SelectUTXOs(amount)
	if err != nil {
		return nil, fmt.Errorf("btc: selecting lock funding utxos: %w", err)
	}
	if len(utxos) == 0 {
		return nil, fmt.Errorf("btc: funding source returned no utxos")
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range utxos {
		tx.AddTxIn(wire.NewTxIn(&u.OutPoint, nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))
	if change != nil {
		tx.AddTxOut(change)
	}

	return &TxLock{Tx: tx, WitnessScript: witnessScript, OutputIndex: 0, Amount: amount}, nil
}

// ToPSBT wraps TxLock's unsigned transaction in PSBT form, the wire shape
// Message2 carries it in so Alice can validate it before TxLock broadcasts.
func (t *TxLock) ToPSBT() (*psbt.Packet, error) {
	return psbt.NewFromUnsignedTx(t.Tx)
}

// TxLockFromPSBT reconstructs a TxLock from its PSBT wire form plus the
// witness script both parties already agree on, so Alice can recompute and
// check its sighashes against her own copy of the swap parameters.
func TxLockFromPSBT(pkt *psbt.Packet, witnessScript []byte, outputIndex uint32, amount btcutil.Amount) *TxLock {
	return &TxLock{Tx: pkt.UnsignedTx, WitnessScript: witnessScript, OutputIndex: outputIndex, Amount: amount}
}

// TxCancel spends TxLock's 2-of-2 output after cancel_timelock, to an
// output satisfiable either by the full A-and-B multisig (TxRefund, with
// A's slot filled by Bob decrypting Alice's refund adaptor signature) or,
// after a further punish_timelock, by Alice alone (TxPunish).
type TxCancel struct {
	Tx             *wire.MsgTx
	WitnessScript  []byte // spends TxLock: twoOfTwoScript(a, b)
	OutputScript   []byte // cancelOutputScript(punishTimelock, a, b)
	CancelTimelock uint32
	PunishTimelock uint32
	Amount         btcutil.Amount
}

// BuildCancel constructs the unsigned TxCancel spending tx_lock's output,
// relative-timelocked by cancelTimelock blocks (BIP68), paying its full
// value minus fee into the refund/punish output script.
func BuildCancel(lock *TxLock, cancelTimelock, punishTimelock uint32, fee btcutil.Amount, a, b *secp256k1.BitcoinPublic) (*TxCancel, error) {
	if fee >= lock.Amount {
		return nil, fmt.Errorf("btc: cancel fee %d >= lock amount %d", fee, lock.Amount)
	}

	outputScript, err := cancelOutputScript(punishTimelock, a, b)
	if err != nil {
		return nil, fmt.Errorf("btc: building cancel output script: %w", err)
	}
	pkScript, err := p2wshOutputScript(outputScript)
	if err != nil {
		return nil, fmt.Errorf("btc: building cancel pkscript: %w", err)
	}

	txIn := wire.NewTxIn(outPointPtr(lock.OutPoint()), nil, nil)
	txIn.Sequence = cancelTimelock

	tx := wire.NewMsgTx(relativeLockTxVersion)
	tx.AddTxIn(txIn)
	amount := lock.Amount - fee
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))

	lockWitnessScript, err := twoOfTwoScript(a, b)
	if err != nil {
		return nil, fmt.Errorf("btc: rebuilding lock witness script: %w", err)
	}

	return &TxCancel{
		Tx:             tx,
		WitnessScript:  lockWitnessScript,
		OutputScript:   outputScript,
		CancelTimelock: cancelTimelock,
		PunishTimelock: punishTimelock,
		Amount:         amount,
	}, nil
}

// Digest returns the sighash TxCancel's single input must be signed
// against by both Alice and Bob.
func (c *TxCancel) Digest(lockPkScript []byte, lockAmount int64) ([]byte, error) {
	return sigHashDigest(c.Tx, 0, lockPkScript, lockAmount, c.WitnessScript)
}

// AddSignatures finalizes TxCancel's witness from Alice's and Bob's
// signatures over its digest. Order-independent at the call site: both
// signatures are verified against the digest before the witness (which,
// per twoOfTwoScript, must carry them B-then-A) is assembled.
func (c *TxCancel) AddSignatures(lockPkScript []byte, lockAmount int64, a, b *secp256k1.BitcoinPublic, sigA, sigB *secp256k1.Signature) error {
	digest, err := c.Digest(lockPkScript, lockAmount)
	if err != nil {
		return err
	}
	if !a.Verify(digest, sigA) {
		return fmt.Errorf("btc: alice's cancel signature does not verify")
	}
	if !b.Verify(digest, sigB) {
		return fmt.Errorf("btc: bob's cancel signature does not verify")
	}
	c.Tx.TxIn[0].Witness = wire.TxWitness{
		append(sigB.Serialize(), byte(txSigHashAll)),
		append(sigA.Serialize(), byte(txSigHashAll)),
		c.WitnessScript,
	}
	return nil
}

// OutPoint identifies TxCancel's output, spent by either TxRefund or
// TxPunish.
func (c *TxCancel) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: c.Tx.TxHash(), Index: 0}
}

// Txid returns TxCancel's transaction hash.
func (c *TxCancel) Txid() chainhash.Hash {
	return c.Tx.TxHash()
}

// PkScript returns TxCancel's P2WSH output script.
func (c *TxCancel) PkScript() []byte {
	return c.Tx.TxOut[0].PkScript
}

// TxRefund spends TxCancel's immediate multisig branch to Bob's refund
// address, once TxCancel is confirmed. It needs Bob's own signature plus
// Alice's signature, which Bob obtains by decrypting her refund adaptor
// signature with his cross-curve secret s_b — the one action that
// inescapably discloses that secret to Alice once she observes the
// broadcast.
type TxRefund struct {
	Tx            *wire.MsgTx
	WitnessScript []byte // TxCancel's OutputScript
}

// BuildRefund constructs the unsigned TxRefund spending cancel's output to
// refundAddress, paying its full value minus fee.
func BuildRefund(cancel *TxCancel, refundAddress btcutil.Address, fee btcutil.Amount) (*TxRefund, error) {
	if fee >= cancel.Amount {
		return nil, fmt.Errorf("btc: refund fee %d >= cancel amount %d", fee, cancel.Amount)
	}
	pkScript, err := txscriptPayToAddr(refundAddress)
	if err != nil {
		return nil, fmt.Errorf("btc: building refund output script: %w", err)
	}

	outPoint := cancel.OutPoint()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(cancel.Amount-fee), pkScript))

	return &TxRefund{Tx: tx, WitnessScript: cancel.OutputScript}, nil
}

// Digest returns the sighash TxRefund's single input must be signed
// against by both Alice and Bob.
func (r *TxRefund) Digest(cancelPkScript []byte, cancelAmount int64) ([]byte, error) {
	return sigHashDigest(r.Tx, 0, cancelPkScript, cancelAmount, r.WitnessScript)
}

// AddSignatures finalizes TxRefund's witness from Alice's signature
// (recovered by Bob decrypting her refund adaptor signature) and Bob's own
// signature, taking cancelOutputScript's immediate multisig branch. The
// leading nil is the OP_CHECKMULTISIG off-by-one dummy element.
func (r *TxRefund) AddSignatures(cancelPkScript []byte, cancelAmount int64, a, b *secp256k1.BitcoinPublic, sigA, sigB *secp256k1.Signature) error {
	digest, err := r.Digest(cancelPkScript, cancelAmount)
	if err != nil {
		return err
	}
	if !a.Verify(digest, sigA) {
		return fmt.Errorf("btc: alice's refund signature does not verify")
	}
	if !b.Verify(digest, sigB) {
		return fmt.Errorf("btc: bob's refund signature does not verify")
	}
	r.Tx.TxIn[0].Witness = wire.TxWitness{
		nil,
		append(sigA.Serialize(), byte(txSigHashAll)),
		append(sigB.Serialize(), byte(txSigHashAll)),
		r.WitnessScript,
	}
	return nil
}

// ExtractSignatureByKey recovers the ECDSA signature verifying under key
// from a fully-signed TxRefund's witness. This is how Alice, watching the
// chain, turns Bob's broadcast TxRefund into the plain signature she feeds
// to adaptor.Recover to obtain s_b.
func (r *TxRefund) ExtractSignatureByKey(key *secp256k1.BitcoinPublic, cancelPkScript []byte, cancelAmount int64) (*secp256k1.Signature, error) {
	return extractMultisigSignatureByKey(r.Tx, key, cancelPkScript, cancelAmount, r.WitnessScript)
}

// TxPunish spends TxCancel's punish branch to Alice's punish address, once
// punish_timelock blocks have passed since TxCancel confirmed; it needs
// only Alice's signature, placed beneath three empty placeholders (the
// CHECKMULTISIG dummy and its two signature slots) that satisfy the
// NULLFAIL rule for an intentionally failed multisig check and force
// script execution into the punish branch.
type TxPunish struct {
	Tx            *wire.MsgTx
	WitnessScript []byte // TxCancel's OutputScript
}

// BuildPunish constructs the unsigned TxPunish spending cancel's output to
// punishAddress, relative-timelocked by punishTimelock blocks (BIP68) on
// top of cancel's own confirmation.
func BuildPunish(cancel *TxCancel, punishAddress btcutil.Address, punishTimelock uint32, fee btcutil.Amount) (*TxPunish, error) {
	if fee >= cancel.Amount {
		return nil, fmt.Errorf("btc: punish fee %d >= cancel amount %d", fee, cancel.Amount)
	}
	pkScript, err := txscriptPayToAddr(punishAddress)
	if err != nil {
		return nil, fmt.Errorf("btc: building punish output script: %w", err)
	}

	outPoint := cancel.OutPoint()
	txIn := wire.NewTxIn(&outPoint, nil, nil)
	txIn.Sequence = punishTimelock

	tx := wire.NewMsgTx(relativeLockTxVersion)
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(int64(cancel.Amount-fee), pkScript))

	return &TxPunish{Tx: tx, WitnessScript: cancel.OutputScript}, nil
}

// Digest returns the sighash TxPunish's single input must be signed
// against by Alice.
func (p *TxPunish) Digest(cancelPkScript []byte, cancelAmount int64) ([]byte, error) {
	return sigHashDigest(p.Tx, 0, cancelPkScript, cancelAmount, p.WitnessScript)
}

// AddSignature finalizes TxPunish's witness with Alice's signature first,
// followed by the three empty elements that force the NULLFAIL branch into
// cancelOutputScript's punish path.
func (p *TxPunish) AddSignature(cancelPkScript []byte, cancelAmount int64, a *secp256k1.BitcoinPublic, sigA *secp256k1.Signature) error {
	digest, err := p.Digest(cancelPkScript, cancelAmount)
	if err != nil {
		return err
	}
	if !a.Verify(digest, sigA) {
		return fmt.Errorf("btc: alice's punish signature does not verify")
	}
	p.Tx.TxIn[0].Witness = wire.TxWitness{
		append(sigA.Serialize(), byte(txSigHashAll)),
		nil,
		nil,
		nil,
		p.WitnessScript,
	}
	return nil
}

// TxRedeem spends TxLock's 2-of-2 output directly to Alice's redeem
// address. It requires both Alice's direct signature and Bob's signature,
// the latter obtained by Alice decrypting Bob's redeem adaptor signature
// with her cross-curve secret — the one action that inescapably discloses
// that secret on-chain.
type TxRedeem struct {
	Tx            *wire.MsgTx
	WitnessScript []byte // TxLock's twoOfTwoScript
}

// BuildRedeem constructs the unsigned TxRedeem spending lock's output to
// redeemAddress, paying its full value minus fee.
func BuildRedeem(lock *TxLock, redeemAddress btcutil.Address, fee btcutil.Amount) (*TxRedeem, error) {
	if fee >= lock.Amount {
		return nil, fmt.Errorf("btc: redeem fee %d >= lock amount %d", fee, lock.Amount)
	}
	pkScript, err := txscriptPayToAddr(redeemAddress)
	if err != nil {
		return nil, fmt.Errorf("btc: building redeem output script: %w", err)
	}

	outPoint := lock.OutPoint()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(lock.Amount-fee), pkScript))

	return &TxRedeem{Tx: tx, WitnessScript: lock.WitnessScript}, nil
}

// Digest returns the sighash TxRedeem's single input must be signed
// against by both Alice and Bob — the digest the adaptor signature's
// decryption target is computed over.
func (r *TxRedeem) Digest(lockPkScript []byte, lockAmount int64) ([]byte, error) {
	return sigHashDigest(r.Tx, 0, lockPkScript, lockAmount, r.WitnessScript)
}

// AddSignatures finalizes TxRedeem's witness from Alice's direct signature
// and Bob's signature recovered by decrypting his redeem adaptor
// signature. Order-independent at the call site; the witness is assembled
// B-then-A per twoOfTwoScript.
func (r *TxRedeem) AddSignatures(lockPkScript []byte, lockAmount int64, a, b *secp256k1.BitcoinPublic, sigA, sigB *secp256k1.Signature) error {
	digest, err := r.Digest(lockPkScript, lockAmount)
	if err != nil {
		return err
	}
	if !a.Verify(digest, sigA) {
		return fmt.Errorf("btc: alice's redeem signature does not verify")
	}
	if !b.Verify(digest, sigB) {
		return fmt.Errorf("btc: bob's redeem signature does not verify")
	}
	r.Tx.TxIn[0].Witness = wire.TxWitness{
		append(sigB.Serialize(), byte(txSigHashAll)),
		append(sigA.Serialize(), byte(txSigHashAll)),
		r.WitnessScript,
	}
	return nil
}

// ExtractSignatureByKey recovers the ECDSA signature verifying under key
// from a fully-signed TxRedeem's witness, matching spec operation
// extract_signature_by_key. This is how Bob, watching the chain, turns
// Alice's broadcast TxRedeem into the plain signature he feeds to
// adaptor.Recover to obtain s_a.
func (r *TxRedeem) ExtractSignatureByKey(key *secp256k1.BitcoinPublic, lockPkScript []byte, lockAmount int64) (*secp256k1.Signature, error) {
	return extractSignatureByKey(r.Tx, key, lockPkScript, lockAmount, r.WitnessScript)
}

func outPointPtr(op wire.OutPoint) *wire.OutPoint {
	return &op
}
