package btc

import (
	"errors"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// Errors returned by ExtractSignatureByKey, matching the fixed set of
// failure modes a single-input, single-witness-script transaction can
// exhibit.
var (
	ErrEmptyWitnessStack = errors.New("btc: witness stack is empty")
	ErrNoInputs          = errors.New("btc: transaction has no inputs")
	ErrTooManyInputs     = errors.New("btc: transaction has more than one input")
	ErrNotThreeWitnesses = errors.New("btc: witness stack does not have exactly three items")
	ErrNotFourWitnesses  = errors.New("btc: witness stack does not have exactly four items")
	ErrKeyNotFound       = errors.New("btc: no signature in the witness verifies under the given key")
)

// sigHashDigest computes the BIP143 witness sighash digest for input idx of
// tx, which spends an output of value amount carrying prevOutScript,
// executing witnessScript, under SIGHASH_ALL. Computed directly via
// CalcWitnessSigHash, rather than through txscript.RawTxInWitnessSignature,
// because signing goes through crypto/secp256k1's and crypto/adaptor's own
// Sign/EncSign methods rather than a raw btcec private key.
func sigHashDigest(tx *wire.MsgTx, idx int, prevOutScript []byte, amount int64, witnessScript []byte) ([]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOutScript, amount)
	hashCache := txscript.NewTxSigHashes(tx, fetcher)
	return txscript.CalcWitnessSigHash(witnessScript, hashCache, txscript.SigHashAll, tx, idx, amount)
}

// signDigest signs digest and appends the SIGHASH_ALL type byte, producing
// the exact bytes a witness stack signature element carries.
func signDigest(secret *secp256k1.BitcoinSecret, digest []byte) ([]byte, error) {
	sig, err := secret.Sign(digest)
	if err != nil {
		return nil, err
	}
	return append(sig.Serialize(), byte(txscript.SigHashAll)), nil
}

// stripSigHashType removes the trailing SIGHASH_ALL byte a witness
// signature element carries, leaving a bare DER signature.
func stripSigHashType(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	return b[:len(b)-1]
}

// extractSignatureByKey recovers, from a single-input transaction whose
// witness stack has exactly three items (two signature slots and the
// witness script, the shape TxRedeem and a fully-signed TxCancel both
// take), the ECDSA signature verifying under key. It fails with
// ErrEmptyWitnessStack, ErrNoInputs, ErrTooManyInputs, or
// ErrNotThreeWitnesses before ever looking at the signature bytes, and
// ErrKeyNotFound if neither slot verifies under key.
func extractSignatureByKey(tx *wire.MsgTx, key *secp256k1.BitcoinPublic, prevOutScript []byte, amount int64, witnessScript []byte) (*secp256k1.Signature, error) {
	if len(tx.TxIn) == 0 {
		return nil, ErrNoInputs
	}
	if len(tx.TxIn) > 1 {
		return nil, ErrTooManyInputs
	}

	witness := tx.TxIn[0].Witness
	if len(witness) == 0 {
		return nil, ErrEmptyWitnessStack
	}
	if len(witness) != 3 {
		return nil, ErrNotThreeWitnesses
	}

	digest, err := sigHashDigest(tx, 0, prevOutScript, amount, witnessScript)
	if err != nil {
		return nil, err
	}

	for _, raw := range witness[:2] {
		if len(raw) == 0 {
			continue
		}
		sig, err := secp256k1.NewSignatureFromDER(stripSigHashType(raw))
		if err != nil {
			continue
		}
		if key.Verify(digest, sig) {
			return sig, nil
		}
	}
	return nil, ErrKeyNotFound
}

// extractMultisigSignatureByKey is extractSignatureByKey's counterpart for
// a fully-signed TxRefund, whose witness carries the OP_CHECKMULTISIG
// off-by-one dummy ahead of its two signature slots: four items rather
// than three.
func extractMultisigSignatureByKey(tx *wire.MsgTx, key *secp256k1.BitcoinPublic, prevOutScript []byte, amount int64, witnessScript []byte) (*secp256k1.Signature, error) {
	if len(tx.TxIn) == 0 {
		return nil, ErrNoInputs
	}
	if len(tx.TxIn) > 1 {
		return nil, ErrTooManyInputs
	}

	witness := tx.TxIn[0].Witness
	if len(witness) == 0 {
		return nil, ErrEmptyWitnessStack
	}
	if len(witness) != 4 {
		return nil, ErrNotFourWitnesses
	}

	digest, err := sigHashDigest(tx, 0, prevOutScript, amount, witnessScript)
	if err != nil {
		return nil, err
	}

	for _, raw := range witness[1:3] {
		if len(raw) == 0 {
			continue
		}
		sig, err := secp256k1.NewSignatureFromDER(stripSigHashType(raw))
		if err != nil {
			continue
		}
		if key.Verify(digest, sig) {
			return sig, nil
		}
	}
	return nil, ErrKeyNotFound
}
