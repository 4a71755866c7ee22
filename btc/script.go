// Package btc builds and signs the Bitcoin transaction family used by the
// swap protocol: TxLock, TxCancel, TxRefund, TxPunish, and TxRedeem. Script
// construction follows the witness-script/P2WSH pattern used throughout
// lnd's channel funding and commitment transactions, adapted to the
// protocol's miniscript descriptors rather than lnd's CHECKMULTISIG
// funding output.
package btc

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// twoOfTwoScript builds the canonical `c:and_v(v:pk(A),pk_k(B))` miniscript
// used for TxLock's and TxCancel's outputs:
//
//	<A> OP_CHECKSIGVERIFY <B> OP_CHECKSIG
//
// Unlike a bare OP_CHECKMULTISIG 2-of-2, this checks A's signature first
// (OP_CHECKSIGVERIFY consumes the top stack element) and B's signature
// second, so the witness must list B's signature before A's: A's signature
// is the last witness item and therefore the top of the stack.
func twoOfTwoScript(a, b *secp256k1.BitcoinPublic) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(a.CompressedBytes())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(b.CompressedBytes())
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// cancelOutputScript builds TxCancel's output script: satisfiable
// immediately by the full 2-of-2 (A,B) multisig, or, after punish_timelock
// blocks past TxCancel's confirmation, by Alice's signature alone.
// Corresponds to the miniscript
// `or_d(multi(2,A,B),and_v(v:older(punish_timelock),pk(A)))`:
//
//	OP_2 <A> <B> OP_2 OP_CHECKMULTISIG
//	OP_IFDUP OP_NOTIF
//	    <punish_timelock> OP_CHECKSEQUENCEVERIFY OP_DROP <A> OP_CHECKSIG
//	OP_ENDIF
//
// TxRefund takes the multisig branch: Bob supplies his own signature, and
// Alice's slot is filled by Bob decrypting her refund adaptor signature
// with his cross-curve secret s_b. CHECKMULTISIG leaves a boolean without
// aborting the script on a failed check, so OP_IFDUP/OP_NOTIF can fall
// through to the punish branch; TxPunish takes that branch with Alice's
// own signature as the first witness item, beneath three empty elements
// (the CHECKMULTISIG off-by-one dummy plus two empty signature slots,
// satisfying the NULLFAIL rule for an intentionally failed multisig
// check), so the punish branch's OP_CHECKSIG finds her signature.
func cancelOutputScript(punishTimelock uint32, a, b *secp256k1.BitcoinPublic) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	builder.AddData(a.CompressedBytes())
	builder.AddData(b.CompressedBytes())
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_IFDUP)
	builder.AddOp(txscript.OP_NOTIF)
	builder.AddInt64(int64(punishTimelock))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(a.CompressedBytes())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	return builder.Script()
}

// LockScripts returns TxLock's witness script and P2WSH output script for
// the given multisig keys, letting a party that isn't funding TxLock (Alice)
// recompute and check it against a PSBT received over the wire rather than
// trusting the counterparty's claimed output.
func LockScripts(a, b *secp256k1.BitcoinPublic) (witnessScript, pkScript []byte, err error) {
	witnessScript, err = twoOfTwoScript(a, b)
	if err != nil {
		return nil, nil, fmt.Errorf("btc: building lock witness script: %w", err)
	}
	pkScript, err = p2wshOutputScript(witnessScript)
	if err != nil {
		return nil, nil, fmt.Errorf("btc: building lock pkscript: %w", err)
	}
	return witnessScript, pkScript, nil
}

// p2wshOutputScript wraps a witness script into its P2WSH output script:
// OP_0 <sha256(witnessScript)>.
func p2wshOutputScript(witnessScript []byte) ([]byte, error) {
	if len(witnessScript) == 0 {
		return nil, fmt.Errorf("btc: empty witness script")
	}
	hash := sha256.Sum256(witnessScript)
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(hash[:])
	return builder.Script()
}
