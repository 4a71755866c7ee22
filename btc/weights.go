package btc

// Weight/size constants, declared rather than computed from a constructed
// transaction, so fee estimation never depends on a transaction that
// hasn't been built yet. All values are upper bounds of the real witness-
// included weight: a DER signature is at most 72 bytes plus a 1-byte
// sighash-type suffix, so every signature slot below is sized at 73 bytes
// plus its 1-byte length prefix. Every constant includes txOverheadWeight,
// the fields a transaction carries regardless of its inputs and outputs.
// Modeled on lnd's lnwallet/size.go weight-accounting style.
const (
	// p2wshOutputSize is the size in bytes of a P2WSH output:
	//	- value: 8 bytes
	//	- var_int: 1 byte (pkscript_length)
	//	- pkscript (p2wsh): 34 bytes (OP_0 + push(32))
	p2wshOutputSize = 8 + 1 + 34

	// witnessSignatureSize is the maximum size of one witness stack
	// signature element: varint length prefix + up to 72-byte DER
	// signature + 1-byte sighash type.
	witnessSignatureSize = 1 + 72 + 1

	// witnessPubkeySize is the size of one compressed-pubkey witness
	// stack element.
	witnessPubkeySize = 1 + 33

	// inputBaseSize is the non-witness portion of a transaction input:
	//	- previous outpoint: 32 + 4 bytes
	//	- var_int scriptSig length: 1 byte (scriptSig is empty for P2WSH)
	//	- sequence: 4 bytes
	inputBaseSize = 32 + 4 + 1 + 4

	// txOverheadWeight is the weight of a single-input, single-output
	// transaction's fixed fields: version (4), input count (1), output
	// count (1), and lock_time (4) at 4 weight units per byte, plus the
	// 2-byte segwit marker and flag at 1 weight unit per byte.
	txOverheadWeight = 4*(4+1+1+4) + 2

	// twoOfTwoWitnessScriptSize is the size of the
	// `<A> OP_CHECKSIGVERIFY <B> OP_CHECKSIG` witness script:
	//	- push(33) + OP_CHECKSIGVERIFY + push(33) + OP_CHECKSIG
	twoOfTwoWitnessScriptSize = witnessPubkeySize + 1 + witnessPubkeySize + 1

	// cancelOutputScriptSize is the size of TxCancel's output script
	// (`OP_2 <A> <B> OP_2 CHECKMULTISIG IFDUP NOTIF <n> CSV DROP <A>
	// CHECKSIG ENDIF`).
	cancelOutputScriptSize = 1 + witnessPubkeySize + witnessPubkeySize + 1 + 1 +
		1 + 1 + 4 + 1 + 1 + witnessPubkeySize + 1 + 1

	// TxLockWeight is an upper bound on TxLock's weight: one input
	// spending an arbitrary wallet UTXO (sized generously as a P2WKH
	// input) and one 2-of-2 P2WSH output.
	TxLockWeight = txOverheadWeight + 4*(inputBaseSize+p2wshOutputSize) + (1 + witnessSignatureSize + witnessPubkeySize)

	// TxCancelWeight is an upper bound on TxCancel's weight: one input
	// spending TxLock's 2-of-2 output (both signatures present in the
	// witness) and one P2WSH output encoding the refund/punish script.
	TxCancelWeight = txOverheadWeight + 4*(inputBaseSize+p2wshOutputSize) +
		(1 + 2*witnessSignatureSize + 1 + twoOfTwoWitnessScriptSize)

	// TxRefundWeight is an upper bound on the weight of a transaction
	// spending TxCancel's output via the immediate multisig branch: the
	// CHECKMULTISIG dummy plus Alice's and Bob's signatures, to a single
	// P2WKH output.
	TxRefundWeight = txOverheadWeight + 4*(inputBaseSize+p2wshOutputSize) +
		(1 + 1 + 2*witnessSignatureSize + 1 + cancelOutputScriptSize)

	// TxPunishWeight is an upper bound on the weight of a transaction
	// spending TxCancel's output via the punish branch: three empty
	// placeholder elements plus Alice's signature, to a single P2WKH
	// output.
	TxPunishWeight = txOverheadWeight + 4*(inputBaseSize+p2wshOutputSize) +
		(1 + 3 + witnessSignatureSize + 1 + cancelOutputScriptSize)

	// TxRedeemWeight is an upper bound on the weight of a transaction
	// spending TxLock's 2-of-2 output with both signatures present (one
	// direct from Alice, one from decrypting Bob's adaptor signature) to
	// a single P2WKH output.
	TxRedeemWeight = txOverheadWeight + 4*(inputBaseSize+p2wshOutputSize) +
		(1 + 2*witnessSignatureSize + 1 + twoOfTwoWitnessScriptSize)
)
