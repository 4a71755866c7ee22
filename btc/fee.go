package btc

import "github.com/btcsuite/btcd/btcutil"

// TxKind identifies which member of the transaction family a weight or fee
// estimate is for.
type TxKind int

const (
	KindLock TxKind = iota
	KindCancel
	KindRefund
	KindPunish
	KindRedeem
)

// weightFor returns the declared upper-bound weight constant for kind.
func weightFor(kind TxKind) int64 {
	switch kind {
	case KindLock:
		return TxLockWeight
	case KindCancel:
		return TxCancelWeight
	case KindRefund:
		return TxRefundWeight
	case KindPunish:
		return TxPunishWeight
	case KindRedeem:
		return TxRedeemWeight
	default:
		return 0
	}
}

// EstimateFee returns the fee a transaction of the given kind should
// reserve at feeRate sat/vbyte, rounding the weight-to-vbyte conversion up
// (vbytes = ceil(weight/4)) so the reserved fee is never an underestimate.
func EstimateFee(kind TxKind, feeRate btcutil.Amount) btcutil.Amount {
	weight := weightFor(kind)
	vbytes := (weight + 3) / 4
	return feeRate * btcutil.Amount(vbytes)
}
