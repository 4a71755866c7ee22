package btc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateFeeScalesWithFeeRate(t *testing.T) {
	low := EstimateFee(KindLock, 1)
	high := EstimateFee(KindLock, 10)
	require.Equal(t, low*10, high)
}

func TestEstimateFeePositiveForEveryTxKind(t *testing.T) {
	lock := EstimateFee(KindLock, 1)
	cancel := EstimateFee(KindCancel, 1)
	refund := EstimateFee(KindRefund, 1)
	punish := EstimateFee(KindPunish, 1)
	redeem := EstimateFee(KindRedeem, 1)

	require.Greater(t, int64(lock), int64(0))
	require.Greater(t, int64(cancel), int64(0))
	require.Greater(t, int64(refund), int64(0))
	require.Greater(t, int64(punish), int64(0))
	require.Greater(t, int64(redeem), int64(0))
}

func TestEstimateFeeRoundsVbytesUp(t *testing.T) {
	// weight=TxLockWeight is not guaranteed a multiple of 4; confirm the fee
	// at rate 1 is never less than weight/4 truncated (i.e. it rounds up,
	// not down).
	fee := EstimateFee(KindLock, 1)
	require.GreaterOrEqual(t, int64(fee), TxLockWeight/4)
}
