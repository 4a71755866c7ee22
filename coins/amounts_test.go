package coins

import (
	"math"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"
)

func TestPiconeroAmountAddOverflows(t *testing.T) {
	a := NewPiconeroAmount(math.MaxUint64)
	b := NewPiconeroAmount(1)
	_, err := a.Add(b)
	require.Error(t, err)
}

func TestPiconeroAmountAddNormal(t *testing.T) {
	a := NewPiconeroAmount(1000)
	b := NewPiconeroAmount(2000)
	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, uint64(3000), sum.Uint64())
}

func TestPiconeroAmountAsMoneroString(t *testing.T) {
	a := NewPiconeroAmount(1_000_000_000_000)
	require.Equal(t, "1", a.AsMoneroString())
}

func TestSatAmountAddOverflows(t *testing.T) {
	a := NewSatAmount(math.MaxInt64)
	b := NewSatAmount(1)
	_, err := a.Add(b)
	require.Error(t, err)
}

func TestSatAmountAddNegativeOverflow(t *testing.T) {
	a := NewSatAmount(math.MinInt64)
	b := NewSatAmount(-1)
	_, err := a.Add(b)
	require.Error(t, err)
}

func TestSatAmountSubUnderflows(t *testing.T) {
	a := NewSatAmount(100)
	b := NewSatAmount(200)
	_, err := a.Sub(b)
	require.Error(t, err)
}

func TestSatAmountSubNormal(t *testing.T) {
	a := NewSatAmount(300)
	b := NewSatAmount(100)
	diff, err := a.Sub(b)
	require.NoError(t, err)
	require.Equal(t, int64(200), diff.Int64())
}

func TestNewExchangeRateRejectsNonPositive(t *testing.T) {
	_, err := NewExchangeRate(apd.New(0, 0))
	require.Error(t, err)

	_, err = NewExchangeRate(apd.New(-1, 0))
	require.Error(t, err)
}

func TestCalculateFromAmountExactRate(t *testing.T) {
	rate, err := NewExchangeRate(apd.New(15, -2)) // 0.15 XMR per BTC
	require.NoError(t, err)

	btc := NewSatAmount(100_000_000) // 1 BTC
	xmr, err := rate.CalculateFromAmount(btc)
	require.NoError(t, err)
	require.Equal(t, uint64(150_000_000_000), xmr.Uint64())
}

func TestCalculateFromAmountRejectsInexactResult(t *testing.T) {
	rate, err := NewExchangeRate(apd.New(1, -13)) // far finer than a piconero can represent
	require.NoError(t, err)

	btc := NewSatAmount(3) // 3 satoshi at an awkward rate won't divide evenly
	_, err = rate.CalculateFromAmount(btc)
	require.Error(t, err)
}

func TestValidatePositiveRejectsNil(t *testing.T) {
	require.Error(t, ValidatePositive("amount", NumBitcoinDecimals, nil))
}

func TestValidatePositiveRejectsNonPositive(t *testing.T) {
	require.Error(t, ValidatePositive("amount", NumBitcoinDecimals, apd.New(0, 0)))
	require.Error(t, ValidatePositive("amount", NumBitcoinDecimals, apd.New(-5, 0)))
}

func TestValidatePositiveRejectsTooManyDecimals(t *testing.T) {
	// apd.New(1, -9) represents 1e-9, i.e. 9 decimal places: fine for Monero's 12,
	// too fine for Bitcoin's 8.
	d := apd.New(1, -9)
	require.Error(t, ValidatePositive("amount", NumBitcoinDecimals, d))
	require.NoError(t, ValidatePositive("amount", NumMoneroDecimals, d))
}

func TestValidatePositiveAccepts(t *testing.T) {
	require.NoError(t, ValidatePositive("amount", NumBitcoinDecimals, apd.New(5, -4)))
}
