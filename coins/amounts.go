// Package coins provides the integer amount types used throughout the swap
// engine. Bitcoin amounts are satoshis, Monero amounts are piconero; both
// are fixed-point integers and arithmetic on them is checked so that
// overflow or a stray float conversion is a compile- or run-time error
// rather than a silently wrong balance.
package coins

import (
	"fmt"
	"math"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

// NumMoneroDecimals is the number of decimal places in one XMR (12, i.e.
// 1 XMR = 1e12 piconero).
const NumMoneroDecimals = 12

// NumBitcoinDecimals is the number of decimal places in one BTC (8, i.e.
// 1 BTC = 1e8 satoshi).
const NumBitcoinDecimals = 8

var (
	piconeroPerXMR = new(big.Int).Exp(big.NewInt(10), big.NewInt(NumMoneroDecimals), nil)
	satPerBTC      = new(big.Int).Exp(big.NewInt(10), big.NewInt(NumBitcoinDecimals), nil)
)

// PiconeroAmount is an amount of Monero expressed in its smallest unit,
// piconero. It is never a float: the only decimal-to-piconero conversion
// here, ExchangeRate.CalculateFromAmount, scales an apd.Decimal exactly and
// rejects any value that doesn't land on an integer number of piconero.
type PiconeroAmount uint64

// NewPiconeroAmount wraps a raw piconero count.
func NewPiconeroAmount(amount uint64) *PiconeroAmount {
	a := PiconeroAmount(amount)
	return &a
}

// Uint64 returns the amount as a raw uint64 of piconero.
func (a *PiconeroAmount) Uint64() uint64 {
	return uint64(*a)
}

// AsMonero returns the amount as an apd.Decimal in standard XMR units, for
// display only; no arithmetic should be performed on the result.
func (a *PiconeroAmount) AsMonero() *apd.Decimal {
	d := apd.New(int64(*a), -NumMoneroDecimals)
	_, _ = d.Reduce(d)
	return d
}

// AsMoneroString formats the amount as a plain decimal XMR string.
func (a *PiconeroAmount) AsMoneroString() string {
	return a.AsMonero().Text('f')
}

// Add returns a new PiconeroAmount equal to a+b, erroring on overflow.
func (a *PiconeroAmount) Add(b *PiconeroAmount) (*PiconeroAmount, error) {
	sum := uint64(*a) + uint64(*b)
	if sum < uint64(*a) {
		return nil, fmt.Errorf("piconero amount overflow: %d + %d", *a, *b)
	}
	return NewPiconeroAmount(sum), nil
}

// SatAmount is an amount of Bitcoin expressed in satoshi.
type SatAmount int64

// NewSatAmount wraps a raw satoshi count.
func NewSatAmount(amount int64) *SatAmount {
	a := SatAmount(amount)
	return &a
}

// Int64 returns the amount as a raw int64 of satoshi.
func (a *SatAmount) Int64() int64 {
	return int64(*a)
}

// AsBTC returns the amount as an apd.Decimal in standard BTC units, for
// display only.
func (a *SatAmount) AsBTC() *apd.Decimal {
	d := apd.New(int64(*a), -NumBitcoinDecimals)
	_, _ = d.Reduce(d)
	return d
}

// AsBTCString formats the amount as a plain decimal BTC string.
func (a *SatAmount) AsBTCString() string {
	return a.AsBTC().Text('f')
}

// Add returns a+b, erroring on overflow.
func (a *SatAmount) Add(b *SatAmount) (*SatAmount, error) {
	sum := int64(*a) + int64(*b)
	if (sum < int64(*a)) != (int64(*b) < 0) {
		return nil, fmt.Errorf("satoshi amount overflow: %d + %d", *a, *b)
	}
	return NewSatAmount(sum), nil
}

// Sub returns a-b, erroring if the result would be negative.
func (a *SatAmount) Sub(b *SatAmount) (*SatAmount, error) {
	if int64(*b) > int64(*a) {
		return nil, fmt.Errorf("satoshi amount underflow: %d - %d", *a, *b)
	}
	return NewSatAmount(int64(*a) - int64(*b)), nil
}

// ExchangeRate is XMR-per-BTC, stored as an exact decimal so the CLI can
// accept and display rates like "0.0057" without floating-point drift.
type ExchangeRate struct {
	rate *apd.Decimal
}

// NewExchangeRate validates and wraps a positive exchange rate.
func NewExchangeRate(rate *apd.Decimal) (*ExchangeRate, error) {
	if rate == nil || rate.Sign() <= 0 {
		return nil, fmt.Errorf("exchange rate must be positive")
	}
	return &ExchangeRate{rate: rate}, nil
}

// Decimal returns the underlying apd.Decimal.
func (e *ExchangeRate) Decimal() *apd.Decimal {
	return e.rate
}

// String implements fmt.Stringer.
func (e *ExchangeRate) String() string {
	return e.rate.Text('f')
}

// CalculateFromAmount computes the XMR amount corresponding to a BTC amount
// at this exchange rate. The rate is quoted as XMR per BTC, so
// xmr = btc * rate.
// The multiplication happens in a widened decimal context and is rejected
// if it would overflow, satisfying the "no silent truncation" numeric-
// safety rule.
func (e *ExchangeRate) CalculateFromAmount(btc *SatAmount) (*PiconeroAmount, error) {
	ctx := apd.BaseContext.WithPrecision(50)

	btcDec := apd.New(btc.Int64(), -NumBitcoinDecimals)
	xmrDec := new(apd.Decimal)
	if _, err := ctx.Mul(xmrDec, btcDec, e.rate); err != nil {
		return nil, fmt.Errorf("exchange rate overflow: %w", err)
	}

	// scale up to piconero and require an exact integer result
	scaled := new(apd.Decimal)
	if _, err := ctx.Mul(scaled, xmrDec, apd.New(1, NumMoneroDecimals)); err != nil {
		return nil, fmt.Errorf("exchange rate overflow: %w", err)
	}

	i, err := scaled.Int64()
	if err != nil {
		return nil, fmt.Errorf("amount does not reduce to an exact piconero count: %w", err)
	}
	if i < 0 || i > math.MaxInt64 {
		return nil, fmt.Errorf("amount out of range")
	}

	return NewPiconeroAmount(uint64(i)), nil
}

// ValidatePositive checks that d is non-nil, positive, and has no more than
// maxDecimals decimal places, returning an error naming the field otherwise.
func ValidatePositive(field string, maxDecimals int32, d *apd.Decimal) error {
	if d == nil {
		return fmt.Errorf("%q is not set", field)
	}
	if d.Sign() <= 0 {
		return fmt.Errorf("%q must be positive", field)
	}
	if d.Exponent < -maxDecimals {
		return fmt.Errorf("%q has more than %d decimal places", field, maxDecimals)
	}
	return nil
}
