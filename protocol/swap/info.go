// Package swap tracks the live and historical status of swaps for the
// CLI/RPC surface. It is deliberately separate from the persisted,
// phase-typed state the db package stores for Alice and Bob (protocol/alice,
// protocol/bob): Info is an observability record rebuilt from a running
// driver, not itself a source of recovery truth.
package swap

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/athanorlabs/xmr-btc-swap/coins"
)

// Status is the terminal or in-progress disposition of a swap, reported to
// the CLI's `history` and `resume` commands.
type Status int

const (
	// Ongoing means the swap has not yet reached a terminal state.
	Ongoing Status = iota
	// Success means both legs completed: Alice holds BTC, Bob holds XMR.
	Success
	// Refunded means Bob recovered his BTC via TxCancel+TxRefund without
	// XMR ever changing hands (or Alice reclaimed her XMR share after
	// Bob's refund disclosed s_b).
	Refunded
	// Punished means Alice recovered Bob's locked BTC via TxPunish after
	// Bob failed to cooperate past punish_timelock.
	Punished
	// Aborted means the swap ended before any funds were locked.
	Aborted
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Ongoing:
		return "ongoing"
	case Success:
		return "success"
	case Refunded:
		return "refunded"
	case Punished:
		return "punished"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IsOngoing reports whether the swap has not yet reached a terminal status.
func (s Status) IsOngoing() bool {
	return s == Ongoing
}

// Info is the status record the swap manager tracks for one swap for as
// long as the process is running.
type Info struct {
	ID             string
	ProvidedAsset  string // "XMR" for Alice, "BTC" for Bob
	ProvidedAmount *apd.Decimal
	ExpectedAmount *apd.Decimal
	ExchangeRate   *coins.ExchangeRate
	Status         Status
	StartTime      time.Time
	EndTime        *time.Time
}

// NewInfo constructs a fresh Info for a swap that is just starting.
func NewInfo(
	id string,
	providedAsset string,
	providedAmount, expectedAmount *apd.Decimal,
	rate *coins.ExchangeRate,
	status Status,
) *Info {
	return &Info{
		ID:             id,
		ProvidedAsset:  providedAsset,
		ProvidedAmount: providedAmount,
		ExpectedAmount: expectedAmount,
		ExchangeRate:   rate,
		Status:         status,
		StartTime:      time.Now(),
	}
}

// SetStatus updates the swap's status in place.
func (i *Info) SetStatus(s Status) {
	i.Status = s
}
