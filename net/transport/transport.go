// Package transport declares the point-to-point message channel the swap
// state machines exchange Message0..Message4 over. It is a thin contract,
// not an implementation: production wiring (libp2p, a plain TCP+length-
// prefix framing, or a test in-memory pipe) lives outside this package and
// is handed to a Driver as a Transport value. Mirrors mewmix-atomic-swap's
// net.MessageSender/net.Host split, narrowed to the single-peer,
// single-session channel one swap actually uses.
package transport

import (
	"context"
	"time"

	"github.com/athanorlabs/xmr-btc-swap/common"
)

// Transport sends and receives the wire messages of a single swap session
// with one counterparty.
type Transport interface {
	// Send transmits msg to the counterparty. A framing or connection
	// error is returned wrapped in a common.Error of KindTransport.
	Send(ctx context.Context, msg common.Message) error

	// Receive blocks until the next message arrives or timeout elapses,
	// returning a common.Error of KindTransport on timeout or framing
	// failure. Per spec.md §4.3.3, a receive failure never advances or
	// corrupts the caller's state; the caller is expected to retry.
	Receive(ctx context.Context, timeout time.Duration) (common.Message, error)
}
