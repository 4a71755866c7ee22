package bob

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/db"
	"github.com/athanorlabs/xmr-btc-swap/net/transport"
	"github.com/athanorlabs/xmr-btc-swap/wallet"
)

// handshakeTimeout bounds how long Bob waits for each of Alice's handshake
// messages (Message1, Message3) before giving up on a swap that never
// locked any funds.
const handshakeTimeout = 30 * time.Second

// Outcome is the terminal result of a completed Driver.Run, matching one of
// the terminal/abort states spec.md §4.3.2 allows Bob's machine to reach.
type Outcome struct {
	// Done is set when Bob successfully claimed the jointly-owned Monero
	// output after observing Alice's TxRedeem.
	Done *Done
	// Refunded is set when Bob decrypted Alice's refund adaptor signature
	// and reclaimed his BTC via TxRefund.
	Refunded *Refunded
	// Punished describes Bob failing to refund before punish_timelock and
	// Alice taking TxPunish. Run and Resume never set it: pursueCancel does
	// not watch for TxPunish.
	Punished *Punished
}

// Driver loops Bob's typed state chain to completion, persisting at the
// checkpoints spec.md §3.4 requires. Symmetric to protocol/alice.Driver.
type Driver struct {
	Store     *db.Store
	Transport transport.Transport
	BTCWallet wallet.BitcoinWallet
	XMRWallet wallet.MoneroWallet

	// RedeemWatchWindow bounds how long Bob watches for Alice's TxRedeem
	// before deciding she never will and instead claiming his refund.
	RedeemWatchWindow time.Duration
}

func (d *Driver) persist(swapID string, data, expectedOld []byte) error {
	if err := d.Store.CompareAndSwap(db.RoleBob, swapID, expectedOld, data); err != nil {
		return common.NewError(common.KindStorage, fmt.Errorf("bob: persisting checkpoint: %w", err))
	}
	return nil
}

// Run drives a fresh swap from State0 to a terminal outcome.
func (d *Driver) Run(ctx context.Context, s0 *State0) (*Outcome, error) {
	if err := d.Transport.Send(ctx, s0.NextMessage()); err != nil {
		return nil, err
	}

	m1, err := d.Transport.Receive(ctx, handshakeTimeout)
	if err != nil {
		return nil, err
	}
	s1, err := s0.Receive(m1)
	if err != nil {
		return nil, err
	}

	msg2, s2, err := s1.NextMessage(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}
	if err := d.Transport.Send(ctx, msg2); err != nil {
		return nil, err
	}

	m3, err := d.Transport.Receive(ctx, handshakeTimeout)
	if err != nil {
		return nil, err
	}
	s3, err := s2.Receive(ctx, d.BTCWallet, m3)
	if err != nil {
		return nil, err
	}
	blob3, err := s3.Marshal()
	if err != nil {
		return nil, err
	}
	if err := d.persist(s3.Params.SwapID, blob3, nil); err != nil {
		return nil, err
	}

	return d.resumeFromState3(ctx, s3, blob3)
}

// Resume reconstructs a Driver.Run in progress from its last persisted
// checkpoint, for a process restart after a crash.
func (d *Driver) Resume(ctx context.Context, swapID string) (*Outcome, error) {
	blob, err := d.Store.Get(db.RoleBob, swapID)
	if err != nil {
		return nil, common.NewError(common.KindStorage, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("bob: no persisted state for swap %s", swapID)
	}

	tag, payload, err := db.Decode(blob, KnownTags)
	if err != nil {
		return nil, common.NewError(common.KindStorage, err)
	}

	switch tag {
	case TagState3:
		s3, err := UnmarshalState3(payload)
		if err != nil {
			return nil, common.NewError(common.KindStorage, err)
		}
		return d.resumeFromState3(ctx, s3, blob)
	case TagState6:
		s6, err := UnmarshalState6(payload)
		if err != nil {
			return nil, common.NewError(common.KindStorage, err)
		}
		return d.resumeFromState6(ctx, s6, blob)
	default:
		return nil, fmt.Errorf("bob: unexpected persisted tag %d for swap %s", tag, swapID)
	}
}

// resumeFromState3 runs everything from TxLock publication onward,
// tolerating a restart at any point on or after State3.
func (d *Driver) resumeFromState3(ctx context.Context, s3 *State3, prevBlob []byte) (*Outcome, error) {
	s4, err := s3.PublishTxLock(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}

	s5, err := s4.WatchForXMRLock(ctx, d.XMRWallet)
	if err != nil {
		return nil, err
	}

	msg4, s6, err := s5.NextMessage(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}
	blob6, err := s6.Marshal()
	if err != nil {
		return nil, err
	}
	if err := d.persist(s3.Params.SwapID, blob6, prevBlob); err != nil {
		return nil, err
	}
	if err := d.Transport.Send(ctx, msg4); err != nil {
		return nil, err
	}

	return d.resumeFromState6(ctx, s6, blob6)
}

// resumeFromState6 races watching for Alice's TxRedeem against
// RedeemWatchWindow: if Alice redeems, Bob recovers the Monero; if she
// never does, Bob cancels and refunds his own BTC instead.
func (d *Driver) resumeFromState6(ctx context.Context, s6 *State6, _ []byte) (*Outcome, error) {
	watchCtx := ctx
	var cancel context.CancelFunc
	if d.RedeemWatchWindow > 0 {
		watchCtx, cancel = context.WithTimeout(ctx, d.RedeemWatchWindow)
		defer cancel()
	}

	done, err := s6.WatchForRedeemThenClaimXMR(watchCtx, d.BTCWallet, d.XMRWallet)
	if err == nil {
		if delErr := d.Store.Delete(db.RoleBob, s6.Params.SwapID); delErr != nil {
			log.Warnf("failed to prune completed swap %s from storage: %s", s6.Params.SwapID, delErr)
		}
		log.Infof(color.New(color.Bold).Sprintf("swap completed successfully: id=%s", s6.Params.SwapID))
		return &Outcome{Done: done}, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	log.Warnf("did not observe alice's redeem in time, pursuing cancel/refund: %s", err)

	return d.pursueCancel(ctx, s6.State3)
}

// pursueCancel publishes TxCancel and then TxRefund, in sequence. It does
// not watch for TxPunish (Cancelled.WatchForPunish is not called here), so
// a TxPunish confirming first leaves PublishRefund retrying its broadcast.
func (d *Driver) pursueCancel(ctx context.Context, s3 *State3) (*Outcome, error) {
	cancelled, err := s3.PublishCancel(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}

	refunded, err := cancelled.PublishRefund(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}
	if err := d.Store.Delete(db.RoleBob, refunded.Params.SwapID); err != nil {
		log.Warnf("failed to prune refunded swap %s from storage: %s", refunded.Params.SwapID, err)
	}
	log.Infof(color.New(color.Bold).Sprintf("swap refunded successfully: id=%s", refunded.Params.SwapID))
	return &Outcome{Refunded: refunded}, nil
}
