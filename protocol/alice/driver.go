package alice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/db"
	"github.com/athanorlabs/xmr-btc-swap/net/transport"
	"github.com/athanorlabs/xmr-btc-swap/wallet"
)

// handshakeTimeout bounds how long Alice waits for each of Bob's handshake
// messages (Message0, Message2) before giving up on a swap that never
// locked any funds.
const handshakeTimeout = 30 * time.Second

// Outcome is the terminal result of a completed Driver.Run, matching one of
// the terminal/abort states spec.md §4.3.1 allows Alice's machine to reach.
type Outcome struct {
	// Done is set when Alice successfully redeemed TxRedeem.
	Done *Done
	// Punished is set when Bob failed to cooperate and Alice took
	// TxPunish instead.
	Punished *Punished
}

// Driver loops Alice's typed state chain to completion, persisting at the
// checkpoints spec.md §3.4 requires and driving the wallet/transport
// capabilities the state methods themselves stay free of. Mirrors
// mewmix-atomic-swap's swapState run loop, generalized so the Go type of
// each successive state (rather than an EventType field) is what selects
// the next method to call.
type Driver struct {
	Store      *db.Store
	Transport  transport.Transport
	BTCWallet  wallet.BitcoinWallet
	XMRWallet  wallet.MoneroWallet

	// RedeemWindow bounds how long Alice waits for Bob's Message4 once
	// her Monero has locked before giving up and pursuing cancel/punish.
	RedeemWindow time.Duration
}

// persist writes data under tag for swapID, requiring the prior value
// (nil on the very first checkpoint of a swap) to match expectedOld.
func (d *Driver) persist(swapID string, data, expectedOld []byte) error {
	if err := d.Store.CompareAndSwap(db.RoleAlice, swapID, expectedOld, data); err != nil {
		return common.NewError(common.KindStorage, fmt.Errorf("alice: persisting checkpoint: %w", err))
	}
	return nil
}

// Run drives a fresh swap from State0 to a terminal outcome.
func (d *Driver) Run(ctx context.Context, s0 *State0) (*Outcome, error) {
	m0, err := d.Transport.Receive(ctx, handshakeTimeout)
	if err != nil {
		return nil, err
	}
	s1, err := s0.Receive(m0)
	if err != nil {
		return nil, err
	}

	if err := d.Transport.Send(ctx, s1.NextMessage()); err != nil {
		return nil, err
	}

	m2, err := d.Transport.Receive(ctx, handshakeTimeout)
	if err != nil {
		return nil, err
	}
	s2, err := s1.Receive(m2)
	if err != nil {
		return nil, err
	}

	msg3, s3, err := s2.NextMessage(ctx, d.BTCWallet)
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
	if err := d.Transport.Send(ctx, msg3); err != nil {
		return nil, err
	}

	return d.resumeFromState3(ctx, s3, blob3)
}

// Resume reconstructs a Driver.Run in progress from its last persisted
// checkpoint, for a process restart after a crash.
func (d *Driver) Resume(ctx context.Context, swapID string) (*Outcome, error) {
	blob, err := d.Store.Get(db.RoleAlice, swapID)
	if err != nil {
		return nil, common.NewError(common.KindStorage, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("alice: no persisted state for swap %s", swapID)
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
		return nil, fmt.Errorf("alice: unexpected persisted tag %d for swap %s", tag, swapID)
	}
}

// resumeFromState3 runs everything from TxLock confirmation onward,
// tolerating a restart at any point on or after State3.
func (d *Driver) resumeFromState3(ctx context.Context, s3 *State3, prevBlob []byte) (*Outcome, error) {
	s4, err := s3.WatchForTxLock(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}

	s5, err := s4.LockXMR(ctx, d.XMRWallet)
	if err != nil {
		return nil, err
	}

	s6, err := s5.WatchForRedeemEncSig(ctx, d.Transport, d.RedeemWindow, d.BTCWallet)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		log.Warnf("did not receive bob's redeem signature in time, pursuing cancel/punish: %s", err)
		return d.pursueCancel(ctx, s3)
	}

	blob6, err := s6.Marshal()
	if err != nil {
		return nil, err
	}
	if err := d.persist(s3.Params.SwapID, blob6, prevBlob); err != nil {
		return nil, err
	}

	return d.resumeFromState6(ctx, s6, blob6)
}

func (d *Driver) resumeFromState6(ctx context.Context, s6 *State6, _ []byte) (*Outcome, error) {
	done, err := s6.RedeemBTC(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}
	if err := d.Store.Delete(db.RoleAlice, s6.Params.SwapID); err != nil {
		log.Warnf("failed to prune completed swap %s from storage: %s", s6.Params.SwapID, err)
	}
	log.Infof(color.New(color.Bold).Sprintf("swap completed successfully: id=%s", s6.Params.SwapID))
	return &Outcome{Done: done}, nil
}

// pursueCancel waits for TxCancel (published by Bob) and then claims
// TxPunish once punish_timelock has elapsed.
func (d *Driver) pursueCancel(ctx context.Context, s3 *State3) (*Outcome, error) {
	cancelled, err := s3.WaitForCancel(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}
	punished, err := cancelled.PublishPunish(ctx, d.BTCWallet)
	if err != nil {
		return nil, err
	}
	if err := d.Store.Delete(db.RoleAlice, punished.Params.SwapID); err != nil {
		log.Warnf("failed to prune punished swap %s from storage: %s", punished.Params.SwapID, err)
	}
	log.Infof(color.New(color.Bold).Sprintf("swap punished bob's non-cooperation: id=%s", punished.Params.SwapID))
	return &Outcome{Punished: punished}, nil
}
