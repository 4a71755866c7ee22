package wallet

import (
	"context"

	"github.com/athanorlabs/xmr-btc-swap/coins"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
)

// TransferProof attests that a transfer of a given amount was sent to a
// given address: the evidence CheckTransfer validates.
type TransferProof struct {
	TxHash string
	Key    string // tx key, lets a third party verify the transfer's destination and amount
}

// MoneroWallet is the capability surface a Monero swap leg needs: opening
// the shared wallet the funded output pays into, scanning for confirmation,
// and, on recovery, sweeping funds out of a reconstructed scan-only wallet.
// Grounded on noot-atomic-swap's monero.Client/WaitForBlocks call shapes,
// narrowed to what the state machine itself (as opposed to a CLI operator)
// needs.
type MoneroWallet interface {
	// OpenOrCreate opens the named wallet, creating it first if absent.
	OpenOrCreate(ctx context.Context, name string) error

	// Transfer sends amount to address from the currently open wallet's
	// primary account, returning proof of the transfer.
	Transfer(ctx context.Context, address monero.Address, amount coins.PiconeroAmount) (*TransferProof, error)

	// CheckTransfer verifies that proof attests a transfer of amount to
	// the address owned by publicSpend/publicView, confirming a Monero
	// lock without needing control of the destination wallet.
	CheckTransfer(ctx context.Context, publicSpend, publicView *monero.PublicKey, proof *TransferProof, amount coins.PiconeroAmount) error

	// ImportOutput opens (creating if needed) a scan-only wallet from a
	// complete spend/view key pair and sweeps its entire balance to
	// sweepTo, returning the sweep's transaction hash.
	ImportOutput(ctx context.Context, keys *monero.PrivateKeyPair, sweepTo monero.Address) (string, error)

	// GetBalance returns the open wallet's unlocked balance, in piconero.
	GetBalance(ctx context.Context) (coins.PiconeroAmount, error)

	// GetMainAddress returns the open wallet's primary address.
	GetMainAddress(ctx context.Context) (monero.Address, error)

	// Refresh rescans the chain for the open wallet's outputs, returning
	// once it has caught up to the daemon's current height.
	Refresh(ctx context.Context) error

	// Height returns the open wallet's most recently scanned block height.
	Height(ctx context.Context) (uint64, error)
}
