// Package wallet declares the external capabilities the swap drivers need
// from a Bitcoin node/wallet and a Monero wallet-rpc instance, as plain
// interfaces: protocol/alice and protocol/bob depend only on these, never on
// a concrete RPC client, so they can be driven in tests against an
// in-memory fake. Concrete implementations live in rpcwallet/btcclient and
// rpcwallet/moneroclient.
package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/xmr-btc-swap/btc"
)

// TxStatus is the confirmation state of a previously-broadcast transaction.
type TxStatus struct {
	Unseen        bool
	Confirmations uint32
}

// BitcoinWallet is the capability surface a Bitcoin swap leg needs: funding
// TxLock, signing the transaction family, broadcasting, and watching the
// chain for confirmations. Grounded on mewmix-atomic-swap's EthClient-style
// backend capability interfaces (Backend embeds a narrow set of methods
// rather than exposing a raw *ethclient.Client), generalised to Bitcoin's
// sign-then-broadcast model.
type BitcoinWallet interface {
	btc.FundingSource

	// SignTx signs every input of tx under this wallet's own keys, for
	// plain (non-script-path) spends such as a wallet-funded input on
	// TxLock.
	SignTx(tx *wire.MsgTx) (*wire.MsgTx, error)

	// Broadcast submits a fully-signed transaction to the network,
	// returning its txid.
	Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)

	// WatchForRawTransaction blocks, retrying with bounded exponential
	// backoff, until txid appears in the mempool or a block, returning its
	// raw transaction. It returns only on success or ctx cancellation:
	// per spec, watches never give up on their own.
	WatchForRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)

	// GetRawTransaction returns a previously-seen transaction by txid,
	// without waiting.
	GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)

	// ScriptStatus reports how many confirmations (if any) the output
	// paying pkScript currently has.
	ScriptStatus(ctx context.Context, pkScript []byte) (TxStatus, error)

	// Balance returns the wallet's total confirmed balance.
	Balance(ctx context.Context) (btcutil.Amount, error)

	// NewAddress returns a fresh receive address owned by this wallet.
	NewAddress(ctx context.Context) (btcutil.Address, error)

	// SendToAddress pays amount to addr from this wallet's funds,
	// returning the unsigned transaction in PSBT form.
	SendToAddress(ctx context.Context, addr btcutil.Address, amount btcutil.Amount) ([]byte, error)

	// SignAndFinalize signs and finalizes a PSBT built by this wallet
	// (e.g. from SendToAddress), returning the broadcast-ready transaction.
	SignAndFinalize(psbtBytes []byte) (*wire.MsgTx, error)

	// MaxGiveable returns the largest amount this wallet could pay into an
	// output of pkScriptLen bytes, after reserving its own fee.
	MaxGiveable(ctx context.Context, pkScriptLen int) (btcutil.Amount, error)

	// FeeRate returns the wallet's current fee estimate, in sat/vbyte.
	FeeRate(ctx context.Context) (btcutil.Amount, error)
}
