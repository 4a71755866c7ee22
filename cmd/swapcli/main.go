// Command swapcli drives a single atomic swap from the command line: it
// builds a Params from flags an operator negotiated out of band, wires up
// a bitcoind RPC wallet, a monero-wallet-rpc client, and a TCP transport,
// and hands all three to a Driver. No business logic lives here; the
// state machines in protocol/alice and protocol/bob own that entirely.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/athanorlabs/xmr-btc-swap/btc"
	"github.com/athanorlabs/xmr-btc-swap/coins"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/db"
	"github.com/athanorlabs/xmr-btc-swap/net/tcp"
	"github.com/athanorlabs/xmr-btc-swap/protocol"
	"github.com/athanorlabs/xmr-btc-swap/protocol/alice"
	"github.com/athanorlabs/xmr-btc-swap/protocol/bob"
	"github.com/athanorlabs/xmr-btc-swap/rpcwallet/btcclient"
	"github.com/athanorlabs/xmr-btc-swap/rpcwallet/moneroclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "alice":
		err = runAlice(os.Args[2:])
	case "bob":
		err = runBob(os.Args[2:])
	case "resume-alice":
		err = runResume(os.Args[2:], db.RoleAlice)
	case "resume-bob":
		err = runResume(os.Args[2:], db.RoleBob)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "swapcli: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: swapcli <command> [flags]

commands:
  alice          run a fresh swap as the BTC buyer / XMR seller, listening for bob
  bob            run a fresh swap as the BTC seller / XMR buyer, dialing alice
  resume-alice   resume a persisted alice swap after a restart
  resume-bob     resume a persisted bob swap after a restart`)
}

// swapFlags are the negotiated swap parameters and backend endpoints every
// fresh-swap subcommand needs.
type swapFlags struct {
	fs *flag.FlagSet

	swapID         string
	envName        string
	btcAmountStr   string
	xmrAmountStr   string
	cancelTimelock uint
	punishTimelock uint
	redeemAddr     string
	punishAddr     string
	refundAddr     string
	xmrReceiveAddr string
	btcRPC         string
	xmrRPC         string
	dbPath         string
}

func newSwapFlags(name string) *swapFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	f := &swapFlags{fs: fs}

	fs.StringVar(&f.swapID, "swap-id", "", "unique id for this swap")
	fs.StringVar(&f.envName, "env", "development", "mainnet, stagenet, or development")
	fs.StringVar(&f.btcAmountStr, "btc-amount", "0", "bitcoin amount, in BTC")
	fs.StringVar(&f.xmrAmountStr, "xmr-amount", "0", "monero amount, in piconero")
	fs.UintVar(&f.cancelTimelock, "cancel-timelock", 72, "TxCancel relative timelock, in blocks")
	fs.UintVar(&f.punishTimelock, "punish-timelock", 72, "TxPunish relative timelock, in blocks")
	fs.StringVar(&f.redeemAddr, "redeem-addr", "", "alice's bitcoin address for TxRedeem")
	fs.StringVar(&f.punishAddr, "punish-addr", "", "alice's bitcoin address for TxPunish")
	fs.StringVar(&f.refundAddr, "refund-addr", "", "bob's bitcoin address for TxRefund")
	fs.StringVar(&f.xmrReceiveAddr, "xmr-addr", "", "monero address the swap is labeled against")
	fs.StringVar(&f.btcRPC, "btc-rpc", "http://127.0.0.1:18443", "bitcoind RPC endpoint")
	fs.StringVar(&f.xmrRPC, "xmr-rpc", "http://127.0.0.1:18083/json_rpc", "monero-wallet-rpc endpoint")
	fs.StringVar(&f.dbPath, "db", "swapcli.db", "path to the swap state database")

	return f
}

func (f *swapFlags) env() (common.Environment, error) {
	switch f.envName {
	case "mainnet":
		return common.Mainnet, nil
	case "stagenet":
		return common.Stagenet, nil
	case "development":
		return common.Development, nil
	default:
		return 0, fmt.Errorf("unknown -env %q", f.envName)
	}
}

func (f *swapFlags) buildParams(netParams *chaincfg.Params) (*protocol.Params, error) {
	btcAmount, err := btcutil.NewAmount(parseFloatOrZero(f.btcAmountStr))
	if err != nil {
		return nil, fmt.Errorf("parsing -btc-amount: %w", err)
	}
	piconero, err := strconv.ParseUint(f.xmrAmountStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing -xmr-amount: %w", err)
	}

	redeemAddr, err := btcutil.DecodeAddress(f.redeemAddr, netParams)
	if err != nil {
		return nil, fmt.Errorf("parsing -redeem-addr: %w", err)
	}
	punishAddr, err := btcutil.DecodeAddress(f.punishAddr, netParams)
	if err != nil {
		return nil, fmt.Errorf("parsing -punish-addr: %w", err)
	}
	refundAddr, err := btcutil.DecodeAddress(f.refundAddr, netParams)
	if err != nil {
		return nil, fmt.Errorf("parsing -refund-addr: %w", err)
	}

	return &protocol.Params{
		SwapID:               f.swapID,
		BTCAmount:            btcAmount,
		XMRAmount:            coins.PiconeroAmount(piconero),
		CancelTimelock:       uint32(f.cancelTimelock),
		PunishTimelock:       uint32(f.punishTimelock),
		RedeemAddress:        redeemAddr,
		PunishAddress:        punishAddr,
		RefundAddress:        refundAddr,
		MoneroReceiveAddress: monero.Address(f.xmrReceiveAddr),
	}, nil
}

func parseFloatOrZero(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func runAlice(args []string) error {
	f := newSwapFlags("alice")
	listenAddr := f.fs.String("listen", "127.0.0.1:9944", "address to listen on for bob")
	redeemWindow := f.fs.Duration("redeem-window", 2*time.Hour, "how long to wait for bob's redeem signature before cancelling")
	if err := f.fs.Parse(args); err != nil {
		return err
	}

	env, err := f.env()
	if err != nil {
		return err
	}
	netParams := btc.NetParams(env)
	params, err := f.buildParams(netParams)
	if err != nil {
		return err
	}

	s0, err := alice.NewState0(params, env)
	if err != nil {
		return fmt.Errorf("generating alice's key material: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := acceptOnce(ctx, *listenAddr)
	if err != nil {
		return fmt.Errorf("waiting for bob to connect: %w", err)
	}
	defer conn.Close()

	store, err := db.Open(f.dbPath)
	if err != nil {
		return fmt.Errorf("opening swap database: %w", err)
	}
	defer store.Close()

	driver := &alice.Driver{
		Store:        store,
		Transport:    conn,
		BTCWallet:    btcclient.NewClient(f.btcRPC, netParams),
		XMRWallet:    moneroclient.NewClient(f.xmrRPC, env),
		RedeemWindow: *redeemWindow,
	}

	outcome, err := driver.Run(ctx, s0)
	if err != nil {
		return fmt.Errorf("running swap %s: %w", params.SwapID, err)
	}
	printAliceOutcome(outcome)
	return nil
}

func runBob(args []string) error {
	f := newSwapFlags("bob")
	peerAddr := f.fs.String("peer", "127.0.0.1:9944", "alice's address to dial")
	redeemWatchWindow := f.fs.Duration("redeem-watch-window", 2*time.Hour, "how long to watch for alice's redeem before refunding")
	if err := f.fs.Parse(args); err != nil {
		return err
	}

	env, err := f.env()
	if err != nil {
		return err
	}
	netParams := btc.NetParams(env)
	params, err := f.buildParams(netParams)
	if err != nil {
		return err
	}

	s0, err := bob.NewState0(params, env, monero.Address(f.xmrReceiveAddr))
	if err != nil {
		return fmt.Errorf("generating bob's key material: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := tcp.Dial(ctx, *peerAddr)
	if err != nil {
		return fmt.Errorf("dialing alice: %w", err)
	}
	defer conn.Close()

	store, err := db.Open(f.dbPath)
	if err != nil {
		return fmt.Errorf("opening swap database: %w", err)
	}
	defer store.Close()

	driver := &bob.Driver{
		Store:             store,
		Transport:         conn,
		BTCWallet:         btcclient.NewClient(f.btcRPC, netParams),
		XMRWallet:         moneroclient.NewClient(f.xmrRPC, env),
		RedeemWatchWindow: *redeemWatchWindow,
	}

	outcome, err := driver.Run(ctx, s0)
	if err != nil {
		return fmt.Errorf("running swap %s: %w", params.SwapID, err)
	}
	printBobOutcome(outcome)
	return nil
}

func runResume(args []string, role db.Role) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	swapID := fs.String("swap-id", "", "swap id to resume")
	dbPath := fs.String("db", "swapcli.db", "path to the swap state database")
	btcRPC := fs.String("btc-rpc", "http://127.0.0.1:18443", "bitcoind RPC endpoint")
	xmrRPC := fs.String("xmr-rpc", "http://127.0.0.1:18083/json_rpc", "monero-wallet-rpc endpoint")
	peerAddr := fs.String("peer", "", "counterparty address; dial if set, otherwise listen")
	listenAddr := fs.String("listen", "127.0.0.1:9944", "address to listen on when -peer is unset")
	envName := fs.String("env", "development", "mainnet, stagenet, or development")
	redeemWindow := fs.Duration("redeem-window", 2*time.Hour, "how long to wait before cancelling/refunding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *swapID == "" {
		return fmt.Errorf("-swap-id is required")
	}

	var env common.Environment
	switch *envName {
	case "mainnet":
		env = common.Mainnet
	case "stagenet":
		env = common.Stagenet
	case "development":
		env = common.Development
	default:
		return fmt.Errorf("unknown -env %q", *envName)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var conn *tcp.Transport
	var err error
	if *peerAddr != "" {
		conn, err = tcp.Dial(ctx, *peerAddr)
	} else {
		conn, err = acceptOnce(ctx, *listenAddr)
	}
	if err != nil {
		return fmt.Errorf("reconnecting to counterparty: %w", err)
	}
	defer conn.Close()

	store, err := db.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("opening swap database: %w", err)
	}
	defer store.Close()

	netParams := btc.NetParams(env)
	btcWallet := btcclient.NewClient(*btcRPC, netParams)
	xmrWallet := moneroclient.NewClient(*xmrRPC, env)

	switch role {
	case db.RoleAlice:
		outcome, err := (&alice.Driver{
			Store:        store,
			Transport:    conn,
			BTCWallet:    btcWallet,
			XMRWallet:    xmrWallet,
			RedeemWindow: *redeemWindow,
		}).Resume(ctx, *swapID)
		if err != nil {
			return fmt.Errorf("resuming swap %s: %w", *swapID, err)
		}
		printAliceOutcome(outcome)
	case db.RoleBob:
		outcome, err := (&bob.Driver{
			Store:             store,
			Transport:         conn,
			BTCWallet:         btcWallet,
			XMRWallet:         xmrWallet,
			RedeemWatchWindow: *redeemWindow,
		}).Resume(ctx, *swapID)
		if err != nil {
			return fmt.Errorf("resuming swap %s: %w", *swapID, err)
		}
		printBobOutcome(outcome)
	}
	return nil
}

// acceptOnce listens on addr for a single inbound connection, the shape a
// swapcli invocation needs since it drives exactly one swap per process.
func acceptOnce(ctx context.Context, addr string) (*tcp.Transport, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		done <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return tcp.New(r.conn), nil
	}
}

func printAliceOutcome(o *alice.Outcome) {
	switch {
	case o.Done != nil:
		fmt.Println("swap complete: redeemed BTC")
	case o.Punished != nil:
		fmt.Println("swap cancelled: bob failed to cooperate, punished")
	}
}

func printBobOutcome(o *bob.Outcome) {
	switch {
	case o.Done != nil:
		fmt.Println("swap complete: claimed XMR")
	case o.Refunded != nil:
		fmt.Println("swap cancelled: refunded own BTC")
	case o.Punished != nil:
		fmt.Println("swap failed: alice punished before refund landed")
	}
}
