// Package moneroclient is a monero-wallet-rpc HTTP client implementing
// wallet.MoneroWallet, grounded on noot-atomic-swap's monero.Client
// (GetBalance/Transfer/SweepAll/GenerateFromKeys/Refresh/GetHeight call
// shapes), generalised from that package's Client/client split into a
// single type satisfying this protocol's narrower capability interface
// directly.
package moneroclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/athanorlabs/xmr-btc-swap/coins"
	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/wallet"
)

// Client is a monero-wallet-rpc JSON-RPC client. It holds no wallet state
// of its own; every call is a single HTTP round trip to the configured
// endpoint, matching monero-wallet-rpc's stateless-per-request API.
type Client struct {
	endpoint string
	env      common.Environment
	http     *http.Client
}

// NewClient returns a client talking to the monero-wallet-rpc instance at
// endpoint (e.g. "http://127.0.0.1:18083/json_rpc"). env determines the
// address prefix used when deriving addresses from recovered keys.
func NewClient(endpoint string, env common.Environment) *Client {
	return &Client{
		endpoint: endpoint,
		env:      env,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("monero-wallet-rpc: %s (code %d)", e.Message, e.Code)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("moneroclient: encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("moneroclient: building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("moneroclient: calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("moneroclient: reading %s response: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("moneroclient: decoding %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// OpenOrCreate opens the named wallet, creating it first if absent.
func (c *Client) OpenOrCreate(ctx context.Context, name string) error {
	openParams := map[string]string{"filename": name, "password": ""}
	if err := c.call(ctx, "open_wallet", openParams, nil); err == nil {
		return nil
	}

	createParams := map[string]string{"filename": name, "password": "", "language": "English"}
	if err := c.call(ctx, "create_wallet", createParams, nil); err != nil {
		return fmt.Errorf("moneroclient: create_wallet %s: %w", name, err)
	}
	return nil
}

// Transfer sends amount to address from the currently open wallet's
// primary account, returning proof of the transfer.
func (c *Client) Transfer(ctx context.Context, address monero.Address, amount coins.PiconeroAmount) (*wallet.TransferProof, error) {
	type destination struct {
		Amount uint64 `json:"amount"`
		Address string `json:"address"`
	}
	params := map[string]interface{}{
		"destinations": []destination{{Amount: amount.Uint64(), Address: address.String()}},
		"get_tx_key":   true,
	}

	var result struct {
		TxHash string `json:"tx_hash"`
		TxKey  string `json:"tx_key"`
	}
	if err := c.call(ctx, "transfer", params, &result); err != nil {
		return nil, fmt.Errorf("moneroclient: transfer to %s: %w", address, err)
	}
	return &wallet.TransferProof{TxHash: result.TxHash, Key: result.TxKey}, nil
}

// CheckTransfer verifies that proof attests a transfer of amount to the
// address owned by publicSpend/publicView.
func (c *Client) CheckTransfer(ctx context.Context, publicSpend, publicView *monero.PublicKey, proof *wallet.TransferProof, amount coins.PiconeroAmount) error {
	address := monero.NewPublicKeyPair(publicSpend, publicView).Address(c.env)

	params := map[string]string{
		"txid":    proof.TxHash,
		"tx_key":  proof.Key,
		"address": address.String(),
	}
	var result struct {
		Received      uint64 `json:"received"`
		Confirmations uint64 `json:"confirmations"`
	}
	if err := c.call(ctx, "check_tx_key", params, &result); err != nil {
		return fmt.Errorf("moneroclient: check_tx_key for %s: %w", proof.TxHash, err)
	}
	if result.Received < amount.Uint64() {
		return fmt.Errorf("moneroclient: transfer %s paid %d, want at least %d", proof.TxHash, result.Received, amount.Uint64())
	}
	return nil
}

// ImportOutput opens (creating if needed) a scan-only wallet from a
// complete spend/view key pair and sweeps its entire balance to sweepTo.
func (c *Client) ImportOutput(ctx context.Context, keys *monero.PrivateKeyPair, sweepTo monero.Address) (string, error) {
	name := "recovered-" + hex.EncodeToString(keys.SpendKey().Bytes())[:16]
	address := keys.Address(c.env)

	generateParams := map[string]interface{}{
		"filename":       name,
		"password":       "",
		"address":        address.String(),
		"spendkey":       hex.EncodeToString(keys.SpendKey().Bytes()),
		"viewkey":        hex.EncodeToString(keys.ViewKey().Bytes()),
		"restore_height": 0,
	}
	openParams := map[string]string{"filename": name, "password": ""}
	if err := c.call(ctx, "open_wallet", openParams, nil); err != nil {
		if err := c.call(ctx, "generate_from_keys", generateParams, nil); err != nil {
			return "", fmt.Errorf("moneroclient: generate_from_keys %s: %w", name, err)
		}
		if err := c.call(ctx, "open_wallet", openParams, nil); err != nil {
			return "", fmt.Errorf("moneroclient: open_wallet %s: %w", name, err)
		}
	}

	if err := c.call(ctx, "refresh", struct{}{}, nil); err != nil {
		return "", fmt.Errorf("moneroclient: refresh %s: %w", name, err)
	}

	sweepParams := map[string]interface{}{"address": sweepTo.String(), "account_index": 0}
	var sweepResult struct {
		TxHashList []string `json:"tx_hash_list"`
	}
	if err := c.call(ctx, "sweep_all", sweepParams, &sweepResult); err != nil {
		return "", fmt.Errorf("moneroclient: sweep_all from %s: %w", name, err)
	}
	if len(sweepResult.TxHashList) == 0 {
		return "", fmt.Errorf("moneroclient: sweep_all from %s returned no transactions", name)
	}
	return sweepResult.TxHashList[0], nil
}

// GetBalance returns the open wallet's unlocked balance, in piconero.
func (c *Client) GetBalance(ctx context.Context) (coins.PiconeroAmount, error) {
	var result struct {
		UnlockedBalance uint64 `json:"unlocked_balance"`
	}
	if err := c.call(ctx, "get_balance", map[string]int{"account_index": 0}, &result); err != nil {
		return 0, fmt.Errorf("moneroclient: get_balance: %w", err)
	}
	return coins.PiconeroAmount(result.UnlockedBalance), nil
}

// GetMainAddress returns the open wallet's primary address.
func (c *Client) GetMainAddress(ctx context.Context) (monero.Address, error) {
	var result struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, "get_address", map[string]int{"account_index": 0}, &result); err != nil {
		return "", fmt.Errorf("moneroclient: get_address: %w", err)
	}
	return monero.Address(result.Address), nil
}

// Refresh rescans the chain for the open wallet's outputs.
func (c *Client) Refresh(ctx context.Context) error {
	if err := c.call(ctx, "refresh", struct{}{}, nil); err != nil {
		return fmt.Errorf("moneroclient: refresh: %w", err)
	}
	return nil
}

// Height returns the open wallet's most recently scanned block height.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	var result struct {
		Height uint64 `json:"height"`
	}
	if err := c.call(ctx, "get_height", struct{}{}, &result); err != nil {
		return 0, fmt.Errorf("moneroclient: get_height: %w", err)
	}
	return result.Height, nil
}

var _ wallet.MoneroWallet = (*Client)(nil)
