package btc

import (
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/athanorlabs/xmr-btc-swap/common"
)

// NetParams returns the chaincfg.Params matching a swap's network
// environment, the parameter both SendToAddress-style address encoding and
// btcutil.DecodeAddress need to agree on.
func NetParams(env common.Environment) *chaincfg.Params {
	switch env {
	case common.Mainnet:
		return &chaincfg.MainNetParams
	case common.Stagenet:
		return &chaincfg.TestNet3Params
	default:
		return &chaincfg.RegressionNetParams
	}
}
