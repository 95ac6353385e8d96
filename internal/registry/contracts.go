package registry

import "github.com/ethereum/go-ethereum/common"

// Campaign deployment data for Polygon PoS (chain id 137). These are defaults;
// every value can be overridden through configuration.
const (
	ChainID = int64(137)

	DefaultRPCURL = "https://polygon-rpc.com"

	// Campaign REST API base (check-in, transaction reports, swap quotes).
	DefaultAPIBase = "https://api.tea-fi.com"
)

var (
	// WPOLAddress is the canonical wrapped-native contract on Polygon.
	WPOLAddress = common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")

	// TPOLAddress is the campaign receipt token paired against WPOL.
	TPOLAddress = common.HexToAddress("0x1Cd0cd01c8C902AdAb3430ae04b9ea32CB309CF1")
)

// TokenDecimals for the tracked tokens. Both sides of the campaign pair use
// native precision.
const TokenDecimals = 18

// TrackedTokens lists the ERC-20 tokens included in wallet snapshots, keyed
// by display symbol.
var TrackedTokens = map[string]common.Address{
	"WPOL": WPOLAddress,
	"TPOL": TPOLAddress,
}
