package registry

import "github.com/ethereum/go-ethereum/common"

// Direction is one ordered token pair the pipeline can swap through, plus the
// protocol type code the campaign API expects for that pair.
type Direction struct {
	FromSymbol string
	ToSymbol   string
	TokenIn    common.Address
	TokenOut   common.Address
	// RangeKey names the activity amount range for this direction's input
	// side. The native asset borrows its wrapped form's range.
	RangeKey string
	// TypeCode tags the swap variant for the campaign API:
	// 0 wrap, 1 unwrap, 2 router buy, 3 router sell.
	TypeCode uint8
}

// Native is the sentinel token address for the chain's native asset.
var Native = common.Address{}

const (
	StrategyRouter = "router"
	StrategyWrap   = "wrap"
)

// routerDirections is the fixed ordered set the scheduler alternates through
// when the router strategy is active. Order matters: repetition i uses
// directions[i % len].
var routerDirections = []Direction{
	{FromSymbol: "WPOL", ToSymbol: "TPOL", TokenIn: WPOLAddress, TokenOut: TPOLAddress, RangeKey: "wpol", TypeCode: 2},
	{FromSymbol: "TPOL", ToSymbol: "WPOL", TokenIn: TPOLAddress, TokenOut: WPOLAddress, RangeKey: "tpol", TypeCode: 3},
}

var wrapDirections = []Direction{
	{FromSymbol: "POL", ToSymbol: "WPOL", TokenIn: Native, TokenOut: WPOLAddress, RangeKey: "wpol", TypeCode: 0},
	{FromSymbol: "WPOL", ToSymbol: "POL", TokenIn: WPOLAddress, TokenOut: Native, RangeKey: "wpol", TypeCode: 1},
}

// DirectionsFor returns the direction set for a strategy name. Callers must
// not mutate the returned slice.
func DirectionsFor(strategy string) []Direction {
	switch strategy {
	case StrategyWrap:
		return wrapDirections
	default:
		return routerDirections
	}
}
