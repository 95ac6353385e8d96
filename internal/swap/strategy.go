package swap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/registry"
)

// CallPlan is the fully built transaction payload for one swap, plus the
// approval and accounting context the pipeline needs around it.
type CallPlan struct {
	Target      common.Address
	Data        []byte
	Value       *big.Int
	GasLimit    uint64
	Spender     common.Address // zero when no approval is needed
	ExpectedOut *big.Int
}

// Strategy builds the on-chain payload for a swap direction. Implementations
// are stateless; one instance serves every account.
type Strategy interface {
	Name() string
	// RequiresQuote reports whether BuildCall needs an aggregator quote.
	RequiresQuote() bool
	BuildCall(dir registry.Direction, amount *big.Int, quote *Quote) (CallPlan, error)
}

// NewStrategy maps a configured strategy name to its implementation.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case registry.StrategyRouter:
		return &routerStrategy{}, nil
	case registry.StrategyWrap:
		return newWrapStrategy()
	default:
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown strategy %q", name))
	}
}

// routerStrategy swaps through the campaign aggregator. The route calldata
// comes straight from the quote; the strategy only validates and repackages.
type routerStrategy struct{}

func (s *routerStrategy) Name() string        { return registry.StrategyRouter }
func (s *routerStrategy) RequiresQuote() bool { return true }

func (s *routerStrategy) BuildCall(dir registry.Direction, amount *big.Int, quote *Quote) (CallPlan, error) {
	if quote == nil {
		return CallPlan{}, clierr.New(clierr.CodeInternal, "router strategy requires a quote")
	}
	plan := CallPlan{
		Target:      quote.Router,
		Data:        quote.RouteData,
		Value:       big.NewInt(0),
		GasLimit:    quote.GasLimit,
		ExpectedOut: quote.EstimatedOut,
	}
	if dir.TokenIn != registry.Native {
		plan.Spender = quote.ApprovalTarget
	}
	return plan, nil
}

// wrapStrategy converts between the native asset and its wrapped form through
// the canonical wrapped-native contract. No quote, no approval: deposit moves
// value with the call, withdraw burns the caller's own token balance.
type wrapStrategy struct {
	wrappedABI abi.ABI
}

func newWrapStrategy() (*wrapStrategy, error) {
	parsed, err := abi.JSON(strings.NewReader(registry.WrappedNativeABI))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse wrapped-native ABI", err)
	}
	return &wrapStrategy{wrappedABI: parsed}, nil
}

func (s *wrapStrategy) Name() string        { return registry.StrategyWrap }
func (s *wrapStrategy) RequiresQuote() bool { return false }

func (s *wrapStrategy) BuildCall(dir registry.Direction, amount *big.Int, _ *Quote) (CallPlan, error) {
	if dir.TokenIn == registry.Native {
		data, err := s.wrappedABI.Pack("deposit")
		if err != nil {
			return CallPlan{}, clierr.Wrap(clierr.CodeInternal, "pack deposit", err)
		}
		return CallPlan{
			Target:      dir.TokenOut,
			Data:        data,
			Value:       new(big.Int).Set(amount),
			ExpectedOut: new(big.Int).Set(amount),
		}, nil
	}

	data, err := s.wrappedABI.Pack("withdraw", amount)
	if err != nil {
		return CallPlan{}, clierr.Wrap(clierr.CodeInternal, "pack withdraw", err)
	}
	return CallPlan{
		Target:      dir.TokenIn,
		Data:        data,
		Value:       big.NewInt(0),
		ExpectedOut: new(big.Int).Set(amount),
	}, nil
}
