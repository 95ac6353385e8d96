package fees

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ggonzalez94/cycler/internal/chain"
)

// Scheme tags how a transaction should price its gas.
type Scheme uint8

const (
	// SchemeLegacy prices with a single gas price (pre-1559 transactions).
	SchemeLegacy Scheme = 0
	// SchemeDynamic prices with a fee cap and priority tip (1559 transactions).
	SchemeDynamic Scheme = 2
)

// Params is the gas pricing the pipeline attaches to a transaction.
type Params struct {
	Scheme   Scheme
	GasPrice *big.Int // legacy only
	MaxFee   *big.Int // dynamic only
	Tip      *big.Int // dynamic only
}

var oneGwei = big.NewInt(1_000_000_000)

// Selector picks fee parameters from live node data, degrading through
// fallbacks instead of failing: dynamic pricing when the node exposes a base
// fee, legacy pricing from the suggested gas price otherwise, and a 1 gwei
// legacy floor when the node answers nothing at all.
type Selector struct {
	log *slog.Logger
}

func NewSelector(log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{log: log}
}

// Select never returns an error; the worst outcome is the flat 1 gwei floor.
func (s *Selector) Select(ctx context.Context, client chain.Client) Params {
	baseFee, err := client.HeadBaseFee(ctx)
	if err == nil && baseFee != nil && baseFee.Sign() > 0 {
		tip, tipErr := client.SuggestGasTipCap(ctx)
		if tipErr != nil || tip == nil || tip.Sign() <= 0 {
			tip = new(big.Int).Set(oneGwei)
		}
		// Cap at twice the current base fee plus the tip so the
		// transaction survives moderate base fee growth while pending.
		maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
		maxFee.Add(maxFee, tip)
		return Params{Scheme: SchemeDynamic, MaxFee: maxFee, Tip: tip}
	}

	gasPrice, priceErr := client.SuggestGasPrice(ctx)
	if priceErr == nil && gasPrice != nil && gasPrice.Sign() > 0 {
		return Params{Scheme: SchemeLegacy, GasPrice: gasPrice}
	}

	s.log.Warn("node fee queries failed, using 1 gwei floor")
	return Params{Scheme: SchemeLegacy, GasPrice: new(big.Int).Set(oneGwei)}
}

// PerGasCost is the worst-case wei spent per unit of gas under these params.
func (p Params) PerGasCost() *big.Int {
	if p.Scheme == SchemeDynamic {
		return new(big.Int).Set(p.MaxFee)
	}
	return new(big.Int).Set(p.GasPrice)
}
