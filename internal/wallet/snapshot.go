package wallet

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/cycler/internal/chain"
	"github.com/ggonzalez94/cycler/internal/registry"
)

// Snapshot is a point-in-time view of one account's balances. It is rebuilt
// wholesale before each operation rather than patched incrementally.
type Snapshot struct {
	Address string                     `json:"address"`
	Native  decimal.Decimal            `json:"native"`
	Tokens  map[string]decimal.Decimal `json:"tokens"`
}

// TakeSnapshot reads the native balance and every tracked token balance for
// the account.
func TakeSnapshot(ctx context.Context, client chain.Client, acct *Account) (*Snapshot, error) {
	native, err := client.NativeBalance(ctx, acct.Address)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Address: acct.APIAddress(),
		Native:  fromWei(native),
		Tokens:  make(map[string]decimal.Decimal, len(registry.TrackedTokens)),
	}
	for symbol, token := range registry.TrackedTokens {
		bal, err := client.TokenBalance(ctx, token, acct.Address)
		if err != nil {
			return nil, err
		}
		snap.Tokens[symbol] = fromWei(bal)
	}
	return snap, nil
}

func fromWei(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -registry.TokenDecimals)
}

func bigFromInt64(v int64) *big.Int { return big.NewInt(v) }
