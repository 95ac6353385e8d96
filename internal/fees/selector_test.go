package fees

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ggonzalez94/cycler/internal/chain"
)

type stubClient struct {
	chain.Client
	baseFee    *big.Int
	baseFeeErr error
	tip        *big.Int
	tipErr     error
	gasPrice   *big.Int
	priceErr   error
}

func (s *stubClient) HeadBaseFee(ctx context.Context) (*big.Int, error) {
	return s.baseFee, s.baseFeeErr
}

func (s *stubClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return s.tip, s.tipErr
}

func (s *stubClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return s.gasPrice, s.priceErr
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestSelectPrefersDynamicPricing(t *testing.T) {
	client := &stubClient{baseFee: gwei(30), tip: gwei(2)}
	p := NewSelector(nil).Select(context.Background(), client)

	if p.Scheme != SchemeDynamic {
		t.Fatalf("scheme = %d, want dynamic", p.Scheme)
	}
	wantMax := gwei(62) // 2*30 + 2
	if p.MaxFee.Cmp(wantMax) != 0 {
		t.Fatalf("maxFee = %s, want %s", p.MaxFee, wantMax)
	}
	if p.Tip.Cmp(gwei(2)) != 0 {
		t.Fatalf("tip = %s, want 2 gwei", p.Tip)
	}
}

func TestSelectFallsBackToOneGweiTip(t *testing.T) {
	client := &stubClient{baseFee: gwei(30), tipErr: errors.New("not supported")}
	p := NewSelector(nil).Select(context.Background(), client)

	if p.Scheme != SchemeDynamic {
		t.Fatalf("scheme = %d, want dynamic", p.Scheme)
	}
	if p.Tip.Cmp(gwei(1)) != 0 {
		t.Fatalf("tip = %s, want 1 gwei fallback", p.Tip)
	}
}

func TestSelectDegradesToLegacy(t *testing.T) {
	client := &stubClient{baseFeeErr: errors.New("pre-1559 node"), gasPrice: gwei(40)}
	p := NewSelector(nil).Select(context.Background(), client)

	if p.Scheme != SchemeLegacy {
		t.Fatalf("scheme = %d, want legacy", p.Scheme)
	}
	if p.GasPrice.Cmp(gwei(40)) != 0 {
		t.Fatalf("gasPrice = %s, want 40 gwei", p.GasPrice)
	}
}

func TestSelectDegradesToFloor(t *testing.T) {
	client := &stubClient{baseFeeErr: errors.New("down"), priceErr: errors.New("down")}
	p := NewSelector(nil).Select(context.Background(), client)

	if p.Scheme != SchemeLegacy {
		t.Fatalf("scheme = %d, want legacy", p.Scheme)
	}
	if p.GasPrice.Cmp(gwei(1)) != 0 {
		t.Fatalf("gasPrice = %s, want 1 gwei floor", p.GasPrice)
	}
}

func TestPerGasCost(t *testing.T) {
	dynamic := Params{Scheme: SchemeDynamic, MaxFee: gwei(50), Tip: gwei(2)}
	if dynamic.PerGasCost().Cmp(gwei(50)) != 0 {
		t.Fatal("dynamic per-gas cost should be the fee cap")
	}
	legacy := Params{Scheme: SchemeLegacy, GasPrice: gwei(40)}
	if legacy.PerGasCost().Cmp(gwei(40)) != 0 {
		t.Fatal("legacy per-gas cost should be the gas price")
	}
}
