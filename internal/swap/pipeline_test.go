package swap

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/cycler/internal/chain"
	"github.com/ggonzalez94/cycler/internal/confirm"
	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/fees"
	"github.com/ggonzalez94/cycler/internal/nonce"
	"github.com/ggonzalez94/cycler/internal/registry"
	"github.com/ggonzalez94/cycler/internal/wallet"
)

// Throwaway test key; the address derived from it holds nothing anywhere.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeChain struct {
	chain.Client
	native    *big.Int
	tokens    map[common.Address]*big.Int
	sent      []*types.Transaction
	sendErr   error
	gasEst    uint64
	gasPrice  *big.Int
	sendCount int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		native:   eth(2),
		tokens:   map[common.Address]*big.Int{},
		gasEst:   50_000,
		gasPrice: big.NewInt(40_000_000_000),
	}
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func (f *fakeChain) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if bal, ok := f.tokens[token]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return eth(1000), nil
}

func (f *fakeChain) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeChain) HeadBaseFee(ctx context.Context) (*big.Int, error) {
	return nil, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return nil, ethereum.NotFound
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.gasEst, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sendCount++
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		BlockNumber:       big.NewInt(100),
		GasUsed:           f.gasEst,
		EffectiveGasPrice: new(big.Int).Set(f.gasPrice),
	}, nil
}

type instantSleeper struct{}

func (instantSleeper) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testAccount(t *testing.T) *wallet.Account {
	t.Helper()
	t.Setenv("CYCLER_PRIVATE_KEYS", testKeyHex)
	accounts, err := wallet.Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	return accounts[0]
}

func newTestPipeline(t *testing.T, client chain.Client) *Pipeline {
	t.Helper()
	strategy, err := NewStrategy(registry.StrategyWrap)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPipeline(PipelineOpts{
		Client:         client,
		ChainID:        registry.ChainID,
		Strategy:       strategy,
		Tracker:        nonce.NewTracker(nil),
		Selector:       fees.NewSelector(nil),
		Monitor:        confirm.NewMonitorWithInterval(instantSleeper{}, nil, time.Millisecond),
		ConfirmTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func wrapDirection() registry.Direction {
	return registry.DirectionsFor(registry.StrategyWrap)[0] // POL -> WPOL
}

func unwrapDirection() registry.Direction {
	return registry.DirectionsFor(registry.StrategyWrap)[1] // WPOL -> POL
}

func TestExecuteConfirmsWrapSwap(t *testing.T) {
	client := newFakeChain()
	p := newTestPipeline(t, client)
	acct := testAccount(t)

	result, err := p.Execute(context.Background(), acct, wrapDirection(), decimal.NewFromFloat(0.5))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if client.sendCount != 1 {
		t.Fatalf("sent %d transactions, want 1", client.sendCount)
	}

	tx := client.sent[0]
	if tx.Value().Cmp(toWei(decimal.NewFromFloat(0.5))) != 0 {
		t.Fatalf("deposit value = %s, want 0.5 in wei", tx.Value())
	}
	if tx.Nonce() != 7 {
		t.Fatalf("nonce = %d, want tracker-issued 7", tx.Nonce())
	}
	if result.GasUsed != 50_000 {
		t.Fatalf("gasUsed = %d", result.GasUsed)
	}
	// fee = 50_000 gas * 40 gwei = 0.002 native
	if !result.FeePaid.Equal(decimal.NewFromFloat(0.002)) {
		t.Fatalf("feePaid = %s, want 0.002", result.FeePaid)
	}
}

func TestExecuteAbortsOnInsufficientBalance(t *testing.T) {
	client := newFakeChain()
	client.tokens[registry.WPOLAddress] = eth(0) // nothing to unwrap
	p := newTestPipeline(t, client)
	acct := testAccount(t)

	_, err := p.Execute(context.Background(), acct, unwrapDirection(), decimal.NewFromFloat(1))
	if !clierr.Is(err, clierr.CodeInsufficientBalance) {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}
	if client.sendCount != 0 {
		t.Fatalf("sent %d transactions, underfunded swap must not submit", client.sendCount)
	}
}

func TestExecuteAbortsOnInsufficientGas(t *testing.T) {
	client := newFakeChain()
	client.tokens[registry.WPOLAddress] = eth(10)
	client.native = big.NewInt(1) // 1 wei cannot cover gas
	p := newTestPipeline(t, client)
	acct := testAccount(t)

	_, err := p.Execute(context.Background(), acct, unwrapDirection(), decimal.NewFromFloat(1))
	if !clierr.Is(err, clierr.CodeInsufficientGas) {
		t.Fatalf("expected insufficient gas error, got %v", err)
	}
	if client.sendCount != 0 {
		t.Fatalf("sent %d transactions, want 0", client.sendCount)
	}
}

func TestExecuteRejectsNonPositiveAmount(t *testing.T) {
	p := newTestPipeline(t, newFakeChain())
	acct := testAccount(t)
	if _, err := p.Execute(context.Background(), acct, wrapDirection(), decimal.Zero); err == nil {
		t.Fatal("zero amount should be rejected")
	}
}
