package swap

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/cycler/internal/chain"
	"github.com/ggonzalez94/cycler/internal/confirm"
	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/fees"
	"github.com/ggonzalez94/cycler/internal/nonce"
	"github.com/ggonzalez94/cycler/internal/registry"
	"github.com/ggonzalez94/cycler/internal/report"
	"github.com/ggonzalez94/cycler/internal/wallet"
)

// Pipeline executes one swap end to end: balance check, route, payload,
// fees, approval, gas budget, submission, confirmation, report. Each instance
// is bound to one account so every account keeps its own node connection and
// proxy.
type Pipeline struct {
	client   chain.Client
	chainID  int64
	strategy Strategy
	quotes   *QuoteClient
	tracker  *nonce.Tracker
	selector *fees.Selector
	monitor  *confirm.Monitor
	reporter *report.Client
	log      *slog.Logger

	confirmTimeout time.Duration
	erc20ABI       abi.ABI
}

type PipelineOpts struct {
	Client         chain.Client
	ChainID        int64
	Strategy       Strategy
	Quotes         *QuoteClient
	Tracker        *nonce.Tracker
	Selector       *fees.Selector
	Monitor        *confirm.Monitor
	Reporter       *report.Client
	Log            *slog.Logger
	ConfirmTimeout time.Duration
}

func NewPipeline(opts PipelineOpts) (*Pipeline, error) {
	parsed, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse ERC-20 ABI", err)
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 120 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Pipeline{
		client:         opts.Client,
		chainID:        opts.ChainID,
		strategy:       opts.Strategy,
		quotes:         opts.Quotes,
		tracker:        opts.Tracker,
		selector:       opts.Selector,
		monitor:        opts.Monitor,
		reporter:       opts.Reporter,
		log:            opts.Log,
		confirmTimeout: opts.ConfirmTimeout,
		erc20ABI:       parsed,
	}, nil
}

// Result summarizes one confirmed swap.
type Result struct {
	Hash      common.Hash
	GasUsed   uint64
	FeePaid   decimal.Decimal // native units
	Direction registry.Direction
	Amount    decimal.Decimal
}

// gas estimates are padded 20% so a slightly off node estimate does not
// produce an out-of-gas revert.
const gasPadNumerator, gasPadDenominator = 12, 10

// Execute runs the full swap for one account and direction. Every abort path
// before submission leaves the chain untouched; the only transactions it ever
// sends are the optional approval and the swap itself.
func (p *Pipeline) Execute(ctx context.Context, acct *wallet.Account, dir registry.Direction, amount decimal.Decimal) (*Result, error) {
	amountWei := toWei(amount)
	if amountWei.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "swap amount must be positive")
	}
	log := p.log.With("account", acct.APIAddress(), "direction", dir.FromSymbol+"->"+dir.ToSymbol)

	// Funding check comes first: an underfunded wallet must abort before
	// any quote, approval or submission.
	if err := p.checkBalance(ctx, acct, dir, amountWei); err != nil {
		return nil, err
	}

	var quote *Quote
	if p.strategy.RequiresQuote() {
		var err error
		quote, err = p.quotes.Fetch(ctx, acct.APIAddress(), dir.TokenIn, dir.TokenOut, amountWei)
		if err != nil {
			return nil, err
		}
	}

	plan, err := p.strategy.BuildCall(dir, amountWei, quote)
	if err != nil {
		return nil, err
	}

	feeParams := p.selector.Select(ctx, p.client)

	if plan.Spender != (common.Address{}) {
		if err := p.ensureApproval(ctx, acct, dir.TokenIn, plan.Spender, amountWei, feeParams, log); err != nil {
			return nil, err
		}
	}

	gasLimit, err := p.gasLimit(ctx, acct, plan)
	if err != nil {
		return nil, err
	}
	if err := p.checkGasBudget(ctx, acct, gasLimit, plan.Value, feeParams); err != nil {
		return nil, err
	}

	signed, err := p.submit(ctx, acct, plan, gasLimit, feeParams)
	if err != nil {
		return nil, err
	}
	log.Info("swap submitted", "tx", signed.Hash().Hex(), "amount", amount)

	receipt, err := p.monitor.Wait(ctx, p.client, signed.Hash(), p.confirmTimeout)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Hash:      signed.Hash(),
		GasUsed:   receipt.GasUsed,
		FeePaid:   feePaid(receipt, signed),
		Direction: dir,
		Amount:    amount,
	}
	log.Info("swap confirmed", "tx", result.Hash.Hex(), "gas_used", result.GasUsed, "fee", result.FeePaid)

	if p.reporter != nil {
		amountOut := amount
		if plan.ExpectedOut != nil {
			amountOut = fromWeiDec(plan.ExpectedOut)
		}
		p.reporter.SubmitBestEffort(ctx, report.Transaction{
			Hash:         result.Hash.Hex(),
			ChainID:      p.chainID,
			From:         acct.APIAddress(),
			TokenIn:      strings.ToLower(dir.TokenIn.Hex()),
			TokenOut:     strings.ToLower(dir.TokenOut.Hex()),
			AmountIn:     amount,
			AmountOut:    amountOut,
			GasFeeAmount: result.FeePaid,
			TypeCode:     dir.TypeCode,
		})
	}
	return result, nil
}

func (p *Pipeline) checkBalance(ctx context.Context, acct *wallet.Account, dir registry.Direction, amountWei *big.Int) error {
	var balance *big.Int
	var err error
	if dir.TokenIn == registry.Native {
		balance, err = p.client.NativeBalance(ctx, acct.Address)
	} else {
		balance, err = p.client.TokenBalance(ctx, dir.TokenIn, acct.Address)
	}
	if err != nil {
		return err
	}
	if balance.Cmp(amountWei) < 0 {
		return clierr.New(clierr.CodeInsufficientBalance, fmt.Sprintf(
			"%s balance %s below swap amount %s", dir.FromSymbol, fromWei(balance), fromWei(amountWei)))
	}
	return nil
}

// ensureApproval grants the spender an allowance covering amount when the
// current allowance falls short. The approval consumes its own nonce and is
// confirmed before the swap goes out.
func (p *Pipeline) ensureApproval(ctx context.Context, acct *wallet.Account, token, spender common.Address, amountWei *big.Int, feeParams fees.Params, log *slog.Logger) error {
	allowance, err := p.client.Allowance(ctx, token, acct.Address, spender)
	if err != nil {
		return clierr.Wrap(clierr.CodeApproval, "query allowance", err)
	}
	if allowance.Cmp(amountWei) >= 0 {
		return nil
	}

	data, err := p.erc20ABI.Pack("approve", spender, amountWei)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "pack approve", err)
	}
	plan := CallPlan{Target: token, Data: data, Value: big.NewInt(0)}

	gasLimit, err := p.gasLimit(ctx, acct, plan)
	if err != nil {
		return clierr.Wrap(clierr.CodeApproval, "estimate approval gas", err)
	}

	signed, err := p.submit(ctx, acct, plan, gasLimit, feeParams)
	if err != nil {
		return clierr.Wrap(clierr.CodeApproval, "submit approval", err)
	}
	log.Info("approval submitted", "tx", signed.Hash().Hex(), "spender", spender.Hex())

	if _, err := p.monitor.Wait(ctx, p.client, signed.Hash(), p.confirmTimeout); err != nil {
		return clierr.Wrap(clierr.CodeApproval, "await approval confirmation", err)
	}
	return nil
}

func (p *Pipeline) gasLimit(ctx context.Context, acct *wallet.Account, plan CallPlan) (uint64, error) {
	if plan.GasLimit > 0 {
		return plan.GasLimit, nil
	}
	estimate, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  acct.Address,
		To:    &plan.Target,
		Value: plan.Value,
		Data:  plan.Data,
	})
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeSubmission, "estimate gas", err)
	}
	return estimate * gasPadNumerator / gasPadDenominator, nil
}

// checkGasBudget verifies the wallet's native balance covers worst-case gas
// plus any native value attached to the call.
func (p *Pipeline) checkGasBudget(ctx context.Context, acct *wallet.Account, gasLimit uint64, value *big.Int, feeParams fees.Params) error {
	native, err := p.client.NativeBalance(ctx, acct.Address)
	if err != nil {
		return err
	}
	cost := new(big.Int).Mul(feeParams.PerGasCost(), new(big.Int).SetUint64(gasLimit))
	if value != nil {
		cost.Add(cost, value)
	}
	if native.Cmp(cost) < 0 {
		return clierr.New(clierr.CodeInsufficientGas, fmt.Sprintf(
			"native balance %s below required %s for gas", fromWei(native), fromWei(cost)))
	}
	return nil
}

func (p *Pipeline) submit(ctx context.Context, acct *wallet.Account, plan CallPlan, gasLimit uint64, feeParams fees.Params) (*types.Transaction, error) {
	txNonce, err := p.tracker.Next(ctx, p.client, p.chainID, acct.Address)
	if err != nil {
		return nil, err
	}

	value := plan.Value
	if value == nil {
		value = big.NewInt(0)
	}

	var tx *types.Transaction
	if feeParams.Scheme == fees.SchemeDynamic {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   big.NewInt(p.chainID),
			Nonce:     txNonce,
			GasTipCap: feeParams.Tip,
			GasFeeCap: feeParams.MaxFee,
			Gas:       gasLimit,
			To:        &plan.Target,
			Value:     value,
			Data:      plan.Data,
		})
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    txNonce,
			GasPrice: feeParams.GasPrice,
			Gas:      gasLimit,
			To:       &plan.Target,
			Value:    value,
			Data:     plan.Data,
		})
	}

	signed, err := acct.SignTx(tx, p.chainID)
	if err != nil {
		return nil, err
	}
	if err := p.client.SendTransaction(ctx, signed); err != nil {
		if nonce.IsNonceError(err) {
			p.tracker.Invalidate(p.chainID, acct.Address)
		}
		return nil, clierr.Wrap(clierr.CodeSubmission, "submit transaction", err)
	}
	return signed, nil
}

// feePaid computes the native fee from the receipt's effective gas price,
// falling back to the transaction's requested pricing when the node omits it.
func feePaid(receipt *types.Receipt, tx *types.Transaction) decimal.Decimal {
	perGas := receipt.EffectiveGasPrice
	if perGas == nil || perGas.Sign() == 0 {
		perGas = tx.GasPrice()
	}
	wei := new(big.Int).Mul(perGas, new(big.Int).SetUint64(receipt.GasUsed))
	return fromWeiDec(wei)
}

func toWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(registry.TokenDecimals).BigInt()
}

func fromWei(v *big.Int) string {
	return fromWeiDec(v).String()
}

func fromWeiDec(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -registry.TokenDecimals)
}
