package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/registry"
)

// Client is the node surface the orchestrator depends on. The production
// implementation wraps ethclient; tests substitute in-memory fakes.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeadBaseFee(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}

type rpcClient struct {
	eth      *ethclient.Client
	erc20ABI abi.ABI
}

// Dial connects to the node and verifies the remote chain id matches the
// configured one. A non-empty proxyURL routes all RPC traffic through that
// proxy, so each account can present its own egress address.
func Dial(ctx context.Context, rpcURL string, wantChainID int64, proxyURL string) (Client, error) {
	var opts []rpc.ClientOption
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse proxy url", err)
		}
		httpClient := &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
			Timeout:   30 * time.Second,
		}
		opts = append(opts, rpc.WithHTTPClient(httpClient))
	}

	raw, err := rpc.DialOptions(ctx, rpcURL, opts...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "dial RPC node", err)
	}
	eth := ethclient.NewClient(raw)

	remote, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, clierr.Wrap(clierr.CodeUnavailable, "query chain id", err)
	}
	if remote.Int64() != wantChainID {
		eth.Close()
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("RPC node is on chain %d, expected %d", remote.Int64(), wantChainID))
	}

	parsedABI, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		eth.Close()
		return nil, clierr.Wrap(clierr.CodeInternal, "parse ERC-20 ABI", err)
	}

	return &rpcClient{eth: eth, erc20ABI: parsedABI}, nil
}

func (c *rpcClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

func (c *rpcClient) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "query native balance", err)
	}
	return bal, nil
}

func (c *rpcClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.viewCall(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "query token balance", err)
	}
	return out, nil
}

func (c *rpcClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.viewCall(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "query allowance", err)
	}
	return out, nil
}

func (c *rpcClient) viewCall(ctx context.Context, contract common.Address, method string, args ...any) (*big.Int, error) {
	data, err := c.erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	values, err := c.erc20ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s output arity %d", method, len(values))
	}
	out, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output type %T", method, values[0])
	}
	return out, nil
}

func (c *rpcClient) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "query pending nonce", err)
	}
	return nonce, nil
}

func (c *rpcClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *rpcClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasTipCap(ctx)
}

// HeadBaseFee returns the latest block's base fee, or nil when the chain does
// not expose one (pre-1559 nodes).
func (c *rpcClient) HeadBaseFee(ctx context.Context) (*big.Int, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	return header.BaseFee, nil
}

func (c *rpcClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, msg)
}

func (c *rpcClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

func (c *rpcClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

func (c *rpcClient) Close() {
	c.eth.Close()
}
