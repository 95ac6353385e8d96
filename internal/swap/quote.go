package swap

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/httpx"
)

// Quote is the routing answer from the campaign aggregator: the calldata to
// send, where to send it, who must be approved, and what to expect back.
type Quote struct {
	RouteData      []byte
	EstimatedOut   *big.Int
	ApprovalTarget common.Address
	Router         common.Address
	GasLimit       uint64
}

type quoteResponse struct {
	RouteData      string `json:"routeData"`
	EstimatedOut   string `json:"estimatedOut"`
	ApprovalTarget string `json:"approvalTarget"`
	Router         string `json:"router"`
	GasLimit       uint64 `json:"gasLimit"`
}

// QuoteClient fetches swap routes from the campaign API.
type QuoteClient struct {
	http    *httpx.Client
	apiBase string
}

func NewQuoteClient(http *httpx.Client, apiBase string) *QuoteClient {
	return &QuoteClient{http: http, apiBase: strings.TrimRight(apiBase, "/")}
}

func (c *QuoteClient) Fetch(ctx context.Context, account string, tokenIn, tokenOut common.Address, amount *big.Int) (*Quote, error) {
	params := url.Values{}
	params.Set("account", account)
	params.Set("tokenIn", strings.ToLower(tokenIn.Hex()))
	params.Set("tokenOut", strings.ToLower(tokenOut.Hex()))
	params.Set("amount", amount.String())

	endpoint := fmt.Sprintf("%s/swap/quote?%s", c.apiBase, params.Encode())
	var resp quoteResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, endpoint, nil, nil, &resp); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch swap quote", err)
	}

	routeData, err := decodeHex(resp.RouteData)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode quote route data", err)
	}
	if len(routeData) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "quote returned empty route data")
	}
	if !common.IsHexAddress(resp.Router) {
		return nil, clierr.New(clierr.CodeInvalidAddress, fmt.Sprintf("quote returned invalid router %q", resp.Router))
	}

	quote := &Quote{
		RouteData: routeData,
		Router:    common.HexToAddress(resp.Router),
		GasLimit:  resp.GasLimit,
	}
	if resp.EstimatedOut != "" {
		out, ok := new(big.Int).SetString(resp.EstimatedOut, 10)
		if !ok {
			return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("quote returned invalid estimatedOut %q", resp.EstimatedOut))
		}
		quote.EstimatedOut = out
	}
	if common.IsHexAddress(resp.ApprovalTarget) {
		quote.ApprovalTarget = common.HexToAddress(resp.ApprovalTarget)
	} else {
		quote.ApprovalTarget = quote.Router
	}
	return quote, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	return hexutil.Decode("0x" + s)
}
