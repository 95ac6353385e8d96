package report

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/httpx"
	"github.com/ggonzalez94/cycler/internal/metrics"
)

// Transaction is one completed swap reported to the campaign API for points
// accrual.
type Transaction struct {
	Hash           string          `json:"hash"`
	ChainID        int64           `json:"chainId"`
	From           string          `json:"from"`
	TokenIn        string          `json:"tokenIn"`
	TokenOut       string          `json:"tokenOut"`
	AmountIn       decimal.Decimal `json:"amountIn"`
	AmountOut      decimal.Decimal `json:"amountOut"`
	GasFeeAmount   decimal.Decimal `json:"gasFeeAmount"`
	TypeCode       uint8           `json:"type"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type submitResponse struct {
	PointsAwarded int64 `json:"pointsAwarded"`
}

// Client submits transaction reports. Reporting is best effort: the swap
// already settled on chain, so a failed report is logged and swallowed rather
// than failing the pipeline.
type Client struct {
	http    *httpx.Client
	apiBase string
	log     *slog.Logger
}

func NewClient(http *httpx.Client, apiBase string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{http: http, apiBase: strings.TrimRight(apiBase, "/"), log: log}
}

// Submit posts one transaction report and returns the points awarded. A fresh
// idempotency key is generated per submission so API-side retries cannot
// double count.
func (c *Client) Submit(ctx context.Context, tx Transaction) (int64, error) {
	if tx.IdempotencyKey == "" {
		tx.IdempotencyKey = uuid.NewString()
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "encode transaction report", err)
	}
	var resp submitResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.apiBase+"/transaction", body, nil, &resp); err != nil {
		return 0, err
	}
	return resp.PointsAwarded, nil
}

// SubmitBestEffort logs and swallows any report failure.
func (c *Client) SubmitBestEffort(ctx context.Context, tx Transaction) {
	points, err := c.Submit(ctx, tx)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		c.log.Warn("transaction report failed", "tx", tx.Hash, "err", err)
		return
	}
	metrics.ReportsTotal.WithLabelValues("ok").Inc()
	if points > 0 {
		c.log.Info("transaction reported", "tx", tx.Hash, "points", points)
	}
}
