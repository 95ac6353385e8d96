package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/cycler/internal/cache"
	"github.com/ggonzalez94/cycler/internal/chain"
	"github.com/ggonzalez94/cycler/internal/checkin"
	"github.com/ggonzalez94/cycler/internal/config"
	"github.com/ggonzalez94/cycler/internal/confirm"
	"github.com/ggonzalez94/cycler/internal/fees"
	"github.com/ggonzalez94/cycler/internal/httpx"
	"github.com/ggonzalez94/cycler/internal/lifecycle"
	"github.com/ggonzalez94/cycler/internal/nonce"
	"github.com/ggonzalez94/cycler/internal/registry"
	"github.com/ggonzalez94/cycler/internal/report"
	"github.com/ggonzalez94/cycler/internal/scheduler"
	"github.com/ggonzalez94/cycler/internal/swap"
	"github.com/ggonzalez94/cycler/internal/wallet"
)

// accountWorker bundles the per-account clients: a node connection and an API
// client, both pinned to the account's proxy, plus the swap pipeline and
// check-in step built on them.
type accountWorker struct {
	client   chain.Client
	pipeline *swap.Pipeline
	checkin  *checkin.Step
}

func (w *accountWorker) CheckIn(ctx context.Context, acct *wallet.Account) error {
	_, err := w.checkin.Run(ctx, acct)
	return err
}

func (w *accountWorker) Swap(ctx context.Context, acct *wallet.Account, dir registry.Direction, amount decimal.Decimal) (*swap.Result, error) {
	return w.pipeline.Execute(ctx, acct, dir, amount)
}

func (w *accountWorker) Snapshot(ctx context.Context, acct *wallet.Account) (*wallet.Snapshot, error) {
	return wallet.TakeSnapshot(ctx, w.client, acct)
}

func (w *accountWorker) Close() {
	w.client.Close()
}

// newWorkerFactory builds per-account workers over shared orchestration
// state: one nonce tracker and one lifecycle controller serve all accounts.
func (r *Runner) newWorkerFactory(settings config.Settings, ctrl *lifecycle.Controller, tracker *nonce.Tracker, store *cache.Store) scheduler.WorkerFactory {
	strategy, strategyErr := swap.NewStrategy(settings.Strategy)
	selector := fees.NewSelector(r.log)
	monitor := confirm.NewMonitor(ctrl, r.log)

	return func(ctx context.Context, acct *wallet.Account) (scheduler.Worker, error) {
		if strategyErr != nil {
			return nil, strategyErr
		}
		client, err := chain.Dial(ctx, settings.RPCURL, settings.ChainID, acct.ProxyURL)
		if err != nil {
			return nil, err
		}
		apiClient, err := httpx.NewWithProxy(settings.Timeout, settings.Retries, acct.ProxyURL)
		if err != nil {
			client.Close()
			return nil, err
		}

		pipeline, err := swap.NewPipeline(swap.PipelineOpts{
			Client:         client,
			ChainID:        settings.ChainID,
			Strategy:       strategy,
			Quotes:         swap.NewQuoteClient(apiClient, settings.APIBase),
			Tracker:        tracker,
			Selector:       selector,
			Monitor:        monitor,
			Reporter:       report.NewClient(apiClient, settings.APIBase, r.log),
			Log:            r.log,
			ConfirmTimeout: settings.ConfirmTimeout,
		})
		if err != nil {
			client.Close()
			return nil, err
		}

		return &accountWorker{
			client:   client,
			pipeline: pipeline,
			checkin:  checkin.NewStep(apiClient, settings.APIBase, store, r.log),
		}, nil
	}
}
