package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/cycler/internal/cache"
	"github.com/ggonzalez94/cycler/internal/chain"
	"github.com/ggonzalez94/cycler/internal/checkin"
	"github.com/ggonzalez94/cycler/internal/config"
	"github.com/ggonzalez94/cycler/internal/httpx"
	"github.com/ggonzalez94/cycler/internal/lifecycle"
	"github.com/ggonzalez94/cycler/internal/metrics"
	"github.com/ggonzalez94/cycler/internal/nonce"
	"github.com/ggonzalez94/cycler/internal/out"
	"github.com/ggonzalez94/cycler/internal/registry"
	"github.com/ggonzalez94/cycler/internal/scheduler"
	"github.com/ggonzalez94/cycler/internal/version"
	"github.com/ggonzalez94/cycler/internal/wallet"
)

func (r *Runner) runCommand() *cobra.Command {
	var loopHours float64
	var repetitions int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run recurring swap cycles until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := r.settings()
			if err != nil {
				return err
			}
			activity, err := config.LoadActivity(settings.ActivityPath)
			if err != nil {
				return err
			}
			if loopHours > 0 {
				activity.LoopHours = loopHours
			}
			if repetitions > 0 {
				activity.SwapRepetitions = repetitions
			}
			if err := activity.Validate(); err != nil {
				return err
			}
			accounts, err := wallet.Load(settings.AccountsPath, settings.ProxiesPath)
			if err != nil {
				return err
			}

			var store *cache.Store
			if settings.CacheEnabled {
				store, err = cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					r.log.Warn("cache unavailable, continuing without memoization", "err", err)
				} else {
					defer func() { _ = store.Close() }()
				}
			}

			ctrl := lifecycle.NewController(r.log)
			tracker := nonce.NewTracker(ctrl.Stopping)

			var resetNonce func()
			if settings.NonceResetOnCycleEnd {
				resetNonce = tracker.Reset
			}

			sched := scheduler.New(scheduler.Opts{
				Controller: ctrl,
				Factory:    r.newWorkerFactory(settings, ctrl, tracker, store),
				Activity:   activity,
				Directions: registry.DirectionsFor(settings.Strategy),
				Delays:     scheduler.DefaultDelays(),
				ResetNonce: resetNonce,
				Log:        r.log,
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			metrics.Serve(ctx, settings.MetricsListen, r.log)

			sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()
			go func() {
				<-sigCtx.Done()
				ctrl.RequestStop()
				metrics.RunState.Set(float64(lifecycle.StateStopping))
			}()

			if err := ctrl.Start(); err != nil {
				return err
			}
			r.log.Info("orchestrator started",
				"accounts", len(accounts),
				"strategy", settings.Strategy,
				"repetitions", activity.SwapRepetitions,
				"loop_hours", activity.LoopHours)

			runErr := sched.Run(ctx, accounts)
			ctrl.RequestStop()
			ctrl.AwaitDrain(ctx)
			metrics.RunState.Set(float64(lifecycle.StateIdle))
			return runErr
		},
	}
	cmd.Flags().Float64Var(&loopHours, "loop-hours", 0, "hours between cycles (overrides activity config)")
	cmd.Flags().IntVar(&repetitions, "repetitions", 0, "swaps per account per cycle (overrides activity config)")
	return cmd
}

func (r *Runner) accountsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Show balances for every configured account",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := r.settings()
			if err != nil {
				return err
			}
			format, err := out.ParseFormat(r.output)
			if err != nil {
				return err
			}
			accounts, err := wallet.Load(settings.AccountsPath, settings.ProxiesPath)
			if err != nil {
				return err
			}

			snapshots := make([]*wallet.Snapshot, 0, len(accounts))
			for _, acct := range accounts {
				client, err := chain.Dial(cmd.Context(), settings.RPCURL, settings.ChainID, acct.ProxyURL)
				if err != nil {
					return err
				}
				snap, err := wallet.TakeSnapshot(cmd.Context(), client, acct)
				client.Close()
				if err != nil {
					return err
				}
				snapshots = append(snapshots, snap)
			}

			return out.Render(r.stdout, format, snapshots, func(w io.Writer) error {
				for _, snap := range snapshots {
					fmt.Fprintf(w, "%s\n  native: %s\n", snap.Address, snap.Native)
					for symbol, bal := range snap.Tokens {
						fmt.Fprintf(w, "  %s: %s\n", symbol, bal)
					}
				}
				return nil
			})
		},
	}
}

func (r *Runner) checkinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checkin",
		Short: "Perform the daily check-in once for every account",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := r.settings()
			if err != nil {
				return err
			}
			accounts, err := wallet.Load(settings.AccountsPath, settings.ProxiesPath)
			if err != nil {
				return err
			}

			var store *cache.Store
			if settings.CacheEnabled {
				if s, err := cache.Open(settings.CachePath, settings.CacheLockPath); err == nil {
					store = s
					defer func() { _ = store.Close() }()
				}
			}

			var failures int
			for _, acct := range accounts {
				apiClient, err := httpx.NewWithProxy(settings.Timeout, settings.Retries, acct.ProxyURL)
				if err != nil {
					return err
				}
				step := checkin.NewStep(apiClient, settings.APIBase, store, r.log)
				outcome, err := step.Run(cmd.Context(), acct)
				if err != nil {
					failures++
					r.log.Warn("check-in failed", "account", acct.APIAddress(), "err", err)
					continue
				}
				if outcome.Performed {
					fmt.Fprintf(r.stdout, "%s checked in (+%d points)\n", acct.APIAddress(), outcome.PointsAwarded)
				} else {
					fmt.Fprintf(r.stdout, "%s already checked in today\n", acct.APIAddress())
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d check-ins failed", failures, len(accounts))
			}
			return nil
		},
	}
}

func (r *Runner) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit orchestrator configuration",
	}
	cmd.AddCommand(r.configShowCommand(), r.configSetCommand())
	return cmd
}

func (r *Runner) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration and activity settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := r.settings()
			if err != nil {
				return err
			}
			activity, err := config.LoadActivity(settings.ActivityPath)
			if err != nil {
				return err
			}
			format, err := out.ParseFormat(r.output)
			if err != nil {
				return err
			}

			view := struct {
				RPCURL      string                  `json:"rpc_url"`
				ChainID     int64                   `json:"chain_id"`
				APIBase     string                  `json:"api_base"`
				Strategy    string                  `json:"strategy"`
				Repetitions int                     `json:"swap_repetitions"`
				LoopHours   float64                 `json:"loop_hours"`
				Amounts     map[string]config.Range `json:"amounts"`
				NonceReset  bool                    `json:"nonce_reset_on_cycle_end"`
			}{
				RPCURL:      settings.RPCURL,
				ChainID:     settings.ChainID,
				APIBase:     settings.APIBase,
				Strategy:    settings.Strategy,
				Repetitions: activity.SwapRepetitions,
				LoopHours:   activity.LoopHours,
				Amounts:     activity.Amounts,
				NonceReset:  settings.NonceResetOnCycleEnd,
			}

			return out.Render(r.stdout, format, view, func(w io.Writer) error {
				fmt.Fprintf(w, "rpc_url: %s\nchain_id: %d\napi_base: %s\nstrategy: %s\n",
					view.RPCURL, view.ChainID, view.APIBase, view.Strategy)
				fmt.Fprintf(w, "swap_repetitions: %d\nloop_hours: %g\nnonce_reset_on_cycle_end: %t\n",
					view.Repetitions, view.LoopHours, view.NonceReset)
				for token, rng := range view.Amounts {
					fmt.Fprintf(w, "amounts.%s: %g - %g\n", token, rng.Min, rng.Max)
				}
				return nil
			})
		},
	}
}

func (r *Runner) configSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <field> <value>",
		Short: "Edit one activity field (repetitions, loop-hours, <token>.min, <token>.max)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := r.settings()
			if err != nil {
				return err
			}
			activity, err := config.LoadActivity(settings.ActivityPath)
			if err != nil {
				return err
			}
			field, token, err := config.ParseActivityField(args[0])
			if err != nil {
				return err
			}
			if err := config.SetActivityField(&activity, field, token, args[1]); err != nil {
				return err
			}
			if err := config.SaveActivity(settings.ActivityPath, activity); err != nil {
				return err
			}
			fmt.Fprintf(r.stdout, "updated %s\n", args[0])
			return nil
		},
	}
}

func (r *Runner) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(r.stdout, version.Long())
		},
	}
}
