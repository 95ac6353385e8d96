package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/cycler/internal/config"
	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/lifecycle"
	"github.com/ggonzalez94/cycler/internal/metrics"
	"github.com/ggonzalez94/cycler/internal/registry"
	"github.com/ggonzalez94/cycler/internal/swap"
	"github.com/ggonzalez94/cycler/internal/wallet"
)

// Worker executes campaign operations for one account. The app layer binds
// it to a real node connection and API clients; tests substitute fakes.
type Worker interface {
	CheckIn(ctx context.Context, acct *wallet.Account) error
	Swap(ctx context.Context, acct *wallet.Account, dir registry.Direction, amount decimal.Decimal) (*swap.Result, error)
	Snapshot(ctx context.Context, acct *wallet.Account) (*wallet.Snapshot, error)
	Close()
}

// WorkerFactory builds the Worker for one account, including its dedicated
// proxied connections.
type WorkerFactory func(ctx context.Context, acct *wallet.Account) (Worker, error)

// Delays groups every pacing knob so tests can collapse them.
type Delays struct {
	InterSwapMin time.Duration
	InterSwapMax time.Duration
	InterAccount time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		InterSwapMin: 10 * time.Second,
		InterSwapMax: 25 * time.Second,
		InterAccount: 10 * time.Second,
	}
}

// Scheduler drives the recurring cycle: for every account a daily check-in
// and a fixed number of alternating-direction swaps, then a long sleep until
// the next cycle. Individual operation failures are logged and skipped; only
// a stop request ends the run.
type Scheduler struct {
	ctrl       *lifecycle.Controller
	factory    WorkerFactory
	activity   config.ActivityConfig
	directions []registry.Direction
	delays     Delays
	resetNonce func()
	log        *slog.Logger
	rng        *rand.Rand
}

type Opts struct {
	Controller *lifecycle.Controller
	Factory    WorkerFactory
	Activity   config.ActivityConfig
	Directions []registry.Direction
	Delays     Delays
	// ResetNonce runs at the end of every cycle when the reset policy is
	// enabled; nil disables the reset.
	ResetNonce func()
	Log        *slog.Logger
}

func New(opts Opts) *Scheduler {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Delays == (Delays{}) {
		opts.Delays = DefaultDelays()
	}
	return &Scheduler{
		ctrl:       opts.Controller,
		factory:    opts.Factory,
		activity:   opts.Activity,
		directions: opts.Directions,
		delays:     opts.Delays,
		resetNonce: opts.ResetNonce,
		log:        opts.Log,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes cycles until a stop request arrives. It owns the Running and
// WaitingForNextCycle transitions; Start and the final drain belong to the
// caller.
func (s *Scheduler) Run(ctx context.Context, accounts []*wallet.Account) error {
	loopDelay := time.Duration(s.activity.LoopHours * float64(time.Hour))

	for {
		s.ctrl.SetRunning()
		metrics.RunState.Set(float64(lifecycle.StateRunning))

		s.runCycle(ctx, accounts)

		if s.resetNonce != nil {
			s.resetNonce()
		}
		metrics.CyclesTotal.Inc()

		if s.ctrl.Stopping() || ctx.Err() != nil {
			return nil
		}

		s.ctrl.SetWaiting()
		metrics.RunState.Set(float64(lifecycle.StateWaitingForNextCycle))
		s.log.Info("cycle complete, waiting for next cycle", "hours", s.activity.LoopHours)
		if err := s.ctrl.Sleep(ctx, loopDelay); err != nil {
			return nil
		}
	}
}

// runCycle processes every account once. The end-of-cycle hooks in Run fire
// even when a stop request aborts the cycle partway through.
func (s *Scheduler) runCycle(ctx context.Context, accounts []*wallet.Account) {
	for i, acct := range accounts {
		if s.ctrl.Stopping() || ctx.Err() != nil {
			return
		}
		s.runAccount(ctx, acct)

		if i < len(accounts)-1 {
			if err := s.ctrl.Sleep(ctx, s.delays.InterAccount); err != nil {
				return
			}
		}
	}
}

func (s *Scheduler) runAccount(ctx context.Context, acct *wallet.Account) {
	log := s.log.With("account", acct.APIAddress())

	worker, err := s.factory(ctx, acct)
	if err != nil {
		log.Error("account setup failed, skipping", "err", err)
		return
	}
	defer worker.Close()

	s.ctrl.Enter()
	metrics.InFlightOps.Set(float64(s.ctrl.InFlight()))
	err = worker.CheckIn(ctx, acct)
	s.ctrl.Exit()
	metrics.InFlightOps.Set(float64(s.ctrl.InFlight()))
	if err != nil {
		if clierr.Is(err, clierr.CodeStopped) {
			return
		}
		metrics.CheckinsTotal.WithLabelValues("error").Inc()
		log.Warn("check-in failed", "err", err)
	} else {
		metrics.CheckinsTotal.WithLabelValues("ok").Inc()
	}

	for rep := 0; rep < s.activity.SwapRepetitions; rep++ {
		if s.ctrl.Stopping() || ctx.Err() != nil {
			return
		}
		dir := s.directions[rep%len(s.directions)]
		dirLabel := dir.FromSymbol + "->" + dir.ToSymbol

		amount, ok := s.pickAmount(dir)
		if !ok {
			log.Warn("no amount range configured, skipping swap", "token", dir.FromSymbol)
			continue
		}

		s.ctrl.Enter()
		metrics.InFlightOps.Set(float64(s.ctrl.InFlight()))
		_, err := worker.Swap(ctx, acct, dir, amount)
		s.ctrl.Exit()
		metrics.InFlightOps.Set(float64(s.ctrl.InFlight()))
		if err != nil {
			if clierr.Is(err, clierr.CodeStopped) {
				return
			}
			// A failed swap never aborts the cycle: later repetitions
			// and accounts still run.
			metrics.SwapsTotal.WithLabelValues(dirLabel, "error").Inc()
			log.Warn("swap failed", "direction", dirLabel, "err", err)
		} else {
			metrics.SwapsTotal.WithLabelValues(dirLabel, "ok").Inc()
		}

		if rep < s.activity.SwapRepetitions-1 {
			if err := s.ctrl.Sleep(ctx, s.interSwapDelay()); err != nil {
				return
			}
		}
	}

	// Rebuild the balance view from scratch once the account's swaps settle.
	if snap, err := worker.Snapshot(ctx, acct); err != nil {
		log.Debug("balance snapshot failed", "err", err)
	} else {
		log.Info("account balances", "native", snap.Native, "tokens", snap.Tokens)
	}
}

// pickAmount draws a uniform amount from the direction's amount range,
// rounded to 4 decimal places.
func (s *Scheduler) pickAmount(dir registry.Direction) (decimal.Decimal, bool) {
	key := dir.RangeKey
	if key == "" {
		key = strings.ToLower(dir.FromSymbol)
	}
	r, ok := s.activity.RangeFor(key)
	if !ok {
		return decimal.Zero, false
	}
	v := r.Min + s.rng.Float64()*(r.Max-r.Min)
	return decimal.NewFromFloat(v).Round(4), true
}

func (s *Scheduler) interSwapDelay() time.Duration {
	span := s.delays.InterSwapMax - s.delays.InterSwapMin
	if span <= 0 {
		return s.delays.InterSwapMin
	}
	return s.delays.InterSwapMin + time.Duration(s.rng.Int63n(int64(span)))
}
