package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ggonzalez94/cycler/internal/chain"
	clierr "github.com/ggonzalez94/cycler/internal/errors"
)

// Sleeper is the cancellable delay the monitor waits between polls. The
// lifecycle controller satisfies it, so a stop request interrupts a
// confirmation wait immediately.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Monitor polls for a transaction receipt until it lands or a wall-clock
// deadline passes.
type Monitor struct {
	interval time.Duration
	sleeper  Sleeper
	log      *slog.Logger
}

const defaultPollInterval = 5 * time.Second

func NewMonitor(sleeper Sleeper, log *slog.Logger) *Monitor {
	return NewMonitorWithInterval(sleeper, log, defaultPollInterval)
}

func NewMonitorWithInterval(sleeper Sleeper, log *slog.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{interval: interval, sleeper: sleeper, log: log}
}

// Wait polls immediately and then once per interval. A receipt with a failed
// status is a revert error; a receipt the node cannot place in a block is a
// receipt error; running past timeout without a receipt is a timeout error.
// The timeout is wall clock, measured from the call, not from submission.
func (m *Monitor) Wait(ctx context.Context, client chain.Client, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, clierr.New(clierr.CodeReverted, fmt.Sprintf("transaction %s reverted on chain", hash.Hex()))
			}
			if receipt.BlockNumber == nil {
				return receipt, clierr.New(clierr.CodeReceipt, fmt.Sprintf("transaction %s has a receipt without a block", hash.Hex()))
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// Still pending.
		default:
			m.log.Debug("receipt poll failed", "tx", hash.Hex(), "err", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, clierr.New(clierr.CodeTimeout, fmt.Sprintf("transaction %s unconfirmed after %s", hash.Hex(), timeout))
		}
		// Never sleep past the deadline: a timeout shorter than the poll
		// interval must still fail at the deadline, not at the next poll.
		sleep := m.interval
		if sleep > remaining {
			sleep = remaining
		}
		if err := m.sleeper.Sleep(ctx, sleep); err != nil {
			return nil, err
		}
	}
}
