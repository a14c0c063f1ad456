// Package reconcile confirms the asynchronous balance increase that follows
// an off-chain token purchase. The payment webhook mints tokens at its own
// pace, so confirmation is a bounded poll, never a hard gate.
package reconcile

import (
	"context"
	"math/big"
	"time"

	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/types"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 8
)

// LedgerView supplies the balance reads.
type LedgerView interface {
	Load(ctx context.Context, currency types.Currency, requiredBase *big.Int) (types.TokenLedgerEntry, error)
}

// Result reports the outcome of one reconciliation window.
type Result struct {
	// BalanceIncreased is false when the window closed without observing
	// an increase. The mint may still land later; callers must surface
	// "no confirmed increase yet", not success.
	BalanceIncreased bool
	Attempts         int
}

// Reconciler polls the ledger at a fixed interval with a bounded attempt
// count, stopping early the moment the balance rises above its snapshot.
type Reconciler struct {
	ledger      LedgerView
	interval    time.Duration
	maxAttempts int
	log         logger.Logger
}

func New(ledger LedgerView, interval time.Duration, maxAttempts int, log logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Reconciler{
		ledger:      ledger,
		interval:    interval,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Reconcile snapshots the current balance and polls until it increases or
// the attempt bound is exhausted. Context cancellation stops the loop.
func (r *Reconciler) Reconcile(ctx context.Context, currency types.Currency) (Result, error) {
	baseline, err := r.ledger.Load(ctx, currency, nil)
	if err != nil {
		return Result{}, err
	}
	before := baseline.Balance

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Result{Attempts: attempt - 1}, ctx.Err()
		case <-ticker.C:
		}

		entry, err := r.ledger.Load(ctx, currency, nil)
		if err != nil {
			// A transient read failure consumes the attempt but does not
			// abort the window.
			r.log.Warn("balance poll failed", map[string]any{
				"currency": currency.String(),
				"attempt":  attempt,
				"error":    err.Error(),
			})
			continue
		}

		if entry.Balance.Cmp(before) > 0 {
			r.log.Info("balance increase confirmed", map[string]any{
				"currency": currency.String(),
				"attempt":  attempt,
			})
			return Result{BalanceIncreased: true, Attempts: attempt}, nil
		}
	}

	r.log.Warn("balance increase not observed within polling window", map[string]any{
		"currency": currency.String(),
		"attempts": r.maxAttempts,
	})
	return Result{BalanceIncreased: false, Attempts: r.maxAttempts}, nil
}
