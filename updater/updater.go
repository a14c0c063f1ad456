// Package updater reconciles the on-chain oracle rate against the external
// market feed. It is a one-shot procedure: an external scheduler decides
// cadence and retries, every failure here is fatal for the run.
package updater

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/metrics"
	"github.com/cryptoshop/settlement/ratesource"
	"github.com/cryptoshop/settlement/types"
)

// Oracle is the oracle-client surface the updater drives.
type Oracle interface {
	GetRateInfo(ctx context.Context) (types.ExchangeRate, error)
	UpdateRate(ctx context.Context, newRate *big.Int) error
	Owner(ctx context.Context) (common.Address, error)
	Sender() common.Address
}

// Source fetches the external market rate.
type Source interface {
	FetchMarketRate(ctx context.Context) (float64, error)
}

// Updater compares feed and oracle under a percentage deviation threshold.
type Updater struct {
	oracle       Oracle
	source       Source
	thresholdPct float64
	log          logger.Logger
	metrics      metrics.Recorder
}

// Result reports what one run decided.
type Result struct {
	Updated bool
	Current *big.Int
	New     *big.Int
	DiffPct float64
}

func New(oracle Oracle, source Source, thresholdPct float64, log logger.Logger, rec metrics.Recorder) *Updater {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Updater{
		oracle:       oracle,
		source:       source,
		thresholdPct: thresholdPct,
		log:          log,
		metrics:      rec,
	}
}

// Run performs one reconciliation: read current, fetch new, compare, and
// submit plus verify when the drift exceeds the threshold. No partial
// update is attempted; the first classified failure aborts the run.
func (u *Updater) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	defer func() {
		u.metrics.ObserveLatency("rate_update_run", time.Since(started), nil)
	}()

	info, err := u.oracle.GetRateInfo(ctx)
	if err != nil {
		return Result{}, err
	}
	current := info.Rate

	market, err := u.source.FetchMarketRate(ctx)
	if err != nil {
		return Result{}, err
	}
	next := ratesource.ToFixedPoint(market)

	diffPct := percentDifference(current, next)
	res := Result{Current: current, New: next, DiffPct: diffPct}

	// A zero on-chain rate means the oracle was never seeded or was reset;
	// the threshold comparison is meaningless then and the update always runs.
	if current.Sign() > 0 && diffPct < u.thresholdPct {
		u.log.Info("rate drift below threshold, skipping update", map[string]any{
			"current":   current.String(),
			"new":       next.String(),
			"diff_pct":  diffPct,
			"threshold": u.thresholdPct,
		})
		u.metrics.IncCounter("rate_update_skipped", nil)
		return res, nil
	}

	if err := u.submitAndVerify(ctx, next); err != nil {
		return res, err
	}

	res.Updated = true
	u.metrics.IncCounter("rate_update_submitted", nil)
	return res, nil
}

// SetManual applies an operator-supplied decimal rate. The same sanity band
// applies, and the submitting account must be the contract owner.
func (u *Updater) SetManual(ctx context.Context, rate string) error {
	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	if err := ratesource.ValidateRange(parsed); err != nil {
		return err
	}

	owner, err := u.oracle.Owner(ctx)
	if err != nil {
		return err
	}
	if sender := u.oracle.Sender(); sender != owner {
		return &types.SettlementError{
			Code:    types.ErrNotOwner,
			Message: fmt.Sprintf("account %s is not the oracle owner %s", sender.Hex(), owner.Hex()),
		}
	}

	fixed := parsed.Shift(types.RateDecimals).Round(0).BigInt()
	return u.submitAndVerify(ctx, fixed)
}

func (u *Updater) submitAndVerify(ctx context.Context, next *big.Int) error {
	if err := u.oracle.UpdateRate(ctx, next); err != nil {
		return err
	}

	after, err := u.oracle.GetRateInfo(ctx)
	if err != nil {
		return err
	}
	if after.Rate.Cmp(next) != 0 {
		return &types.SettlementError{
			Code:    types.ErrUpdateNotReflected,
			Message: fmt.Sprintf("submitted rate %s but oracle reads %s", next, after.Rate),
		}
	}

	u.log.Info("rate update verified", map[string]any{"rate": next.String()})
	return nil
}

// percentDifference is |new - current| / current * 100. A zero current
// yields +Inf so callers treat it as always above threshold.
func percentDifference(current, next *big.Int) float64 {
	if current.Sign() == 0 {
		return math.Inf(1)
	}
	cur := ratesource.FromFixedPoint(current)
	nxt := ratesource.FromFixedPoint(next)
	return math.Abs(nxt-cur) / cur * 100
}
