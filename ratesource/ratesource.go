// Package ratesource fetches the EUR/USD market rate from a third-party
// HTTP feed and converts it to the oracle's 6-decimal fixed-point format.
package ratesource

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/types"
)

// Sanity band for the EUR/USD pair. A feed value outside it is rejected
// rather than pushed on-chain.
var (
	MinRate = decimal.NewFromFloat(0.8)
	MaxRate = decimal.NewFromFloat(1.5)
)

// DefaultTimeout bounds the HTTP round trip to the feed.
const DefaultTimeout = 10 * time.Second

// Client fetches the market rate from one feed endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	log      logger.Logger
}

type feedResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func New(endpoint string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

// FetchMarketRate performs one GET against the feed. Only HTTP 200 is
// accepted; a missing or zero USD field is malformed, and a value outside
// the sanity band is out of range.
func (c *Client) FetchMarketRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return 0, &types.SettlementError{
			Code:    types.ErrUpstreamUnavailable,
			Message: fmt.Sprintf("building feed request: %v", err),
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &types.SettlementError{
			Code:    types.ErrUpstreamUnavailable,
			Message: fmt.Sprintf("rate feed unreachable: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &types.SettlementError{
			Code:    types.ErrUpstreamUnavailable,
			Message: fmt.Sprintf("rate feed returned status %d", resp.StatusCode),
		}
	}

	var body feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &types.SettlementError{
			Code:    types.ErrUpstreamMalformed,
			Message: fmt.Sprintf("decoding feed response: %v", err),
		}
	}

	rate, ok := body.Rates["USD"]
	if !ok || rate == 0 {
		return 0, &types.SettlementError{
			Code:    types.ErrUpstreamMalformed,
			Message: "feed response missing rates.USD",
		}
	}

	if err := ValidateRange(decimal.NewFromFloat(rate)); err != nil {
		return 0, err
	}

	c.log.Debug("fetched market rate", map[string]any{"rate": rate})
	return rate, nil
}

// ValidateRange rejects rates outside the [0.8, 1.5] sanity band.
func ValidateRange(rate decimal.Decimal) error {
	if rate.LessThan(MinRate) || rate.GreaterThan(MaxRate) {
		return &types.SettlementError{
			Code:    types.ErrOutOfRange,
			Message: fmt.Sprintf("rate %s outside sanity band [%s, %s]", rate, MinRate, MaxRate),
		}
	}
	return nil
}

// ToFixedPoint converts a float rate to 6-decimal fixed point, rounding
// half away from zero so round-trips through FromFixedPoint hold.
func ToFixedPoint(rate float64) *big.Int {
	fixed := decimal.NewFromFloat(rate).Shift(types.RateDecimals).Round(0)
	return fixed.BigInt()
}

// FromFixedPoint converts a 6-decimal fixed-point integer back to a float.
func FromFixedPoint(fixed *big.Int) float64 {
	f, _ := decimal.NewFromBigInt(fixed, -types.RateDecimals).Float64()
	return f
}
