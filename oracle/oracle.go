// Package oracle reads and updates the on-chain EUR/USD price oracle and
// provides the client-side mirror of its conversion math.
package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/types"
)

// ABI covers the oracle surface this core uses: the aggregate rate reads,
// the owner-only update and the contract-side conversion entry points.
const ABI = `[
  {"name":"getRate","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"isRateValid","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"name":"lastUpdate","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"getTimeSinceLastUpdate","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"name":"updateRate","type":"function","stateMutability":"nonpayable","inputs":[{"name":"newRate","type":"uint256"}],"outputs":[]},
  {"name":"convertEURTtoUSDT","type":"function","stateMutability":"view","inputs":[{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"convertUSDTtoEURT","type":"function","stateMutability":"view","inputs":[{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Contract is the bound-contract surface the client needs. It is satisfied
// by contract.Contract and by test fakes.
type Contract interface {
	Call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error
	Transact(ctx context.Context, method string, args ...interface{}) (*ethtypes.Receipt, error)
	Sender() common.Address
}

// Client is an explicitly constructed oracle handle. There is no implicit
// first-call initialization: construction takes a live contract binding and
// a failure to build one surfaces as OracleUnavailable at the call site.
type Client struct {
	contract Contract
	log      logger.Logger
}

func New(contract Contract, log logger.Logger) *Client {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Client{contract: contract, log: log}
}

// GetRateInfo aggregates the oracle's rate, validity and staleness reads
// into one snapshot. Any failed read is OracleUnavailable; absence of data
// is never collapsed into a zero rate.
func (c *Client) GetRateInfo(ctx context.Context) (types.ExchangeRate, error) {
	rate, err := c.callUint(ctx, "getRate")
	if err != nil {
		return types.ExchangeRate{}, unavailable("getRate", err)
	}

	var validOut []interface{}
	if err := c.contract.Call(ctx, &validOut, "isRateValid"); err != nil {
		return types.ExchangeRate{}, unavailable("isRateValid", err)
	}
	valid, ok := validOut[0].(bool)
	if !ok {
		return types.ExchangeRate{}, unavailable("isRateValid", fmt.Errorf("unexpected output type"))
	}

	last, err := c.callUint(ctx, "lastUpdate")
	if err != nil {
		return types.ExchangeRate{}, unavailable("lastUpdate", err)
	}

	age, err := c.callUint(ctx, "getTimeSinceLastUpdate")
	if err != nil {
		return types.ExchangeRate{}, unavailable("getTimeSinceLastUpdate", err)
	}

	return types.ExchangeRate{
		Rate:            rate,
		LastUpdate:      last.Int64(),
		TimeSinceUpdate: age.Int64(),
		IsValid:         valid,
	}, nil
}

// Owner returns the address authorized to update the rate.
func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(ctx, &out, "owner"); err != nil {
		return common.Address{}, unavailable("owner", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, unavailable("owner", fmt.Errorf("unexpected output type"))
	}
	return addr, nil
}

// Sender returns the account the client signs updates with.
func (c *Client) Sender() common.Address {
	return c.contract.Sender()
}

// UpdateRate submits the owner-only rate update and waits for inclusion.
func (c *Client) UpdateRate(ctx context.Context, newRate *big.Int) error {
	receipt, err := c.contract.Transact(ctx, "updateRate", newRate)
	if err != nil {
		return err
	}
	c.log.Info("rate update mined", map[string]any{
		"rate": newRate.String(),
		"tx":   receipt.TxHash.Hex(),
	})
	return nil
}

func (c *Client) callUint(ctx context.Context, method string) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(ctx, &out, method); err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected output type for %s", method)
	}
	return v, nil
}

func unavailable(method string, err error) error {
	return &types.SettlementError{
		Code:    types.ErrOracleUnavailable,
		Message: fmt.Sprintf("oracle read %s failed: %v", method, err),
		Data:    err.Error(),
	}
}
