// Package ledger exposes per-currency snapshots of a customer's balance
// and allowance against the settlement tokens.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ERC20ABI covers the token surface the settlement core touches.
const ERC20ABI = `[
  {"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// Token is the per-token contract surface the view reads. Satisfied by
// ERC20 and by test fakes.
type Token interface {
	Address() common.Address
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) error
}

// boundToken is the bound-contract subset ERC20 needs.
type boundToken interface {
	Address() common.Address
	Call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error
	Transact(ctx context.Context, method string, args ...interface{}) (*ethtypes.Receipt, error)
}

// ERC20 wraps one settlement token contract.
type ERC20 struct {
	contract boundToken
}

func NewERC20(contract boundToken) *ERC20 {
	return &ERC20{contract: contract}
}

func (t *ERC20) Address() common.Address {
	return t.contract.Address()
}

func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	var out []interface{}
	if err := t.contract.Call(ctx, &out, "symbol"); err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected symbol output")
	}
	return s, nil
}

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	var out []interface{}
	if err := t.contract.Call(ctx, &out, "decimals"); err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals output")
	}
	return d, nil
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(ctx, &out, "balanceOf", owner); err != nil {
		return nil, err
	}
	b, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf output")
	}
	return b, nil
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(ctx, &out, "allowance", owner, spender); err != nil {
		return nil, err
	}
	a, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance output")
	}
	return a, nil
}

// Approve grants spender an allowance and waits for inclusion.
func (t *ERC20) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	_, err := t.contract.Transact(ctx, "approve", spender, amount)
	return err
}
