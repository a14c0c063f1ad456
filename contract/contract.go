// Package contract wraps go-ethereum's bound-contract machinery behind a
// small call/transact surface shared by the oracle, token and commerce
// clients. Writes are signed with a configured transactor and block until
// the transaction is mined.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cryptoshop/settlement/types"
)

// Backend is the subset of ethclient.Client the bound contract needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Contract is one deployed contract at a fixed address. A nil signer makes
// the contract read-only; Transact then fails without touching the network.
type Contract struct {
	addr    common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	backend Backend
	signer  *bind.TransactOpts
}

// Dial connects to the RPC endpoint and returns a backend usable for any
// number of contracts.
func Dial(rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return client, nil
}

// New binds the given ABI JSON at addr. signer may be nil for read-only use.
func New(backend Backend, addr common.Address, abiJSON string, signer *bind.TransactOpts) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid contract ABI: %w", err)
	}
	return &Contract{
		addr:    addr,
		abi:     parsed,
		bound:   bind.NewBoundContract(addr, parsed, backend, backend, backend),
		backend: backend,
		signer:  signer,
	}, nil
}

// NewTransactor builds signing options from a hex-encoded private key.
func NewTransactor(hexKey string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	return opts, nil
}

func (c *Contract) Address() common.Address {
	return c.addr
}

// Sender returns the signing account, or the zero address when read-only.
func (c *Contract) Sender() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.From
}

// Call performs a read-only contract call and unpacks the outputs into out.
func (c *Contract) Call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	return c.bound.Call(&bind.CallOpts{Context: ctx}, out, method, args...)
}

// Transact submits a state-changing call, waits for it to be mined and
// returns the receipt. A receipt with a failed status is reported as a
// classified revert.
func (c *Contract) Transact(ctx context.Context, method string, args ...interface{}) (*ethtypes.Receipt, error) {
	if c.signer == nil {
		return nil, &types.SettlementError{
			Code:    types.ErrNotOwner,
			Message: fmt.Sprintf("no signing key configured for %s", method),
		}
	}

	opts := *c.signer
	opts.Context = ctx

	tx, err := c.bound.Transact(&opts, method, args...)
	if err != nil {
		return nil, ClassifyTxError(err, method)
	}

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s inclusion: %w", method, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, &types.SettlementError{
			Code:    types.ErrContractReverted,
			Message: fmt.Sprintf("%s reverted", method),
			Data:    tx.Hash().Hex(),
		}
	}
	return receipt, nil
}

// UnpackLog decodes an event emitted by this contract into out.
func (c *Contract) UnpackLog(out interface{}, event string, log ethtypes.Log) error {
	return c.bound.UnpackLog(out, event, log)
}

// EventID returns the topic hash of the named event.
func (c *Contract) EventID(event string) (common.Hash, error) {
	ev, ok := c.abi.Events[event]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown event %s", event)
	}
	return ev.ID, nil
}

// ClassifyTxError maps transaction submission failures onto the shared
// taxonomy. Wallet signers surface declines as "user rejected"/"denied".
func ClassifyTxError(err error, method string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied"):
		return &types.SettlementError{
			Code:    types.ErrUserRejected,
			Message: fmt.Sprintf("%s rejected by signer", method),
			Data:    err.Error(),
		}
	case strings.Contains(msg, "execution reverted"):
		return &types.SettlementError{
			Code:    types.ErrContractReverted,
			Message: fmt.Sprintf("%s reverted: %s", method, err.Error()),
			Data:    err.Error(),
		}
	case strings.Contains(msg, "insufficient funds"):
		return &types.SettlementError{
			Code:    types.ErrInsufficientBalance,
			Message: fmt.Sprintf("%s failed: %s", method, err.Error()),
		}
	default:
		return &types.SettlementError{
			Code:    types.ErrUnknown,
			Message: fmt.Sprintf("%s failed: %s", method, err.Error()),
			Data:    err.Error(),
		}
	}
}
