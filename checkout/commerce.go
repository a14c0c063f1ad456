package checkout

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptoshop/settlement/types"
)

// CommerceABI covers the storefront contract surface the orchestrator
// drives: company lookup and currency-aware invoice creation, including the
// event that echoes the contract-computed token amount.
const CommerceABI = `[
  {"name":"getCompany","type":"function","stateMutability":"view","inputs":[{"name":"companyId","type":"uint256"}],"outputs":[{"name":"merchant","type":"address"}]},
  {"name":"createInvoiceWithCurrency","type":"function","stateMutability":"nonpayable","inputs":[{"name":"companyId","type":"uint256"},{"name":"paymentToken","type":"address"},{"name":"expectedTotalUSDT","type":"uint256"}],"outputs":[{"name":"invoiceId","type":"uint256"},{"name":"totalAmount","type":"uint256"}]},
  {"name":"InvoiceCreated","type":"event","inputs":[{"name":"invoiceId","type":"uint256","indexed":true},{"name":"totalAmount","type":"uint256","indexed":false}]}
]`

// boundCommerce is the bound-contract subset the client needs.
type boundCommerce interface {
	Address() common.Address
	Call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error
	Transact(ctx context.Context, method string, args ...interface{}) (*ethtypes.Receipt, error)
	UnpackLog(out interface{}, event string, log ethtypes.Log) error
	EventID(event string) (common.Hash, error)
}

// CommerceClient implements Commerce against the deployed storefront
// contract.
type CommerceClient struct {
	contract boundCommerce
}

func NewCommerceClient(contract boundCommerce) *CommerceClient {
	return &CommerceClient{contract: contract}
}

func (c *CommerceClient) GetCompany(ctx context.Context, companyID *big.Int) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(ctx, &out, "getCompany", companyID); err != nil {
		return common.Address{}, &types.SettlementError{
			Code:    types.ErrContractReverted,
			Message: fmt.Sprintf("getCompany failed: %v", err),
		}
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getCompany output")
	}
	return addr, nil
}

type invoiceCreatedEvent struct {
	InvoiceId   *big.Int
	TotalAmount *big.Int
}

// CreateInvoiceWithCurrency submits the invoice creation, waits for
// inclusion and extracts the invoice id and contract-computed token amount
// from the emitted event. The amount is never recomputed client-side.
func (c *CommerceClient) CreateInvoiceWithCurrency(ctx context.Context, companyID *big.Int, paymentToken common.Address, expectedTotalUSDT *big.Int) (*big.Int, *big.Int, error) {
	receipt, err := c.contract.Transact(ctx, "createInvoiceWithCurrency", companyID, paymentToken, expectedTotalUSDT)
	if err != nil {
		return nil, nil, err
	}

	eventID, err := c.contract.EventID("InvoiceCreated")
	if err != nil {
		return nil, nil, err
	}

	for _, lg := range receipt.Logs {
		if lg.Address != c.contract.Address() || len(lg.Topics) == 0 || lg.Topics[0] != eventID {
			continue
		}
		var ev invoiceCreatedEvent
		if err := c.contract.UnpackLog(&ev, "InvoiceCreated", *lg); err != nil {
			return nil, nil, fmt.Errorf("decoding InvoiceCreated event: %w", err)
		}
		return ev.InvoiceId, ev.TotalAmount, nil
	}

	return nil, nil, &types.SettlementError{
		Code:    types.ErrContractReverted,
		Message: "invoice creation mined but InvoiceCreated event missing",
		Data:    receipt.TxHash.Hex(),
	}
}
