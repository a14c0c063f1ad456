package checkout

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptoshop/settlement/ledger"
	"github.com/cryptoshop/settlement/types"
)

// LedgerApprover submits approvals through the same token bindings the
// ledger view reads from.
type LedgerApprover struct {
	view *ledger.View
}

func NewLedgerApprover(view *ledger.View) *LedgerApprover {
	return &LedgerApprover{view: view}
}

func (a *LedgerApprover) Approve(ctx context.Context, currency types.Currency, spender common.Address, amount *big.Int) error {
	token, ok := a.view.Token(currency)
	if !ok {
		return fmt.Errorf("no token bound for currency %s", currency)
	}
	return token.Approve(ctx, spender, amount)
}
