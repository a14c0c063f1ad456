package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/oracle"
	"github.com/cryptoshop/settlement/types"
)

// RateProvider supplies the oracle snapshot needed to express a
// base-currency requirement in the quote currency.
type RateProvider interface {
	GetRateInfo(ctx context.Context) (types.ExchangeRate, error)
}

type tokenMeta struct {
	symbol   string
	decimals uint8
}

// View recomputes per-currency ledger entries on demand for one
// (customer, spender) pair. It is read-only and safe to call repeatedly;
// symbol and decimals are cached per token, balance and allowance never are.
type View struct {
	tokens  map[types.Currency]Token
	owner   common.Address
	spender common.Address
	rates   RateProvider
	log     logger.Logger

	mu   sync.Mutex
	meta map[common.Address]tokenMeta
}

func NewView(tokens map[types.Currency]Token, owner, spender common.Address, rates RateProvider, log logger.Logger) *View {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &View{
		tokens:  tokens,
		owner:   owner,
		spender: spender,
		rates:   rates,
		log:     log,
		meta:    make(map[common.Address]tokenMeta),
	}
}

// Load reads the current balance and allowance for the currency. When
// requiredBase (a base-currency amount) is supplied, the sufficiency and
// approval flags are derived from it; for the quote currency that needs a
// usable oracle rate, and without one both flags stay false: indeterminate,
// never an optimistic guess.
func (v *View) Load(ctx context.Context, currency types.Currency, requiredBase *big.Int) (types.TokenLedgerEntry, error) {
	token, ok := v.tokens[currency]
	if !ok {
		return types.TokenLedgerEntry{}, fmt.Errorf("unsupported currency %s", currency)
	}

	meta, err := v.tokenMeta(ctx, token)
	if err != nil {
		return types.TokenLedgerEntry{}, err
	}

	balance, err := token.BalanceOf(ctx, v.owner)
	if err != nil {
		return types.TokenLedgerEntry{}, err
	}
	allowance, err := token.Allowance(ctx, v.owner, v.spender)
	if err != nil {
		return types.TokenLedgerEntry{}, err
	}

	entry := types.TokenLedgerEntry{
		Currency:  currency,
		Address:   token.Address(),
		Symbol:    meta.symbol,
		Decimals:  meta.decimals,
		Balance:   balance,
		Allowance: allowance,
	}

	if requiredBase == nil {
		return entry, nil
	}

	required, ok := v.requiredIn(ctx, currency, requiredBase)
	if !ok {
		// Rate unusable: leave both flags false rather than let an
		// incorrect "sufficient" signal reach an invoice attempt.
		return entry, nil
	}

	entry.HasSufficientBalance = balance.Cmp(required) >= 0
	entry.NeedsApproval = allowance.Cmp(required) < 0
	return entry, nil
}

// requiredIn expresses a base-currency requirement in the given currency.
// The second return is false when the conversion is indeterminate.
func (v *View) requiredIn(ctx context.Context, currency types.Currency, requiredBase *big.Int) (*big.Int, bool) {
	if currency.IsBase() {
		return requiredBase, true
	}

	info, err := v.rates.GetRateInfo(ctx)
	if err != nil || !info.Usable() {
		v.log.Warn("rate unusable, ledger flags indeterminate", map[string]any{
			"currency": currency.String(),
		})
		return nil, false
	}
	return oracle.ConvertUSDTToEURT(requiredBase, info.Rate), true
}

func (v *View) tokenMeta(ctx context.Context, token Token) (tokenMeta, error) {
	v.mu.Lock()
	cached, ok := v.meta[token.Address()]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	symbol, err := token.Symbol(ctx)
	if err != nil {
		return tokenMeta{}, err
	}
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return tokenMeta{}, err
	}

	meta := tokenMeta{symbol: symbol, decimals: decimals}
	v.mu.Lock()
	v.meta[token.Address()] = meta
	v.mu.Unlock()
	return meta, nil
}

// Token returns the token bound for the currency, for callers that need to
// submit approvals against it.
func (v *View) Token(currency types.Currency) (Token, bool) {
	t, ok := v.tokens[currency]
	return t, ok
}

// Spender returns the contract address allowances are granted to.
func (v *View) Spender() common.Address {
	return v.spender
}
