// Package types defines the shared data model of the settlement core:
// currencies, exchange-rate snapshots, ledger entries and checkout sessions.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// RateDecimals is the fixed-point precision used by the on-chain oracle
// and by every conversion in this module.
const RateDecimals = 6

// RateScale is 10^RateDecimals.
var RateScale = big.NewInt(1_000_000)

// FreshnessWindow is the maximum age of an oracle rate that is still
// usable for conversion. The comparison is strict: a rate aged exactly
// this long is already stale.
const FreshnessWindow = 24 * time.Hour

// Currency identifies a settlement currency supported by the token contracts.
type Currency string

const (
	// CurrencyUSDT is the base currency. Cart totals and invoice amounts
	// handed to the commerce contract are always denominated in it.
	CurrencyUSDT Currency = "USDT"

	// CurrencyEURT is the quote currency, payable only while the oracle
	// rate is valid and fresh.
	CurrencyEURT Currency = "EURT"
)

func (c Currency) Supported() bool {
	return c == CurrencyUSDT || c == CurrencyEURT
}

// IsBase reports whether the currency is the base settlement currency.
func (c Currency) IsBase() bool {
	return c == CurrencyUSDT
}

func (c Currency) String() string {
	return string(c)
}

// ExchangeRate is a snapshot of the on-chain oracle state. Rate is the
// EUR/USD price in 6-decimal fixed point.
type ExchangeRate struct {
	Rate            *big.Int `json:"rate"`
	LastUpdate      int64    `json:"lastUpdate"`
	TimeSinceUpdate int64    `json:"timeSinceUpdate"`
	IsValid         bool     `json:"isValid"`
}

// IsFresh reports whether the rate was updated within the freshness window.
// The boundary is strict: a rate exactly 24h old is not fresh.
func (r ExchangeRate) IsFresh() bool {
	return r.TimeSinceUpdate < int64(FreshnessWindow/time.Second)
}

// Usable reports whether the rate may be used for conversion. An unusable
// rate forces all quotes back to the base currency.
func (r ExchangeRate) Usable() bool {
	return r.IsValid && r.IsFresh() && r.Rate != nil && r.Rate.Sign() > 0
}

// CurrencyRequirement is the amount the customer must hold and approve in
// the selected currency to settle the current cart.
type CurrencyRequirement struct {
	Currency Currency `json:"currency"`
	Amount   *big.Int `json:"amount"`
}

// TokenLedgerEntry is a point-in-time view of one customer's position
// against one settlement token, scoped to a single spender.
type TokenLedgerEntry struct {
	Currency  Currency       `json:"currency"`
	Address   common.Address `json:"address"`
	Symbol    string         `json:"symbol"`
	Decimals  uint8          `json:"decimals"`
	Balance   *big.Int       `json:"balance"`
	Allowance *big.Int       `json:"allowance"`

	// Derived from a CurrencyRequirement when one was supplied to Load.
	// Both are false when the requirement could not be determined, which
	// callers must treat as indeterminate rather than "sufficient".
	HasSufficientBalance bool `json:"hasSufficientBalance"`
	NeedsApproval        bool `json:"needsApproval"`
}

// CheckoutState enumerates the orchestrator's state machine.
type CheckoutState string

const (
	StateIdle               CheckoutState = "idle"
	StateChecking           CheckoutState = "checking"
	StateNeedsApproval      CheckoutState = "needs_approval"
	StateApproving          CheckoutState = "approving"
	StateReadyToPay         CheckoutState = "ready_to_pay"
	StateSubmitting         CheckoutState = "submitting"
	StateAwaitingSettlement CheckoutState = "awaiting_settlement"
	StateDone               CheckoutState = "done"
	StateErrored            CheckoutState = "errored"
)

// CheckoutSession is the orchestrator-owned state for one checkout attempt.
// It is discarded on success, cancellation or navigation away.
type CheckoutSession struct {
	ID               uuid.UUID           `json:"id"`
	State            CheckoutState       `json:"state"`
	SelectedCurrency Currency            `json:"selectedCurrency"`
	Requirement      CurrencyRequirement `json:"requirement"`
	Ledger           TokenLedgerEntry    `json:"ledger"`

	// NeedsTokens marks the soft-block: the balance does not cover the
	// requirement, but the session stays resumable instead of failing.
	NeedsTokens bool `json:"needsTokens"`

	InvoiceID *big.Int `json:"invoiceId,omitempty"`

	// SettlementConfirmed is set only when the post-payment poll actually
	// observed the balance increase. A Done session with this false must
	// be rendered as "not confirmed yet", never as success.
	SettlementConfirmed bool `json:"settlementConfirmed"`

	Err error `json:"-"`
}

// Invoice mirrors the commerce contract's invoice record. It is created by
// the contract; this core only reads the values echoed in the creation event.
type Invoice struct {
	ID                  *big.Int       `json:"invoiceId"`
	CompanyID           *big.Int       `json:"companyId"`
	Merchant            common.Address `json:"merchantAddress"`
	PaymentToken        common.Address `json:"paymentToken"`
	ExpectedTotal       *big.Int       `json:"expectedTotalUSDT"`
	TotalInPaymentToken *big.Int       `json:"totalAmountInPaymentToken"`
	Paid                bool           `json:"isPaid"`
}

// PaymentRequest is the hand-off to the external payment leg once an
// invoice exists on-chain.
type PaymentRequest struct {
	Merchant  common.Address `json:"merchantAddress"`
	Amount    *big.Int       `json:"amount"`
	InvoiceID *big.Int       `json:"invoiceId"`
	ReturnURL string         `json:"returnUrl"`
}

// NewCheckoutSession returns a fresh idle session for the given currency.
func NewCheckoutSession(currency Currency) *CheckoutSession {
	return &CheckoutSession{
		ID:               uuid.New(),
		State:            StateIdle,
		SelectedCurrency: currency,
	}
}
