// Package checkout drives one cart's settlement attempt: it reconciles the
// cart total against the selected currency using the oracle rate, walks the
// allowance-then-invoice sequence against the token and commerce contracts,
// and hands off to the external payment leg.
package checkout

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/oracle"
	"github.com/cryptoshop/settlement/reconcile"
	"github.com/cryptoshop/settlement/types"
)

// ApprovalHeadroom sizes approvals at a bounded multiple of the current
// requirement. Repeat purchases in the same currency usually skip the second
// approval without the token ever holding an unlimited allowance.
const ApprovalHeadroom = 10

// RateProvider supplies oracle snapshots.
type RateProvider interface {
	GetRateInfo(ctx context.Context) (types.ExchangeRate, error)
}

// LedgerView reloads the customer's position. requiredBase is always the
// base-currency amount; the view converts for the quote currency.
type LedgerView interface {
	Load(ctx context.Context, currency types.Currency, requiredBase *big.Int) (types.TokenLedgerEntry, error)
}

// Approver submits a wallet-signed allowance grant and waits for inclusion.
type Approver interface {
	Approve(ctx context.Context, currency types.Currency, spender common.Address, amount *big.Int) error
}

// CartSource exposes the externally owned cart.
type CartSource interface {
	Total(ctx context.Context) (*big.Int, error)
	CompanyID(ctx context.Context) (*big.Int, error)
}

// Commerce is the storefront contract surface: company lookup and invoice
// creation. CreateInvoiceWithCurrency returns the values the contract
// emitted in its creation event; the contract's conversion is authoritative
// and is never recomputed client-side.
type Commerce interface {
	GetCompany(ctx context.Context, companyID *big.Int) (common.Address, error)
	CreateInvoiceWithCurrency(ctx context.Context, companyID *big.Int, paymentToken common.Address, expectedTotalUSDT *big.Int) (invoiceID, totalInToken *big.Int, err error)
}

// PaymentLeg receives the redirect once the invoice exists on-chain.
type PaymentLeg interface {
	Redirect(req types.PaymentRequest) error
}

// Reconciler confirms the post-payment balance increase.
type Reconciler interface {
	Reconcile(ctx context.Context, currency types.Currency) (reconcile.Result, error)
}

// Orchestrator owns at most one CheckoutSession for its cart. All methods
// are serialized; two invoice-creation attempts can never run concurrently.
type Orchestrator struct {
	rates      RateProvider
	ledger     LedgerView
	approver   Approver
	commerce   Commerce
	cart       CartSource
	payment    PaymentLeg
	reconciler Reconciler
	tokens     map[types.Currency]common.Address
	spender    common.Address
	returnURL  string
	log        logger.Logger

	mu            sync.Mutex
	session       *types.CheckoutSession
	lastBaseTotal *big.Int
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Rates      RateProvider
	Ledger     LedgerView
	Approver   Approver
	Commerce   Commerce
	Cart       CartSource
	Payment    PaymentLeg
	Reconciler Reconciler
	Tokens     map[types.Currency]common.Address
	Spender    common.Address
	ReturnURL  string
	Log        logger.Logger
}

func NewOrchestrator(cfg Config) *Orchestrator {
	log := cfg.Log
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Orchestrator{
		rates:      cfg.Rates,
		ledger:     cfg.Ledger,
		approver:   cfg.Approver,
		commerce:   cfg.Commerce,
		cart:       cfg.Cart,
		payment:    cfg.Payment,
		reconciler: cfg.Reconciler,
		tokens:     cfg.Tokens,
		spender:    cfg.Spender,
		returnURL:  cfg.ReturnURL,
		log:        log,
	}
}

// Start begins a checkout in the given currency, or resumes the session
// already in flight. It never creates a second session while one exists;
// use Reset to discard explicitly.
func (o *Orchestrator) Start(ctx context.Context, currency types.Currency) (types.CheckoutSession, error) {
	o.mu.Lock()
	if o.session != nil {
		s := *o.session
		o.mu.Unlock()
		o.log.Info("resuming existing checkout session", map[string]any{
			"session": s.ID.String(),
			"state":   string(s.State),
		})
		return s, nil
	}
	if !currency.Supported() {
		o.mu.Unlock()
		return types.CheckoutSession{}, fmt.Errorf("unsupported currency %s", currency)
	}
	o.session = types.NewCheckoutSession(currency)
	o.mu.Unlock()

	return o.Check(ctx)
}

// Session returns a snapshot of the active session, if any.
func (o *Orchestrator) Session() (types.CheckoutSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return types.CheckoutSession{}, false
	}
	return *o.session, true
}

// Reset discards the active session entirely.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.session = nil
	o.lastBaseTotal = nil
	o.mu.Unlock()
}

// Check recomputes the currency requirement from the latest cart total and
// oracle rate, then re-reads the ledger to decide the next step. Balance
// shortfalls are a soft block: the session stays in Checking with
// NeedsTokens set instead of failing.
func (o *Orchestrator) Check(ctx context.Context) (types.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, err := o.requireSession()
	if err != nil {
		return types.CheckoutSession{}, err
	}

	s.State = types.StateChecking
	s.NeedsTokens = false
	s.Err = nil

	total, err := o.cart.Total(ctx)
	if err != nil {
		return o.fail(s, err)
	}
	o.lastBaseTotal = total

	required, rateErr := o.requirementFor(ctx, s.SelectedCurrency, total)
	if rateErr != nil {
		// Quote currency without a usable rate: stay in Checking, payment
		// in this currency is disabled until the rate recovers.
		s.Requirement = types.CurrencyRequirement{Currency: s.SelectedCurrency}
		s.Err = rateErr
		return *s, nil
	}
	s.Requirement = required

	entry, err := o.ledger.Load(ctx, s.SelectedCurrency, total)
	if err != nil {
		return o.fail(s, err)
	}
	s.Ledger = entry

	switch {
	case !entry.HasSufficientBalance:
		s.NeedsTokens = true
		// deliberate soft block, resolvable by buying tokens
	case entry.NeedsApproval:
		s.State = types.StateNeedsApproval
	default:
		s.State = types.StateReadyToPay
	}
	return *s, nil
}

// SwitchCurrency discards any in-flight requirement and re-runs the check
// against the newly selected currency. An Approving or ReadyToPay state
// computed for the old currency is invalid the moment the selection changes.
func (o *Orchestrator) SwitchCurrency(ctx context.Context, currency types.Currency) (types.CheckoutSession, error) {
	if !currency.Supported() {
		return types.CheckoutSession{}, fmt.Errorf("unsupported currency %s", currency)
	}

	o.mu.Lock()
	s, err := o.requireSession()
	if err != nil {
		o.mu.Unlock()
		return types.CheckoutSession{}, err
	}
	if s.State == types.StateSubmitting || s.State == types.StateAwaitingSettlement {
		snap := *s
		o.mu.Unlock()
		return snap, fmt.Errorf("cannot switch currency after invoice submission")
	}
	s.SelectedCurrency = currency
	s.Requirement = types.CurrencyRequirement{}
	s.State = types.StateChecking
	o.mu.Unlock()

	return o.Check(ctx)
}

// Approve grants the bounded allowance and waits for inclusion, then
// re-reads the ledger before advancing: the allowance is an externally
// mutable resource, so the fresh read decides the resulting state.
func (o *Orchestrator) Approve(ctx context.Context) (types.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, err := o.requireSession()
	if err != nil {
		return types.CheckoutSession{}, err
	}
	if s.State != types.StateNeedsApproval {
		return *s, fmt.Errorf("approve not allowed in state %s", s.State)
	}
	if s.Requirement.Amount == nil {
		return *s, fmt.Errorf("no requirement computed")
	}

	s.State = types.StateApproving
	amount := new(big.Int).Mul(s.Requirement.Amount, big.NewInt(ApprovalHeadroom))

	if err := o.approver.Approve(ctx, s.SelectedCurrency, o.spender, amount); err != nil {
		return o.fail(s, err)
	}

	entry, err := o.ledger.Load(ctx, s.SelectedCurrency, o.lastBaseTotal)
	if err != nil {
		return o.fail(s, err)
	}
	s.Ledger = entry

	if entry.NeedsApproval {
		s.State = types.StateNeedsApproval
	} else {
		s.State = types.StateReadyToPay
	}
	return *s, nil
}

// Pay re-validates the rate and allowance, creates the invoice with the
// base-currency total, and redirects to the payment leg. The quote shown to
// the user must still be inside the freshness window at execution time.
func (o *Orchestrator) Pay(ctx context.Context) (types.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, err := o.requireSession()
	if err != nil {
		return types.CheckoutSession{}, err
	}
	if s.State != types.StateReadyToPay {
		return *s, fmt.Errorf("pay not allowed in state %s", s.State)
	}

	// Precondition gate: the rate backing the quote must still be usable.
	if !s.SelectedCurrency.IsBase() {
		info, err := o.rates.GetRateInfo(ctx)
		if err != nil || !info.Usable() {
			s.State = types.StateChecking
			s.Err = &types.SettlementError{
				Code:    types.ErrRateUnavailable,
				Message: "exchange rate no longer usable, re-check required",
			}
			return *s, nil
		}
	}

	// Latest total and a fresh allowance read decide whether submission is
	// still safe; a stale cached allowance risks an under-approved payment.
	total, err := o.cart.Total(ctx)
	if err != nil {
		return o.fail(s, err)
	}
	o.lastBaseTotal = total

	entry, err := o.ledger.Load(ctx, s.SelectedCurrency, total)
	if err != nil {
		return o.fail(s, err)
	}
	s.Ledger = entry
	if !entry.HasSufficientBalance {
		s.State = types.StateChecking
		s.NeedsTokens = true
		return *s, nil
	}
	if entry.NeedsApproval {
		s.State = types.StateNeedsApproval
		return *s, nil
	}

	s.State = types.StateSubmitting

	companyID, err := o.cart.CompanyID(ctx)
	if err != nil {
		return o.fail(s, err)
	}
	merchant, err := o.commerce.GetCompany(ctx, companyID)
	if err != nil {
		return o.fail(s, err)
	}

	token, ok := o.tokens[s.SelectedCurrency]
	if !ok {
		return o.fail(s, fmt.Errorf("no token configured for %s", s.SelectedCurrency))
	}

	// Always the base-currency total: the contract converts at execution
	// time, which closes the window for rate manipulation between quote
	// and execution.
	invoiceID, totalInToken, err := o.commerce.CreateInvoiceWithCurrency(ctx, companyID, token, total)
	if err != nil {
		return o.fail(s, err)
	}
	s.InvoiceID = invoiceID
	s.State = types.StateAwaitingSettlement

	redirect := types.PaymentRequest{
		Merchant:  merchant,
		Amount:    totalInToken,
		InvoiceID: invoiceID,
		ReturnURL: o.returnURL,
	}
	if err := o.payment.Redirect(redirect); err != nil {
		return o.fail(s, err)
	}

	o.log.Info("invoice created, awaiting off-chain settlement", map[string]any{
		"session": s.ID.String(),
		"invoice": invoiceID.String(),
	})
	return *s, nil
}

// HandleSettlement resumes the session after the payment leg signals
// completion: it runs the bounded balance poll and closes the session out
// regardless of whether the increase was observed in time.
func (o *Orchestrator) HandleSettlement(ctx context.Context, currency types.Currency) (types.CheckoutSession, error) {
	o.mu.Lock()
	s, err := o.requireSession()
	if err != nil {
		o.mu.Unlock()
		return types.CheckoutSession{}, err
	}
	o.mu.Unlock()

	res, err := o.reconciler.Reconcile(ctx, currency)
	if err != nil {
		return *s, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil || o.session.ID != s.ID {
		// session was cancelled while the poll ran
		return types.CheckoutSession{}, fmt.Errorf("no active checkout session")
	}
	s = o.session
	s.State = types.StateDone
	s.SettlementConfirmed = res.BalanceIncreased
	if !res.BalanceIncreased {
		o.log.Warn("settlement unconfirmed after polling window", map[string]any{
			"session":  s.ID.String(),
			"attempts": res.Attempts,
		})
	}
	return *s, nil
}

// Bind subscribes the orchestrator to the payment leg's completion channel.
// Each signal triggers the bounded reconciliation for the settled currency.
func (o *Orchestrator) Bind(n SettlementNotifier) {
	n.OnSettlementComplete(func(currency types.Currency) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := o.HandleSettlement(ctx, currency); err != nil {
			o.log.Error("settlement handling failed", map[string]any{
				"currency": currency.String(),
				"error":    err.Error(),
			})
		}
	})
}

// Cancel abandons the local session. Before submission that is the end of
// it; after submission the invoice already exists on-chain and only the
// local state is dropped.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return
	}
	o.log.Info("checkout session cancelled", map[string]any{
		"session": o.session.ID.String(),
		"state":   string(o.session.State),
	})
	o.session = nil
	o.lastBaseTotal = nil
}

// requirementFor expresses the cart total in the selected currency.
func (o *Orchestrator) requirementFor(ctx context.Context, currency types.Currency, total *big.Int) (types.CurrencyRequirement, error) {
	if currency.IsBase() {
		return types.CurrencyRequirement{Currency: currency, Amount: total}, nil
	}

	info, err := o.rates.GetRateInfo(ctx)
	if err != nil {
		return types.CurrencyRequirement{}, err
	}
	if !info.Usable() {
		return types.CurrencyRequirement{}, &types.SettlementError{
			Code:    types.ErrRateUnavailable,
			Message: "exchange rate is stale or invalid",
		}
	}
	return types.CurrencyRequirement{
		Currency: currency,
		Amount:   oracle.ConvertUSDTToEURT(total, info.Rate),
	}, nil
}

func (o *Orchestrator) requireSession() (*types.CheckoutSession, error) {
	if o.session == nil {
		return nil, fmt.Errorf("no active checkout session")
	}
	return o.session, nil
}

// fail classifies the error and parks the session. InsufficientBalance and
// RateUnavailable recover to Checking with a user-actionable state; every
// other class is terminal for the attempt but resumable from Checking.
func (o *Orchestrator) fail(s *types.CheckoutSession, err error) (types.CheckoutSession, error) {
	s.Err = err
	switch types.CodeOf(err) {
	case types.ErrInsufficientBalance:
		s.State = types.StateChecking
		s.NeedsTokens = true
		return *s, nil
	case types.ErrRateUnavailable:
		s.State = types.StateChecking
		return *s, nil
	default:
		s.State = types.StateErrored
		o.log.Error("checkout step failed", map[string]any{
			"session": s.ID.String(),
			"code":    types.CodeOf(err),
			"error":   err.Error(),
		})
		return *s, err
	}
}
