package checkout

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptoshop/settlement/reconcile"
	"github.com/cryptoshop/settlement/types"
)

// mockRates implements RateProvider.
type mockRates struct {
	mu   sync.Mutex
	info types.ExchangeRate
	err  error
}

func (m *mockRates) GetRateInfo(context.Context) (types.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info, m.err
}

func (m *mockRates) set(info types.ExchangeRate, err error) {
	m.mu.Lock()
	m.info = info
	m.err = err
	m.mu.Unlock()
}

func usableRate(fixed int64) types.ExchangeRate {
	return types.ExchangeRate{Rate: big.NewInt(fixed), IsValid: true, TimeSinceUpdate: 60}
}

func staleRate(fixed int64) types.ExchangeRate {
	return types.ExchangeRate{Rate: big.NewInt(fixed), IsValid: true, TimeSinceUpdate: 86_400}
}

// mockLedger implements LedgerView, returning scripted entries in order and
// recording the required amounts it was asked about.
type mockLedger struct {
	entries  []types.TokenLedgerEntry
	err      error
	reqBases []*big.Int
}

func (m *mockLedger) Load(_ context.Context, _ types.Currency, requiredBase *big.Int) (types.TokenLedgerEntry, error) {
	m.reqBases = append(m.reqBases, requiredBase)
	if m.err != nil {
		return types.TokenLedgerEntry{}, m.err
	}
	entry := m.entries[0]
	if len(m.entries) > 1 {
		m.entries = m.entries[1:]
	}
	return entry, nil
}

func entry(balanceOK, needsApproval bool) types.TokenLedgerEntry {
	return types.TokenLedgerEntry{
		Balance:              big.NewInt(10_000_000),
		Allowance:            big.NewInt(0),
		HasSufficientBalance: balanceOK,
		NeedsApproval:        needsApproval,
	}
}

// mockApprover implements Approver.
type mockApprover struct {
	err     error
	amounts []*big.Int
}

func (m *mockApprover) Approve(_ context.Context, _ types.Currency, _ common.Address, amount *big.Int) error {
	if m.err != nil {
		return m.err
	}
	m.amounts = append(m.amounts, new(big.Int).Set(amount))
	return nil
}

// mockCart implements CartSource.
type mockCart struct {
	total     *big.Int
	companyID *big.Int
	err       error
}

func (m *mockCart) Total(context.Context) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return new(big.Int).Set(m.total), nil
}

func (m *mockCart) CompanyID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(m.companyID), nil
}

// mockCommerce implements Commerce and records the invoice-creation call.
type mockCommerce struct {
	merchant     common.Address
	invoiceID    *big.Int
	totalInToken *big.Int
	err          error

	createCalls  int
	gotTotal     *big.Int
	gotToken     common.Address
	gotCompanyID *big.Int
}

func (m *mockCommerce) GetCompany(_ context.Context, _ *big.Int) (common.Address, error) {
	return m.merchant, nil
}

func (m *mockCommerce) CreateInvoiceWithCurrency(_ context.Context, companyID *big.Int, paymentToken common.Address, expectedTotalUSDT *big.Int) (*big.Int, *big.Int, error) {
	m.createCalls++
	m.gotCompanyID = new(big.Int).Set(companyID)
	m.gotToken = paymentToken
	m.gotTotal = new(big.Int).Set(expectedTotalUSDT)
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.invoiceID, m.totalInToken, nil
}

// mockPayment implements PaymentLeg.
type mockPayment struct {
	err  error
	reqs []types.PaymentRequest
}

func (m *mockPayment) Redirect(req types.PaymentRequest) error {
	if m.err != nil {
		return m.err
	}
	m.reqs = append(m.reqs, req)
	return nil
}

// mockReconciler implements Reconciler.
type mockReconciler struct {
	res   reconcile.Result
	err   error
	calls int
}

func (m *mockReconciler) Reconcile(context.Context, types.Currency) (reconcile.Result, error) {
	m.calls++
	return m.res, m.err
}

var (
	usdtAddr    = common.HexToAddress("0x1000")
	eurtAddr    = common.HexToAddress("0x2000")
	spenderAddr = common.HexToAddress("0x3000")
)

type fixture struct {
	rates      *mockRates
	ledger     *mockLedger
	approver   *mockApprover
	cart       *mockCart
	commerce   *mockCommerce
	payment    *mockPayment
	reconciler *mockReconciler
	orch       *Orchestrator
}

func newFixture(entries ...types.TokenLedgerEntry) *fixture {
	f := &fixture{
		rates:    &mockRates{info: usableRate(1_100_000)},
		ledger:   &mockLedger{entries: entries},
		approver: &mockApprover{},
		cart: &mockCart{
			total:     big.NewInt(5_500_000),
			companyID: big.NewInt(7),
		},
		commerce: &mockCommerce{
			merchant:     common.HexToAddress("0x4000"),
			invoiceID:    big.NewInt(42),
			totalInToken: big.NewInt(5_000_123),
		},
		payment:    &mockPayment{},
		reconciler: &mockReconciler{res: reconcile.Result{BalanceIncreased: true, Attempts: 1}},
	}
	f.orch = NewOrchestrator(Config{
		Rates:      f.rates,
		Ledger:     f.ledger,
		Approver:   f.approver,
		Commerce:   f.commerce,
		Cart:       f.cart,
		Payment:    f.payment,
		Reconciler: f.reconciler,
		Tokens: map[types.Currency]common.Address{
			types.CurrencyUSDT: usdtAddr,
			types.CurrencyEURT: eurtAddr,
		},
		Spender:   spenderAddr,
		ReturnURL: "https://shop.example/checkout/return",
	})
	return f
}
