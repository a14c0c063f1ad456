package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshop/settlement/types"
)

type fakeToken struct {
	addr      common.Address
	symbol    string
	decimals  uint8
	balance   *big.Int
	allowance *big.Int

	symbolCalls  int
	balanceCalls int
	approved     *big.Int
}

func (f *fakeToken) Address() common.Address { return f.addr }

func (f *fakeToken) Symbol(context.Context) (string, error) {
	f.symbolCalls++
	return f.symbol, nil
}

func (f *fakeToken) Decimals(context.Context) (uint8, error) {
	return f.decimals, nil
}

func (f *fakeToken) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	f.balanceCalls++
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeToken) Allowance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeToken) Approve(_ context.Context, _ common.Address, amount *big.Int) error {
	f.approved = new(big.Int).Set(amount)
	return nil
}

type fakeRates struct {
	info types.ExchangeRate
	err  error
}

func (f *fakeRates) GetRateInfo(context.Context) (types.ExchangeRate, error) {
	return f.info, f.err
}

func usableRate(fixed int64) *fakeRates {
	return &fakeRates{info: types.ExchangeRate{
		Rate:            big.NewInt(fixed),
		IsValid:         true,
		TimeSinceUpdate: 60,
	}}
}

func newTestView(usdt, eurt *fakeToken, rates RateProvider) *View {
	return NewView(
		map[types.Currency]Token{types.CurrencyUSDT: usdt, types.CurrencyEURT: eurt},
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
		rates,
		nil,
	)
}

func baseTokens() (*fakeToken, *fakeToken) {
	usdt := &fakeToken{
		addr: common.HexToAddress("0x10"), symbol: "USDT", decimals: 6,
		balance: big.NewInt(8_000_000), allowance: big.NewInt(1_000_000),
	}
	eurt := &fakeToken{
		addr: common.HexToAddress("0x20"), symbol: "EURT", decimals: 6,
		balance: big.NewInt(6_000_000), allowance: big.NewInt(0),
	}
	return usdt, eurt
}

func TestLoadWithoutRequirement(t *testing.T) {
	usdt, eurt := baseTokens()
	v := newTestView(usdt, eurt, usableRate(1_100_000))

	entry, err := v.Load(context.Background(), types.CurrencyUSDT, nil)
	require.NoError(t, err)
	assert.Equal(t, "USDT", entry.Symbol)
	assert.Equal(t, int64(8_000_000), entry.Balance.Int64())
	assert.False(t, entry.HasSufficientBalance)
	assert.False(t, entry.NeedsApproval)
}

func TestLoadBaseCurrencyFlags(t *testing.T) {
	usdt, eurt := baseTokens()
	v := newTestView(usdt, eurt, usableRate(1_100_000))

	entry, err := v.Load(context.Background(), types.CurrencyUSDT, big.NewInt(5_000_000))
	require.NoError(t, err)
	assert.True(t, entry.HasSufficientBalance)
	assert.True(t, entry.NeedsApproval) // allowance 1,000,000 < 5,000,000
}

func TestLoadQuoteCurrencyConvertsRequirement(t *testing.T) {
	usdt, eurt := baseTokens()
	// 1.10: 5,500,000 USDT requires 5,000,000 EURT
	v := newTestView(usdt, eurt, usableRate(1_100_000))

	entry, err := v.Load(context.Background(), types.CurrencyEURT, big.NewInt(5_500_000))
	require.NoError(t, err)
	assert.True(t, entry.HasSufficientBalance) // balance 6,000,000 >= 5,000,000
	assert.True(t, entry.NeedsApproval)        // allowance 0
}

func TestLoadQuoteCurrencyUnusableRateIndeterminate(t *testing.T) {
	usdt, eurt := baseTokens()
	stale := &fakeRates{info: types.ExchangeRate{
		Rate: big.NewInt(1_100_000), IsValid: true, TimeSinceUpdate: 86_400,
	}}
	v := newTestView(usdt, eurt, stale)

	entry, err := v.Load(context.Background(), types.CurrencyEURT, big.NewInt(5_500_000))
	require.NoError(t, err)
	// never guess sufficiency against an unusable rate
	assert.False(t, entry.HasSufficientBalance)
	assert.False(t, entry.NeedsApproval)
	assert.Equal(t, int64(6_000_000), entry.Balance.Int64())
}

func TestLoadBaseCurrencyUnaffectedByRate(t *testing.T) {
	usdt, eurt := baseTokens()
	down := &fakeRates{err: &types.SettlementError{Code: types.ErrOracleUnavailable, Message: "down"}}
	v := newTestView(usdt, eurt, down)

	entry, err := v.Load(context.Background(), types.CurrencyUSDT, big.NewInt(5_000_000))
	require.NoError(t, err)
	assert.True(t, entry.HasSufficientBalance)
}

func TestMetaCachedBalanceReread(t *testing.T) {
	usdt, eurt := baseTokens()
	v := newTestView(usdt, eurt, usableRate(1_100_000))

	for i := 0; i < 3; i++ {
		_, err := v.Load(context.Background(), types.CurrencyUSDT, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, usdt.symbolCalls, "symbol/decimals cached per token")
	assert.Equal(t, 3, usdt.balanceCalls, "balance re-read on every load")
}

func TestLoadUnsupportedCurrency(t *testing.T) {
	usdt, eurt := baseTokens()
	v := newTestView(usdt, eurt, usableRate(1_100_000))

	_, err := v.Load(context.Background(), types.Currency("BTC"), nil)
	require.Error(t, err)
}
