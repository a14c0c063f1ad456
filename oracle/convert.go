package oracle

import (
	"math/big"

	"github.com/cryptoshop/settlement/types"
)

// The helpers below mirror the contract's conversion math so quotes shown
// before submission agree with what the contract will compute. The contract
// re-derives the amount at execution time; its result stays authoritative.

// ConvertEURTToUSDT converts an EURT amount to USDT at the given 6-decimal
// fixed-point rate, rounding half away from zero.
func ConvertEURTToUSDT(amount, rate *big.Int) *big.Int {
	product := new(big.Int).Mul(amount, rate)
	return divRound(product, types.RateScale)
}

// ConvertUSDTToEURT converts a USDT amount to EURT at the given rate.
// Round-tripping through ConvertEURTToUSDT lands within one unit.
func ConvertUSDTToEURT(amount, rate *big.Int) *big.Int {
	scaled := new(big.Int).Mul(amount, types.RateScale)
	return divRound(scaled, rate)
}

// divRound divides num by den rounding half away from zero. Amounts and
// rates in this core are non-negative.
func divRound(num, den *big.Int) *big.Int {
	half := new(big.Int).Rsh(den, 1)
	return new(big.Int).Div(new(big.Int).Add(num, half), den)
}
