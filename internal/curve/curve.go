// Package curve implements the quadratic bonding curve that prices shares
// from their current supply. The base price for buying `amount` shares at
// supply S is the difference of two sum-of-squares terms scaled to wei:
//
//	price = (Σ_{i=0}^{S-1+amount} i² − Σ_{i=0}^{S-1} i²) × 1e18 / 16000
//
// The curve charges a 5% protocol fee and a 5% subject fee on top of the
// base price for buys, and deducts both from the proceeds of sells.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The summation is cubic in supply and overflows int64 well within the
// supply range seen on-chain, so it is computed with math/big.
package curve

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeSupply is returned when supply or amount is negative.
	ErrNegativeSupply = errors.New("curve: supply and amount must be non-negative")

	// ErrAmountExceedsSupply is returned when a sell is priced for more
	// shares than exist.
	ErrAmountExceedsSupply = errors.New("curve: sell amount exceeds supply")
)

var (
	weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	divisor   = big.NewInt(16000)
	six       = big.NewInt(6)

	// feeRate is the protocol fee and the subject fee, each 5% of base.
	feeRate = decimal.NewFromInt(1).Div(decimal.NewFromInt(20))
)

// sumSquares returns Σ_{i=1}^{n} i² = n(n+1)(2n+1)/6 for n ≥ 0.
func sumSquares(n int64) *big.Int {
	if n <= 0 {
		return new(big.Int)
	}
	bn := big.NewInt(n)
	s := new(big.Int).Add(bn, big.NewInt(1))
	s.Mul(s, bn)
	t := new(big.Int).Lsh(bn, 1)
	t.Add(t, big.NewInt(1))
	s.Mul(s, t)
	return s.Div(s, six)
}

// BasePrice returns the fee-free price in wei of buying `amount` shares at
// the given supply. The supply==0 special cases mirror the on-chain
// contract: the very first share is free (only the subject can buy it).
func BasePrice(supply, amount int64) (decimal.Decimal, error) {
	if supply < 0 || amount < 0 {
		return decimal.Decimal{}, ErrNegativeSupply
	}

	sum1 := new(big.Int)
	if supply != 0 {
		sum1 = sumSquares(supply - 1)
	}
	sum2 := new(big.Int)
	if !(supply == 0 && amount == 1) {
		sum2 = sumSquares(supply - 1 + amount)
	}

	summation := new(big.Int).Sub(sum2, sum1)
	summation.Mul(summation, weiPerEth)
	summation.Div(summation, divisor)
	return decimal.NewFromBigInt(summation, 0), nil
}

// Fee returns the 5% fee on a base price. Applied once for the protocol
// and once for the subject.
func Fee(base decimal.Decimal) decimal.Decimal {
	return base.Mul(feeRate)
}

// BuyPriceAfterFee returns the total wei a buyer pays for `amount` shares
// at the given supply: base price plus protocol and subject fees.
func BuyPriceAfterFee(supply, amount int64) (decimal.Decimal, error) {
	base, err := BasePrice(supply, amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	fee := Fee(base)
	return base.Add(fee).Add(fee), nil
}

// SellPriceAfterFee returns the wei a seller receives for `amount` shares
// at the given supply: the base price of those shares at supply-amount,
// minus protocol and subject fees.
func SellPriceAfterFee(supply, amount int64) (decimal.Decimal, error) {
	if amount > supply {
		return decimal.Decimal{}, ErrAmountExceedsSupply
	}
	base, err := BasePrice(supply-amount, amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	fee := Fee(base)
	return base.Sub(fee).Sub(fee), nil
}
