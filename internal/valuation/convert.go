// Package valuation converts between quote-denominated and base-asset
// denominated fixed-point values using oracle prices.
package valuation

import (
	"errors"
	"math/big"

	"circuit-vaults-service/internal/domain"
)

// ErrZeroPrice is returned when a conversion is attempted with a zero price.
var ErrZeroPrice = errors.New("valuation: zero oracle price")

// QuoteToBase converts a quote-precision value into base-asset units.
//
// The quote value is first shifted to price precision, divided by the
// price-precision oracle price, then rescaled to the base asset's own
// precision. Integer division truncates toward zero at each step.
func QuoteToBase(quoteValue, price *big.Int, basePrecisionExp int) (*big.Int, error) {
	if price == nil || price.Sign() == 0 {
		return nil, ErrZeroPrice
	}
	if quoteValue == nil {
		return new(big.Int), nil
	}

	// Shift quote precision -> price precision.
	shifted := new(big.Int).Mul(quoteValue, domain.PricePrecision())
	shifted.Quo(shifted, domain.QuotePrecision())

	// Divide out the price, rescale to base precision.
	base := shifted.Mul(shifted, domain.Pow10(basePrecisionExp))
	base.Quo(base, price)

	return base, nil
}

// BaseToQuote is the inverse of QuoteToBase, up to fixed-point truncation.
func BaseToQuote(baseValue, price *big.Int, basePrecisionExp int) (*big.Int, error) {
	if price == nil || price.Sign() == 0 {
		return nil, ErrZeroPrice
	}
	if baseValue == nil {
		return new(big.Int), nil
	}

	quote := new(big.Int).Mul(baseValue, price)
	quote.Quo(quote, domain.Pow10(basePrecisionExp))

	quote.Mul(quote, domain.QuotePrecision())
	quote.Quo(quote, domain.PricePrecision())

	return quote, nil
}

// PriceFor returns the oracle price to use for a vault: USD-pegged vaults
// use the fixed identity price and skip the oracle lookup entirely.
func PriceFor(v *domain.Vault, lookup func() (*big.Int, error)) (*big.Int, error) {
	if v.USDPegged {
		return domain.IdentityPrice(), nil
	}
	return lookup()
}
