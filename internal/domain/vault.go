package domain

import "math/big"

// Fixed-point precision exponents shared by all vaults (Drift conventions).
const (
	QuotePrecisionExp = 6 // quote (USDC) amounts, 1e6
	PricePrecisionExp = 6 // oracle prices, 1e6
)

// Vault is the static configuration for one on-chain vault. Entries live in
// the vault registry; nothing here is derived from on-chain state.
type Vault struct {
	Address          string  // vault account address
	Name             string  // display name
	Manager          string  // manager authority address
	MarketSymbol     string  // oracle symbol of the base asset, e.g. "SOL"
	BasePrecisionExp int     // base-asset fixed-point exponent, e.g. 9 for SOL
	FeeFraction      float64 // static fee fraction applied to raw APY
	USDPegged        bool    // base asset is the quote asset; oracle price is identity
}

// BasePrecision returns 10^BasePrecisionExp.
func (v *Vault) BasePrecision() *big.Int {
	return Pow10(v.BasePrecisionExp)
}

// QuotePrecision returns 10^QuotePrecisionExp.
func QuotePrecision() *big.Int {
	return Pow10(QuotePrecisionExp)
}

// PricePrecision returns 10^PricePrecisionExp.
func PricePrecision() *big.Int {
	return Pow10(PricePrecisionExp)
}

// IdentityPrice is the fixed one-to-one oracle price used for USD-pegged
// vaults: one base unit equals one quote unit at price precision.
func IdentityPrice() *big.Int {
	return PricePrecision()
}

// Pow10 returns 10^exp as a big.Int. Panics on negative exp; precision
// exponents are compile-time constants or validated registry config.
func Pow10(exp int) *big.Int {
	if exp < 0 {
		panic("domain: negative precision exponent")
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
