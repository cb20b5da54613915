package vaults

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/solana"
	"circuit-vaults-service/internal/valuation"
)

// AccountFetcher reads one account from the chain.
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, address string) (*solana.AccountInfo, error)
}

// PriceSource resolves a historical oracle price for a symbol at a timestamp.
type PriceSource interface {
	PriceAt(ctx context.Context, symbol string, ts int64) (*big.Int, error)
}

// Equity is a vault's current valuation read from the chain.
type Equity struct {
	Slot        int64
	Ts          int64
	OraclePrice *big.Int
	QuoteValue  *big.Int
	BaseValue   *big.Int
	Account     *VaultAccount
}

// Client reads live vault state: raw account plus valuation in both
// denominations.
type Client struct {
	rpc    AccountFetcher
	prices PriceSource
	now    func() time.Time
}

// NewClient creates a vault chain client.
func NewClient(rpc AccountFetcher, prices PriceSource) *Client {
	return &Client{rpc: rpc, prices: prices, now: time.Now}
}

// Account fetches and decodes one vault account. A missing account is an
// error; configured vaults must exist on chain.
func (c *Client) Account(ctx context.Context, v *domain.Vault) (*VaultAccount, int64, error) {
	info, err := c.rpc.GetAccountInfo(ctx, v.Address)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch vault account %s: %w", v.Address, err)
	}
	if info == nil {
		return nil, 0, fmt.Errorf("vault account %s not found on chain", v.Address)
	}

	acc, err := DecodeVaultAccount(info.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode vault account %s: %w", v.Address, err)
	}

	return acc, info.Slot, nil
}

// CurrentEquity reads the vault account and converts its quote equity to
// base-asset terms at the oracle price for the read time. USD-pegged vaults
// skip the price lookup.
func (c *Client) CurrentEquity(ctx context.Context, v *domain.Vault) (*Equity, error) {
	acc, slot, err := c.Account(ctx, v)
	if err != nil {
		return nil, err
	}

	ts := c.now().Unix()
	price, err := valuation.PriceFor(v, func() (*big.Int, error) {
		return c.prices.PriceAt(ctx, v.MarketSymbol, ts)
	})
	if err != nil {
		return nil, fmt.Errorf("oracle price for %s: %w", v.MarketSymbol, err)
	}

	baseValue, err := valuation.QuoteToBase(acc.QuoteEquity, price, v.BasePrecisionExp)
	if err != nil {
		return nil, fmt.Errorf("convert equity for %s: %w", v.Address, err)
	}

	return &Equity{
		Slot:        slot,
		Ts:          ts,
		OraclePrice: price,
		QuoteValue:  new(big.Int).Set(acc.QuoteEquity),
		BaseValue:   baseValue,
		Account:     acc,
	}, nil
}
