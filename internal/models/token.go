package models

import "github.com/shopspring/decimal"

// Token is an ERC-20 token traded in at least one pair
type Token struct {
	ID       string `json:"id"` // Lowercase token address
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
	Decimals int    `json:"decimals"`

	TradeVolume          decimal.Decimal `json:"tradeVolume"`
	TradeVolumeUSD       decimal.Decimal `json:"tradeVolumeUSD"`
	TradeVolumeSecondary decimal.Decimal `json:"tradeVolumeSecondary"`
	UntrackedVolumeUSD   decimal.Decimal `json:"untrackedVolumeUSD"`
	TxCount              int64           `json:"txCount"`
	TotalLiquidity       decimal.Decimal `json:"totalLiquidity"`

	// Invalid until the first reserve update prices the token
	DerivedNative    decimal.NullDecimal `json:"derivedNative"`
	DerivedSecondary decimal.NullDecimal `json:"derivedSecondary"`
}

// NewToken returns a token with zeroed aggregates and no derived prices
func NewToken(id string, decimals int) *Token {
	return &Token{
		ID:                   id,
		Decimals:             decimals,
		TradeVolume:          ZeroBD,
		TradeVolumeUSD:       ZeroBD,
		TradeVolumeSecondary: ZeroBD,
		UntrackedVolumeUSD:   ZeroBD,
		TotalLiquidity:       ZeroBD,
	}
}

// Bundle holds the native unit's USD price
type Bundle struct {
	ID             string          `json:"id"`
	NativePriceUSD decimal.Decimal `json:"nativePriceUSD"`
}

// NewBundle returns the bundle singleton
func NewBundle(price decimal.Decimal) *Bundle {
	return &Bundle{ID: BundleID, NativePriceUSD: price}
}

// Factory is the exchange-wide aggregate
type Factory struct {
	ID                   string          `json:"id"` // Lowercase factory address
	PairCount            int64           `json:"pairCount"`
	Pairs                []string        `json:"pairs"`
	TotalVolumeUSD       decimal.Decimal `json:"totalVolumeUSD"`
	TotalVolumeNative    decimal.Decimal `json:"totalVolumeNative"`
	UntrackedVolumeUSD   decimal.Decimal `json:"untrackedVolumeUSD"`
	TotalLiquidityUSD    decimal.Decimal `json:"totalLiquidityUSD"`
	TotalLiquidityNative decimal.Decimal `json:"totalLiquidityNative"`
	TxCount              int64           `json:"txCount"`
}

// NewFactory returns an empty factory aggregate
func NewFactory(id string) *Factory {
	return &Factory{
		ID:                   id,
		Pairs:                []string{},
		TotalVolumeUSD:       ZeroBD,
		TotalVolumeNative:    ZeroBD,
		UntrackedVolumeUSD:   ZeroBD,
		TotalLiquidityUSD:    ZeroBD,
		TotalLiquidityNative: ZeroBD,
	}
}
