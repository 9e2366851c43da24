package models

import "github.com/shopspring/decimal"

// Pair is a two-token AMM pool
type Pair struct {
	ID     string `json:"id"` // Lowercase pair address
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`

	Reserve0 decimal.Decimal `json:"reserve0"`
	Reserve1 decimal.Decimal `json:"reserve1"`

	// token0Price = reserve0/reserve1, token1Price = reserve1/reserve0; zero on a zero denominator
	Token0Price decimal.Decimal `json:"token0Price"`
	Token1Price decimal.Decimal `json:"token1Price"`

	ReserveNative        decimal.Decimal `json:"reserveNative"`
	ReserveUSD           decimal.Decimal `json:"reserveUSD"`
	ReserveSecondary     decimal.Decimal `json:"reserveSecondary"`
	TrackedReserveNative decimal.Decimal `json:"trackedReserveNative"`

	TotalSupply            decimal.Decimal `json:"totalSupply"`
	LiquidityProviderCount int64           `json:"liquidityProviderCount"`
	TxCount                int64           `json:"txCount"`

	VolumeToken0       decimal.Decimal `json:"volumeToken0"`
	VolumeToken1       decimal.Decimal `json:"volumeToken1"`
	VolumeUSD          decimal.Decimal `json:"volumeUSD"`
	VolumeSecondary    decimal.Decimal `json:"volumeSecondary"`
	UntrackedVolumeUSD decimal.Decimal `json:"untrackedVolumeUSD"`

	CreatedAtTimestamp   int64  `json:"createdAtTimestamp"`
	CreatedAtBlockNumber uint64 `json:"createdAtBlockNumber"`
}

// NewPair returns a pair with zero reserves and aggregates
func NewPair(id, token0, token1 string) *Pair {
	return &Pair{
		ID:                   id,
		Token0:               token0,
		Token1:               token1,
		Reserve0:             ZeroBD,
		Reserve1:             ZeroBD,
		Token0Price:          ZeroBD,
		Token1Price:          ZeroBD,
		ReserveNative:        ZeroBD,
		ReserveUSD:           ZeroBD,
		ReserveSecondary:     ZeroBD,
		TrackedReserveNative: ZeroBD,
		TotalSupply:          ZeroBD,
		VolumeToken0:         ZeroBD,
		VolumeToken1:         ZeroBD,
		VolumeUSD:            ZeroBD,
		VolumeSecondary:      ZeroBD,
		UntrackedVolumeUSD:   ZeroBD,
	}
}
