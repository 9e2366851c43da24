package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LiquidityPosition is a user's LP token balance in one pair
type LiquidityPosition struct {
	ID                    string          `json:"id"`
	Pair                  string          `json:"pair"`
	User                  string          `json:"user"`
	LiquidityTokenBalance decimal.Decimal `json:"liquidityTokenBalance"`
}

// PositionID returns the id of the position of user in pair
func PositionID(pair, user string) string {
	return fmt.Sprintf("%s-%s", pair, user)
}

// LiquidityPositionSnapshot captures a position and its pair at one event
type LiquidityPositionSnapshot struct {
	ID                        string          `json:"id"`
	LiquidityPosition         string          `json:"liquidityPosition"`
	Timestamp                 int64           `json:"timestamp"`
	Block                     uint64          `json:"block"`
	User                      string          `json:"user"`
	Pair                      string          `json:"pair"`
	Token0PriceUSD            decimal.Decimal `json:"token0PriceUSD"`
	Token1PriceUSD            decimal.Decimal `json:"token1PriceUSD"`
	Reserve0                  decimal.Decimal `json:"reserve0"`
	Reserve1                  decimal.Decimal `json:"reserve1"`
	ReserveUSD                decimal.Decimal `json:"reserveUSD"`
	LiquidityTokenTotalSupply decimal.Decimal `json:"liquidityTokenTotalSupply"`
	LiquidityTokenBalance     decimal.Decimal `json:"liquidityTokenBalance"`
}
