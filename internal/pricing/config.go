// Package pricing derives token prices from pair reserves and decides how much
// of a trade or reserve counts as tracked USD value.
package pricing

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/amm-analytics/internal/config"
	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/models"
)

// DefaultMinimumProviderCount is the provider count below which a pair is treated as new
const DefaultMinimumProviderCount int64 = 5

// Config is the immutable oracle and accountant configuration. All ids are lowercase hex.
type Config struct {
	NativeToken    string
	SecondaryToken string

	// Whitelist order decides which quote pair prices a token
	Whitelist      []string
	UntrackedPairs []string

	MinimumUSDThresholdNewPairs decimal.Decimal
	MinimumLiquidityNative      decimal.Decimal
	MinimumProviderCount        int64

	whitelisted map[string]struct{}
	untracked   map[string]struct{}
}

// NewConfig normalizes ids and indexes the whitelist and denylist
func NewConfig(native, secondary string, whitelist, untracked []string, minUSDNewPairs, minLiquidityNative decimal.Decimal) *Config {
	c := &Config{
		NativeToken:                 strings.ToLower(native),
		SecondaryToken:              strings.ToLower(secondary),
		MinimumUSDThresholdNewPairs: minUSDNewPairs,
		MinimumLiquidityNative:      minLiquidityNative,
		MinimumProviderCount:        DefaultMinimumProviderCount,
		whitelisted:                 make(map[string]struct{}, len(whitelist)),
		untracked:                   make(map[string]struct{}, len(untracked)),
	}
	for _, id := range whitelist {
		id = strings.ToLower(id)
		if _, dup := c.whitelisted[id]; dup {
			continue
		}
		c.whitelisted[id] = struct{}{}
		c.Whitelist = append(c.Whitelist, id)
	}
	for _, id := range untracked {
		id = strings.ToLower(id)
		c.untracked[id] = struct{}{}
		c.UntrackedPairs = append(c.UntrackedPairs, id)
	}
	return c
}

// FromSettings builds a Config from the environment settings
func FromSettings(s config.PricingConfig) (*Config, error) {
	minUSD, err := decimal.NewFromString(s.MinimumUSDThresholdNewPair)
	if err != nil {
		return nil, apperrors.NewValidationError("MINIMUM_USD_THRESHOLD_NEW_PAIRS", err.Error())
	}
	minLiquidity, err := decimal.NewFromString(s.MinimumLiquidityNative)
	if err != nil {
		return nil, apperrors.NewValidationError("MINIMUM_LIQUIDITY_THRESHOLD_NATIVE", err.Error())
	}
	return NewConfig(s.NativeToken, s.SecondaryToken, s.Whitelist, s.UntrackedPairs, minUSD, minLiquidity), nil
}

// IsWhitelisted reports whether token is a trusted quote token
func (c *Config) IsWhitelisted(token string) bool {
	_, ok := c.whitelisted[token]
	return ok
}

// IsUntracked reports whether pair is on the untracked denylist
func (c *Config) IsUntracked(pair string) bool {
	_, ok := c.untracked[pair]
	return ok
}

// PairLocator finds the pair of two tokens. A failed or reverted lookup and a
// missing pair are both reported as ok == false.
type PairLocator interface {
	TryGetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, bool)
}

// Reader is the read side of the ledger used for pricing
type Reader interface {
	LoadPair(ctx context.Context, id string) (*models.Pair, error)
	LoadToken(ctx context.Context, id string) (*models.Token, error)
	LoadBundle(ctx context.Context) (*models.Bundle, error)
}
