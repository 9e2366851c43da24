package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/amm-analytics/internal/models"
)

// Branch is the whitelist membership of a pair's two tokens
type Branch int

const (
	BranchNone Branch = iota
	BranchToken0
	BranchToken1
	BranchBoth
)

func (b Branch) String() string {
	switch b {
	case BranchToken0:
		return "token0"
	case BranchToken1:
		return "token1"
	case BranchBoth:
		return "both"
	default:
		return "none"
	}
}

// Accountant decides how much of a trade or reserve is tracked USD value
type Accountant struct {
	cfg *Config
}

// NewAccountant creates an accountant
func NewAccountant(cfg *Config) *Accountant {
	return &Accountant{cfg: cfg}
}

// Classify returns the single whitelist branch that applies to a token pair
func (a *Accountant) Classify(token0, token1 string) Branch {
	w0, w1 := a.cfg.IsWhitelisted(token0), a.cfg.IsWhitelisted(token1)
	switch {
	case w0 && w1:
		return BranchBoth
	case w0:
		return BranchToken0
	case w1:
		return BranchToken1
	default:
		return BranchNone
	}
}

func usdPrice(t *models.Token, bundle *models.Bundle) decimal.Decimal {
	return models.OrZero(t.DerivedNative).Mul(bundle.NativePriceUSD)
}

// TrackedVolumeUSD values a swap through its whitelisted side(s). It returns
// zero without a bundle, for denylisted pairs, and for new pairs whose
// whitelisted reserves are below the new-pair USD threshold.
func (a *Accountant) TrackedVolumeUSD(
	amount0 decimal.Decimal, token0 *models.Token,
	amount1 decimal.Decimal, token1 *models.Token,
	pair *models.Pair, bundle *models.Bundle,
) decimal.Decimal {
	if bundle == nil {
		return models.ZeroBD
	}

	price0 := usdPrice(token0, bundle)
	price1 := usdPrice(token1, bundle)

	if a.cfg.IsUntracked(pair.ID) {
		return models.ZeroBD
	}

	branch := a.Classify(token0.ID, token1.ID)

	if pair.LiquidityProviderCount < a.cfg.MinimumProviderCount {
		reserve0USD := pair.Reserve0.Mul(price0)
		reserve1USD := pair.Reserve1.Mul(price1)
		threshold := a.cfg.MinimumUSDThresholdNewPairs

		switch branch {
		case BranchBoth:
			if reserve0USD.Add(reserve1USD).LessThan(threshold) {
				return models.ZeroBD
			}
		case BranchToken0:
			if reserve0USD.Mul(models.TwoBD).LessThan(threshold) {
				return models.ZeroBD
			}
		case BranchToken1:
			if reserve1USD.Mul(models.TwoBD).LessThan(threshold) {
				return models.ZeroBD
			}
		}
	}

	switch branch {
	case BranchBoth:
		return amount0.Mul(price0).Add(amount1.Mul(price1)).Div(models.TwoBD)
	case BranchToken0:
		return amount0.Mul(price0)
	case BranchToken1:
		return amount1.Mul(price1)
	default:
		return models.ZeroBD
	}
}

// TrackedLiquidityUSD values reserves through their whitelisted side(s):
// the sum when both are whitelisted, one side doubled when only one is.
func (a *Accountant) TrackedLiquidityUSD(
	amount0 decimal.Decimal, token0 *models.Token,
	amount1 decimal.Decimal, token1 *models.Token,
	bundle *models.Bundle,
) decimal.Decimal {
	if bundle == nil {
		return models.ZeroBD
	}

	price0 := usdPrice(token0, bundle)
	price1 := usdPrice(token1, bundle)

	switch a.Classify(token0.ID, token1.ID) {
	case BranchBoth:
		return amount0.Mul(price0).Add(amount1.Mul(price1))
	case BranchToken0:
		return amount0.Mul(price0).Mul(models.TwoBD)
	case BranchToken1:
		return amount1.Mul(price1).Mul(models.TwoBD)
	default:
		return models.ZeroBD
	}
}

// SecondaryVolume is the average secondary-unit value of both swap legs
func SecondaryVolume(amount0 decimal.Decimal, token0 *models.Token, amount1 decimal.Decimal, token1 *models.Token) decimal.Decimal {
	return amount0.Mul(models.OrZero(token0.DerivedSecondary)).
		Add(amount1.Mul(models.OrZero(token1.DerivedSecondary))).
		Div(models.TwoBD)
}

// PairPrices returns token0Price = reserve0/reserve1 and token1Price = reserve1/reserve0,
// each zero when its denominator is zero
func PairPrices(reserve0, reserve1 decimal.Decimal) (token0Price, token1Price decimal.Decimal) {
	return models.SafeDiv(reserve0, reserve1), models.SafeDiv(reserve1, reserve0)
}
