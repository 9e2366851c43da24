package pricing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/amm-analytics/internal/models"
)

// NativePriceSource supplies the USD price of the native unit on every reserve update
type NativePriceSource interface {
	NativePriceUSD(ctx context.Context, r Reader) (decimal.Decimal, error)
}

// FixedPrice always reports the same native price
type FixedPrice struct {
	Price decimal.Decimal
}

// NativePriceUSD returns the fixed price
func (f FixedPrice) NativePriceUSD(ctx context.Context, r Reader) (decimal.Decimal, error) {
	return f.Price, nil
}

// StablePairPrice derives the native price from native/stablecoin pairs,
// weighted by each pair's native reserve. Pairs not yet in the ledger are ignored.
type StablePairPrice struct {
	NativeToken string
	Pairs       []string
}

// NewStablePairPrice creates a stable-pair source
func NewStablePairPrice(nativeToken string, pairs []string) *StablePairPrice {
	ids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, strings.ToLower(p))
	}
	return &StablePairPrice{NativeToken: strings.ToLower(nativeToken), Pairs: ids}
}

// NativePriceUSD returns Σ stable reserves / Σ native reserves, or zero when
// no configured pair holds native liquidity
func (s *StablePairPrice) NativePriceUSD(ctx context.Context, r Reader) (decimal.Decimal, error) {
	nativeTotal := models.ZeroBD
	stableTotal := models.ZeroBD

	for _, id := range s.Pairs {
		pair, err := r.LoadPair(ctx, id)
		if err != nil {
			return models.ZeroBD, err
		}
		if pair == nil {
			continue
		}

		switch s.NativeToken {
		case pair.Token0:
			nativeTotal = nativeTotal.Add(pair.Reserve0)
			stableTotal = stableTotal.Add(pair.Reserve1)
		case pair.Token1:
			nativeTotal = nativeTotal.Add(pair.Reserve1)
			stableTotal = stableTotal.Add(pair.Reserve0)
		}
	}

	return models.SafeDiv(stableTotal, nativeTotal), nil
}
