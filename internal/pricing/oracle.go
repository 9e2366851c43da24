package pricing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/types"
)

// Oracle prices tokens in the native and secondary reference units by a
// one-hop lookup against the whitelist. It never writes to the ledger.
type Oracle struct {
	cfg     *Config
	locator PairLocator
}

// NewOracle creates an oracle over the given pair locator
func NewOracle(cfg *Config, locator PairLocator) *Oracle {
	return &Oracle{cfg: cfg, locator: locator}
}

// PriceInNative returns the token's price in native units. Only pairs whose
// native reserve exceeds the configured minimum liquidity are considered.
// Zero means no usable pair was found. Errors are ledger failures only.
func (o *Oracle) PriceInNative(ctx context.Context, r Reader, token string) (decimal.Decimal, error) {
	if token == o.cfg.NativeToken {
		return models.OneBD, nil
	}
	threshold := o.cfg.MinimumLiquidityNative
	return o.oneHop(ctx, r, token, &threshold, func(t *models.Token) decimal.NullDecimal {
		return t.DerivedNative
	})
}

// PriceInSecondary returns the token's price in secondary units. The first
// existing whitelist pair is used regardless of its reserves.
func (o *Oracle) PriceInSecondary(ctx context.Context, r Reader, token string) (decimal.Decimal, error) {
	if token == o.cfg.SecondaryToken {
		return models.OneBD, nil
	}
	return o.oneHop(ctx, r, token, nil, func(t *models.Token) decimal.NullDecimal {
		return t.DerivedSecondary
	})
}

// oneHop returns counterpartyPrice × quote.derived for the first whitelist
// entry with a usable pair. A nil threshold disables the liquidity check.
func (o *Oracle) oneHop(
	ctx context.Context,
	r Reader,
	token string,
	threshold *decimal.Decimal,
	derived func(*models.Token) decimal.NullDecimal,
) (decimal.Decimal, error) {
	tokenAddr := common.HexToAddress(token)

	for _, quote := range o.cfg.Whitelist {
		pairAddr, ok := o.locator.TryGetPair(ctx, tokenAddr, common.HexToAddress(quote))
		if !ok || pairAddr == types.ZeroAddress {
			continue
		}

		pair, err := r.LoadPair(ctx, types.AddressID(pairAddr))
		if err != nil {
			return models.ZeroBD, err
		}
		if pair == nil {
			continue
		}
		if threshold != nil && !pair.ReserveNative.GreaterThan(*threshold) {
			continue
		}

		var counterparty string
		var price decimal.Decimal
		switch token {
		case pair.Token0:
			counterparty, price = pair.Token1, pair.Token1Price
		case pair.Token1:
			counterparty, price = pair.Token0, pair.Token0Price
		default:
			continue
		}

		other, err := r.LoadToken(ctx, counterparty)
		if err != nil {
			return models.ZeroBD, err
		}
		if other == nil {
			continue
		}
		quotePrice := derived(other)
		if !quotePrice.Valid {
			continue
		}
		return price.Mul(quotePrice.Decimal), nil
	}

	return models.ZeroBD, nil
}
