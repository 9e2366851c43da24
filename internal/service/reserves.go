package service

import (
	"context"

	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/pricing"
	"github.com/amm-analytics/internal/types"
)

// handleSync moves the pair to its new reserves and reprices both tokens.
// Global and per-token liquidity are adjusted by removing the pair's old
// contribution and adding the new one.
func (e *Engine) handleSync(ctx context.Context, sc *scope, ev *types.Sync) error {
	s := sc.s

	pair, err := e.requirePair(ctx, s, ev.PairID())
	if err != nil {
		return err
	}
	token0, token1, err := e.requireTokens(ctx, s, pair)
	if err != nil {
		return err
	}
	factory, err := e.requireFactory(ctx, s)
	if err != nil {
		return err
	}

	factory.TotalLiquidityNative = factory.TotalLiquidityNative.Sub(pair.TrackedReserveNative)
	token0.TotalLiquidity = token0.TotalLiquidity.Sub(pair.Reserve0)
	token1.TotalLiquidity = token1.TotalLiquidity.Sub(pair.Reserve1)

	pair.Reserve0 = models.ConvertTokenToDecimal(ev.Reserve0, token0.Decimals)
	pair.Reserve1 = models.ConvertTokenToDecimal(ev.Reserve1, token1.Decimals)
	pair.Token0Price, pair.Token1Price = pricing.PairPrices(pair.Reserve0, pair.Reserve1)

	// the oracle may price through this pair
	if err := s.Save(pair); err != nil {
		return err
	}

	bundle, err := e.requireBundle(ctx, s)
	if err != nil {
		return err
	}
	nativePrice, err := e.nativePrice.NativePriceUSD(ctx, s)
	if err != nil {
		return err
	}
	bundle.NativePriceUSD = nativePrice
	if err := s.Save(bundle); err != nil {
		return err
	}

	native0, err := e.oracle.PriceInNative(ctx, s, token0.ID)
	if err != nil {
		return err
	}
	native1, err := e.oracle.PriceInNative(ctx, s, token1.ID)
	if err != nil {
		return err
	}
	secondary0, err := e.oracle.PriceInSecondary(ctx, s, token0.ID)
	if err != nil {
		return err
	}
	secondary1, err := e.oracle.PriceInSecondary(ctx, s, token1.ID)
	if err != nil {
		return err
	}
	token0.DerivedNative = models.Priced(native0)
	token1.DerivedNative = models.Priced(native1)
	token0.DerivedSecondary = models.Priced(secondary0)
	token1.DerivedSecondary = models.Priced(secondary1)

	trackedNative := models.ZeroBD
	if !bundle.NativePriceUSD.IsZero() {
		trackedUSD := e.accountant.TrackedLiquidityUSD(pair.Reserve0, token0, pair.Reserve1, token1, bundle)
		trackedNative = models.SafeDiv(trackedUSD, bundle.NativePriceUSD)
	}

	pair.TrackedReserveNative = trackedNative
	pair.ReserveNative = pair.Reserve0.Mul(native0).Add(pair.Reserve1.Mul(native1))
	pair.ReserveUSD = pair.ReserveNative.Mul(bundle.NativePriceUSD)
	pair.ReserveSecondary = pair.Reserve0.Mul(secondary0).Add(pair.Reserve1.Mul(secondary1))

	factory.TotalLiquidityNative = factory.TotalLiquidityNative.Add(trackedNative)
	factory.TotalLiquidityUSD = factory.TotalLiquidityNative.Mul(bundle.NativePriceUSD)

	token0.TotalLiquidity = token0.TotalLiquidity.Add(pair.Reserve0)
	token1.TotalLiquidity = token1.TotalLiquidity.Add(pair.Reserve1)

	for _, entity := range []models.Entity{pair, factory, token0, token1} {
		if err := s.Save(entity); err != nil {
			return err
		}
	}
	return nil
}
