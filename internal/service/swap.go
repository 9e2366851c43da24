package service

import (
	"context"

	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/pricing"
	"github.com/amm-analytics/internal/types"
)

// handleSwap records a trade and adds its volume to the token, pair and factory totals
func (e *Engine) handleSwap(ctx context.Context, sc *scope, ev *types.Swap) error {
	s := sc.s
	c := ev.Context()

	pair, err := e.requirePair(ctx, s, c.PairID())
	if err != nil {
		return err
	}
	token0, token1, err := e.requireTokens(ctx, s, pair)
	if err != nil {
		return err
	}
	if err := requirePriced(token0, token1); err != nil {
		return err
	}

	amount0In := models.ConvertTokenToDecimal(ev.Amount0In, token0.Decimals)
	amount1In := models.ConvertTokenToDecimal(ev.Amount1In, token1.Decimals)
	amount0Out := models.ConvertTokenToDecimal(ev.Amount0Out, token0.Decimals)
	amount1Out := models.ConvertTokenToDecimal(ev.Amount1Out, token1.Decimals)

	amount0Total := amount0Out.Add(amount0In)
	amount1Total := amount1Out.Add(amount1In)

	bundle, err := e.requireBundle(ctx, s)
	if err != nil {
		return err
	}

	// untracked reference value: both legs averaged, whitelisted or not
	derivedAmountNative := token1.DerivedNative.Decimal.Mul(amount1Total).
		Add(token0.DerivedNative.Decimal.Mul(amount0Total)).
		Div(models.TwoBD)
	derivedAmountUSD := derivedAmountNative.Mul(bundle.NativePriceUSD)

	trackedAmountUSD := e.accountant.TrackedVolumeUSD(amount0Total, token0, amount1Total, token1, pair, bundle)
	trackedAmountNative := models.SafeDiv(trackedAmountUSD, bundle.NativePriceUSD)
	volumeSecondary := pricing.SecondaryVolume(amount0Total, token0, amount1Total, token1)

	token0.TradeVolume = token0.TradeVolume.Add(amount0Total)
	token0.TradeVolumeUSD = token0.TradeVolumeUSD.Add(trackedAmountUSD)
	token0.TradeVolumeSecondary = token0.TradeVolumeSecondary.Add(volumeSecondary)
	token0.UntrackedVolumeUSD = token0.UntrackedVolumeUSD.Add(derivedAmountUSD)
	token0.TxCount++

	token1.TradeVolume = token1.TradeVolume.Add(amount1Total)
	token1.TradeVolumeUSD = token1.TradeVolumeUSD.Add(trackedAmountUSD)
	token1.TradeVolumeSecondary = token1.TradeVolumeSecondary.Add(volumeSecondary)
	token1.UntrackedVolumeUSD = token1.UntrackedVolumeUSD.Add(derivedAmountUSD)
	token1.TxCount++

	pair.VolumeUSD = pair.VolumeUSD.Add(trackedAmountUSD)
	pair.VolumeToken0 = pair.VolumeToken0.Add(amount0Total)
	pair.VolumeToken1 = pair.VolumeToken1.Add(amount1Total)
	pair.VolumeSecondary = pair.VolumeSecondary.Add(volumeSecondary)
	pair.UntrackedVolumeUSD = pair.UntrackedVolumeUSD.Add(derivedAmountUSD)
	pair.TxCount++

	factory, err := e.requireFactory(ctx, s)
	if err != nil {
		return err
	}
	factory.TotalVolumeUSD = factory.TotalVolumeUSD.Add(trackedAmountUSD)
	factory.TotalVolumeNative = factory.TotalVolumeNative.Add(trackedAmountNative)
	factory.UntrackedVolumeUSD = factory.UntrackedVolumeUSD.Add(derivedAmountUSD)
	factory.TxCount++

	tx, err := loadOrCreateTransaction(ctx, s, c)
	if err != nil {
		return err
	}

	amountUSD := trackedAmountUSD
	if amountUSD.IsZero() {
		amountUSD = derivedAmountUSD
	}
	swap := &models.Swap{
		ID:              models.RecordID(tx.ID, len(tx.Swaps)),
		Transaction:     tx.ID,
		Pair:            pair.ID,
		Timestamp:       tx.Timestamp,
		Sender:          types.AddressID(ev.Sender),
		From:            types.AddressID(ev.TxFrom),
		To:              types.AddressID(ev.To),
		Amount0In:       amount0In,
		Amount1In:       amount1In,
		Amount0Out:      amount0Out,
		Amount1Out:      amount1Out,
		AmountUSD:       amountUSD,
		AmountSecondary: volumeSecondary,
		LogIndex:        ev.LogIndex,
	}
	tx.Swaps = append(tx.Swaps, swap.ID)

	for _, entity := range []models.Entity{pair, token0, token1, factory, swap, tx} {
		if err := s.Save(entity); err != nil {
			return err
		}
	}

	sc.records = append(sc.records, swap)
	return nil
}
