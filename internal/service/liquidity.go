package service

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/types"
)

// liquidityChange is the state shared by Mint and Burn processing
type liquidityChange struct {
	pair            *models.Pair
	token0, token1  *models.Token
	amount0         decimal.Decimal
	amount1         decimal.Decimal
	amountUSD       decimal.Decimal
	amountSecondary decimal.Decimal
}

// valueLiquidityChange checks the preconditions common to mints and burns,
// bumps the tx counters and values the amounts
func (e *Engine) valueLiquidityChange(ctx context.Context, s *ledger.Session, pairID string, raw0, raw1 *big.Int) (*liquidityChange, error) {
	pair, err := e.requirePair(ctx, s, pairID)
	if err != nil {
		return nil, err
	}
	factory, err := e.requireFactory(ctx, s)
	if err != nil {
		return nil, err
	}
	token0, token1, err := e.requireTokens(ctx, s, pair)
	if err != nil {
		return nil, err
	}
	if err := requirePriced(token0, token1); err != nil {
		return nil, err
	}

	amount0 := models.ConvertTokenToDecimal(raw0, token0.Decimals)
	amount1 := models.ConvertTokenToDecimal(raw1, token1.Decimals)

	token0.TxCount++
	token1.TxCount++

	bundle, err := e.requireBundle(ctx, s)
	if err != nil {
		return nil, err
	}

	amountUSD := token1.DerivedNative.Decimal.Mul(amount1).
		Add(token0.DerivedNative.Decimal.Mul(amount0)).
		Mul(bundle.NativePriceUSD)
	amountSecondary := amount0.Mul(models.OrZero(token0.DerivedSecondary)).
		Add(amount1.Mul(models.OrZero(token1.DerivedSecondary)))

	pair.TxCount++
	factory.TxCount++

	for _, entity := range []models.Entity{token0, token1, factory} {
		if err := s.Save(entity); err != nil {
			return nil, err
		}
	}

	return &liquidityChange{
		pair:            pair,
		token0:          token0,
		token1:          token1,
		amount0:         amount0,
		amount1:         amount1,
		amountUSD:       amountUSD,
		amountSecondary: amountSecondary,
	}, nil
}

// handleMint completes the transaction's pending mint
func (e *Engine) handleMint(ctx context.Context, sc *scope, ev *types.Mint) error {
	s := sc.s

	tx, err := e.requireTransaction(ctx, s, ev.TxID())
	if err != nil {
		return err
	}
	last, ok := tx.LastMint()
	if !ok {
		return apperrors.NewMissingEntityError(string(models.KindMint), tx.ID)
	}
	mint, err := s.LoadMint(ctx, last)
	if err != nil {
		return err
	}
	if mint == nil || mint.IsComplete() {
		return apperrors.NewMissingEntityError("pending "+string(models.KindMint), last)
	}

	change, err := e.valueLiquidityChange(ctx, s, ev.PairID(), ev.Amount0, ev.Amount1)
	if err != nil {
		return err
	}

	mint.Sender = strPtr(types.AddressID(ev.Sender))
	mint.Amount0 = models.Priced(change.amount0)
	mint.Amount1 = models.Priced(change.amount1)
	mint.AmountUSD = models.Priced(change.amountUSD)
	mint.AmountSecondary = models.Priced(change.amountSecondary)
	mint.LogIndex = uintPtr(ev.LogIndex)
	if err := s.Save(mint); err != nil {
		return err
	}

	pos, err := ensurePosition(ctx, s, change.pair, mint.To)
	if err != nil {
		return err
	}
	if err := e.snapshotPosition(ctx, s, pos, change.pair, change.token0, change.token1, ev.Context()); err != nil {
		return err
	}
	if err := s.Save(change.pair); err != nil {
		return err
	}

	sc.records = append(sc.records, mint)
	return nil
}

// handleBurn completes the transaction's last burn
func (e *Engine) handleBurn(ctx context.Context, sc *scope, ev *types.Burn) error {
	s := sc.s

	tx, err := e.requireTransaction(ctx, s, ev.TxID())
	if err != nil {
		return err
	}
	last, ok := tx.LastBurn()
	if !ok {
		return apperrors.NewMissingEntityError(string(models.KindBurn), tx.ID)
	}
	burn, err := s.LoadBurn(ctx, last)
	if err != nil {
		return err
	}
	if burn == nil {
		return apperrors.NewMissingEntityError(string(models.KindBurn), last)
	}
	if burn.Sender == nil {
		return apperrors.NewMissingEntityError("Burn sender", last)
	}

	change, err := e.valueLiquidityChange(ctx, s, ev.PairID(), ev.Amount0, ev.Amount1)
	if err != nil {
		return err
	}

	burn.Amount0 = models.Priced(change.amount0)
	burn.Amount1 = models.Priced(change.amount1)
	burn.AmountUSD = models.Priced(change.amountUSD)
	burn.AmountSecondary = models.Priced(change.amountSecondary)
	burn.LogIndex = uintPtr(ev.LogIndex)
	if err := s.Save(burn); err != nil {
		return err
	}

	pos, err := ensurePosition(ctx, s, change.pair, *burn.Sender)
	if err != nil {
		return err
	}
	if err := e.snapshotPosition(ctx, s, pos, change.pair, change.token0, change.token1, ev.Context()); err != nil {
		return err
	}
	if err := s.Save(change.pair); err != nil {
		return err
	}

	sc.records = append(sc.records, burn)
	return nil
}
