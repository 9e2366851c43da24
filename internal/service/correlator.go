package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/types"
)

// lockedLiquidity is the LP amount burned to the zero address on a pair's first mint
var lockedLiquidity = big.NewInt(1000)

// handleTransfer stitches LP token transfers into logical mints and burns.
//
// Within one transaction there is at most one pending Mint (no sender yet)
// and at most one Burn waiting for its zero-address leg.
func (e *Engine) handleTransfer(ctx context.Context, sc *scope, ev *types.Transfer) error {
	if ev.To == types.ZeroAddress && ev.Value != nil && ev.Value.Cmp(lockedLiquidity) == 0 {
		return nil
	}

	s := sc.s
	c := ev.Context()

	if _, err := e.requireFactory(ctx, s); err != nil {
		return err
	}

	from := types.AddressID(ev.From)
	to := types.AddressID(ev.To)
	if err := createUser(ctx, s, from); err != nil {
		return err
	}
	if err := createUser(ctx, s, to); err != nil {
		return err
	}

	pair, err := e.requirePair(ctx, s, c.PairID())
	if err != nil {
		return err
	}

	value := models.ConvertTokenToDecimal(ev.Value, models.LPTokenDecimals)

	tx, err := loadOrCreateTransaction(ctx, s, c)
	if err != nil {
		return err
	}

	// mint leg
	if ev.From == types.ZeroAddress {
		pair.TotalSupply = pair.TotalSupply.Add(value)

		open, err := lastMintPending(ctx, s, tx)
		if err != nil {
			return err
		}
		if !open {
			mint := &models.Mint{
				ID:          models.RecordID(tx.ID, len(tx.Mints)),
				Transaction: tx.ID,
				Pair:        pair.ID,
				Timestamp:   tx.Timestamp,
				To:          to,
				Liquidity:   value,
			}
			if err := s.Save(mint); err != nil {
				return err
			}
			tx.Mints = append(tx.Mints, mint.ID)
		}
	}

	// LP tokens sent to the pair ahead of a burn
	if to == pair.ID {
		if err := openDirectSendBurn(ctx, s, tx, pair, from, to, value); err != nil {
			return err
		}
	}

	// burn leg
	if ev.To == types.ZeroAddress && from == pair.ID {
		pair.TotalSupply = pair.TotalSupply.Sub(value)
		if err := e.finalizeBurnLeg(ctx, s, tx, pair, value); err != nil {
			return err
		}
	}

	if err := s.Save(tx); err != nil {
		return err
	}

	if ev.From != types.ZeroAddress && from != pair.ID {
		if err := e.refreshPosition(ctx, s, pair, ev.From, c); err != nil {
			return err
		}
	}
	if ev.To != types.ZeroAddress && to != pair.ID {
		if err := e.refreshPosition(ctx, s, pair, ev.To, c); err != nil {
			return err
		}
	}

	return s.Save(pair)
}

// lastMintPending reports whether the transaction's last mint still waits for its Mint event
func lastMintPending(ctx context.Context, s *ledger.Session, tx *models.Transaction) (bool, error) {
	last, ok := tx.LastMint()
	if !ok {
		return false, nil
	}
	mint, err := s.LoadMint(ctx, last)
	if err != nil {
		return false, err
	}
	return mint == nil || !mint.IsComplete(), nil
}

// openDirectSendBurn records LP tokens sent to the pair before its burn leg.
// A second send while a burn is still open adds to that burn.
func openDirectSendBurn(ctx context.Context, s *ledger.Session, tx *models.Transaction, pair *models.Pair, from, to string, value decimal.Decimal) error {
	if last, ok := tx.LastBurn(); ok {
		open, err := s.LoadBurn(ctx, last)
		if err != nil {
			return err
		}
		if open != nil && open.NeedsComplete {
			open.Liquidity = open.Liquidity.Add(value)
			return s.Save(open)
		}
	}

	burn := &models.Burn{
		ID:            models.RecordID(tx.ID, len(tx.Burns)),
		Transaction:   tx.ID,
		Pair:          pair.ID,
		Timestamp:     tx.Timestamp,
		Liquidity:     value,
		Sender:        strPtr(from),
		To:            strPtr(to),
		NeedsComplete: true,
	}
	if err := s.Save(burn); err != nil {
		return err
	}
	tx.Burns = append(tx.Burns, burn.ID)
	return nil
}

// finalizeBurnLeg resolves the burn record for a pair→zero transfer, reusing a
// burn opened by a direct send, and absorbs a pending fee mint into it
func (e *Engine) finalizeBurnLeg(ctx context.Context, s *ledger.Session, tx *models.Transaction, pair *models.Pair, value decimal.Decimal) error {
	var burn *models.Burn
	reuse := false

	if last, ok := tx.LastBurn(); ok {
		current, err := s.LoadBurn(ctx, last)
		if err != nil {
			return err
		}
		if current == nil {
			return apperrors.NewMissingEntityError(string(models.KindBurn), last)
		}
		if current.NeedsComplete {
			burn, reuse = current, true
		}
	}
	if burn == nil {
		burn = &models.Burn{
			ID:          models.RecordID(tx.ID, len(tx.Burns)),
			Transaction: tx.ID,
			Pair:        pair.ID,
			Timestamp:   tx.Timestamp,
			Liquidity:   value,
		}
	}

	// a pending mint here is the protocol fee minted during the burn
	if last, ok := tx.LastMint(); ok {
		mint, err := s.LoadMint(ctx, last)
		if err != nil {
			return err
		}
		if mint != nil && !mint.IsComplete() {
			burn.FeeTo = strPtr(mint.To)
			burn.FeeLiquidity = models.Priced(mint.Liquidity)
			s.Delete(models.KindMint, mint.ID)
			tx.Mints = tx.Mints[:len(tx.Mints)-1]
		}
	}

	burn.NeedsComplete = false
	if reuse {
		tx.Burns[len(tx.Burns)-1] = burn.ID
	} else {
		tx.Burns = append(tx.Burns, burn.ID)
	}
	return s.Save(burn)
}

// refreshPosition sets the user's position to the live LP balance and snapshots it
func (e *Engine) refreshPosition(ctx context.Context, s *ledger.Session, pair *models.Pair, user common.Address, c types.EventContext) error {
	pos, err := ensurePosition(ctx, s, pair, types.AddressID(user))
	if err != nil {
		return err
	}

	balance, err := e.balances.BalanceOf(ctx, common.HexToAddress(pair.ID), user)
	if err != nil {
		return apperrors.NewExternalCallError("balanceOf", err)
	}
	pos.LiquidityTokenBalance = models.ConvertTokenToDecimal(balance, models.LPTokenDecimals)
	if err := s.Save(pos); err != nil {
		return err
	}

	token0, token1, err := e.requireTokens(ctx, s, pair)
	if err != nil {
		return err
	}
	return e.snapshotPosition(ctx, s, pos, pair, token0, token1, c)
}
