package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/types"
)

// snapshotNamespace scopes the deterministic snapshot ids
var snapshotNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("amm-analytics/liquidity-position-snapshot"))

func (e *Engine) requirePair(ctx context.Context, s *ledger.Session, id string) (*models.Pair, error) {
	pair, err := s.LoadPair(ctx, id)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, apperrors.NewMissingEntityError(string(models.KindPair), id)
	}
	return pair, nil
}

func (e *Engine) requireTokens(ctx context.Context, s *ledger.Session, pair *models.Pair) (*models.Token, *models.Token, error) {
	token0, err := s.LoadToken(ctx, pair.Token0)
	if err != nil {
		return nil, nil, err
	}
	if token0 == nil {
		return nil, nil, apperrors.NewMissingEntityError(string(models.KindToken), pair.Token0)
	}
	token1, err := s.LoadToken(ctx, pair.Token1)
	if err != nil {
		return nil, nil, err
	}
	if token1 == nil {
		return nil, nil, apperrors.NewMissingEntityError(string(models.KindToken), pair.Token1)
	}
	return token0, token1, nil
}

// requirePriced fails when either token has never been priced in native units
func requirePriced(token0, token1 *models.Token) error {
	if !token0.DerivedNative.Valid {
		return apperrors.NewNullDerivedValueError(token0.ID)
	}
	if !token1.DerivedNative.Valid {
		return apperrors.NewNullDerivedValueError(token1.ID)
	}
	return nil
}

func (e *Engine) requireFactory(ctx context.Context, s *ledger.Session) (*models.Factory, error) {
	factory, err := s.LoadFactory(ctx, e.factoryID)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, apperrors.NewMissingEntityError(string(models.KindFactory), e.factoryID)
	}
	return factory, nil
}

func (e *Engine) requireBundle(ctx context.Context, s *ledger.Session) (*models.Bundle, error) {
	bundle, err := s.LoadBundle(ctx)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, apperrors.NewMissingEntityError(string(models.KindBundle), models.BundleID)
	}
	return bundle, nil
}

func (e *Engine) requireTransaction(ctx context.Context, s *ledger.Session, id string) (*models.Transaction, error) {
	tx, err := s.LoadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, apperrors.NewMissingEntityError(string(models.KindTransaction), id)
	}
	return tx, nil
}

func loadOrCreateTransaction(ctx context.Context, s *ledger.Session, c types.EventContext) (*models.Transaction, error) {
	tx, err := s.LoadTransaction(ctx, c.TxID())
	if err != nil {
		return nil, err
	}
	if tx == nil {
		tx = models.NewTransaction(c.TxID(), c.BlockNumber, c.Timestamp)
	}
	return tx, nil
}

// createUser registers a transfer participant the first time it is seen
func createUser(ctx context.Context, s *ledger.Session, id string) error {
	user, err := s.LoadUser(ctx, id)
	if err != nil || user != nil {
		return err
	}
	return s.Save(&models.User{ID: id})
}

// ensurePosition loads or creates the user's position in pair. A new position
// counts as a new liquidity provider; the caller saves pair.
func ensurePosition(ctx context.Context, s *ledger.Session, pair *models.Pair, user string) (*models.LiquidityPosition, error) {
	id := models.PositionID(pair.ID, user)
	pos, err := s.LoadPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	if pos != nil {
		return pos, nil
	}

	pair.LiquidityProviderCount++
	pos = &models.LiquidityPosition{
		ID:                    id,
		Pair:                  pair.ID,
		User:                  user,
		LiquidityTokenBalance: models.ZeroBD,
	}
	if err := s.Save(pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// snapshotPosition records the position and its pair as of this event
func (e *Engine) snapshotPosition(
	ctx context.Context,
	s *ledger.Session,
	pos *models.LiquidityPosition,
	pair *models.Pair,
	token0, token1 *models.Token,
	c types.EventContext,
) error {
	bundle, err := e.requireBundle(ctx, s)
	if err != nil {
		return err
	}

	snapshot := &models.LiquidityPositionSnapshot{
		ID:                        SnapshotID(pos.ID, c.BlockNumber, c.LogIndex),
		LiquidityPosition:         pos.ID,
		Timestamp:                 c.Timestamp,
		Block:                     c.BlockNumber,
		User:                      pos.User,
		Pair:                      pair.ID,
		Token0PriceUSD:            models.OrZero(token0.DerivedNative).Mul(bundle.NativePriceUSD),
		Token1PriceUSD:            models.OrZero(token1.DerivedNative).Mul(bundle.NativePriceUSD),
		Reserve0:                  pair.Reserve0,
		Reserve1:                  pair.Reserve1,
		ReserveUSD:                pair.ReserveUSD,
		LiquidityTokenTotalSupply: pair.TotalSupply,
		LiquidityTokenBalance:     pos.LiquidityTokenBalance,
	}
	return s.Save(snapshot)
}

// SnapshotID is the deterministic id of a position snapshot taken at one event
func SnapshotID(positionID string, block uint64, logIndex uint) string {
	key := fmt.Sprintf("%s-%d-%d", positionID, block, logIndex)
	return uuid.NewSHA1(snapshotNamespace, []byte(key)).String()
}

func strPtr(s string) *string {
	return &s
}

func uintPtr(v uint) *uint {
	return &v
}
