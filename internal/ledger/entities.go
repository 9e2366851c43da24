package ledger

import (
	"context"

	"github.com/amm-analytics/internal/models"
)

// Typed loaders return (nil, nil) when the entity does not exist.

func loadEntity[T any](ctx context.Context, s *Session, kind models.Kind, id string) (*T, error) {
	var v T
	found, err := s.load(ctx, kind, id, &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func (s *Session) LoadToken(ctx context.Context, id string) (*models.Token, error) {
	return loadEntity[models.Token](ctx, s, models.KindToken, id)
}

func (s *Session) LoadPair(ctx context.Context, id string) (*models.Pair, error) {
	return loadEntity[models.Pair](ctx, s, models.KindPair, id)
}

func (s *Session) LoadBundle(ctx context.Context) (*models.Bundle, error) {
	return loadEntity[models.Bundle](ctx, s, models.KindBundle, models.BundleID)
}

func (s *Session) LoadFactory(ctx context.Context, id string) (*models.Factory, error) {
	return loadEntity[models.Factory](ctx, s, models.KindFactory, id)
}

func (s *Session) LoadTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return loadEntity[models.Transaction](ctx, s, models.KindTransaction, id)
}

func (s *Session) LoadMint(ctx context.Context, id string) (*models.Mint, error) {
	return loadEntity[models.Mint](ctx, s, models.KindMint, id)
}

func (s *Session) LoadBurn(ctx context.Context, id string) (*models.Burn, error) {
	return loadEntity[models.Burn](ctx, s, models.KindBurn, id)
}

func (s *Session) LoadSwap(ctx context.Context, id string) (*models.Swap, error) {
	return loadEntity[models.Swap](ctx, s, models.KindSwap, id)
}

func (s *Session) LoadUser(ctx context.Context, id string) (*models.User, error) {
	return loadEntity[models.User](ctx, s, models.KindUser, id)
}

func (s *Session) LoadPosition(ctx context.Context, id string) (*models.LiquidityPosition, error) {
	return loadEntity[models.LiquidityPosition](ctx, s, models.KindLiquidityPosition, id)
}

func (s *Session) LoadSnapshot(ctx context.Context, id string) (*models.LiquidityPositionSnapshot, error) {
	return loadEntity[models.LiquidityPositionSnapshot](ctx, s, models.KindLiquiditySnapshot, id)
}

func (s *Session) LoadSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	return loadEntity[models.SyncStatus](ctx, s, models.KindSyncStatus, models.SyncStatusID)
}

// Reader opens a throwaway session for read-only lookups against store
func Reader(store Store) *Session {
	return NewSession(store)
}
