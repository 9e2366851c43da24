package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/types"
)

// handlePairCreated registers a new pair with the factory, creating the
// factory, the bundle and both tokens on first sight
func (e *Engine) handlePairCreated(ctx context.Context, sc *scope, ev *types.PairCreated) error {
	s := sc.s
	pairID := types.AddressID(ev.Pair)

	exists, err := s.Exists(ctx, models.KindPair, pairID)
	if err != nil || exists {
		return err
	}

	factory, err := s.LoadFactory(ctx, e.factoryID)
	if err != nil {
		return err
	}
	if factory == nil {
		factory = models.NewFactory(e.factoryID)
	}

	bundleExists, err := s.Exists(ctx, models.KindBundle, models.BundleID)
	if err != nil {
		return err
	}
	if !bundleExists {
		if err := s.Save(models.NewBundle(models.ZeroBD)); err != nil {
			return err
		}
	}

	token0, err := e.ensureToken(ctx, s, ev.Token0)
	if err != nil {
		return err
	}
	token1, err := e.ensureToken(ctx, s, ev.Token1)
	if err != nil {
		return err
	}

	pair := models.NewPair(pairID, token0.ID, token1.ID)
	pair.CreatedAtTimestamp = ev.Timestamp
	pair.CreatedAtBlockNumber = ev.BlockNumber

	factory.PairCount++
	factory.Pairs = append(factory.Pairs, pairID)

	for _, entity := range []models.Entity{token0, token1, pair, factory} {
		if err := s.Save(entity); err != nil {
			return err
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"pair":   pairID,
		"token0": token0.ID,
		"token1": token1.ID,
		"block":  ev.BlockNumber,
	}).Info("Pair registered")
	return nil
}

// ensureToken loads a token or creates it from its on-chain metadata
func (e *Engine) ensureToken(ctx context.Context, s *ledger.Session, addr common.Address) (*models.Token, error) {
	id := types.AddressID(addr)
	token, err := s.LoadToken(ctx, id)
	if err != nil || token != nil {
		return token, err
	}

	meta, err := e.tokens.TokenMetadata(ctx, addr)
	if err != nil {
		return nil, apperrors.NewExternalCallError("token metadata "+id, err)
	}
	token = models.NewToken(id, meta.Decimals)
	token.Symbol = meta.Symbol
	token.Name = meta.Name
	return token, nil
}
