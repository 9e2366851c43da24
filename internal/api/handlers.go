package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/amm-analytics/internal/circuitbreaker"
	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/service"
	"github.com/amm-analytics/internal/types"
	"github.com/amm-analytics/internal/worker"
)

// TransactionView is a transaction with its records resolved
type TransactionView struct {
	*models.Transaction
	MintRecords []*models.Mint `json:"mintRecords"`
	BurnRecords []*models.Burn `json:"burnRecords"`
	SwapRecords []*models.Swap `json:"swapRecords"`
}

// StatsResponse is the body of GET /api/stats
type StatsResponse struct {
	Engine      service.Stats             `json:"engine"`
	Performance *service.PerformanceStats `json:"performance"`
	Entities    map[models.Kind]int64     `json:"entities,omitempty"`
	SyncStatus  *models.SyncStatus        `json:"syncStatus,omitempty"`
	Worker      *worker.SyncWorkerStatus  `json:"worker,omitempty"`
	RPCCircuit  *circuitbreaker.Stats     `json:"rpcCircuit,omitempty"`
}

var countedKinds = []models.Kind{
	models.KindToken,
	models.KindPair,
	models.KindTransaction,
	models.KindMint,
	models.KindBurn,
	models.KindSwap,
	models.KindUser,
	models.KindLiquidityPosition,
	models.KindLiquiditySnapshot,
}

// handleGetBundle handles GET /api/bundle
func (s *Server) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.reader().LoadBundle(r.Context())
	s.respondEntity(w, bundle, err, "bundle", models.BundleID)
}

// handleGetFactory handles GET /api/factory
func (s *Server) handleGetFactory(w http.ResponseWriter, r *http.Request) {
	factory, err := s.reader().LoadFactory(r.Context(), s.factoryID)
	s.respondEntity(w, factory, err, "factory", s.factoryID)
}

// handleGetToken handles GET /api/tokens/{id}
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	id, err := addressParam(r, "id")
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	token, err := s.reader().LoadToken(r.Context(), id)
	s.respondEntity(w, token, err, "token", id)
}

// handleGetPair handles GET /api/pairs/{id}
func (s *Server) handleGetPair(w http.ResponseWriter, r *http.Request) {
	id, err := addressParam(r, "id")
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	pair, err := s.reader().LoadPair(r.Context(), id)
	s.respondEntity(w, pair, err, "pair", id)
}

// handleGetTransaction handles GET /api/transactions/{hash}
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(mux.Vars(r)["hash"])
	if !isTxHash(hash) {
		s.respondServiceError(w, apperrors.NewValidationError("hash", "must be a 0x-prefixed 32-byte hex string"))
		return
	}

	view, err := s.loadTransaction(r.Context(), hash)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if view == nil {
		s.respondServiceError(w, apperrors.NewNotFoundError("transaction", hash))
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) loadTransaction(ctx context.Context, hash string) (*TransactionView, error) {
	reader := s.reader()
	tx, err := reader.LoadTransaction(ctx, hash)
	if err != nil || tx == nil {
		return nil, err
	}

	view := &TransactionView{
		Transaction: tx,
		MintRecords: []*models.Mint{},
		BurnRecords: []*models.Burn{},
		SwapRecords: []*models.Swap{},
	}
	for _, id := range tx.Mints {
		mint, err := reader.LoadMint(ctx, id)
		if err != nil {
			return nil, err
		}
		if mint != nil {
			view.MintRecords = append(view.MintRecords, mint)
		}
	}
	for _, id := range tx.Burns {
		burn, err := reader.LoadBurn(ctx, id)
		if err != nil {
			return nil, err
		}
		if burn != nil {
			view.BurnRecords = append(view.BurnRecords, burn)
		}
	}
	for _, id := range tx.Swaps {
		swap, err := reader.LoadSwap(ctx, id)
		if err != nil {
			return nil, err
		}
		if swap != nil {
			view.SwapRecords = append(view.SwapRecords, swap)
		}
	}
	return view, nil
}

// handleGetPosition handles GET /api/positions/{pair}/{user}
func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	pair, err := addressParam(r, "pair")
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	user, err := addressParam(r, "user")
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	id := models.PositionID(pair, user)
	position, err := s.reader().LoadPosition(r.Context(), id)
	s.respondEntity(w, position, err, "liquidity position", id)
}

// handleGetStats handles GET /api/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := &StatsResponse{}

	if s.engine != nil {
		resp.Engine = s.engine.Stats()
		resp.Performance = s.engine.Performance()
	}

	if counter, ok := s.store.(ledger.Counter); ok {
		resp.Entities = make(map[models.Kind]int64, len(countedKinds))
		for _, kind := range countedKinds {
			n, err := counter.Count(ctx, kind)
			if err != nil {
				s.respondServiceError(w, apperrors.NewStorageError("count", err))
				return
			}
			resp.Entities[kind] = n
		}
	}

	status, err := s.reader().LoadSyncStatus(ctx)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	resp.SyncStatus = status

	if s.worker != nil {
		resp.Worker = s.worker.GetStatus()
	}
	if s.breaker != nil {
		resp.RPCCircuit = s.breaker.GetStats()
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) reader() *ledger.Session {
	return ledger.Reader(s.store)
}

// respondEntity writes a loaded entity, a 404 when it is absent, or the load error
func (s *Server) respondEntity(w http.ResponseWriter, entity interface{}, err error, resource, id string) {
	if err != nil {
		s.logger.WithError(err).WithField("resource", resource).Error("Ledger read failed")
		s.respondServiceError(w, err)
		return
	}
	if isNil(entity) {
		s.respondServiceError(w, apperrors.NewNotFoundError(resource, id))
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

func isNil(entity interface{}) bool {
	switch v := entity.(type) {
	case *models.Bundle:
		return v == nil
	case *models.Factory:
		return v == nil
	case *models.Token:
		return v == nil
	case *models.Pair:
		return v == nil
	case *models.LiquidityPosition:
		return v == nil
	default:
		return entity == nil
	}
}

// addressParam reads a route variable holding an address and returns its entity id form
func addressParam(r *http.Request, name string) (string, error) {
	value := mux.Vars(r)[name]
	if !common.IsHexAddress(value) || !strings.HasPrefix(value, "0x") {
		return "", apperrors.NewValidationError(name, "must be a 0x-prefixed address")
	}
	return types.AddressID(common.HexToAddress(value)), nil
}

func isTxHash(s string) bool {
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
