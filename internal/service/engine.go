package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/logging"
	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/pricing"
	"github.com/amm-analytics/internal/types"
)

// BalanceReader reads LP token balances from the pair contract
type BalanceReader interface {
	BalanceOf(ctx context.Context, lpToken, account common.Address) (*big.Int, error)
}

// TokenMetadata is the ERC-20 metadata recorded when a token is first seen
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals int
}

// TokenInspector reads ERC-20 metadata
type TokenInspector interface {
	TokenMetadata(ctx context.Context, token common.Address) (TokenMetadata, error)
}

// RecordSink receives finalized swaps, mints and burns after their event commits
type RecordSink interface {
	Record(ctx context.Context, records []models.Entity) error
}

// EngineDeps wires the engine's collaborators. Sink and Logger are optional.
type EngineDeps struct {
	Store       ledger.Store
	Pricing     *pricing.Config
	Locator     pricing.PairLocator
	Balances    BalanceReader
	Tokens      TokenInspector
	NativePrice pricing.NativePriceSource
	Sink        RecordSink
	FactoryID   string
	Logger      *logging.Logger
}

// Engine applies decoded pair and factory events to the ledger, one at a time
// and in canonical order. Each event commits atomically together with the
// ingest cursor, so an event at or before the cursor is never applied twice.
type Engine struct {
	mu sync.Mutex

	store       ledger.Store
	oracle      *pricing.Oracle
	accountant  *pricing.Accountant
	balances    BalanceReader
	tokens      TokenInspector
	nativePrice pricing.NativePriceSource
	sink        RecordSink
	factoryID   string
	logger      *logging.Logger
	monitor     *PerformanceMonitor

	stats Stats
}

// NewEngine creates an engine
func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	nativePrice := deps.NativePrice
	if nativePrice == nil {
		nativePrice = pricing.FixedPrice{Price: models.OneBD}
	}

	return &Engine{
		store:       deps.Store,
		oracle:      pricing.NewOracle(deps.Pricing, deps.Locator),
		accountant:  pricing.NewAccountant(deps.Pricing),
		balances:    deps.Balances,
		tokens:      deps.Tokens,
		nativePrice: nativePrice,
		sink:        deps.Sink,
		factoryID:   strings.ToLower(deps.FactoryID),
		logger:      logger.WithField("component", "engine"),
		monitor:     NewPerformanceMonitor(),
		stats:       newStats(),
	}
}

// scope is the per-event working set
type scope struct {
	s       *ledger.Session
	records []models.Entity
}

// Apply processes one event. Missing entities, failed contract calls and
// unpriced tokens abandon the event without touching the ledger and return
// nil; the ingest cursor still advances past it. Storage failures are returned.
func (e *Engine) Apply(ctx context.Context, ev types.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	evCtx := ev.Context()
	cursor := evCtx.Cursor()

	status, err := ledger.NewSession(e.store).LoadSyncStatus(ctx)
	if err != nil {
		return err
	}
	if status == nil {
		status = &models.SyncStatus{ID: models.SyncStatusID}
	}
	if status.Seen(cursor) {
		e.stats.Duplicates++
		e.logger.WithFields(eventFields(ev)).Debug("Event already applied, ignoring")
		return nil
	}

	sc := &scope{s: ledger.NewSession(e.store)}
	skipped := false
	if err := e.dispatch(ctx, sc, ev); err != nil {
		sc.s.Discard()
		if !apperrors.IsSkippable(err) {
			return fmt.Errorf("apply %s at %s: %w", ev.Kind(), cursor, err)
		}
		e.recordSkip(ev, err)
		skipped = true
		sc = &scope{s: ledger.NewSession(e.store)}
	}

	status.LastSyncedBlock = cursor.BlockNumber
	status.LastLogIndex = cursor.LogIndex
	status.HasEvent = true
	status.LastSyncAt = time.Now().UTC()
	if err := sc.s.Save(status); err != nil {
		return err
	}

	if err := sc.s.Commit(ctx); err != nil {
		return fmt.Errorf("apply %s at %s: %w", ev.Kind(), cursor, err)
	}

	e.stats.LastCursor = cursor
	if !skipped {
		e.stats.Applied++
		e.stats.ByKind[ev.Kind()]++
	}
	e.monitor.RecordEvent(ev.Kind(), time.Since(start))

	e.forward(ctx, sc.records)
	return nil
}

// MarkScanned records that every block up to block has been scanned
func (e *Engine) MarkScanned(ctx context.Context, block uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := ledger.NewSession(e.store)
	status, err := s.LoadSyncStatus(ctx)
	if err != nil {
		return err
	}
	if status == nil {
		status = &models.SyncStatus{ID: models.SyncStatusID}
	}
	if block <= status.ScannedToBlock {
		return nil
	}
	status.ScannedToBlock = block
	status.LastSyncAt = time.Now().UTC()
	if err := s.Save(status); err != nil {
		return err
	}
	return s.Commit(ctx)
}

func (e *Engine) dispatch(ctx context.Context, sc *scope, ev types.Event) error {
	switch ev := ev.(type) {
	case *types.Transfer:
		return e.handleTransfer(ctx, sc, ev)
	case *types.Sync:
		return e.handleSync(ctx, sc, ev)
	case *types.Mint:
		return e.handleMint(ctx, sc, ev)
	case *types.Burn:
		return e.handleBurn(ctx, sc, ev)
	case *types.Swap:
		return e.handleSwap(ctx, sc, ev)
	case *types.PairCreated:
		return e.handlePairCreated(ctx, sc, ev)
	default:
		return apperrors.NewValidationError("event", fmt.Sprintf("unsupported event %T", ev))
	}
}

func (e *Engine) recordSkip(ev types.Event, err error) {
	category := apperrors.CategoryOf(err)
	e.stats.Skipped[category]++

	fields := eventFields(ev)
	fields["reason"] = string(category)
	e.logger.WithFields(fields).WithError(err).Warn("Skipping event")
}

func (e *Engine) forward(ctx context.Context, records []models.Entity) {
	if e.sink == nil || len(records) == 0 {
		return
	}
	if err := e.sink.Record(ctx, records); err != nil {
		e.stats.SinkErrors++
		e.logger.WithError(err).WithField("records", len(records)).Warn("Failed to forward records")
	}
}

func eventFields(ev types.Event) map[string]interface{} {
	c := ev.Context()
	return map[string]interface{}{
		"event":    string(ev.Kind()),
		"tx":       c.TxID(),
		"logIndex": c.LogIndex,
		"block":    c.BlockNumber,
		"pair":     c.PairID(),
	}
}

// Stats counts what the engine did with the events it was given
type Stats struct {
	Applied    uint64                             `json:"applied"`
	Duplicates uint64                             `json:"duplicates"`
	SinkErrors uint64                             `json:"sinkErrors"`
	ByKind     map[types.EventKind]uint64         `json:"byKind"`
	Skipped    map[apperrors.ErrorCategory]uint64 `json:"skipped"`
	LastCursor types.Cursor                       `json:"lastCursor"`
}

func newStats() Stats {
	return Stats{
		ByKind:  make(map[types.EventKind]uint64),
		Skipped: make(map[apperrors.ErrorCategory]uint64),
	}
}

// Stats returns a copy of the engine counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.stats
	out.ByKind = make(map[types.EventKind]uint64, len(e.stats.ByKind))
	for k, v := range e.stats.ByKind {
		out.ByKind[k] = v
	}
	out.Skipped = make(map[apperrors.ErrorCategory]uint64, len(e.stats.Skipped))
	for k, v := range e.stats.Skipped {
		out.Skipped[k] = v
	}
	return out
}

// Performance returns apply latency statistics
func (e *Engine) Performance() *PerformanceStats {
	return e.monitor.GetStats()
}
