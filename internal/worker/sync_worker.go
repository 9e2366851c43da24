// Package worker feeds on-chain pair and factory events to the analytics engine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/amm-analytics/internal/adapter"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/logging"
	"github.com/amm-analytics/internal/retry"
	"github.com/amm-analytics/internal/types"
)

// ChainSource is the chain access the worker needs
type ChainSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]ethtypes.Log, error)
	BlockContext(ctx context.Context, number uint64) (*adapter.BlockContext, error)
}

// EventApplier is the engine side of the worker
type EventApplier interface {
	Apply(ctx context.Context, ev types.Event) error
	MarkScanned(ctx context.Context, block uint64) error
}

// SyncWorker polls the chain and applies its events in canonical order.
// Progress lives in the ledger's ingest cursor, so a restart resumes where the
// last committed event left off and re-fetched events are ignored.
type SyncWorker struct {
	source           ChainSource
	engine           EventApplier
	store            ledger.Store
	decoder          *adapter.Decoder
	factory          common.Address
	startBlock       uint64
	pollInterval     time.Duration
	maxBlocksPerPoll int
	retryConfig      *retry.RetryConfig
	logger           *logging.Logger

	mu                 sync.RWMutex
	running            bool
	stopCh             chan struct{}
	doneCh             chan struct{}
	lastBlockProcessed uint64
	chainHead          uint64
	lastPollTime       time.Time
	lastError          string
	malformedLogs      uint64
}

// SyncWorkerConfig holds configuration for a sync worker
type SyncWorkerConfig struct {
	Source           ChainSource
	Engine           EventApplier
	Store            ledger.Store
	Factory          common.Address
	StartBlock       uint64
	PollInterval     time.Duration // Default: 15s
	MaxBlocksPerPoll int           // Default: 500
	MaxRetries       int           // Attempts per chain read or event commit. Default: 5
	Logger           *logging.Logger
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(cfg *SyncWorkerConfig) (*SyncWorker, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("chain source cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 15 * time.Second
	}
	maxBlocksPerPoll := cfg.MaxBlocksPerPoll
	if maxBlocksPerPoll <= 0 {
		maxBlocksPerPoll = 500
	}

	retryConfig := retry.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryConfig.MaxAttempts = cfg.MaxRetries
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &SyncWorker{
		source:           cfg.Source,
		engine:           cfg.Engine,
		store:            cfg.Store,
		decoder:          adapter.NewDecoder(cfg.Factory),
		factory:          cfg.Factory,
		startBlock:       cfg.StartBlock,
		pollInterval:     pollInterval,
		maxBlocksPerPoll: maxBlocksPerPoll,
		retryConfig:      retryConfig,
		logger:           logger.WithField("component", "sync_worker"),
	}, nil
}

// Start begins polling in the background. A stopped worker, or one whose
// context was cancelled, can be started again.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	w.logger.WithFields(map[string]interface{}{
		"factory":      types.AddressID(w.factory),
		"startBlock":   w.startBlock,
		"pollInterval": w.pollInterval.String(),
	}).Info("Starting sync worker")

	go w.pollLoop(logging.WithLogger(ctx, w.logger), stopCh, doneCh)
	return nil
}

// Stop gracefully stops the sync worker
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running || w.stopCh == nil {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is not running")
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.stopCh = nil
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.Info("Sync worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Sync worker stop timed out")
		return ctx.Err()
	}
}

// pollLoop polls immediately, keeps polling while behind the head, then waits for the ticker
func (w *SyncWorker) pollLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		behind, err := w.PollChain(ctx)
		w.mu.Lock()
		w.lastPollTime = time.Now()
		if err != nil {
			w.lastError = err.Error()
		} else {
			w.lastError = ""
		}
		w.mu.Unlock()

		if err != nil {
			w.logger.WithError(err).Error("Poll failed")
		}

		if err == nil && behind {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
				continue
			}
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Context cancelled, sync worker exiting")
			return
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}

// PollChain applies the events of the next block range and reports whether the
// worker is still behind the chain head afterwards
func (w *SyncWorker) PollChain(ctx context.Context) (bool, error) {
	var head uint64
	err := w.withRetry(ctx, func(ctx context.Context) error {
		var err error
		head, err = w.source.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get chain head: %w", err)
	}
	w.mu.Lock()
	w.chainHead = head
	w.mu.Unlock()

	from, err := w.nextBlock(ctx)
	if err != nil {
		return false, err
	}
	if from > head {
		if from > head+1 {
			w.logger.Warnf("Chain head %d is behind scanned block %d, waiting", head, from-1)
		}
		return false, nil
	}
	to := min(head, from+uint64(w.maxBlocksPerPoll)-1)

	events, err := w.collectEvents(ctx, from, to)
	if err != nil {
		return false, err
	}

	for _, ev := range events {
		block := ev.Context().BlockNumber
		err := w.withRetry(ctx, func(ctx context.Context) error {
			return w.engine.Apply(adapter.WithCallBlock(ctx, block), ev)
		})
		if err != nil {
			return false, err
		}
	}

	if err := w.withRetry(ctx, func(ctx context.Context) error {
		return w.engine.MarkScanned(ctx, to)
	}); err != nil {
		return false, err
	}

	w.mu.Lock()
	w.lastBlockProcessed = to
	w.mu.Unlock()

	w.logger.WithFields(map[string]interface{}{
		"from":   from,
		"to":     to,
		"events": len(events),
		"head":   head,
	}).Info("Processed block range")

	return to < head, nil
}

// nextBlock is the first block not yet scanned
func (w *SyncWorker) nextBlock(ctx context.Context) (uint64, error) {
	status, err := ledger.Reader(w.store).LoadSyncStatus(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load ingest cursor: %w", err)
	}
	next := w.startBlock
	if status != nil && status.ScannedToBlock+1 > next {
		next = status.ScannedToBlock + 1
	}
	return next, nil
}

// collectEvents fetches and decodes the factory and pair events of [from, to].
// Factory logs come first so pairs created inside the range have their own logs fetched.
func (w *SyncWorker) collectEvents(ctx context.Context, from, to uint64) ([]types.Event, error) {
	factoryLogs, err := w.fetchLogs(ctx, from, to, []common.Address{w.factory}, []common.Hash{adapter.TopicPairCreated})
	if err != nil {
		return nil, err
	}

	pairs, err := w.knownPairs(ctx)
	if err != nil {
		return nil, err
	}
	discovered := 0
	for _, log := range factoryLogs {
		ev, err := w.decoder.Decode(log, nil)
		if err != nil || ev == nil {
			continue
		}
		if created, ok := ev.(*types.PairCreated); ok {
			pairs = append(pairs, created.Pair)
			discovered++
		}
	}
	if discovered > 0 {
		w.logger.Infof("Discovered %d new pairs in blocks %d-%d", discovered, from, to)
	}

	pairLogs, err := w.fetchLogs(ctx, from, to, pairs, adapter.PairTopics())
	if err != nil {
		return nil, err
	}

	logs := append(factoryLogs, pairLogs...)
	blocks := make(map[uint64]*adapter.BlockContext)
	events := make([]types.Event, 0, len(logs))

	for _, log := range logs {
		block, ok := blocks[log.BlockNumber]
		if !ok {
			err := w.withRetry(ctx, func(ctx context.Context) error {
				var err error
				block, err = w.source.BlockContext(ctx, log.BlockNumber)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("failed to load block %d: %w", log.BlockNumber, err)
			}
			blocks[log.BlockNumber] = block
		}

		ev, err := w.decoder.Decode(log, block)
		if err != nil {
			w.mu.Lock()
			w.malformedLogs++
			w.mu.Unlock()
			w.logger.WithError(err).WithFields(map[string]interface{}{
				"address":  types.AddressID(log.Address),
				"tx":       strings.ToLower(log.TxHash.Hex()),
				"logIndex": log.Index,
			}).Warn("Dropping malformed log")
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Context().Cursor().Before(events[j].Context().Cursor())
	})
	return events, nil
}

func (w *SyncWorker) fetchLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]ethtypes.Log, error) {
	var logs []ethtypes.Log
	err := w.withRetry(ctx, func(ctx context.Context) error {
		var err error
		logs, err = w.source.FetchLogs(ctx, from, to, addresses, topics)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs %d-%d: %w", from, to, err)
	}
	return logs, nil
}

// knownPairs lists the pairs registered with the factory so far
func (w *SyncWorker) knownPairs(ctx context.Context) ([]common.Address, error) {
	factory, err := ledger.Reader(w.store).LoadFactory(ctx, types.AddressID(w.factory))
	if err != nil {
		return nil, fmt.Errorf("failed to load factory: %w", err)
	}
	if factory == nil {
		return nil, nil
	}
	pairs := make([]common.Address, 0, len(factory.Pairs))
	for _, id := range factory.Pairs {
		pairs = append(pairs, common.HexToAddress(id))
	}
	return pairs, nil
}

// withRetry retries chain reads and ledger commits; chain reads are retried on any error
func (w *SyncWorker) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	config := *w.retryConfig
	isRetryable := config.Retryable
	config.Retryable = func(err error) bool {
		var adapterErr *adapter.AdapterError
		if errors.As(err, &adapterErr) {
			return true
		}
		return isRetryable == nil || isRetryable(err)
	}
	return retry.WithExponentialBackoff(ctx, &config, func(ctx context.Context, attempt int) error {
		return fn(ctx)
	}).Err()
}

// SyncWorkerStatus is the worker's progress report
type SyncWorkerStatus struct {
	Running            bool      `json:"running"`
	LastBlockProcessed uint64    `json:"lastBlockProcessed"`
	ChainHead          uint64    `json:"chainHead"`
	LastPollTime       time.Time `json:"lastPollTime"`
	LastError          string    `json:"lastError,omitempty"`
	MalformedLogs      uint64    `json:"malformedLogs"`
}

// GetStatus returns the current status of the sync worker
func (w *SyncWorker) GetStatus() *SyncWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return &SyncWorkerStatus{
		Running:            w.running,
		LastBlockProcessed: w.lastBlockProcessed,
		ChainHead:          w.chainHead,
		LastPollTime:       w.lastPollTime,
		LastError:          w.lastError,
		MalformedLogs:      w.malformedLogs,
	}
}
