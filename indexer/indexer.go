// Package indexer orchestrates quest event ingestion: one-shot catch-up
// from the persisted cursor to the chain head, followed by timer-driven
// polling. The service exclusively owns cursor writes.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/quest-indexer/quest"
	"github.com/0xmhha/quest-indexer/retry"
	"github.com/0xmhha/quest-indexer/storage"
	"github.com/0xmhha/quest-indexer/types"
)

// Errors surfaced to the operational surface.
var (
	// ErrBusy is returned when a reindex is requested while a run is in
	// flight. Requests are rejected, not queued.
	ErrBusy = errors.New("indexer run already in progress")

	// ErrNotInitialized is returned when no cursor has been persisted yet.
	ErrNotInitialized = errors.New("indexer not initialized")
)

// DefaultBatchSize is the fixed block-range chunk processed as one
// retry/checkpoint unit.
const DefaultBatchSize = 100

// DefaultPollInterval is the default spacing between poll ticks.
const DefaultPollInterval = 15 * time.Second

// ChainSource provides the chain head and raw event logs.
type ChainSource interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, address common.Address, fromBlock, toBlock uint64) ([]ethtypes.Log, error)
}

// LogHandler applies one raw log to the store.
type LogHandler interface {
	HandleLog(ctx context.Context, log ethtypes.Log) error
}

// Store is the slice of storage the indexer needs.
type Store interface {
	storage.CursorReader
	storage.CursorWriter
	storage.QuestReader
	storage.QuestWriter
}

// Config holds indexer configuration.
type Config struct {
	// ContractAddress is the quest contract emitting the events.
	ContractAddress common.Address

	// DeploymentBlock is the block the contract was deployed at;
	// ingestion never starts below it.
	DeploymentBlock uint64

	// BatchSize is the number of blocks per batch (default 100).
	BatchSize uint64

	// PollInterval is the spacing between poll ticks.
	PollInterval time.Duration

	// Retry is the policy wrapping every upstream RPC call.
	Retry retry.Config
}

// Validate checks the configuration. A missing contract address is
// fatal at startup.
func (c *Config) Validate() error {
	if c.ContractAddress == (common.Address{}) {
		return fmt.Errorf("contract address is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return c.Retry.Validate()
}

// DefaultConfig returns a config with the standard batch size, poll
// interval, and retry policy for the given contract.
func DefaultConfig(address common.Address, deploymentBlock uint64) *Config {
	return &Config{
		ContractAddress: address,
		DeploymentBlock: deploymentBlock,
		BatchSize:       DefaultBatchSize,
		PollInterval:    DefaultPollInterval,
		Retry:           retry.DefaultConfig(),
	}
}

// Status is the operational snapshot exposed by the status probe.
type Status struct {
	Running            bool   `json:"running"`
	Polling            bool   `json:"polling"`
	LastProcessedBlock uint64 `json:"lastProcessedBlock"`
	CurrentHeight      uint64 `json:"currentHeight"`
	ContractAddress    string `json:"contractAddress"`
	DeploymentBlock    uint64 `json:"deploymentBlock"`
}

// Service is the event indexer. Construct one instance at process
// startup and pass it by reference; there is no ambient singleton.
//
// Mutual exclusion between runs is a single in-process compare-and-swap
// flag. Running two services against the same persisted cursor is
// unsafe; a horizontally scaled deployment needs a distributed lock
// keyed on the contract address.
type Service struct {
	source  ChainSource
	store   Store
	handler LogHandler
	config  *Config
	logger  *zap.Logger
	clock   func() time.Time

	running atomic.Bool

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
	polling    atomic.Bool
}

// New creates an indexer service.
func New(source ChainSource, store Store, handler LogHandler, cfg *Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		source:  source,
		store:   store,
		handler: handler,
		config:  cfg,
		logger:  logger,
		clock:   time.Now,
	}, nil
}

// SetClock overrides the service clock. Used by tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Initialize persists the indexer configuration as the cursor record.
// Idempotent: an existing cursor is left untouched.
func (s *Service) Initialize(ctx context.Context) error {
	cursor, err := s.store.GetCursor(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to read cursor: %w", err)
		}

		last := uint64(0)
		if s.config.DeploymentBlock > 0 {
			last = s.config.DeploymentBlock - 1
		}

		cursor = &types.IndexerCursor{
			LastProcessedBlock:  last,
			ContractAddress:     s.config.ContractAddress,
			ContractDeployBlock: s.config.DeploymentBlock,
			LastUpdated:         s.clock().UnixMilli(),
		}

		if err := s.store.SetCursor(ctx, cursor); err != nil {
			return fmt.Errorf("failed to initialize cursor: %w", err)
		}

		s.logger.Info("indexer initialized",
			zap.String("contract", s.config.ContractAddress.Hex()),
			zap.Uint64("deployment_block", s.config.DeploymentBlock),
		)
		return nil
	}

	if cursor.ContractAddress != s.config.ContractAddress {
		s.logger.Warn("cursor belongs to a different contract",
			zap.String("cursor_contract", cursor.ContractAddress.Hex()),
			zap.String("configured_contract", s.config.ContractAddress.Hex()),
		)
	}

	s.logger.Info("indexer already initialized",
		zap.Uint64("last_processed_block", cursor.LastProcessedBlock),
	)
	return nil
}

// CatchUp ingests from the cursor to the current chain head. If a run
// is already in flight the call is a no-op with a log.
func (s *Service) CatchUp(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("catch-up already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	return s.catchUp(ctx)
}

// catchUp runs the catch-up loop. Caller holds the run guard.
func (s *Service) catchUp(ctx context.Context) error {
	cursor, err := s.store.GetCursor(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotInitialized
		}
		return fmt.Errorf("failed to read cursor: %w", err)
	}

	var head uint64
	err = retry.Do(ctx, s.config.Retry, s.logger, "get chain head", func(ctx context.Context) error {
		var err error
		head, err = s.source.GetLatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}
	headHeight.Set(float64(head))

	start := cursor.LastProcessedBlock + 1
	if start < cursor.ContractDeployBlock {
		start = cursor.ContractDeployBlock
	}

	if start > head {
		s.logger.Debug("caught up with chain",
			zap.Uint64("cursor", cursor.LastProcessedBlock),
			zap.Uint64("head", head),
		)
		return nil
	}

	s.logger.Info("starting catch-up",
		zap.Uint64("from", start),
		zap.Uint64("to", head),
		zap.Uint64("batch_size", s.config.BatchSize),
	)

	return s.IndexBlockRange(ctx, start, head)
}

// IndexBlockRange ingests [from, to] in fixed-size batches, strictly in
// ascending block order, advancing the cursor to each batch end as it
// completes. On success the cursor rests at exactly to.
//
// A batch whose log fetch exhausts its retries is skipped and logged as
// an error, and the cursor still advances past it: availability over
// completeness.
func (s *Service) IndexBlockRange(ctx context.Context, from, to uint64) error {
	for batchStart := from; batchStart <= to; {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchEnd := batchStart + s.config.BatchSize - 1
		if batchEnd > to {
			batchEnd = to
		}

		s.processBatch(ctx, batchStart, batchEnd)

		if err := s.advanceCursor(ctx, batchEnd); err != nil {
			return err
		}

		batchStart = batchEnd + 1
	}

	return nil
}

// processBatch fetches and dispatches the logs of one batch. Per-log
// failures are isolated; they never abort the batch.
func (s *Service) processBatch(ctx context.Context, batchStart, batchEnd uint64) {
	var logs []ethtypes.Log
	err := retry.Do(ctx, s.config.Retry, s.logger, "fetch logs", func(ctx context.Context) error {
		var err error
		logs, err = s.source.FilterLogs(ctx, s.config.ContractAddress, batchStart, batchEnd)
		return err
	})
	if err != nil {
		s.logger.Error("skipping batch after exhausted retries",
			zap.Uint64("from", batchStart),
			zap.Uint64("to", batchEnd),
			zap.Error(err),
		)
		batchesSkipped.Inc()
		return
	}

	for _, log := range logs {
		if err := s.handler.HandleLog(ctx, log); err != nil {
			s.logger.Error("failed to process log",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint64("block", log.BlockNumber),
				zap.Error(err),
			)
		}
	}

	batchesProcessed.Inc()
	s.logger.Debug("processed batch",
		zap.Uint64("from", batchStart),
		zap.Uint64("to", batchEnd),
		zap.Int("logs", len(logs)),
	)
}

func (s *Service) advanceCursor(ctx context.Context, block uint64) error {
	cursor, err := s.store.GetCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cursor: %w", err)
	}

	cursor.LastProcessedBlock = block
	cursor.LastUpdated = s.clock().UnixMilli()

	if err := s.store.SetCursor(ctx, cursor); err != nil {
		return fmt.Errorf("failed to advance cursor to %d: %w", block, err)
	}

	cursorHeight.Set(float64(block))
	return nil
}

// StartPolling begins the repeating poll timer. Each tick runs the
// catch-up logic guarded by the run flag, then recomputes quest
// statuses. A tick that finds the guard held skips; nothing queues.
func (s *Service) StartPolling(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.config.PollInterval
	}

	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	if s.pollCancel != nil {
		s.logger.Info("polling already started")
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel
	s.polling.Store(true)

	s.logger.Info("starting polling", zap.Duration("interval", interval))

	// The loop context only gates future ticks; an in-flight tick runs
	// on the service lifetime context and completes after StopPolling.
	go s.pollLoop(ctx, loopCtx, interval)
}

func (s *Service) pollLoop(ctx, loopCtx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("previous run still in flight, skipping tick")
		ticksSkipped.Inc()
		return
	}
	defer s.running.Store(false)

	if err := s.catchUp(ctx); err != nil {
		s.logger.Error("poll tick catch-up failed", zap.Error(err))
	}

	if err := s.UpdateQuestStatuses(ctx); err != nil {
		s.logger.Error("quest status recompute failed", zap.Error(err))
	}
}

// StopPolling cancels the poll timer. It does not interrupt a tick
// already in flight.
func (s *Service) StopPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	if s.pollCancel == nil {
		return
	}

	s.pollCancel()
	s.pollCancel = nil
	s.polling.Store(false)

	s.logger.Info("polling stopped")
}

// ReindexFromBlock rewinds the cursor to n-1 and re-runs catch-up.
// Fails with ErrBusy while a run is in flight.
func (s *Service) ReindexFromBlock(ctx context.Context, n uint64) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.running.Store(false)

	cursor, err := s.store.GetCursor(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotInitialized
		}
		return fmt.Errorf("failed to read cursor: %w", err)
	}

	last := uint64(0)
	if n > 0 {
		last = n - 1
	}
	cursor.LastProcessedBlock = last
	cursor.LastUpdated = s.clock().UnixMilli()

	if err := s.store.SetCursor(ctx, cursor); err != nil {
		return fmt.Errorf("failed to rewind cursor to %d: %w", last, err)
	}

	s.logger.Info("reindexing", zap.Uint64("from_block", n))

	return s.catchUp(ctx)
}

// UpdateQuestStatuses recomputes every quest's time-derived status and
// persists only the ones that changed. Terminal statuses never change.
func (s *Service) UpdateQuestStatuses(ctx context.Context) error {
	quests, err := s.store.ListQuests(ctx)
	if err != nil {
		return fmt.Errorf("failed to list quests: %w", err)
	}

	now := s.clock()
	updated := 0

	for _, q := range quests {
		newStatus := quest.CalculateStatus(q, now)
		if newStatus == q.Status {
			continue
		}

		q.Status = newStatus
		q.UpdatedAt = now.UnixMilli()

		if err := s.store.SetQuest(ctx, q); err != nil {
			s.logger.Error("failed to persist recomputed status",
				zap.String("quest_id", q.ID),
				zap.String("status", string(newStatus)),
				zap.Error(err),
			)
			continue
		}

		updated++
		statusUpdates.Inc()
	}

	if updated > 0 {
		s.logger.Info("quest statuses recomputed", zap.Int("updated", updated))
	}

	return nil
}

// Status returns the operational snapshot. The chain head is fetched
// best-effort; it reads 0 when the upstream is unreachable.
func (s *Service) Status(ctx context.Context) *Status {
	status := &Status{
		Running:         s.running.Load(),
		Polling:         s.polling.Load(),
		ContractAddress: s.config.ContractAddress.Hex(),
		DeploymentBlock: s.config.DeploymentBlock,
	}

	if cursor, err := s.store.GetCursor(ctx); err == nil {
		status.LastProcessedBlock = cursor.LastProcessedBlock
	}

	if head, err := s.source.GetLatestBlockNumber(ctx); err == nil {
		status.CurrentHeight = head
	}

	return status
}
