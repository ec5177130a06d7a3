// Package events applies decoded quest-contract events to the
// persisted store. One handler per event type; handlers exclusively own
// quest and participation writes.
package events

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/quest-indexer/abi"
	"github.com/0xmhha/quest-indexer/contract"
	"github.com/0xmhha/quest-indexer/quest"
	"github.com/0xmhha/quest-indexer/storage"
	"github.com/0xmhha/quest-indexer/types"
)

// Defaults for degraded quest records, used when the canonical contract
// read fails at creation time.
const (
	DefaultQuestWindow     = 7 * 24 * time.Hour
	DefaultClaimWindow     = 24 * time.Hour
	DefaultMaxParticipants = 100
)

// QuestReader reads canonical quest data from the contract.
type QuestReader interface {
	GetQuest(ctx context.Context, questID *big.Int) (*contract.QuestData, error)
}

// Store is the slice of storage the handlers write to.
type Store interface {
	storage.QuestReader
	storage.QuestWriter
	storage.ParticipationWriter
}

// Handler routes decoded logs to per-event state transitions.
type Handler struct {
	store  Store
	reader QuestReader
	logger *zap.Logger
	clock  func() time.Time
}

// NewHandler creates an event handler.
func NewHandler(store Store, reader QuestReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:  store,
		reader: reader,
		logger: logger,
		clock:  time.Now,
	}
}

// SetClock overrides the handler's clock. Used by tests.
func (h *Handler) SetClock(clock func() time.Time) {
	h.clock = clock
}

// HandleLog decodes one raw log and applies the matching handler.
// Unknown events are logged and ignored for forward compatibility;
// callers isolate any returned error to this log and continue the
// batch.
func (h *Handler) HandleLog(ctx context.Context, log ethtypes.Log) error {
	event, err := abi.ParseLog(log)
	if err != nil {
		if errors.Is(err, abi.ErrUnknownEvent) {
			h.logger.Debug("ignoring unknown event",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint64("block", log.BlockNumber),
			)
			unknownEvents.Inc()
			return nil
		}
		decodeFailures.Inc()
		return fmt.Errorf("failed to decode log in tx %s: %w", log.TxHash.Hex(), err)
	}

	switch ev := event.(type) {
	case *abi.QuestCreated:
		err = h.handleQuestCreated(ctx, ev)
	case *abi.RewardClaimed:
		err = h.handleRewardClaimed(ctx, ev)
	case *abi.VestingRewardClaimed:
		err = h.handleVestingRewardClaimed(ctx, ev)
	case *abi.QuestCanceled:
		err = h.handleQuestCanceled(ctx, ev)
	case *abi.RemainingRewardsWithdrawn:
		err = h.handleRemainingRewardsWithdrawn(ctx, ev)
	default:
		return fmt.Errorf("no handler for event %T", event)
	}

	if err == nil {
		eventsProcessed.WithLabelValues(eventLabel(event)).Inc()
	}
	return err
}

func eventLabel(event any) string {
	switch event.(type) {
	case *abi.QuestCreated:
		return abi.EventQuestCreated
	case *abi.RewardClaimed:
		return abi.EventRewardClaimed
	case *abi.VestingRewardClaimed:
		return abi.EventVestingRewardClaimed
	case *abi.QuestCanceled:
		return abi.EventQuestCanceled
	case *abi.RemainingRewardsWithdrawn:
		return abi.EventRemainingRewardsWithdrawn
	}
	return "unknown"
}

// handleQuestCreated builds a quest record from a contract read, or a
// degraded record from the bare event arguments if the read fails.
func (h *Handler) handleQuestCreated(ctx context.Context, ev *abi.QuestCreated) error {
	id := ev.QuestID.String()
	now := h.clock()
	nowMs := now.UnixMilli()

	var q *types.Quest

	data, err := h.reader.GetQuest(ctx, ev.QuestID)
	if err != nil {
		h.logger.Warn("quest contract read failed, storing degraded record",
			zap.String("quest_id", id),
			zap.Error(err),
		)
		degradedQuests.Inc()

		q = &types.Quest{
			ID:              id,
			Sponsor:         ev.Sponsor,
			Title:           fmt.Sprintf("Quest %s", id),
			TotalRewards:    "0",
			RewardPerUser:   "0",
			MaxParticipants: DefaultMaxParticipants,
			StartTime:       nowMs,
			EndTime:         nowMs + DefaultQuestWindow.Milliseconds(),
			ClaimDeadline:   nowMs + (DefaultQuestWindow + DefaultClaimWindow).Milliseconds(),
			Provenance:      types.ProvenanceDegraded,
		}
	} else {
		q = &types.Quest{
			ID:              id,
			Sponsor:         data.Sponsor,
			Title:           data.Title,
			Description:     data.Description,
			QuestType:       data.QuestType,
			TotalRewards:    data.TotalRewards.String(),
			RewardPerUser:   data.RewardPerUser.String(),
			MaxParticipants: data.MaxParticipants,
			StartTime:       data.StartTime,
			EndTime:         data.EndTime,
			ClaimDeadline:   data.ClaimDeadline,
			VestingEnabled:  data.VestingEnabled,
			VestingDuration: data.VestingDuration,
			Provenance:      types.ProvenanceConfirmed,
		}
	}

	q.Status = quest.CalculateStatus(q, now)
	q.TxHash = ev.Raw.TxHash
	q.BlockNumber = ev.Raw.BlockNumber
	q.CreatedAt = nowMs
	q.UpdatedAt = nowMs

	return h.store.SetQuest(ctx, q)
}

// handleRewardClaimed upserts the participation and increments the
// quest's participant count. Repeat claims for the same (quest, user)
// pair overwrite the participation but increment the count again; the
// on-chain contract is the enforcement point for claim uniqueness and
// the participant cap, the indexer mirrors passively.
func (h *Handler) handleRewardClaimed(ctx context.Context, ev *abi.RewardClaimed) error {
	questID := ev.QuestID.String()

	if err := h.upsertParticipation(ctx, questID, ev.Recipient, ev.Amount, ev.Raw); err != nil {
		return err
	}

	q, err := h.store.GetQuest(ctx, questID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("reward claimed for unknown quest",
				zap.String("quest_id", questID),
				zap.String("recipient", ev.Recipient.Hex()),
			)
			return nil
		}
		return err
	}

	now := h.clock()
	q.ParticipantCount++
	q.Status = quest.CalculateStatus(q, now)
	q.UpdatedAt = now.UnixMilli()

	return h.store.SetQuest(ctx, q)
}

// handleVestingRewardClaimed upserts the participation without touching
// the participant count; the initial claim already counted.
func (h *Handler) handleVestingRewardClaimed(ctx context.Context, ev *abi.VestingRewardClaimed) error {
	return h.upsertParticipation(ctx, ev.QuestID.String(), ev.Recipient, ev.Amount, ev.Raw)
}

// handleQuestCanceled forces the terminal canceled status.
func (h *Handler) handleQuestCanceled(ctx context.Context, ev *abi.QuestCanceled) error {
	return h.forceStatus(ctx, ev.QuestID.String(), types.StatusCanceled)
}

// handleRemainingRewardsWithdrawn forces the terminal closed status.
func (h *Handler) handleRemainingRewardsWithdrawn(ctx context.Context, ev *abi.RemainingRewardsWithdrawn) error {
	return h.forceStatus(ctx, ev.QuestID.String(), types.StatusClosed)
}

func (h *Handler) upsertParticipation(ctx context.Context, questID string, recipient common.Address, amount *big.Int, raw ethtypes.Log) error {
	p := &types.Participation{
		ID:          types.ParticipationID(questID, recipient),
		QuestID:     questID,
		UserAddress: recipient,
		Amount:      amount.String(),
		ClaimedAt:   h.clock().UnixMilli(),
		TxHash:      raw.TxHash,
		BlockNumber: raw.BlockNumber,
	}

	return h.store.SetParticipation(ctx, p)
}

func (h *Handler) forceStatus(ctx context.Context, questID string, status types.QuestStatus) error {
	q, err := h.store.GetQuest(ctx, questID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("status event for unknown quest",
				zap.String("quest_id", questID),
				zap.String("status", string(status)),
			)
			return nil
		}
		return err
	}

	q.Status = status
	q.UpdatedAt = h.clock().UnixMilli()

	return h.store.SetQuest(ctx, q)
}
