// Package testutil provides shared fixtures for quest-indexer tests.
package testutil

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/quest-indexer/abi"
	"github.com/0xmhha/quest-indexer/types"
)

// NewTestLogger creates a test logger that doesn't output to console
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// NewTestQuest creates a quest fixture with a one-week active window
// around now and sane reward fields.
func NewTestQuest(id string, now time.Time) *types.Quest {
	return &types.Quest{
		ID:              id,
		Sponsor:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Title:           "Quest " + id,
		QuestType:       "social",
		TotalRewards:    "1000000",
		RewardPerUser:   "10000",
		MaxParticipants: 100,
		StartTime:       now.Add(-time.Hour).UnixMilli(),
		EndTime:         now.Add(6 * 24 * time.Hour).UnixMilli(),
		ClaimDeadline:   now.Add(7 * 24 * time.Hour).UnixMilli(),
		Status:          types.StatusActive,
		Provenance:      types.ProvenanceConfirmed,
		CreatedAt:       now.UnixMilli(),
		UpdatedAt:       now.UnixMilli(),
	}
}

// NewTestParticipation creates a participation fixture for the given
// quest and user.
func NewTestParticipation(questID string, user common.Address, now time.Time) *types.Participation {
	return &types.Participation{
		ID:          types.ParticipationID(questID, user),
		QuestID:     questID,
		UserAddress: user,
		Amount:      "10000",
		ClaimedAt:   now.UnixMilli(),
		BlockNumber: 100,
	}
}

// uintTopic encodes an unsigned integer as an indexed topic word.
func uintTopic(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

// addressTopic encodes an address as an indexed topic word.
func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// amountData encodes an amount as one 32-byte data word.
func amountData(amount *big.Int) []byte {
	return common.BigToHash(amount).Bytes()
}

// QuestCreatedLog builds a raw QuestCreated log.
func QuestCreatedLog(questID uint64, sponsor common.Address, block uint64) ethtypes.Log {
	return ethtypes.Log{
		Topics:      []common.Hash{abi.QuestCreatedTopic, uintTopic(questID), addressTopic(sponsor)},
		BlockNumber: block,
		TxHash:      common.HexToHash("0xaaaa"),
	}
}

// RewardClaimedLog builds a raw RewardClaimed log.
func RewardClaimedLog(questID uint64, recipient common.Address, amount uint64, block uint64) ethtypes.Log {
	return ethtypes.Log{
		Topics:      []common.Hash{abi.RewardClaimedTopic, uintTopic(questID), addressTopic(recipient)},
		Data:        amountData(new(big.Int).SetUint64(amount)),
		BlockNumber: block,
		TxHash:      common.HexToHash("0xbbbb"),
	}
}

// QuestCanceledLog builds a raw QuestCanceled log.
func QuestCanceledLog(questID uint64, block uint64) ethtypes.Log {
	return ethtypes.Log{
		Topics:      []common.Hash{abi.QuestCanceledTopic, uintTopic(questID)},
		BlockNumber: block,
		TxHash:      common.HexToHash("0xcccc"),
	}
}

// VestingRewardClaimedLog builds a raw VestingRewardClaimed log.
func VestingRewardClaimedLog(questID uint64, recipient common.Address, amount uint64, block uint64) ethtypes.Log {
	return ethtypes.Log{
		Topics:      []common.Hash{abi.VestingRewardClaimedTopic, uintTopic(questID), addressTopic(recipient)},
		Data:        amountData(new(big.Int).SetUint64(amount)),
		BlockNumber: block,
		TxHash:      common.HexToHash("0xdddd"),
	}
}

// RemainingRewardsWithdrawnLog builds a raw RemainingRewardsWithdrawn log.
func RemainingRewardsWithdrawnLog(questID uint64, sponsor common.Address, amount uint64, block uint64) ethtypes.Log {
	return ethtypes.Log{
		Topics:      []common.Hash{abi.RemainingRewardsWithdrawnTopic, uintTopic(questID), addressTopic(sponsor)},
		Data:        amountData(new(big.Int).SetUint64(amount)),
		BlockNumber: block,
		TxHash:      common.HexToHash("0xeeee"),
	}
}

// UnknownEventLog builds a log whose signature the indexer does not know.
func UnknownEventLog(block uint64) ethtypes.Log {
	return ethtypes.Log{
		Topics:      []common.Hash{common.HexToHash("0xdeadbeef")},
		BlockNumber: block,
		TxHash:      common.HexToHash("0xffff"),
	}
}
