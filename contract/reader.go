// Package contract reads canonical quest data from the quest contract.
// The read backs quest-created ingestion; callers fall back to a
// degraded record when it fails.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// questABI covers the single view method the indexer calls.
const questABI = `[{
	"name": "getQuest",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "questId", "type": "uint256"}],
	"outputs": [
		{"name": "sponsor", "type": "address"},
		{"name": "title", "type": "string"},
		{"name": "description", "type": "string"},
		{"name": "questType", "type": "string"},
		{"name": "totalRewards", "type": "uint256"},
		{"name": "rewardPerUser", "type": "uint256"},
		{"name": "maxParticipants", "type": "uint256"},
		{"name": "startTime", "type": "uint256"},
		{"name": "endTime", "type": "uint256"},
		{"name": "claimDeadline", "type": "uint256"},
		{"name": "vestingEnabled", "type": "bool"},
		{"name": "vestingDuration", "type": "uint256"}
	]
}]`

var parsedABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(questABI))
	if err != nil {
		panic(fmt.Sprintf("invalid quest ABI: %v", err))
	}
	return parsed
}()

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// QuestData is the canonical quest state returned by getQuest.
// Timestamps are epoch milliseconds, amounts smallest currency units.
type QuestData struct {
	Sponsor         common.Address
	Title           string
	Description     string
	QuestType       string
	TotalRewards    *big.Int
	RewardPerUser   *big.Int
	MaxParticipants uint64
	StartTime       int64
	EndTime         int64
	ClaimDeadline   int64
	VestingEnabled  bool
	VestingDuration int64
}

// Reader reads quest data from a deployed quest contract.
type Reader struct {
	caller  Caller
	address common.Address
	logger  *zap.Logger
}

// NewReader creates a contract reader for the given contract address.
func NewReader(caller Caller, address common.Address, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		caller:  caller,
		address: address,
		logger:  logger,
	}
}

// GetQuest fetches canonical quest data for the given quest id.
func (r *Reader) GetQuest(ctx context.Context, questID *big.Int) (*QuestData, error) {
	data, err := parsedABI.Pack("getQuest", questID)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getQuest call: %w", err)
	}

	out, err := r.caller.CallContract(ctx, r.address, data)
	if err != nil {
		return nil, fmt.Errorf("getQuest(%s) call failed: %w", questID.String(), err)
	}

	values, err := parsedABI.Unpack("getQuest", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getQuest result: %w", err)
	}
	if len(values) != 12 {
		return nil, fmt.Errorf("unexpected getQuest result arity: %d", len(values))
	}

	quest := &QuestData{}
	var ok bool
	if quest.Sponsor, ok = values[0].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected type for sponsor: %T", values[0])
	}
	if quest.Title, ok = values[1].(string); !ok {
		return nil, fmt.Errorf("unexpected type for title: %T", values[1])
	}
	if quest.Description, ok = values[2].(string); !ok {
		return nil, fmt.Errorf("unexpected type for description: %T", values[2])
	}
	if quest.QuestType, ok = values[3].(string); !ok {
		return nil, fmt.Errorf("unexpected type for questType: %T", values[3])
	}
	if quest.TotalRewards, ok = values[4].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected type for totalRewards: %T", values[4])
	}
	if quest.RewardPerUser, ok = values[5].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected type for rewardPerUser: %T", values[5])
	}

	maxParticipants, ok := values[6].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type for maxParticipants: %T", values[6])
	}
	quest.MaxParticipants = maxParticipants.Uint64()

	for i, dst := range []*int64{&quest.StartTime, &quest.EndTime, &quest.ClaimDeadline} {
		v, ok := values[7+i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected type for timestamp output %d: %T", 7+i, values[7+i])
		}
		*dst = v.Int64()
	}

	if quest.VestingEnabled, ok = values[10].(bool); !ok {
		return nil, fmt.Errorf("unexpected type for vestingEnabled: %T", values[10])
	}

	vestingDuration, ok := values[11].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type for vestingDuration: %T", values[11])
	}
	quest.VestingDuration = vestingDuration.Int64()

	return quest, nil
}
