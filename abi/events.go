// Package abi decodes raw quest-contract logs into typed events using
// the contract's known event signatures.
package abi

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Decode errors. ErrUnknownEvent marks a log the contract may emit in a
// future version; callers skip it. ErrMalformedLog marks a log that
// matched a known signature but carries the wrong shape.
var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMalformedLog = errors.New("malformed log")
)

// Event names as emitted by the quest contract.
const (
	EventQuestCreated              = "QuestCreated"
	EventRewardClaimed             = "RewardClaimed"
	EventQuestCanceled             = "QuestCanceled"
	EventVestingRewardClaimed      = "VestingRewardClaimed"
	EventRemainingRewardsWithdrawn = "RemainingRewardsWithdrawn"
)

// Topic hashes for the five known event signatures.
var (
	QuestCreatedTopic              = crypto.Keccak256Hash([]byte("QuestCreated(uint256,address)"))
	RewardClaimedTopic             = crypto.Keccak256Hash([]byte("RewardClaimed(uint256,address,uint256)"))
	QuestCanceledTopic             = crypto.Keccak256Hash([]byte("QuestCanceled(uint256)"))
	VestingRewardClaimedTopic      = crypto.Keccak256Hash([]byte("VestingRewardClaimed(uint256,address,uint256)"))
	RemainingRewardsWithdrawnTopic = crypto.Keccak256Hash([]byte("RemainingRewardsWithdrawn(uint256,address,uint256)"))
)

var eventNames = map[common.Hash]string{
	QuestCreatedTopic:              EventQuestCreated,
	RewardClaimedTopic:             EventRewardClaimed,
	QuestCanceledTopic:             EventQuestCanceled,
	VestingRewardClaimedTopic:      EventVestingRewardClaimed,
	RemainingRewardsWithdrawnTopic: EventRemainingRewardsWithdrawn,
}

// EventName returns the event name for a signature topic.
func EventName(topic common.Hash) (string, bool) {
	name, ok := eventNames[topic]
	return name, ok
}

// QuestCreated is emitted when a sponsor creates a quest. Canonical
// quest data is fetched via a contract read; the event carries only the
// identifying arguments.
type QuestCreated struct {
	QuestID *big.Int
	Sponsor common.Address
	Raw     types.Log
}

// RewardClaimed is emitted when a participant claims a reward.
type RewardClaimed struct {
	QuestID   *big.Int
	Recipient common.Address
	Amount    *big.Int
	Raw       types.Log
}

// QuestCanceled is emitted when a sponsor cancels a quest.
type QuestCanceled struct {
	QuestID *big.Int
	Raw     types.Log
}

// VestingRewardClaimed is emitted for vesting installments after the
// initial claim.
type VestingRewardClaimed struct {
	QuestID   *big.Int
	Recipient common.Address
	Amount    *big.Int
	Raw       types.Log
}

// RemainingRewardsWithdrawn is emitted when the sponsor withdraws the
// unclaimed remainder after the claim deadline.
type RemainingRewardsWithdrawn struct {
	QuestID *big.Int
	Sponsor common.Address
	Amount  *big.Int
	Raw     types.Log
}

// ParseLog decodes a raw log against the known event signatures and
// returns one of the typed event structs above.
func ParseLog(log types.Log) (any, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrMalformedLog)
	}

	switch log.Topics[0] {
	case QuestCreatedTopic:
		if err := checkShape(log, 3, 0); err != nil {
			return nil, err
		}
		return &QuestCreated{
			QuestID: topicToBig(log.Topics[1]),
			Sponsor: topicToAddress(log.Topics[2]),
			Raw:     log,
		}, nil

	case RewardClaimedTopic:
		if err := checkShape(log, 3, 32); err != nil {
			return nil, err
		}
		return &RewardClaimed{
			QuestID:   topicToBig(log.Topics[1]),
			Recipient: topicToAddress(log.Topics[2]),
			Amount:    dataToBig(log.Data, 0),
			Raw:       log,
		}, nil

	case QuestCanceledTopic:
		if err := checkShape(log, 2, 0); err != nil {
			return nil, err
		}
		return &QuestCanceled{
			QuestID: topicToBig(log.Topics[1]),
			Raw:     log,
		}, nil

	case VestingRewardClaimedTopic:
		if err := checkShape(log, 3, 32); err != nil {
			return nil, err
		}
		return &VestingRewardClaimed{
			QuestID:   topicToBig(log.Topics[1]),
			Recipient: topicToAddress(log.Topics[2]),
			Amount:    dataToBig(log.Data, 0),
			Raw:       log,
		}, nil

	case RemainingRewardsWithdrawnTopic:
		if err := checkShape(log, 3, 32); err != nil {
			return nil, err
		}
		return &RemainingRewardsWithdrawn{
			QuestID: topicToBig(log.Topics[1]),
			Sponsor: topicToAddress(log.Topics[2]),
			Amount:  dataToBig(log.Data, 0),
			Raw:     log,
		}, nil
	}

	return nil, fmt.Errorf("%w: topic %s", ErrUnknownEvent, log.Topics[0].Hex())
}

func checkShape(log types.Log, topics, minData int) error {
	if len(log.Topics) != topics {
		return fmt.Errorf("%w: %s expects %d topics, got %d",
			ErrMalformedLog, eventNames[log.Topics[0]], topics, len(log.Topics))
	}
	if len(log.Data) < minData {
		return fmt.Errorf("%w: %s expects at least %d data bytes, got %d",
			ErrMalformedLog, eventNames[log.Topics[0]], minData, len(log.Data))
	}
	return nil
}

// topicToBig decodes an unsigned integer from an indexed topic.
func topicToBig(topic common.Hash) *big.Int {
	return new(big.Int).SetBytes(topic[:])
}

// topicToAddress decodes an address from the lower 20 bytes of a topic.
func topicToAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic[12:])
}

// dataToBig decodes an unsigned integer from a 32-byte data word.
func dataToBig(data []byte, offset int) *big.Int {
	if len(data) < offset+32 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(data[offset : offset+32])
}
