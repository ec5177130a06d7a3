package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// QuestStatus is the lifecycle state of a quest.
type QuestStatus string

const (
	// StatusPending means the quest window has not opened yet.
	StatusPending QuestStatus = "pending"

	// StatusActive means the quest is inside its participation window.
	StatusActive QuestStatus = "active"

	// StatusEnded means the window has closed; claims may still be open.
	StatusEnded QuestStatus = "ended"

	// StatusCanceled is terminal: the sponsor canceled the quest on-chain.
	StatusCanceled QuestStatus = "canceled"

	// StatusClosed is terminal: remaining rewards were withdrawn.
	StatusClosed QuestStatus = "closed"
)

// Terminal reports whether the status must never be overwritten by
// time-based recomputation.
func (s QuestStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusClosed
}

// Valid reports whether s is one of the known lifecycle states.
func (s QuestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusEnded, StatusCanceled, StatusClosed:
		return true
	}
	return false
}

// Provenance tags how a quest record was built.
type Provenance string

const (
	// ProvenanceConfirmed means the record was built from a successful
	// contract read at creation time.
	ProvenanceConfirmed Provenance = "confirmed"

	// ProvenanceDegraded means the contract read failed and the record
	// was built from the bare event arguments. Degraded records carry
	// default window and participant-cap values and are candidates for
	// a later reconciliation pass.
	ProvenanceDegraded Provenance = "degraded"
)

// Quest is the materialized state of one on-chain quest.
//
// Monetary amounts are decimal strings in the smallest currency unit;
// they are never parsed into floats. Timestamps are epoch milliseconds.
type Quest struct {
	ID               string         `json:"id"`
	Sponsor          common.Address `json:"sponsor"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	QuestType        string         `json:"questType"`
	TotalRewards     string         `json:"totalRewards"`
	RewardPerUser    string         `json:"rewardPerUser"`
	MaxParticipants  uint64         `json:"maxParticipants"`
	ParticipantCount uint64         `json:"participantCount"`
	StartTime        int64          `json:"startTime"`
	EndTime          int64          `json:"endTime"`
	ClaimDeadline    int64          `json:"claimDeadline"`
	Status           QuestStatus    `json:"status"`
	VestingEnabled   bool           `json:"vestingEnabled"`
	VestingDuration  int64          `json:"vestingDuration"`
	VerificationData map[string]any `json:"verificationData,omitempty"`
	Provenance       Provenance     `json:"provenance"`
	TxHash           common.Hash    `json:"txHash"`
	BlockNumber      uint64         `json:"blockNumber"`
	CreatedAt        int64          `json:"createdAt"`
	UpdatedAt        int64          `json:"updatedAt"`
}

// Participation records one claim of reward by one address against one
// quest. The store keeps exactly one record per (quest, user) pair;
// repeat claims overwrite.
type Participation struct {
	ID          string         `json:"id"`
	QuestID     string         `json:"questId"`
	UserAddress common.Address `json:"userAddress"`
	Amount      string         `json:"amount"`
	ClaimedAt   int64          `json:"claimedAt"`
	TxHash      common.Hash    `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber"`
}

// ParticipationID builds the composite key for a (quest, user) pair.
func ParticipationID(questID string, user common.Address) string {
	return fmt.Sprintf("%s:%s", questID, strings.ToLower(user.Hex()))
}

// IndexerCursor is the singleton ingestion low-watermark. The indexer
// exclusively owns writes to it.
type IndexerCursor struct {
	LastProcessedBlock  uint64         `json:"lastProcessedBlock"`
	ContractAddress     common.Address `json:"contractAddress"`
	ContractDeployBlock uint64         `json:"contractDeployBlock"`
	LastUpdated         int64          `json:"lastUpdated"`
}
