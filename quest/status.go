// Package quest derives quest lifecycle state and progress metrics from
// stored quest fields. Everything in this package is a pure function of
// (quest, now); callers decide whether to persist the results.
package quest

import (
	"fmt"
	"math/big"
	"time"

	"github.com/0xmhha/quest-indexer/types"
)

// Timing validation bounds, applied at quest-creation time only.
const (
	MinDuration    = time.Hour
	MaxDuration    = 30 * 24 * time.Hour
	MinClaimWindow = 24 * time.Hour
)

// CalculateStatus returns the lifecycle status of q at the given time.
// Terminal statuses (canceled, closed) are sticky and returned
// unchanged regardless of now.
func CalculateStatus(q *types.Quest, now time.Time) types.QuestStatus {
	if q.Status.Terminal() {
		return q.Status
	}

	nowMs := now.UnixMilli()
	switch {
	case nowMs < q.StartTime:
		return types.StatusPending
	case nowMs < q.EndTime:
		return types.StatusActive
	default:
		return types.StatusEnded
	}
}

// Metrics holds the derived, time-dependent view of a quest exposed to
// downstream readers. Computed on demand, never pre-baked.
type Metrics struct {
	Status                  types.QuestStatus `json:"status"`
	CanParticipate          bool              `json:"canParticipate"`
	CanClaimRewards         bool              `json:"canClaimRewards"`
	ProgressPercentage      float64           `json:"progressPercentage"`
	ParticipationPercentage float64           `json:"participationPercentage"`
	RemainingSpots          uint64            `json:"remainingSpots"`
	RemainingRewards        string            `json:"remainingRewards"`
}

// ComputeMetrics derives all read-only metrics for q at the given time.
func ComputeMetrics(q *types.Quest, now time.Time) (*Metrics, error) {
	status := CalculateStatus(q, now)
	nowMs := now.UnixMilli()

	remaining, err := RemainingRewards(q)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Status:                  status,
		CanParticipate:          status == types.StatusActive && q.ParticipantCount < q.MaxParticipants,
		CanClaimRewards:         status == types.StatusEnded && nowMs <= q.ClaimDeadline,
		ProgressPercentage:      progressPercentage(q, nowMs),
		ParticipationPercentage: participationPercentage(q),
		RemainingSpots:          RemainingSpots(q),
		RemainingRewards:        remaining,
	}, nil
}

// RemainingSpots returns max(0, maxParticipants - participantCount).
func RemainingSpots(q *types.Quest) uint64 {
	if q.ParticipantCount >= q.MaxParticipants {
		return 0
	}
	return q.MaxParticipants - q.ParticipantCount
}

// RemainingRewards returns rewardPerUser * remainingSpots as a decimal
// string. Amounts are currency units, so the math is arbitrary-precision
// integer only.
func RemainingRewards(q *types.Quest) (string, error) {
	perUser, ok := new(big.Int).SetString(q.RewardPerUser, 10)
	if !ok {
		return "", fmt.Errorf("invalid rewardPerUser %q for quest %s", q.RewardPerUser, q.ID)
	}

	spots := new(big.Int).SetUint64(RemainingSpots(q))
	return new(big.Int).Mul(perUser, spots).String(), nil
}

func progressPercentage(q *types.Quest, nowMs int64) float64 {
	if nowMs <= q.StartTime {
		return 0
	}
	if nowMs >= q.EndTime || q.EndTime <= q.StartTime {
		return 100
	}

	pct := float64(nowMs-q.StartTime) / float64(q.EndTime-q.StartTime) * 100
	return clampPercent(pct)
}

func participationPercentage(q *types.Quest) float64 {
	if q.MaxParticipants == 0 {
		return 0
	}
	return clampPercent(float64(q.ParticipantCount) / float64(q.MaxParticipants) * 100)
}

func clampPercent(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Timing validation rule identifiers, returned by ValidateTiming.
const (
	RuleStartInFuture      = "start must be in the future"
	RuleEndAfterStart      = "end must be after start"
	RuleDeadlineAfterEnd   = "claim deadline must be after end"
	RuleDurationBounds     = "duration must be between 1 hour and 30 days"
	RuleClaimWindowMinimum = "claim window must be at least 1 day"
)

// ValidateTiming checks the creation-time timing rules for a quest and
// returns the list of violated rules. It is not applied during
// ingestion; on-chain data is mirrored as-is.
func ValidateTiming(q *types.Quest, now time.Time) (bool, []string) {
	var violations []string

	if q.StartTime <= now.UnixMilli() {
		violations = append(violations, RuleStartInFuture)
	}
	if q.EndTime <= q.StartTime {
		violations = append(violations, RuleEndAfterStart)
	}
	if q.ClaimDeadline <= q.EndTime {
		violations = append(violations, RuleDeadlineAfterEnd)
	}

	duration := time.Duration(q.EndTime-q.StartTime) * time.Millisecond
	if duration < MinDuration || duration > MaxDuration {
		violations = append(violations, RuleDurationBounds)
	}

	claimWindow := time.Duration(q.ClaimDeadline-q.EndTime) * time.Millisecond
	if claimWindow < MinClaimWindow {
		violations = append(violations, RuleClaimWindowMinimum)
	}

	return len(violations) == 0, violations
}
