package storage

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key prefixes for different data types
const (
	prefixQuests         = "/data/quests/"
	prefixParticipations = "/data/participations/"
	prefixUserIndex      = "/index/userpart/"
)

// Metadata keys
const (
	keyCursor = "/meta/cursor"
)

// CursorKey returns the key for the singleton indexer cursor
func CursorKey() []byte {
	return []byte(keyCursor)
}

// QuestKey returns the key for storing a quest
// Format: /data/quests/{id}
func QuestKey(id string) []byte {
	return []byte(prefixQuests + id)
}

// QuestKeyPrefix returns the prefix for iterating all quests
func QuestKeyPrefix() []byte {
	return []byte(prefixQuests)
}

// ParticipationKey returns the key for a (quest, user) participation
// Format: /data/participations/{questId}/{address}
// Addresses are lowercased so the same claimant always maps to one key.
func ParticipationKey(questID string, user common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", prefixParticipations, questID, strings.ToLower(user.Hex())))
}

// ParticipationKeyPrefix returns the prefix for iterating a quest's
// participations
func ParticipationKeyPrefix(questID string) []byte {
	return []byte(fmt.Sprintf("%s%s/", prefixParticipations, questID))
}

// UserParticipationKey returns the key for the user-to-quest index
// Format: /index/userpart/{address}/{questId}
func UserParticipationKey(user common.Address, questID string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", prefixUserIndex, strings.ToLower(user.Hex()), questID))
}

// UserParticipationKeyPrefix returns the prefix for iterating a user's
// participations
func UserParticipationKeyPrefix(user common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s/", prefixUserIndex, strings.ToLower(user.Hex())))
}

// prefixUpperBound returns the exclusive upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
