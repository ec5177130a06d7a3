package storage

import (
	"encoding/json"
	"fmt"

	"github.com/0xmhha/quest-indexer/types"
)

// Records are stored as JSON documents. The quest, participation, and
// cursor types are plain keyed documents, not wire-format chain data,
// so a self-describing encoding beats a positional one here.

// EncodeQuest encodes a quest record
func EncodeQuest(quest *types.Quest) ([]byte, error) {
	if quest == nil {
		return nil, fmt.Errorf("quest cannot be nil")
	}

	data, err := json.Marshal(quest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quest: %w", err)
	}

	return data, nil
}

// DecodeQuest decodes a quest record
func DecodeQuest(data []byte) (*types.Quest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	var quest types.Quest
	if err := json.Unmarshal(data, &quest); err != nil {
		return nil, fmt.Errorf("%w: failed to decode quest: %v", ErrInvalidData, err)
	}

	return &quest, nil
}

// EncodeParticipation encodes a participation record
func EncodeParticipation(p *types.Participation) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("participation cannot be nil")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode participation: %w", err)
	}

	return data, nil
}

// DecodeParticipation decodes a participation record
func DecodeParticipation(data []byte) (*types.Participation, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	var p types.Participation
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: failed to decode participation: %v", ErrInvalidData, err)
	}

	return &p, nil
}

// EncodeCursor encodes the indexer cursor record
func EncodeCursor(cursor *types.IndexerCursor) ([]byte, error) {
	if cursor == nil {
		return nil, fmt.Errorf("cursor cannot be nil")
	}

	data, err := json.Marshal(cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cursor: %w", err)
	}

	return data, nil
}

// DecodeCursor decodes the indexer cursor record
func DecodeCursor(data []byte) (*types.IndexerCursor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	var cursor types.IndexerCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("%w: failed to decode cursor: %v", ErrInvalidData, err)
	}

	return &cursor, nil
}
