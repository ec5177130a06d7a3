package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xmhha/quest-indexer/types"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only storage
	ErrReadOnly = errors.New("storage is read-only")
)

// QuestReader provides read access to quest records
type QuestReader interface {
	// GetQuest returns a quest by id
	GetQuest(ctx context.Context, id string) (*types.Quest, error)

	// ListQuests returns all stored quests in id order
	ListQuests(ctx context.Context) ([]*types.Quest, error)

	// HasQuest checks if a quest exists
	HasQuest(ctx context.Context, id string) (bool, error)
}

// QuestWriter provides write access to quest records.
// Event handlers exclusively own these writes.
type QuestWriter interface {
	// SetQuest upserts a quest record
	SetQuest(ctx context.Context, quest *types.Quest) error
}

// ParticipationReader provides read access to participation records
type ParticipationReader interface {
	// GetParticipation returns the participation for a (quest, user) pair
	GetParticipation(ctx context.Context, questID string, user common.Address) (*types.Participation, error)

	// ListParticipationsByQuest returns all participations for a quest
	ListParticipationsByQuest(ctx context.Context, questID string) ([]*types.Participation, error)

	// ListParticipationsByUser returns all participations for a user address
	ListParticipationsByUser(ctx context.Context, user common.Address) ([]*types.Participation, error)
}

// ParticipationWriter provides write access to participation records
type ParticipationWriter interface {
	// SetParticipation upserts a participation keyed by (quest, user).
	// Repeat writes for the same key overwrite.
	SetParticipation(ctx context.Context, p *types.Participation) error
}

// CursorReader provides read access to the indexer cursor
type CursorReader interface {
	// GetCursor returns the singleton indexer cursor
	GetCursor(ctx context.Context) (*types.IndexerCursor, error)
}

// CursorWriter provides write access to the indexer cursor.
// The indexer exclusively owns these writes.
type CursorWriter interface {
	// SetCursor upserts the singleton indexer cursor
	SetCursor(ctx context.Context, cursor *types.IndexerCursor) error
}

// Storage combines all reader and writer interfaces
type Storage interface {
	QuestReader
	QuestWriter
	ParticipationReader
	ParticipationWriter
	CursorReader
	CursorWriter

	// Close closes the storage and releases resources
	Close() error
}

// Config holds storage configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 64)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 1000)
	MaxOpenFiles int

	// WriteBuffer size in MB (default: 32)
	WriteBuffer int

	// ReadOnly opens the database in read-only mode
	ReadOnly bool
}

// DefaultConfig returns a default configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:         path,
		Cache:        64,
		MaxOpenFiles: 1000,
		WriteBuffer:  32,
		ReadOnly:     false,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	if c.WriteBuffer < 0 {
		return errors.New("write buffer size cannot be negative")
	}
	return nil
}
