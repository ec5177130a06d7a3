package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/quest-indexer/types"
)

// PebbleStorage implements Storage using PebbleDB
type PebbleStorage struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool
}

// NewPebbleStorage creates a new PebbleDB storage
func NewPebbleStorage(cfg *Config) (*PebbleStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := &pebble.Options{
		Cache:            pebble.NewCache(int64(cfg.Cache) << 20),
		MaxOpenFiles:     cfg.MaxOpenFiles,
		MemTableSize:     uint64(cfg.WriteBuffer) << 20,
		ErrorIfExists:    false,
		ErrorIfNotExists: false,
	}

	if cfg.ReadOnly {
		opts.ReadOnly = true
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStorage{
		db:     db,
		config: cfg,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for the storage
func (s *PebbleStorage) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// ensureNotClosed checks if storage is closed
func (s *PebbleStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ensureNotReadOnly checks if storage is read-only
func (s *PebbleStorage) ensureNotReadOnly() error {
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Close closes the storage and releases resources
func (s *PebbleStorage) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// get reads and copies the value for a key
func (s *PebbleStorage) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// GetQuest returns a quest by id
func (s *PebbleStorage) GetQuest(ctx context.Context, id string) (*types.Quest, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(QuestKey(id))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quest %s: %w", id, err)
	}

	return DecodeQuest(value)
}

// HasQuest checks if a quest exists
func (s *PebbleStorage) HasQuest(ctx context.Context, id string) (bool, error) {
	_, err := s.GetQuest(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetQuest upserts a quest record
func (s *PebbleStorage) SetQuest(ctx context.Context, quest *types.Quest) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}

	if quest == nil {
		return fmt.Errorf("quest cannot be nil")
	}
	if quest.ID == "" {
		return fmt.Errorf("quest id cannot be empty")
	}

	encoded, err := EncodeQuest(quest)
	if err != nil {
		return err
	}

	if err := s.db.Set(QuestKey(quest.ID), encoded, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set quest %s: %w", quest.ID, err)
	}

	return nil
}

// ListQuests returns all stored quests in id order
func (s *PebbleStorage) ListQuests(ctx context.Context) ([]*types.Quest, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := QuestKeyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var quests []*types.Quest
	for iter.First(); iter.Valid(); iter.Next() {
		quest, err := DecodeQuest(iter.Value())
		if err != nil {
			s.logger.Warn("skipping undecodable quest record",
				zap.ByteString("key", iter.Key()),
				zap.Error(err),
			)
			continue
		}
		quests = append(quests, quest)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("quest iteration failed: %w", err)
	}

	return quests, nil
}

// GetParticipation returns the participation for a (quest, user) pair
func (s *PebbleStorage) GetParticipation(ctx context.Context, questID string, user common.Address) (*types.Participation, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(ParticipationKey(questID, user))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participation %s/%s: %w", questID, user.Hex(), err)
	}

	return DecodeParticipation(value)
}

// SetParticipation upserts a participation keyed by (quest, user).
// Repeat writes for the same key overwrite; both the primary record and
// the user index are rewritten.
func (s *PebbleStorage) SetParticipation(ctx context.Context, p *types.Participation) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}

	if p == nil {
		return fmt.Errorf("participation cannot be nil")
	}
	if p.QuestID == "" {
		return fmt.Errorf("participation quest id cannot be empty")
	}

	encoded, err := EncodeParticipation(p)
	if err != nil {
		return err
	}

	if err := s.db.Set(ParticipationKey(p.QuestID, p.UserAddress), encoded, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set participation: %w", err)
	}

	// User index points back at the quest id; the record itself lives
	// under the participation key.
	if err := s.db.Set(UserParticipationKey(p.UserAddress, p.QuestID), []byte(p.QuestID), pebble.Sync); err != nil {
		return fmt.Errorf("failed to set user participation index: %w", err)
	}

	return nil
}

// ListParticipationsByQuest returns all participations for a quest
func (s *PebbleStorage) ListParticipationsByQuest(ctx context.Context, questID string) ([]*types.Participation, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := ParticipationKeyPrefix(questID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var participations []*types.Participation
	for iter.First(); iter.Valid(); iter.Next() {
		p, err := DecodeParticipation(iter.Value())
		if err != nil {
			s.logger.Warn("skipping undecodable participation record",
				zap.ByteString("key", iter.Key()),
				zap.Error(err),
			)
			continue
		}
		participations = append(participations, p)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("participation iteration failed: %w", err)
	}

	return participations, nil
}

// ListParticipationsByUser returns all participations for a user address
func (s *PebbleStorage) ListParticipationsByUser(ctx context.Context, user common.Address) ([]*types.Participation, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := UserParticipationKeyPrefix(user)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var questIDs []string
	for iter.First(); iter.Valid(); iter.Next() {
		questIDs = append(questIDs, string(iter.Value()))
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("user participation iteration failed: %w", err)
	}

	participations := make([]*types.Participation, 0, len(questIDs))
	for _, questID := range questIDs {
		p, err := s.GetParticipation(ctx, questID, user)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		participations = append(participations, p)
	}

	return participations, nil
}

// GetCursor returns the singleton indexer cursor
func (s *PebbleStorage) GetCursor(ctx context.Context) (*types.IndexerCursor, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(CursorKey())
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return DecodeCursor(value)
}

// SetCursor upserts the singleton indexer cursor
func (s *PebbleStorage) SetCursor(ctx context.Context, cursor *types.IndexerCursor) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}

	if cursor == nil {
		return fmt.Errorf("cursor cannot be nil")
	}

	encoded, err := EncodeCursor(cursor)
	if err != nil {
		return err
	}

	if err := s.db.Set(CursorKey(), encoded, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}

	return nil
}
