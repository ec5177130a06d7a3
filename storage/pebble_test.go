package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xmhha/quest-indexer/types"
)

// setupTestStorage creates a temporary PebbleDB storage for testing
func setupTestStorage(t *testing.T) *PebbleStorage {
	t.Helper()

	cfg := DefaultConfig(t.TempDir())
	store, err := NewPebbleStorage(cfg)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func testQuest(id string) *types.Quest {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &types.Quest{
		ID:              id,
		Sponsor:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Title:           "Quest " + id,
		TotalRewards:    "1000000",
		RewardPerUser:   "10000",
		MaxParticipants: 100,
		StartTime:       now.UnixMilli(),
		EndTime:         now.Add(7 * 24 * time.Hour).UnixMilli(),
		ClaimDeadline:   now.Add(8 * 24 * time.Hour).UnixMilli(),
		Status:          types.StatusActive,
		Provenance:      types.ProvenanceConfirmed,
	}
}

func testParticipation(questID string, user common.Address) *types.Participation {
	return &types.Participation{
		ID:          types.ParticipationID(questID, user),
		QuestID:     questID,
		UserAddress: user,
		Amount:      "10000",
		ClaimedAt:   1748736000000,
		BlockNumber: 123,
	}
}

func TestNewPebbleStorage(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		store := setupTestStorage(t)
		if store == nil {
			t.Fatal("NewPebbleStorage() returned nil")
		}
	})

	t.Run("nil config", func(t *testing.T) {
		if _, err := NewPebbleStorage(nil); err == nil {
			t.Error("expected error for nil config")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := NewPebbleStorage(&Config{}); err == nil {
			t.Error("expected error for empty path")
		}
	})
}

func TestQuestRoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	q := testQuest("42")
	if err := store.SetQuest(ctx, q); err != nil {
		t.Fatalf("SetQuest() error = %v", err)
	}

	got, err := store.GetQuest(ctx, "42")
	if err != nil {
		t.Fatalf("GetQuest() error = %v", err)
	}

	if got.ID != q.ID || got.Title != q.Title || got.Status != q.Status {
		t.Errorf("GetQuest() = %+v, want %+v", got, q)
	}
	if got.Sponsor != q.Sponsor {
		t.Errorf("Sponsor = %v, want %v", got.Sponsor, q.Sponsor)
	}
	if got.RewardPerUser != "10000" {
		t.Errorf("RewardPerUser = %v, want 10000", got.RewardPerUser)
	}
}

func TestGetQuestNotFound(t *testing.T) {
	store := setupTestStorage(t)

	_, err := store.GetQuest(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetQuest() error = %v, want ErrNotFound", err)
	}
}

func TestHasQuest(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	exists, err := store.HasQuest(ctx, "1")
	if err != nil {
		t.Fatalf("HasQuest() error = %v", err)
	}
	if exists {
		t.Error("HasQuest() = true for missing quest")
	}

	if err := store.SetQuest(ctx, testQuest("1")); err != nil {
		t.Fatalf("SetQuest() error = %v", err)
	}

	exists, err = store.HasQuest(ctx, "1")
	if err != nil {
		t.Fatalf("HasQuest() error = %v", err)
	}
	if !exists {
		t.Error("HasQuest() = false for stored quest")
	}
}

func TestSetQuestValidation(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	if err := store.SetQuest(ctx, nil); err == nil {
		t.Error("expected error for nil quest")
	}
	if err := store.SetQuest(ctx, &types.Quest{}); err == nil {
		t.Error("expected error for empty quest id")
	}
}

func TestSetQuestOverwrites(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	q := testQuest("7")
	if err := store.SetQuest(ctx, q); err != nil {
		t.Fatalf("SetQuest() error = %v", err)
	}

	q.Status = types.StatusCanceled
	q.ParticipantCount = 3
	if err := store.SetQuest(ctx, q); err != nil {
		t.Fatalf("SetQuest() overwrite error = %v", err)
	}

	got, err := store.GetQuest(ctx, "7")
	if err != nil {
		t.Fatalf("GetQuest() error = %v", err)
	}
	if got.Status != types.StatusCanceled {
		t.Errorf("Status = %v, want canceled", got.Status)
	}
	if got.ParticipantCount != 3 {
		t.Errorf("ParticipantCount = %v, want 3", got.ParticipantCount)
	}
}

func TestListQuests(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	quests, err := store.ListQuests(ctx)
	if err != nil {
		t.Fatalf("ListQuests() error = %v", err)
	}
	if len(quests) != 0 {
		t.Errorf("ListQuests() = %d quests, want 0", len(quests))
	}

	for _, id := range []string{"3", "1", "2"} {
		if err := store.SetQuest(ctx, testQuest(id)); err != nil {
			t.Fatalf("SetQuest(%s) error = %v", id, err)
		}
	}

	quests, err = store.ListQuests(ctx)
	if err != nil {
		t.Fatalf("ListQuests() error = %v", err)
	}
	if len(quests) != 3 {
		t.Fatalf("ListQuests() = %d quests, want 3", len(quests))
	}

	// Key order is lexicographic by id.
	for i, want := range []string{"1", "2", "3"} {
		if quests[i].ID != want {
			t.Errorf("quests[%d].ID = %s, want %s", i, quests[i].ID, want)
		}
	}
}

func TestParticipationRoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	user := common.HexToAddress("0xAbcD000000000000000000000000000000001234")

	p := testParticipation("42", user)
	if err := store.SetParticipation(ctx, p); err != nil {
		t.Fatalf("SetParticipation() error = %v", err)
	}

	got, err := store.GetParticipation(ctx, "42", user)
	if err != nil {
		t.Fatalf("GetParticipation() error = %v", err)
	}
	if got.ID != p.ID || got.Amount != p.Amount || got.UserAddress != user {
		t.Errorf("GetParticipation() = %+v, want %+v", got, p)
	}
}

func TestParticipationOverwrite(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	user := common.HexToAddress("0x2222222222222222222222222222222222222222")

	first := testParticipation("1", user)
	first.Amount = "100"
	first.BlockNumber = 10
	if err := store.SetParticipation(ctx, first); err != nil {
		t.Fatalf("SetParticipation() error = %v", err)
	}

	second := testParticipation("1", user)
	second.Amount = "250"
	second.BlockNumber = 20
	if err := store.SetParticipation(ctx, second); err != nil {
		t.Fatalf("SetParticipation() overwrite error = %v", err)
	}

	// One record per (quest, user): the later write wins.
	got, err := store.GetParticipation(ctx, "1", user)
	if err != nil {
		t.Fatalf("GetParticipation() error = %v", err)
	}
	if got.Amount != "250" || got.BlockNumber != 20 {
		t.Errorf("GetParticipation() = %+v, want overwritten record", got)
	}

	parts, err := store.ListParticipationsByQuest(ctx, "1")
	if err != nil {
		t.Fatalf("ListParticipationsByQuest() error = %v", err)
	}
	if len(parts) != 1 {
		t.Errorf("ListParticipationsByQuest() = %d records, want 1", len(parts))
	}
}

func TestParticipationAddressCaseInsensitive(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	checksummed := common.HexToAddress("0xAbcD000000000000000000000000000000001234")
	lower := common.HexToAddress("0xabcd000000000000000000000000000000001234")

	if err := store.SetParticipation(ctx, testParticipation("5", checksummed)); err != nil {
		t.Fatalf("SetParticipation() error = %v", err)
	}

	got, err := store.GetParticipation(ctx, "5", lower)
	if err != nil {
		t.Fatalf("GetParticipation() with lowercase address error = %v", err)
	}
	if got.QuestID != "5" {
		t.Errorf("QuestID = %v, want 5", got.QuestID)
	}
}

func TestListParticipationsByQuest(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	users := []common.Address{
		common.HexToAddress("0x1000000000000000000000000000000000000001"),
		common.HexToAddress("0x1000000000000000000000000000000000000002"),
		common.HexToAddress("0x1000000000000000000000000000000000000003"),
	}

	for _, u := range users {
		if err := store.SetParticipation(ctx, testParticipation("9", u)); err != nil {
			t.Fatalf("SetParticipation() error = %v", err)
		}
	}
	// A different quest must not leak into the listing.
	if err := store.SetParticipation(ctx, testParticipation("90", users[0])); err != nil {
		t.Fatalf("SetParticipation() error = %v", err)
	}

	parts, err := store.ListParticipationsByQuest(ctx, "9")
	if err != nil {
		t.Fatalf("ListParticipationsByQuest() error = %v", err)
	}
	if len(parts) != 3 {
		t.Errorf("ListParticipationsByQuest() = %d records, want 3", len(parts))
	}
	for _, p := range parts {
		if p.QuestID != "9" {
			t.Errorf("participation for quest %s leaked into quest 9 listing", p.QuestID)
		}
	}
}

func TestListParticipationsByUser(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	user := common.HexToAddress("0x3333333333333333333333333333333333333333")
	other := common.HexToAddress("0x4444444444444444444444444444444444444444")

	for _, questID := range []string{"1", "2", "3"} {
		if err := store.SetParticipation(ctx, testParticipation(questID, user)); err != nil {
			t.Fatalf("SetParticipation() error = %v", err)
		}
	}
	if err := store.SetParticipation(ctx, testParticipation("1", other)); err != nil {
		t.Fatalf("SetParticipation() error = %v", err)
	}

	parts, err := store.ListParticipationsByUser(ctx, user)
	if err != nil {
		t.Fatalf("ListParticipationsByUser() error = %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("ListParticipationsByUser() = %d records, want 3", len(parts))
	}
	for _, p := range parts {
		if p.UserAddress != user {
			t.Errorf("listing for %v contains record for %v", user, p.UserAddress)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.GetCursor(ctx)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCursor() error = %v, want ErrNotFound before first write", err)
	}

	cursor := &types.IndexerCursor{
		LastProcessedBlock:  105,
		ContractAddress:     common.HexToAddress("0x5555555555555555555555555555555555555555"),
		ContractDeployBlock: 100,
		LastUpdated:         1748736000000,
	}
	if err := store.SetCursor(ctx, cursor); err != nil {
		t.Fatalf("SetCursor() error = %v", err)
	}

	got, err := store.GetCursor(ctx)
	if err != nil {
		t.Fatalf("GetCursor() error = %v", err)
	}
	if got.LastProcessedBlock != 105 || got.ContractDeployBlock != 100 {
		t.Errorf("GetCursor() = %+v, want %+v", got, cursor)
	}
	if got.ContractAddress != cursor.ContractAddress {
		t.Errorf("ContractAddress = %v, want %v", got.ContractAddress, cursor.ContractAddress)
	}
}

func TestClosedStorage(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := store.GetQuest(ctx, "1"); !errors.Is(err, ErrClosed) {
		t.Errorf("GetQuest() after close error = %v, want ErrClosed", err)
	}
	if err := store.SetQuest(ctx, testQuest("1")); !errors.Is(err, ErrClosed) {
		t.Errorf("SetQuest() after close error = %v, want ErrClosed", err)
	}

	// Double close is a no-op.
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
