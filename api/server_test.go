package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/quest-indexer/indexer"
	"github.com/0xmhha/quest-indexer/internal/testutil"
	"github.com/0xmhha/quest-indexer/storage"
	"github.com/0xmhha/quest-indexer/types"
)

var testContract = common.HexToAddress("0x5555555555555555555555555555555555555555")

// stubSource serves a fixed chain head with no logs.
type stubSource struct {
	head uint64
}

func (s *stubSource) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return s.head, nil
}

func (s *stubSource) FilterLogs(ctx context.Context, address common.Address, from, to uint64) ([]ethtypes.Log, error) {
	return nil, nil
}

// nopHandler ignores every log.
type nopHandler struct{}

func (nopHandler) HandleLog(ctx context.Context, log ethtypes.Log) error { return nil }

func setupServer(t *testing.T) (*Server, *storage.PebbleStorage) {
	t.Helper()

	store, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc, err := indexer.New(&stubSource{head: 200}, store, nopHandler{}, indexer.DefaultConfig(testContract, 100), zap.NewNop())
	if err != nil {
		t.Fatalf("indexer.New() error = %v", err)
	}
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	server, err := NewServer(DefaultConfig(), zap.NewNop(), store, svc)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	server.SetClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	return server, store
}

func doRequest(t *testing.T, server *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func TestNewServer(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid default config", config: DefaultConfig()},
		{
			name: "invalid port",
			config: func() *Config {
				c := DefaultConfig()
				c.Port = 0
				return c
			}(),
			wantErr: true,
		},
		{
			name: "empty host",
			config: func() *Config {
				c := DefaultConfig()
				c.Host = ""
				return c
			}(),
			wantErr: true,
		},
	}

	store, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config, zap.NewNop(), store, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewServer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && server == nil {
				t.Error("NewServer() returned nil server")
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupServer(t)

	w := doRequest(t, server, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

func TestVersionEndpoint(t *testing.T) {
	server, _ := setupServer(t)

	w := doRequest(t, server, http.MethodGet, "/version", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "quest-indexer") {
		t.Errorf("body = %q, want name field", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupServer(t)

	w := doRequest(t, server, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want 200", w.Code)
	}
}

func TestIndexerStatusEndpoint(t *testing.T) {
	server, _ := setupServer(t)

	w := doRequest(t, server, http.MethodGet, "/indexer/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want 200", w.Code)
	}

	var status indexer.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.ContractAddress != testContract.Hex() {
		t.Errorf("ContractAddress = %v, want %v", status.ContractAddress, testContract.Hex())
	}
	if status.LastProcessedBlock != 99 {
		t.Errorf("LastProcessedBlock = %v, want 99", status.LastProcessedBlock)
	}
	if status.CurrentHeight != 200 {
		t.Errorf("CurrentHeight = %v, want 200", status.CurrentHeight)
	}
}

func TestPollingEndpoints(t *testing.T) {
	server, _ := setupServer(t)

	w := doRequest(t, server, http.MethodPost, "/indexer/polling/start", []byte(`{"intervalSeconds": 60}`))
	if w.Code != http.StatusOK {
		t.Errorf("start status = %v, want 200", w.Code)
	}

	w = doRequest(t, server, http.MethodGet, "/indexer/status", nil)
	var status indexer.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !status.Polling {
		t.Error("Polling = false after start")
	}

	w = doRequest(t, server, http.MethodPost, "/indexer/polling/stop", nil)
	if w.Code != http.StatusOK {
		t.Errorf("stop status = %v, want 200", w.Code)
	}
}

func TestReindexEndpoint(t *testing.T) {
	server, _ := setupServer(t)

	t.Run("valid request", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/indexer/reindex", []byte(`{"fromBlock": 150}`))
		if w.Code != http.StatusOK {
			t.Errorf("status = %v, want 200: %s", w.Code, w.Body.String())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/indexer/reindex", []byte(`{`))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %v, want 400", w.Code)
		}
	})
}

func TestQuestEndpoints(t *testing.T) {
	server, store := setupServer(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	active := testutil.NewTestQuest("1", now)
	canceled := testutil.NewTestQuest("2", now)
	canceled.Status = types.StatusCanceled

	for _, q := range []*types.Quest{active, canceled} {
		if err := store.SetQuest(ctx, q); err != nil {
			t.Fatalf("SetQuest() error = %v", err)
		}
	}

	t.Run("list all", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/quests", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %v, want 200", w.Code)
		}

		var resp struct {
			Quests []*types.Quest `json:"quests"`
			Count  int            `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp.Count != 2 {
			t.Errorf("count = %v, want 2", resp.Count)
		}
	})

	t.Run("list filtered by status", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/quests?status=canceled", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %v, want 200", w.Code)
		}

		var resp struct {
			Quests []*types.Quest `json:"quests"`
			Count  int            `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp.Count != 1 || resp.Quests[0].ID != "2" {
			t.Errorf("filtered = %+v, want only quest 2", resp.Quests)
		}
	})

	t.Run("list with unknown status", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/quests?status=bogus", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %v, want 400", w.Code)
		}
	})

	t.Run("get one with metrics", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/quests/1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %v, want 200", w.Code)
		}

		var resp QuestResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp.Quest == nil || resp.Quest.ID != "1" {
			t.Fatalf("Quest = %+v, want id 1", resp.Quest)
		}
		if resp.Metrics == nil {
			t.Fatal("Metrics = nil, want computed metrics")
		}
		if resp.Metrics.Status != types.StatusActive {
			t.Errorf("Metrics.Status = %v, want active", resp.Metrics.Status)
		}
		if resp.Metrics.RemainingSpots != 100 {
			t.Errorf("RemainingSpots = %v, want 100", resp.Metrics.RemainingSpots)
		}
	})

	t.Run("get missing quest", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/quests/404", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %v, want 404", w.Code)
		}
	})
}

func TestParticipationEndpoints(t *testing.T) {
	server, store := setupServer(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	user := common.HexToAddress("0xAbcD000000000000000000000000000000001234")

	if err := store.SetQuest(ctx, testutil.NewTestQuest("1", now)); err != nil {
		t.Fatalf("SetQuest() error = %v", err)
	}
	if err := store.SetParticipation(ctx, testutil.NewTestParticipation("1", user, now)); err != nil {
		t.Fatalf("SetParticipation() error = %v", err)
	}

	t.Run("by quest", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/quests/1/participations", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %v, want 200", w.Code)
		}

		var resp struct {
			Participations []*types.Participation `json:"participations"`
			Count          int                    `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("count = %v, want 1", resp.Count)
		}
	})

	t.Run("by missing quest", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/quests/404/participations", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %v, want 404", w.Code)
		}
	})

	t.Run("by user", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/users/"+user.Hex()+"/participations", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %v, want 200", w.Code)
		}

		var resp struct {
			Participations []*types.Participation `json:"participations"`
			Count          int                    `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("count = %v, want 1", resp.Count)
		}
	})

	t.Run("by invalid address", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/users/nonsense/participations", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %v, want 400", w.Code)
		}
	})
}
