package services

import (
	"errors"
	"testing"
	"time"

	"github.com/wfunc/raceserver/models"
	"github.com/wfunc/raceserver/persistence"
)

// mockStore is a test double for the RaceStore interface.
type mockStore struct {
	saved     []string
	saveErr   error
	lastLimit int
}

func (m *mockStore) SaveRace(roomCode string, startedAt time.Time, duration int64, results []models.FinishResult) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, roomCode)
	return nil
}

func (m *mockStore) TopPlayers(limit int) ([]persistence.LeaderboardEntry, error) {
	m.lastLimit = limit
	return nil, nil
}

func (m *mockStore) PlayerBest(name string) (*persistence.LeaderboardEntry, error) {
	return nil, persistence.ErrRecordNotFound
}

func (m *mockStore) Close() error { return nil }

func TestRaceHistoryService_RecordRace(t *testing.T) {
	store := &mockStore{}
	svc := NewRaceHistoryService(store, nil)

	total := int64(63250)
	results := []models.FinishResult{
		{PlayerID: "p1", Name: "Bob", Position: 1, Time: &total, Status: models.StatusFinished},
	}
	if err := svc.RecordRace("ABCDE", results, time.Now(), 70000); err != nil {
		t.Fatalf("RecordRace failed: %v", err)
	}
	if len(store.saved) != 1 || store.saved[0] != "ABCDE" {
		t.Errorf("Expected the race to reach the store, got %v", store.saved)
	}
}

func TestRaceHistoryService_RecordRaceWrapsStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	store := &mockStore{saveErr: cause}
	svc := NewRaceHistoryService(store, nil)

	err := svc.RecordRace("ABCDE", nil, time.Now(), 0)
	if err == nil {
		t.Fatal("Expected the store error to surface")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected the cause to be wrapped, got: %v", err)
	}
}

func TestRaceHistoryService_LeaderboardDefaultLimit(t *testing.T) {
	store := &mockStore{}
	svc := NewRaceHistoryService(store, nil)

	svc.Leaderboard(0)
	if store.lastLimit != 10 {
		t.Errorf("Expected the default limit of 10, got %d", store.lastLimit)
	}

	svc.Leaderboard(3)
	if store.lastLimit != 3 {
		t.Errorf("Expected the explicit limit to pass through, got %d", store.lastLimit)
	}
}
