// services/race_history.go
package services

import (
	"fmt"
	"time"

	"github.com/wfunc/raceserver/logger"
	"github.com/wfunc/raceserver/models"
	"github.com/wfunc/raceserver/monitor"
	"github.com/wfunc/raceserver/persistence"
)

// RaceHistoryService records settled races and answers standings queries.
// It implements room.RaceRecorder.
type RaceHistoryService struct {
	store persistence.RaceStore
	mon   *monitor.Monitor
}

func NewRaceHistoryService(store persistence.RaceStore, mon *monitor.Monitor) *RaceHistoryService {
	return &RaceHistoryService{store: store, mon: mon}
}

// RecordRace persists the final classification of one race.
func (s *RaceHistoryService) RecordRace(roomCode string, results []models.FinishResult, startedAt time.Time, duration int64) error {
	if s.mon != nil {
		s.mon.IncRacesFinished()
	}

	if err := s.store.SaveRace(roomCode, startedAt, duration, results); err != nil {
		return fmt.Errorf("save race %s: %w", roomCode, err)
	}
	logger.Log.Infof("Recorded race %s: %d results", roomCode, len(results))
	return nil
}

// Leaderboard returns the top players by best finish time.
func (s *RaceHistoryService) Leaderboard(limit int) ([]persistence.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.TopPlayers(limit)
}

// PlayerBest returns one player's standing.
func (s *RaceHistoryService) PlayerBest(name string) (*persistence.LeaderboardEntry, error) {
	return s.store.PlayerBest(name)
}
