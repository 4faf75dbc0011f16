// persistence/interface.go
package persistence

import (
	"fmt"
	"time"

	"github.com/wfunc/raceserver/models"
)

// LeaderboardEntry is one row of the all-time standings.
type LeaderboardEntry struct {
	Name     string `json:"name"`
	BestTime int64  `json:"best_time"` // ms
	Races    int    `json:"races"`
	Wins     int    `json:"wins"`
}

// RaceStore persists settled races and the per-player bests derived from
// them. Room state itself is never persisted; it lives and dies with the
// process.
type RaceStore interface {
	SaveRace(roomCode string, startedAt time.Time, duration int64, results []models.FinishResult) error
	TopPlayers(limit int) ([]LeaderboardEntry, error)
	PlayerBest(name string) (*LeaderboardEntry, error)
	Close() error
}

var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
