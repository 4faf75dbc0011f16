package room

import (
	"time"

	"github.com/wfunc/raceserver/models"
)

// RaceRecorder receives the final classification of a settled race.
// Defined here to keep room free of a persistence import.
type RaceRecorder interface {
	RecordRace(roomCode string, results []models.FinishResult, startedAt time.Time, duration int64) error
}
