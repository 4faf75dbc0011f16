// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/raceserver/models"
)

// Player is the minimal view of a room member a race state needs.
type Player interface {
	GetID() string
	GetName() string
}

// RoomContext is what a Room must implement to be driven by the race state
// machine. Defined here to break the import cycle between room and state.
//
// Every method is invoked while the room holds its own lock (states only run
// inside the room's action/timer entry points), so implementations must not
// re-acquire it.
type RoomContext interface {
	GetCode() string
	GetHostID() string
	// GetPlayers returns current members in join order.
	GetPlayers() []Player
	ChangeState(newState State) error
	Broadcast(msgID uint16, data []byte)
	BroadcastExcept(excludeID string, msgID uint16, data []byte)
	// ScheduleGraceTimer arms the one-shot countdown after the first
	// finisher and returns its deadline. The room cancels it on teardown.
	ScheduleGraceTimer(callback func()) time.Time
	// RecordRace hands the final classification to persistence.
	RecordRace(results []models.FinishResult, startedAt time.Time, duration int64)
}
