package state

import (
	"encoding/json"
	"time"

	"github.com/wfunc/raceserver/logger"
	"github.com/wfunc/raceserver/models"
	"github.com/wfunc/raceserver/network"
)

// NewWaitingState creates the pre-race lobby state.
func NewWaitingState(room RoomContext) *WaitingState {
	return &WaitingState{
		RoomStateBase: RoomStateBase{
			ID:   StateWaiting,
			Room: room,
		},
	}
}

// WaitingState accepts joins and waits for the host to start the race.
type WaitingState struct {
	RoomStateBase
}

func (s *WaitingState) HandleAction(player Player, action Action) error {
	if action.Type != ActionStart {
		return nil
	}

	if player.GetID() != s.Room.GetHostID() {
		// Non-host start requests are swallowed, not surfaced.
		logger.Log.Warnf("Non-host %s requested start in room %s", player.GetID(), s.Room.GetCode())
		return nil
	}

	return s.Room.ChangeState(NewRacingState(s.Room))
}

// NewRacingState creates the live-race state.
func NewRacingState(room RoomContext) *RacingState {
	return &RacingState{
		RoomStateBase: RoomStateBase{
			ID:   StateRacing,
			Room: room,
		},
		finished: make(map[string]bool),
	}
}

// RacingState owns finish bookkeeping: ranks by arrival order, the winner
// broadcast, the grace countdown and the everyone-finished short circuit.
type RacingState struct {
	RoomStateBase
	startTime        time.Time
	results          []models.FinishResult
	finished         map[string]bool
	countdownStarted bool
	countdownEnd     time.Time
	settled          bool
}

func (s *RacingState) OnEnter() {
	s.startTime = time.Now()
	s.results = s.results[:0]
	logger.Log.Infof("Room %s race started", s.Room.GetCode())
	// Everyone, host included, gets the same start signal at once.
	s.Room.Broadcast(network.MsgTypeRaceStarted, []byte(`{}`))
}

func (s *RacingState) HandleAction(player Player, action Action) error {
	if action.Type != ActionFinish {
		return nil
	}
	s.handleFinish(player, action.TotalTime)
	return nil
}

func (s *RacingState) handleFinish(player Player, totalTime *int64) {
	if s.settled {
		return
	}

	id := player.GetID()
	if !s.isMember(id) {
		return
	}
	if s.finished[id] {
		// Duplicate finish reports are idempotent.
		return
	}

	finishTime := int64(time.Since(s.startTime) / time.Millisecond)
	if totalTime != nil {
		finishTime = *totalTime
	}

	position := len(s.results) + 1
	s.results = append(s.results, models.FinishResult{
		PlayerID: id,
		Name:     player.GetName(),
		Position: position,
		Time:     &finishTime,
		Status:   models.StatusFinished,
	})
	s.finished[id] = true

	logger.Log.Infof("Room %s: %s finished P%d (%dms)", s.Room.GetCode(), player.GetName(), position, finishTime)

	if position == 1 && !s.countdownStarted {
		s.countdownStarted = true

		data, _ := json.Marshal(models.RaceWinnerEvent{
			WinnerID:   id,
			WinnerName: player.GetName(),
			WinnerTime: finishTime,
		})
		s.Room.Broadcast(network.MsgTypeRaceWinner, data)

		s.countdownEnd = s.Room.ScheduleGraceTimer(s.OnGraceExpired)
		return
	}

	data, _ := json.Marshal(models.PlayerFinishedEvent{
		ID:       id,
		Name:     player.GetName(),
		Position: position,
		Time:     finishTime,
	})
	s.Room.BroadcastExcept(id, network.MsgTypePlayerFinishedRace, data)

	if s.fieldComplete() {
		// The field is complete; no need to wait out the countdown.
		s.settle()
	}
}

// fieldComplete reports whether every player still in the room has a
// finish entry. Entries left by finishers who departed mid-race keep
// their rank but do not count against the remaining field.
func (s *RacingState) fieldComplete() bool {
	for _, p := range s.Room.GetPlayers() {
		if !s.finished[p.GetID()] {
			return false
		}
	}
	return true
}

// OnGraceExpired runs when the countdown elapses. The room has already
// validated that it still exists and is still racing.
func (s *RacingState) OnGraceExpired() {
	if s.settled {
		return
	}
	logger.Log.Infof("Room %s grace period elapsed", s.Room.GetCode())
	s.settle()
}

// settle retires everyone without a finish entry and moves to finished.
func (s *RacingState) settle() {
	s.settled = true

	for _, p := range s.Room.GetPlayers() {
		if s.finished[p.GetID()] {
			continue
		}
		s.results = append(s.results, models.FinishResult{
			PlayerID: p.GetID(),
			Name:     p.GetName(),
			Position: len(s.results) + 1,
			Time:     nil,
			Status:   models.StatusRetired,
		})
		s.finished[p.GetID()] = true
	}

	if err := s.Room.ChangeState(NewFinishedState(s.Room, s.results, s.startTime)); err != nil {
		logger.Log.Errorf("Room %s failed to settle: %v", s.Room.GetCode(), err)
	}
}

func (s *RacingState) isMember(id string) bool {
	for _, p := range s.Room.GetPlayers() {
		if p.GetID() == id {
			return true
		}
	}
	return false
}

// Results exposes the classification so far, in rank order.
func (s *RacingState) Results() []models.FinishResult {
	return s.results
}

// CountdownEnd is the grace deadline; zero until the first finisher.
func (s *RacingState) CountdownEnd() time.Time {
	return s.countdownEnd
}

// NewFinishedState creates the terminal state.
func NewFinishedState(room RoomContext, results []models.FinishResult, startedAt time.Time) *FinishedState {
	return &FinishedState{
		RoomStateBase: RoomStateBase{
			ID:   StateFinished,
			Room: room,
		},
		results:   results,
		startedAt: startedAt,
	}
}

// FinishedState broadcasts the final classification exactly once. The room
// itself is torn down when its last player leaves.
type FinishedState struct {
	RoomStateBase
	results   []models.FinishResult
	startedAt time.Time
}

func (s *FinishedState) OnEnter() {
	data, err := json.Marshal(models.RaceResultsEvent{Results: s.results})
	if err != nil {
		logger.Log.Errorf("Room %s failed to marshal results: %v", s.Room.GetCode(), err)
		return
	}
	s.Room.Broadcast(network.MsgTypeRaceResults, data)

	duration := int64(time.Since(s.startedAt) / time.Millisecond)
	s.Room.RecordRace(s.results, s.startedAt, duration)

	logger.Log.Infof("Room %s race finished with %d results", s.Room.GetCode(), len(s.results))
}

// Results returns the final classification.
func (s *FinishedState) Results() []models.FinishResult {
	return s.results
}

// HandleAction ignores everything; finished is terminal, so late finish
// reports land here and are dropped.
func (s *FinishedState) HandleAction(player Player, action Action) error {
	return nil
}
