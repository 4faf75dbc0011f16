// room/room.go
package room

import (
	"sync"
	"time"

	"github.com/wfunc/raceserver/logger"
	"github.com/wfunc/raceserver/models"
	"github.com/wfunc/raceserver/session"
	"github.com/wfunc/raceserver/state"
	"github.com/wfunc/raceserver/timer"
)

// Player is one room member plus the last transform it reported. The
// transform is last-write-wins; the server never validates it.
type Player struct {
	ID        string
	Name      string
	IsHost    bool
	Transform models.Transform
	sess      *session.Session
}

func (p *Player) GetID() string   { return p.ID }
func (p *Player) GetName() string { return p.Name }

// Info snapshots the player for the wire.
func (p *Player) Info() models.PlayerInfo {
	return models.PlayerInfo{
		ID:        p.ID,
		Name:      p.Name,
		IsHost:    p.IsHost,
		Transform: p.Transform,
	}
}

// Room is one race session. All mutation funnels through the exported
// entry points, which serialize on the room lock; that preserves the
// single-threaded handler model the lifecycle relies on.
type Room struct {
	Code      string
	HostID    string
	Machine   state.StateMachine
	CreatedAt time.Time

	players   []*Player // join order
	playerIdx map[string]*Player

	timers       *timer.TimerManager
	gracePeriod  time.Duration
	recorder     RaceRecorder
	graceTimerID int64
	closed       bool
	mu           sync.Mutex
}

func newRoom(code string, timers *timer.TimerManager, gracePeriod time.Duration, recorder RaceRecorder) *Room {
	r := &Room{
		Code:        code,
		CreatedAt:   time.Now(),
		playerIdx:   make(map[string]*Player),
		timers:      timers,
		gracePeriod: gracePeriod,
		recorder:    recorder,
	}
	r.Machine = state.NewBaseStateMachine(state.NewWaitingState(r))
	return r
}

// --- state.RoomContext (callers hold r.mu) ---

func (r *Room) GetCode() string {
	return r.Code
}

func (r *Room) GetHostID() string {
	return r.HostID
}

func (r *Room) GetPlayers() []state.Player {
	players := make([]state.Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	return players
}

func (r *Room) ChangeState(newState state.State) error {
	return r.Machine.ChangeState(newState)
}

func (r *Room) Broadcast(msgID uint16, data []byte) {
	for _, p := range r.players {
		if err := p.sess.Send(msgID, data); err != nil {
			logger.Log.Warnf("Room %s: send %d to %s failed: %v", r.Code, msgID, p.ID, err)
		}
	}
}

func (r *Room) BroadcastExcept(excludeID string, msgID uint16, data []byte) {
	for _, p := range r.players {
		if p.ID == excludeID {
			continue
		}
		if err := p.sess.Send(msgID, data); err != nil {
			logger.Log.Warnf("Room %s: send %d to %s failed: %v", r.Code, msgID, p.ID, err)
		}
	}
}

// ScheduleGraceTimer arms the one-shot grace countdown. The callback
// re-validates through onGraceTimer, so a room torn down in the interim
// turns the firing into a no-op even if cancellation lost the race.
func (r *Room) ScheduleGraceTimer(callback func()) time.Time {
	deadline := time.Now().Add(r.gracePeriod)
	r.graceTimerID = r.timers.AddTimer(r.gracePeriod, 0, func() {
		r.onGraceTimer(callback)
	})
	return deadline
}

func (r *Room) RecordRace(results []models.FinishResult, startedAt time.Time, duration int64) {
	if r.recorder == nil {
		return
	}
	// Persistence is off the handler path; a slow database must not stall
	// the room.
	resultsCopy := make([]models.FinishResult, len(results))
	copy(resultsCopy, results)
	go func() {
		if err := r.recorder.RecordRace(r.Code, resultsCopy, startedAt, duration); err != nil {
			logger.Log.Errorf("Room %s: record race failed: %v", r.Code, err)
		}
	}()
}

// --- locked entry points ---

// HandleAction dispatches a player request into the current state.
func (r *Room) HandleAction(playerID string, action state.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	p, ok := r.playerIdx[playerID]
	if !ok {
		return nil
	}
	return r.Machine.GetCurrentState().HandleAction(p, action)
}

func (r *Room) onGraceTimer(callback func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		logger.Log.Debugf("Room %s: grace timer fired after teardown", r.Code)
		return
	}
	if r.Machine.GetCurrentState().GetID() != state.StateRacing {
		return
	}
	callback()
}

// AddPlayer appends a member on the next spawn slot. Joins are only
// admitted while the room is still waiting; the check and the slot pick
// share one critical section so a concurrent start cannot slip a late
// joiner in. A room torn down between lookup and join reads as not found,
// matching what a fresh lookup would say.
func (r *Room) AddPlayer(sess *session.Session, name string, isHost bool) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomNotFound
	}
	if !isHost && r.Machine.GetCurrentState().GetID() != state.StateWaiting {
		return nil, ErrRaceInProgress
	}

	p := &Player{
		ID:        sess.GetID(),
		Name:      name,
		IsHost:    isHost,
		Transform: spawnGrid[len(r.players)%len(spawnGrid)],
		sess:      sess,
	}
	r.players = append(r.players, p)
	r.playerIdx[p.ID] = p
	if isHost {
		r.HostID = p.ID
	}
	sess.RoomCode = r.Code
	return p, nil
}

// RemovePlayer drops a member and reports the remaining count.
func (r *Room) RemovePlayer(playerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, exists := r.playerIdx[playerID]; exists {
		p.sess.RoomCode = ""
		delete(r.playerIdx, playerID)
		for i, q := range r.players {
			if q.ID == playerID {
				r.players = append(r.players[:i], r.players[i+1:]...)
				break
			}
		}
	}
	return len(r.players)
}

// UpdateTransform overwrites a player's stored transform. Returns false for
// unknown players.
func (r *Room) UpdateTransform(playerID string, t models.Transform) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.playerIdx[playerID]
	if !exists {
		return false
	}
	p.Transform = t
	return true
}

// GetSessions returns the member sessions (thread-safe copy).
func (r *Room) GetSessions() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*session.Session, 0, len(r.players))
	for _, p := range r.players {
		sessions = append(sessions, p.sess)
	}
	return sessions
}

// Snapshot returns the membership in join order.
func (r *Room) Snapshot() []models.PlayerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]models.PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		infos = append(infos, p.Info())
	}
	return infos
}

// StateID reports the current lifecycle phase.
func (r *Room) StateID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Machine.GetCurrentState().GetID()
}

// PlayerCount reports current membership.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Close marks the room dead and cancels a pending grace timer.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.graceTimerID != 0 {
		r.timers.RemoveTimer(r.graceTimerID)
		r.graceTimerID = 0
	}
}
