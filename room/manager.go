// room/manager.go
package room

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/raceserver/logger"
	"github.com/wfunc/raceserver/models"
	"github.com/wfunc/raceserver/session"
	"github.com/wfunc/raceserver/timer"
)

var (
	ErrRoomNotFound   = errors.New("room does not exist")
	ErrRaceInProgress = errors.New("race already in progress")
)

// codeAlphabet drops visually-ambiguous symbols (I, 1, O, 0).
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 5
)

// spawnGrid is the fixed pool of staggered grid slots behind the finish
// line. Assignment cycles over it by join order, wrapping when the field
// outgrows the pool.
var spawnGrid = []models.Transform{
	{X: -1.5, Y: 0.3, Z: 52, QW: 1},
	{X: 1.5, Y: 0.3, Z: 56, QW: 1},
	{X: -1.5, Y: 0.3, Z: 62, QW: 1},
	{X: 1.5, Y: 0.3, Z: 66, QW: 1},
	{X: -1.5, Y: 0.3, Z: 72, QW: 1},
	{X: 1.5, Y: 0.3, Z: 76, QW: 1},
	{X: -1.5, Y: 0.3, Z: 82, QW: 1},
	{X: 1.5, Y: 0.3, Z: 86, QW: 1},
}

// Manager owns the room directory: code -> room plus the shared grace-timer
// scheduler. It is the single ownership boundary for all room state.
type Manager struct {
	rooms       map[string]*Room
	timers      *timer.TimerManager
	gracePeriod time.Duration
	recorder    RaceRecorder
	rng         *rand.Rand
	mutex       sync.RWMutex
}

// NewManager creates a room manager. recorder may be nil when race history
// persistence is disabled.
func NewManager(gracePeriod time.Duration, recorder RaceRecorder) *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		timers:      timer.NewTimerManager(),
		gracePeriod: gracePeriod,
		recorder:    recorder,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRoom opens a room in waiting state with the creator as host on the
// first grid slot. Creation always succeeds.
func (m *Manager) CreateRoom(sess *session.Session, name string) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	code := m.nextCode()
	r := newRoom(code, m.timers, m.gracePeriod, m.recorder)
	m.rooms[code] = r

	r.AddPlayer(sess, playerName(name), true)
	logger.Log.Infof("Room %s created by %s (%s)", code, playerName(name), sess.GetID())
	return r
}

// JoinRoom adds a player to an existing waiting room on the next grid slot.
func (m *Manager) JoinRoom(code string, sess *session.Session, name string) (*Room, *Player, error) {
	code = strings.ToUpper(code)

	m.mutex.RLock()
	r, exists := m.rooms[code]
	m.mutex.RUnlock()

	if !exists {
		return nil, nil, ErrRoomNotFound
	}

	p, err := r.AddPlayer(sess, playerName(name), false)
	if err != nil {
		return nil, nil, err
	}
	logger.Log.Infof("%s (%s) joined room %s", p.Name, p.ID, code)
	return r, p, nil
}

// GetRoom looks a room up by code.
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	r, exists := m.rooms[code]
	return r, exists
}

// RoomFor resolves the room a session currently belongs to.
func (m *Manager) RoomFor(sess *session.Session) (*Room, bool) {
	if sess.RoomCode == "" {
		return nil, false
	}
	return m.GetRoom(sess.RoomCode)
}

// Disconnect removes the session's player from its room and deletes the
// room when it empties. Returns the room it left, or nil.
func (m *Manager) Disconnect(sess *session.Session) *Room {
	r, ok := m.RoomFor(sess)
	if !ok {
		return nil
	}

	remaining := r.RemovePlayer(sess.GetID())
	if remaining == 0 {
		m.removeRoom(r.Code)
	}
	return r
}

// Count reports the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Stop shuts down the shared timer scheduler.
func (m *Manager) Stop() {
	m.timers.Stop()
}

func (m *Manager) removeRoom(code string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if r, exists := m.rooms[code]; exists {
		r.Close()
		delete(m.rooms, code)
		logger.Log.Infof("Room %s deleted", code)
	}
}

// nextCode draws codes until one misses the live directory. A single draw
// almost always suffices; the loop closes the collision hole outright
// instead of trusting the odds.
func (m *Manager) nextCode() string {
	for {
		b := make([]byte, codeLength)
		for i := range b {
			b[i] = codeAlphabet[m.rng.Intn(len(codeAlphabet))]
		}
		code := string(b)
		if _, taken := m.rooms[code]; !taken {
			return code
		}
	}
}

func playerName(name string) string {
	if name == "" {
		return "Player"
	}
	return name
}
