package room

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/wfunc/raceserver/models"
	"github.com/wfunc/raceserver/network"
	"github.com/wfunc/raceserver/session"
	"github.com/wfunc/raceserver/state"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

// newTestSession creates a dummy session for testing purposes.
func newTestSession(id string) *session.Session {
	return session.NewSession(id, &MockConnection{})
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(60*time.Millisecond, nil)
	t.Cleanup(m.Stop)
	return m
}

func TestManager_CreateAndGetRoom(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")

	r := manager.CreateRoom(host, "Alice")
	if r == nil {
		t.Fatal("CreateRoom should not return nil")
	}

	if len(r.Code) != codeLength {
		t.Errorf("Expected a %d-character code, got %q", codeLength, r.Code)
	}
	for _, c := range r.Code {
		if !strings.ContainsRune(codeAlphabet, c) {
			t.Errorf("Code %q contains %q, which is outside the alphabet", r.Code, c)
		}
	}

	if r.HostID != "host1" {
		t.Errorf("Expected host ID host1, got %s", r.HostID)
	}
	if r.StateID() != state.StateWaiting {
		t.Errorf("New room should be waiting, got %s", r.StateID())
	}

	retrieved, exists := manager.GetRoom(r.Code)
	if !exists {
		t.Fatal("GetRoom should find the created room")
	}
	if retrieved != r {
		t.Error("GetRoom should return the same room instance")
	}
}

func TestManager_JoinRoom(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")
	guest := newTestSession("guest1")

	r := manager.CreateRoom(host, "Alice")

	joined, p, err := manager.JoinRoom(r.Code, guest, "Bob")
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if joined != r {
		t.Error("JoinRoom should resolve to the created room")
	}
	if p.IsHost {
		t.Error("A joiner must not become host")
	}
	if r.PlayerCount() != 2 {
		t.Errorf("Expected 2 players, got %d", r.PlayerCount())
	}
	if guest.RoomCode != r.Code {
		t.Errorf("Join should bind the session to the room, got %q", guest.RoomCode)
	}
}

func TestManager_JoinRoom_CodeIsCaseInsensitive(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")
	guest := newTestSession("guest1")

	r := manager.CreateRoom(host, "Alice")

	_, _, err := manager.JoinRoom(strings.ToLower(r.Code), guest, "Bob")
	if err != nil {
		t.Fatalf("Lowercase code should resolve the room, got: %v", err)
	}
}

func TestManager_JoinRoom_UnknownCode(t *testing.T) {
	manager := newTestManager(t)
	guest := newTestSession("guest1")

	_, _, err := manager.JoinRoom("ZZZZZ", guest, "Bob")
	if err != ErrRoomNotFound {
		t.Errorf("Expected ErrRoomNotFound, got: %v", err)
	}
}

func TestManager_JoinRoom_RaceInProgress(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")
	late := newTestSession("late1")

	r := manager.CreateRoom(host, "Alice")
	if err := r.HandleAction("host1", state.Action{Type: state.ActionStart}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, _, err := manager.JoinRoom(r.Code, late, "Carol")
	if err != ErrRaceInProgress {
		t.Errorf("Expected ErrRaceInProgress, got: %v", err)
	}
	if r.PlayerCount() != 1 {
		t.Errorf("Late joiner must not be admitted, got %d players", r.PlayerCount())
	}
}

func TestManager_Disconnect_DeletesEmptyRoom(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")
	guest := newTestSession("guest1")

	r := manager.CreateRoom(host, "Alice")
	manager.JoinRoom(r.Code, guest, "Bob")

	left := manager.Disconnect(guest)
	if left != r {
		t.Error("Disconnect should report the room the session left")
	}
	if manager.Count() != 1 {
		t.Errorf("Room with a remaining player must survive, got %d rooms", manager.Count())
	}

	manager.Disconnect(host)
	if manager.Count() != 0 {
		t.Errorf("Last leaver should delete the room, got %d rooms", manager.Count())
	}
	if _, exists := manager.GetRoom(r.Code); exists {
		t.Error("Deleted room should no longer resolve by code")
	}
}

func TestRoom_JoinAfterLastLeaverIsRejected(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")

	r := manager.CreateRoom(host, "Alice")

	// A joiner that resolved the room just before the last member left
	// still holds the pointer after the directory drops it.
	stale, exists := manager.GetRoom(r.Code)
	if !exists {
		t.Fatal("Room should resolve while the host is still in it")
	}
	manager.Disconnect(host)

	late := newTestSession("late1")
	if _, err := stale.AddPlayer(late, "Bob", false); err != ErrRoomNotFound {
		t.Fatalf("Join on a torn-down room should report ErrRoomNotFound, got: %v", err)
	}
	if late.RoomCode != "" {
		t.Errorf("Failed join must not bind the session to a room, got %q", late.RoomCode)
	}
	if stale.PlayerCount() != 0 {
		t.Errorf("Closed room must not accept members, got %d", stale.PlayerCount())
	}
}

func TestManager_Disconnect_NoRoomIsNoop(t *testing.T) {
	manager := newTestManager(t)
	loner := newTestSession("loner")

	if r := manager.Disconnect(loner); r != nil {
		t.Errorf("Disconnect without a room should return nil, got %v", r)
	}
}

func TestRoom_SpawnSlotsFollowJoinOrder(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("p0")
	r := manager.CreateRoom(host, "P0")

	// Fill past the grid so assignment has to wrap.
	for i := 1; i < len(spawnGrid)+2; i++ {
		sess := newTestSession(string(rune('a' + i)))
		if _, _, err := manager.JoinRoom(r.Code, sess, ""); err != nil {
			t.Fatalf("Join %d failed: %v", i, err)
		}
	}

	infos := r.Snapshot()
	if len(infos) != len(spawnGrid)+2 {
		t.Fatalf("Expected %d players, got %d", len(spawnGrid)+2, len(infos))
	}
	for i, info := range infos {
		want := spawnGrid[i%len(spawnGrid)]
		if info.Transform != want {
			t.Errorf("Player %d: expected spawn %+v, got %+v", i, want, info.Transform)
		}
	}
}

func TestRoom_DefaultPlayerName(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")

	r := manager.CreateRoom(host, "")
	infos := r.Snapshot()
	if infos[0].Name != "Player" {
		t.Errorf("Empty name should fall back to Player, got %q", infos[0].Name)
	}
}

func TestRoom_UpdateTransform(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")
	r := manager.CreateRoom(host, "Alice")

	moved := models.Transform{X: 3, Y: 0.3, Z: 10, QW: 1}
	if !r.UpdateTransform("host1", moved) {
		t.Fatal("UpdateTransform should accept a known player")
	}
	if r.Snapshot()[0].Transform != moved {
		t.Error("Snapshot should reflect the stored transform")
	}

	if r.UpdateTransform("ghost", moved) {
		t.Error("UpdateTransform should reject an unknown player")
	}
}

func TestRoom_GraceTimerRetiresStragglers(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")
	guest := newTestSession("guest1")

	r := manager.CreateRoom(host, "Alice")
	manager.JoinRoom(r.Code, guest, "Bob")

	r.HandleAction("host1", state.Action{Type: state.ActionStart})
	total := int64(40000)
	r.HandleAction("guest1", state.Action{Type: state.ActionFinish, TotalTime: &total})

	if r.StateID() != state.StateRacing {
		t.Fatalf("Race should still be live, got %s", r.StateID())
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.StateID() != state.StateFinished {
		if time.Now().After(deadline) {
			t.Fatal("Grace timer never settled the race")
		}
		time.Sleep(10 * time.Millisecond)
	}

	finished := r.Machine.GetCurrentState().(*state.FinishedState)
	results := finished.Results()
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].PlayerID != "guest1" || results[0].Status != models.StatusFinished {
		t.Errorf("Unexpected winner row: %+v", results[0])
	}
	if results[1].PlayerID != "host1" || results[1].Status != models.StatusRetired || results[1].Time != nil {
		t.Errorf("Unexpected retired row: %+v", results[1])
	}
}

func TestRoom_CloseCancelsGraceTimer(t *testing.T) {
	manager := newTestManager(t)
	host := newTestSession("host1")
	guest := newTestSession("guest1")

	r := manager.CreateRoom(host, "Alice")
	manager.JoinRoom(r.Code, guest, "Bob")

	r.HandleAction("host1", state.Action{Type: state.ActionStart})
	total := int64(40000)
	r.HandleAction("guest1", state.Action{Type: state.ActionFinish, TotalTime: &total})

	manager.Disconnect(guest)
	manager.Disconnect(host)

	// Let any stale timer fire; a closed room must swallow it.
	time.Sleep(200 * time.Millisecond)
	if manager.Count() != 0 {
		t.Errorf("Expected no rooms after everyone left, got %d", manager.Count())
	}
}

func TestManager_CodesAreUnique(t *testing.T) {
	manager := newTestManager(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		r := manager.CreateRoom(newTestSession(string(rune(i))), "P")
		if seen[r.Code] {
			t.Fatalf("Duplicate live room code %s", r.Code)
		}
		seen[r.Code] = true
	}
}
