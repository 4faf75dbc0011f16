package session

import (
	"net"
	"testing"
	"time"

	"github.com/wfunc/raceserver/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	// Test Add
	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	// Test Get
	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	// Test Remove
	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestSession_Name(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})

	sess.SetName("Alice")
	if sess.GetName() != "Alice" {
		t.Errorf("Expected name Alice, got %q", sess.GetName())
	}

	// Empty names fall back to the default.
	sess.SetName("")
	if sess.GetName() != "Player" {
		t.Errorf("Expected default name Player, got %q", sess.GetName())
	}
}

func TestSession_SendTouchesActivity(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})
	before := sess.LastActive

	time.Sleep(time.Millisecond)
	if err := sess.Send(1, nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if !sess.LastActive.After(before) {
		t.Error("Send should advance LastActive")
	}
}
