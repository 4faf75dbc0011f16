// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/raceserver/room"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// Broadcaster fans messages out to a room's members. The relay path never
// echoes back to the sender, so both shapes are needed.
type Broadcaster interface {
	BroadcastToRoom(code string, msgID uint16, data []byte) error
	BroadcastToOthers(code string, excludeID string, msgID uint16, data []byte) error
}

// RoomBroadcaster resolves rooms through the manager and writes to every
// member session.
type RoomBroadcaster struct {
	roomManager *room.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{roomManager: roomManager}
}

func (b *RoomBroadcaster) BroadcastToRoom(code string, msgID uint16, data []byte) error {
	return b.send(code, "", msgID, data)
}

func (b *RoomBroadcaster) BroadcastToOthers(code string, excludeID string, msgID uint16, data []byte) error {
	return b.send(code, excludeID, msgID, data)
}

func (b *RoomBroadcaster) send(code string, excludeID string, msgID uint16, data []byte) error {
	r, exists := b.roomManager.GetRoom(code)
	if !exists {
		return ErrRoomNotFound
	}

	for _, s := range r.GetSessions() {
		if s.GetID() == excludeID {
			continue
		}
		if err := s.Send(msgID, data); err != nil {
			// A dead connection is reaped by its own read loop.
			continue
		}
	}
	return nil
}
