package network

// Message IDs for the race protocol. 1xx are client requests, 2xx are
// directed replies, 3xx are room-scoped broadcasts.
const (
	MsgTypeHeartbeat = 1

	MsgTypeCreateRoom     = 101
	MsgTypeJoinRoom       = 102
	MsgTypeStartRace      = 103
	MsgTypePlayerMovement = 104
	MsgTypePlayerFinished = 105

	MsgTypeRoomCreated = 201
	MsgTypeRoomJoined  = 202
	MsgTypeRoomError   = 203

	MsgTypeRaceStarted        = 301
	MsgTypeNewPlayer          = 302
	MsgTypePlayerDisconnected = 303
	MsgTypePlayerMoved        = 304
	MsgTypeRaceWinner         = 305
	MsgTypePlayerFinishedRace = 306
	MsgTypeRaceResults        = 307
)
