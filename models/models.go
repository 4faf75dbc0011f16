// models/models.go
package models

// Transform is a position plus an orientation quaternion. No velocity is
// carried on the wire; remote cars are smoothed client-side instead.
type Transform struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	QX float64 `json:"qx"`
	QY float64 `json:"qy"`
	QZ float64 `json:"qz"`
	QW float64 `json:"qw"`
}

// PlayerInfo is the full player state shared on membership changes.
type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
	Transform
}

// Finish status values.
const (
	StatusFinished = "finished"
	StatusRetired  = "retired"
)

// FinishResult is one row of the race classification. Time is nil for
// retired players.
type FinishResult struct {
	PlayerID string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Time     *int64 `json:"time"`
	Status   string `json:"status"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type JoinRoomRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type RoomResponse struct {
	Code string `json:"code"`
	// PlayerID tells the client its own connection identifier.
	PlayerID string       `json:"playerId"`
	IsHost   bool         `json:"isHost"`
	Players  []PlayerInfo `json:"players"`
}

type RoomError struct {
	Message string `json:"message"`
}

type PlayerFinishedRequest struct {
	// TotalTime is the client-measured race time in ms; the server falls
	// back to its own clock when absent.
	TotalTime *int64 `json:"totalTime,omitempty"`
}

type PlayerMovedEvent struct {
	ID string `json:"id"`
	Transform
}

type PlayerDisconnectedEvent struct {
	ID string `json:"id"`
}

type RaceWinnerEvent struct {
	WinnerID   string `json:"winnerId"`
	WinnerName string `json:"winnerName"`
	WinnerTime int64  `json:"winnerTime"`
}

type PlayerFinishedEvent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Time     int64  `json:"time"`
}

type RaceResultsEvent struct {
	Results []FinishResult `json:"results"`
}
