package server

import (
	"encoding/json"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/wfunc/raceserver/broadcast"
	"github.com/wfunc/raceserver/logger"
	"github.com/wfunc/raceserver/models"
	"github.com/wfunc/raceserver/monitor"
	"github.com/wfunc/raceserver/network"
	"github.com/wfunc/raceserver/persistence"
	"github.com/wfunc/raceserver/room"
	raceserver_rpc "github.com/wfunc/raceserver/rpc"
	"github.com/wfunc/raceserver/services"
	"github.com/wfunc/raceserver/session"
	"github.com/wfunc/raceserver/state"
)

// heartbeatInterval is how often clients are expected to ping. The read
// deadline allows twice this before the connection is dropped.
const heartbeatInterval = 30 * time.Second

// GameServer terminates websocket connections and routes race protocol
// packets into the room directory. It is a relay plus lifecycle authority:
// reported transforms are never validated for plausibility, which is an
// accepted trust boundary for a cooperative setting.
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	router         *mux.Router
	roomManager    *room.Manager
	sessionManager *session.Manager
	raceHistory    *services.RaceHistoryService
	broadcaster    broadcast.Broadcaster
	rpcServer      *raceserver_rpc.Server
	monitor        *monitor.Monitor
	shutdownChan   chan struct{}
}

// NewGameServer wires the room directory, broadcaster, history service and
// RPC endpoint. store and mon may be nil (demo/test runs).
func NewGameServer(addr, rpcAddr string, gracePeriod time.Duration, store persistence.RaceStore, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:         addr,
		monitor:      mon,
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // browser clients connect cross-origin
			},
		},
	}

	var recorder room.RaceRecorder
	if store != nil {
		s.raceHistory = services.NewRaceHistoryService(store, mon)
		recorder = s.raceHistory
	}

	s.roomManager = room.NewManager(gracePeriod, recorder)
	s.sessionManager = session.NewManager()
	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager)

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if rpcAddr != "" {
		rpcServer, err := raceserver_rpc.NewServer(rpcAddr)
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
		s.rpcServer = rpcServer

		if s.raceHistory != nil {
			rpc.Register(raceserver_rpc.NewRaceQueryService(s.raceHistory))
		}
	}

	return s
}

func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}

	logger.Log.Infof("Race server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.router)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.roomManager.Stop()
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(heartbeatInterval)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	if s.monitor != nil {
		s.monitor.IncOnlinePlayers()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.handleDisconnect(sess)
		wsConn.Close()
		if s.monitor != nil {
			s.monitor.DecOnlinePlayers()
		}
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	if s.monitor != nil {
		s.monitor.IncMessagesReceived()
		defer func() { s.monitor.ObserveMessageLatency(time.Since(start)) }()
	}

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.LastActive = time.Now()
		sess.Conn.SetHeartbeat(heartbeatInterval)
	case network.MsgTypeCreateRoom:
		s.handleCreateRoom(sess, packet)
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeStartRace:
		s.handleStartRace(sess)
	case network.MsgTypePlayerMovement:
		s.handlePlayerMovement(sess, packet)
	case network.MsgTypePlayerFinished:
		s.handlePlayerFinished(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, packet *network.Packet) {
	var req models.CreateRoomRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			return
		}
	}
	sess.SetName(req.Name)

	r := s.roomManager.CreateRoom(sess, req.Name)

	resp := models.RoomResponse{
		Code:     r.Code,
		PlayerID: sess.GetID(),
		IsHost:   true,
		Players:  r.Snapshot(),
	}
	data, _ := json.Marshal(resp)
	sess.Send(network.MsgTypeRoomCreated, data)

	if s.monitor != nil {
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	var req models.JoinRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	sess.SetName(req.Name)

	r, p, err := s.roomManager.JoinRoom(req.Code, sess, req.Name)
	if err != nil {
		s.sendRoomError(sess, err)
		return
	}

	resp := models.RoomResponse{
		Code:     r.Code,
		PlayerID: sess.GetID(),
		IsHost:   false,
		Players:  r.Snapshot(),
	}
	data, _ := json.Marshal(resp)
	sess.Send(network.MsgTypeRoomJoined, data)

	// Existing members learn about the new arrival; the joiner already has
	// the full snapshot.
	newPlayer, _ := json.Marshal(p.Info())
	s.broadcaster.BroadcastToOthers(r.Code, sess.GetID(), network.MsgTypeNewPlayer, newPlayer)
}

func (s *GameServer) sendRoomError(sess *session.Session, err error) {
	msg := "Room does not exist."
	if err == room.ErrRaceInProgress {
		msg = "Race already in progress."
	}
	data, _ := json.Marshal(models.RoomError{Message: msg})
	sess.Send(network.MsgTypeRoomError, data)
}

func (s *GameServer) handleStartRace(sess *session.Session) {
	r, ok := s.roomManager.RoomFor(sess)
	if !ok {
		return
	}

	if err := r.HandleAction(sess.GetID(), state.Action{Type: state.ActionStart}); err != nil {
		logger.Log.Errorf("Room %s start failed: %v", r.Code, err)
		return
	}

	if s.monitor != nil && r.StateID() == state.StateRacing {
		s.monitor.IncRacesStarted()
	}
}

func (s *GameServer) handlePlayerMovement(sess *session.Session, packet *network.Packet) {
	var t models.Transform
	if err := json.Unmarshal(packet.Data, &t); err != nil {
		return
	}

	r, ok := s.roomManager.RoomFor(sess)
	if !ok {
		// Stray movement for a vanished room is a benign race; drop it.
		return
	}
	if !r.UpdateTransform(sess.GetID(), t) {
		return
	}

	data, _ := json.Marshal(models.PlayerMovedEvent{ID: sess.GetID(), Transform: t})
	s.broadcaster.BroadcastToOthers(r.Code, sess.GetID(), network.MsgTypePlayerMoved, data)

	if s.monitor != nil {
		s.monitor.IncMovementRelayed()
	}
}

func (s *GameServer) handlePlayerFinished(sess *session.Session, packet *network.Packet) {
	var req models.PlayerFinishedRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			return
		}
	}

	r, ok := s.roomManager.RoomFor(sess)
	if !ok {
		return
	}

	if err := r.HandleAction(sess.GetID(), state.Action{Type: state.ActionFinish, TotalTime: req.TotalTime}); err != nil {
		logger.Log.Errorf("Room %s finish report failed: %v", r.Code, err)
	}
}

func (s *GameServer) handleDisconnect(sess *session.Session) {
	r := s.roomManager.Disconnect(sess)
	if r == nil {
		return
	}

	data, _ := json.Marshal(models.PlayerDisconnectedEvent{ID: sess.GetID()})
	// Fails with ErrRoomNotFound when the leaver was the last member and the
	// room is already gone; nobody is left to notify in that case.
	s.broadcaster.BroadcastToRoom(r.Code, network.MsgTypePlayerDisconnected, data)

	if s.monitor != nil {
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}
}
