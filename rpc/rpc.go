package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/raceserver/logger"
	"github.com/wfunc/raceserver/persistence"
	"github.com/wfunc/raceserver/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RaceQueryService exposes standings queries over net/rpc for operator
// tooling. Methods follow the net/rpc signature rules.
type RaceQueryService struct {
	history *services.RaceHistoryService
}

func NewRaceQueryService(history *services.RaceHistoryService) *RaceQueryService {
	return &RaceQueryService{history: history}
}

type LeaderboardArgs struct {
	Limit int
}

type LeaderboardReply struct {
	Entries []persistence.LeaderboardEntry
}

func (s *RaceQueryService) GetLeaderboard(args *LeaderboardArgs, reply *LeaderboardReply) error {
	entries, err := s.history.Leaderboard(args.Limit)
	if err != nil {
		return err
	}
	reply.Entries = entries
	return nil
}

type PlayerBestArgs struct {
	Name string
}

type PlayerBestReply struct {
	Entry *persistence.LeaderboardEntry
}

func (s *RaceQueryService) GetPlayerBest(args *PlayerBestArgs, reply *PlayerBestReply) error {
	entry, err := s.history.PlayerBest(args.Name)
	if err != nil {
		return err
	}
	reply.Entry = entry
	return nil
}
