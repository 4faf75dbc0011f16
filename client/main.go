// client/main.go
//
// Headless demo client. It dials the race server, creates or joins a room,
// and drives a car straight down the track with the same fixed-step loop,
// vehicle model and remote smoothing the real client uses. The host types
// "start" to launch the race; everyone else just waits for the green light.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/raceserver/geom"
	"github.com/wfunc/raceserver/models"
	"github.com/wfunc/raceserver/netsync"
	"github.com/wfunc/raceserver/network"
	"github.com/wfunc/raceserver/physics"
	"github.com/wfunc/raceserver/sim"
	"github.com/wfunc/raceserver/vehicle"
)

const (
	carMass = 1.0

	// Spawns sit at Z 52..86 and the car noses toward -Z, so anything
	// past this plane has crossed the line.
	finishLineZ = 0.0

	frameInterval = 16 * time.Millisecond
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	room := flag.String("room", "", "room code to join; empty creates a room")
	name := flag.String("name", "Player", "player name")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	conn := network.NewWSConnection(ws)
	defer conn.Close()

	packets := make(chan *network.Packet, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			pkt, err := conn.ReadPacket()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packets <- pkt
		}
	}()

	if *room == "" {
		req, _ := json.Marshal(models.CreateRoomRequest{Name: *name})
		if err := conn.Send(network.MsgTypeCreateRoom, req); err != nil {
			log.Fatalf("Create room failed: %v", err)
		}
	} else {
		req, _ := json.Marshal(models.JoinRoomRequest{Code: *room, Name: *name})
		if err := conn.Send(network.MsgTypeJoinRoom, req); err != nil {
			log.Fatalf("Join room failed: %v", err)
		}
	}

	resp, err := awaitRoom(packets, done)
	if err != nil {
		log.Fatalf("Room setup failed: %v", err)
	}
	log.Printf("In room %s as %s (host=%v)", resp.Code, resp.PlayerID, resp.IsHost)

	c := newClient(conn, resp)

	if resp.IsHost {
		log.Println("Type 'start' and press Enter to launch the race.")
		go func() {
			reader := bufio.NewReader(os.Stdin)
			for {
				text, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimSpace(text) == "start" {
					if err := conn.Send(network.MsgTypeStartRace, []byte("{}")); err != nil {
						log.Println("Start failed:", err)
					}
				}
			}
		}()
	}

	frames := time.NewTicker(frameInterval)
	defer frames.Stop()
	last := time.Now()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case pkt := <-packets:
			c.handlePacket(pkt)
		case now := <-frames.C:
			delta := now.Sub(last).Seconds()
			last = now
			c.frame(now, delta)
		}
	}
}

// awaitRoom consumes packets until the room reply arrives.
func awaitRoom(packets chan *network.Packet, done chan struct{}) (*models.RoomResponse, error) {
	for {
		select {
		case <-done:
			return nil, os.ErrClosed
		case pkt := <-packets:
			switch pkt.MsgID {
			case network.MsgTypeRoomCreated, network.MsgTypeRoomJoined:
				var resp models.RoomResponse
				if err := json.Unmarshal(pkt.Data, &resp); err != nil {
					return nil, err
				}
				return &resp, nil
			case network.MsgTypeRoomError:
				var roomErr models.RoomError
				json.Unmarshal(pkt.Data, &roomErr)
				log.Fatalf("Room error: %s", roomErr.Message)
			}
		}
	}
}

// client holds the local car, the fixed-step loop and the remote proxies.
type client struct {
	conn *network.WSConnection

	world        *physics.World
	car          *physics.Body
	controller   *vehicle.Controller
	loop         *sim.Loop
	interpolator *sim.Interpolator
	proxies      *netsync.ProxySet
	emitter      *netsync.Emitter

	racing    bool
	finished  bool
	raceStart time.Time
}

func newClient(conn *network.WSConnection, resp *models.RoomResponse) *client {
	c := &client{
		conn:  conn,
		world: physics.NewWorld(),
		loop:  sim.NewLoop(),
	}

	spawn := models.Transform{QW: 1}
	for _, info := range resp.Players {
		if info.ID == resp.PlayerID {
			spawn = info.Transform
		}
	}

	c.car = c.world.CreateDynamicBody(geom.Vec3{X: spawn.X, Y: spawn.Y, Z: spawn.Z}, carMass)
	c.car.SetTransform(
		geom.Vec3{X: spawn.X, Y: spawn.Y, Z: spawn.Z},
		geom.Quat{X: spawn.QX, Y: spawn.QY, Z: spawn.QZ, W: spawn.QW}.Normalize(),
	)
	c.controller = vehicle.NewController(c.car)
	c.interpolator = sim.NewInterpolator(c.car)

	c.proxies = netsync.NewProxySet(nil, func(pos geom.Vec3, rot geom.Quat) netsync.KinematicBody {
		return c.world.CreateKinematicBody(pos, rot)
	})
	c.emitter = netsync.NewEmitter(func(t models.Transform) error {
		data, _ := json.Marshal(t)
		return c.conn.Send(network.MsgTypePlayerMovement, data)
	})

	// Players already in the room become proxies right away.
	for _, info := range resp.Players {
		if info.ID != resp.PlayerID {
			c.proxies.HandleJoin(info)
		}
	}

	return c
}

func (c *client) handlePacket(pkt *network.Packet) {
	switch pkt.MsgID {
	case network.MsgTypeRaceStarted:
		log.Println("Race started!")
		c.racing = true
		c.raceStart = time.Now()

	case network.MsgTypeNewPlayer:
		var info models.PlayerInfo
		if err := json.Unmarshal(pkt.Data, &info); err != nil {
			return
		}
		log.Printf("%s joined", info.Name)
		c.proxies.HandleJoin(info)

	case network.MsgTypePlayerDisconnected:
		var ev models.PlayerDisconnectedEvent
		if err := json.Unmarshal(pkt.Data, &ev); err != nil {
			return
		}
		c.proxies.HandleLeave(ev.ID)

	case network.MsgTypePlayerMoved:
		var ev models.PlayerMovedEvent
		if err := json.Unmarshal(pkt.Data, &ev); err != nil {
			return
		}
		c.proxies.HandleMoved(ev)

	case network.MsgTypeRaceWinner:
		var ev models.RaceWinnerEvent
		if err := json.Unmarshal(pkt.Data, &ev); err != nil {
			return
		}
		log.Printf("%s took the win in %dms", ev.WinnerName, ev.WinnerTime)

	case network.MsgTypePlayerFinishedRace:
		var ev models.PlayerFinishedEvent
		if err := json.Unmarshal(pkt.Data, &ev); err != nil {
			return
		}
		log.Printf("%s finished P%d (%dms)", ev.Name, ev.Position, ev.Time)

	case network.MsgTypeRaceResults:
		var ev models.RaceResultsEvent
		if err := json.Unmarshal(pkt.Data, &ev); err != nil {
			return
		}
		log.Println("Final results:")
		for _, r := range ev.Results {
			if r.Time != nil {
				log.Printf("  P%d %-12s %dms", r.Position, r.Name, *r.Time)
			} else {
				log.Printf("  P%d %-12s %s", r.Position, r.Name, r.Status)
			}
		}

	case network.MsgTypeRoomError:
		var roomErr models.RoomError
		if err := json.Unmarshal(pkt.Data, &roomErr); err != nil {
			return
		}
		log.Printf("Server error: %s", roomErr.Message)
	}
}

// frame runs one render frame: fixed-step the world, smooth remote cars,
// throttle a movement emit while racing, and report the finish once the
// line is crossed.
func (c *client) frame(now time.Time, delta float64) {
	input := vehicle.Input{Forward: c.racing && !c.finished}

	c.loop.Advance(delta, func(dt float64) {
		c.interpolator.SnapshotPrev()
		c.controller.Update(input, dt)
		c.world.StepWorld(dt)
	})

	c.proxies.Update()

	if c.racing {
		pose := c.interpolator.RenderPose(c.loop.Alpha())
		c.emitter.MaybeSend(now, pose.Pos, pose.Rot)
	}

	if c.racing && !c.finished && c.car.Position().Z < finishLineZ {
		c.finished = true
		total := time.Since(c.raceStart).Milliseconds()
		req, _ := json.Marshal(models.PlayerFinishedRequest{TotalTime: &total})
		if err := c.conn.Send(network.MsgTypePlayerFinished, req); err != nil {
			log.Println("Finish report failed:", err)
			return
		}
		log.Printf("Crossed the line in %dms", total)
	}
}
