// Package netsync reconciles remote players with the local render loop:
// sparse network transforms become smoothed proxy motion, and the local
// transform is emitted at a bounded rate.
package netsync

import (
	"time"

	"github.com/wfunc/raceserver/geom"
	"github.com/wfunc/raceserver/logger"
	"github.com/wfunc/raceserver/models"
)

const (
	// SmoothingFactor is the per-render-frame exponential pull of the
	// rendered proxy toward its network target. Fixed regardless of
	// message spacing; irregular arrival shows up as a small constant
	// lag instead of stutter.
	SmoothingFactor = 0.15

	// EmitInterval caps outgoing transform updates at ~30 Hz.
	EmitInterval = time.Second / 30
)

// Renderer receives smoothed transforms for drawing.
type Renderer interface {
	UpsertEntityTransform(id string, pos geom.Vec3, rot geom.Quat)
}

// KinematicBody is a remote car's collision volume. It tracks the rendered
// (smoothed) transform, never the raw network target, so collision response
// reacts to what the player actually sees.
type KinematicBody interface {
	SetNextKinematicTransform(pos geom.Vec3, rot geom.Quat)
}

// RemoteCarProxy is the client-local stand-in for one other player.
type RemoteCarProxy struct {
	ID   string
	Name string

	targetPos   geom.Vec3
	targetRot   geom.Quat
	renderedPos geom.Vec3
	renderedRot geom.Quat

	collider KinematicBody
}

// TargetPosition is the last network-reported position.
func (p *RemoteCarProxy) TargetPosition() geom.Vec3 { return p.targetPos }

// RenderedPosition is the smoothed position currently drawn.
func (p *RemoteCarProxy) RenderedPosition() geom.Vec3 { return p.renderedPos }

// RenderedRotation is the smoothed orientation currently drawn.
func (p *RemoteCarProxy) RenderedRotation() geom.Quat { return p.renderedRot }

// ColliderFactory creates the collision volume for a newly seen remote car.
type ColliderFactory func(pos geom.Vec3, rot geom.Quat) KinematicBody

// ProxySet owns every remote proxy for the current room.
type ProxySet struct {
	proxies     map[string]*RemoteCarProxy
	renderer    Renderer
	newCollider ColliderFactory
}

// NewProxySet creates an empty set. renderer and newCollider may be nil in
// headless runs.
func NewProxySet(renderer Renderer, newCollider ColliderFactory) *ProxySet {
	return &ProxySet{
		proxies:     make(map[string]*RemoteCarProxy),
		renderer:    renderer,
		newCollider: newCollider,
	}
}

// HandleJoin creates a proxy at the player's spawn. Repeat joins for an id
// already present are ignored.
func (s *ProxySet) HandleJoin(info models.PlayerInfo) {
	if _, exists := s.proxies[info.ID]; exists {
		logger.Log.Debugf("Duplicate join for %s ignored", info.ID)
		return
	}

	pos := geom.Vec3{X: info.X, Y: info.Y, Z: info.Z}
	rot := geom.Quat{X: info.QX, Y: info.QY, Z: info.QZ, W: info.QW}.Normalize()

	p := &RemoteCarProxy{
		ID:          info.ID,
		Name:        info.Name,
		targetPos:   pos,
		targetRot:   rot,
		renderedPos: pos,
		renderedRot: rot,
	}
	if s.newCollider != nil {
		p.collider = s.newCollider(pos, rot)
	}
	s.proxies[info.ID] = p
}

// HandleLeave drops a proxy. Unknown ids are ignored.
func (s *ProxySet) HandleLeave(id string) {
	delete(s.proxies, id)
}

// HandleMoved stores a new network target. The rendered transform is never
// snapped; Update pulls it over. Moves for unknown ids are dropped.
func (s *ProxySet) HandleMoved(ev models.PlayerMovedEvent) {
	p, exists := s.proxies[ev.ID]
	if !exists {
		return
	}
	p.targetPos = geom.Vec3{X: ev.X, Y: ev.Y, Z: ev.Z}
	p.targetRot = geom.Quat{X: ev.QX, Y: ev.QY, Z: ev.QZ, W: ev.QW}.Normalize()
}

// Update smooths every proxy toward its target and pushes the result to
// the renderer and collider. Call once per render frame.
func (s *ProxySet) Update() {
	for _, p := range s.proxies {
		p.renderedPos = geom.Lerp(p.renderedPos, p.targetPos, SmoothingFactor)
		p.renderedRot = geom.Slerp(p.renderedRot, p.targetRot, SmoothingFactor)

		if p.collider != nil {
			p.collider.SetNextKinematicTransform(p.renderedPos, p.renderedRot)
		}
		if s.renderer != nil {
			s.renderer.UpsertEntityTransform(p.ID, p.renderedPos, p.renderedRot)
		}
	}
}

// Get returns a proxy by id.
func (s *ProxySet) Get(id string) (*RemoteCarProxy, bool) {
	p, exists := s.proxies[id]
	return p, exists
}

// Count reports the number of live proxies.
func (s *ProxySet) Count() int {
	return len(s.proxies)
}

// Emitter throttles outgoing local-state updates by timestamp, not by
// queue; a frame that lands inside the interval simply sends nothing.
type Emitter struct {
	interval time.Duration
	lastSent time.Time
	send     func(models.Transform) error
}

func NewEmitter(send func(models.Transform) error) *Emitter {
	return &Emitter{interval: EmitInterval, send: send}
}

func NewEmitterWith(interval time.Duration, send func(models.Transform) error) *Emitter {
	return &Emitter{interval: interval, send: send}
}

// MaybeSend emits the transform if the interval has elapsed. Sends are
// fire-and-forget; a failed write is logged and the next frame tries again.
func (e *Emitter) MaybeSend(now time.Time, pos geom.Vec3, rot geom.Quat) bool {
	if now.Sub(e.lastSent) < e.interval {
		return false
	}
	e.lastSent = now

	t := models.Transform{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		QX: rot.X, QY: rot.Y, QZ: rot.Z, QW: rot.W,
	}
	if err := e.send(t); err != nil {
		logger.Log.Warnf("Movement send failed: %v", err)
	}
	return true
}
