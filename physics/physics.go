// Package physics is a minimal headless rigid-body world: dynamic bodies
// integrate impulses and gravity over a flat ground plane, kinematic bodies
// are positioned directly. It exists so the client core and its tests run
// without a native physics engine behind the same narrow boundary.
package physics

import (
	"github.com/wfunc/raceserver/geom"
	"github.com/wfunc/raceserver/sim"
)

const defaultGravityY = -9.81

// World steps its bodies at a fixed timestep.
type World struct {
	Gravity geom.Vec3
	// GroundY is the height of the flat ground plane bodies rest on.
	GroundY float64
	bodies  []*Body
}

func NewWorld() *World {
	return &World{
		Gravity: geom.Vec3{Y: defaultGravityY},
		GroundY: 0.3,
	}
}

// StepWorld advances every dynamic body by exactly dt.
func (w *World) StepWorld(dt float64) {
	for _, b := range w.bodies {
		if b.kinematic {
			b.applyKinematicTarget()
			continue
		}
		b.integrate(dt, w.Gravity, w.GroundY)
	}
}

// CreateDynamicBody adds an impulse-driven body.
func (w *World) CreateDynamicBody(pos geom.Vec3, mass float64) *Body {
	b := &Body{
		mass: mass,
		pos:  pos,
		rot:  geom.QuatIdentity,
	}
	w.bodies = append(w.bodies, b)
	return b
}

// CreateKinematicBody adds a body positioned from outside the simulation;
// remote car collision volumes use these.
func (w *World) CreateKinematicBody(pos geom.Vec3, rot geom.Quat) *Body {
	b := &Body{
		kinematic: true,
		pos:       pos,
		rot:       rot,
		nextPos:   pos,
		nextRot:   rot,
	}
	w.bodies = append(w.bodies, b)
	return b
}

// Body is a rigid body. Dynamic bodies move through impulses; kinematic
// bodies move through SetNextKinematicTransform.
type Body struct {
	mass      float64
	kinematic bool

	pos    geom.Vec3
	rot    geom.Quat
	vel    geom.Vec3
	angVel geom.Vec3

	nextPos geom.Vec3
	nextRot geom.Quat
}

func (b *Body) Mass() float64                { return b.mass }
func (b *Body) Position() geom.Vec3          { return b.pos }
func (b *Body) Rotation() geom.Quat          { return b.rot }
func (b *Body) LinearVelocity() geom.Vec3    { return b.vel }
func (b *Body) AngularVelocity() geom.Vec3   { return b.angVel }
func (b *Body) SetLinearVelocity(v geom.Vec3)  { b.vel = v }
func (b *Body) SetAngularVelocity(v geom.Vec3) { b.angVel = v }

// Pose satisfies sim.PoseSource.
func (b *Body) Pose() sim.Transform {
	return sim.Transform{Pos: b.pos, Rot: b.rot}
}

// ApplyImpulse changes linear momentum instantaneously.
func (b *Body) ApplyImpulse(impulse geom.Vec3) {
	if b.kinematic || b.mass == 0 {
		return
	}
	b.vel = b.vel.Add(impulse.Scale(1 / b.mass))
}

// ApplyTorqueImpulse changes angular momentum instantaneously. Inertia is
// approximated as the mass, which is plenty for arcade handling.
func (b *Body) ApplyTorqueImpulse(impulse geom.Vec3) {
	if b.kinematic || b.mass == 0 {
		return
	}
	b.angVel = b.angVel.Add(impulse.Scale(1 / b.mass))
}

// SetNextKinematicTransform stages the pose a kinematic body snaps to on
// the next step.
func (b *Body) SetNextKinematicTransform(pos geom.Vec3, rot geom.Quat) {
	b.nextPos = pos
	b.nextRot = rot
}

// SetTransform teleports the body; velocities are untouched.
func (b *Body) SetTransform(pos geom.Vec3, rot geom.Quat) {
	b.pos = pos
	b.rot = rot
}

func (b *Body) applyKinematicTarget() {
	b.pos = b.nextPos
	b.rot = b.nextRot
}

func (b *Body) integrate(dt float64, gravity geom.Vec3, groundY float64) {
	b.vel = b.vel.Add(gravity.Scale(dt))
	b.pos = b.pos.Add(b.vel.Scale(dt))

	if b.pos.Y < groundY {
		b.pos.Y = groundY
		if b.vel.Y < 0 {
			b.vel.Y = 0
		}
	}

	// dq/dt = 0.5 * (angVel, 0) * q
	w := geom.Quat{X: b.angVel.X, Y: b.angVel.Y, Z: b.angVel.Z}
	dq := w.Mul(b.rot)
	b.rot = geom.Quat{
		X: b.rot.X + 0.5*dt*dq.X,
		Y: b.rot.Y + 0.5*dt*dq.Y,
		Z: b.rot.Z + 0.5*dt*dq.Z,
		W: b.rot.W + 0.5*dt*dq.W,
	}.Normalize()
}
