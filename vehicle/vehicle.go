// Package vehicle is the arcade dynamics model: input becomes impulses and
// torque impulses on the locally-owned rigid body, once per fixed step.
package vehicle

import (
	"math"

	"github.com/wfunc/raceserver/geom"
)

// Handling constants. Tuned for arcade feel, not realism.
const (
	MaxSpeed            = 80.0 // m/s cap on drive input
	Acceleration        = 40.0
	ReverseAcceleration = 20.0
	TurnSpeed           = 20.0
	GripFactor          = 15.0 // higher kills more sideways velocity

	// Steering torque is halved below this forward speed so a stopped car
	// cannot spin in place.
	LowSpeedThreshold = 1.0
	LowSpeedTurnScale = 0.5

	// Per-step angular velocity retention: roll/pitch are damped hard to
	// keep the car upright through collisions, yaw only lightly.
	RollPitchRetention = 0.5
	YawRetention       = 0.95
)

// Input is the current steering intent.
type Input struct {
	Forward  bool
	Backward bool
	Left     bool
	Right    bool
}

// Body is the physics boundary the model drives through.
type Body interface {
	Mass() float64
	Rotation() geom.Quat
	LinearVelocity() geom.Vec3
	AngularVelocity() geom.Vec3
	SetAngularVelocity(geom.Vec3)
	ApplyImpulse(geom.Vec3)
	ApplyTorqueImpulse(geom.Vec3)
}

// Controller shapes forces for one car.
type Controller struct {
	body Body
}

func NewController(body Body) *Controller {
	return &Controller{body: body}
}

// Update applies one fixed step of drive, steering, grip and stability.
//
// There is deliberately no downforce term: an explicit downward impulse
// fights the collision resolver and shows up as visible jitter, and
// gravity plus the damping below already keeps the car planted.
func (c *Controller) Update(in Input, dt float64) {
	body := c.body
	rot := body.Rotation()

	// Local basis. -Z is forward.
	forward := rot.Rotate(geom.Vec3{Z: -1})
	right := rot.Rotate(geom.Vec3{X: 1})

	localVel := rot.Conjugate().Rotate(body.LinearVelocity())
	speed := localVel.Z

	// Drive, suppressed above the speed cap.
	driveForce := 0.0
	if in.Forward {
		driveForce = Acceleration
	} else if in.Backward {
		driveForce = -ReverseAcceleration
	}
	if driveForce != 0 && math.Abs(speed) < MaxSpeed {
		body.ApplyImpulse(forward.Scale(driveForce * body.Mass() * dt))
	}

	// Steering torque around the yaw axis.
	turn := 0.0
	if in.Left {
		turn += 1
	}
	if in.Right {
		turn -= 1
	}
	if turn != 0 {
		turnScale := 1.0
		if math.Abs(speed) < LowSpeedThreshold {
			turnScale = LowSpeedTurnScale
		}
		body.ApplyTorqueImpulse(geom.Vec3{Y: turn * TurnSpeed * turnScale * body.Mass() * dt})
	}

	c.applyGrip(right, localVel, dt)
	c.applyAngularDamping()
}

// UpdateCoasting keeps grip and stability active after the finish line so
// the car rolls out instead of spinning away.
func (c *Controller) UpdateCoasting(dt float64) {
	rot := c.body.Rotation()
	right := rot.Rotate(geom.Vec3{X: 1})
	localVel := rot.Conjugate().Rotate(c.body.LinearVelocity())

	c.applyGrip(right, localVel, dt)
	c.applyAngularDamping()
}

// applyGrip cancels a fraction of sideways velocity each step. This is the
// whole "no real drift" handling model; there is no slip-based tire math.
func (c *Controller) applyGrip(right, localVel geom.Vec3, dt float64) {
	sideVel := localVel.X
	gripForce := -sideVel * GripFactor * c.body.Mass() * dt
	c.body.ApplyImpulse(right.Scale(gripForce))
}

func (c *Controller) applyAngularDamping() {
	w := c.body.AngularVelocity()
	c.body.SetAngularVelocity(geom.Vec3{
		X: w.X * RollPitchRetention,
		Y: w.Y * YawRetention,
		Z: w.Z * RollPitchRetention,
	})
}

// SpeedKMH reports the body's speed for the HUD.
func (c *Controller) SpeedKMH() float64 {
	return math.Floor(c.body.LinearVelocity().Length() * 3.6)
}
