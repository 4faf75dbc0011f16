package physics

import (
	"math"
	"testing"

	"github.com/wfunc/raceserver/geom"
)

const dt = 1.0 / 60.0

func TestWorld_GroundClampsFallingBody(t *testing.T) {
	w := NewWorld()
	b := w.CreateDynamicBody(geom.Vec3{Y: 2}, 1)

	// Two seconds of free fall ends on the ground plane, at rest.
	for i := 0; i < 120; i++ {
		w.StepWorld(dt)
	}

	if b.Position().Y != w.GroundY {
		t.Errorf("Expected the body to rest at Y %v, got %v", w.GroundY, b.Position().Y)
	}
	if b.LinearVelocity().Y != 0 {
		t.Errorf("Vertical velocity should be killed on the ground, got %v", b.LinearVelocity().Y)
	}
}

func TestBody_ImpulseScalesByMass(t *testing.T) {
	w := NewWorld()
	light := w.CreateDynamicBody(geom.Vec3{Y: 0.3}, 1)
	heavy := w.CreateDynamicBody(geom.Vec3{Y: 0.3}, 2)

	light.ApplyImpulse(geom.Vec3{Z: -10})
	heavy.ApplyImpulse(geom.Vec3{Z: -10})

	if math.Abs(light.LinearVelocity().Z+10) > 1e-9 {
		t.Errorf("Unit mass should pick up the full impulse, got %v", light.LinearVelocity().Z)
	}
	if math.Abs(heavy.LinearVelocity().Z+5) > 1e-9 {
		t.Errorf("Double mass should pick up half the velocity, got %v", heavy.LinearVelocity().Z)
	}
}

func TestBody_YawTorqueTurnsBody(t *testing.T) {
	w := NewWorld()
	b := w.CreateDynamicBody(geom.Vec3{Y: 0.3}, 1)

	b.ApplyTorqueImpulse(geom.Vec3{Y: math.Pi}) // half a turn per second
	for i := 0; i < 30; i++ {                   // half a second
		w.StepWorld(dt)
	}

	// A quarter turn should swing -Z most of the way toward -X.
	forward := b.Rotation().Rotate(geom.Vec3{Z: -1})
	if forward.X > -0.9 {
		t.Errorf("Expected the nose to point near -X after a quarter turn, got %+v", forward)
	}
}

func TestKinematicBody_SnapsToStagedTransform(t *testing.T) {
	w := NewWorld()
	b := w.CreateKinematicBody(geom.Vec3{Z: 52}, geom.QuatIdentity)

	target := geom.Vec3{X: 1.5, Y: 0.3, Z: 40}
	b.SetNextKinematicTransform(target, geom.QuatIdentity)

	if b.Position().Z != 52 {
		t.Fatal("Staged transform must not apply before the step")
	}
	w.StepWorld(dt)
	if b.Position() != target {
		t.Errorf("Expected the body at %+v after the step, got %+v", target, b.Position())
	}
}

func TestKinematicBody_IgnoresImpulses(t *testing.T) {
	w := NewWorld()
	b := w.CreateKinematicBody(geom.Vec3{Z: 52}, geom.QuatIdentity)

	b.ApplyImpulse(geom.Vec3{Z: -100})
	w.StepWorld(dt)

	if b.LinearVelocity() != (geom.Vec3{}) {
		t.Errorf("Kinematic bodies must not pick up velocity, got %+v", b.LinearVelocity())
	}
	if b.Position().Z != 52 {
		t.Errorf("Kinematic bodies must not drift, got Z %v", b.Position().Z)
	}
}
