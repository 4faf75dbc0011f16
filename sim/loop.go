// Package sim is the client's fixed-timestep loop: physics advances in
// constant steps regardless of render rate, and rendering interpolates
// between the last two steps.
package sim

import "github.com/wfunc/raceserver/geom"

const (
	// FixedStep is the physics tick length in seconds.
	FixedStep = 1.0 / 60.0
	// MaxFrameDelta caps the wall-clock time consumed per frame so a
	// stalled frame (backgrounded tab, debugger pause) cannot trigger a
	// burst of catch-up steps.
	MaxFrameDelta = 0.1
)

// Loop accumulates unconsumed frame time and converts it into fixed steps.
type Loop struct {
	fixedStep   float64
	maxDelta    float64
	accumulator float64
}

func NewLoop() *Loop {
	return NewLoopWith(FixedStep, MaxFrameDelta)
}

func NewLoopWith(fixedStep, maxDelta float64) *Loop {
	return &Loop{fixedStep: fixedStep, maxDelta: maxDelta}
}

// Advance feeds one frame's delta into the accumulator and runs step once
// per whole fixed step held. Returns the number of steps executed. After it
// returns, the leftover accumulator is always in [0, fixedStep).
func (l *Loop) Advance(frameDelta float64, step func(dt float64)) int {
	if frameDelta > l.maxDelta {
		frameDelta = l.maxDelta
	}
	if frameDelta < 0 {
		frameDelta = 0
	}

	l.accumulator += frameDelta
	steps := 0
	for l.accumulator >= l.fixedStep {
		step(l.fixedStep)
		l.accumulator -= l.fixedStep
		steps++
	}
	return steps
}

// Alpha is the render interpolation fraction, in [0, 1).
func (l *Loop) Alpha() float64 {
	return l.accumulator / l.fixedStep
}

// Accumulator exposes the leftover time for instrumentation.
func (l *Loop) Accumulator() float64 {
	return l.accumulator
}

// Transform is a pose: position plus orientation.
type Transform struct {
	Pos geom.Vec3
	Rot geom.Quat
}

// Interpolate blends between two poses: positions lerp, orientations slerp.
func Interpolate(prev, curr Transform, alpha float64) Transform {
	return Transform{
		Pos: geom.Lerp(prev.Pos, curr.Pos, alpha),
		Rot: geom.Slerp(prev.Rot, curr.Rot, alpha),
	}
}

// PoseSource is anything that can report its current pose; the physics
// body of the locally-owned car satisfies it.
type PoseSource interface {
	Pose() Transform
}

// Interpolator retains the pose from before the latest fixed steps so the
// local car renders at lerp(prev, curr, alpha).
type Interpolator struct {
	source PoseSource
	prev   Transform
	primed bool
}

func NewInterpolator(source PoseSource) *Interpolator {
	return &Interpolator{source: source}
}

// SnapshotPrev records the pre-step pose. Call at the top of every fixed
// step, before the world advances, so prev always trails curr by exactly
// one step.
func (i *Interpolator) SnapshotPrev() {
	i.prev = i.source.Pose()
	i.primed = true
}

// RenderPose returns the interpolated pose for drawing this frame.
func (i *Interpolator) RenderPose(alpha float64) Transform {
	curr := i.source.Pose()
	if !i.primed {
		return curr
	}
	return Interpolate(i.prev, curr, alpha)
}
