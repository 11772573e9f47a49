// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gait segments walking into strides from the shank pitch stream and
// estimates leg velocity between heel strikes.
//
// Pitch rising is swing, pitch falling is stance. A transition needs the
// pitch delta to leave a hysteresis band around zero and the current phase to
// have lasted at least MinDwell ticks. Swing to stance is a heel strike: the
// finished stride is summarized and the integrator restarts from zero
// velocity. Stance to swing (toe-off) re-biases the velocity reference.
package gait

import (
	"fmt"
	"math"

	"github.com/relabs-tech/gait_computer/internal/attitude"
	"github.com/relabs-tech/gait_computer/internal/config"
)

// Phase of the gait cycle.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseSwing
	PhaseStance
)

func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseSwing:
		return "swing"
	case PhaseStance:
		return "stance"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for _, c := range []Phase{PhaseUnknown, PhaseSwing, PhaseStance} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Params configure the state machine and the integrator.
type Params struct {
	Gains      Gains
	MinDwell   int     // ticks
	Hysteresis float64 // rad
	MaxStride  int     // ticks without a heel strike before a missed stride
}

// ParamsFromConfig converts the millisecond and degree keys to ticks and
// radians at the configured sample rate.
func ParamsFromConfig(cfg *config.Config) Params {
	ticks := func(ms int) int {
		return int(math.Round(float64(ms) / 1000 * cfg.TimeSR))
	}
	return Params{
		Gains: Gains{
			AD: cfg.SWEGainAD,
			AP: cfg.SWEGainAP,
			VD: cfg.SWEGainVD,
			VP: cfg.SWEGainVP,
		},
		MinDwell:   ticks(cfg.SWEMinDwellMS),
		Hysteresis: cfg.SWEHysteresisDeg * math.Pi / 180,
		MaxStride:  ticks(cfg.SWEMaxStrideMS),
	}
}

// StrideSummary describes one completed stride, heel strike to heel strike.
type StrideSummary struct {
	Index           int           `json:"index"`
	Ticks           int           `json:"ticks"`
	Duration        float64       `json:"duration_s"`
	StanceTicks     int           `json:"stance_ticks"`
	SwingTicks      int           `json:"swing_ticks"`
	MeanVelocity    attitude.Vec3 `json:"mean_velocity"`
	PeakSpeed       float64       `json:"peak_speed"`
	Displacement    attitude.Vec3 `json:"displacement"`
	AveragePosition attitude.Vec3 `json:"average_position"`
	Speed           float64       `json:"speed"`   // m/s, |displacement| / duration
	Cadence         float64       `json:"cadence"` // strides per minute
}

// Result is the per-tick output. HeelStrike and ToeOff are true for exactly
// the tick that detected them; Stride is set on heel strikes that close a
// stride.
type Result struct {
	Phase        Phase          `json:"phase"`
	HeelStrike   bool           `json:"heel_strike"`
	ToeOff       bool           `json:"toe_off"`
	MissedStride bool           `json:"missed_stride"`
	PitchDelta   float64        `json:"pitch_delta"`
	Velocity     attitude.Vec3  `json:"velocity"`
	Position     attitude.Vec3  `json:"position"`
	Strides      int            `json:"strides"`
	Stride       *StrideSummary `json:"stride,omitempty"`
}

// Estimator is the stride state machine. It is not safe for concurrent use.
type Estimator struct {
	p     Params
	integ *Integrator

	phase     Phase
	dwell     int
	pitchPrev float64
	havePitch bool

	// heel strike seen, so the open stride has a defined start
	strideOpen  bool
	strides     int
	ticks       int
	stanceTicks int
	swingTicks  int
	elapsed     float64
	velSum      attitude.Vec3
	peak        float64
}

// NewEstimator returns an estimator in PhaseUnknown.
func NewEstimator(p Params) *Estimator {
	return &Estimator{p: p, integ: NewIntegrator(p.Gains)}
}

// Phase is the current phase.
func (e *Estimator) Phase() Phase {
	return e.phase
}

// Reset drops all state, including the stride count.
func (e *Estimator) Reset() {
	*e = Estimator{p: e.p, integ: NewIntegrator(e.p.Gains)}
}

// Update runs one tick with the current pitch (rad), the gravity-free leg
// acceleration (m/s²) and the tick period.
func (e *Estimator) Update(pitch float64, legAccel attitude.Vec3, dt float64) Result {
	var r Result

	delta := 0.0
	if e.havePitch {
		delta = pitch - e.pitchPrev
	}
	e.pitchPrev = pitch
	e.havePitch = true

	vel := e.integ.Step(legAccel, dt)

	e.ticks++
	e.elapsed += dt
	e.velSum = e.velSum.Add(vel)
	e.peak = math.Max(e.peak, vel.Norm())
	switch e.phase {
	case PhaseStance:
		e.stanceTicks++
	case PhaseSwing:
		e.swingTicks++
	}
	e.dwell++

	rising := delta > e.p.Hysteresis
	falling := delta < -e.p.Hysteresis
	settled := e.dwell >= e.p.MinDwell

	switch e.phase {
	case PhaseUnknown:
		if rising {
			e.enter(PhaseSwing)
		} else if falling {
			e.enter(PhaseStance)
		}
	case PhaseSwing:
		if falling && settled {
			r.HeelStrike = true
			r.Stride = e.closeStride()
			e.enter(PhaseStance)
			e.integ.ZeroVelocity()
		}
	case PhaseStance:
		if rising && settled {
			r.ToeOff = true
			e.enter(PhaseSwing)
			e.integ.MarkPhaseStart()
		}
	}

	// No heel strike in time: drop the partial stride and wait for a clean
	// transition. Velocity is left to the integrator's correction.
	if !r.HeelStrike && e.p.MaxStride > 0 && e.ticks >= e.p.MaxStride {
		if e.strideOpen {
			r.MissedStride = true
			e.phase = PhaseUnknown
			e.dwell = 0
		}
		e.restartStride(false)
	}

	r.Phase = e.phase
	r.PitchDelta = delta
	r.Velocity = e.integ.Velocity()
	r.Position = e.integ.Position()
	r.Strides = e.strides
	return r
}

func (e *Estimator) enter(p Phase) {
	e.phase = p
	e.dwell = 0
}

// closeStride summarizes the open stride, if any, and starts the next one.
func (e *Estimator) closeStride() *StrideSummary {
	var s *StrideSummary
	if e.strideOpen && e.ticks > 0 {
		e.strides++
		disp := e.integ.Position()
		s = &StrideSummary{
			Index:           e.strides,
			Ticks:           e.ticks,
			Duration:        e.elapsed,
			StanceTicks:     e.stanceTicks,
			SwingTicks:      e.swingTicks,
			MeanVelocity:    e.velSum.Scale(1 / float64(e.ticks)),
			PeakSpeed:       e.peak,
			Displacement:    disp,
			AveragePosition: e.integ.AveragePosition(),
		}
		if e.elapsed > 0 {
			s.Speed = disp.Norm() / e.elapsed
			s.Cadence = 60 / e.elapsed
		}
	}
	e.restartStride(true)
	return s
}

func (e *Estimator) restartStride(open bool) {
	e.strideOpen = open
	e.ticks = 0
	e.stanceTicks = 0
	e.swingTicks = 0
	e.elapsed = 0
	e.velSum = attitude.Vec3{}
	e.peak = 0
}
