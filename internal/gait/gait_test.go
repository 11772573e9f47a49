package gait

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gait_computer/internal/attitude"
	"github.com/relabs-tech/gait_computer/internal/config"
)

const testDt = 0.005

func testParams() Params {
	return ParamsFromConfig(config.Default())
}

func TestParamsFromConfig(t *testing.T) {
	p := testParams()
	assert.Equal(t, 20, p.MinDwell)
	assert.Equal(t, 500, p.MaxStride)
	assert.InDelta(t, 0.01*math.Pi/180, p.Hysteresis, 1e-15)
	assert.Equal(t, 0.25, p.Gains.VP)
}

func TestSingleHeelStrikeAtSignFlip(t *testing.T) {
	e := NewEstimator(testParams())

	// rises for 50 samples then falls
	var strikes []int
	for n := 0; n < 120; n++ {
		pitch := float64(n) * 0.01
		if n >= 50 {
			pitch = float64(98-n) * 0.01
		}
		r := e.Update(pitch, attitude.Vec3{}, testDt)
		if r.HeelStrike {
			strikes = append(strikes, n)
			assert.Nil(t, r.Stride, "no stride before the first heel strike")
		}
	}

	require.Len(t, strikes, 1)
	assert.Equal(t, 50, strikes[0])
	assert.Equal(t, PhaseStance, e.Phase())
}

func TestNoiseDoesNotTriggerHeelStrikes(t *testing.T) {
	p := testParams()
	p.Hysteresis = 0.01
	e := NewEstimator(p)

	pitch := 0.0
	var deltas []float64
	for i := 0; i < 10; i++ {
		deltas = append(deltas, 0.02)
	}
	// spike before the dwell time has elapsed
	deltas = append(deltas, -0.05)
	for i := 0; i < 40; i++ {
		deltas = append(deltas, 0.03, -0.005)
	}
	for i := 0; i < 40; i++ {
		deltas = append(deltas, -0.02)
	}

	e.Update(pitch, attitude.Vec3{}, testDt)
	strikes := 0
	for _, d := range deltas {
		pitch += d
		if e.Update(pitch, attitude.Vec3{}, testDt).HeelStrike {
			strikes++
		}
	}
	assert.Equal(t, 1, strikes)
}

func TestStrideSummaries(t *testing.T) {
	e := NewEstimator(testParams())

	const period = 200 // ticks, one stride per second
	var strides []*StrideSummary
	strikes, toeOffs := 0, 0
	for n := 0; n < 5*period; n++ {
		pitch := 0.4 * math.Sin(2*math.Pi*float64(n)/period)
		r := e.Update(pitch, attitude.Vec3{}, testDt)
		if r.HeelStrike {
			strikes++
		}
		if r.ToeOff {
			toeOffs++
		}
		if r.Stride != nil {
			strides = append(strides, r.Stride)
			assert.Equal(t, len(strides), r.Strides)
		}
	}

	assert.Equal(t, 5, strikes)
	assert.GreaterOrEqual(t, toeOffs, 4)
	require.Len(t, strides, 4)
	for i, s := range strides {
		assert.Equal(t, i+1, s.Index)
		assert.InDelta(t, period, s.Ticks, 1)
		assert.Equal(t, s.Ticks, s.StanceTicks+s.SwingTicks)
		assert.InDelta(t, 1.0, s.Duration, 0.01)
		assert.InDelta(t, 60.0, s.Cadence, 1)
		assert.InDelta(t, 0.0, s.Speed, 1e-12)
		assert.Greater(t, s.StanceTicks, 0)
		assert.Greater(t, s.SwingTicks, 0)
	}
}

func TestStrideDisplacementFromConstantAcceleration(t *testing.T) {
	p := testParams()
	p.Gains = Gains{}
	e := NewEstimator(p)

	step := func(pitch, ax float64) Result {
		return e.Update(pitch, attitude.Vec3{X: ax}, testDt)
	}

	// open a stride
	pitch := 0.0
	for n := 0; n < 30; n++ {
		pitch += 0.01
		step(pitch, 0)
	}
	pitch -= 0.01
	require.True(t, step(pitch, 0).HeelStrike)

	// one second of stance then swing at 1 m/s² along x
	var r Result
	for n := 0; n < 100; n++ {
		pitch -= 0.01
		r = step(pitch, 1)
	}
	for n := 0; n < 99; n++ {
		pitch += 0.01
		r = step(pitch, 1)
	}
	pitch -= 0.01
	r = step(pitch, 1)
	require.True(t, r.HeelStrike)
	require.NotNil(t, r.Stride)

	s := r.Stride
	assert.Equal(t, 200, s.Ticks)
	assert.InDelta(t, 1.0, s.Duration, 1e-9)
	// v = t, x = t²/2 sampled at dt
	assert.InDelta(t, 0.5, s.Displacement.X, 0.01)
	assert.InDelta(t, 1.0, s.PeakSpeed, 1e-9)
	assert.InDelta(t, 0.5, s.Speed, 0.01)
	assert.Equal(t, attitude.Vec3{}, r.Velocity, "zero velocity after heel strike")
}

func TestMissedStride(t *testing.T) {
	p := testParams()
	p.MaxStride = 100
	e := NewEstimator(p)

	pitch := 0.0
	e.Update(pitch, attitude.Vec3{}, testDt)
	for n := 0; n < 30; n++ {
		pitch += 0.01
		e.Update(pitch, attitude.Vec3{}, testDt)
	}
	pitch -= 0.01
	require.True(t, e.Update(pitch, attitude.Vec3{}, testDt).HeelStrike)

	missed := 0
	for n := 1; n <= 400; n++ {
		r := e.Update(pitch, attitude.Vec3{}, testDt)
		if r.MissedStride {
			missed++
			assert.Equal(t, 100, n)
			assert.Equal(t, PhaseUnknown, r.Phase)
		}
	}
	assert.Equal(t, 1, missed, "only an open stride can be missed")

	// the next heel strike starts a stride without closing one
	for n := 0; n < 30; n++ {
		pitch += 0.01
		e.Update(pitch, attitude.Vec3{}, testDt)
	}
	pitch -= 0.01
	r := e.Update(pitch, attitude.Vec3{}, testDt)
	assert.True(t, r.HeelStrike)
	assert.Nil(t, r.Stride)
}

func TestIntegratorDriftIsBounded(t *testing.T) {
	corrected := NewIntegrator(testParams().Gains)
	uncorrected := NewIntegrator(Gains{})

	rng := rand.New(rand.NewSource(42))
	const samples = 200000

	var sqC, sqU, maxC float64
	for n := 0; n < samples; n++ {
		a := attitude.Vec3{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}

		vc := corrected.Step(a, testDt)
		vu := uncorrected.Step(a, testDt)

		sqC += vc.Dot(vc)
		sqU += vu.Dot(vu)
		maxC = math.Max(maxC, vc.Norm())
	}
	sqC /= samples
	sqU /= samples

	assert.Greater(t, sqU, 10*sqC)
	assert.Less(t, maxC, 1.5)
}

func TestWalkingDriftIsBoundedAcrossStrides(t *testing.T) {
	const (
		period = 200 // ticks per stride
		cycles = 120
	)
	run := func(g Gains) (meanSq []float64, strikes int) {
		p := testParams()
		p.Gains = g
		e := NewEstimator(p)
		rng := rand.New(rand.NewSource(7))

		meanSq = make([]float64, 2) // first and second half of the walk
		for n := 0; n < cycles*period; n++ {
			pitch := 0.4 * math.Sin(2*math.Pi*float64(n)/period)
			a := attitude.Vec3{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
			r := e.Update(pitch, a, testDt)
			if r.HeelStrike {
				strikes++
			}
			assert.False(t, r.MissedStride)
			meanSq[n*2/(cycles*period)] += r.Velocity.Dot(r.Velocity) / (cycles * period / 2)
		}
		return meanSq, strikes
	}

	// configured gains scaled up so the correction acts within one stride
	d := testParams().Gains
	gains := Gains{AD: 20 * d.AD, AP: 20 * d.AP, VD: 20 * d.VD, VP: 20 * d.VP}

	corrected, strikes := run(gains)
	uncorrected, strikesU := run(Gains{})
	assert.Equal(t, cycles, strikes)
	assert.Equal(t, cycles, strikesU)

	sqC := (corrected[0] + corrected[1]) / 2
	sqU := (uncorrected[0] + uncorrected[1]) / 2
	assert.Greater(t, sqU, 4*sqC)
	// no growth over the walk
	assert.Less(t, corrected[1], 2*corrected[0])
	assert.Less(t, math.Sqrt(sqC), 0.1)
}

func TestIntegratorPhaseReferences(t *testing.T) {
	in := NewIntegrator(Gains{VP: 1})
	for n := 0; n < 100; n++ {
		in.Step(attitude.Vec3{Y: 2}, testDt)
	}
	before := in.Velocity()
	require.Greater(t, before.Y, 0.0)

	in.MarkPhaseStart()
	v := in.Step(attitude.Vec3{}, testDt)
	assert.InDelta(t, before.Y, v.Y, 1e-12, "no pull towards zero once re-biased")

	in.ZeroVelocity()
	assert.Equal(t, attitude.Vec3{}, in.Velocity())
	assert.Equal(t, attitude.Vec3{}, in.Position())
	assert.Equal(t, attitude.Vec3{}, in.AveragePosition())
}

func TestLegAcceleration(t *testing.T) {
	level := attitude.Identity()
	assert.Equal(t, attitude.Vec3{}, LegAcceleration(attitude.Vec3{Z: 256}, level, 256))

	a := LegAcceleration(attitude.Vec3{X: 25.6, Z: 256}, level, 256)
	assert.InDelta(t, 0.980665, a.X, 1e-9)
	assert.InDelta(t, 0.0, a.Z, 1e-12)
}

func TestResetClearsStrides(t *testing.T) {
	e := NewEstimator(testParams())
	for n := 0; n < 400; n++ {
		e.Update(0.4*math.Sin(2*math.Pi*float64(n)/200), attitude.Vec3{}, testDt)
	}
	e.Reset()
	assert.Equal(t, PhaseUnknown, e.Phase())
	r := e.Update(0, attitude.Vec3{}, testDt)
	assert.Equal(t, 0, r.Strides)
	assert.Equal(t, 0.0, r.PitchDelta)
}
