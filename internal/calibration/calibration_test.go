package calibration

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/imu"
)

func testReference() Reference {
	return ReferenceFromConfig(config.Default())
}

func TestFinalizeWithoutSamplesKeepsPrevious(t *testing.T) {
	prev := DefaultConstants(config.Default())
	e := NewEstimator(testReference())

	got, err := e.Finalize(testReference(), prev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.Equal(t, prev, got)
}

// hold feeds n copies of raw.
func hold(e *Estimator, raw imu.IMURaw, n int) {
	for i := 0; i < n; i++ {
		e.Add(raw)
	}
}

func TestFinalizeMinMax(t *testing.T) {
	ref := testReference()
	e := NewEstimator(ref)
	// six poses: each axis sees +1G and -1G with an offset of +10 counts
	poses := []imu.IMURaw{
		{Ax: 270, Ay: 10, Az: 10, Gx: 3, Gy: -2, Gz: 1, Mx: 500},
		{Ax: -250, Ay: 10, Az: 10, Gx: 5, Gy: -2, Gz: 1, Mx: -400},
		{Ax: 10, Ay: 270, Az: 10, Gx: 4, Gy: -2, Gz: 1, My: 300},
		{Ax: 10, Ay: -250, Az: 10, Gx: 4, Gy: -2, Gz: 1, My: -300},
		{Ax: 10, Ay: 10, Az: 270, Gx: 4, Gy: -2, Gz: 1},
		{Ax: 10, Ay: 10, Az: -250, Gx: 4, Gy: -2, Gz: 1},
	}
	for _, p := range poses {
		hold(e, p, 2*StillBlock)
	}
	require.Equal(t, 12*StillBlock, e.N())
	assert.Equal(t, 12, e.Stats().StillBlocks)

	prev := DefaultConstants(config.Default())
	c, err := e.Finalize(ref, prev)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, 10.0, c.AccelOffset[i], 1e-9)
		assert.InDelta(t, 256.0/260.0, c.AccelGain[i], 1e-9)
	}
	// median of the block means 3,3,5,5,4,...
	assert.InDelta(t, 4.0, c.GyroOffset[0], 1e-9)
	assert.InDelta(t, -2.0, c.GyroOffset[1], 1e-9)
	assert.InDelta(t, ref.GyroGain, c.GyroGain[2], 1e-12)
	assert.Equal(t, 12*StillBlock, c.GyroSamples)

	assert.InDelta(t, 50.0, c.MagOffset[0], 1e-9)
	assert.InDelta(t, 100.0/450.0, c.MagGain[0], 1e-9)
	// z never moved: keep the previous magnetometer constants
	assert.Equal(t, prev.MagOffset[2], c.MagOffset[2])
	assert.Equal(t, prev.MagGain[2], c.MagGain[2])

	// the poses scale back to +-1G
	s := c.Apply(poses[0])
	assert.InDelta(t, 256.0, s.Accel[0], 1e-9)
	s = c.Apply(poses[5])
	assert.InDelta(t, -256.0, s.Accel[2], 1e-9)
	assert.InDelta(t, 0.0, s.Gyro[1], 1e-12)
}

func TestGyroOffsetIgnoresRotationsBetweenPoses(t *testing.T) {
	const (
		rate      = 200
		stillFor  = 3 * rate
		rotateFor = rate
	)
	bias := [3]float64{12, -7, 3}
	ref := testReference()
	// 90 deg/s about x
	spin := 90 / config.Default().GyroGainDPS

	gravity := [][3]float64{
		{0, 0, 256}, {0, 0, -256},
		{256, 0, 0}, {-256, 0, 0},
		{0, 256, 0}, {0, -256, 0},
	}
	raw := func(a [3]float64, gx float64, k int) imu.IMURaw {
		noise := float64(k%5 - 2)
		return imu.IMURaw{
			Ax: int16(math.Round(a[0])), Ay: int16(math.Round(a[1])), Az: int16(math.Round(a[2])),
			Gx: int16(math.Round(bias[0] + gx + noise)),
			Gy: int16(math.Round(bias[1] - noise)),
			Gz: int16(math.Round(bias[2] + noise)),
		}
	}

	e := NewEstimator(ref)
	k := 0
	for p, g := range gravity {
		for i := 0; i < stillFor; i++ {
			e.Add(raw(g, 0, k))
			k++
		}
		if p == len(gravity)-1 {
			break
		}
		// turn towards the next pose; with x vertical the accel does not move
		for i := 0; i < rotateFor; i++ {
			th := float64(i) / rotateFor * math.Pi / 2
			a := [3]float64{
				g[0],
				g[1]*math.Cos(th) - g[2]*math.Sin(th),
				g[1]*math.Sin(th) + g[2]*math.Cos(th),
			}
			e.Add(raw(a, spin, k))
			k++
		}
	}

	c, err := e.Finalize(ref, DefaultConstants(config.Default()))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, bias[i], c.GyroOffset[i], 0.5, "axis %d", i)
		assert.InDelta(t, 0.0, c.AccelOffset[i], 1, "axis %d", i)
	}
	assert.GreaterOrEqual(t, c.GyroSamples, 6*stillFor-6*StillBlock)

	// the plain mean would have absorbed the rotations
	s := e.Stats()
	assert.Greater(t, s.Gyro[0].Mean(s.N)-bias[0], 100.0)
}

func TestGyroOffsetWithoutStillBlocksKeepsPrevious(t *testing.T) {
	ref := testReference()
	e := NewEstimator(ref)
	for i := 0; i < 10*StillBlock; i++ {
		th := float64(i) * 0.05
		e.Add(imu.IMURaw{
			Ax: int16(256 * math.Sin(th)),
			Ay: int16(256 * math.Cos(th)),
			Az: int16(256 * math.Sin(2*th)),
			Gx: int16(500 * math.Cos(th)),
		})
	}
	prev := DefaultConstants(config.Default())
	prev.GyroOffset = [3]float64{1, 2, 3}

	c, err := e.Finalize(ref, prev)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Stats().StillBlocks)
	assert.Equal(t, prev.GyroOffset, c.GyroOffset)
	assert.Equal(t, 0, c.GyroSamples)
}

func TestFinalizeDegenerateAccel(t *testing.T) {
	e := NewEstimator(testReference())
	for i := 0; i < 10; i++ {
		e.Add(imu.IMURaw{Ax: 1, Ay: 2, Az: 256})
	}
	prev := DefaultConstants(config.Default())
	got, err := e.Finalize(testReference(), prev)
	assert.ErrorIs(t, err, ErrDegenerateRange)
	assert.Equal(t, prev, got)
}

func TestStatsTrackMinMax(t *testing.T) {
	e := NewEstimator(testReference())
	e.Add(imu.IMURaw{Ax: -5})
	e.Add(imu.IMURaw{Ax: 7})
	e.Add(imu.IMURaw{Ax: 1})

	s := e.Stats()
	assert.Equal(t, 3, s.N)
	assert.Equal(t, -5.0, s.Accel[0].Min)
	assert.Equal(t, 7.0, s.Accel[0].Max)
	assert.InDelta(t, 1.0, s.Accel[0].Mean(s.N), 1e-12)
	assert.LessOrEqual(t, s.Gyro[1].Min, s.Gyro[1].Max)
}

func TestDefaultConstantsMatchFirmwareTable(t *testing.T) {
	c := DefaultConstants(config.Default())
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, c.AccelOffset[i])
		assert.InDelta(t, 256.0/250.0, c.AccelGain[i], 1e-12)
		assert.InDelta(t, 100.0/600.0, c.MagGain[i], 1e-12)
		assert.InDelta(t, 0.06957*math.Pi/180, c.GyroGain[i], 1e-12)
	}
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	c := DefaultConstants(config.Default())
	c.Samples = 12
	require.NoError(t, c.Save(path))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.AccelGain, got.AccelGain)
	assert.Equal(t, 12, got.Samples)
}
