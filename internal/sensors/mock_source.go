// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"math/rand"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/imu"
)

// WalkingParams shape the synthetic shank motion.
type WalkingParams struct {
	Rate       float64 // samples per second
	StrideHz   float64
	Amplitude  float64 // peak pitch, rad
	CountsPerG float64 // raw accel counts for 1G
	GyroGain   float64 // rad/s per raw gyro count
	Noise      float64 // std dev in counts, 0 for none
	Seed       int64
}

// WalkingParamsFromConfig matches the default calibration so that scaled
// samples come out at GRAVITY and rad/s.
func WalkingParamsFromConfig(cfg *config.Config) WalkingParams {
	return WalkingParams{
		Rate:       cfg.TimeSR,
		StrideHz:   1,
		Amplitude:  0.4,
		CountsPerG: cfg.AccelMax[0],
		GyroGain:   cfg.GyroGainDPS * math.Pi / 180,
	}
}

type mockSource struct {
	p   WalkingParams
	n   int
	rng *rand.Rand
}

// NewMockSource creates a source that swings the pitch sinusoidally like a
// shank while walking. Time advances one sample period per read, so the
// output does not depend on wall clock.
func NewMockSource(p WalkingParams) IMURawReader {
	return &mockSource{p: p, rng: rand.New(rand.NewSource(p.Seed))}
}

func (m *mockSource) ReadRaw() (imu.IMURaw, error) {
	t := float64(m.n) / m.p.Rate
	m.n++

	w := 2 * math.Pi * m.p.StrideHz
	pitch := m.p.Amplitude * math.Sin(w*t)
	rate := m.p.Amplitude * w * math.Cos(w*t)

	// gravity seen by a sensor pitched about its y axis
	ax := -math.Sin(pitch) * m.p.CountsPerG
	az := math.Cos(pitch) * m.p.CountsPerG
	gy := rate / m.p.GyroGain

	return imu.IMURaw{
		Source: "mock",
		Ax:     m.count(ax),
		Ay:     m.count(0),
		Az:     m.count(az),
		Gx:     m.count(0),
		Gy:     m.count(gy),
		Gz:     m.count(0),
	}, nil
}

func (m *mockSource) count(v float64) int16 {
	if m.p.Noise > 0 {
		v += m.rng.NormFloat64() * m.p.Noise
	}
	v = math.Round(v)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))
}
