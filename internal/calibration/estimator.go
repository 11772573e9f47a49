// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration derives per-axis offsets and gains from running
// min/max/mean statistics and applies them to raw register counts.
//
// Accelerometer and magnetometer use the min/max method:
//
//	offset = (min + max) / 2
//	gain   = reference / (max - offset)
//
// The gyroscope gain is a fixed datasheet constant. Its offset only uses the
// still parts of the window: samples are grouped in blocks of StillBlock, a
// block counts as still when no gyro or accel axis spreads more than the
// reference spans, and the offset is the per-axis median of the still block
// means. Rotations between poses never reach the offset, including steady
// rotations that show no spread inside a block, as long as the device spends
// most of the window at rest.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/imu"
)

var (
	// ErrInsufficientData is returned when Finalize is called with no samples.
	ErrInsufficientData = errors.New("calibration: no samples collected")
	// ErrDegenerateRange is returned when an accelerometer axis never moved.
	ErrDegenerateRange = errors.New("calibration: axis has zero range")
)

// AxisStats is the running min/max/total of one axis.
type AxisStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Total float64 `json:"total"`
}

// Mean returns Total/n, or 0 when n == 0.
func (a AxisStats) Mean(n int) float64 {
	if n == 0 {
		return 0
	}
	return a.Total / float64(n)
}

func (a AxisStats) span() float64 {
	return a.Max - a.Min
}

// StillBlock is the number of consecutive samples judged together for
// stillness.
const StillBlock = 20

// Stats is a snapshot of the estimator.
type Stats struct {
	N           int          `json:"n"`
	StillBlocks int          `json:"still_blocks"`
	Accel       [3]AxisStats `json:"accel"`
	Gyro        [3]AxisStats `json:"gyro"`
	Mag         [3]AxisStats `json:"mag"`
}

// Reference holds the scale constants the gains are computed against and
// the stillness limits, all in raw counts except where noted.
type Reference struct {
	Gravity        float64 // 1G in scaled accel units
	GyroGain       float64 // rad/s per count
	MagReference   float64
	GyroStillSpan  float64 // max gyro spread inside a still block
	AccelStillSpan float64 // max accel spread inside a still block
}

// ReferenceFromConfig converts the config constants.
func ReferenceFromConfig(cfg *config.Config) Reference {
	return Reference{
		Gravity:        cfg.Gravity,
		GyroGain:       cfg.GyroGainDPS * math.Pi / 180,
		MagReference:   cfg.MagReference,
		GyroStillSpan:  cfg.CalGyroStillSpan,
		AccelStillSpan: cfg.CalAccelStillSpan,
	}
}

type block struct {
	n     int
	accel [3]AxisStats
	gyro  [3]AxisStats
}

// Estimator accumulates statistics while the device is in calibration mode.
type Estimator struct {
	gyroSpan  float64
	accelSpan float64

	stats Stats
	cur   block
	still [][3]float64 // gyro mean of every still block
}

// NewEstimator returns an empty estimator using the stillness limits of ref.
func NewEstimator(ref Reference) *Estimator {
	return &Estimator{gyroSpan: ref.GyroStillSpan, accelSpan: ref.AccelStillSpan}
}

// N is the number of samples accumulated so far.
func (e *Estimator) N() int {
	return e.stats.N
}

// Stats returns a copy of the running statistics.
func (e *Estimator) Stats() Stats {
	return e.stats
}

// Add folds one raw sample into the statistics.
func (e *Estimator) Add(raw imu.IMURaw) {
	first := e.stats.N == 0
	update(&e.stats.Accel, raw.Accel(), first)
	update(&e.stats.Gyro, raw.Gyro(), first)
	update(&e.stats.Mag, raw.Mag(), first)
	e.stats.N++

	b := &e.cur
	update(&b.accel, raw.Accel(), b.n == 0)
	update(&b.gyro, raw.Gyro(), b.n == 0)
	b.n++
	if b.n < StillBlock {
		return
	}
	if e.isStill(b) {
		var mean [3]float64
		for i := range mean {
			mean[i] = b.gyro[i].Mean(b.n)
		}
		e.still = append(e.still, mean)
		e.stats.StillBlocks++
	}
	e.cur = block{}
}

func (e *Estimator) isStill(b *block) bool {
	for i := 0; i < 3; i++ {
		if b.gyro[i].span() > e.gyroSpan || b.accel[i].span() > e.accelSpan {
			return false
		}
	}
	return true
}

func update(axes *[3]AxisStats, v [3]float64, first bool) {
	for i := range axes {
		a := &axes[i]
		if first {
			a.Min, a.Max = v[i], v[i]
		} else {
			a.Min = math.Min(a.Min, v[i])
			a.Max = math.Max(a.Max, v[i])
		}
		a.Total += v[i]
	}
}

// Finalize computes constants from the window. prev supplies the magnetometer
// constants for axes that saw no spread, since the magnetometer is optional,
// and the gyro offset when no still block was seen.
// On error nothing is computed and the caller keeps prev.
func (e *Estimator) Finalize(ref Reference, prev Constants) (Constants, error) {
	n := e.stats.N
	if n == 0 {
		return prev, ErrInsufficientData
	}

	c := Constants{
		SchemaVersion: SchemaVersion,
		CalibratedAt:  time.Now().UTC(),
		Samples:       n,
		GyroGain:      [3]float64{ref.GyroGain, ref.GyroGain, ref.GyroGain},
		GyroSamples:   len(e.still) * StillBlock,
	}
	if len(e.still) == 0 {
		c.GyroOffset = prev.GyroOffset
	}

	for i := 0; i < 3; i++ {
		off, gain, ok := minMax(e.stats.Accel[i], ref.Gravity)
		if !ok {
			return prev, fmt.Errorf("accel axis %s: %w", config.Axis(i), ErrDegenerateRange)
		}
		c.AccelOffset[i], c.AccelGain[i] = off, gain

		if len(e.still) > 0 {
			c.GyroOffset[i] = e.median(i)
		}

		if off, gain, ok := minMax(e.stats.Mag[i], ref.MagReference); ok {
			c.MagOffset[i], c.MagGain[i] = off, gain
		} else {
			c.MagOffset[i], c.MagGain[i] = prev.MagOffset[i], prev.MagGain[i]
		}
	}

	return c, nil
}

func minMax(a AxisStats, reference float64) (offset, gain float64, ok bool) {
	offset = (a.Min + a.Max) / 2
	span := a.Max - offset
	if span <= 0 {
		return 0, 0, false
	}
	return offset, reference / span, true
}

func (e *Estimator) median(axis int) float64 {
	v := make([]float64, len(e.still))
	for k, m := range e.still {
		v[k] = m[axis]
	}
	slices.Sort(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return v[mid]
	}
	return (v[mid-1] + v[mid]) / 2
}
