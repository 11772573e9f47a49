// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/imu"
)

// SchemaVersion of the calibration JSON file.
const SchemaVersion = 1

// Constants are the offset/gain pairs applied to every raw sample
// before it enters the filter bank:
//
//	scaled = (raw - offset) * gain
type Constants struct {
	SchemaVersion int       `json:"schema_version"`
	CalibratedAt  time.Time `json:"calibrated_at"`
	Samples       int       `json:"samples"`
	GyroSamples   int       `json:"gyro_samples"` // still samples behind GyroOffset

	AccelOffset [3]float64 `json:"accel_offset"`
	AccelGain   [3]float64 `json:"accel_gain"`
	GyroOffset  [3]float64 `json:"gyro_offset"`
	GyroGain    [3]float64 `json:"gyro_gain"` // rad/s per count
	MagOffset   [3]float64 `json:"mag_offset"`
	MagGain     [3]float64 `json:"mag_gain"`
}

// DefaultConstants builds constants from the configured min/max tables.
func DefaultConstants(cfg *config.Config) Constants {
	ref := ReferenceFromConfig(cfg)
	c := Constants{
		SchemaVersion: SchemaVersion,
		GyroOffset:    cfg.GyroOffset,
		GyroGain:      [3]float64{ref.GyroGain, ref.GyroGain, ref.GyroGain},
	}
	for i := 0; i < 3; i++ {
		c.AccelOffset[i] = (cfg.AccelMin[i] + cfg.AccelMax[i]) / 2
		c.AccelGain[i] = cfg.Gravity / (cfg.AccelMax[i] - c.AccelOffset[i])
		c.MagOffset[i] = (cfg.MagMin[i] + cfg.MagMax[i]) / 2
		c.MagGain[i] = cfg.MagReference / (cfg.MagMax[i] - c.MagOffset[i])
	}
	return c
}

// Apply scales a raw sample.
func (c Constants) Apply(raw imu.IMURaw) imu.Sample {
	var s imu.Sample
	a, g, m := raw.Accel(), raw.Gyro(), raw.Mag()
	for i := 0; i < 3; i++ {
		s.Accel[i] = (a[i] - c.AccelOffset[i]) * c.AccelGain[i]
		s.Gyro[i] = (g[i] - c.GyroOffset[i]) * c.GyroGain[i]
		s.Mag[i] = (m[i] - c.MagOffset[i]) * c.MagGain[i]
	}
	return s
}

// Save writes the constants as indented JSON.
func (c Constants) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration constants: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}

// LoadFile reads constants written by Save.
func LoadFile(path string) (Constants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Constants{}, fmt.Errorf("failed to read calibration file: %w", err)
	}
	var c Constants
	if err := json.Unmarshal(data, &c); err != nil {
		return Constants{}, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if c.SchemaVersion != SchemaVersion {
		return Constants{}, fmt.Errorf("calibration file %s: schema version %d, want %d", path, c.SchemaVersion, SchemaVersion)
	}
	return c, nil
}
