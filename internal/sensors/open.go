// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/relabs-tech/gait_computer/internal/config"
)

// Open returns the configured sample source and a close function.
func Open(cfg *config.Config) (IMURawReader, func() error, error) {
	switch cfg.SensorSource {
	case "mock":
		return NewMockSource(WalkingParamsFromConfig(cfg)), func() error { return nil }, nil
	case "razor":
		bus, closeBus, err := OpenI2C(cfg.I2CBus)
		if err != nil {
			return nil, nil, err
		}
		r, err := NewRazor(bus)
		if err != nil {
			closeBus()
			return nil, nil, err
		}
		return r, closeBus, nil
	}
	return nil, nil, fmt.Errorf("unknown sensor source %q", cfg.SensorSource)
}
