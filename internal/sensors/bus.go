// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gait_computer/internal/imu"
)

// ErrBus wraps every transfer failure so callers can tell a bus fault
// (skip the tick) from a configuration error.
var ErrBus = errors.New("sensor bus transfer failed")

// SensorBus is the register-level access the drivers need.
type SensorBus interface {
	// ReadReg reads len(buf) bytes starting at reg.
	ReadReg(addr uint16, reg byte, buf []byte) error
	// WriteReg writes a single register.
	WriteReg(addr uint16, reg byte, val byte) error
}

// IMURawReader is anything that yields raw samples, one per call.
type IMURawReader interface {
	ReadRaw() (imu.IMURaw, error)
}

type i2cBus struct {
	bus i2c.BusCloser
}

// OpenI2C initializes the periph host and opens an I2C bus by name
// ("" selects the first available bus).
func OpenI2C(name string) (SensorBus, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus %q: %w", name, err)
	}
	return &i2cBus{bus: bus}, bus.Close, nil
}

func (b *i2cBus) ReadReg(addr uint16, reg byte, buf []byte) error {
	if err := b.bus.Tx(addr, []byte{reg}, buf); err != nil {
		return fmt.Errorf("%w: read 0x%02X@0x%02X: %w", ErrBus, reg, addr, err)
	}
	return nil
}

func (b *i2cBus) WriteReg(addr uint16, reg byte, val byte) error {
	if err := b.bus.Tx(addr, []byte{reg, val}, nil); err != nil {
		return fmt.Errorf("%w: write 0x%02X@0x%02X: %w", ErrBus, reg, addr, err)
	}
	return nil
}
