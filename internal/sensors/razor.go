// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"

	"github.com/relabs-tech/gait_computer/internal/imu"
)

// Razor 9DOF (SEN-10736) I2C addresses and registers.
const (
	adxl345Addr = 0x53
	itg3200Addr = 0x68

	adxlBWRate     = 0x2C
	adxlPowerCtl   = 0x2D
	adxlDataFormat = 0x31
	adxlDataX0     = 0x32

	itgSmplrtDiv = 0x15
	itgDLPFFS    = 0x16
	itgGyroXOutH = 0x1D
	itgPwrMgm    = 0x3E
)

// Razor reads the ADXL345 accelerometer and ITG-3200 gyroscope.
// The magnetometer is not read.
type Razor struct {
	bus SensorBus
	buf [6]byte
}

// NewRazor configures both chips and returns a reader.
func NewRazor(bus SensorBus) (*Razor, error) {
	steps := []struct {
		addr uint16
		reg  byte
		val  byte
		what string
	}{
		{adxl345Addr, adxlPowerCtl, 0x08, "accel measure mode"},
		{adxl345Addr, adxlDataFormat, 0x08, "accel full resolution"},
		{adxl345Addr, adxlBWRate, 0x09, "accel 50Hz bandwidth"},
		{itg3200Addr, itgPwrMgm, 0x80, "gyro reset"},
		{itg3200Addr, itgDLPFFS, 0x1B, "gyro full scale, 42Hz low pass"},
		{itg3200Addr, itgSmplrtDiv, 0x0A, "gyro sample rate"},
		{itg3200Addr, itgPwrMgm, 0x00, "gyro clock source"},
	}
	for _, step := range steps {
		if err := bus.WriteReg(step.addr, step.reg, step.val); err != nil {
			return nil, fmt.Errorf("razor init (%s): %w", step.what, err)
		}
	}
	return &Razor{bus: bus}, nil
}

// ReadRaw reads one sample remapped to the board axes.
func (r *Razor) ReadRaw() (imu.IMURaw, error) {
	if err := r.bus.ReadReg(adxl345Addr, adxlDataX0, r.buf[:]); err != nil {
		return imu.IMURaw{}, fmt.Errorf("razor accel: %w", err)
	}
	// little-endian X, Y, Z; board x is chip Y
	cx := int16(binary.LittleEndian.Uint16(r.buf[0:2]))
	cy := int16(binary.LittleEndian.Uint16(r.buf[2:4]))
	cz := int16(binary.LittleEndian.Uint16(r.buf[4:6]))

	out := imu.IMURaw{
		Source: "razor",
		Ax:     cy,
		Ay:     cx,
		Az:     cz,
	}

	if err := r.bus.ReadReg(itg3200Addr, itgGyroXOutH, r.buf[:]); err != nil {
		return imu.IMURaw{}, fmt.Errorf("razor gyro: %w", err)
	}
	// big-endian X, Y, Z, mounted upside down relative to the accelerometer
	gx := int16(binary.BigEndian.Uint16(r.buf[0:2]))
	gy := int16(binary.BigEndian.Uint16(r.buf[2:4]))
	gz := int16(binary.BigEndian.Uint16(r.buf[4:6]))

	out.Gx = -gy
	out.Gy = -gx
	out.Gz = -gz
	return out, nil
}
