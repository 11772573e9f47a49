// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
)

// BitField describes a field inside a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo is the metadata of one device register.
type RegisterInfo struct {
	Device      string     `json:"device"`
	Bus         uint16     `json:"bus_addr"`
	Address     byte       `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// RegisterValue is a register read back from the device.
type RegisterValue struct {
	RegisterInfo
	Value byte   `json:"value"`
	Error string `json:"error,omitempty"`
}

func (v RegisterValue) String() string {
	if v.Error != "" {
		return fmt.Sprintf("%-8s 0x%02X %-14s ERROR %s", v.Device, v.Address, v.Name, v.Error)
	}
	return fmt.Sprintf("%-8s 0x%02X %-14s 0x%02X  %s", v.Device, v.Address, v.Name, v.Value, v.Description)
}

// RazorRegisterMap returns the configuration and identity registers of the
// ADXL345 and ITG-3200.
func RazorRegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Device: "adxl345", Bus: adxl345Addr, Address: 0x00, Name: "DEVID", Description: "Device ID", Access: "R", Default: "0xE5"},
		{Device: "adxl345", Bus: adxl345Addr, Address: adxlBWRate, Name: "BW_RATE", Description: "Data rate and power mode", Access: "RW", Default: "0x0A",
			BitFields: []BitField{
				{Bits: "4", Name: "LOW_POWER", Description: "Reduced power operation", Values: "0=Normal, 1=Low power"},
				{Bits: "3:0", Name: "RATE", Description: "Output data rate", Values: "0x09=50Hz, 0x0A=100Hz, 0x0B=200Hz"},
			}},
		{Device: "adxl345", Bus: adxl345Addr, Address: adxlPowerCtl, Name: "POWER_CTL", Description: "Power-saving features", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3", Name: "MEASURE", Description: "Measurement mode", Values: "0=Standby, 1=Measure"},
				{Bits: "2", Name: "SLEEP", Description: "Sleep mode", Values: "0=Normal, 1=Sleep"},
			}},
		{Device: "adxl345", Bus: adxl345Addr, Address: adxlDataFormat, Name: "DATA_FORMAT", Description: "Data format control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3", Name: "FULL_RES", Description: "Full resolution", Values: "0=10-bit, 1=4mg/LSB"},
				{Bits: "1:0", Name: "RANGE", Description: "g range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},
		{Device: "itg3200", Bus: itg3200Addr, Address: 0x00, Name: "WHO_AM_I", Description: "I2C address", Access: "RW", Default: "0x68"},
		{Device: "itg3200", Bus: itg3200Addr, Address: itgSmplrtDiv, Name: "SMPLRT_DIV", Description: "Sample rate divider", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "SMPLRT_DIV", Description: "Fsample = Finternal / (divider+1)", Values: "0-255"},
			}},
		{Device: "itg3200", Bus: itg3200Addr, Address: itgDLPFFS, Name: "DLPF_FS", Description: "Full scale and low pass", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:3", Name: "FS_SEL", Description: "Full scale", Values: "3=±2000°/s"},
				{Bits: "2:0", Name: "DLPF_CFG", Description: "Low pass bandwidth", Values: "0=256Hz, 1=188Hz, 2=98Hz, 3=42Hz, 4=20Hz, 5=10Hz, 6=5Hz"},
			}},
		{Device: "itg3200", Bus: itg3200Addr, Address: itgPwrMgm, Name: "PWR_MGM", Description: "Power management", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "H_RESET", Description: "Device reset", Values: "1=Reset"},
				{Bits: "6", Name: "SLEEP", Description: "Low power sleep", Values: "0=Normal, 1=Sleep"},
				{Bits: "2:0", Name: "CLK_SEL", Description: "Clock source", Values: "0=Internal, 1=PLL gyro X"},
			}},
	}
}

// DumpRegisters reads every register of the map. A failed read is recorded
// in the entry and does not stop the dump.
func DumpRegisters(bus SensorBus, regs []RegisterInfo) []RegisterValue {
	out := make([]RegisterValue, 0, len(regs))
	var b [1]byte
	for _, info := range regs {
		v := RegisterValue{RegisterInfo: info}
		if err := bus.ReadReg(info.Bus, info.Address, b[:]); err != nil {
			v.Error = err.Error()
		} else {
			v.Value = b[0]
		}
		out = append(out, v)
	}
	return out
}
