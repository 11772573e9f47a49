// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dsp

import (
	"fmt"

	"github.com/relabs-tech/gait_computer/internal/imu"
)

// Kind selects the filter applied to a sensor's three channels.
type Kind int

const (
	KindNone Kind = iota
	KindFIRLowPass
	KindFIRHighPass
	KindIIRLowPass
	KindIIRHighPass
)

// ParseKind maps the config spelling to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "none":
		return KindNone, nil
	case "fir_lpf":
		return KindFIRLowPass, nil
	case "fir_hpf":
		return KindFIRHighPass, nil
	case "iir_lpf":
		return KindIIRLowPass, nil
	case "iir_hpf":
		return KindIIRHighPass, nil
	}
	return KindNone, fmt.Errorf("unknown filter kind %q", s)
}

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFIRLowPass:
		return "fir_lpf"
	case KindFIRHighPass:
		return "fir_hpf"
	case KindIIRLowPass:
		return "iir_lpf"
	case KindIIRHighPass:
		return "iir_hpf"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// BankConfig is resolved once at startup.
type BankConfig struct {
	Taps  TapCount
	Accel Kind
	Gyro  Kind
}

// Bank holds six independent channels: accel x/y/z then gyro x/y/z.
// The magnetometer passes through untouched.
type Bank struct {
	channels [6]Filter
}

// NewBank allocates every channel up front; nothing is reallocated afterwards.
func NewBank(cfg BankConfig) (*Bank, error) {
	set, err := Coefficients(cfg.Taps)
	if err != nil {
		return nil, err
	}

	b := &Bank{}
	for i := 0; i < 3; i++ {
		if b.channels[i], err = newChannel(set, cfg.Accel); err != nil {
			return nil, fmt.Errorf("accel channel %d: %w", i, err)
		}
		if b.channels[i+3], err = newChannel(set, cfg.Gyro); err != nil {
			return nil, fmt.Errorf("gyro channel %d: %w", i, err)
		}
	}
	return b, nil
}

func newChannel(set CoefficientSet, kind Kind) (Filter, error) {
	switch kind {
	case KindNone:
		return passthrough{}, nil
	case KindFIRLowPass:
		return NewFIR(set.FIRLow)
	case KindFIRHighPass:
		return NewFIR(set.FIRHigh)
	case KindIIRLowPass:
		return NewIIR(set.IIRLowB, set.IIRLowA)
	case KindIIRHighPass:
		return NewIIR(set.IIRHighB, set.IIRHighA)
	}
	return nil, fmt.Errorf("unknown filter kind %d", int(kind))
}

// Filter conditions one sample.
func (b *Bank) Filter(s imu.Sample) imu.Sample {
	out := imu.Sample{Mag: s.Mag}
	for i := 0; i < 3; i++ {
		out.Accel[i] = b.channels[i].Filter(s.Accel[i])
		out.Gyro[i] = b.channels[i+3].Filter(s.Gyro[i])
	}
	return out
}

// Reset clears the history of every channel.
func (b *Bank) Reset() {
	for _, ch := range b.channels {
		ch.Reset()
	}
}
