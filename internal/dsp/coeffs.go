// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dsp conditions raw accelerometer and gyroscope channels before fusion.
//
// All filters have a cutoff of 0.1 * Nyquist.
//
//	FIR: y[n] = b[0]*x[n] + b[1]*x[n-1] + ... + b[N-1]*x[n-N+1]
//	IIR: y[n] = (1/a[0]) * (b[0]*x[n] + ... + b[P]*x[n-P] - a[1]*y[n-1] - ... - a[Q]*y[n-Q])
package dsp

import "fmt"

// TapCount selects one of the fixed coefficient tables.
type TapCount int

const (
	Taps3 TapCount = 3
	Taps5 TapCount = 5
	Taps9 TapCount = 9
)

// CoefficientSet is the full table for one tap count.
type CoefficientSet struct {
	Taps TapCount

	FIRLow  []float64
	FIRHigh []float64

	IIRLowB  []float64
	IIRLowA  []float64
	IIRHighB []float64
	IIRHighA []float64
}

// Windowed-sinc low-pass designs. The high-pass sets are their spectral
// complements (unit impulse at the centre tap minus the low-pass).
var (
	firLPF9 = []float64{0.014408, 0.043863, 0.120212, 0.202534, 0.237966, 0.202534, 0.120212, 0.043863, 0.014408}
	firLPF5 = []float64{0.033833, 0.240127, 0.452079, 0.240127, 0.033833}
	firLPF3 = []float64{0.067990, 0.864020, 0.067990}

	firHPF9 = []float64{-0.014408, -0.043863, -0.120212, -0.202534, 0.762034, -0.202534, -0.120212, -0.043863, -0.014408}
	firHPF5 = []float64{-0.033833, -0.240127, 0.547921, -0.240127, -0.033833}
	firHPF3 = []float64{-0.067990, 0.135980, -0.067990}
)

// Butterworth designs.
var (
	iirLPF3a = []float64{1.000000, -1.561018, 0.641352}
	iirLPF3b = []float64{0.020083, 0.040167, 0.020083}
	iirLPF5a = []float64{1.000000, -3.180639, 3.861194, -2.112155, 0.438265}
	iirLPF5b = []float64{0.000417, 0.001666, 0.002500, 0.001666, 0.000417}
	iirLPF9a = []float64{1.000000, -6.390365, 18.000338, -29.171099, 29.731375, -19.505632, 8.040996, -1.903669, 0.198100}
	iirLPF9b = []float64{0.000000, 0.000001, 0.000005, 0.000010, 0.000012, 0.000010, 0.000005, 0.000001, 0.000000}

	iirHPF3a = []float64{1.000000, -1.561018, 0.641352}
	iirHPF3b = []float64{0.800592, -1.601185, 0.800592}
	iirHPF5a = []float64{1.000000, -3.180639, 3.861194, -2.112155, 0.438265}
	iirHPF5b = []float64{0.662016, -2.648063, 3.972095, -2.648063, 0.662016}
	iirHPF9a = []float64{1.000000, -6.390365, 18.000338, -29.171099, 29.731375, -19.505632, 8.040996, -1.903669, 0.198100}
	iirHPF9b = []float64{0.445084, -3.560674, 12.462360, -24.924719, 31.155899, -24.924719, 12.462360, -3.560674, 0.445084}
)

// Coefficients resolves the table for taps. Slices are copies, callers may keep them.
func Coefficients(taps TapCount) (CoefficientSet, error) {
	var s CoefficientSet
	switch taps {
	case Taps3:
		s = CoefficientSet{taps, firLPF3, firHPF3, iirLPF3b, iirLPF3a, iirHPF3b, iirHPF3a}
	case Taps5:
		s = CoefficientSet{taps, firLPF5, firHPF5, iirLPF5b, iirLPF5a, iirHPF5b, iirHPF5a}
	case Taps9:
		s = CoefficientSet{taps, firLPF9, firHPF9, iirLPF9b, iirLPF9a, iirHPF9b, iirHPF9a}
	default:
		return CoefficientSet{}, fmt.Errorf("unsupported tap count %d (want 3, 5 or 9)", int(taps))
	}
	return CoefficientSet{
		Taps:     s.Taps,
		FIRLow:   clone(s.FIRLow),
		FIRHigh:  clone(s.FIRHigh),
		IIRLowB:  clone(s.IIRLowB),
		IIRLowA:  clone(s.IIRLowA),
		IIRHighB: clone(s.IIRHighB),
		IIRHighA: clone(s.IIRHighA),
	}, nil
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
