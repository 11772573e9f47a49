// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dsp

import (
	"fmt"
	"math"
)

// Filter processes one channel, one sample per call.
type Filter interface {
	Filter(x float64) float64
	Reset()
}

// FIR is a direct-form FIR filter over a ring of the last len(coeffs) inputs.
// The ring starts zeroed, so the first N-1 outputs see a zero-padded history.
type FIR struct {
	coeffs []float64
	ring   []float64
	idx    int
}

// NewFIR copies coeffs into a new filter.
func NewFIR(coeffs []float64) (*FIR, error) {
	if len(coeffs) == 0 {
		return nil, fmt.Errorf("fir: empty coefficient vector")
	}
	return &FIR{
		coeffs: clone(coeffs),
		ring:   make([]float64, len(coeffs)),
	}, nil
}

// Filter pushes x and returns the convolution with the coefficient vector.
func (f *FIR) Filter(x float64) float64 {
	n := len(f.ring)
	f.ring[f.idx] = x

	y := 0.0
	for k, c := range f.coeffs {
		y += c * f.ring[(f.idx-k+n)%n]
	}

	f.idx = (f.idx + 1) % n
	return y
}

// Reset zeroes the history.
func (f *FIR) Reset() {
	for i := range f.ring {
		f.ring[i] = 0
	}
	f.idx = 0
}

// IIR is a direct-form I recursive filter keeping past inputs and outputs.
type IIR struct {
	b, a []float64
	x, y []float64 // x[0], y[0] are the newest
}

// NewIIR builds an IIR filter. a[0] must be non-zero.
func NewIIR(b, a []float64) (*IIR, error) {
	if len(b) == 0 || len(a) == 0 {
		return nil, fmt.Errorf("iir: empty coefficient vector")
	}
	if a[0] == 0 || math.IsNaN(a[0]) {
		return nil, fmt.Errorf("iir: a[0] must be non-zero")
	}
	return &IIR{
		b: clone(b),
		a: clone(a),
		x: make([]float64, len(b)),
		y: make([]float64, len(a)),
	}, nil
}

// Filter pushes x and returns y[n].
func (f *IIR) Filter(x float64) float64 {
	copy(f.x[1:], f.x[:len(f.x)-1])
	f.x[0] = x

	acc := 0.0
	for k, bk := range f.b {
		acc += bk * f.x[k]
	}
	// f.y[0] still holds y[n-1] here, so a[k] pairs with f.y[k-1]
	for k := 1; k < len(f.a); k++ {
		acc -= f.a[k] * f.y[k-1]
	}
	out := acc / f.a[0]

	copy(f.y[1:], f.y[:len(f.y)-1])
	f.y[0] = out
	return out
}

// Reset zeroes inputs and outputs.
func (f *IIR) Reset() {
	for i := range f.x {
		f.x[i] = 0
	}
	for i := range f.y {
		f.y[i] = 0
	}
}

type passthrough struct{}

func (passthrough) Filter(x float64) float64 { return x }
func (passthrough) Reset()                   {}
