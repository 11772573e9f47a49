package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gait_computer/internal/imu"
)

var allTaps = []TapCount{Taps3, Taps5, Taps9}

func sum(v []float64) float64 {
	s := 0.0
	for _, c := range v {
		s += c
	}
	return s
}

func TestFIRCoefficientSums(t *testing.T) {
	for _, taps := range allTaps {
		set, err := Coefficients(taps)
		require.NoError(t, err)

		assert.Len(t, set.FIRLow, int(taps))
		assert.Len(t, set.FIRHigh, int(taps))
		assert.InDelta(t, 1.0, sum(set.FIRLow), 1e-4, "low-pass taps=%d", taps)
		assert.InDelta(t, 0.0, sum(set.FIRHigh), 1e-3, "high-pass taps=%d", taps)
	}
}

func TestFIRHighPassIsComplement(t *testing.T) {
	for _, taps := range allTaps {
		set, err := Coefficients(taps)
		require.NoError(t, err)

		centre := int(taps) / 2
		for k := range set.FIRLow {
			want := -set.FIRLow[k]
			if k == centre {
				want += 1
			}
			assert.InDelta(t, want, set.FIRHigh[k], 1e-6, "taps=%d k=%d", taps, k)
		}
	}
}

func TestIIRDCGain(t *testing.T) {
	for _, taps := range allTaps {
		set, err := Coefficients(taps)
		require.NoError(t, err)

		assert.Len(t, set.IIRLowB, int(taps))
		assert.Len(t, set.IIRLowA, int(taps))
		assert.InDelta(t, 1.0, sum(set.IIRLowB)/sum(set.IIRLowA), 0.05, "low-pass taps=%d", taps)
		assert.InDelta(t, 0.0, sum(set.IIRHighB), 1e-3, "high-pass taps=%d", taps)
	}
}

func TestCoefficientsUnsupportedTaps(t *testing.T) {
	_, err := Coefficients(TapCount(7))
	assert.Error(t, err)
}

func TestCoefficientsReturnsCopies(t *testing.T) {
	a, err := Coefficients(Taps3)
	require.NoError(t, err)
	a.FIRLow[0] = 42

	b, err := Coefficients(Taps3)
	require.NoError(t, err)
	assert.NotEqual(t, 42.0, b.FIRLow[0])
}

func TestFIRZeroPaddedStart(t *testing.T) {
	set, err := Coefficients(Taps5)
	require.NoError(t, err)
	f, err := NewFIR(set.FIRLow)
	require.NoError(t, err)

	// unit step: partial sums of the coefficients until the ring is full
	partial := 0.0
	for n := 0; n < 5; n++ {
		partial += set.FIRLow[n]
		assert.InDelta(t, partial, f.Filter(1), 1e-12, "n=%d", n)
	}
	assert.InDelta(t, 1.0, f.Filter(1), 1e-4)
}

func TestFIRImpulseResponse(t *testing.T) {
	coeffs := []float64{0.25, 0.5, 0.25}
	f, err := NewFIR(coeffs)
	require.NoError(t, err)

	got := []float64{f.Filter(1), f.Filter(0), f.Filter(0), f.Filter(0)}
	assert.Equal(t, []float64{0.25, 0.5, 0.25, 0}, got)

	f.Filter(8)
	f.Reset()
	assert.Equal(t, 0.0, f.Filter(0))
}

func TestIIRStepResponse(t *testing.T) {
	for _, taps := range []TapCount{Taps3, Taps5} {
		set, err := Coefficients(taps)
		require.NoError(t, err)

		lp, err := NewIIR(set.IIRLowB, set.IIRLowA)
		require.NoError(t, err)
		hp, err := NewIIR(set.IIRHighB, set.IIRHighA)
		require.NoError(t, err)

		var yl, yh float64
		for n := 0; n < 2000; n++ {
			yl = lp.Filter(1)
			yh = hp.Filter(1)
		}
		assert.InDelta(t, 1.0, yl, 0.01, "low-pass settles to the step, taps=%d", taps)
		assert.InDelta(t, 0.0, yh, 0.01, "high-pass rejects DC, taps=%d", taps)
	}
}

func TestIIRRecursion(t *testing.T) {
	// y[n] = 0.5 x[n] + 0.5 y[n-1]
	f, err := NewIIR([]float64{0.5}, []float64{1, -0.5})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, f.Filter(1), 1e-12)
	assert.InDelta(t, 0.75, f.Filter(1), 1e-12)
	assert.InDelta(t, 0.375, f.Filter(0), 1e-12)
}

func TestNewIIRRejectsZeroA0(t *testing.T) {
	_, err := NewIIR([]float64{1}, []float64{0, 1})
	assert.Error(t, err)
}

func TestBankChannelsAreIndependent(t *testing.T) {
	b, err := NewBank(BankConfig{Taps: Taps3, Accel: KindFIRLowPass, Gyro: KindNone})
	require.NoError(t, err)

	out := b.Filter(imu.Sample{
		Accel: [3]float64{1, 0, 0},
		Gyro:  [3]float64{0.1, 0.2, 0.3},
		Mag:   [3]float64{7, 8, 9},
	})

	assert.InDelta(t, 0.067990, out.Accel[0], 1e-9)
	assert.Equal(t, 0.0, out.Accel[1])
	assert.Equal(t, 0.0, out.Accel[2])
	assert.Equal(t, [3]float64{0.1, 0.2, 0.3}, out.Gyro)
	assert.Equal(t, [3]float64{7, 8, 9}, out.Mag)
}

func TestBankLowPassAttenuatesAlternatingNoise(t *testing.T) {
	b, err := NewBank(BankConfig{Taps: Taps9, Accel: KindFIRLowPass, Gyro: KindFIRLowPass})
	require.NoError(t, err)

	var out imu.Sample
	for n := 0; n < 100; n++ {
		sign := 1.0
		if n%2 == 1 {
			sign = -1
		}
		out = b.Filter(imu.Sample{Accel: [3]float64{256 + 10*sign, 0, 0}})
	}
	assert.Less(t, math.Abs(out.Accel[0]-256), 1.0)

	b.Reset()
	out = b.Filter(imu.Sample{})
	assert.Equal(t, 0.0, out.Accel[0])
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindNone, KindFIRLowPass, KindFIRHighPass, KindIIRLowPass, KindIIRHighPass} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("median")
	assert.Error(t, err)
}
