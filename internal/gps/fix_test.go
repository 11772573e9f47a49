package gps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRMC(t *testing.T) {
	var tr Tracker

	fix, ready, err := tr.Update("$GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W*70\r\n")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.True(t, fix.Valid())
	assert.InDelta(t, 51.5636, fix.Latitude, 1e-4)
	assert.InDelta(t, -0.7040, fix.Longitude, 1e-4)
	assert.InDelta(t, 173.8, fix.SpeedKnots, 1e-9)
	assert.InDelta(t, 89.41, fix.SpeedMS, 0.01)
	assert.InDelta(t, 231.8, fix.CourseDeg, 1e-9)
}

func TestTrackerVTGRefinesSpeed(t *testing.T) {
	var tr Tracker

	_, ready, err := tr.Update("$GPVTG,45.5,T,67.5,M,2.70,N,5.00,K*4E")
	require.NoError(t, err)
	assert.False(t, ready)

	fix := tr.Current()
	assert.InDelta(t, 5.0/3.6, fix.SpeedMS, 1e-9)
	assert.InDelta(t, 45.5, fix.CourseDeg, 1e-9)
	assert.False(t, fix.Valid())
}

func TestTrackerVoidAndNoise(t *testing.T) {
	var tr Tracker

	fix, ready, err := tr.Update("$GPRMC,220517,V,5133.82,N,00042.24,W,000.0,231.8,130694,004.2,W*6B")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.False(t, fix.Valid())

	_, ready, err = tr.Update("garbage")
	assert.NoError(t, err)
	assert.False(t, ready)

	_, _, err = tr.Update("$GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W*00")
	assert.Error(t, err, "bad checksum")
}
