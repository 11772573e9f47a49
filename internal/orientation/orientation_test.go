package orientation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePoseFromAccelLevel(t *testing.T) {
	p := ComputePoseFromAccel(0, 0, 256)
	assert.InDelta(t, 0.0, p.Roll, 1e-9)
	assert.InDelta(t, 0.0, p.Pitch, 1e-9)
	assert.Equal(t, 0.0, p.Yaw)
}

func TestComputePoseFromAccelTilted(t *testing.T) {
	// nose down 30 degrees: gravity shows up on +x
	p := ComputePoseFromAccel(-256*math.Sin(math.Pi/6), 0, 256*math.Cos(math.Pi/6))
	assert.InDelta(t, 30.0, p.Pitch, 1e-9)
	assert.InDelta(t, 0.0, p.Roll, 1e-9)

	p = ComputePoseFromAccel(0, 1, 1)
	assert.InDelta(t, 45.0, p.Roll, 1e-9)
}

func TestPoseRadiansRoundTrip(t *testing.T) {
	p := PoseFromRadians(0.1, -0.2, math.Pi/2)
	assert.InDelta(t, 90.0, p.Yaw, 1e-9)

	r, pi, y := p.Radians()
	assert.InDelta(t, 0.1, r, 1e-12)
	assert.InDelta(t, -0.2, pi, 1e-12)
	assert.InDelta(t, math.Pi/2, y, 1e-12)
}
