package telemetry

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/attitude"
	"github.com/relabs-tech/gait_computer/internal/calibration"
	"github.com/relabs-tech/gait_computer/internal/control"
	"github.com/relabs-tech/gait_computer/internal/gait"
	"github.com/relabs-tech/gait_computer/internal/orientation"
)

func TestChecksumRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		payload := make([]byte, rng.Intn(MaxPayload+1))
		rng.Read(payload)

		p, err := NewPacket(TypeGait, payload)
		require.NoError(t, err)
		require.True(t, p.Valid())

		b, err := p.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, b, 2+5+len(payload))

		got, err := Unmarshal(b)
		require.NoError(t, err)
		assert.Equal(t, p, got)

		if len(payload) == 0 {
			continue
		}
		j := rng.Intn(len(payload))
		p.Payload[j] += byte(1 + rng.Intn(255))
		assert.False(t, p.Valid(), "mutated byte %d", j)

		b[6+j]++
		_, err = Unmarshal(b)
		assert.ErrorIs(t, err, ErrChecksum)
	}
}

func TestPacketLayout(t *testing.T) {
	p, err := NewPacket(TypeStride, []byte{0x10, 0x20, 0xF0})
	require.NoError(t, err)
	b, err := p.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, []byte{
		0x08, 0x00, // total length
		0x04, 0x00, // type
		0x03, 0x00, // payload length
		0x10, 0x20, 0xF0,
		0x20, // 0x120 mod 256
	}, b)
}

func TestPayloadLimit(t *testing.T) {
	_, err := NewPacket(TypeFault, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = NewPacket(TypeFault, make([]byte, MaxPayload))
	assert.NoError(t, err)
}

func TestUnmarshalStructuralErrors(t *testing.T) {
	var fe *FrameError

	_, err := Unmarshal([]byte{0x01})
	assert.True(t, errors.As(err, &fe))

	_, err = Unmarshal([]byte{0xFF, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	assert.True(t, errors.As(err, &fe))

	// payload length field disagrees with total length
	_, err = Unmarshal([]byte{0x06, 0x00, 0x01, 0x00, 0x02, 0x00, 0x05, 0x05})
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Error(), "payload length")
}

func TestParseCommand(t *testing.T) {
	cases := map[string]control.Command{
		"#o0":   {Kind: control.CmdOutputMode, Mode: control.OutputAngles},
		"#o3\r": {Kind: control.CmdOutputMode, Mode: control.OutputAll},
		"#c1":   {Kind: control.CmdCalibrate, On: true},
		"#c0":   {Kind: control.CmdCalibrate},
		"#r":    {Kind: control.CmdRealign},
		"#s":    {Kind: control.CmdStatus},
		"#b":    {Kind: control.CmdBaudLock},
	}
	for in, want := range cases {
		got, err := ParseCommand(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)

		s, err := FormatCommand(got)
		require.NoError(t, err)
		assert.Equal(t, strings.TrimSpace(in), s)
	}

	for _, bad := range []string{"", "#o4", "#o/", "#x", "#c2", "o1"} {
		_, err := ParseCommand(bad)
		assert.ErrorIs(t, err, ErrUnknownCommand, bad)
	}
}

func TestReadCommands(t *testing.T) {
	in := strings.NewReader("#o2\n\nbogus\n#s\n")
	out := make(chan control.Command, 4)
	require.NoError(t, ReadCommands(context.Background(), in, out, zap.NewNop()))
	close(out)

	var got []control.Command
	for c := range out {
		got = append(got, c)
	}
	assert.Equal(t, []control.Command{
		{Kind: control.CmdOutputMode, Mode: control.OutputGait},
		{Kind: control.CmdStatus},
	}, got)
}

func tickWithStride() control.TickResult {
	return control.TickResult{
		Timestamp: 123456,
		GDt:       0.005,
		Pose:      orientation.Pose{Roll: 1.5, Pitch: -20, Yaw: 90},
		Gait: gait.Result{
			Phase:      gait.PhaseStance,
			HeelStrike: true,
			Velocity:   attitude.Vec3{X: 1.25},
			Strides:    3,
			Stride: &gait.StrideSummary{
				Index:        2,
				Ticks:        200,
				Duration:     1,
				Speed:        1.5,
				Cadence:      60,
				Displacement: attitude.Vec3{X: 1.5},
			},
		},
	}
}

func types(pkts []Packet) []PacketType {
	var out []PacketType
	for _, p := range pkts {
		out = append(out, p.Type)
	}
	return out
}

func TestBuildFramesByMode(t *testing.T) {
	r := tickWithStride()

	pkts, err := BuildFrames(control.OutputAngles, r)
	require.NoError(t, err)
	assert.Equal(t, []PacketType{TypeAngles, TypeStride}, types(pkts))

	v, err := pkts[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, &AnglesFrame{Yaw: 90, Pitch: -20, Roll: 1.5}, v)

	v, err = pkts[1].Decode()
	require.NoError(t, err)
	st := v.(*StrideFrame)
	assert.Equal(t, uint16(200), st.Ticks)
	assert.InDelta(t, 60, st.Cadence, 1e-6)
	assert.InDelta(t, 1.5, st.Displacement[0], 1e-6)

	pkts, err = BuildFrames(control.OutputSensors, r)
	require.NoError(t, err)
	assert.Equal(t, []PacketType{TypeSensors, TypeStride}, types(pkts))

	r.Gait.Stride = nil
	r.Status = true
	r.Calibrating = true
	r.CalSamples = 40
	r.Faults = control.Faults{MissedStride: true, SkippedBefore: 2}
	pkts, err = BuildFrames(control.OutputAll, r)
	require.NoError(t, err)
	assert.Equal(t, []PacketType{TypeAngles, TypeGait, TypeCalibration, TypeStatus, TypeFault}, types(pkts))

	v, err = pkts[1].Decode()
	require.NoError(t, err)
	g := v.(*GaitFrame)
	assert.Equal(t, uint8(gait.PhaseStance), g.Phase)
	assert.Equal(t, uint8(FlagHeelStrike), g.Flags)
	assert.Equal(t, uint16(3), g.Strides)

	v, err = pkts[2].Decode()
	require.NoError(t, err)
	assert.Equal(t, &CalibrationFrame{State: CalCollecting, Samples: 40}, v)

	v, err = pkts[3].Decode()
	require.NoError(t, err)
	s := v.(*StatusFrame)
	assert.Equal(t, int64(123456), s.Timestamp)
	assert.Equal(t, uint8(StatusCalibrating), s.Flags)

	v, err = pkts[4].Decode()
	require.NoError(t, err)
	assert.Equal(t, &FaultFrame{Flags: FaultMissedStride | FaultSkipped, Skipped: 2, Message: ""}, v)

	for _, p := range pkts {
		assert.True(t, p.Valid())
		assert.LessOrEqual(t, len(p.Payload), MaxPayload)
	}
}

func TestFaultMessageIsTruncated(t *testing.T) {
	r := control.TickResult{Faults: control.Faults{Attitude: strings.Repeat("x", 80)}}
	pkts, err := BuildFrames(control.OutputGait, r)
	require.NoError(t, err)
	require.Equal(t, TypeFault, pkts[len(pkts)-1].Type)

	p := pkts[len(pkts)-1]
	assert.Len(t, p.Payload, MaxPayload)
	v, err := p.Decode()
	require.NoError(t, err)
	assert.Equal(t, uint8(FaultAttitude), v.(*FaultFrame).Flags)
	assert.Len(t, v.(*FaultFrame).Message, MaxPayload-3)
}

func TestCalibrationResult(t *testing.T) {
	c := calibration.Constants{Samples: 600, AccelOffset: [3]float64{10, -4, 2}, AccelGain: [3]float64{1, 1, 1}}
	p, err := CalibrationResult(&c, nil)
	require.NoError(t, err)
	v, err := p.Decode()
	require.NoError(t, err)
	f := v.(*CalibrationFrame)
	assert.Equal(t, CalFinished, f.State)
	assert.Equal(t, uint32(600), f.Samples)
	assert.Equal(t, float32(-4), f.AccelOffset[1])

	p, err = CalibrationResult(nil, calibration.ErrInsufficientData)
	require.NoError(t, err)
	v, err = p.Decode()
	require.NoError(t, err)
	assert.Equal(t, CalAborted, v.(*CalibrationFrame).State)
}

func TestReaderResyncs(t *testing.T) {
	var stream bytes.Buffer
	w := NewWriter(&stream, zap.NewNop())

	a, err := NewPacket(TypeStatus, []byte{1, 2, 3})
	require.NoError(t, err)
	b, err := NewPacket(TypeGait, []byte{9})
	require.NoError(t, err)
	c, err := NewPacket(TypeAngles, nil)
	require.NoError(t, err)

	stream.Write([]byte{0xFF, 0xFF, 0x00})
	require.NoError(t, w.Write(a))

	// corrupt checksum
	bad, err := b.MarshalBinary()
	require.NoError(t, err)
	bad[len(bad)-1]++
	stream.Write(bad)

	require.NoError(t, w.Write(b, c))
	assert.Equal(t, uint64(3), w.Sent())

	out := make(chan Packet, 8)
	rd := NewReader(&stream, "buffer", out, zap.NewNop())
	require.NoError(t, rd.Run(context.Background()))

	var got []Packet
	for p := range out {
		got = append(got, p)
	}
	assert.Equal(t, []Packet{a, b, c}, got)
	assert.Greater(t, rd.Resyncs(), uint64(3))
}

func TestReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Packet)
	rd := NewReader(strings.NewReader(""), "empty", out, zap.NewNop())
	assert.NoError(t, rd.Run(ctx))
	_, open := <-out
	assert.False(t, open)
}
