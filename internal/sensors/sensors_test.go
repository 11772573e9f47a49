package sensors

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/gait_computer/internal/config"
)

type regWrite struct {
	addr uint16
	reg  byte
	val  byte
}

type fakeBus struct {
	regs     map[uint16]map[byte]byte
	writes   []regWrite
	failRead bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: map[uint16]map[byte]byte{}}
}

func (b *fakeBus) set(addr uint16, reg byte, vals ...byte) {
	if b.regs[addr] == nil {
		b.regs[addr] = map[byte]byte{}
	}
	for i, v := range vals {
		b.regs[addr][reg+byte(i)] = v
	}
}

func (b *fakeBus) ReadReg(addr uint16, reg byte, buf []byte) error {
	if b.failRead {
		return fmt.Errorf("%w: nack", ErrBus)
	}
	for i := range buf {
		buf[i] = b.regs[addr][reg+byte(i)]
	}
	return nil
}

func (b *fakeBus) WriteReg(addr uint16, reg byte, val byte) error {
	b.writes = append(b.writes, regWrite{addr, reg, val})
	b.set(addr, reg, val)
	return nil
}

func TestRazorInitSequence(t *testing.T) {
	bus := newFakeBus()
	_, err := NewRazor(bus)
	require.NoError(t, err)

	require.Len(t, bus.writes, 7)
	assert.Equal(t, regWrite{adxl345Addr, adxlPowerCtl, 0x08}, bus.writes[0])
	assert.Equal(t, regWrite{itg3200Addr, itgPwrMgm, 0x80}, bus.writes[3])
	assert.Equal(t, regWrite{itg3200Addr, itgPwrMgm, 0x00}, bus.writes[6])
}

func TestRazorReadRawRemapsAxes(t *testing.T) {
	bus := newFakeBus()
	r, err := NewRazor(bus)
	require.NoError(t, err)

	// ADXL345 little-endian: X=258, Y=-5, Z=250
	bus.set(adxl345Addr, adxlDataX0, 0x02, 0x01, 0xFB, 0xFF, 0xFA, 0x00)
	// ITG-3200 big-endian: X=100, Y=-200, Z=7
	bus.set(itg3200Addr, itgGyroXOutH, 0x00, 0x64, 0xFF, 0x38, 0x00, 0x07)

	raw, err := r.ReadRaw()
	require.NoError(t, err)

	assert.Equal(t, "razor", raw.Source)
	assert.Equal(t, int16(-5), raw.Ax)
	assert.Equal(t, int16(258), raw.Ay)
	assert.Equal(t, int16(250), raw.Az)
	assert.Equal(t, int16(200), raw.Gx)
	assert.Equal(t, int16(-100), raw.Gy)
	assert.Equal(t, int16(-7), raw.Gz)
	assert.Equal(t, int16(0), raw.Mx)
}

func TestRazorReadFailureIsBusError(t *testing.T) {
	bus := newFakeBus()
	r, err := NewRazor(bus)
	require.NoError(t, err)

	bus.failRead = true
	_, err = r.ReadRaw()
	assert.True(t, errors.Is(err, ErrBus))
}

type nackError struct{ addr uint16 }

func (e *nackError) Error() string { return fmt.Sprintf("nack from 0x%02X", e.addr) }

// failingI2C is an i2c.BusCloser whose every transfer is refused.
type failingI2C struct{}

func (failingI2C) String() string { return "failing" }
func (failingI2C) Tx(addr uint16, w, r []byte) error { return &nackError{addr: addr} }
func (failingI2C) SetSpeed(f physic.Frequency) error { return nil }
func (failingI2C) Close() error { return nil }

func TestI2CBusKeepsTransferCause(t *testing.T) {
	bus := &i2cBus{bus: failingI2C{}}

	var buf [6]byte
	err := bus.ReadReg(adxl345Addr, 0x32, buf[:])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBus)
	var nack *nackError
	require.ErrorAs(t, err, &nack)
	assert.Equal(t, uint16(adxl345Addr), nack.addr)

	err = bus.WriteReg(itg3200Addr, 0x3E, 0x01)
	assert.ErrorIs(t, err, ErrBus)
	require.ErrorAs(t, err, &nack)
	assert.Equal(t, uint16(itg3200Addr), nack.addr)
}

func TestDumpRegisters(t *testing.T) {
	bus := newFakeBus()
	bus.set(adxl345Addr, 0x00, 0xE5)

	regs := RazorRegisterMap()
	dump := DumpRegisters(bus, regs)
	require.Len(t, dump, len(regs))
	assert.Equal(t, byte(0xE5), dump[0].Value)
	assert.Contains(t, dump[0].String(), "DEVID")

	bus.failRead = true
	dump = DumpRegisters(bus, regs[:1])
	assert.NotEmpty(t, dump[0].Error)
}

func TestMockSourceFollowsSwing(t *testing.T) {
	cfg := config.Default()
	p := WalkingParamsFromConfig(cfg)
	src := NewMockSource(p)

	first, err := src.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, "mock", first.Source)
	assert.Equal(t, int16(0), first.Ax)
	assert.Equal(t, int16(250), first.Az)

	peakRate := p.Amplitude * 2 * math.Pi * p.StrideHz
	assert.InDelta(t, peakRate, float64(first.Gy)*p.GyroGain, p.GyroGain)

	// a quarter stride later the shank is at peak pitch and at rest
	var raw = first
	for n := 1; n <= 50; n++ {
		raw, err = src.ReadRaw()
		require.NoError(t, err)
	}
	assert.Equal(t, int16(math.Round(-math.Sin(0.4)*250)), raw.Ax)
	assert.InDelta(t, 0, float64(raw.Gy), 1)
}

func TestOpenUnknownSource(t *testing.T) {
	cfg := config.Default()
	cfg.SensorSource = "sim"
	_, _, err := Open(cfg)
	assert.Error(t, err)

	cfg.SensorSource = "mock"
	src, closeFn, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, closeFn())
	_, err = src.ReadRaw()
	assert.NoError(t, err)
}
