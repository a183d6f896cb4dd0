package periphbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/herlein/gowmbus/pkg/cc1101"
)

type fixture struct {
	port *spitest.Playback
	gdo0 *gpiotest.Pin
	gdo2 *gpiotest.Pin
	bus  *Bus
}

func newFixture(t *testing.T, ops ...conntest.IO) *fixture {
	t.Helper()
	f := &fixture{
		port: &spitest.Playback{Playback: conntest.Playback{Ops: ops, DontPanic: true}},
		gdo0: &gpiotest.Pin{N: "GPIO24"},
		gdo2: &gpiotest.Pin{N: "GPIO25", EdgesChan: make(chan gpio.Level, 1)},
	}
	bus, err := New(f.port, 0, f.gdo0, f.gdo2)
	require.NoError(t, err)
	f.bus = bus
	return f
}

func TestChipOverPeriph(t *testing.T) {
	f := newFixture(t,
		conntest.IO{W: []byte{0xF0, 0x00}, R: []byte{0x0F, 0x00}},
		conntest.IO{W: []byte{0xF1, 0x00}, R: []byte{0x0F, 0x14}},
		conntest.IO{W: []byte{0x36}, R: []byte{0x0F}},
	)
	chip := cc1101.New(f.bus, zap.NewNop())

	assert.Equal(t, byte(0x00), chip.PartNum())
	assert.Equal(t, byte(0x14), chip.Version())
	require.NoError(t, chip.Err())

	require.NoError(t, chip.Close(), "strobes SIDLE and closes the port")
	assert.Equal(t, 3, f.port.Count)
}

func TestUnexpectedTransfer(t *testing.T) {
	f := newFixture(t)
	chip := cc1101.New(f.bus, zap.NewNop())
	chip.Strobe(cc1101.StrobeSRX)
	assert.Error(t, chip.Err())
}

func TestGDOLines(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, gpio.PullDown, f.gdo2.P)
	assert.False(t, f.bus.SyncDetected())
	assert.False(t, f.bus.FIFOThreshold())

	f.gdo0.Out(gpio.High)
	assert.True(t, f.bus.FIFOThreshold())

	assert.False(t, f.bus.WaitForSync(time.Millisecond))
	f.gdo2.EdgesChan <- gpio.High
	assert.True(t, f.bus.WaitForSync(time.Second))
	assert.True(t, f.bus.SyncDetected())
	assert.True(t, f.bus.WaitForSync(0), "already asserted")

	require.NoError(t, f.bus.Close())
}

func TestEdgeArmingFails(t *testing.T) {
	port := &spitest.Playback{Playback: conntest.Playback{DontPanic: true}}
	_, err := New(port, 1000000, &gpiotest.Pin{N: "GDO0"}, &gpiotest.Pin{N: "GDO2"})
	assert.ErrorContains(t, err, "GDO2")
}
