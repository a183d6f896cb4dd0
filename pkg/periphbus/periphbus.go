// Package periphbus connects a CC1101 wired to a Linux SPI port, with GDO0
// and GDO2 on GPIO inputs, through periph.io.
package periphbus

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/config"
)

// DefaultSPIHz is used when no SPI clock is configured
const DefaultSPIHz = 4000000

var _ cc1101.EdgeWaiter = (*Bus)(nil)

// Bus implements cc1101.Bus and cc1101.EdgeWaiter
type Bus struct {
	port spi.PortCloser
	conn spi.Conn
	gdo0 gpio.PinIn
	gdo2 gpio.PinIn
}

// Open initialises the host drivers and opens the configured SPI port and
// GDO pins. An empty port name opens the first SPI port.
func Open(cfg config.RadioConfig) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	gdo0 := gpioreg.ByName(cfg.GDO0Pin)
	if gdo0 == nil {
		return nil, fmt.Errorf("GDO0 pin %q not found", cfg.GDO0Pin)
	}
	gdo2 := gpioreg.ByName(cfg.GDO2Pin)
	if gdo2 == nil {
		return nil, fmt.Errorf("GDO2 pin %q not found", cfg.GDO2Pin)
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", cfg.SPIPort, err)
	}
	b, err := New(port, cfg.SPIHz, gdo0, gdo2)
	if err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

// New connects to port in SPI mode 0 and configures the GDO inputs. GDO2
// is armed for rising edges.
func New(port spi.PortCloser, hz int64, gdo0, gdo2 gpio.PinIn) (*Bus, error) {
	if hz <= 0 {
		hz = DefaultSPIHz
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("spi connect: %w", err)
	}
	if err := gdo0.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("GDO0 %s: %w", gdo0, err)
	}
	if err := gdo2.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("GDO2 %s: %w", gdo2, err)
	}
	return &Bus{port: port, conn: conn, gdo0: gdo0, gdo2: gdo2}, nil
}

func (b *Bus) Tx(w, r []byte) error {
	return b.conn.Tx(w, r)
}

func (b *Bus) SyncDetected() bool {
	return b.gdo2.Read() == gpio.High
}

func (b *Bus) FIFOThreshold() bool {
	return b.gdo0.Read() == gpio.High
}

// WaitForSync blocks until GDO2 is high or timeout passes
func (b *Bus) WaitForSync(timeout time.Duration) bool {
	if b.SyncDetected() {
		return true
	}
	return b.gdo2.WaitForEdge(timeout)
}

// Close disarms the edge detection and closes the SPI port
func (b *Bus) Close() error {
	err := b.gdo2.In(gpio.PullNoChange, gpio.NoEdge)
	return errors.Join(err, b.port.Close())
}
