package cc1101

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bus is the host side of the radio: one SPI transfer primitive and the two
// GDO lines used during reception.
type Bus interface {
	// Tx performs one full-duplex transfer with chip select held for its
	// whole length. r must be as long as w.
	Tx(w, r []byte) error
	// SyncDetected reads GDO2, which asserts on sync word and deasserts at
	// end of packet
	SyncDetected() bool
	// FIFOThreshold reads GDO0, which asserts while the RX FIFO holds at
	// least FIFOTHR bytes
	FIFOThreshold() bool
	Close() error
}

// EdgeWaiter is implemented by buses that can block on a GDO2 rising edge
type EdgeWaiter interface {
	WaitForSync(timeout time.Duration) bool
}

// ResetDelay is the time the chip needs after SRES
const ResetDelay = 5 * time.Millisecond

// Chip talks to a CC1101 over a Bus. Every call issues exactly one SPI
// transaction. Bus failures never panic or retry: reads return zero and the
// error is kept for Err.
type Chip struct {
	bus    Bus
	logger *zap.Logger

	mu  sync.Mutex
	err error
}

// New wraps a bus. A nil bus is allowed and reads as an absent chip.
func New(bus Bus, logger *zap.Logger) *Chip {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chip{bus: bus, logger: logger.Named("cc1101")}
}

// Bus returns the underlying bus
func (c *Chip) Bus() Bus {
	return c.bus
}

// Err returns the last bus error and clears it
func (c *Chip) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.err
	c.err = nil
	return err
}

func (c *Chip) transfer(w []byte) []byte {
	r := make([]byte, len(w))
	if c.bus == nil {
		c.setErr(ErrNoBus)
		return r
	}
	if err := c.bus.Tx(w, r); err != nil {
		c.setErr(fmt.Errorf("spi transfer 0x%02X: %w", w[0], err))
		clear(r)
	}
	return r
}

func (c *Chip) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.logger.Debug("bus error", zap.Error(err))
}

// Strobe sends a command strobe and returns the chip status byte
func (c *Chip) Strobe(s Strobe) byte {
	return c.transfer([]byte{byte(s)})[0]
}

// WriteRegister writes a single configuration register
func (c *Chip) WriteRegister(reg Register, value byte) {
	c.transfer([]byte{byte(reg) | headerWrite, value})
}

// WriteBurst writes consecutive registers starting at reg
func (c *Chip) WriteBurst(reg Register, data []byte) {
	w := make([]byte, 0, len(data)+1)
	w = append(w, byte(reg)|headerWriteBurst)
	c.transfer(append(w, data...))
}

// ReadRegister reads a single configuration register. Status registers are
// read with the burst bit, as ReadStatus does.
func (c *Chip) ReadRegister(reg Register) byte {
	if reg.IsStatus() {
		return c.ReadStatus(reg)
	}
	return c.transfer([]byte{byte(reg) | headerRead, 0})[1]
}

// ReadStatus reads a status register. Status registers share addresses with
// strobes and are only reachable with the burst bit set.
func (c *Chip) ReadStatus(reg Register) byte {
	return c.transfer([]byte{byte(reg) | headerReadBurst, 0})[1]
}

// ReadBurst reads count consecutive bytes starting at reg. Reading RegFIFO
// drains count bytes from the RX FIFO.
func (c *Chip) ReadBurst(reg Register, count int) []byte {
	if count <= 0 {
		return nil
	}
	w := make([]byte, count+1)
	w[0] = byte(reg) | headerReadBurst
	return c.transfer(w)[1:]
}

// Reset issues SRES and waits for the chip to come back
func (c *Chip) Reset() {
	c.Strobe(StrobeSRES)
	time.Sleep(ResetDelay)
}

// PartNum returns the PARTNUM status register
func (c *Chip) PartNum() byte {
	return c.ReadStatus(RegPARTNUM)
}

// Version returns the VERSION status register
func (c *Chip) Version() byte {
	return c.ReadStatus(RegVERSION)
}

// State returns the current MARCSTATE
func (c *Chip) State() State {
	return State(c.ReadStatus(RegMARCSTATE) & 0x1F) // MARCSTATE is only 5 bits
}

// RXBytes returns the RX FIFO fill level and overflow flag
func (c *Chip) RXBytes() (int, bool) {
	v := c.ReadStatus(RegRXBYTES)
	return int(v & RXBytesMask), v&RXBytesOverflow != 0
}

// RSSI returns the received signal strength in dBm
func (c *Chip) RSSI() int {
	return RSSIToDBm(c.ReadStatus(RegRSSI))
}

// LQI returns the link quality indicator
func (c *Chip) LQI() byte {
	return c.ReadStatus(RegLQI) & 0x7F
}

// RSSIToDBm converts a raw RSSI register value to dBm
// The register is two's complement in 0.5 dB steps with a -74 dB offset
func RSSIToDBm(raw byte) int {
	if raw >= 128 {
		return (int(raw)-256)/2 - 74
	}
	return int(raw)/2 - 74
}

// SyncDetected reports the sync word line. It is false without a bus.
func (c *Chip) SyncDetected() bool {
	return c.bus != nil && c.bus.SyncDetected()
}

// FIFOThreshold reports the RX FIFO threshold line. It is false without a bus.
func (c *Chip) FIFOThreshold() bool {
	return c.bus != nil && c.bus.FIFOThreshold()
}

// WaitForState polls MARCSTATE until the desired state is reached or timeout
func (c *Chip) WaitForState(state State, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		current := c.State()
		if err := c.Err(); err != nil {
			return fmt.Errorf("failed to read MARCSTATE: %w", err)
		}
		if current == state {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: want %s, have %s", ErrStateTimeout, state, current)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// Info describes the chip found on the bus
type Info struct {
	PartNum byte `json:"part_num"`
	Version byte `json:"version"`
}

// Probe resets the chip and checks that it answers with a plausible version
func (c *Chip) Probe() (Info, error) {
	c.Reset()
	info := Info{PartNum: c.PartNum(), Version: c.Version()}
	if err := c.Err(); err != nil {
		return info, fmt.Errorf("%w: %v", ErrChipNotFound, err)
	}
	if info.Version == 0x00 || info.Version == 0xFF {
		return info, fmt.Errorf("%w: version 0x%02X", ErrChipNotFound, info.Version)
	}
	c.logger.Info("chip found", zap.Uint8("partnum", info.PartNum), zap.Uint8("version", info.Version))
	return info, nil
}

// Close puts the radio back to IDLE and releases the bus
func (c *Chip) Close() error {
	if c.bus == nil {
		return nil
	}
	c.Strobe(StrobeSIDLE)
	return c.bus.Close()
}
