// Package cc1101test provides an in-memory CC1101 for tests. It decodes the
// SPI header byte the same way the chip does and keeps enough state to run
// the receive path: registers, MARCSTATE, the RX FIFO and the two GDO lines.
package cc1101test

import (
	"errors"
	"sync"
	"time"

	"github.com/herlein/gowmbus/pkg/cc1101"
)

// ErrInjected is returned from Tx when the bus is set to fail
var ErrInjected = errors.New("injected bus failure")

// Write is one register write seen on the bus
type Write struct {
	Reg   cc1101.Register
	Value byte
}

// Bus emulates a CC1101 behind a SPI bus. The zero value is not usable,
// use NewBus.
type Bus struct {
	mu sync.Mutex

	regs     [0x30]byte
	state    cc1101.State
	fifo     []byte
	overflow bool
	syncLine bool
	closed   bool
	fail     bool
	syncCh   chan struct{}

	// Identity and signal values reported through the status registers
	PartNum byte
	Version byte
	RSSIRaw byte
	LQIRaw  byte

	// EndOfPacketOnRead drops the sync line on the first FIFO read, as if
	// the whole packet had already been received
	EndOfPacketOnRead bool

	// tail reaches the FIFO when the sync line is next sampled low
	tail []byte

	strobes []cc1101.Strobe
	writes  []Write
	txCount int
}

// NewBus returns an idle chip reporting version 0x14
func NewBus() *Bus {
	return &Bus{
		state:   cc1101.StateIDLE,
		Version: 0x14,
		syncCh:  make(chan struct{}, 1),
	}
}

// Tx implements cc1101.Bus
func (b *Bus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.txCount++
	if b.fail {
		return ErrInjected
	}
	if len(w) == 0 {
		return nil
	}

	header := w[0]
	addr := cc1101.Register(header & 0x3F)
	read := header&0x80 != 0
	burst := header&0x40 != 0

	if len(w) == 1 {
		if addr >= 0x30 && addr <= 0x3D {
			b.strobe(cc1101.Strobe(addr))
		}
		r[0] = b.statusByte()
		return nil
	}

	switch {
	case !read && !burst:
		b.write(addr, w[1])
	case !read && burst:
		for i, v := range w[1:] {
			if addr == cc1101.RegFIFO || addr == cc1101.RegPATABLE {
				break
			}
			b.write(addr+cc1101.Register(i), v)
		}
	case read && addr == cc1101.RegFIFO:
		for i := 1; i < len(w); i++ {
			if len(b.fifo) > 0 {
				r[i] = b.fifo[0]
				b.fifo = b.fifo[1:]
			}
		}
		if b.EndOfPacketOnRead {
			b.syncLine = false
		}
	case read && burst && addr.IsStatus():
		r[1] = b.status(addr)
	case read:
		for i := 1; i < len(w); i++ {
			a := int(addr) + i - 1
			if a < len(b.regs) {
				r[i] = b.regs[a]
			}
		}
	}
	return nil
}

func (b *Bus) write(reg cc1101.Register, v byte) {
	if int(reg) < len(b.regs) {
		b.regs[reg] = v
	}
	b.writes = append(b.writes, Write{Reg: reg, Value: v})
}

func (b *Bus) strobe(s cc1101.Strobe) {
	b.strobes = append(b.strobes, s)
	switch s {
	case cc1101.StrobeSRES:
		b.regs = [0x30]byte{}
		b.state = cc1101.StateIDLE
		b.fifo = nil
		b.overflow = false
	case cc1101.StrobeSIDLE, cc1101.StrobeSCAL:
		b.state = cc1101.StateIDLE
	case cc1101.StrobeSRX:
		if !b.overflow {
			b.state = cc1101.StateRX
		}
	case cc1101.StrobeSFRX:
		b.fifo = nil
		b.overflow = false
		if b.state == cc1101.StateRXFIFO_OVF {
			b.state = cc1101.StateIDLE
		}
	}
}

func (b *Bus) status(reg cc1101.Register) byte {
	switch reg {
	case cc1101.RegPARTNUM:
		return b.PartNum
	case cc1101.RegVERSION:
		return b.Version
	case cc1101.RegRSSI:
		return b.RSSIRaw
	case cc1101.RegLQI:
		return b.LQIRaw
	case cc1101.RegMARCSTATE:
		return byte(b.state)
	case cc1101.RegRXBYTES:
		v := byte(len(b.fifo)) & cc1101.RXBytesMask
		if b.overflow {
			v |= cc1101.RXBytesOverflow
		}
		return v
	}
	return 0
}

func (b *Bus) statusByte() byte {
	return byte(b.state&0x07) << 4
}

// SyncDetected implements cc1101.Bus
func (b *Bus) SyncDetected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.syncLine && len(b.tail) > 0 {
		b.receive(b.tail)
		b.tail = nil
	}
	return b.syncLine
}

// FIFOThreshold implements cc1101.Bus. GDO0 asserts while the FIFO holds at
// least 4*(FIFOTHR+1) bytes.
func (b *Bus) FIFOThreshold() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	threshold := 4 * (int(b.regs[cc1101.RegFIFOTHR]&0x0F) + 1)
	return len(b.fifo) >= threshold
}

// WaitForSync implements cc1101.EdgeWaiter
func (b *Bus) WaitForSync(timeout time.Duration) bool {
	if b.SyncDetected() {
		return true
	}
	select {
	case <-b.syncCh:
		return true
	case <-time.After(timeout):
		return b.SyncDetected()
	}
}

// Close implements cc1101.Bus
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// SetSync drives the sync word line
func (b *Bus) SetSync(on bool) {
	b.mu.Lock()
	b.syncLine = on
	b.mu.Unlock()
	if on {
		select {
		case b.syncCh <- struct{}{}:
		default:
		}
	}
}

// Receive appends bytes to the RX FIFO. Bytes beyond the FIFO depth set the
// overflow flag and are lost.
func (b *Bus) Receive(data ...byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receive(data)
}

// ReceiveTail queues the last bytes of a packet. They arrive together with
// the falling sync line: the first SyncDetected that reads the line low
// moves them into the FIFO, after any FIFO count read before it.
func (b *Bus) ReceiveTail(data ...byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tail = append(b.tail, data...)
}

func (b *Bus) receive(data []byte) {
	for _, v := range data {
		if len(b.fifo) >= cc1101.FIFOSize {
			b.overflow = true
			b.state = cc1101.StateRXFIFO_OVF
			return
		}
		b.fifo = append(b.fifo, v)
	}
}

// SetFail makes every following Tx fail
func (b *Bus) SetFail(fail bool) {
	b.mu.Lock()
	b.fail = fail
	b.mu.Unlock()
}

// SetState forces MARCSTATE
func (b *Bus) SetState(s cc1101.State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// State returns the emulated MARCSTATE
func (b *Bus) State() cc1101.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Register returns the current value of a configuration register
func (b *Bus) Register(reg cc1101.Register) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[reg]
}

// FIFOLen returns the number of bytes waiting in the RX FIFO
func (b *Bus) FIFOLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fifo)
}

// Strobes returns the strobes seen so far
func (b *Bus) Strobes() []cc1101.Strobe {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]cc1101.Strobe(nil), b.strobes...)
}

// Writes returns the register writes seen so far
func (b *Bus) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Write(nil), b.writes...)
}

// TxCount returns the number of SPI transactions seen so far
func (b *Bus) TxCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txCount
}

// Closed reports whether Close was called
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// ClearLog clears the recorded strobes and writes
func (b *Bus) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strobes = nil
	b.writes = nil
	b.txCount = 0
}
