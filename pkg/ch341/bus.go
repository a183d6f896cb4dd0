package ch341

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds every USB transfer
const DefaultTimeout = time.Second

// transport is the pair of bulk endpoints
type transport interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// Bus implements cc1101.Bus over a CH341A in SPI mode. GDO0 and GDO2 are
// wired to status inputs, ERR and INT by default. The CH341A cannot wait for
// edges, so the receiver polls it.
type Bus struct {
	mu      sync.Mutex
	t       transport
	closer  func() error
	timeout time.Duration
	gdo0    int
	gdo2    int
}

func newBus(t transport, closer func() error) (*Bus, error) {
	b := &Bus{
		t:       t,
		closer:  closer,
		timeout: DefaultTimeout,
		gdo0:    InputERR,
		gdo2:    InputINT,
	}
	if err := b.write(speedCommand()); err != nil {
		return nil, fmt.Errorf("set SPI speed: %w", err)
	}
	if err := b.write(pinCommand(pinsIdle)); err != nil {
		return nil, fmt.Errorf("enable pins: %w", err)
	}
	return b, nil
}

// SetInputs selects the status input bits GDO0 and GDO2 are wired to
func (b *Bus) SetInputs(gdo0, gdo2 int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gdo0, b.gdo2 = gdo0, gdo2
}

func (b *Bus) write(p []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	n, err := b.t.WriteContext(ctx, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(p))
	}
	return nil
}

// read fills p, issuing as many bulk reads as needed
func (b *Bus) read(p []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	for got := 0; got < len(p); {
		n, err := b.t.ReadContext(ctx, p[got:])
		if err != nil {
			return fmt.Errorf("read after %d of %d bytes: %w", got, len(p), err)
		}
		got += n
	}
	return nil
}

// Tx holds chip select low for the whole transfer. Chip select is released
// even when the transfer fails.
func (b *Bus) Tx(w, r []byte) (err error) {
	if len(r) != len(w) {
		return fmt.Errorf("read buffer is %d bytes, write is %d", len(r), len(w))
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.write(pinCommand(pinsSelect)); err != nil {
		return fmt.Errorf("select: %w", err)
	}
	defer func() {
		if derr := b.write(pinCommand(pinsIdle)); derr != nil && err == nil {
			err = fmt.Errorf("deselect: %w", derr)
		}
	}()

	off := 0
	for _, p := range spiPackets(w) {
		n := len(p) - 1
		if err := b.write(p); err != nil {
			return err
		}
		in := make([]byte, n)
		if err := b.read(in); err != nil {
			return err
		}
		copy(r[off:], reverse(in))
		off += n
	}
	return nil
}

// input reads the status inputs and returns the level of the GDO2 or GDO0 bit
func (b *Bus) input(gdo2 bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.write([]byte{cmdGetInput}); err != nil {
		return false
	}
	status := make([]byte, inputStatusSize)
	if err := b.read(status); err != nil {
		return false
	}
	if gdo2 {
		return inputLevel(status, b.gdo2)
	}
	return inputLevel(status, b.gdo0)
}

func (b *Bus) SyncDetected() bool {
	return b.input(true)
}

func (b *Bus) FIFOThreshold() bool {
	return b.input(false)
}

// Close releases the USB device
func (b *Bus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}
