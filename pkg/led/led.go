// Package led blinks an activity LED on a GPIO output.
package led

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultBlinkTime is how long the LED stays lit per telegram
const DefaultBlinkTime = 200 * time.Millisecond

// Blinker lights the LED for a fixed time. A Blink while lit is ignored.
type Blinker struct {
	pin   gpio.PinOut
	on    time.Duration
	clock clockwork.Clock

	mu    sync.Mutex
	lit   bool
	timer clockwork.Timer
}

// Open looks up pin by name and switches it off
func Open(name string, on time.Duration) (*Blinker, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("LED pin %q not found", name)
	}
	return New(p, on, clockwork.NewRealClock())
}

// New drives pin with clk
func New(pin gpio.PinOut, on time.Duration, clk clockwork.Clock) (*Blinker, error) {
	if on <= 0 {
		on = DefaultBlinkTime
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("LED %s: %w", pin, err)
	}
	return &Blinker{pin: pin, on: on, clock: clk}, nil
}

func (b *Blinker) Blink() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lit {
		return
	}
	if b.pin.Out(gpio.High) != nil {
		return
	}
	b.lit = true
	b.timer = b.clock.AfterFunc(b.on, b.off)
}

func (b *Blinker) off() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.pin.Out(gpio.Low)
	b.lit = false
}

// Close switches the LED off
func (b *Blinker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.lit = false
	return b.pin.Out(gpio.Low)
}
