// Package receiver assembles wM-Bus frames from the CC1101 RX FIFO.
//
// The receiver is a four state machine driven by the sync word line (GDO2)
// and the RX FIFO threshold line (GDO0). It can be polled from a host loop
// with Poll, or run in its own goroutine with Run, which hands frames to a
// bounded queue.
package receiver

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/wmbus"
)

// State is the acquisition state
type State uint8

const (
	StateInit State = iota
	StateWaitForSync
	StateWaitForData
	StateReadData
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateWaitForSync:
		return "WAIT_FOR_SYNC"
	case StateWaitForData:
		return "WAIT_FOR_DATA"
	case StateReadData:
		return "READ_DATA"
	default:
		return "UNKNOWN"
	}
}

const (
	// DefaultExtraTime is the initial acquisition timeout and the amount it
	// grows every time data arrives
	DefaultExtraTime = 50 * time.Millisecond

	// MaxFixedLength is the largest frame the chip can end by itself in
	// fixed packet length mode
	MaxFixedLength = 256

	// headerSize is the number of bytes read to classify a frame
	headerSize = 3

	// stateTimeout bounds the wait for IDLE and RX while restarting
	stateTimeout = 10 * time.Millisecond
)

// Failure reasons reported to the Observer
const (
	ReasonUnknownPreamble = "unknown_preamble"
	ReasonOverflow        = "overflow"
	ReasonTimeout         = "timeout"
	ReasonLengthMismatch  = "length_mismatch"
	ReasonRXLost          = "rx_lost"
)

// Observer is notified about acquisition outcomes
type Observer interface {
	FrameReceived(f wmbus.RawFrame)
	FrameFailed(reason string)
	FrameDropped()
}

type nopObserver struct{}

func (nopObserver) FrameReceived(wmbus.RawFrame) {}
func (nopObserver) FrameFailed(string)           {}
func (nopObserver) FrameDropped()                {}

// Options configures a Receiver. Zero values select the defaults.
type Options struct {
	// SyncMode keeps Poll looping until an acquisition in progress finishes
	SyncMode  bool
	ExtraTime time.Duration
	Clock     clockwork.Clock
	Logger    *zap.Logger
	Observer  Observer
}

// frameBuffer holds the frame being assembled
type frameBuffer struct {
	data      []byte
	total     int
	remaining int
}

// Receiver owns the chip while receiving. It is not safe for concurrent use.
type Receiver struct {
	chip      *cc1101.Chip
	clock     clockwork.Clock
	logger    *zap.Logger
	observer  Observer
	syncMode  bool
	extraTime time.Duration

	state       State
	syncTime    time.Time
	maxWait     time.Duration
	fixedLength bool
	buf         frameBuffer
	meta        wmbus.FrameMetadata
}

// New creates a receiver for a configured chip. Reception starts on the
// first Poll.
func New(chip *cc1101.Chip, opts Options) *Receiver {
	r := &Receiver{
		chip:      chip,
		clock:     opts.Clock,
		logger:    opts.Logger,
		observer:  opts.Observer,
		syncMode:  opts.SyncMode,
		extraTime: opts.ExtraTime,
		state:     StateInit,
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("receiver")
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.extraTime <= 0 {
		r.extraTime = DefaultExtraTime
	}
	r.maxWait = r.extraTime
	return r
}

// State returns the current acquisition state
func (r *Receiver) State() State {
	return r.state
}

// Poll advances the state machine. It never blocks beyond bounded SPI and
// GPIO calls, and returns a frame when one has just been completed.
func (r *Receiver) Poll() (wmbus.RawFrame, bool) {
	for {
		switch r.state {
		case StateInit:
			r.start()
			return wmbus.RawFrame{}, false

		case StateWaitForSync:
			if r.chip.SyncDetected() {
				r.state = StateWaitForData
				r.syncTime = r.clock.Now()
			}

		case StateWaitForData:
			if r.chip.FIFOThreshold() && !r.readHeader() {
				r.fail(ReasonUnknownPreamble)
				return wmbus.RawFrame{}, false
			}

		case StateReadData:
			if r.chip.FIFOThreshold() {
				r.drain()
			}
		}

		if _, overflow := r.chip.RXBytes(); overflow {
			r.fail(ReasonOverflow)
			return wmbus.RawFrame{}, false
		}

		if r.state == StateReadData && !r.chip.SyncDetected() {
			return r.complete()
		}

		if r.clock.Now().Sub(r.syncTime) > r.maxWait {
			r.fail(ReasonTimeout)
			return wmbus.RawFrame{}, false
		}

		if r.chip.State() != cc1101.StateRX {
			r.fail(ReasonRXLost)
			return wmbus.RawFrame{}, false
		}

		if !r.syncMode || r.state <= StateWaitForSync {
			return wmbus.RawFrame{}, false
		}
	}
}

// start flushes the FIFOs, selects infinite packet length and enters RX
func (r *Receiver) start() {
	r.syncTime = r.clock.Now()
	r.maxWait = r.extraTime
	r.fixedLength = false
	r.buf = frameBuffer{}
	r.meta = wmbus.FrameMetadata{}

	r.chip.Strobe(cc1101.StrobeSIDLE)
	if err := r.chip.WaitForState(cc1101.StateIDLE, stateTimeout); err != nil {
		r.logger.Warn("radio did not go idle", zap.Error(err))
	}
	r.chip.Strobe(cc1101.StrobeSFTX)
	r.chip.Strobe(cc1101.StrobeSFRX)

	r.chip.WriteRegister(cc1101.RegFIFOTHR, cc1101.FIFOThreshold4Bytes)
	r.chip.WriteRegister(cc1101.RegPKTCTRL0, cc1101.PacketLengthInfinite)

	r.chip.Strobe(cc1101.StrobeSRX)
	if err := r.chip.WaitForState(cc1101.StateRX, stateTimeout); err != nil {
		r.logger.Warn("radio did not enter RX", zap.Error(err))
	}

	r.state = StateWaitForSync
}

// readHeader reads the first bytes after the sync word, classifies the frame
// and programs the packet length. It returns false for an unknown preamble.
func (r *Receiver) readHeader() bool {
	header := r.chip.ReadBurst(cc1101.RegFIFO, headerSize)

	var total int
	switch {
	case header[0] == wmbus.ModeCPreamble:
		r.meta.Mode = wmbus.ModeC
		r.meta.LengthField = header[2]
		switch header[1] {
		case wmbus.BlockAPreamble:
			r.meta.Block = wmbus.BlockA
			total = 2 + wmbus.PacketSize(header[2])
		case wmbus.BlockBPreamble:
			r.meta.Block = wmbus.BlockB
			total = 2 + 1 + int(header[2])
		default:
			r.logger.Debug("unknown mode C block", zap.Binary("header", header))
			return false
		}

	default:
		// all four symbols of the three bytes must be valid code words
		decoded, err := wmbus.Decode3of6(header)
		if err != nil {
			r.logger.Debug("unknown preamble", zap.Binary("header", header), zap.Error(err))
			return false
		}
		r.meta.Mode = wmbus.ModeT
		r.meta.Block = wmbus.BlockA
		r.meta.LengthField = decoded[0]
		total = wmbus.ByteSize(wmbus.PacketSize(decoded[0]))
	}

	r.buf = frameBuffer{
		data:      append(make([]byte, 0, total), header...),
		total:     total,
		remaining: total - headerSize,
	}

	if total < MaxFixedLength {
		r.chip.WriteRegister(cc1101.RegPKTLEN, byte(total))
		r.chip.WriteRegister(cc1101.RegPKTCTRL0, cc1101.PacketLengthFixed)
		r.fixedLength = true
	} else {
		r.chip.WriteRegister(cc1101.RegPKTLEN, byte(total%MaxFixedLength))
	}

	r.state = StateReadData
	r.maxWait += r.extraTime
	r.chip.WriteRegister(cc1101.RegFIFOTHR, cc1101.FIFOThreshold44Bytes)
	return true
}

// drain reads all but one byte from the FIFO. Emptying the FIFO while a byte
// is being received corrupts it (CC1101 errata SWRZ020E).
func (r *Receiver) drain() {
	if r.buf.remaining < MaxFixedLength && !r.fixedLength {
		r.chip.WriteRegister(cc1101.RegPKTCTRL0, cc1101.PacketLengthFixed)
		r.fixedLength = true
	}

	n, _ := r.chip.RXBytes()
	count := min(n-1, r.buf.remaining)
	if count <= 0 {
		return
	}
	r.buf.data = append(r.buf.data, r.chip.ReadBurst(cc1101.RegFIFO, count)...)
	r.buf.remaining -= count
	r.maxWait += r.extraTime
}

// complete runs once the sync line drops: the packet is over and the FIFO
// can be read empty. The FIFO count is read after the sync line so the last
// bytes of the packet are included.
func (r *Receiver) complete() (wmbus.RawFrame, bool) {
	inFIFO, overflow := r.chip.RXBytes()
	if overflow {
		r.fail(ReasonOverflow)
		return wmbus.RawFrame{}, false
	}
	r.state = StateInit

	if count := min(inFIFO, r.buf.remaining); count > 0 {
		r.buf.data = append(r.buf.data, r.chip.ReadBurst(cc1101.RegFIFO, count)...)
		r.buf.remaining -= count
	}
	r.meta.RSSI = r.chip.RSSI()
	r.meta.LQI = r.chip.LQI()
	r.meta.ReceivedAt = r.clock.Now()

	if len(r.buf.data) != r.buf.total {
		r.logger.Error("length problem",
			zap.Int("expected", r.buf.total),
			zap.Int("received", len(r.buf.data)))
		r.observer.FrameFailed(ReasonLengthMismatch)
		return wmbus.RawFrame{}, false
	}

	frame := wmbus.RawFrame{Data: r.buf.data, FrameMetadata: r.meta}
	r.buf = frameBuffer{}

	r.logger.Debug("frame received",
		zap.Int("bytes", len(frame.Data)),
		zap.String("mode", frame.Tag()),
		zap.Int("rssi", frame.RSSI),
		zap.Uint8("lqi", frame.LQI))
	r.observer.FrameReceived(frame)
	return frame, true
}

// fail abandons the current acquisition; the next Poll restarts reception
func (r *Receiver) fail(reason string) {
	if r.state > StateWaitForSync || reason == ReasonOverflow {
		r.logger.Debug("acquisition failed",
			zap.String("reason", reason),
			zap.Stringer("state", r.state),
			zap.Int("received", len(r.buf.data)))
		r.observer.FrameFailed(reason)
	}
	r.state = StateInit
}
