package receiver

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/cc1101/cc1101test"
	"github.com/herlein/gowmbus/pkg/wmbus"
)

type recordingObserver struct {
	received int
	failed   []string
	dropped  int
}

func (o *recordingObserver) FrameReceived(wmbus.RawFrame) { o.received++ }
func (o *recordingObserver) FrameFailed(reason string)   { o.failed = append(o.failed, reason) }
func (o *recordingObserver) FrameDropped()               { o.dropped++ }

type fixture struct {
	bus   *cc1101test.Bus
	clock *clockwork.FakeClock
	obs   *recordingObserver
	rx    *Receiver
}

// newFixture returns a receiver that has already entered RX
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		bus:   cc1101test.NewBus(),
		clock: clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		obs:   &recordingObserver{},
	}
	opts.Clock = f.clock
	opts.Observer = f.obs
	opts.Logger = zaptest.NewLogger(t)
	f.rx = New(cc1101.New(f.bus, nil), opts)

	_, ok := f.rx.Poll()
	require.False(t, ok)
	require.Equal(t, StateWaitForSync, f.rx.State())
	require.Equal(t, cc1101.StateRX, f.bus.State())
	return f
}

// poll runs one Poll and checks the state it ends in
func (f *fixture) poll(t *testing.T, want State) {
	t.Helper()
	_, ok := f.rx.Poll()
	require.False(t, ok)
	require.Equal(t, want, f.rx.State())
}

func linkLayer(l byte) []byte {
	link := make([]byte, int(l)+1)
	link[0] = l
	for i := 1; i < len(link); i++ {
		link[i] = byte(i * 7)
	}
	return link
}

func modeTFrame(l byte) []byte {
	return wmbus.Encode3of6(wmbus.AppendFormatA(linkLayer(l)))
}

func modeCAFrame(l byte) []byte {
	return append([]byte{wmbus.ModeCPreamble, wmbus.BlockAPreamble}, wmbus.AppendFormatA(linkLayer(l))...)
}

func modeCBFrame(l byte) []byte {
	frame := []byte{wmbus.ModeCPreamble, wmbus.BlockBPreamble}
	return append(frame, linkLayer(l)...)
}

func TestStartSequence(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Equal(t, []cc1101.Strobe{
		cc1101.StrobeSIDLE, cc1101.StrobeSFTX, cc1101.StrobeSFRX, cc1101.StrobeSRX,
	}, f.bus.Strobes())
	assert.Equal(t, byte(cc1101.FIFOThreshold4Bytes), f.bus.Register(cc1101.RegFIFOTHR))
	assert.Equal(t, byte(cc1101.PacketLengthInfinite), f.bus.Register(cc1101.RegPKTCTRL0))
}

func TestModeTFrame(t *testing.T) {
	f := newFixture(t, Options{})
	f.bus.RSSIRaw = 100
	f.bus.LQIRaw = 0x85

	data := modeTFrame(0x0A)
	require.Len(t, data, 23)

	f.bus.SetSync(true)
	f.bus.Receive(data...)
	f.poll(t, StateWaitForData)
	f.poll(t, StateReadData)

	assert.Equal(t, byte(23), f.bus.Register(cc1101.RegPKTLEN))
	assert.Equal(t, byte(cc1101.PacketLengthFixed), f.bus.Register(cc1101.RegPKTCTRL0))
	assert.Equal(t, byte(cc1101.FIFOThreshold44Bytes), f.bus.Register(cc1101.RegFIFOTHR))

	f.bus.SetSync(false)
	frame, ok := f.rx.Poll()
	require.True(t, ok)
	assert.Equal(t, StateInit, f.rx.State())

	assert.Equal(t, data, frame.Data)
	assert.Equal(t, wmbus.ModeT, frame.Mode)
	assert.Equal(t, wmbus.BlockA, frame.Block)
	assert.Equal(t, byte(0x0A), frame.LengthField)
	assert.Equal(t, -24, frame.RSSI)
	assert.Equal(t, byte(0x05), frame.LQI)
	assert.Equal(t, f.clock.Now(), frame.ReceivedAt)
	assert.Equal(t, 1, f.obs.received)

	link, err := frame.LinkLayer()
	require.NoError(t, err)
	assert.Equal(t, linkLayer(0x0A), link)
}

func TestModeCBlockAFrame(t *testing.T) {
	f := newFixture(t, Options{})

	data := modeCAFrame(0x2E)
	require.Len(t, data, 2+wmbus.PacketSize(0x2E))

	f.bus.SetSync(true)
	f.bus.Receive(data[:4]...)
	f.poll(t, StateWaitForData)
	f.poll(t, StateReadData)
	assert.Equal(t, 1, f.bus.FIFOLen())

	f.bus.Receive(data[4:]...)
	f.poll(t, StateReadData)
	assert.Equal(t, 1, f.bus.FIFOLen(), "one byte stays in the FIFO while receiving")

	f.bus.SetSync(false)
	frame, ok := f.rx.Poll()
	require.True(t, ok)
	assert.Equal(t, data, frame.Data)
	assert.Equal(t, "C1 A", frame.Tag())
	assert.Equal(t, 0, f.bus.FIFOLen())
}

func TestModeCBlockBFrame(t *testing.T) {
	f := newFixture(t, Options{})

	data := modeCBFrame(0x20)
	f.bus.SetSync(true)
	f.bus.Receive(data...)
	f.poll(t, StateWaitForData)
	f.poll(t, StateReadData)
	assert.Equal(t, byte(3+0x20), f.bus.Register(cc1101.RegPKTLEN))

	f.bus.SetSync(false)
	frame, ok := f.rx.Poll()
	require.True(t, ok)
	assert.Len(t, frame.Data, 3+0x20)
	assert.Equal(t, wmbus.BlockB, frame.Block)
}

func TestLongFrameSwitchesToFixedLength(t *testing.T) {
	f := newFixture(t, Options{})

	data := modeCAFrame(0xFF)
	require.Len(t, data, 292)

	f.bus.SetSync(true)
	f.bus.Receive(data[:4]...)
	f.poll(t, StateWaitForData)
	f.poll(t, StateReadData)
	assert.Equal(t, byte(292%256), f.bus.Register(cc1101.RegPKTLEN))
	assert.Equal(t, byte(cc1101.PacketLengthInfinite), f.bus.Register(cc1101.RegPKTCTRL0),
		"frames of 256 bytes and more start in infinite mode")

	rest := data[4:]
	for len(rest) > 0 {
		n := min(50, len(rest))
		f.bus.Receive(rest[:n]...)
		rest = rest[n:]
		f.poll(t, StateReadData)
	}
	assert.Equal(t, byte(cc1101.PacketLengthFixed), f.bus.Register(cc1101.RegPKTCTRL0))

	f.bus.SetSync(false)
	frame, ok := f.rx.Poll()
	require.True(t, ok)
	assert.Equal(t, data, frame.Data)
}

func TestUnknownPreamble(t *testing.T) {
	headers := map[string][]byte{
		"mode C unknown block": {wmbus.ModeCPreamble, 0x00, 0x10, 0x00},
		"invalid 3 of 6":       {0x00, 0x00, 0x00, 0x00},
	}
	enc := modeTFrame(0x0A)
	// the L-field decodes, the symbols in the third byte do not
	headers["invalid third byte"] = []byte{enc[0], enc[1] & 0xF0, 0x00, 0x00}
	_, err := wmbus.Decode3of6(enc[:2])
	require.NoError(t, err)

	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.bus.SetSync(true)
			f.bus.Receive(header...)
			f.poll(t, StateWaitForData)
			f.poll(t, StateInit)
			assert.Equal(t, []string{ReasonUnknownPreamble}, f.obs.failed)
			assert.Zero(t, f.obs.received)
		})
	}
}

func TestOverflowRestartsReception(t *testing.T) {
	f := newFixture(t, Options{})

	data := modeCAFrame(0xFF)
	f.bus.SetSync(true)
	f.bus.Receive(data[:4]...)
	f.poll(t, StateWaitForData)
	f.poll(t, StateReadData)

	f.bus.Receive(data[4:80]...)
	require.Equal(t, cc1101.StateRXFIFO_OVF, f.bus.State())
	f.poll(t, StateInit)
	assert.Equal(t, []string{ReasonOverflow}, f.obs.failed)

	f.bus.ClearLog()
	f.bus.SetSync(false)
	f.poll(t, StateWaitForSync)
	assert.Contains(t, f.bus.Strobes(), cc1101.StrobeSIDLE)
	assert.Contains(t, f.bus.Strobes(), cc1101.StrobeSFRX)
	assert.Equal(t, cc1101.StateRX, f.bus.State())
	assert.Zero(t, f.bus.FIFOLen())
}

func TestTimeout(t *testing.T) {
	f := newFixture(t, Options{})

	// waiting for sync restarts reception every max wait, without a failure
	f.bus.ClearLog()
	f.clock.Advance(DefaultExtraTime + time.Millisecond)
	f.poll(t, StateInit)
	f.poll(t, StateWaitForSync)
	assert.Contains(t, f.bus.Strobes(), cc1101.StrobeSRX)
	assert.Empty(t, f.obs.failed)

	f.clock.Advance(10 * time.Second)
	f.poll(t, StateInit)
	f.poll(t, StateWaitForSync)

	f.bus.SetSync(true)
	f.poll(t, StateWaitForData)

	f.clock.Advance(DefaultExtraTime)
	f.poll(t, StateWaitForData)

	f.clock.Advance(time.Millisecond)
	f.poll(t, StateInit)
	assert.Equal(t, []string{ReasonTimeout}, f.obs.failed)
}

func TestTimeoutGrowsWithData(t *testing.T) {
	f := newFixture(t, Options{ExtraTime: 10 * time.Millisecond})

	data := modeCAFrame(0x2E)
	f.bus.SetSync(true)
	f.bus.Receive(data[:4]...)
	f.poll(t, StateWaitForData)
	f.poll(t, StateReadData)

	f.clock.Advance(15 * time.Millisecond)
	f.poll(t, StateReadData)

	f.clock.Advance(10 * time.Millisecond)
	f.poll(t, StateInit)
	assert.Equal(t, []string{ReasonTimeout}, f.obs.failed)
}

func TestLengthMismatchDropsFrame(t *testing.T) {
	f := newFixture(t, Options{})

	data := modeCBFrame(0x20)
	f.bus.SetSync(true)
	f.bus.Receive(data[:20]...)
	f.poll(t, StateWaitForData)
	f.poll(t, StateReadData)

	f.bus.SetSync(false)
	f.poll(t, StateInit)
	assert.Equal(t, []string{ReasonLengthMismatch}, f.obs.failed)
	assert.Zero(t, f.obs.received)
}

func TestTailArrivingWithSyncDrop(t *testing.T) {
	f := newFixture(t, Options{})

	data := modeCAFrame(0x0A)
	f.bus.SetSync(true)
	f.bus.Receive(data[:len(data)-2]...)
	f.poll(t, StateWaitForData)
	f.poll(t, StateReadData)

	f.bus.ReceiveTail(data[len(data)-2:]...)
	f.bus.SetSync(false)
	frame, ok := f.rx.Poll()
	require.True(t, ok)
	assert.Equal(t, data, frame.Data)
	assert.Empty(t, f.obs.failed)
}

func TestRadioLeftRX(t *testing.T) {
	f := newFixture(t, Options{})

	f.bus.SetState(cc1101.StateIDLE)
	f.poll(t, StateInit)
	assert.Empty(t, f.obs.failed, "no acquisition was in progress")

	f.poll(t, StateWaitForSync)
	assert.Equal(t, cc1101.StateRX, f.bus.State())
}

func TestSyncModeCompletesInOnePoll(t *testing.T) {
	f := newFixture(t, Options{SyncMode: true})
	f.bus.EndOfPacketOnRead = true

	data := modeTFrame(0x0A)
	f.bus.Receive(data...)
	f.bus.SetSync(true)

	frame, ok := f.rx.Poll()
	require.True(t, ok)
	assert.Equal(t, data, frame.Data)
	assert.Equal(t, StateInit, f.rx.State())
}

func TestQueueDropsNewest(t *testing.T) {
	f := newFixture(t, Options{})

	q := NewQueue(0)
	require.Equal(t, DefaultQueueSize, cap(q))

	for i := 0; i < DefaultQueueSize; i++ {
		assert.True(t, f.rx.enqueue(q, wmbus.RawFrame{Data: []byte{byte(i)}}))
	}
	assert.False(t, f.rx.enqueue(q, wmbus.RawFrame{Data: []byte{0xFF}}))
	assert.Equal(t, 1, f.obs.dropped)

	for i := 0; i < DefaultQueueSize; i++ {
		assert.Equal(t, []byte{byte(i)}, (<-q).Data)
	}
}

func TestRun(t *testing.T) {
	bus := cc1101test.NewBus()
	bus.EndOfPacketOnRead = true
	rx := New(cc1101.New(bus, nil), Options{Logger: zaptest.NewLogger(t)})
	rx.Poll()
	require.Equal(t, StateWaitForSync, rx.State())

	data := modeTFrame(0x0A)
	bus.Receive(data...)
	bus.SetSync(true)

	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue(DefaultQueueSize)
	done := make(chan error, 1)
	go func() { done <- rx.Run(ctx, q) }()

	select {
	case frame := <-q:
		assert.Equal(t, data, frame.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	_, open := <-q
	assert.False(t, open, "Run closes the queue")
	assert.Equal(t, cc1101.StateIDLE, bus.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "WAIT_FOR_SYNC", StateWaitForSync.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}
