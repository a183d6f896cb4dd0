package receiver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/herlein/gowmbus/pkg/cc1101"
	"github.com/herlein/gowmbus/pkg/wmbus"
)

const (
	// DefaultQueueSize is the number of completed frames that may wait for
	// the dispatcher
	DefaultQueueSize = 3

	// PollInterval is the polling period while a frame is being received
	PollInterval = 500 * time.Microsecond

	// syncWait bounds one wait for the sync word edge so the radio state is
	// still checked regularly
	syncWait = 100 * time.Millisecond
)

// NewQueue returns a frame queue for Run. A size below one selects
// DefaultQueueSize.
func NewQueue(size int) chan wmbus.RawFrame {
	if size < 1 {
		size = DefaultQueueSize
	}
	return make(chan wmbus.RawFrame, size)
}

// Run receives frames until ctx is cancelled and sends them to out without
// blocking. When out is full the new frame is dropped. Run closes out and
// idles the radio before returning.
func (r *Receiver) Run(ctx context.Context, out chan<- wmbus.RawFrame) error {
	defer close(out)
	defer r.chip.Strobe(cc1101.StrobeSIDLE)

	waiter, _ := r.chip.Bus().(cc1101.EdgeWaiter)

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	r.logger.Info("receiver started",
		zap.Bool("edge_wait", waiter != nil),
		zap.Int("queue", cap(out)))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("receiver stopped")
			return ctx.Err()
		case <-ticker.C:
		}

		if r.state == StateWaitForSync && waiter != nil {
			waiter.WaitForSync(syncWait)
		}

		frame, ok := r.Poll()
		if err := r.chip.Err(); err != nil {
			r.logger.Warn("bus error", zap.Error(err))
		}
		if !ok {
			continue
		}

		r.enqueue(out, frame)
	}
}

// enqueue hands a frame to out, dropping it when out is full
func (r *Receiver) enqueue(out chan<- wmbus.RawFrame, frame wmbus.RawFrame) bool {
	select {
	case out <- frame:
		return true
	default:
		r.logger.Warn("frame queue full, dropping frame",
			zap.String("mode", frame.Tag()),
			zap.Int("bytes", len(frame.Data)))
		r.observer.FrameDropped()
		return false
	}
}
