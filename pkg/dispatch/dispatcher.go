// Package dispatch routes received wM-Bus frames to meter drivers and
// publishes the decoded field values.
//
// A frame is decoded into a telegram, matched against the registered meters
// by the ID of its first address, handed to the effective driver and, when
// the driver accepts the telegram, every configured field is published to
// the sinks.
package dispatch

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/herlein/gowmbus/pkg/wmbus"
)

// DriverInfo describes a meter driver
type DriverInfo struct {
	Name      string
	LinkModes wmbus.LinkModes
}

// MeterInfo is what a catalog needs to build a meter
type MeterInfo struct {
	Driver string
	ID     string
	Key    []byte
}

// Meter decodes telegrams of one meter
type Meter interface {
	// HandleTelegram decodes t. match reports whether the telegram carries
	// the meter address.
	HandleTelegram(frame wmbus.RawFrame, t *wmbus.Telegram) (match bool, addrs []wmbus.Address, err error)
	// NumericValue returns a decoded field in unit, NaN when absent
	NumericValue(field string, unit wmbus.Unit) float64
	HasStringValue(field string) bool
	StringValue(field string) string
}

// Catalog knows the meter drivers
type Catalog interface {
	// PickDriver detects the driver for a telegram. The zero DriverInfo
	// means no driver was found.
	PickDriver(t *wmbus.Telegram) DriverInfo
	LookupDriver(name string) (DriverInfo, bool)
	CreateMeter(info MeterInfo) (Meter, error)
}

// Sink publishes field values
type Sink interface {
	Name() string
	PublishNumeric(ctx context.Context, meterID, field, unit string, value float64) error
	PublishText(ctx context.Context, meterID, field, value string) error
}

// Blinker signals telegram activity
type Blinker interface {
	Blink()
}

// Observer is notified about dispatch outcomes
type Observer interface {
	TelegramDispatched(outcome string)
	PublishFailed(sink string)
}

// Dispatch outcomes reported to the Observer
const (
	OutcomeBadFrame     = "bad_frame"
	OutcomeUnregistered = "unregistered"
	OutcomeLogged       = "logged"
	OutcomeNoDriver     = "no_driver"
	OutcomeLinkMode     = "link_mode"
	OutcomeMeterError   = "meter_error"
	OutcomeNotForMe     = "not_for_me"
	OutcomePublished    = "published"
)

// RSSIField is the numeric field name that publishes the frame RSSI
const RSSIField = "rssi"

type nopObserver struct{}

func (nopObserver) TelegramDispatched(string) {}
func (nopObserver) PublishFailed(string)      {}

// Options configures a Dispatcher
type Options struct {
	// LogAll logs telegrams from meters that are not registered
	LogAll   bool
	Blinker  Blinker
	Observer Observer
	Tracker  *Tracker
	Logger   *zap.Logger
}

// Dispatcher owns the registrations. Dispatch is not safe for concurrent use.
type Dispatcher struct {
	catalog  Catalog
	sinks    []Sink
	regs     map[uint32]*Registration
	logAll   bool
	blinker  Blinker
	observer Observer
	tracker  *Tracker
	logger   *zap.Logger
}

// New creates a dispatcher. A meter registered twice keeps its last
// registration.
func New(catalog Catalog, sinks []Sink, regs []Registration, opts Options) *Dispatcher {
	d := &Dispatcher{
		catalog:  catalog,
		sinks:    sinks,
		regs:     make(map[uint32]*Registration, len(regs)),
		logAll:   opts.LogAll,
		blinker:  opts.Blinker,
		observer: opts.Observer,
		tracker:  opts.Tracker,
		logger:   opts.Logger,
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	d.logger = d.logger.Named("dispatch")
	if d.observer == nil {
		d.observer = nopObserver{}
	}
	for i := range regs {
		r := regs[i]
		d.regs[r.MeterID] = &r
	}
	return d
}

// Registration returns the registration of a meter
func (d *Dispatcher) Registration(meterID uint32) (Registration, bool) {
	r, ok := d.regs[meterID]
	if !ok {
		return Registration{}, false
	}
	return *r, true
}

// Run dispatches frames from in until ctx is cancelled or in is closed
func (d *Dispatcher) Run(ctx context.Context, in <-chan wmbus.RawFrame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			// Outcomes are logged and counted inside Dispatch
			_ = d.Dispatch(ctx, frame)
		}
	}
}

// Dispatch handles one frame. Frames from meters that are not registered
// return nil. A frame that reaches a meter but cannot be delivered returns
// ErrNoDriver, ErrLinkMode, ErrNotForMe or a decode error.
func (d *Dispatcher) Dispatch(ctx context.Context, frame wmbus.RawFrame) error {
	link, err := frame.LinkLayer()
	if err != nil {
		d.logger.Warn("cannot decode frame",
			zap.String("mode", frame.Tag()),
			zap.String("frame", hex.EncodeToString(frame.Data)),
			zap.Error(err))
		d.observer.TelegramDispatched(OutcomeBadFrame)
		return err
	}
	telegram := hex.EncodeToString(link)

	t, err := wmbus.ParseHeader(link)
	if err == nil && len(t.Addresses) == 0 {
		err = wmbus.ErrNoAddress
	}
	if err != nil {
		d.logger.Error("cannot parse telegram header", zap.String("telegram", telegram), zap.Error(err))
		d.observer.TelegramDispatched(OutcomeBadFrame)
		return err
	}

	addr := t.Addresses[0]
	meterID, err := addr.IDNumber()
	if err != nil {
		d.logger.Error("invalid meter id", zap.String("telegram", telegram), zap.Error(err))
		d.observer.TelegramDispatched(OutcomeBadFrame)
		return err
	}

	reg, registered := d.regs[meterID]
	if !registered && !d.logAll {
		d.logger.Debug("meter not registered", zap.String("id", addr.ID))
		d.observer.TelegramDispatched(OutcomeUnregistered)
		return nil
	}

	detected := d.catalog.PickDriver(t)
	used := detected
	if registered && reg.Driver != "" {
		if info, ok := d.catalog.LookupDriver(reg.Driver); ok {
			used = info
			d.logger.Info("using selected driver",
				zap.String("driver", reg.Driver),
				zap.String("detected", detected.Name))
		} else {
			d.logger.Warn("selected driver does not exist",
				zap.String("driver", reg.Driver),
				zap.String("using", detected.Name))
		}
	}

	if d.blinker != nil {
		d.blinker.Blink()
	}
	d.logger.Info("telegram",
		zap.String("driver", driverName(used.Name)),
		zap.String("id", addr.ID),
		zap.String("manufacturer", addr.ManufacturerCode()),
		zap.Int("rssi", frame.RSSI),
		zap.String("mode", frame.Tag()),
		zap.String("telegram", telegram))
	if d.tracker != nil {
		d.tracker.Update(meterID, addr, used.Name, registered, frame)
	}

	if !registered {
		d.observer.TelegramDispatched(OutcomeLogged)
		return nil
	}

	supported := true
	if used.LinkModes.Empty() {
		d.logger.Warn("link modes not defined in driver, processing anyway",
			zap.String("driver", driverName(used.Name)))
	} else {
		supported = used.LinkModes.Supports(frame.Mode)
	}

	if used.Name == "" {
		d.logger.Warn("cannot find driver", zap.String("telegram", telegram))
		d.observer.TelegramDispatched(OutcomeNoDriver)
		return fmt.Errorf("%w: meter %s", ErrNoDriver, addr.ID)
	}
	if !supported {
		d.logger.Warn("link mode not supported by driver",
			zap.String("mode", frame.Mode.String()+"1"),
			zap.String("driver", used.Name),
			zap.Stringer("link_modes", used.LinkModes))
		d.observer.TelegramDispatched(OutcomeLinkMode)
		return fmt.Errorf("%w: %s1 with driver %s", ErrLinkMode, frame.Mode, used.Name)
	}

	meter, err := d.catalog.CreateMeter(MeterInfo{Driver: used.Name, ID: addr.ID, Key: reg.Key})
	if err != nil {
		d.logger.Error("cannot create meter", zap.String("driver", used.Name), zap.Error(err))
		d.observer.TelegramDispatched(OutcomeMeterError)
		return err
	}

	match, _, err := meter.HandleTelegram(frame, t)
	if err != nil {
		d.logger.Warn("meter cannot handle telegram",
			zap.String("driver", used.Name),
			zap.String("id", addr.ID),
			zap.Error(err))
		d.observer.TelegramDispatched(OutcomeMeterError)
		return err
	}
	if !match {
		d.logger.Error("not for me", zap.String("telegram", telegram))
		d.observer.TelegramDispatched(OutcomeNotForMe)
		return fmt.Errorf("%w: %s", ErrNotForMe, addr.ID)
	}

	d.publish(ctx, reg, meter, frame)
	d.observer.TelegramDispatched(OutcomePublished)
	return nil
}

// publish sends every registered field the meter can provide
func (d *Dispatcher) publish(ctx context.Context, reg *Registration, meter Meter, frame wmbus.RawFrame) {
	id := reg.ID()

	for _, f := range reg.Fields {
		var value float64
		switch {
		case f.Field == RSSIField:
			value = float64(frame.RSSI)
		case f.Unit == "":
			d.logger.Warn("fields without unit are not supported as numeric fields, use a text field",
				zap.String("field", f.Field))
			continue
		default:
			unit := wmbus.ParseUnit(f.Unit)
			if unit == wmbus.UnitUnknown {
				d.logger.Warn("unknown unit", zap.String("field", f.Field), zap.String("unit", f.Unit))
				continue
			}
			value = meter.NumericValue(f.Field, unit)
			if math.IsNaN(value) {
				d.logger.Warn("cannot get requested field",
					zap.String("field", f.Field),
					zap.String("unit", f.Unit))
				continue
			}
		}

		for _, s := range d.sinksFor(f.Sinks, f.Field) {
			if err := s.PublishNumeric(ctx, id, f.Field, f.Unit, value); err != nil {
				d.publishFailed(s, f.Field, err)
			}
		}
	}

	for _, f := range reg.TextFields {
		if !meter.HasStringValue(f.Field) {
			d.logger.Warn("cannot get requested field", zap.String("field", f.Field))
			continue
		}
		value := meter.StringValue(f.Field)
		for _, s := range d.sinksFor(f.Sinks, f.Field) {
			if err := s.PublishText(ctx, id, f.Field, value); err != nil {
				d.publishFailed(s, f.Field, err)
			}
		}
	}
}

// sinksFor returns each named sink once, or every sink when no name is
// given
func (d *Dispatcher) sinksFor(names []string, field string) []Sink {
	if len(names) == 0 {
		return d.sinks
	}
	var out []Sink
	for _, s := range d.sinks {
		if slices.Contains(names, s.Name()) {
			out = append(out, s)
		}
	}
	for _, name := range names {
		if !slices.ContainsFunc(d.sinks, func(s Sink) bool { return s.Name() == name }) {
			d.logger.Warn("no such sink", zap.String("sink", name), zap.String("field", field))
		}
	}
	return out
}

func (d *Dispatcher) publishFailed(s Sink, field string, err error) {
	d.logger.Error("publish failed",
		zap.String("sink", s.Name()),
		zap.String("field", field),
		zap.Error(err))
	d.observer.PublishFailed(s.Name())
}

func driverName(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}
