// Package meters holds the meter drivers and the catalog the dispatcher uses
// to detect, look up and instantiate them.
//
// Drivers register themselves from init functions. Every driver except the
// unknown sentinel decodes the standard DIF/VIF data records of the
// application layer, decrypting security mode 5 payloads with the meter key.
package meters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/herlein/gowmbus/pkg/dispatch"
	"github.com/herlein/gowmbus/pkg/wmbus"
)

// UnknownDriver is the name of the driver that accepts a meter without
// decoding any value
const UnknownDriver = "unknown"

// Detection is a manufacturer, device type and version triple that
// identifies a meter model
type Detection struct {
	Manufacturer string
	DeviceType   byte
	Version      byte
}

// Matches reports whether addr belongs to the detected model
func (d Detection) Matches(addr wmbus.Address) bool {
	return addr.ManufacturerCode() == d.Manufacturer &&
		addr.DeviceType == d.DeviceType &&
		addr.Version == d.Version
}

// Driver describes a meter driver
type Driver struct {
	Name      string
	LinkModes wmbus.LinkModes
	Detect    []Detection
	// Records enables DIF/VIF decoding of the application payload
	Records bool
}

// Info returns the dispatcher view of the driver
func (d Driver) Info() dispatch.DriverInfo {
	return dispatch.DriverInfo{Name: d.Name, LinkModes: d.LinkModes}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Driver{}
)

// Register makes a driver available by name. Registering a name twice panics.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if d.Name == "" {
		panic("meters: driver without name")
	}
	if _, dup := registry[d.Name]; dup {
		panic("meters: Register called twice for driver " + d.Name)
	}
	registry[d.Name] = d
}

// Catalog implements dispatch.Catalog over the registered drivers
type Catalog struct {
	drivers map[string]Driver
	names   []string
}

// NewCatalog snapshots the registered drivers
func NewCatalog() *Catalog {
	registryMu.RLock()
	defer registryMu.RUnlock()

	c := &Catalog{drivers: make(map[string]Driver, len(registry))}
	for name, d := range registry {
		c.drivers[name] = d
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

// Names returns the driver names in sorted order
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// PickDriver returns the first driver, in name order, whose detection
// matches the meter address of t. The zero DriverInfo is returned when no
// driver matches.
func (c *Catalog) PickDriver(t *wmbus.Telegram) dispatch.DriverInfo {
	addr, err := t.MeterAddress()
	if err != nil {
		return dispatch.DriverInfo{}
	}
	for _, name := range c.names {
		d := c.drivers[name]
		for _, det := range d.Detect {
			if det.Matches(addr) {
				return d.Info()
			}
		}
	}
	return dispatch.DriverInfo{}
}

// LookupDriver returns a driver by name
func (c *Catalog) LookupDriver(name string) (dispatch.DriverInfo, bool) {
	d, ok := c.drivers[name]
	if !ok {
		return dispatch.DriverInfo{}, false
	}
	return d.Info(), true
}

// CreateMeter instantiates a meter for the named driver
func (c *Catalog) CreateMeter(info dispatch.MeterInfo) (dispatch.Meter, error) {
	d, ok := c.drivers[info.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, info.Driver)
	}
	return newMeter(d, info), nil
}
