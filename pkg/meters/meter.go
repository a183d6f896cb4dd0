package meters

import (
	"fmt"
	"math"
	"strings"

	"github.com/herlein/gowmbus/pkg/dispatch"
	"github.com/herlein/gowmbus/pkg/wmbus"
)

type measurement struct {
	value float64
	unit  wmbus.Unit
}

// meter holds the values decoded from the last accepted telegram
type meter struct {
	driver  Driver
	info    dispatch.MeterInfo
	numbers map[string]measurement
	texts   map[string]string
}

func newMeter(d Driver, info dispatch.MeterInfo) *meter {
	return &meter{
		driver:  d,
		info:    info,
		numbers: map[string]measurement{},
		texts:   map[string]string{},
	}
}

// status bits of the transport layer header
var statusFlags = []struct {
	mask byte
	name string
}{
	{0x80, "EMPTY_PIPE"},
	{0x40, "REVERSE_FLOW"},
	{0x20, "FREEZING"},
	{0x10, "TEMPERATURE_ALARM"},
	{0x08, "PERMANENT_ERROR"},
	{0x04, "POWER_LOW"},
	{0x02, "APPLICATION_ERROR"},
}

func statusText(status byte) string {
	var names []string
	for _, f := range statusFlags {
		if status&f.mask != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "OK"
	}
	return strings.Join(names, " ")
}

var deviceTypes = map[byte]string{
	0x02: "electricity",
	0x03: "gas",
	0x04: "heat",
	0x06: "warm water",
	0x07: "water",
	0x08: "heat cost allocator",
	0x0C: "heat",
	0x15: "hot water",
	0x16: "cold water",
	0x1A: "smoke detector",
	0x37: "radio converter",
}

// HandleTelegram accepts t when any of its addresses carries the meter ID
func (m *meter) HandleTelegram(_ wmbus.RawFrame, t *wmbus.Telegram) (bool, []wmbus.Address, error) {
	var addr wmbus.Address
	match := false
	for _, a := range t.Addresses {
		if a.ID == m.info.ID {
			addr, match = a, true
		}
	}
	if !match {
		return false, t.Addresses, nil
	}

	m.texts["id"] = addr.ID
	m.texts["manufacturer"] = addr.ManufacturerCode()
	if name, ok := deviceTypes[addr.DeviceType]; ok {
		m.texts["media"] = name
	} else {
		m.texts["media"] = fmt.Sprintf("0x%02x", addr.DeviceType)
	}

	if !m.driver.Records {
		return true, t.Addresses, nil
	}
	switch t.CI {
	case wmbus.CIShortTPL, wmbus.CILongTPL:
		m.texts["status"] = statusText(t.Status)
		m.numbers["access_number"] = measurement{float64(t.AccessNumber), wmbus.UnitCounter}
	case wmbus.CINoTPL:
	default:
		return true, t.Addresses, fmt.Errorf("%w: CI 0x%02X", ErrUnsupportedRecord, t.CI)
	}

	payload, err := DecryptPayload(t, m.info.Key)
	if err != nil {
		return true, t.Addresses, err
	}
	records, err := ParseRecords(payload)
	if err != nil {
		return true, t.Addresses, err
	}
	for _, r := range records {
		switch {
		case r.Name == "":
		case r.IsText():
			m.texts[r.Name] = r.Text
		default:
			m.numbers[r.Name] = measurement{r.Value, r.Unit}
		}
	}
	return true, t.Addresses, nil
}

// NumericValue converts a decoded field to unit, NaN when the field is
// absent or the units measure different quantities
func (m *meter) NumericValue(field string, unit wmbus.Unit) float64 {
	v, ok := m.numbers[field]
	if !ok {
		return math.NaN()
	}
	return wmbus.Convert(v.value, v.unit, unit)
}

func (m *meter) HasStringValue(field string) bool {
	_, ok := m.texts[field]
	return ok
}

func (m *meter) StringValue(field string) string {
	return m.texts[field]
}
