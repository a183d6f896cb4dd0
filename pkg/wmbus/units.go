package wmbus

import (
	"math"
	"strings"
)

// LinkMode is a wM-Bus link mode a driver understands
type LinkMode uint8

const (
	LinkModeT1 LinkMode = 1 << iota
	LinkModeC1
)

// LinkModes is a set of link modes. The empty set means the driver did not
// declare any.
type LinkModes uint8

// NewLinkModes returns the set holding modes
func NewLinkModes(modes ...LinkMode) LinkModes {
	var s LinkModes
	for _, m := range modes {
		s |= LinkModes(m)
	}
	return s
}

// Has reports whether m is in the set
func (s LinkModes) Has(m LinkMode) bool {
	return s&LinkModes(m) != 0
}

// Empty reports whether the set holds no mode
func (s LinkModes) Empty() bool {
	return s == 0
}

// Supports reports whether a frame received in mode can be handled
func (s LinkModes) Supports(mode Mode) bool {
	switch mode {
	case ModeT:
		return s.Has(LinkModeT1)
	case ModeC:
		return s.Has(LinkModeC1)
	}
	return false
}

func (s LinkModes) String() string {
	var names []string
	if s.Has(LinkModeT1) {
		names = append(names, "T1")
	}
	if s.Has(LinkModeC1) {
		names = append(names, "C1")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Quantity is the physical quantity a unit measures
type Quantity uint8

const (
	QuantityNone Quantity = iota
	QuantityEnergy
	QuantityVolume
	QuantityPower
	QuantityFlow
	QuantityTemperature
	QuantityTime
	QuantityVoltage
	QuantityCurrent
	QuantityRelative
	QuantityCounter
)

// Unit is a measurement unit a numeric meter field can be requested in
type Unit uint8

const (
	UnitUnknown Unit = iota
	UnitKWH
	UnitMWH
	UnitWH
	UnitGJ
	UnitMJ
	UnitM3
	UnitL
	UnitKW
	UnitW
	UnitM3H
	UnitLH
	UnitC
	UnitK
	UnitF
	UnitHour
	UnitDay
	UnitSecond
	UnitV
	UnitA
	UnitPercent
	UnitDBM
	UnitCounter
	UnitHCA
)

type unitInfo struct {
	name     string
	quantity Quantity
	// value in the quantity base unit = value*scale + offset
	scale  float64
	offset float64
}

var units = map[Unit]unitInfo{
	UnitKWH:     {"kwh", QuantityEnergy, 1, 0},
	UnitMWH:     {"mwh", QuantityEnergy, 1000, 0},
	UnitWH:      {"wh", QuantityEnergy, 0.001, 0},
	UnitGJ:      {"gj", QuantityEnergy, 1e9 / 3.6e6, 0},
	UnitMJ:      {"mj", QuantityEnergy, 1e6 / 3.6e6, 0},
	UnitM3:      {"m3", QuantityVolume, 1, 0},
	UnitL:       {"l", QuantityVolume, 0.001, 0},
	UnitKW:      {"kw", QuantityPower, 1, 0},
	UnitW:       {"w", QuantityPower, 0.001, 0},
	UnitM3H:     {"m3h", QuantityFlow, 1, 0},
	UnitLH:      {"lh", QuantityFlow, 0.001, 0},
	UnitC:       {"c", QuantityTemperature, 1, 0},
	UnitK:       {"k", QuantityTemperature, 1, -273.15},
	UnitF:       {"f", QuantityTemperature, 5.0 / 9.0, -32 * 5.0 / 9.0},
	UnitHour:    {"h", QuantityTime, 1, 0},
	UnitDay:     {"d", QuantityTime, 24, 0},
	UnitSecond:  {"s", QuantityTime, 1.0 / 3600, 0},
	UnitV:       {"v", QuantityVoltage, 1, 0},
	UnitA:       {"a", QuantityCurrent, 1, 0},
	UnitPercent: {"%", QuantityRelative, 1, 0},
	UnitDBM:     {"dbm", QuantityNone, 1, 0},
	UnitCounter: {"counter", QuantityCounter, 1, 0},
	UnitHCA:     {"hca", QuantityCounter, 1, 0},
}

var unitAliases = map[string]Unit{
	"m³":     UnitM3,
	"m³/h":   UnitM3H,
	"m3/h":   UnitM3H,
	"l/h":    UnitLH,
	"°c":     UnitC,
	"°f":     UnitF,
	"kelvin": UnitK,
	"hours":  UnitHour,
	"days":   UnitDay,
	"pct":    UnitPercent,
}

// ParseUnit maps a unit name such as "kWh", "m³" or "°C" to a Unit. Unknown
// names yield UnitUnknown.
func ParseUnit(name string) Unit {
	name = strings.ToLower(strings.TrimSpace(name))
	if u, ok := unitAliases[name]; ok {
		return u
	}
	for u, info := range units {
		if info.name == name {
			return u
		}
	}
	return UnitUnknown
}

func (u Unit) String() string {
	if info, ok := units[u]; ok {
		return info.name
	}
	return "unknown"
}

// Quantity returns what the unit measures
func (u Unit) Quantity() Quantity {
	return units[u].quantity
}

// Convert converts v from one unit to another of the same quantity. It
// returns NaN when the units measure different quantities.
func Convert(v float64, from, to Unit) float64 {
	if from == to {
		return v
	}
	f, okFrom := units[from]
	t, okTo := units[to]
	if !okFrom || !okTo || f.quantity != t.quantity || f.quantity == QuantityNone {
		return math.NaN()
	}
	base := v*f.scale + f.offset
	return (base - t.offset) / t.scale
}
