package ch341

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoDevice indicates no attached CH341A matches the selector
var ErrNoDevice = errors.New("no matching CH341A found")

type selectorKind int

const (
	selectFirst selectorKind = iota
	selectIndex
	selectBusAddr
	selectSerial
)

// Selector identifies one CH341A. Supported formats:
//   - ""         : first device
//   - "serial"   : serial number
//   - "bus:addr" : USB bus and address, e.g. "1:10"
//   - "#N"       : Nth device, 0-indexed
type Selector struct {
	kind    selectorKind
	index   int
	bus     int
	address int
	serial  string
}

// ParseSelector parses a device selector
func ParseSelector(s string) (Selector, error) {
	switch {
	case s == "":
		return Selector{kind: selectFirst}, nil
	case strings.HasPrefix(s, "#"):
		index, err := strconv.Atoi(s[1:])
		if err != nil || index < 0 {
			return Selector{}, fmt.Errorf("invalid device index: %s", s)
		}
		return Selector{kind: selectIndex, index: index}, nil
	case strings.Contains(s, ":"):
		parts := strings.SplitN(s, ":", 2)
		bus, err := strconv.Atoi(parts[0])
		if err != nil {
			return Selector{}, fmt.Errorf("invalid bus number: %s", parts[0])
		}
		addr, err := strconv.Atoi(parts[1])
		if err != nil {
			return Selector{}, fmt.Errorf("invalid address number: %s", parts[1])
		}
		return Selector{kind: selectBusAddr, bus: bus, address: addr}, nil
	}
	return Selector{kind: selectSerial, serial: s}, nil
}

// Pick returns the index of the selected device in infos
func (s Selector) Pick(infos []Info) (int, error) {
	if len(infos) == 0 {
		return -1, ErrNoDevice
	}
	switch s.kind {
	case selectIndex:
		if s.index >= len(infos) {
			return -1, fmt.Errorf("%w: index %d out of range (found %d devices)", ErrNoDevice, s.index, len(infos))
		}
		return s.index, nil
	case selectBusAddr:
		for i, info := range infos {
			if info.Bus == s.bus && info.Address == s.address {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w at bus %d address %d", ErrNoDevice, s.bus, s.address)
	case selectSerial:
		match := -1
		for i, info := range infos {
			if info.Serial != s.serial {
				continue
			}
			if match >= 0 {
				return -1, fmt.Errorf("multiple devices found with serial %s; use bus:addr or #N", s.serial)
			}
			match = i
		}
		if match < 0 {
			return -1, fmt.Errorf("%w with serial %s", ErrNoDevice, s.serial)
		}
		return match, nil
	}
	return 0, nil
}

// SelectorUsage describes the selector formats for command line flags
func SelectorUsage() string {
	return `Device selector. Formats:
    ""        - Use first available device
    "serial"  - Match by serial number
    "bus:addr"- Match by USB location (e.g., "1:10")
    "#N"      - Use Nth device, 0-indexed (e.g., "#0", "#1")`
}
