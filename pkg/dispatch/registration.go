package dispatch

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/herlein/gowmbus/pkg/config"
)

// NumericField publishes one numeric meter field in Unit to the named
// sinks. No sinks means every sink.
type NumericField struct {
	Field string
	Unit  string
	Sinks []string
}

// TextField publishes one text meter field
type TextField struct {
	Field string
	Sinks []string
}

// Registration is a meter the gateway listens for
type Registration struct {
	MeterID uint32
	// Driver overrides the detected driver when the catalog knows it
	Driver     string
	Key        []byte
	Fields     []NumericField
	TextFields []TextField
}

// ID returns the meter ID as 8 lowercase hex digits
func (r *Registration) ID() string {
	return fmt.Sprintf("%08x", r.MeterID)
}

// ParseKey decodes a hex key. Space, '#', '|' and '_' between byte pairs
// are ignored.
func ParseKey(s string) ([]byte, error) {
	var key []byte
	for i := 0; i < len(s); {
		switch s[i] {
		case ' ', '#', '|', '_':
			i++
			continue
		}
		if i+1 >= len(s) {
			return nil, fmt.Errorf("%w: dangling digit %q", ErrInvalidKey, s[i:])
		}
		b, err := strconv.ParseUint(s[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidKey, s[i:i+2], i)
		}
		key = append(key, byte(b))
		i += 2
	}
	return key, nil
}

// NewRegistration builds a registration from its configuration. Mappings
// of the same field (and unit) are merged into one with the union of their
// sinks, so each value reaches a sink at most once.
func NewRegistration(m config.MeterConfig) (Registration, error) {
	id, err := strconv.ParseUint(m.ID, 16, 32)
	if err != nil || len(m.ID) != 8 {
		return Registration{}, fmt.Errorf("%w: %q", ErrInvalidMeterID, m.ID)
	}
	key, err := ParseKey(m.Key)
	if err != nil {
		return Registration{}, fmt.Errorf("meter %s: %w", m.ID, err)
	}

	r := Registration{MeterID: uint32(id), Driver: m.Driver, Key: key}

	type fieldUnit struct{ field, unit string }
	index := make(map[fieldUnit]int)
	for _, f := range m.Fields {
		k := fieldUnit{f.Field, f.Unit}
		i, ok := index[k]
		if !ok {
			index[k] = len(r.Fields)
			r.Fields = append(r.Fields, NumericField{Field: f.Field, Unit: f.Unit, Sinks: sinkList(f.Sink)})
			continue
		}
		r.Fields[i].Sinks = mergeSinks(r.Fields[i].Sinks, f.Sink)
	}
	textIndex := make(map[string]int)
	for _, f := range m.TextFields {
		i, ok := textIndex[f.Field]
		if !ok {
			textIndex[f.Field] = len(r.TextFields)
			r.TextFields = append(r.TextFields, TextField{Field: f.Field, Sinks: sinkList(f.Sink)})
			continue
		}
		r.TextFields[i].Sinks = mergeSinks(r.TextFields[i].Sinks, f.Sink)
	}
	return r, nil
}

func sinkList(name string) []string {
	if name == "" {
		return nil
	}
	return []string{name}
}

// mergeSinks adds name to sinks. An empty list already means every sink and
// an empty name widens the list to every sink.
func mergeSinks(sinks []string, name string) []string {
	if len(sinks) == 0 || name == "" {
		return nil
	}
	if slices.Contains(sinks, name) {
		return sinks
	}
	return append(sinks, name)
}

// NewRegistrations builds the registrations of every configured meter
func NewRegistrations(meters []config.MeterConfig) ([]Registration, error) {
	regs := make([]Registration, 0, len(meters))
	for _, m := range meters {
		r, err := NewRegistration(m)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}
