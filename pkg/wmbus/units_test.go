package wmbus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUnit(t *testing.T) {
	tests := map[string]Unit{
		"kWh":   UnitKWH,
		" m3 ":  UnitM3,
		"m³":    UnitM3,
		"°C":    UnitC,
		"dBm":   UnitDBM,
		"%":     UnitPercent,
		"l/h":   UnitLH,
		"":      UnitUnknown,
		"furlo": UnitUnknown,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseUnit(name), "unit %q", name)
	}
	assert.Equal(t, "kwh", UnitKWH.String())
	assert.Equal(t, "unknown", UnitUnknown.String())
}

func TestConvert(t *testing.T) {
	assert.InDelta(t, 1234.5, Convert(1.2345, UnitM3, UnitL), 1e-9)
	assert.InDelta(t, 1.0, Convert(3.6, UnitGJ, UnitMWH), 1e-9)
	assert.InDelta(t, 273.15, Convert(0, UnitC, UnitK), 1e-9)
	assert.InDelta(t, 100.0, Convert(212, UnitF, UnitC), 1e-9)
	assert.Equal(t, 42.0, Convert(42, UnitDBM, UnitDBM))
	assert.True(t, math.IsNaN(Convert(1, UnitM3, UnitKWH)))
	assert.True(t, math.IsNaN(Convert(1, UnitUnknown, UnitKWH)))
}

func TestLinkModes(t *testing.T) {
	var none LinkModes
	assert.True(t, none.Empty())
	assert.Equal(t, "none", none.String())

	t1 := NewLinkModes(LinkModeT1)
	assert.True(t, t1.Supports(ModeT))
	assert.False(t, t1.Supports(ModeC))
	assert.False(t, t1.Supports(ModeUnknown))

	both := NewLinkModes(LinkModeT1, LinkModeC1)
	assert.True(t, both.Supports(ModeC))
	assert.Equal(t, "T1,C1", both.String())
}
