package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/gowmbus/pkg/config"
	"github.com/herlein/gowmbus/pkg/wmbus"
)

func TestParseKey(t *testing.T) {
	key, err := ParseKey("00112233 44556677|8899aabb_CCDDEEFF")
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
	}, key)

	key, err = ParseKey("#")
	require.NoError(t, err)
	assert.Empty(t, key)

	for _, bad := range []string{"0g", "123", "12-34"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", bad)
	}
}

func TestNewRegistration(t *testing.T) {
	r, err := NewRegistration(config.MeterConfig{
		ID:     "0012ABCD",
		Driver: "oms",
		Key:    "000102030405060708090A0B0C0D0E0F",
		Fields: []config.FieldConfig{
			{Field: "total", Unit: "m3"},
			{Field: "total", Unit: "m3"},
			{Field: "total", Unit: "l"},
		},
		TextFields: []config.TextFieldConfig{{Field: "status"}, {Field: "status"}},
	})
	require.NoError(t, err)

	assert.Equal(t, uint32(0x0012ABCD), r.MeterID)
	assert.Equal(t, "0012abcd", r.ID())
	assert.Len(t, r.Key, 16)
	assert.Equal(t, []NumericField{{Field: "total", Unit: "m3"}, {Field: "total", Unit: "l"}}, r.Fields)
	assert.Equal(t, []TextField{{Field: "status"}}, r.TextFields)

	_, err = NewRegistration(config.MeterConfig{ID: "1234"})
	assert.ErrorIs(t, err, ErrInvalidMeterID)

	_, err = NewRegistrations([]config.MeterConfig{{ID: "12345678"}, {ID: "12345678", Key: "xyz"}})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewRegistrationMergesSinks(t *testing.T) {
	r, err := NewRegistration(config.MeterConfig{
		ID: "12345678",
		Fields: []config.FieldConfig{
			{Field: "total", Unit: "m3", Sink: "mqtt"},
			{Field: "total", Unit: "m3", Sink: "redis"},
			{Field: "total", Unit: "m3", Sink: "mqtt"},
			{Field: "total", Unit: "l", Sink: "mqtt"},
			{Field: "total", Unit: "l"},
			{Field: "rssi", Unit: "dbm"},
			{Field: "rssi", Unit: "dbm", Sink: "redis"},
		},
		TextFields: []config.TextFieldConfig{
			{Field: "status", Sink: "mqtt"},
			{Field: "status", Sink: "redis"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []NumericField{
		{Field: "total", Unit: "m3", Sinks: []string{"mqtt", "redis"}},
		{Field: "total", Unit: "l"},
		{Field: "rssi", Unit: "dbm"},
	}, r.Fields)
	assert.Equal(t, []TextField{{Field: "status", Sinks: []string{"mqtt", "redis"}}}, r.TextFields)
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	addr := wmbus.Address{ID: "12345678", Manufacturer: wmbus.ManufacturerID("KAM")}

	frame := func(rssi int, at time.Time) wmbus.RawFrame {
		return wmbus.RawFrame{FrameMetadata: wmbus.FrameMetadata{Mode: wmbus.ModeT, Block: wmbus.BlockA, RSSI: rssi, ReceivedAt: at}}
	}

	assert.True(t, tr.Update(0x12345678, addr, "oms", true, frame(-80, start)))
	assert.False(t, tr.Update(0x12345678, addr, "oms", true, frame(-60, start.Add(time.Minute))))
	assert.True(t, tr.Update(0x00000001, wmbus.Address{ID: "00000001"}, "", false, frame(-90, start)))

	m, ok := tr.Get(0x12345678)
	require.True(t, ok)
	assert.Equal(t, 2, m.Count)
	assert.Equal(t, -60, m.RSSI)
	assert.Equal(t, -60, m.MaxRSSI)
	assert.Equal(t, start, m.FirstSeen)
	assert.Equal(t, "T1 A", m.Mode)

	all := tr.All()
	require.Len(t, all, 2)
	assert.Equal(t, uint32(1), all[0].MeterID)

	assert.Equal(t, 1, tr.PruneOld(start.Add(30*time.Second)))
	assert.Equal(t, 1, tr.Count())
	tr.Clear()
	assert.Zero(t, tr.Count())
}
