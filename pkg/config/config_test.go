package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
radio:
  bus: ch341
  device: "#1"
  profile: C1
  frequencyHz: 868.3e6
receiver:
  mode: poll
  syncMode: true
mqtt:
  enable: true
  host: broker.local
logAll: true
meters:
  - id: "12345678"
    driver: oms
    key: "00112233 44556677|8899AABB_CCDDEEFF"
    fields:
      - field: total
        unit: m3
      - field: rssi
        unit: dbm
        sink: mqtt
    textFields:
      - field: status
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "wmbus.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, BusCH341, cfg.Radio.Bus)
	assert.Equal(t, "#1", cfg.Radio.Device)
	assert.Equal(t, "C1", cfg.Radio.Profile)
	assert.Equal(t, 868.3e6, cfg.Radio.FrequencyHz)
	assert.Equal(t, "GPIO24", cfg.Radio.GDO0Pin, "defaults fill the rest")

	assert.Equal(t, ModePoll, cfg.Receiver.Mode)
	assert.True(t, cfg.Receiver.SyncMode)
	assert.Equal(t, 50*time.Millisecond, cfg.Receiver.ExtraTime)
	assert.Equal(t, 3, cfg.Receiver.QueueSize)

	assert.True(t, cfg.MQTT.Enable)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 200*time.Millisecond, cfg.LED.BlinkTime)
	assert.True(t, cfg.LogAll)

	require.Len(t, cfg.Meters, 1)
	m := cfg.Meters[0]
	assert.Equal(t, "12345678", m.ID)
	assert.Equal(t, "oms", m.Driver)
	require.Len(t, m.Fields, 2)
	assert.Equal(t, FieldConfig{Field: "rssi", Unit: "dbm", Sink: "mqtt"}, m.Fields[1])
	assert.Equal(t, []TextFieldConfig{{Field: "status"}}, m.TextFields)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("WMBUS_RADIO_PROFILE", "C1")
	t.Setenv("WMBUS_LOGGING_LEVEL", "debug")
	t.Setenv("WMBUS_CONFIG", writeFile(t, "gw.yaml", "receiver:\n  mode: poll\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "C1", cfg.Radio.Profile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ModePoll, cfg.Receiver.Mode)
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"bus":          "radio:\n  bus: uart\n",
		"mode":         "receiver:\n  mode: irq\n",
		"short id":     "meters:\n  - id: \"1234\"\n",
		"non hex id":   "meters:\n  - id: \"1234567g\"\n",
		"duplicate id": "meters:\n  - id: \"12345678\"\n  - id: \"12345678\"\n",
		"empty field":  "meters:\n  - id: \"12345678\"\n    fields:\n      - unit: m3\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "wmbus.yaml", content))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "wmbus.yaml")
	require.NoError(t, WriteDefaults(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BusPeriph, cfg.Radio.Bus)
	assert.Equal(t, ModeTask, cfg.Receiver.Mode)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Empty(t, cfg.Meters)
}

func TestSnapshotPath(t *testing.T) {
	assert.Equal(t, filepath.Join("etc", "cc1101", "gateway.json"), SnapshotPath("gateway"))
}
