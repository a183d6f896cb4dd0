// Package config loads the gateway configuration from a YAML file and
// WMBUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation error
var ErrInvalid = errors.New("invalid configuration")

// Bus kinds
const (
	BusPeriph = "periph"
	BusCH341  = "ch341"
)

// Receiver modes
const (
	ModePoll = "poll"
	ModeTask = "task"
)

// RadioConfig selects the bus the CC1101 sits on and its wM-Bus profile.
// Non-zero frequency and modem values override the profile.
type RadioConfig struct {
	Bus     string `mapstructure:"bus"`
	SPIPort string `mapstructure:"spiPort"`
	SPIHz   int64  `mapstructure:"spiHz"`
	GDO0Pin string `mapstructure:"gdo0Pin"`
	GDO2Pin string `mapstructure:"gdo2Pin"`
	// Device selects a CH341 bridge: "", "#N", "bus:addr" or a serial number
	Device string `mapstructure:"device"`

	Profile          string  `mapstructure:"profile"`
	FrequencyHz      float64 `mapstructure:"frequencyHz"`
	DataRateBaud     float64 `mapstructure:"dataRateBaud"`
	DeviationHz      float64 `mapstructure:"deviationHz"`
	BandwidthHz      float64 `mapstructure:"bandwidthHz"`
	ChannelSpacingHz float64 `mapstructure:"channelSpacingHz"`
}

// ReceiverConfig controls frame acquisition
type ReceiverConfig struct {
	Mode      string        `mapstructure:"mode"`
	QueueSize int           `mapstructure:"queueSize"`
	SyncMode  bool          `mapstructure:"syncMode"`
	ExtraTime time.Duration `mapstructure:"extraTime"`
}

// LumberjackConfig is the rolling log file. An empty file name disables it.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig is the log level and output
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig is the Prometheus endpoint
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// MQTTConfig is the MQTT sink
type MQTTConfig struct {
	Enable      bool   `mapstructure:"enable"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	ClientID    string `mapstructure:"clientId"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topicPrefix"`
	QoS         byte   `mapstructure:"qos"`
	Retain      bool   `mapstructure:"retain"`
}

// RedisConfig is the Redis sink
type RedisConfig struct {
	Enable    bool          `mapstructure:"enable"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"keyPrefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LEDConfig is the activity LED. An empty pin disables it.
type LEDConfig struct {
	Pin       string        `mapstructure:"pin"`
	BlinkTime time.Duration `mapstructure:"blinkTime"`
}

// FieldConfig publishes one numeric meter field in a unit. An empty sink
// publishes to every sink.
type FieldConfig struct {
	Field string `mapstructure:"field"`
	Unit  string `mapstructure:"unit"`
	Sink  string `mapstructure:"sink"`
}

// TextFieldConfig publishes one text meter field
type TextFieldConfig struct {
	Field string `mapstructure:"field"`
	Sink  string `mapstructure:"sink"`
}

// MeterConfig registers one meter by its hex ID
type MeterConfig struct {
	ID         string            `mapstructure:"id"`
	Driver     string            `mapstructure:"driver"`
	Key        string            `mapstructure:"key"`
	Fields     []FieldConfig     `mapstructure:"fields"`
	TextFields []TextFieldConfig `mapstructure:"textFields"`
}

// Config is the gateway configuration
type Config struct {
	Radio    RadioConfig    `mapstructure:"radio"`
	Receiver ReceiverConfig `mapstructure:"receiver"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LED      LEDConfig      `mapstructure:"led"`
	LogAll   bool           `mapstructure:"logAll"`
	Meters   []MeterConfig  `mapstructure:"meters"`
}

// Load reads the configuration from path and the environment. With an empty
// path WMBUS_CONFIG is used, then wmbus.yaml in the working directory or
// /etc/gowmbus. When no file is found by that search, defaults and
// environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WMBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gowmbus")
		v.SetConfigName("wmbus")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings and the meter list
func (c *Config) Validate() error {
	switch c.Radio.Bus {
	case BusPeriph, BusCH341:
	default:
		return fmt.Errorf("%w: radio.bus %q", ErrInvalid, c.Radio.Bus)
	}
	switch c.Receiver.Mode {
	case ModePoll, ModeTask:
	default:
		return fmt.Errorf("%w: receiver.mode %q", ErrInvalid, c.Receiver.Mode)
	}
	seen := make(map[string]bool, len(c.Meters))
	for i, m := range c.Meters {
		id := strings.ToLower(m.ID)
		if len(id) != 8 || strings.Trim(id, "0123456789abcdef") != "" {
			return fmt.Errorf("%w: meters[%d].id %q is not 8 hex digits", ErrInvalid, i, m.ID)
		}
		if seen[id] {
			return fmt.Errorf("%w: meter %s listed twice", ErrInvalid, id)
		}
		seen[id] = true
		for j, f := range m.Fields {
			if f.Field == "" {
				return fmt.Errorf("%w: meters[%d].fields[%d] has no field", ErrInvalid, i, j)
			}
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("radio.bus", BusPeriph)
	v.SetDefault("radio.spiPort", "")
	v.SetDefault("radio.spiHz", 4000000)
	v.SetDefault("radio.gdo0Pin", "GPIO24")
	v.SetDefault("radio.gdo2Pin", "GPIO25")
	v.SetDefault("radio.device", "")
	v.SetDefault("radio.profile", "T1")

	v.SetDefault("receiver.mode", ModeTask)
	v.SetDefault("receiver.queueSize", 3)
	v.SetDefault("receiver.syncMode", false)
	v.SetDefault("receiver.extraTime", "50ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.addr", ":9108")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.clientId", "gowmbus")
	v.SetDefault("mqtt.topicPrefix", "wmbus")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("redis.enable", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "wmbus")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("led.pin", "")
	v.SetDefault("led.blinkTime", "200ms")

	v.SetDefault("logAll", false)
}
