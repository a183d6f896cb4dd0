// Package sink publishes decoded meter values. Every sink implements
// dispatch.Sink and is addressed by its name in the meter field
// configuration.
package sink

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/herlein/gowmbus/pkg/wmbus"
)

// Sink names
const (
	NameLog        = "log"
	NameMQTT       = "mqtt"
	NameRedis      = "redis"
	NamePrometheus = "prometheus"
)

// valueName is the key a numeric value is stored under, e.g. total_m3
func valueName(field, unit string) string {
	if unit == "" {
		return field
	}
	if u := wmbus.ParseUnit(unit); u != wmbus.UnitUnknown {
		unit = u.String()
	}
	return field + "_" + unit
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Log writes every value to the logger
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log sink
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("sink")}
}

func (s *Log) Name() string { return NameLog }

func (s *Log) PublishNumeric(_ context.Context, meterID, field, unit string, value float64) error {
	s.logger.Info("value",
		zap.String("id", meterID),
		zap.String("field", field),
		zap.String("unit", unit),
		zap.Float64("value", value))
	return nil
}

func (s *Log) PublishText(_ context.Context, meterID, field, value string) error {
	s.logger.Info("value",
		zap.String("id", meterID),
		zap.String("field", field),
		zap.String("text", value))
	return nil
}
