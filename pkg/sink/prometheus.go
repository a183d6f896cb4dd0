package sink

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type textKey struct {
	meterID, field string
}

// Prometheus exposes the latest value of every published field as a gauge.
// Text fields are exposed as an info gauge carrying the text as a label.
type Prometheus struct {
	values *prometheus.GaugeVec
	texts  *prometheus.GaugeVec

	mu   sync.Mutex
	last map[textKey]string
}

// NewPrometheus registers the meter gauges with reg
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	s := &Prometheus{
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wmbus",
			Name:      "meter_value",
			Help:      "Latest numeric meter field value.",
		}, []string{"meter", "field", "unit"}),
		texts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wmbus",
			Name:      "meter_info",
			Help:      "Latest text meter field value, always 1.",
		}, []string{"meter", "field", "value"}),
		last: map[textKey]string{},
	}
	reg.MustRegister(s.values, s.texts)
	return s
}

func (s *Prometheus) Name() string { return NamePrometheus }

func (s *Prometheus) PublishNumeric(_ context.Context, meterID, field, unit string, value float64) error {
	s.values.WithLabelValues(meterID, field, unit).Set(value)
	return nil
}

// PublishText replaces the previous text of the field so one series remains
func (s *Prometheus) PublishText(_ context.Context, meterID, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := textKey{meterID, field}
	if prev, ok := s.last[k]; ok && prev != value {
		s.texts.DeleteLabelValues(meterID, field, prev)
	}
	s.last[k] = value
	s.texts.WithLabelValues(meterID, field, value).Set(1)
	return nil
}
