// Package metrics publishes scan counts as Prometheus gauges and retracts
// series that a later scan no longer reports.
package metrics

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the destination for gauge series.
type Sink interface {
	SetGauge(name, help string, labelNames, labelValues []string, value float64) error
	RemoveSeries(name string, labelValues []string) error
}

// PrometheusSink creates one GaugeVec per metric family on first use and
// registers it on the injected Registerer.
type PrometheusSink struct {
	reg prometheus.Registerer

	mu       sync.Mutex
	families map[string]*family
}

type family struct {
	vec    *prometheus.GaugeVec
	labels []string
}

// NewPrometheusSink returns a sink registering its families on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	return &PrometheusSink{reg: reg, families: make(map[string]*family)}
}

// SetGauge sets the series identified by labelValues. A label arity that
// does not match the family is reported as an error.
func (s *PrometheusSink) SetGauge(name, help string, labelNames, labelValues []string, value float64) error {
	if len(labelNames) != len(labelValues) {
		return fmt.Errorf("metric %s: %d label names but %d values", name, len(labelNames), len(labelValues))
	}
	f, err := s.family(name, help, labelNames)
	if err != nil {
		return err
	}
	g, err := f.vec.GetMetricWithLabelValues(labelValues...)
	if err != nil {
		return fmt.Errorf("metric %s: %w", name, err)
	}
	g.Set(value)
	return nil
}

// RemoveSeries deletes one series. Removing from an unknown family or a
// series that was never set is not an error.
func (s *PrometheusSink) RemoveSeries(name string, labelValues []string) error {
	s.mu.Lock()
	f, ok := s.families[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if len(f.labels) != len(labelValues) {
		return fmt.Errorf("metric %s: %d label names but %d values", name, len(f.labels), len(labelValues))
	}
	f.vec.DeleteLabelValues(labelValues...)
	return nil
}

func (s *PrometheusSink) family(name, help string, labelNames []string) (*family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.families[name]; ok {
		if !slices.Equal(f.labels, labelNames) {
			return nil, fmt.Errorf("metric %s: labels %v do not match registered %v", name, labelNames, f.labels)
		}
		return f, nil
	}

	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames)
	if err := s.reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("registering metric %s: %w", name, err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, fmt.Errorf("metric %s already registered with a different type", name)
		}
		vec = existing
	}
	f := &family{vec: vec, labels: slices.Clone(labelNames)}
	s.families[name] = f
	return f, nil
}
