package prefs

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by the engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ChangesTotal          *prometheus.CounterVec
	WritesTotal           *prometheus.CounterVec
	PreferencesRegistered prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prefs_changes_total",
			Help: "Preference changes delivered to listeners",
		}, []string{"scope"}),
		WritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prefs_writes_total",
			Help: "Preference writes by target scope and outcome",
		}, []string{"scope", "result"}),
		PreferencesRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prefs_preferences_registered",
			Help: "Number of preference properties currently registered",
		}),
	}
}

func (m *Metrics) recordChange(scope Scope) {
	if m == nil {
		return
	}
	m.ChangesTotal.WithLabelValues(strings.ToLower(scope.String())).Inc()
}

func (m *Metrics) recordWrite(scope Scope, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.WritesTotal.WithLabelValues(strings.ToLower(scope.String()), result).Inc()
}

func (m *Metrics) setRegistered(count int) {
	if m == nil {
		return
	}
	m.PreferencesRegistered.Set(float64(count))
}
