package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/hal"
	"github.com/itohio/cellbms/pkg/protocol"
)

const namespace = "cellbms"

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// CellMetrics exports the live state of one cell module.
type CellMetrics struct {
	Voltage         prometheus.Gauge
	Temperature     *prometheus.GaugeVec // labels: sensor=onboard|external
	Duty            prometheus.Gauge
	BypassCountdown prometheus.Gauge
	BypassCooldown  prometheus.Gauge
	Status          *prometheus.GaugeVec // labels: flag
	Cycles          prometheus.Counter
	Frames          *prometheus.CounterVec // labels: outcome
}

// NewCellMetrics registers and returns the cell metrics.
func NewCellMetrics(reg prometheus.Registerer) *CellMetrics {
	m := &CellMetrics{
		Voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cell_voltage_millivolts",
			Help:      "Calibrated cell voltage.",
		}),
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Thermistor temperature.",
		}, []string{"sensor"}),
		Duty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bypass_duty_ratio",
			Help:      "Bypass load PWM duty between 0 and 1.",
		}),
		BypassCountdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bypass_countdown_cycles",
			Help:      "Remaining bypass cycles.",
		}),
		BypassCooldown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bypass_cooldown_cycles",
			Help:      "Remaining cooldown cycles after bypass.",
		}),
		Status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Module status flags, 1 when set.",
		}, []string{"flag"}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_cycles_total",
			Help:      "Completed control cycles.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Inbound frames by processing outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.Voltage, m.Temperature, m.Duty, m.BypassCountdown, m.BypassCooldown, m.Status, m.Cycles, m.Frames)
	return m
}

// Observe records one control cycle. It fits node.Node.OnCycle.
func (m *CellMetrics) Observe(s cell.Snapshot) {
	m.Cycles.Inc()
	m.Voltage.Set(float64(s.Voltage))
	m.Temperature.WithLabelValues("onboard").Set(float64(s.Onboard) / 10)
	m.Temperature.WithLabelValues("external").Set(float64(s.External) / 10)
	m.Duty.Set(float64(s.Duty) / cell.DutyMax)
	m.BypassCountdown.Set(float64(s.BypassCountdown))
	m.BypassCooldown.Set(float64(s.BypassCooldown))

	names := hal.Names()
	for i, bit := range hal.Bits() {
		v := 0.0
		if s.Status.Has(bit) {
			v = 1
		}
		m.Status.WithLabelValues(names[i]).Set(v)
	}
}

// ObserveFrame counts one processed frame. It fits protocol.WithObserver.
func (m *CellMetrics) ObserveFrame(o protocol.Outcome) {
	m.Frames.WithLabelValues(o.String()).Inc()
}
