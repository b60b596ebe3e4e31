package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/hal"
	"github.com/itohio/cellbms/pkg/protocol"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCellMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCellMetrics(reg)

	m.Observe(cell.Snapshot{
		Status:          hal.StatusProvisioned | hal.StatusBypassing,
		Voltage:         4150,
		Onboard:         655,
		External:        -2732,
		BypassCountdown: 120,
		Duty:            2500,
	})

	body := scrape(t, reg)
	assert.Contains(t, body, "cellbms_cell_voltage_millivolts 4150")
	assert.Contains(t, body, `cellbms_temperature_celsius{sensor="onboard"} 65.5`)
	assert.Contains(t, body, `cellbms_temperature_celsius{sensor="external"} -273.2`)
	assert.Contains(t, body, "cellbms_bypass_duty_ratio 0.25")
	assert.Contains(t, body, "cellbms_bypass_countdown_cycles 120")
	assert.Contains(t, body, `cellbms_status{flag="bypassing"} 1`)
	assert.Contains(t, body, `cellbms_status{flag="fault"} 0`)
	assert.Contains(t, body, "cellbms_control_cycles_total 1")
}

func TestCellMetrics_ObserveFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCellMetrics(reg)

	m.ObserveFrame(protocol.Replied)
	m.ObserveFrame(protocol.Replied)
	m.ObserveFrame(protocol.Rejected)

	body := scrape(t, reg)
	assert.Contains(t, body, `cellbms_frames_total{outcome="replied"} 2`)
	assert.Contains(t, body, `cellbms_frames_total{outcome="rejected"} 1`)
}

func TestNewRegistry_RuntimeCollectors(t *testing.T) {
	reg := NewRegistry()
	NewCellMetrics(reg)

	body := scrape(t, reg)
	assert.Contains(t, body, "go_goroutines")
}
