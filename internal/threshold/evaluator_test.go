package threshold

import (
	"testing"

	"facility-alerting/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestEvaluateWithinBounds(t *testing.T) {
	th := models.AlertThreshold{Parameter: "consumption_kwh", MinValue: ptr(10), MaxValue: ptr(100), Severity: models.SeverityHigh, Enabled: true}

	for _, v := range []float64{10, 10.0001, 55, 99.999, 100} {
		assert.Nil(t, Evaluate(v, th), "value %v", v)
	}
}

func TestEvaluateBelowAndAbove(t *testing.T) {
	th := models.AlertThreshold{Parameter: "consumption_kwh", MinValue: ptr(10), MaxValue: ptr(100), Severity: models.SeverityHigh, Enabled: true}

	low := Evaluate(9.5, th)
	require.NotNil(t, low)
	assert.Equal(t, BoundMin, low.Bound)
	assert.Equal(t, 10.0, low.Limit)
	assert.Contains(t, low.Message, "below minimum threshold of 10")

	high := Evaluate(120, th)
	require.NotNil(t, high)
	assert.Equal(t, BoundMax, high.Bound)
	assert.Equal(t, 100.0, high.Limit)
	assert.Contains(t, high.Message, "above maximum threshold of 100")
	assert.Equal(t, models.SeverityHigh, high.Severity)
}

func TestEvaluatePowerFactorExample(t *testing.T) {
	th := models.AlertThreshold{Parameter: "power_factor", MinValue: ptr(0.8), Severity: models.SeverityMedium, Enabled: true}

	v := Evaluate(0.72, th)
	require.NotNil(t, v)
	assert.Equal(t, models.SeverityMedium, v.Severity)
	assert.Equal(t, 0.72, v.Value)
	assert.Equal(t, 0.8, v.Limit)
	assert.Equal(t, "power_factor value 0.72 is below minimum threshold of 0.8", v.Message)
}

func TestEvaluateDisabled(t *testing.T) {
	th := models.AlertThreshold{Parameter: "power_factor", MinValue: ptr(0.8), Enabled: false}
	assert.Nil(t, Evaluate(0.1, th))
}

func TestEvaluateOpenBounds(t *testing.T) {
	th := models.AlertThreshold{Parameter: "peak_demand_kw", MaxValue: ptr(500), Enabled: true}
	assert.Nil(t, Evaluate(-1000, th))
	assert.NotNil(t, Evaluate(500.1, th))
}

func TestCheckPowerQuality(t *testing.T) {
	limits := DefaultLimits()

	cases := []struct {
		name     string
		param    string
		value    float64
		severity string
	}{
		{"voltage within tolerance", "voltage_l1", 240, ""},
		{"voltage moderate", "voltage_l1", 255, models.SeverityMedium},
		{"voltage severe", "voltage_l2", 190, models.SeverityHigh},
		{"thd voltage moderate", "thd_voltage", 9, models.SeverityMedium},
		{"thd voltage severe", "thd_voltage", 12.5, models.SeverityHigh},
		{"frequency ok", "frequency", 50.3, ""},
		{"frequency moderate", "frequency", 49.4, models.SeverityMedium},
		{"frequency severe", "frequency", 50.9, models.SeverityHigh},
		{"unbalance moderate", "voltage_unbalance", 2.5, models.SeverityMedium},
		{"power factor moderate", "power_factor", 0.8, models.SeverityMedium},
		{"power factor severe", "power_factor", 0.5, models.SeverityHigh},
		{"unknown parameter", "humidity", 99, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := limits.CheckPowerQuality(map[string]float64{c.param: c.value})
			if c.severity == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, c.param, got[0].Parameter)
			assert.Equal(t, c.severity, got[0].Severity)
		})
	}
}

func TestCheckPowerQualityOrdered(t *testing.T) {
	got := DefaultLimits().CheckPowerQuality(map[string]float64{
		"thd_voltage":  10,
		"power_factor": 0.7,
		"frequency":    51,
	})
	require.Len(t, got, 3)
	assert.Equal(t, "frequency", got[0].Parameter)
	assert.Equal(t, "power_factor", got[1].Parameter)
	assert.Equal(t, "thd_voltage", got[2].Parameter)
}
