package threshold

import (
	"fmt"
	"math"
	"sort"

	"facility-alerting/internal/models"
)

// severeFactor is the multiple of the limit past which a moderate
// violation becomes severe.
const severeFactor = 1.5

// Limits are the fixed power-quality constants checked outside the
// threshold table.
type Limits struct {
	NominalVoltage      float64
	VoltageTolerancePct float64
	THDVoltageMax       float64
	THDCurrentMax       float64
	NominalFrequency    float64
	FrequencyTolerance  float64
	UnbalanceMax        float64
	PowerFactorMin      float64
}

func DefaultLimits() Limits {
	return Limits{
		NominalVoltage:      230,
		VoltageTolerancePct: 10,
		THDVoltageMax:       8,
		THDCurrentMax:       20,
		NominalFrequency:    50,
		FrequencyTolerance:  0.5,
		UnbalanceMax:        2,
		PowerFactorMin:      0.85,
	}
}

type checkKind int

const (
	ceiling checkKind = iota
	floor
	band
)

type check struct {
	kind      checkKind
	limit     float64
	nominal   float64
	tolerance float64
	unit      string
}

func (l Limits) checks() map[string]check {
	voltage := check{
		kind:      band,
		nominal:   l.NominalVoltage,
		tolerance: l.NominalVoltage * l.VoltageTolerancePct / 100,
		unit:      "V",
	}
	return map[string]check{
		"voltage":           voltage,
		"voltage_l1":        voltage,
		"voltage_l2":        voltage,
		"voltage_l3":        voltage,
		"thd_voltage":       {kind: ceiling, limit: l.THDVoltageMax, unit: "%"},
		"thd_current":       {kind: ceiling, limit: l.THDCurrentMax, unit: "%"},
		"frequency":         {kind: band, nominal: l.NominalFrequency, tolerance: l.FrequencyTolerance, unit: "Hz"},
		"voltage_unbalance": {kind: ceiling, limit: l.UnbalanceMax, unit: "%"},
		"power_factor":      {kind: floor, limit: l.PowerFactorMin},
	}
}

// CheckPowerQuality runs every standard check whose parameter is present in
// values. Results are ordered by parameter name.
func (l Limits) CheckPowerQuality(values map[string]float64) []Violation {
	checks := l.checks()

	var out []Violation
	for param, value := range values {
		c, ok := checks[param]
		if !ok {
			continue
		}
		if v := c.evaluate(param, value); v != nil {
			out = append(out, *v)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Parameter < out[j].Parameter })
	return out
}

func (c check) evaluate(param string, value float64) *Violation {
	switch c.kind {
	case ceiling:
		if value <= c.limit {
			return nil
		}
		return &Violation{
			Parameter: param,
			Value:     value,
			Limit:     c.limit,
			Bound:     BoundMax,
			Severity:  severity(value > c.limit*severeFactor),
			Message: fmt.Sprintf("%s value %s%s exceeds limit of %s%s",
				param, formatNumber(value), c.unit, formatNumber(c.limit), c.unit),
		}
	case floor:
		if value >= c.limit {
			return nil
		}
		return &Violation{
			Parameter: param,
			Value:     value,
			Limit:     c.limit,
			Bound:     BoundMin,
			Severity:  severity(value < c.limit/severeFactor),
			Message: fmt.Sprintf("%s value %s is below limit of %s",
				param, formatNumber(value), formatNumber(c.limit)),
		}
	case band:
		deviation := math.Abs(value - c.nominal)
		if deviation <= c.tolerance {
			return nil
		}
		bound, limit := BoundMax, c.nominal+c.tolerance
		if value < c.nominal {
			bound, limit = BoundMin, c.nominal-c.tolerance
		}
		return &Violation{
			Parameter: param,
			Value:     value,
			Limit:     limit,
			Bound:     bound,
			Severity:  severity(deviation > c.tolerance*severeFactor),
			Message: fmt.Sprintf("%s value %s%s deviates %s%s from nominal %s%s (tolerance %s%s)",
				param, formatNumber(value), c.unit, formatNumber(round2(deviation)), c.unit,
				formatNumber(c.nominal), c.unit, formatNumber(c.tolerance), c.unit),
		}
	}
	return nil
}

func severity(severe bool) string {
	if severe {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
