// Package threshold decides whether a sample violates a configured threshold
// or one of the standard power-quality limits. It performs no I/O.
package threshold

import (
	"fmt"
	"strconv"

	"facility-alerting/internal/models"
)

const (
	BoundMin = "min"
	BoundMax = "max"
)

// Violation describes a crossed bound.
type Violation struct {
	Parameter string
	Value     float64
	Limit     float64
	Bound     string
	Severity  string
	Message   string
}

// Evaluate checks value against t. It returns nil when the value is within
// bounds or the threshold is disabled.
func Evaluate(value float64, t models.AlertThreshold) *Violation {
	if !t.Enabled {
		return nil
	}

	if t.MinValue != nil && value < *t.MinValue {
		return &Violation{
			Parameter: t.Parameter,
			Value:     value,
			Limit:     *t.MinValue,
			Bound:     BoundMin,
			Severity:  t.Severity,
			Message: fmt.Sprintf("%s value %s is below minimum threshold of %s",
				t.Parameter, formatNumber(value), formatNumber(*t.MinValue)),
		}
	}

	if t.MaxValue != nil && value > *t.MaxValue {
		return &Violation{
			Parameter: t.Parameter,
			Value:     value,
			Limit:     *t.MaxValue,
			Bound:     BoundMax,
			Severity:  t.Severity,
			Message: fmt.Sprintf("%s value %s is above maximum threshold of %s",
				t.Parameter, formatNumber(value), formatNumber(*t.MaxValue)),
		}
	}

	return nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
