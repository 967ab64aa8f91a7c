// Package detection turns ingested readings into alerts.
package detection

import (
	"context"
	"fmt"
	"sort"

	"facility-alerting/internal/alerts"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"
	"facility-alerting/internal/threshold"
)

// AlertCreator is the part of the alert service the detector needs.
type AlertCreator interface {
	CreateAlert(ctx context.Context, data models.Alert) (models.Alert, error)
}

type Detector struct {
	thresholds alerts.ThresholdRepository
	alerts     AlertCreator
	limits     threshold.Limits
	logger     *logging.Logger
}

func New(thresholds alerts.ThresholdRepository, creator AlertCreator, limits threshold.Limits, logger *logging.Logger) *Detector {
	return &Detector{
		thresholds: thresholds,
		alerts:     creator,
		limits:     limits,
		logger:     logger,
	}
}

// Ingest evaluates every value of the reading against the configured
// thresholds, and power-quality readings against the standard limits too.
// It returns the alerts created or refreshed. The first failure aborts
// ingestion and is returned.
func (d *Detector) Ingest(ctx context.Context, r models.Reading) ([]models.Alert, error) {
	if len(r.Values) == 0 {
		return nil, nil
	}

	configured, err := d.thresholds.ThresholdsFor(ctx, r.BuildingID, r.EquipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds for building %d: %w", r.BuildingID, err)
	}
	byParameter := make(map[string][]models.AlertThreshold)
	for _, t := range configured {
		byParameter[t.Parameter] = append(byParameter[t.Parameter], t)
	}

	var raised []models.Alert

	for _, param := range sortedKeys(r.Values) {
		value := r.Values[param]
		for _, t := range byParameter[param] {
			v := threshold.Evaluate(value, t)
			if v == nil {
				continue
			}
			alert, err := d.alerts.CreateAlert(ctx, d.thresholdAlert(r, t, v))
			if err != nil {
				return raised, fmt.Errorf("failed to create threshold alert for %s: %w", param, err)
			}
			raised = append(raised, alert)
		}
	}

	if r.Kind == models.ReadingKindPowerQuality {
		for _, v := range d.limits.CheckPowerQuality(r.Values) {
			alert, err := d.alerts.CreateAlert(ctx, d.powerQualityAlert(r, v))
			if err != nil {
				return raised, fmt.Errorf("failed to create power quality alert for %s: %w", v.Parameter, err)
			}
			raised = append(raised, alert)
		}
	}

	if len(raised) > 0 {
		d.logger.WithField("building_id", r.BuildingID).Infof("Reading raised %d alert(s)", len(raised))
	}
	return raised, nil
}

func (d *Detector) thresholdAlert(r models.Reading, t models.AlertThreshold, v *threshold.Violation) models.Alert {
	a := models.Alert{
		Type:            models.AlertTypeThresholdExceeded,
		Severity:        t.Severity,
		Title:           fmt.Sprintf("%s threshold exceeded", t.Parameter),
		Message:         v.Message,
		BuildingID:      &r.BuildingID,
		EquipmentID:     r.EquipmentID,
		ThresholdConfig: t.Config(),
		DetectedValue:   &v.Value,
		ThresholdValue:  &v.Limit,
		Metadata: map[string]any{
			"parameter":   t.Parameter,
			"bound":       v.Bound,
			"reading":     r.Kind,
			"recorded_at": r.RecordedAt,
		},
	}
	if len(t.NotificationEmails) > 0 {
		a.Metadata["notification_emails"] = t.NotificationEmails
	}
	d.attachReading(&a, r)
	return a
}

func (d *Detector) powerQualityAlert(r models.Reading, v threshold.Violation) models.Alert {
	a := models.Alert{
		Type:           models.AlertTypePowerQuality,
		Severity:       v.Severity,
		Title:          fmt.Sprintf("Power quality: %s out of range", v.Parameter),
		Message:        v.Message,
		BuildingID:     &r.BuildingID,
		EquipmentID:    r.EquipmentID,
		DetectedValue:  &v.Value,
		ThresholdValue: &v.Limit,
		Metadata: map[string]any{
			"parameter":   v.Parameter,
			"bound":       v.Bound,
			"standard":    "power_quality_limits",
			"recorded_at": r.RecordedAt,
		},
	}
	d.attachReading(&a, r)
	return a
}

func (d *Detector) attachReading(a *models.Alert, r models.Reading) {
	if r.ReadingID == nil {
		return
	}
	switch r.Kind {
	case models.ReadingKindPowerQuality:
		a.PQReadingID = r.ReadingID
	default:
		a.EnergyReadingID = r.ReadingID
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
