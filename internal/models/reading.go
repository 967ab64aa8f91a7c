package models

import "time"

const (
	ReadingKindEnergy       = "energy"
	ReadingKindPowerQuality = "power_quality"
)

// Reading is one ingested sample set for a building or a piece of equipment.
type Reading struct {
	Kind        string             `json:"kind"`
	BuildingID  int64              `json:"building_id"`
	EquipmentID *int64             `json:"equipment_id,omitempty"`
	ReadingID   *int64             `json:"reading_id,omitempty"`
	Values      map[string]float64 `json:"values"`
	RecordedAt  time.Time          `json:"recorded_at"`
}
