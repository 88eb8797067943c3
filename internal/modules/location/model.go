// README: Location updates, geofence zones and derived driver signals.
package location

import (
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

type ZoneType string

const (
	ZonePickup  ZoneType = "pickup"
	ZoneDropoff ZoneType = "dropoff"
	ZoneCity    ZoneType = "city"
	ZoneMedina  ZoneType = "medina"
)

// Zone is a named circular geofence.
type Zone struct {
	Name string   `json:"name"`
	Type ZoneType `json:"type"`
	geo.Circle
}

type GeofenceEventType string

const (
	GeofenceEntry GeofenceEventType = "geofence_entry"
	GeofenceExit  GeofenceEventType = "geofence_exit"
)

type GeofenceEvent struct {
	Zone  string            `json:"zone"`
	Type  ZoneType          `json:"type"`
	Event GeofenceEventType `json:"event"`
}

// Update is one driver position report.
type Update struct {
	DriverID  types.ID    `json:"driver_id"`
	Position  types.Point `json:"position"`
	Timestamp time.Time   `json:"timestamp"`
	SpeedKmh  float64     `json:"speed_kmh,omitempty"`
	Heading   float64     `json:"heading,omitempty"`
	// BatteryPct is nil when the device did not report it.
	BatteryPct *int `json:"battery_pct,omitempty"`
}

// UpdateResult says what happened to one deduplicated update.
type UpdateResult struct {
	DriverID   types.ID `json:"driver_id"`
	Accepted   bool     `json:"accepted"`
	Stale      bool     `json:"stale"`
	LowBattery bool     `json:"low_battery"`
}

// DetectionConfig tunes stationary and battery warnings.
type DetectionConfig struct {
	StationaryRadiusKm    float64
	StationaryMinDuration time.Duration
	LowBatteryPct         int
	HistorySize           int
}

func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		StationaryRadiusKm:    0.05,
		StationaryMinDuration: 10 * time.Minute,
		LowBatteryPct:         15,
		HistorySize:           30,
	}
}
