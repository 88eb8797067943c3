// README: City speed profiles and ETA engine configuration.
package eta

import (
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

// HourRange is a half-open [Start, End) window of wall-clock hours.
type HourRange struct {
	Start int
	End   int
}

func (r HourRange) Contains(hour int) bool {
	return hour >= r.Start && hour < r.End
}

// CityProfile describes typical driving conditions in one city. The
// multipliers scale travel time, so values above 1 mean slower.
type CityProfile struct {
	Name                string
	AvgSpeedKmh         float64
	PeakMultiplier      float64
	DenseZoneMultiplier float64
	PeakHours           []HourRange
	// DenseZones are old-town areas (medinas) with narrow, crowded streets.
	DenseZones []geo.Circle
}

type Config struct {
	Profiles    map[string]CityProfile
	DefaultCity string
	// Location converts timestamps to local wall-clock hours.
	Location *time.Location

	RestaurantWaitMin    float64
	DefaultPickupMin     float64
	BaseConfidence       float64
	ConfidenceDecayPerKm float64
	MinConfidence        float64
	NoLocationPenalty    float64
}

func DefaultConfig() Config {
	loc, err := time.LoadLocation("Africa/Casablanca")
	if err != nil {
		loc = time.FixedZone("WEST", 3600)
	}
	peak := []HourRange{{Start: 8, End: 10}, {Start: 12, End: 14}, {Start: 17, End: 20}}
	return Config{
		Profiles: map[string]CityProfile{
			"casablanca": {
				Name: "casablanca", AvgSpeedKmh: 22, PeakMultiplier: 1.6, DenseZoneMultiplier: 1.5, PeakHours: peak,
				DenseZones: []geo.Circle{{Center: types.Point{Lat: 33.5992, Lng: -7.6170}, RadiusKm: 0.6}},
			},
			"rabat": {
				Name: "rabat", AvgSpeedKmh: 25, PeakMultiplier: 1.4, DenseZoneMultiplier: 1.5, PeakHours: peak,
				DenseZones: []geo.Circle{{Center: types.Point{Lat: 34.0250, Lng: -6.8360}, RadiusKm: 0.5}},
			},
			"marrakech": {
				Name: "marrakech", AvgSpeedKmh: 20, PeakMultiplier: 1.4, DenseZoneMultiplier: 1.8, PeakHours: peak,
				DenseZones: []geo.Circle{{Center: types.Point{Lat: 31.6295, Lng: -7.9811}, RadiusKm: 1.2}},
			},
			"fes": {
				Name: "fes", AvgSpeedKmh: 21, PeakMultiplier: 1.3, DenseZoneMultiplier: 2.0, PeakHours: peak,
				DenseZones: []geo.Circle{{Center: types.Point{Lat: 34.0626, Lng: -4.9729}, RadiusKm: 1.0}},
			},
			"tangier": {
				Name: "tangier", AvgSpeedKmh: 24, PeakMultiplier: 1.4, DenseZoneMultiplier: 1.6, PeakHours: peak,
				DenseZones: []geo.Circle{{Center: types.Point{Lat: 35.7860, Lng: -5.8130}, RadiusKm: 0.5}},
			},
		},
		DefaultCity:          "casablanca",
		Location:             loc,
		RestaurantWaitMin:    8,
		DefaultPickupMin:     15,
		BaseConfidence:       0.95,
		ConfidenceDecayPerKm: 0.03,
		MinConfidence:        0.3,
		NoLocationPenalty:    0.2,
	}
}

// Prediction is the remaining-time estimate for one delivery.
type Prediction struct {
	DeliveryID          types.ID  `json:"delivery_id"`
	PickupMinutes       float64   `json:"pickup_minutes"`
	WaitMinutes         float64   `json:"wait_minutes"`
	DeliveryMinutes     float64   `json:"delivery_minutes"`
	TotalMinutes        float64   `json:"total_minutes"`
	RemainingKm         float64   `json:"remaining_km"`
	Confidence          float64   `json:"confidence"`
	UsedDriverLocation  bool      `json:"used_driver_location"`
	EstimatedPickupAt   time.Time `json:"estimated_pickup_at"`
	EstimatedDeliveryAt time.Time `json:"estimated_delivery_at"`
}
