// README: Route stop and optimized route types, optimizer tuning, constraint diagnostics.
package routing

import (
	"fmt"
	"time"

	"tawsil/internal/types"
)

type StopType string

const (
	StopPickup  StopType = "pickup"
	StopDropoff StopType = "dropoff"
)

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Stop is one visit on a driver's route. A pickup and a dropoff sharing
// OrderID form a pair; the pickup must come first.
type Stop struct {
	ID         string      `json:"id"`
	Location   types.Point `json:"location"`
	Type       StopType    `json:"type"`
	OrderID    types.ID    `json:"order_id"`
	TimeWindow *TimeWindow `json:"time_window,omitempty"`
}

func (s Stop) validate() error {
	if s.ID == "" {
		return types.Invalid("stop.id", "must not be empty")
	}
	if s.Type != StopPickup && s.Type != StopDropoff {
		return types.Invalid("stop.type", "unknown stop type %q", s.Type)
	}
	return s.Location.Validate()
}

// OptimizedRoute is an immutable result; re-optimizing produces a new one.
// Distances are road-approximated (winded) kilometres.
type OptimizedRoute struct {
	Stops            []Stop  `json:"stops"`
	TotalDistanceKm  float64 `json:"total_distance_km"`
	TotalTimeMinutes float64 `json:"total_time_minutes"`
	NaiveDistanceKm  float64 `json:"naive_distance_km"`
	SavingsKm        float64 `json:"savings_km"`
	Iterations       int     `json:"iterations"`
	Repaired         bool    `json:"repaired"`
}

type Config struct {
	AvgSpeedKmh        float64
	ServiceMinutes     float64
	MinImprovementKm   float64
	MaxIterations      int
	MaxRepairPasses    int
	MaxTotalDistanceKm float64 // 0 disables the cap
}

func DefaultConfig() Config {
	return Config{
		AvgSpeedKmh:      25,
		ServiceMinutes:   3,
		MinImprovementKm: 0.001,
		MaxIterations:    100,
		MaxRepairPasses:  50,
	}
}

type ViolationKind string

const (
	ViolationPrecedence  ViolationKind = "precedence"
	ViolationTimeWindow  ViolationKind = "time_window"
	ViolationMaxDistance ViolationKind = "max_distance"
)

// ConstraintViolation describes one way a route breaks its constraints.
type ConstraintViolation struct {
	Kind    ViolationKind `json:"kind"`
	StopID  string        `json:"stop_id,omitempty"`
	OrderID types.ID      `json:"order_id,omitempty"`
	Detail  string        `json:"detail"`
}

func (v ConstraintViolation) Error() string {
	if v.StopID == "" {
		return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
	}
	return fmt.Sprintf("%s at stop %s: %s", v.Kind, v.StopID, v.Detail)
}

// Insertion is the outcome of adding stops to an existing route.
type Insertion struct {
	Stops   []Stop  `json:"stops"`
	Index   int     `json:"index"`
	AddedKm float64 `json:"added_km"`
}
