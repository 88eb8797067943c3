// README: ETA engine: per-leg travel time and whole-trip predictions with confidence.
package eta

import (
	"errors"
	"math"
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/modules/delivery"
	"tawsil/internal/types"
)

// ErrNoRemainingLegs is returned for deliveries that already ended.
var ErrNoRemainingLegs = errors.New("delivery has no remaining legs")

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{cfg: cfg}
}

// Profile returns the profile for city, falling back to the default city.
func (e *Engine) Profile(city string) CityProfile {
	if p, ok := e.cfg.Profiles[city]; ok {
		return p
	}
	return e.cfg.Profiles[e.cfg.DefaultCity]
}

// IsPeak reports whether at falls inside one of the profile's peak windows.
func (e *Engine) IsPeak(p CityProfile, at time.Time) bool {
	hour := at.In(e.cfg.Location).Hour()
	for _, r := range p.PeakHours {
		if r.Contains(hour) {
			return true
		}
	}
	return false
}

// TimeMultiplier is the combined slowdown for a leg. Peak and dense-zone
// multipliers compound.
func (e *Engine) TimeMultiplier(p CityProfile, at time.Time, from, to types.Point) float64 {
	m := 1.0
	if e.IsPeak(p, at) && p.PeakMultiplier > 0 {
		m *= p.PeakMultiplier
	}
	if inDenseZone(p, from) || inDenseZone(p, to) {
		if p.DenseZoneMultiplier > 0 {
			m *= p.DenseZoneMultiplier
		}
	}
	return m
}

// TravelMinutes predicts driving time for one leg using road distance.
func (e *Engine) TravelMinutes(p CityProfile, from, to types.Point, at time.Time) float64 {
	if p.AvgSpeedKmh <= 0 {
		return 0
	}
	km := geo.RoadDistanceKm(from, to)
	return km / p.AvgSpeedKmh * 60 * e.TimeMultiplier(p, at, from, to)
}

// PredictETA estimates the remaining pickup, wait and delivery legs from the
// tracking's current status.
func (e *Engine) PredictETA(t delivery.Tracking, now time.Time) (Prediction, error) {
	if t.Status.Terminal() {
		return Prediction{}, ErrNoRemainingLegs
	}
	p := e.Profile(t.City)
	pred := Prediction{DeliveryID: t.ID, UsedDriverLocation: t.DriverLocation != nil}
	penalty := 0.0

	switch t.Status {
	case delivery.StatusPending, delivery.StatusAssigned, delivery.StatusPickingUp:
		if t.DriverLocation != nil {
			pred.PickupMinutes = e.TravelMinutes(p, *t.DriverLocation, t.PickupLocation, now)
			pred.RemainingKm += geo.RoadDistanceKm(*t.DriverLocation, t.PickupLocation)
		} else {
			pred.PickupMinutes = e.cfg.DefaultPickupMin
			penalty = e.cfg.NoLocationPenalty
		}
		pred.WaitMinutes = e.cfg.RestaurantWaitMin
		legStart := now.Add(minutes(pred.PickupMinutes + pred.WaitMinutes))
		pred.DeliveryMinutes = e.TravelMinutes(p, t.PickupLocation, t.DropoffLocation, legStart)
		pred.RemainingKm += geo.RoadDistanceKm(t.PickupLocation, t.DropoffLocation)

	case delivery.StatusAtRestaurant:
		pred.WaitMinutes = e.cfg.RestaurantWaitMin
		legStart := now.Add(minutes(pred.WaitMinutes))
		pred.DeliveryMinutes = e.TravelMinutes(p, t.PickupLocation, t.DropoffLocation, legStart)
		pred.RemainingKm = geo.RoadDistanceKm(t.PickupLocation, t.DropoffLocation)

	case delivery.StatusPickedUp, delivery.StatusDelivering:
		from := t.PickupLocation
		if t.DriverLocation != nil {
			from = *t.DriverLocation
		} else {
			penalty = e.cfg.NoLocationPenalty
		}
		pred.DeliveryMinutes = e.TravelMinutes(p, from, t.DropoffLocation, now)
		pred.RemainingKm = geo.RoadDistanceKm(from, t.DropoffLocation)

	case delivery.StatusAtDropoff:
		// Nothing left to drive.
	}

	pred.TotalMinutes = round1(pred.PickupMinutes + pred.WaitMinutes + pred.DeliveryMinutes)
	pred.PickupMinutes = round1(pred.PickupMinutes)
	pred.DeliveryMinutes = round1(pred.DeliveryMinutes)
	pred.RemainingKm = math.Round(pred.RemainingKm*100) / 100
	pred.Confidence = e.confidence(pred.RemainingKm, penalty)
	pred.EstimatedPickupAt = now.Add(minutes(pred.PickupMinutes))
	if t.ActualPickupTime != nil {
		pred.EstimatedPickupAt = *t.ActualPickupTime
	}
	pred.EstimatedDeliveryAt = now.Add(minutes(pred.TotalMinutes))
	return pred, nil
}

// ApplyPrediction stamps the predicted times onto the tracking.
func ApplyPrediction(t delivery.Tracking, pred Prediction) delivery.Tracking {
	pickupAt := pred.EstimatedPickupAt
	deliveryAt := pred.EstimatedDeliveryAt
	return delivery.WithEstimates(t, &pickupAt, &deliveryAt)
}

// confidence decays linearly with remaining distance from the baseline and
// never drops below the configured floor.
func (e *Engine) confidence(remainingKm, penalty float64) float64 {
	c := e.cfg.BaseConfidence - e.cfg.ConfidenceDecayPerKm*remainingKm - penalty
	if c < e.cfg.MinConfidence {
		c = e.cfg.MinConfidence
	}
	return math.Round(c*100) / 100
}

func inDenseZone(p CityProfile, pt types.Point) bool {
	for _, z := range p.DenseZones {
		if z.Contains(pt) {
			return true
		}
	}
	return false
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
