package routing

import (
	"fmt"
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

// ValidateRouteConstraints checks precedence, time windows and the optional
// total distance cap for a route departing start at departAt. Every problem
// is reported; nothing is corrected here.
func ValidateRouteConstraints(start types.Point, stops []Stop, departAt time.Time, cfg Config) []ConstraintViolation {
	var out []ConstraintViolation

	pickupAt := make(map[types.ID]int)
	dropoffAt := make(map[types.ID]int)
	for i, s := range stops {
		switch s.Type {
		case StopPickup:
			if _, ok := pickupAt[s.OrderID]; !ok {
				pickupAt[s.OrderID] = i
			}
		case StopDropoff:
			if _, ok := dropoffAt[s.OrderID]; !ok {
				dropoffAt[s.OrderID] = i
			}
		}
	}
	for i, s := range stops {
		if s.Type != StopDropoff {
			continue
		}
		if pi, ok := pickupAt[s.OrderID]; ok && pi > i {
			out = append(out, ConstraintViolation{
				Kind:    ViolationPrecedence,
				StopID:  s.ID,
				OrderID: s.OrderID,
				Detail:  fmt.Sprintf("dropoff at position %d precedes pickup at position %d", i, pi),
			})
		}
	}

	clock := departAt
	prev := start
	roadKm := 0.0
	for _, s := range stops {
		leg := geo.RoadDistanceKm(prev, s.Location)
		roadKm += leg
		clock = clock.Add(minutes(travelMinutes(leg, cfg)))
		if w := s.TimeWindow; w != nil {
			if clock.Before(w.Start) {
				clock = w.Start
			}
			if clock.After(w.End) {
				out = append(out, ConstraintViolation{
					Kind:    ViolationTimeWindow,
					StopID:  s.ID,
					OrderID: s.OrderID,
					Detail:  fmt.Sprintf("arrives %s after window end %s", clock.Sub(w.End).Round(time.Second), w.End.Format(time.RFC3339)),
				})
			}
		}
		clock = clock.Add(minutes(cfg.ServiceMinutes))
		prev = s.Location
	}

	if cfg.MaxTotalDistanceKm > 0 && roadKm > cfg.MaxTotalDistanceKm {
		out = append(out, ConstraintViolation{
			Kind:   ViolationMaxDistance,
			Detail: fmt.Sprintf("route is %.2f km, limit %.2f km", roadKm, cfg.MaxTotalDistanceKm),
		})
	}
	return out
}

// FindBestInsertion places stop at the index of route that adds the least
// distance while keeping its order's pickup before its dropoff.
func FindBestInsertion(start types.Point, route []Stop, stop Stop) (Insertion, error) {
	if err := stop.validate(); err != nil {
		return Insertion{}, err
	}
	lo, hi := 0, len(route)
	for i, s := range route {
		if s.OrderID != stop.OrderID || s.Type == stop.Type {
			continue
		}
		if stop.Type == StopDropoff && i+1 > lo {
			lo = i + 1
		}
		if stop.Type == StopPickup && i < hi {
			hi = i
		}
	}
	if lo > hi {
		return Insertion{}, types.Invalid("stop", "no position satisfies ordering for order %s", stop.OrderID)
	}

	best := Insertion{Index: -1}
	for idx := lo; idx <= hi; idx++ {
		added := insertionCost(start, route, idx, stop.Location)
		if best.Index < 0 || added < best.AddedKm {
			best.Index, best.AddedKm = idx, added
		}
	}
	best.Stops = insertAt(route, best.Index, stop)
	best.AddedKm = round2(best.AddedKm * geo.WindingFactor)
	return best, nil
}

// InsertOrderPair inserts a pickup and its dropoff together, trying every
// pair of positions with the pickup first.
func InsertOrderPair(start types.Point, route []Stop, pickup, dropoff Stop) (Insertion, error) {
	if err := pickup.validate(); err != nil {
		return Insertion{}, err
	}
	if err := dropoff.validate(); err != nil {
		return Insertion{}, err
	}
	if pickup.Type != StopPickup || dropoff.Type != StopDropoff || pickup.OrderID != dropoff.OrderID {
		return Insertion{}, types.Invalid("stops", "expected a pickup and dropoff for the same order")
	}

	base := TotalRouteDistanceFromStart(start, route)
	var best Insertion
	bestAdded := -1.0
	for i := 0; i <= len(route); i++ {
		withPickup := insertAt(route, i, pickup)
		for j := i + 1; j <= len(withPickup); j++ {
			candidate := insertAt(withPickup, j, dropoff)
			added := TotalRouteDistanceFromStart(start, candidate) - base
			if bestAdded < 0 || added < bestAdded {
				best = Insertion{Stops: candidate, Index: i}
				bestAdded = added
			}
		}
	}
	best.AddedKm = round2(bestAdded * geo.WindingFactor)
	return best, nil
}

// insertionCost is the raw distance added by putting p at route[idx].
func insertionCost(start types.Point, route []Stop, idx int, p types.Point) float64 {
	prev := start
	if idx > 0 {
		prev = route[idx-1].Location
	}
	if idx == len(route) {
		return geo.HaversineKm(prev, p)
	}
	next := route[idx].Location
	return geo.HaversineKm(prev, p) + geo.HaversineKm(p, next) - geo.HaversineKm(prev, next)
}

func insertAt(route []Stop, idx int, s Stop) []Stop {
	out := make([]Stop, 0, len(route)+1)
	out = append(out, route[:idx]...)
	out = append(out, s)
	return append(out, route[idx:]...)
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
