// README: Route optimizer: nearest-neighbor construction, 2-opt improvement, precedence repair.
package routing

import (
	"math"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

// TotalRouteDistanceFromStart sums straight-line legs from start through
// every stop. Optimization compares these raw distances; reports apply the
// winding factor afterwards.
func TotalRouteDistanceFromStart(start types.Point, stops []Stop) float64 {
	total := 0.0
	prev := start
	for _, s := range stops {
		total += geo.HaversineKm(prev, s.Location)
		prev = s.Location
	}
	return total
}

// NearestNeighbor orders stops greedily by distance from the current
// position. Ties go to the lower stop ID so the result is deterministic.
func NearestNeighbor(start types.Point, stops []Stop) []Stop {
	remaining := append([]Stop(nil), stops...)
	out := make([]Stop, 0, len(stops))
	cur := start
	for len(remaining) > 0 {
		best := -1
		bestDist := math.Inf(1)
		for i, s := range remaining {
			d := geo.HaversineKm(cur, s.Location)
			if d < bestDist || (d == bestDist && s.ID < remaining[best].ID) {
				best, bestDist = i, d
			}
		}
		out = append(out, remaining[best])
		cur = remaining[best].Location
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out
}

// ReverseSegment returns a copy of stops with [i..j] reversed.
func ReverseSegment(stops []Stop, i, j int) []Stop {
	out := append([]Stop(nil), stops...)
	for ; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// TwoOptImprove reverses segments while doing so shortens the route by more
// than cfg.MinImprovementKm. It stops after a full pass with no improving
// move or after cfg.MaxIterations passes, and returns the number of passes.
func TwoOptImprove(start types.Point, stops []Stop, cfg Config) ([]Stop, int) {
	best := append([]Stop(nil), stops...)
	if len(best) < 3 {
		return best, 0
	}
	bestDist := TotalRouteDistanceFromStart(start, best)
	passes := 0
	for improved := true; improved && passes < cfg.MaxIterations; {
		improved = false
		passes++
		for i := 0; i < len(best)-1; i++ {
			for j := i + 1; j < len(best); j++ {
				candidate := ReverseSegment(best, i, j)
				d := TotalRouteDistanceFromStart(start, candidate)
				if bestDist-d > cfg.MinImprovementKm {
					best, bestDist = candidate, d
					improved = true
				}
			}
		}
	}
	return best, passes
}

// RepairPrecedence moves each pickup found after its dropoff to the slot
// just before that dropoff. It reports whether anything moved. Moving a
// pickup earlier never breaks another pair, so maxPasses is only a guard.
func RepairPrecedence(stops []Stop, maxPasses int) ([]Stop, bool) {
	out := append([]Stop(nil), stops...)
	repaired := false
	for pass := 0; pass < maxPasses; pass++ {
		pi, di := firstPrecedenceViolation(out)
		if pi < 0 {
			break
		}
		pickup := out[pi]
		out = append(out[:pi], out[pi+1:]...)
		out = append(out[:di], append([]Stop{pickup}, out[di:]...)...)
		repaired = true
	}
	return out, repaired
}

// firstPrecedenceViolation returns the pickup and dropoff indexes of the
// first order whose dropoff precedes its pickup, or -1, -1.
func firstPrecedenceViolation(stops []Stop) (int, int) {
	dropoffAt := make(map[types.ID]int)
	for i, s := range stops {
		switch s.Type {
		case StopDropoff:
			if _, seen := dropoffAt[s.OrderID]; !seen {
				dropoffAt[s.OrderID] = i
			}
		case StopPickup:
			if di, ok := dropoffAt[s.OrderID]; ok {
				return i, di
			}
		}
	}
	return -1, -1
}

// OptimizeRoute orders stops for a driver at start. The naive input order
// is kept when it already satisfies precedence and is no longer than the
// optimized one.
func OptimizeRoute(start types.Point, stops []Stop, cfg Config) (OptimizedRoute, error) {
	if err := start.Validate(); err != nil {
		return OptimizedRoute{}, err
	}
	for _, s := range stops {
		if err := s.validate(); err != nil {
			return OptimizedRoute{}, err
		}
	}
	if len(stops) == 0 {
		return OptimizedRoute{Stops: []Stop{}}, nil
	}

	naive := append([]Stop(nil), stops...)
	naiveRaw := TotalRouteDistanceFromStart(start, naive)

	improved, passes := TwoOptImprove(start, NearestNeighbor(start, stops), cfg)
	ordered, repaired := RepairPrecedence(improved, cfg.MaxRepairPasses)
	raw := TotalRouteDistanceFromStart(start, ordered)

	if pi, _ := firstPrecedenceViolation(naive); pi < 0 && naiveRaw <= raw {
		ordered, raw, repaired = naive, naiveRaw, false
	}

	total := raw * geo.WindingFactor
	naiveKm := naiveRaw * geo.WindingFactor
	return OptimizedRoute{
		Stops:            ordered,
		TotalDistanceKm:  round2(total),
		TotalTimeMinutes: round1(travelMinutes(total, cfg) + cfg.ServiceMinutes*float64(len(ordered))),
		NaiveDistanceKm:  round2(naiveKm),
		SavingsKm:        round2(math.Max(0, naiveKm-total)),
		Iterations:       passes,
		Repaired:         repaired,
	}, nil
}

func travelMinutes(roadKm float64, cfg Config) float64 {
	if cfg.AvgSpeedKmh <= 0 {
		return 0
	}
	return roadKm / cfg.AvgSpeedKmh * 60
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
