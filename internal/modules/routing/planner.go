package routing

import (
	"sort"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

type orderGroup struct {
	key   string
	stops []Stop
	dist  float64
}

// PlanMultiStopRoute splits stops into routes of at most maxStops each.
// An order's pickup and dropoff always land in the same route, and orders
// are assigned nearest-first from start.
func PlanMultiStopRoute(start types.Point, stops []Stop, maxStops int, cfg Config) ([]OptimizedRoute, error) {
	if maxStops < 2 {
		return nil, types.Invalid("max_stops", "must be at least 2, got %d", maxStops)
	}
	if err := start.Validate(); err != nil {
		return nil, err
	}

	groups := groupByOrder(stops)
	for i := range groups {
		anchor := groups[i].stops[0]
		for _, s := range groups[i].stops {
			if s.Type == StopPickup {
				anchor = s
				break
			}
		}
		if err := anchor.validate(); err != nil {
			return nil, err
		}
		groups[i].dist = geo.HaversineKm(start, anchor.Location)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].dist != groups[j].dist {
			return groups[i].dist < groups[j].dist
		}
		return groups[i].key < groups[j].key
	})

	var batches [][]Stop
	var cur []Stop
	for _, g := range groups {
		if len(g.stops) > maxStops {
			return nil, types.Invalid("stops", "order %s has %d stops, more than max_stops %d", g.key, len(g.stops), maxStops)
		}
		if len(cur)+len(g.stops) > maxStops {
			batches = append(batches, cur)
			cur = nil
		}
		cur = append(cur, g.stops...)
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}

	routes := make([]OptimizedRoute, 0, len(batches))
	for _, b := range batches {
		r, err := OptimizeRoute(start, b, cfg)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// groupByOrder keeps input order within a group. Stops without an order ID
// form their own group.
func groupByOrder(stops []Stop) []orderGroup {
	index := make(map[string]int)
	var groups []orderGroup
	for _, s := range stops {
		key := string(s.OrderID)
		if key == "" {
			key = "stop:" + s.ID
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, orderGroup{key: key})
		}
		groups[i].stops = append(groups[i].stops, s)
	}
	return groups
}
