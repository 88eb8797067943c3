package routing

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"tawsil/internal/types"
)

var start = types.Point{Lat: 33.5731, Lng: -7.5898}

func pt(dLat, dLng float64) types.Point {
	return types.Point{Lat: start.Lat + dLat, Lng: start.Lng + dLng}
}

func assertPrecedence(t *testing.T, stops []Stop) {
	t.Helper()
	pickupAt := map[types.ID]int{}
	for i, s := range stops {
		if s.Type == StopPickup {
			pickupAt[s.OrderID] = i
		}
	}
	for i, s := range stops {
		if s.Type != StopDropoff {
			continue
		}
		if pi, ok := pickupAt[s.OrderID]; ok && pi > i {
			t.Fatalf("order %s: pickup at %d after dropoff at %d (%v)", s.OrderID, pi, i, ids(stops))
		}
	}
}

func ids(stops []Stop) []string {
	out := make([]string, len(stops))
	for i, s := range stops {
		out[i] = s.ID
	}
	return out
}

// The dropoff sits right next to the driver while its pickup is far away,
// so nearest-neighbor visits the dropoff first.
func TestOptimizeRouteRepairsAdversarialOrder(t *testing.T) {
	stops := []Stop{
		{ID: "a-pick", Location: pt(0.03, 0), Type: StopPickup, OrderID: "A"},
		{ID: "a-drop", Location: pt(0.001, 0), Type: StopDropoff, OrderID: "A"},
		{ID: "b-pick", Location: pt(0.01, 0.01), Type: StopPickup, OrderID: "B"},
	}
	if nn := NearestNeighbor(start, stops); nn[0].ID != "a-drop" {
		t.Fatalf("expected nearest-neighbor to start with a-drop, got %v", ids(nn))
	}

	r, err := OptimizeRoute(start, stops, DefaultConfig())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(r.Stops) != 3 {
		t.Fatalf("expected 3 stops, got %v", ids(r.Stops))
	}
	assertPrecedence(t, r.Stops)
	if r.TotalDistanceKm <= 0 || r.TotalTimeMinutes <= 0 {
		t.Fatalf("expected positive totals, got %+v", r)
	}
}

func TestOptimizeRouteKeepsShorterNaiveOrder(t *testing.T) {
	stops := []Stop{
		{ID: "p1", Location: pt(0.01, 0), Type: StopPickup, OrderID: "A"},
		{ID: "d1", Location: pt(0.02, 0), Type: StopDropoff, OrderID: "A"},
	}
	r, err := OptimizeRoute(start, stops, DefaultConfig())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if r.Stops[0].ID != "p1" || r.SavingsKm != 0 || r.Repaired {
		t.Fatalf("unexpected route %+v", r)
	}
	if r.TotalDistanceKm != r.NaiveDistanceKm {
		t.Fatalf("total %v != naive %v", r.TotalDistanceKm, r.NaiveDistanceKm)
	}
}

func TestOptimizeRouteReportsSavings(t *testing.T) {
	// zig-zag input
	stops := []Stop{
		{ID: "s1", Location: pt(0.01, 0), Type: StopDropoff},
		{ID: "s2", Location: pt(0.04, 0), Type: StopDropoff},
		{ID: "s3", Location: pt(0.02, 0), Type: StopDropoff},
		{ID: "s4", Location: pt(0.05, 0), Type: StopDropoff},
		{ID: "s5", Location: pt(0.03, 0), Type: StopDropoff},
	}
	r, err := OptimizeRoute(start, stops, DefaultConfig())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	want := []string{"s1", "s3", "s5", "s2", "s4"}
	for i, id := range want {
		if r.Stops[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(r.Stops), want)
		}
	}
	if r.SavingsKm <= 0 || r.TotalDistanceKm >= r.NaiveDistanceKm {
		t.Fatalf("expected savings, got %+v", r)
	}
}

func TestOptimizeRouteValidation(t *testing.T) {
	_, err := OptimizeRoute(start, []Stop{{ID: "x", Location: types.Point{Lat: 95}, Type: StopPickup}}, DefaultConfig())
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	r, err := OptimizeRoute(start, nil, DefaultConfig())
	if err != nil || len(r.Stops) != 0 {
		t.Fatalf("empty input: %+v, %v", r, err)
	}
}

func TestTwoOptNeverRegresses(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cfg := DefaultConfig()
	for trial := 0; trial < 50; trial++ {
		n := 3 + rng.Intn(6)
		stops := make([]Stop, n)
		for i := range stops {
			stops[i] = Stop{
				ID:       string(rune('a' + i)),
				Location: pt(rng.Float64()*0.05-0.025, rng.Float64()*0.05-0.025),
				Type:     StopDropoff,
			}
		}
		before := TotalRouteDistanceFromStart(start, stops)
		improved, _ := TwoOptImprove(start, stops, cfg)
		after := TotalRouteDistanceFromStart(start, improved)
		if after > before+1e-9 {
			t.Fatalf("trial %d: 2-opt regressed %v -> %v", trial, before, after)
		}
		if len(improved) != n {
			t.Fatalf("trial %d: lost stops", trial)
		}
	}
}

func TestReverseSegmentCopies(t *testing.T) {
	in := []Stop{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	out := ReverseSegment(in, 1, 3)
	if got := ids(out); got[0] != "a" || got[1] != "d" || got[2] != "c" || got[3] != "b" {
		t.Fatalf("reverse = %v", got)
	}
	if in[1].ID != "b" {
		t.Fatal("input modified")
	}
}

func TestRepairPrecedence(t *testing.T) {
	in := []Stop{
		{ID: "d1", Type: StopDropoff, OrderID: "A"},
		{ID: "d2", Type: StopDropoff, OrderID: "B"},
		{ID: "p2", Type: StopPickup, OrderID: "B"},
		{ID: "p1", Type: StopPickup, OrderID: "A"},
	}
	out, repaired := RepairPrecedence(in, 10)
	if !repaired {
		t.Fatal("expected repair")
	}
	assertPrecedence(t, out)
	if len(out) != 4 {
		t.Fatalf("lost stops: %v", ids(out))
	}
}

func TestValidateRouteConstraints(t *testing.T) {
	depart := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.MaxTotalDistanceKm = 1

	stops := []Stop{
		{ID: "d1", Location: pt(0.02, 0), Type: StopDropoff, OrderID: "A",
			TimeWindow: &TimeWindow{Start: depart, End: depart.Add(time.Minute)}},
		{ID: "p1", Location: pt(0.01, 0), Type: StopPickup, OrderID: "A"},
	}
	got := ValidateRouteConstraints(start, stops, depart, cfg)

	kinds := map[ViolationKind]bool{}
	for _, v := range got {
		kinds[v.Kind] = true
		if v.Error() == "" {
			t.Fatal("empty violation message")
		}
	}
	for _, k := range []ViolationKind{ViolationPrecedence, ViolationTimeWindow, ViolationMaxDistance} {
		if !kinds[k] {
			t.Errorf("missing %s violation in %+v", k, got)
		}
	}

	ok := []Stop{
		{ID: "p1", Location: pt(0.001, 0), Type: StopPickup, OrderID: "A"},
		{ID: "d1", Location: pt(0.002, 0), Type: StopDropoff, OrderID: "A",
			TimeWindow: &TimeWindow{Start: depart, End: depart.Add(time.Hour)}},
	}
	if v := ValidateRouteConstraints(start, ok, depart, cfg); len(v) != 0 {
		t.Fatalf("expected no violations, got %+v", v)
	}
}

func TestFindBestInsertionHonorsPrecedence(t *testing.T) {
	route := []Stop{
		{ID: "p1", Location: pt(0.02, 0), Type: StopPickup, OrderID: "A"},
		{ID: "d2", Location: pt(0.03, 0), Type: StopDropoff, OrderID: "B"},
	}
	// Closest slot is first, but the pickup for A is at index 0.
	drop := Stop{ID: "d1", Location: pt(0.001, 0), Type: StopDropoff, OrderID: "A"}
	ins, err := FindBestInsertion(start, route, drop)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ins.Index < 1 {
		t.Fatalf("dropoff inserted before its pickup at %d", ins.Index)
	}
	assertPrecedence(t, ins.Stops)

	mid := Stop{ID: "x", Location: pt(0.025, 0), Type: StopDropoff, OrderID: "C"}
	ins, err = FindBestInsertion(start, route, mid)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ins.Index != 1 || ins.AddedKm > 0.01 {
		t.Fatalf("expected zero-cost insertion at 1, got %d (+%v km)", ins.Index, ins.AddedKm)
	}
}

func TestInsertOrderPair(t *testing.T) {
	route := []Stop{
		{ID: "p1", Location: pt(0.01, 0), Type: StopPickup, OrderID: "A"},
		{ID: "d1", Location: pt(0.04, 0), Type: StopDropoff, OrderID: "A"},
	}
	ins, err := InsertOrderPair(start, route,
		Stop{ID: "p2", Location: pt(0.02, 0), Type: StopPickup, OrderID: "B"},
		Stop{ID: "d2", Location: pt(0.03, 0), Type: StopDropoff, OrderID: "B"},
	)
	if err != nil {
		t.Fatalf("insert pair: %v", err)
	}
	want := []string{"p1", "p2", "d2", "d1"}
	for i, id := range want {
		if ins.Stops[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(ins.Stops), want)
		}
	}

	_, err = InsertOrderPair(start, route,
		Stop{ID: "p3", Location: pt(0.02, 0), Type: StopPickup, OrderID: "C"},
		Stop{ID: "d3", Location: pt(0.03, 0), Type: StopDropoff, OrderID: "D"},
	)
	if err == nil {
		t.Fatal("expected error for mismatched order ids")
	}
}

func TestPlanMultiStopRoute(t *testing.T) {
	var stops []Stop
	for i, d := range []float64{0.04, 0.01, 0.03, 0.02} {
		order := types.ID(string(rune('A' + i)))
		stops = append(stops,
			Stop{ID: string(order) + "-p", Location: pt(d, 0), Type: StopPickup, OrderID: order},
			Stop{ID: string(order) + "-d", Location: pt(d, 0.01), Type: StopDropoff, OrderID: order},
		)
	}
	routes, err := PlanMultiStopRoute(start, stops, 4, DefaultConfig())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	first := map[types.ID]bool{}
	for _, s := range routes[0].Stops {
		first[s.OrderID] = true
	}
	// B (0.01) and D (0.02) are nearest.
	if !first["B"] || !first["D"] || len(routes[0].Stops) != 4 {
		t.Fatalf("first route should hold the nearest orders, got %v", ids(routes[0].Stops))
	}
	for _, r := range routes {
		assertPrecedence(t, r.Stops)
	}

	if _, err := PlanMultiStopRoute(start, stops, 1, DefaultConfig()); err == nil {
		t.Fatal("expected error for max_stops < 2")
	}
}
