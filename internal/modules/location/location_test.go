package location

import (
	"errors"
	"testing"
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

var (
	restaurant = types.Point{Lat: 33.5731, Lng: -7.5898}
	t0         = time.Date(2026, 3, 6, 13, 0, 0, 0, time.UTC)
)

func kmNorth(p types.Point, km float64) types.Point {
	return types.Point{Lat: p.Lat + km/111.2, Lng: p.Lng}
}

func TestIsPointInGeofence(t *testing.T) {
	zone := Zone{Name: "restaurant", Type: ZonePickup, Circle: geo.Circle{Center: restaurant, RadiusKm: 0.15}}
	if !IsPointInGeofence(restaurant, zone) {
		t.Fatal("driver at the restaurant must be inside the pickup zone")
	}
	if IsPointInGeofence(kmNorth(restaurant, 1), zone) {
		t.Fatal("driver 1km away must be outside the pickup zone")
	}
}

func TestZonesContaining(t *testing.T) {
	zones := []Zone{
		{Name: "casablanca", Type: ZoneCity, Circle: geo.Circle{Center: restaurant, RadiusKm: 20}},
		{Name: "pickup", Type: ZonePickup, Circle: geo.Circle{Center: restaurant, RadiusKm: 0.15}},
		{Name: "far", Type: ZoneDropoff, Circle: geo.Circle{Center: kmNorth(restaurant, 5), RadiusKm: 0.2}},
	}
	got := ZonesContaining(kmNorth(restaurant, 0.5), zones)
	if len(got) != 1 || got[0].Name != "casablanca" {
		t.Fatalf("unexpected zones: %+v", got)
	}
}

func TestDetectGeofenceEvents(t *testing.T) {
	zones := []Zone{
		{Name: "pickup", Type: ZonePickup, Circle: geo.Circle{Center: restaurant, RadiusKm: 0.15}},
	}
	outside := kmNorth(restaurant, 1)

	ev := DetectGeofenceEvents(&outside, restaurant, zones)
	if len(ev) != 1 || ev[0].Event != GeofenceEntry {
		t.Fatalf("expected entry, got %+v", ev)
	}
	ev = DetectGeofenceEvents(&restaurant, outside, zones)
	if len(ev) != 1 || ev[0].Event != GeofenceExit {
		t.Fatalf("expected exit, got %+v", ev)
	}
	if ev := DetectGeofenceEvents(&restaurant, restaurant, zones); len(ev) != 0 {
		t.Fatalf("expected no events, got %+v", ev)
	}
	if ev := DetectGeofenceEvents(nil, restaurant, zones); len(ev) != 1 {
		t.Fatalf("first fix inside a zone is an entry, got %+v", ev)
	}
}

func TestBatchUpdateLocationsKeepsLatest(t *testing.T) {
	updates := []Update{
		{DriverID: "b", Position: restaurant, Timestamp: t0.Add(2 * time.Second)},
		{DriverID: "a", Position: kmNorth(restaurant, 1), Timestamp: t0.Add(5 * time.Second)},
		{DriverID: "a", Position: kmNorth(restaurant, 2), Timestamp: t0.Add(9 * time.Second)},
		{DriverID: "a", Position: kmNorth(restaurant, 3), Timestamp: t0.Add(7 * time.Second)},
		{DriverID: "a", Position: kmNorth(restaurant, 2), Timestamp: t0.Add(9 * time.Second)},
	}
	got, err := BatchUpdateLocations(updates)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(got))
	}
	if got[0].DriverID != "a" || !got[0].Timestamp.Equal(t0.Add(9*time.Second)) {
		t.Fatalf("driver a kept wrong update: %+v", got[0])
	}
	if got[1].DriverID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestBatchUpdateLocationsAllOrNothing(t *testing.T) {
	bad := 140
	cases := map[string][]Update{
		"bad coordinate": {
			{DriverID: "a", Position: restaurant, Timestamp: t0},
			{DriverID: "b", Position: types.Point{Lat: 95, Lng: 0}, Timestamp: t0},
		},
		"missing driver": {{Position: restaurant, Timestamp: t0}},
		"zero timestamp": {{DriverID: "a", Position: restaurant}},
		"battery":        {{DriverID: "a", Position: restaurant, Timestamp: t0, BatteryPct: &bad}},
	}
	for name, updates := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := BatchUpdateLocations(updates)
			var ve *types.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if got != nil {
				t.Fatalf("nothing may be returned on error, got %+v", got)
			}
		})
	}
}

func TestDetectStationary(t *testing.T) {
	var still []Update
	for i := 0; i <= 12; i++ {
		still = append(still, Update{DriverID: "a", Position: restaurant, Timestamp: t0.Add(time.Duration(i) * time.Minute)})
	}
	if !DetectStationary(still, 0.05, 10*time.Minute) {
		t.Fatal("12 minutes at the same spot must be stationary")
	}
	if DetectStationary(still[:5], 0.05, 10*time.Minute) {
		t.Fatal("4 minutes is below the threshold")
	}

	moving := append([]Update{}, still...)
	moving[10].Position = kmNorth(restaurant, 1)
	if DetectStationary(moving, 0.05, 10*time.Minute) {
		t.Fatal("a recent move resets the stationary window")
	}
	if DetectStationary(nil, 0.05, time.Minute) {
		t.Fatal("empty history is not stationary")
	}
}

func TestIsLowBattery(t *testing.T) {
	low, ok := 12, 60
	if !IsLowBattery(&low, 15) || IsLowBattery(&ok, 15) || IsLowBattery(nil, 15) {
		t.Fatal("unexpected low battery classification")
	}
}
