// README: State machine tests (transition table, purity, milestone stamps).
package delivery

import (
	"errors"
	"strings"
	"testing"
	"time"

	"tawsil/internal/types"
)

var (
	t0      = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	pickup  = types.Point{Lat: 33.5731, Lng: -7.5898}
	dropoff = types.Point{Lat: 33.5890, Lng: -7.6030}
)

// TestCanTransition verifies the state machine transition table without a database.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusPending, StatusAssigned, true},
		{StatusAssigned, StatusPickingUp, true},
		{StatusPickingUp, StatusAtRestaurant, true},
		{StatusAtRestaurant, StatusPickedUp, true},
		{StatusPickedUp, StatusDelivering, true},
		{StatusDelivering, StatusAtDropoff, true},
		{StatusAtDropoff, StatusDelivered, true},
		// reassignment and cancellation before pickup
		{StatusAssigned, StatusPending, true},
		{StatusPending, StatusCancelled, true},
		{StatusAtRestaurant, StatusCancelled, true},
		// failure once the driver is moving
		{StatusDelivering, StatusFailed, true},
		// invalid: no cancelling with food on board
		{StatusPickedUp, StatusCancelled, false},
		{StatusDelivering, StatusCancelled, false},
		// invalid: terminal states have no outgoing transitions
		{StatusDelivered, StatusPickingUp, false},
		{StatusCancelled, StatusPending, false},
		{StatusFailed, StatusAssigned, false},
		// invalid: skipping states
		{StatusPending, StatusPickedUp, false},
		{StatusAssigned, StatusDelivered, false},
		// unknown source
		{Status("lost"), StatusPending, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionTableIsTotal(t *testing.T) {
	for _, s := range AllStatuses {
		if _, ok := AllowedTransitions[s]; !ok {
			t.Errorf("status %s has no entry in the transition table", s)
		}
	}
	for _, s := range []Status{StatusDelivered, StatusCancelled, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

// TestTransitionClosure checks every (from, to) pair: exactly the declared
// successors succeed and everything else yields a StateError.
func TestTransitionClosure(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			tr := newTracking(t)
			tr.Status = from
			_, err := TransitionStatus(tr, to, "test", t0)
			if CanTransition(from, to) {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
				}
				continue
			}
			var se *StateError
			if !errors.As(err, &se) {
				t.Errorf("%s -> %s: expected StateError, got %v", from, to, err)
			}
		}
	}
}

func TestTransitionIllegalFromDelivered(t *testing.T) {
	tr := newTracking(t)
	tr.Status = StatusDelivered
	_, err := TransitionStatus(tr, StatusPickingUp, "retry", t0)
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if !strings.Contains(err.Error(), "delivered -> picking_up") {
		t.Fatalf("error %q must name the illegal pair", err)
	}
}

func TestTransitionValidation(t *testing.T) {
	tr := newTracking(t)
	var ve *types.ValidationError
	if _, err := TransitionStatus(tr, StatusAssigned, "  ", t0); !errors.As(err, &ve) {
		t.Fatalf("empty reason: expected ValidationError, got %v", err)
	}
	if _, err := TransitionStatus(tr, Status("teleported"), "x", t0); !errors.As(err, &ve) {
		t.Fatalf("unknown status: expected ValidationError, got %v", err)
	}
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	tr := newTracking(t)
	next, err := TransitionStatus(tr, StatusAssigned, "driver found", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if tr.Status != StatusPending || len(tr.StatusHistory) != 0 || !tr.LastUpdate.Equal(t0) {
		t.Fatalf("input tracking mutated: %+v", tr)
	}
	if next.Status != StatusAssigned || len(next.StatusHistory) != 1 {
		t.Fatalf("unexpected result: %+v", next)
	}
	h := next.StatusHistory[0]
	if h.From != StatusPending || h.To != StatusAssigned || h.Reason != "driver found" || !h.Timestamp.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected history record: %+v", h)
	}

	// Branching from the same parent must not share backing arrays.
	a, _ := TransitionStatus(next, StatusPickingUp, "a", t0)
	b, _ := TransitionStatus(next, StatusCancelled, "b", t0)
	if a.StatusHistory[1].To != StatusPickingUp || b.StatusHistory[1].To != StatusCancelled {
		t.Fatalf("history slices alias each other")
	}
}

func TestTransitionStampsMilestones(t *testing.T) {
	tr := newTracking(t)
	path := []Status{StatusAssigned, StatusPickingUp, StatusAtRestaurant, StatusPickedUp, StatusDelivering, StatusAtDropoff, StatusDelivered}
	var err error
	for i, s := range path {
		tr, err = TransitionStatus(tr, s, "flow", t0.Add(time.Duration(i+1)*time.Minute))
		if err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if tr.ActualPickupTime == nil || !tr.ActualPickupTime.Equal(t0.Add(4*time.Minute)) {
		t.Errorf("actual pickup time = %v", tr.ActualPickupTime)
	}
	if tr.ActualDeliveryTime == nil || !tr.ActualDeliveryTime.Equal(t0.Add(7*time.Minute)) {
		t.Errorf("actual delivery time = %v", tr.ActualDeliveryTime)
	}
	if len(tr.StatusHistory) != len(path) {
		t.Errorf("history length = %d, want %d", len(tr.StatusHistory), len(path))
	}
	if !tr.LastUpdate.Equal(t0.Add(7 * time.Minute)) {
		t.Errorf("last update = %v", tr.LastUpdate)
	}
}

func TestNewTrackingValidatesCoordinates(t *testing.T) {
	_, err := NewTracking("d1", "o1", "casablanca", types.Point{Lat: 123, Lng: 0}, dropoff, t0)
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAssignDriver(t *testing.T) {
	tr, err := AssignDriver(newTracking(t), "drv-7", t0)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if tr.Status != StatusAssigned || tr.DriverID == nil || *tr.DriverID != "drv-7" {
		t.Fatalf("unexpected tracking: %+v", tr)
	}
}

func newTracking(t *testing.T) Tracking {
	t.Helper()
	tr, err := NewTracking("d1", "o1", "casablanca", pickup, dropoff, t0)
	if err != nil {
		t.Fatalf("new tracking: %v", err)
	}
	return tr
}
