package delivery

import (
	"strings"
	"time"

	"tawsil/internal/types"
)

// NewTracking creates a pending tracking for an accepted order.
func NewTracking(id, orderID types.ID, city string, pickup, dropoff types.Point, now time.Time) (Tracking, error) {
	if id == "" {
		return Tracking{}, types.Invalid("id", "must not be empty")
	}
	if orderID == "" {
		return Tracking{}, types.Invalid("order_id", "must not be empty")
	}
	if err := pickup.Validate(); err != nil {
		return Tracking{}, err
	}
	if err := dropoff.Validate(); err != nil {
		return Tracking{}, err
	}
	return Tracking{
		ID:              id,
		OrderID:         orderID,
		City:            city,
		Status:          StatusPending,
		PickupLocation:  pickup,
		DropoffLocation: dropoff,
		StatusHistory:   []StatusTransition{},
		LastUpdate:      now,
	}, nil
}

// TransitionStatus applies one lifecycle edge and returns the new tracking.
// The input value, including its history slice, is left untouched.
func TransitionStatus(t Tracking, to Status, reason string, now time.Time) (Tracking, error) {
	if !to.Valid() {
		return Tracking{}, types.Invalid("status", "unknown status %q", to)
	}
	if strings.TrimSpace(reason) == "" {
		return Tracking{}, types.Invalid("reason", "must not be empty")
	}
	if !CanTransition(t.Status, to) {
		return Tracking{}, &StateError{From: t.Status, To: to}
	}

	next := t.clone()
	next.StatusHistory = append(next.StatusHistory, StatusTransition{
		From:      t.Status,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	})
	next.Status = to
	switch to {
	case StatusPickedUp:
		next.ActualPickupTime = timePtr(now)
	case StatusDelivered:
		next.ActualDeliveryTime = timePtr(now)
	}
	next.LastUpdate = now
	return next, nil
}

// AssignDriver moves a pending tracking to assigned with the given driver.
func AssignDriver(t Tracking, driverID types.ID, now time.Time) (Tracking, error) {
	if driverID == "" {
		return Tracking{}, types.Invalid("driver_id", "must not be empty")
	}
	next, err := TransitionStatus(t, StatusAssigned, "driver assigned", now)
	if err != nil {
		return Tracking{}, err
	}
	next.DriverID = &driverID
	return next, nil
}

// UpdateDriverLocation records the last known driver position.
func UpdateDriverLocation(t Tracking, p types.Point, now time.Time) (Tracking, error) {
	if err := p.Validate(); err != nil {
		return Tracking{}, err
	}
	next := t.clone()
	next.DriverLocation = &p
	next.LastUpdate = now
	return next, nil
}

// WithEstimates stamps predicted pickup and delivery times.
func WithEstimates(t Tracking, pickupAt, deliveryAt *time.Time) Tracking {
	next := t.clone()
	next.EstimatedPickupTime = pickupAt
	next.EstimatedDeliveryTime = deliveryAt
	return next
}

// clone copies t deeply enough that the result can be modified without
// touching t.
func (t Tracking) clone() Tracking {
	c := t
	c.StatusHistory = make([]StatusTransition, len(t.StatusHistory), len(t.StatusHistory)+1)
	copy(c.StatusHistory, t.StatusHistory)
	if t.DriverID != nil {
		id := *t.DriverID
		c.DriverID = &id
	}
	if t.DriverLocation != nil {
		p := *t.DriverLocation
		c.DriverLocation = &p
	}
	return c
}

func timePtr(t time.Time) *time.Time {
	return &t
}
