// README: Delivery tracking aggregate and the lifecycle state table.
package delivery

import (
	"fmt"
	"time"

	"tawsil/internal/types"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusAssigned     Status = "assigned"
	StatusPickingUp    Status = "picking_up"
	StatusAtRestaurant Status = "at_restaurant"
	StatusPickedUp     Status = "picked_up"
	StatusDelivering   Status = "delivering"
	StatusAtDropoff    Status = "at_dropoff"
	StatusDelivered    Status = "delivered"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
)

// AllStatuses lists every lifecycle state in flow order.
var AllStatuses = []Status{
	StatusPending, StatusAssigned, StatusPickingUp, StatusAtRestaurant, StatusPickedUp,
	StatusDelivering, StatusAtDropoff, StatusDelivered, StatusCancelled, StatusFailed,
}

// AllowedTransitions represents the delivery state flow as code. Every state
// has an entry; terminal states map to an empty set.
var AllowedTransitions = map[Status][]Status{
	StatusPending:      {StatusAssigned, StatusCancelled},
	StatusAssigned:     {StatusPickingUp, StatusPending, StatusCancelled},
	StatusPickingUp:    {StatusAtRestaurant, StatusCancelled, StatusFailed},
	StatusAtRestaurant: {StatusPickedUp, StatusCancelled, StatusFailed},
	StatusPickedUp:     {StatusDelivering, StatusFailed},
	StatusDelivering:   {StatusAtDropoff, StatusFailed},
	StatusAtDropoff:    {StatusDelivered, StatusFailed},
	StatusDelivered:    {},
	StatusCancelled:    {},
	StatusFailed:       {},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

func (s Status) Terminal() bool {
	next, ok := AllowedTransitions[s]
	return ok && len(next) == 0
}

// Tracking is the per-delivery dispatch state. It is mutated only through
// TransitionStatus and UpdateDriverLocation, which return new values.
type Tracking struct {
	ID                    types.ID           `json:"id"`
	OrderID               types.ID           `json:"order_id"`
	DriverID              *types.ID          `json:"driver_id,omitempty"`
	City                  string             `json:"city"`
	Status                Status             `json:"status"`
	DriverLocation        *types.Point       `json:"driver_location,omitempty"`
	PickupLocation        types.Point        `json:"pickup_location"`
	DropoffLocation       types.Point        `json:"dropoff_location"`
	EstimatedPickupTime   *time.Time         `json:"estimated_pickup_time,omitempty"`
	ActualPickupTime      *time.Time         `json:"actual_pickup_time,omitempty"`
	EstimatedDeliveryTime *time.Time         `json:"estimated_delivery_time,omitempty"`
	ActualDeliveryTime    *time.Time         `json:"actual_delivery_time,omitempty"`
	StatusHistory         []StatusTransition `json:"status_history"`
	LastUpdate            time.Time          `json:"last_update"`
	// DeliveryFee is the fee quoted at creation, in centimes.
	DeliveryFee int64 `json:"delivery_fee"`
	// Version is bumped by the store on every successful save.
	Version int `json:"version"`
}

type StatusTransition struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// StateError is returned for any edge missing from AllowedTransitions.
type StateError struct {
	From Status
	To   Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}
