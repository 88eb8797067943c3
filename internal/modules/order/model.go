// README: Accepted orders and driver profiles as mirrored from the ordering platform.
package order

import (
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

type Order struct {
	ID            types.ID            `json:"id"`
	RestaurantID  types.ID            `json:"restaurant_id"`
	City          string              `json:"city"`
	ZoneID        string              `json:"zone_id"`
	Zone          geo.Circle          `json:"zone"`
	Pickup        types.Point         `json:"pickup"`
	Dropoff       types.Point         `json:"dropoff"`
	PaymentMethod types.PaymentMethod `json:"payment_method"`
	Amount        int64               `json:"amount"`
	Tip           int64               `json:"tip"`
	Status        Status              `json:"status"`
	StatusVersion int                 `json:"status_version"`
	CreatedAt     time.Time           `json:"created_at"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
}

// Driver carries the counters settlement and incentives read. Month is the
// "2006-01" period MonthlyOrders belongs to.
type Driver struct {
	ID                  types.ID  `json:"id"`
	VehicleType         string    `json:"vehicle_type"`
	MonthlyOrders       int       `json:"monthly_orders"`
	Month               string    `json:"month"`
	CompletedDeliveries int       `json:"completed_deliveries"`
	Streak              int       `json:"streak"`
	Version             int       `json:"version"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// AllowedTransitions represents the order state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusAccepted: {StatusDelivered, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the order still counts toward zone demand.
func (s Status) IsActive() bool {
	return s == StatusAccepted
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// RecordDelivery bumps the driver's counters for one finished delivery. The
// monthly count restarts when the month rolls over and a late delivery
// breaks the on-time streak.
func RecordDelivery(d Driver, onTime bool, now time.Time) Driver {
	if m := monthKey(now); d.Month != m {
		d.Month = m
		d.MonthlyOrders = 0
	}
	d.MonthlyOrders++
	d.CompletedDeliveries++
	if onTime {
		d.Streak++
	} else {
		d.Streak = 0
	}
	d.UpdatedAt = now
	return d
}

// OrdersThisMonth returns MonthlyOrders, or zero when the counter belongs to
// an earlier month.
func (d Driver) OrdersThisMonth(now time.Time) int {
	if d.Month != monthKey(now) {
		return 0
	}
	return d.MonthlyOrders
}
