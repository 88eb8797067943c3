package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/logger"
	"tawsil/internal/modules/order"
	"tawsil/internal/types"
)

func newOrderBook(t *testing.T) (*OrderBook, *order.Service) {
	t.Helper()
	orders := order.NewService(order.NewMemoryStore(), logger.Nop()).WithClock(func() time.Time { return now })
	ctx := context.Background()
	if _, err := orders.Import(ctx, order.ImportCommand{
		OrderID:       "ord-card",
		RestaurantID:  "rest-1",
		City:          "casablanca",
		ZoneID:        "maarif",
		Zone:          geo.Circle{Center: restaurant, RadiusKm: 3},
		Pickup:        restaurant,
		Dropoff:       customer,
		PaymentMethod: types.PaymentCard,
		Amount:        10000,
	}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := orders.RegisterDriver(ctx, order.DriverCommand{DriverID: "drv-1", VehicleType: "motorbike"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewOrderBook(orders), orders
}

func TestOrderBookLookups(t *testing.T) {
	book, _ := newOrderBook(t)
	ctx := context.Background()

	o, err := book.Order(ctx, "ord-card")
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if o.Amount != 10000 || o.PaymentMethod != types.PaymentCard || o.Zone.RadiusKm != 3 {
		t.Fatalf("unexpected order info %+v", o)
	}
	if n, _ := book.ActiveOrders(ctx, "maarif"); n != 1 {
		t.Fatalf("active = %d", n)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"order", func() error { _, err := book.Order(ctx, "ord-404"); return err }},
		{"driver", func() error { _, err := book.Driver(ctx, "drv-404"); return err }},
		{"completion", func() error { return book.RecordCompletion(ctx, "ord-404", "drv-1", true) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrUnknownOrder) {
				t.Fatalf("expected ErrUnknownOrder, got %v", err)
			}
		})
	}
}

func TestDeliveredOrderUpdatesOrderBook(t *testing.T) {
	h := newHarness(t, "")
	book, orders := newOrderBook(t)
	h.d.registry = book
	h.d.recorder = book
	ctx := context.Background()

	c, err := h.d.CreateDelivery(ctx, "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.d.AssignDriver(ctx, c.Tracking.ID, "drv-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	out := h.deliver(t, c.Tracking.ID)
	if out.Completion == nil {
		t.Fatal("expected completion")
	}

	o, _ := orders.Get(ctx, "ord-card")
	if o.Status != order.StatusDelivered {
		t.Fatalf("order status = %s", o.Status)
	}
	d, err := book.Driver(ctx, "drv-1")
	if err != nil {
		t.Fatalf("driver: %v", err)
	}
	if d.Streak != 1 || d.MonthlyOrders != 1 || d.CompletedDeliveries != 1 {
		t.Fatalf("driver counters %+v", d)
	}
	if n, _ := book.ActiveOrders(ctx, "maarif"); n != 0 {
		t.Fatalf("active after delivery = %d", n)
	}
}
