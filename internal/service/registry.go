package service

import (
	"context"
	"errors"
	"fmt"

	"tawsil/internal/modules/order"
	"tawsil/internal/types"
)

// OrderBook serves the dispatcher from the local order mirror.
type OrderBook struct {
	orders *order.Service
}

func NewOrderBook(orders *order.Service) *OrderBook {
	return &OrderBook{orders: orders}
}

func unknown(kind string, id types.ID, err error) error {
	if errors.Is(err, order.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrUnknownOrder)
	}
	return err
}

func (b *OrderBook) Order(ctx context.Context, orderID types.ID) (OrderInfo, error) {
	o, err := b.orders.Get(ctx, orderID)
	if err != nil {
		return OrderInfo{}, unknown("order", orderID, err)
	}
	return OrderInfo{
		OrderID:       o.ID,
		RestaurantID:  o.RestaurantID,
		City:          o.City,
		ZoneID:        o.ZoneID,
		Zone:          o.Zone,
		Pickup:        o.Pickup,
		Dropoff:       o.Dropoff,
		PaymentMethod: o.PaymentMethod,
		Amount:        o.Amount,
		Tip:           o.Tip,
	}, nil
}

func (b *OrderBook) Driver(ctx context.Context, driverID types.ID) (DriverInfo, error) {
	d, err := b.orders.Driver(ctx, driverID)
	if err != nil {
		return DriverInfo{}, unknown("driver", driverID, err)
	}
	return DriverInfo{
		DriverID:            d.ID,
		VehicleType:         d.VehicleType,
		MonthlyOrders:       d.MonthlyOrders,
		CompletedDeliveries: d.CompletedDeliveries,
		Streak:              d.Streak,
	}, nil
}

func (b *OrderBook) ActiveOrders(ctx context.Context, zoneID string) (int, error) {
	return b.orders.ActiveOrders(ctx, zoneID)
}

func (b *OrderBook) RecordCompletion(ctx context.Context, orderID, driverID types.ID, onTime bool) error {
	_, err := b.orders.RecordDelivery(ctx, orderID, driverID, onTime)
	return unknown("completion", orderID, err)
}
