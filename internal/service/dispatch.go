// README: Dispatcher runs the per-delivery control flow across pricing, tracking, ETA, routing and settlement.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"tawsil/internal/geo"
	"tawsil/internal/logger"
	"tawsil/internal/modules/cashfloat"
	"tawsil/internal/modules/delivery"
	"tawsil/internal/modules/eta"
	"tawsil/internal/modules/incentive"
	"tawsil/internal/modules/location"
	"tawsil/internal/modules/pricing"
	"tawsil/internal/modules/routing"
	"tawsil/internal/modules/settlement"
	"tawsil/internal/types"
)

var (
	// ErrCashLimit is returned when a cash-on-delivery order would push the
	// driver's float past the trust limit.
	ErrCashLimit = errors.New("driver cash float over trust limit")
	// ErrUnknownOrder is wrapped by registries for orders or drivers they do
	// not know.
	ErrUnknownOrder = errors.New("unknown order or driver")
	// ErrNotDelivered is returned when settling a delivery that has not
	// reached delivered.
	ErrNotDelivered = errors.New("delivery not delivered")
)

// OrderInfo is what the order registry knows about an accepted order.
type OrderInfo struct {
	OrderID       types.ID
	RestaurantID  types.ID
	City          string
	ZoneID        string
	Zone          geo.Circle
	Pickup        types.Point
	Dropoff       types.Point
	PaymentMethod types.PaymentMethod
	Amount        int64
	Tip           int64
}

type DriverInfo struct {
	DriverID            types.ID
	VehicleType         string
	MonthlyOrders       int
	CompletedDeliveries int
	// Streak counts consecutive on-time deliveries before the current one.
	Streak int
}

// OrderRegistry is the external source of orders and drivers.
type OrderRegistry interface {
	Order(ctx context.Context, orderID types.ID) (OrderInfo, error)
	Driver(ctx context.Context, driverID types.ID) (DriverInfo, error)
	ActiveOrders(ctx context.Context, zoneID string) (int, error)
}

type WeatherProvider interface {
	Current(ctx context.Context, city string) (types.Weather, error)
}

// CompletionRecorder is told about every settled delivery so driver
// counters stay current.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, orderID, driverID types.ID, onTime bool) error
}

// TrackingPublisher receives every saved tracking, e.g. a live-tracking hub.
type TrackingPublisher interface {
	PublishTracking(t delivery.Tracking)
}

type Config struct {
	// GeofenceRadiusKm sizes the pickup and dropoff zones around a delivery.
	GeofenceRadiusKm float64
	Route            routing.Config
}

func DefaultConfig() Config {
	return Config{GeofenceRadiusKm: 0.15, Route: routing.DefaultConfig()}
}

type Dispatcher struct {
	deliveries *delivery.Service
	pricing    *pricing.Service
	eta        *eta.Engine
	settlement *settlement.Service
	cash       *cashfloat.Service
	incentives *incentive.Service
	registry   OrderRegistry
	weather    WeatherProvider
	publisher  TrackingPublisher
	recorder   CompletionRecorder
	cfg        Config
	log        logger.ILogger
	now        func() time.Time
	// settling collapses concurrent settlements of one delivery.
	settling singleflight.Group
}

// Deps groups the collaborators of a Dispatcher. Weather, Publisher and
// Recorder are optional.
type Deps struct {
	Deliveries *delivery.Service
	Pricing    *pricing.Service
	ETA        *eta.Engine
	Settlement *settlement.Service
	Cash       *cashfloat.Service
	Incentives *incentive.Service
	Registry   OrderRegistry
	Weather    WeatherProvider
	Publisher  TrackingPublisher
	Recorder   CompletionRecorder
}

func NewDispatcher(d Deps, cfg Config, log logger.ILogger) *Dispatcher {
	return &Dispatcher{
		deliveries: d.Deliveries,
		pricing:    d.Pricing,
		eta:        d.ETA,
		settlement: d.Settlement,
		cash:       d.Cash,
		incentives: d.Incentives,
		registry:   d.Registry,
		weather:    d.Weather,
		publisher:  d.Publisher,
		recorder:   d.Recorder,
		cfg:        cfg,
		log:        logger.Component(log, "dispatch"),
		now:        time.Now,
	}
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

func (d *Dispatcher) Get(ctx context.Context, deliveryID types.ID) (delivery.Tracking, error) {
	return d.deliveries.Get(ctx, deliveryID)
}

type Created struct {
	Tracking delivery.Tracking `json:"tracking"`
	Quote    pricing.Quote     `json:"quote"`
}

// CreateDelivery prices an accepted order and opens its tracking. The fee is
// fixed here and reused at settlement.
func (d *Dispatcher) CreateDelivery(ctx context.Context, orderID types.ID) (Created, error) {
	order, err := d.registry.Order(ctx, orderID)
	if err != nil {
		return Created{}, fmt.Errorf("load order: %w", err)
	}
	active, err := d.registry.ActiveOrders(ctx, order.ZoneID)
	if err != nil {
		return Created{}, fmt.Errorf("count active orders: %w", err)
	}
	q, err := d.pricing.Quote(ctx, pricing.QuoteRequest{
		ZoneID:       order.ZoneID,
		Zone:         order.Zone,
		Pickup:       order.Pickup,
		Dropoff:      order.Dropoff,
		ActiveOrders: active,
	})
	if err != nil {
		return Created{}, err
	}

	t, err := d.deliveries.Create(ctx, delivery.CreateCommand{
		OrderID:     order.OrderID,
		City:        order.City,
		Pickup:      order.Pickup,
		Dropoff:     order.Dropoff,
		DeliveryFee: q.Fee.Total,
	})
	if err != nil {
		return Created{}, err
	}
	if err := d.pricing.RecordOrder(ctx, order.ZoneID); err != nil {
		d.log.Warning("record demand failed", logger.String("zone_id", order.ZoneID), logger.Error(err))
	}
	d.publish(t)
	return Created{Tracking: t, Quote: q}, nil
}

// AssignDriver hands a pending delivery to driverID. Cash orders are refused
// when the driver's float could not absorb the amount collected.
func (d *Dispatcher) AssignDriver(ctx context.Context, deliveryID, driverID types.ID) (delivery.Tracking, error) {
	t, err := d.deliveries.Get(ctx, deliveryID)
	if err != nil {
		return delivery.Tracking{}, err
	}
	order, err := d.registry.Order(ctx, t.OrderID)
	if err != nil {
		return delivery.Tracking{}, fmt.Errorf("load order: %w", err)
	}
	if order.PaymentMethod == types.PaymentCash {
		amount := order.Amount + t.DeliveryFee + order.Tip
		ok, err := d.cash.CanAcceptCashOrder(ctx, driverID, amount)
		if err != nil {
			return delivery.Tracking{}, err
		}
		if !ok {
			d.log.Warning("cash order refused",
				logger.String("delivery_id", string(deliveryID)),
				logger.String("driver_id", string(driverID)),
				logger.Int64("amount", amount),
			)
			return delivery.Tracking{}, ErrCashLimit
		}
	}

	t, err = d.deliveries.Assign(ctx, delivery.AssignCommand{DeliveryID: deliveryID, DriverID: driverID})
	if err != nil {
		return delivery.Tracking{}, err
	}
	d.publish(t)
	return t, nil
}

// Completion is filled only when a delivery reaches delivered.
type Completion struct {
	Settlement settlement.Settlement       `json:"settlement"`
	Entries    []settlement.LedgerEntry    `json:"entries"`
	Award      incentive.Award             `json:"award"`
	Cash       *cashfloat.CollectionResult `json:"cash,omitempty"`
	// Quests lists the driver's quests this delivery moved.
	Quests []incentive.Quest `json:"quests,omitempty"`
	// Replayed marks a settlement read back from the ledger; only Entries
	// is filled then.
	Replayed bool `json:"replayed,omitempty"`
}

type Advanced struct {
	Tracking   delivery.Tracking `json:"tracking"`
	Completion *Completion       `json:"completion,omitempty"`
}

// AdvanceDelivery applies one lifecycle edge. The transition is saved first
// so a lost race never settles twice; settlement runs only for the caller
// whose delivered transition won. A failed settlement leaves the delivery
// delivered and is retried with SettleDelivery.
func (d *Dispatcher) AdvanceDelivery(ctx context.Context, deliveryID types.ID, to delivery.Status, reason string) (Advanced, error) {
	t, err := d.deliveries.Transition(ctx, delivery.TransitionCommand{DeliveryID: deliveryID, To: to, Reason: reason})
	if err != nil {
		return Advanced{}, err
	}
	d.publish(t)
	out := Advanced{Tracking: t}
	if to != delivery.StatusDelivered {
		return out, nil
	}

	c, err := d.settle(ctx, t)
	if err != nil {
		return out, err
	}
	out.Completion = c
	return out, nil
}

// SettleDelivery settles a delivered delivery. It is idempotent: an order
// already on the ledger is returned as booked, so it is safe to retry after
// a settlement failure.
func (d *Dispatcher) SettleDelivery(ctx context.Context, deliveryID types.ID) (Advanced, error) {
	t, err := d.deliveries.Get(ctx, deliveryID)
	if err != nil {
		return Advanced{}, err
	}
	if t.Status != delivery.StatusDelivered {
		return Advanced{}, fmt.Errorf("delivery %s is %s: %w", deliveryID, t.Status, ErrNotDelivered)
	}
	c, err := d.settle(ctx, t)
	if err != nil {
		return Advanced{}, err
	}
	return Advanced{Tracking: t, Completion: c}, nil
}

// settle runs complete unless the ledger already holds the order.
func (d *Dispatcher) settle(ctx context.Context, t delivery.Tracking) (*Completion, error) {
	v, err, _ := d.settling.Do(string(t.ID), func() (any, error) {
		booked, err := d.settlement.Entries(ctx, t.OrderID)
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		if len(booked) > 0 {
			return &Completion{Entries: booked, Replayed: true}, nil
		}
		c, err := d.complete(ctx, t)
		if err != nil {
			return nil, err
		}
		return &c, nil
	})
	if err != nil {
		d.log.Error("settle delivered order failed",
			logger.String("delivery_id", string(t.ID)),
			logger.String("order_id", string(t.OrderID)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("settle delivery %s: %w", t.ID, err)
	}
	return v.(*Completion), nil
}

// complete books one delivered order. Everything that can fail runs before
// the incentive reservation, and the reservation is released when booking
// fails. Once the ledger holds the order, later steps only log failures.
func (d *Dispatcher) complete(ctx context.Context, t delivery.Tracking) (Completion, error) {
	if t.DriverID == nil {
		return Completion{}, types.Invalid("driver_id", "delivered without a driver")
	}
	driverID := *t.DriverID
	order, err := d.registry.Order(ctx, t.OrderID)
	if err != nil {
		return Completion{}, fmt.Errorf("load order: %w", err)
	}
	driver, err := d.registry.Driver(ctx, driverID)
	if err != nil {
		return Completion{}, fmt.Errorf("load driver: %w", err)
	}

	weather := d.currentWeather(ctx, order.City)
	tc := d.pricing.TimeContext()
	level := pricing.DemandNormal
	if active, err := d.registry.ActiveOrders(ctx, order.ZoneID); err == nil {
		if stats, err := d.pricing.ZoneStats(ctx, order.ZoneID, order.Zone, active); err == nil {
			level = stats.Level
		}
	}

	in := settlement.OrderInput{
		OrderID:       order.OrderID,
		RestaurantID:  order.RestaurantID,
		DriverID:      driverID,
		OrderAmount:   order.Amount,
		DeliveryFee:   t.DeliveryFee,
		Tip:           order.Tip,
		DistanceKm:    geo.RoadDistanceKm(t.PickupLocation, t.DropoffLocation),
		MonthlyOrders: driver.MonthlyOrders,
		Peak:          tc.IsPeakHour,
		Weather:       weather,
		PaymentMethod: order.PaymentMethod,
	}
	if _, err := d.settlement.Preview(in); err != nil {
		return Completion{}, err
	}

	award, err := d.incentives.Award(ctx, driverID, incentive.BonusContext{
		City:        order.City,
		Time:        tc,
		Weather:     weather,
		DemandLevel: level,
		Streak:      driver.Streak + 1,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("award incentives: %w", err)
	}

	in.IncentiveBonus = award.Result.Granted
	st, entries, err := d.settlement.Settle(ctx, in)
	if err != nil {
		if rerr := d.incentives.Release(ctx, award); rerr != nil {
			d.log.Error("release incentive award failed",
				logger.String("order_id", string(order.OrderID)),
				logger.Int64("granted", award.Result.Granted),
				logger.Error(rerr),
			)
		}
		return Completion{}, err
	}
	c := Completion{Settlement: st, Entries: entries, Award: award}

	if st.PaymentMethod == types.PaymentCash {
		res, err := d.cash.ApplySettlement(ctx, st)
		if err != nil {
			d.log.Error("apply cash collection failed",
				logger.String("order_id", string(order.OrderID)),
				logger.String("driver_id", string(driverID)),
				logger.Int64("total_charged", st.TotalCharged),
				logger.Error(err),
			)
		} else {
			c.Cash = &res
		}
	}
	if d.recorder != nil {
		if err := d.recorder.RecordCompletion(ctx, order.OrderID, driverID, onTime(t)); err != nil {
			d.log.Warning("record completion failed",
				logger.String("order_id", string(order.OrderID)),
				logger.String("driver_id", string(driverID)),
				logger.Error(err),
			)
		}
	}
	quests, err := d.incentives.RecordDelivery(ctx, driverID)
	if err != nil {
		d.log.Warning("record quest progress failed",
			logger.String("driver_id", string(driverID)),
			logger.Error(err),
		)
	}
	c.Quests = quests
	return c, nil
}

// onTime compares the delivery against its last estimate. Deliveries never
// estimated count as on time.
func onTime(t delivery.Tracking) bool {
	if t.EstimatedDeliveryTime == nil || t.ActualDeliveryTime == nil {
		return true
	}
	return !t.ActualDeliveryTime.After(*t.EstimatedDeliveryTime)
}

func (d *Dispatcher) currentWeather(ctx context.Context, city string) types.Weather {
	if d.weather == nil {
		return types.WeatherClear
	}
	w, err := d.weather.Current(ctx, city)
	if err != nil {
		d.log.Warning("weather lookup failed", logger.String("city", city), logger.Error(err))
		return types.WeatherClear
	}
	return w
}

type Tracked struct {
	Tracking delivery.Tracking        `json:"tracking"`
	Events   []location.GeofenceEvent `json:"events,omitempty"`
}

// TrackDriver stores the driver's position on the delivery and reports
// pickup/dropoff geofence crossings since the previous position.
func (d *Dispatcher) TrackDriver(ctx context.Context, deliveryID types.ID, p types.Point) (Tracked, error) {
	prev, err := d.deliveries.Get(ctx, deliveryID)
	if err != nil {
		return Tracked{}, err
	}
	t, err := d.deliveries.UpdateLocation(ctx, delivery.LocationCommand{DeliveryID: deliveryID, Position: p})
	if err != nil {
		return Tracked{}, err
	}
	zones := []location.Zone{
		{Name: "pickup", Type: location.ZonePickup, Circle: geo.Circle{Center: t.PickupLocation, RadiusKm: d.cfg.GeofenceRadiusKm}},
		{Name: "dropoff", Type: location.ZoneDropoff, Circle: geo.Circle{Center: t.DropoffLocation, RadiusKm: d.cfg.GeofenceRadiusKm}},
	}
	events := location.DetectGeofenceEvents(prev.DriverLocation, p, zones)
	for _, e := range events {
		d.log.Info("geofence event",
			logger.String("delivery_id", string(deliveryID)),
			logger.String("zone", e.Zone),
			logger.String("event", string(e.Event)),
		)
	}
	d.publish(t)
	return Tracked{Tracking: t, Events: events}, nil
}

// PredictETA predicts the remaining trip and persists the estimates.
func (d *Dispatcher) PredictETA(ctx context.Context, deliveryID types.ID) (eta.Prediction, error) {
	t, err := d.deliveries.Get(ctx, deliveryID)
	if err != nil {
		return eta.Prediction{}, err
	}
	pred, err := d.eta.PredictETA(t, d.now())
	if err != nil {
		return eta.Prediction{}, err
	}
	stamped := eta.ApplyPrediction(t, pred)
	saved, err := d.deliveries.SetEstimates(ctx, deliveryID, stamped.EstimatedPickupTime, stamped.EstimatedDeliveryTime)
	if err != nil {
		return eta.Prediction{}, err
	}
	d.publish(saved)
	return pred, nil
}

// PlanDriverRoute orders the remaining stops of a driver's deliveries.
// Deliveries already picked up contribute only their dropoff.
func (d *Dispatcher) PlanDriverRoute(ctx context.Context, start types.Point, deliveryIDs []types.ID) (routing.OptimizedRoute, error) {
	if len(deliveryIDs) == 0 {
		return routing.OptimizedRoute{}, types.Invalid("delivery_ids", "must not be empty")
	}
	stops := make([]routing.Stop, 0, 2*len(deliveryIDs))
	for _, id := range deliveryIDs {
		t, err := d.deliveries.Get(ctx, id)
		if err != nil {
			return routing.OptimizedRoute{}, err
		}
		s, err := remainingStops(t)
		if err != nil {
			return routing.OptimizedRoute{}, err
		}
		stops = append(stops, s...)
	}

	r, err := routing.OptimizeRoute(start, stops, d.cfg.Route)
	if err != nil {
		return routing.OptimizedRoute{}, err
	}
	if v := routing.ValidateRouteConstraints(start, r.Stops, d.now(), d.cfg.Route); len(v) > 0 {
		for _, cv := range v {
			d.log.Warning("route constraint violated",
				logger.String("kind", string(cv.Kind)),
				logger.String("stop_id", cv.StopID),
				logger.String("detail", cv.Detail),
			)
		}
	}
	return r, nil
}

func remainingStops(t delivery.Tracking) ([]routing.Stop, error) {
	pickup := routing.Stop{ID: string(t.ID) + ":pickup", Location: t.PickupLocation, Type: routing.StopPickup, OrderID: t.ID}
	dropoff := routing.Stop{ID: string(t.ID) + ":dropoff", Location: t.DropoffLocation, Type: routing.StopDropoff, OrderID: t.ID}
	switch t.Status {
	case delivery.StatusPending, delivery.StatusAssigned, delivery.StatusPickingUp, delivery.StatusAtRestaurant:
		return []routing.Stop{pickup, dropoff}, nil
	case delivery.StatusPickedUp, delivery.StatusDelivering, delivery.StatusAtDropoff:
		return []routing.Stop{dropoff}, nil
	default:
		return nil, types.Invalid("delivery_ids", "delivery %s is already %s", t.ID, t.Status)
	}
}

func (d *Dispatcher) publish(t delivery.Tracking) {
	if d.publisher != nil {
		d.publisher.PublishTracking(t)
	}
}
