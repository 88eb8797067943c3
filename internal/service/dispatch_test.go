package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tawsil/internal/geo"
	"tawsil/internal/logger"
	"tawsil/internal/modules/cashfloat"
	"tawsil/internal/modules/delivery"
	"tawsil/internal/modules/eta"
	"tawsil/internal/modules/incentive"
	"tawsil/internal/modules/pricing"
	"tawsil/internal/modules/settlement"
	"tawsil/internal/types"
)

// Tuesday mid-morning, outside every peak window.
var now = time.Date(2026, 10, 20, 9, 30, 0, 0, time.UTC)

var (
	restaurant = types.Point{Lat: 33.5731, Lng: -7.5898}
	customer   = types.Point{Lat: 33.5900, Lng: -7.6100}
)

type fakeRegistry struct {
	orders  map[types.ID]OrderInfo
	drivers map[types.ID]DriverInfo
	active  int
	// driverErr fails Driver lookups while set.
	driverErr error
}

func (r *fakeRegistry) Order(_ context.Context, id types.ID) (OrderInfo, error) {
	o, ok := r.orders[id]
	if !ok {
		return OrderInfo{}, fmt.Errorf("order %s: %w", id, ErrUnknownOrder)
	}
	return o, nil
}

func (r *fakeRegistry) Driver(_ context.Context, id types.ID) (DriverInfo, error) {
	if r.driverErr != nil {
		return DriverInfo{}, r.driverErr
	}
	return r.drivers[id], nil
}

func (r *fakeRegistry) ActiveOrders(context.Context, string) (int, error) {
	return r.active, nil
}

type fixedDrivers int

func (n fixedDrivers) CountWithin(context.Context, geo.Circle) (int, error) { return int(n), nil }

type fixedWeather types.Weather

func (w fixedWeather) Current(context.Context, string) (types.Weather, error) {
	return types.Weather(w), nil
}

type recordingPublisher struct{ got []delivery.Tracking }

func (p *recordingPublisher) PublishTracking(t delivery.Tracking) { p.got = append(p.got, t) }

// flakyLedger fails appends while failAppend is set.
type flakyLedger struct {
	*settlement.MemoryLedger
	failAppend bool
}

func (l *flakyLedger) Append(ctx context.Context, entries []settlement.LedgerEntry) error {
	if l.failAppend {
		return errors.New("ledger unavailable")
	}
	return l.MemoryLedger.Append(ctx, entries)
}

type harness struct {
	d          *Dispatcher
	registry   *fakeRegistry
	ledger     *flakyLedger
	cash       *cashfloat.Service
	incentives *incentive.Service
	pub        *recordingPublisher
}

func newHarness(t *testing.T, weather types.Weather) *harness {
	t.Helper()
	log := logger.Nop()
	clock := func() time.Time { return now }

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	zone := geo.Circle{Center: restaurant, RadiusKm: 3}
	reg := &fakeRegistry{
		orders: map[types.ID]OrderInfo{
			"ord-card": {OrderID: "ord-card", RestaurantID: "rest-1", City: "casablanca", ZoneID: "maarif", Zone: zone,
				Pickup: restaurant, Dropoff: customer, PaymentMethod: types.PaymentCard, Amount: 10000},
			"ord-cash": {OrderID: "ord-cash", RestaurantID: "rest-1", City: "casablanca", ZoneID: "maarif", Zone: zone,
				Pickup: restaurant, Dropoff: customer, PaymentMethod: types.PaymentCash, Amount: 10000, Tip: 500},
			"ord-big": {OrderID: "ord-big", RestaurantID: "rest-1", City: "casablanca", ZoneID: "maarif", Zone: zone,
				Pickup: restaurant, Dropoff: customer, PaymentMethod: types.PaymentCash, Amount: 60000},
		},
		drivers: map[types.ID]DriverInfo{"drv-1": {DriverID: "drv-1", MonthlyOrders: 0}},
		active:  2,
	}
	ledger := &flakyLedger{MemoryLedger: settlement.NewMemoryLedger()}
	incentives := incentive.NewService(incentive.NewStore(rdb), incentive.DefaultBonusConfig(), time.UTC, log).WithClock(clock)
	cash := cashfloat.NewService(cashfloat.NewMemoryStore(), cashfloat.DefaultConfig(), log).WithClock(clock)
	pub := &recordingPublisher{}

	var wp WeatherProvider
	if weather != "" {
		wp = fixedWeather(weather)
	}
	d := NewDispatcher(Deps{
		Deliveries: delivery.NewService(delivery.NewMemoryStore(), log).WithClock(clock),
		Pricing:    pricing.NewService(fixedDrivers(4), nil, pricing.DefaultConfig(), log).WithClock(clock),
		ETA:        eta.NewEngine(eta.DefaultConfig()),
		Settlement: settlement.NewService(ledger, settlement.DefaultConfig(), log).WithClock(clock),
		Cash:       cash,
		Incentives: incentives,
		Registry:   reg,
		Weather:    wp,
		Publisher:  pub,
	}, DefaultConfig(), log).WithClock(clock)
	return &harness{d: d, registry: reg, ledger: ledger, cash: cash, incentives: incentives, pub: pub}
}

var lifecycle = []delivery.Status{
	delivery.StatusPickingUp, delivery.StatusAtRestaurant, delivery.StatusPickedUp,
	delivery.StatusDelivering, delivery.StatusAtDropoff, delivery.StatusDelivered,
}

func (h *harness) deliver(t *testing.T, id types.ID) Advanced {
	t.Helper()
	ctx := context.Background()
	var last Advanced
	for _, to := range lifecycle {
		var err error
		last, err = h.d.AdvanceDelivery(ctx, id, to, "driver app")
		if err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
		if to != delivery.StatusDelivered && last.Completion != nil {
			t.Fatalf("completion before delivered at %s", to)
		}
	}
	return last
}

func TestCreateDeliveryFixesQuotedFee(t *testing.T) {
	h := newHarness(t, "")
	c, err := h.d.CreateDelivery(context.Background(), "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Tracking.Status != delivery.StatusPending {
		t.Fatalf("status = %s", c.Tracking.Status)
	}
	if c.Tracking.DeliveryFee != c.Quote.Fee.Total || c.Quote.Fee.Total <= 0 {
		t.Fatalf("fee not carried: tracking %d quote %d", c.Tracking.DeliveryFee, c.Quote.Fee.Total)
	}
	// Two orders for four drivers keeps surge off.
	if c.Quote.Surge.Active {
		t.Fatalf("unexpected surge: %+v", c.Quote.Surge)
	}
	if len(h.pub.got) != 1 {
		t.Fatalf("published %d trackings", len(h.pub.got))
	}
}

func TestCreateDeliveryUnknownOrder(t *testing.T) {
	h := newHarness(t, "")
	if _, err := h.d.CreateDelivery(context.Background(), "nope"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestDeliveredCardOrderSettles(t *testing.T) {
	h := newHarness(t, types.WeatherRain)
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
		t.Fatal("expected completion on delivered")
	}
	st := out.Completion.Settlement
	if st.DeliveryFee != c.Tracking.DeliveryFee || st.OrderAmount != 10000 {
		t.Fatalf("settlement inputs: %+v", st)
	}
	if st.Commission != 1800 || st.RestaurantPayout != 8000 {
		t.Fatalf("commission split: %+v", st)
	}
	if got := settlement.SumEntries(out.Completion.Entries); got != st.TotalCharged {
		t.Fatalf("entries sum %d, charged %d", got, st.TotalCharged)
	}
	if out.Completion.Cash != nil {
		t.Fatal("card order touched the cash float")
	}

	// Rain earns both the settlement weather bonus and an incentive bonus.
	if st.DriverPay.WeatherBonus == 0 || out.Completion.Award.Result.Granted == 0 {
		t.Fatalf("weather bonuses missing: %+v %+v", st.DriverPay, out.Completion.Award)
	}

	stored, err := h.ledger.ByReference(ctx, "ord-card")
	if err != nil || len(stored) != len(out.Completion.Entries) {
		t.Fatalf("ledger: %d entries, err %v", len(stored), err)
	}
}

func TestDeliveredCashOrderCollects(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	c, err := h.d.CreateDelivery(ctx, "ord-cash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.d.AssignDriver(ctx, c.Tracking.ID, "drv-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	out := h.deliver(t, c.Tracking.ID)
	if out.Completion == nil || out.Completion.Cash == nil {
		t.Fatalf("expected cash collection: %+v", out.Completion)
	}
	want := 10000 + 500 + c.Tracking.DeliveryFee
	f, err := h.cash.Get(ctx, "drv-1")
	if err != nil {
		t.Fatalf("get float: %v", err)
	}
	if f.CurrentBalance != want || f.TotalCollected != want {
		t.Fatalf("balance = %d, want %d", f.CurrentBalance, want)
	}
}

// advanceTo walks a delivery through the lifecycle up to, not including, stop.
func (h *harness) advanceTo(t *testing.T, id types.ID, stop delivery.Status) {
	t.Helper()
	for _, to := range lifecycle {
		if to == stop {
			return
		}
		if _, err := h.d.AdvanceDelivery(context.Background(), id, to, "driver app"); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}
}

func TestSettlementRetriesAfterFailure(t *testing.T) {
	tests := []struct {
		name string
		fail func(h *harness)
		heal func(h *harness)
	}{
		{
			name: "registry down",
			fail: func(h *harness) { h.registry.driverErr = errors.New("registry down") },
			heal: func(h *harness) { h.registry.driverErr = nil },
		},
		{
			name: "ledger down",
			fail: func(h *harness) { h.ledger.failAppend = true },
			heal: func(h *harness) { h.ledger.failAppend = false },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, types.WeatherRain)
			ctx := context.Background()
			c, err := h.d.CreateDelivery(ctx, "ord-card")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			id := c.Tracking.ID
			if _, err := h.d.AssignDriver(ctx, id, "drv-1"); err != nil {
				t.Fatalf("assign: %v", err)
			}
			h.advanceTo(t, id, delivery.StatusDelivered)

			tt.fail(h)
			out, err := h.d.AdvanceDelivery(ctx, id, delivery.StatusDelivered, "driver app")
			if err == nil || out.Completion != nil {
				t.Fatalf("expected settlement failure, got %+v", out.Completion)
			}
			if out.Tracking.Status != delivery.StatusDelivered {
				t.Fatalf("status = %s, want delivered", out.Tracking.Status)
			}
			if entries, _ := h.ledger.ByReference(ctx, "ord-card"); len(entries) != 0 {
				t.Fatalf("failed settlement booked %d entries", len(entries))
			}
			if b, _ := h.incentives.Budget(ctx); b.Spent != 0 {
				t.Fatalf("failed settlement kept %d of incentive budget", b.Spent)
			}

			tt.heal(h)
			first, err := h.d.SettleDelivery(ctx, id)
			if err != nil {
				t.Fatalf("retry: %v", err)
			}
			cp := first.Completion
			if cp == nil || cp.Replayed || cp.Award.Result.Granted == 0 {
				t.Fatalf("retry completion = %+v", cp)
			}
			if got := settlement.SumEntries(cp.Entries); got != cp.Settlement.TotalCharged {
				t.Fatalf("entries sum %d, charged %d", got, cp.Settlement.TotalCharged)
			}
			if b, _ := h.incentives.Budget(ctx); b.Spent != cp.Award.Result.Granted {
				t.Fatalf("budget spent %d, granted %d", b.Spent, cp.Award.Result.Granted)
			}

			again, err := h.d.SettleDelivery(ctx, id)
			if err != nil || again.Completion == nil || !again.Completion.Replayed {
				t.Fatalf("second settle: %+v %v", again.Completion, err)
			}
			if len(again.Completion.Entries) != len(cp.Entries) {
				t.Fatalf("replayed %d entries, booked %d", len(again.Completion.Entries), len(cp.Entries))
			}
			if entries, _ := h.ledger.ByReference(ctx, "ord-card"); len(entries) != len(cp.Entries) {
				t.Fatalf("ledger holds %d entries after retry, want %d", len(entries), len(cp.Entries))
			}
			if b, _ := h.incentives.Budget(ctx); b.Spent != cp.Award.Result.Granted {
				t.Fatalf("replay reserved budget again: %d", b.Spent)
			}
		})
	}
}

func TestSettleDeliveryRequiresDelivered(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	c, err := h.d.CreateDelivery(ctx, "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.d.SettleDelivery(ctx, c.Tracking.ID); !errors.Is(err, ErrNotDelivered) {
		t.Fatalf("pending delivery: %v", err)
	}
	if _, err := h.d.SettleDelivery(ctx, "nope"); !errors.Is(err, delivery.ErrNotFound) {
		t.Fatalf("missing delivery: %v", err)
	}
}

func TestDeliveryMovesQuestsAndCampaigns(t *testing.T) {
	h := newHarness(t, types.WeatherRain) // 150 incentive
	ctx := context.Background()
	if _, err := h.incentives.CreateQuest(ctx, incentive.QuestInput{
		ID: "q1", DriverID: "drv-1", Name: "First drop", Target: 1, Reward: 1000, ExpiresAt: now.Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("create quest: %v", err)
	}
	if _, err := h.incentives.StartQuest(ctx, "q1"); err != nil {
		t.Fatalf("start quest: %v", err)
	}
	if _, err := h.incentives.CreateCampaign(ctx, incentive.CampaignInput{
		ID: "casa-rain", Name: "Casablanca rain", Budget: 100,
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour), Cities: []string{"casablanca"},
	}); err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	c, err := h.d.CreateDelivery(ctx, "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.d.AssignDriver(ctx, c.Tracking.ID, "drv-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	out := h.deliver(t, c.Tracking.ID)

	if qs := out.Completion.Quests; len(qs) != 1 || qs[0].Status != incentive.QuestCompleted {
		t.Fatalf("quests = %+v", qs)
	}
	if q, _ := h.incentives.Quest(ctx, "q1"); q.Status != incentive.QuestCompleted || q.Progress != 1 {
		t.Fatalf("stored quest = %+v", q)
	}

	spend := out.Completion.Award.Campaign
	if spend == nil || spend.CampaignID != "casa-rain" || spend.Result.Granted != 100 || !spend.Result.Capped {
		t.Fatalf("campaign spend = %+v", spend)
	}
	if camp, _ := h.incentives.Campaign(ctx, "casa-rain"); camp.Active || camp.Spent != 100 {
		t.Fatalf("campaign = %+v", camp)
	}
}

func TestAssignDriverRefusesCashOverTrustLimit(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	c, err := h.d.CreateDelivery(ctx, "ord-big")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = h.d.AssignDriver(ctx, c.Tracking.ID, "drv-1")
	if !errors.Is(err, ErrCashLimit) {
		t.Fatalf("expected ErrCashLimit, got %v", err)
	}
	got, err := h.d.deliveries.Get(ctx, c.Tracking.ID)
	if err != nil || got.Status != delivery.StatusPending || got.DriverID != nil {
		t.Fatalf("delivery changed after refusal: %+v %v", got, err)
	}
}

func TestAdvanceDeliveryIllegalEdge(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	c, err := h.d.CreateDelivery(ctx, "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = h.d.AdvanceDelivery(ctx, c.Tracking.ID, delivery.StatusDelivered, "driver app")
	var se *delivery.StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if entries, _ := h.ledger.ByReference(ctx, "ord-card"); len(entries) != 0 {
		t.Fatalf("illegal edge wrote %d ledger entries", len(entries))
	}
}

func TestTrackDriverReportsGeofenceEntry(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	c, err := h.d.CreateDelivery(ctx, "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.d.AssignDriver(ctx, c.Tracking.ID, "drv-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	far := types.Point{Lat: 33.60, Lng: -7.55}
	tr, err := h.d.TrackDriver(ctx, c.Tracking.ID, far)
	if err != nil || len(tr.Events) != 0 {
		t.Fatalf("far position: %+v %v", tr.Events, err)
	}
	tr, err = h.d.TrackDriver(ctx, c.Tracking.ID, restaurant)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if len(tr.Events) != 1 || tr.Events[0].Zone != "pickup" || tr.Events[0].Event != "geofence_entry" {
		t.Fatalf("events = %+v", tr.Events)
	}
	if tr.Tracking.DriverLocation == nil || *tr.Tracking.DriverLocation != restaurant {
		t.Fatalf("location not stored: %+v", tr.Tracking.DriverLocation)
	}
}

func TestPredictETAPersistsEstimates(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	c, err := h.d.CreateDelivery(ctx, "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pred, err := h.d.PredictETA(ctx, c.Tracking.ID)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.TotalMinutes <= 0 || pred.UsedDriverLocation {
		t.Fatalf("prediction = %+v", pred)
	}
	got, err := h.d.deliveries.Get(ctx, c.Tracking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EstimatedDeliveryTime == nil || !got.EstimatedDeliveryTime.Equal(pred.EstimatedDeliveryAt) {
		t.Fatalf("estimate not persisted: %v vs %v", got.EstimatedDeliveryTime, pred.EstimatedDeliveryAt)
	}
}

func TestPlanDriverRoute(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	a, err := h.d.CreateDelivery(ctx, "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := h.d.CreateDelivery(ctx, "ord-cash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name      string
		ids       []types.ID
		wantStops int
		wantErr   bool
	}{
		{name: "two fresh deliveries", ids: []types.ID{a.Tracking.ID, b.Tracking.ID}, wantStops: 4},
		{name: "empty", ids: nil, wantErr: true},
		{name: "unknown delivery", ids: []types.ID{"missing"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := h.d.PlanDriverRoute(ctx, restaurant, tt.ids)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(r.Stops) != tt.wantStops {
				t.Fatalf("stops = %d, want %d", len(r.Stops), tt.wantStops)
			}
			seen := map[types.ID]bool{}
			for _, s := range r.Stops {
				if s.Type == "pickup" {
					seen[s.OrderID] = true
				} else if !seen[s.OrderID] {
					t.Fatalf("dropoff %s before its pickup", s.ID)
				}
			}
		})
	}
}

func TestPlanDriverRouteSkipsCollectedPickups(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	c, err := h.d.CreateDelivery(ctx, "ord-card")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.d.AssignDriver(ctx, c.Tracking.ID, "drv-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	for _, to := range []delivery.Status{delivery.StatusPickingUp, delivery.StatusAtRestaurant, delivery.StatusPickedUp} {
		if _, err := h.d.AdvanceDelivery(ctx, c.Tracking.ID, to, "driver app"); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	r, err := h.d.PlanDriverRoute(ctx, restaurant, []types.ID{c.Tracking.ID})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(r.Stops) != 1 || r.Stops[0].Type != "dropoff" {
		t.Fatalf("stops = %+v", r.Stops)
	}
}
