// README: Pricing service quotes delivery fees from live zone supply and serves demand forecasts.
package pricing

import (
	"context"
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/logger"
	"tawsil/internal/types"
)

// DriverCounter counts available drivers inside a zone.
type DriverCounter interface {
	CountWithin(ctx context.Context, c geo.Circle) (int, error)
}

type Config struct {
	Calendar CalendarConfig
	Surge    SurgeConfig
	Fee      FeeConfig
	Forecast ForecastConfig
	// HistoryWeeks bounds how far back forecasts look.
	HistoryWeeks int
}

func DefaultConfig() Config {
	return Config{
		Calendar:     DefaultCalendarConfig(),
		Surge:        DefaultSurgeConfig(),
		Fee:          DefaultFeeConfig(),
		Forecast:     DefaultForecastConfig(),
		HistoryWeeks: 8,
	}
}

type Service struct {
	drivers DriverCounter
	history History
	cfg     Config
	log     logger.ILogger
	now     func() time.Time
}

func NewService(drivers DriverCounter, history History, cfg Config, log logger.ILogger) *Service {
	return &Service{
		drivers: drivers,
		history: history,
		cfg:     cfg,
		log:     logger.Component(log, "pricing"),
		now:     time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type QuoteRequest struct {
	ZoneID       string
	Zone         geo.Circle
	Pickup       types.Point
	Dropoff      types.Point
	ActiveOrders int
}

type Quote struct {
	Fee   FeeQuote    `json:"fee"`
	Surge SurgeResult `json:"surge"`
	Stats ZoneStats   `json:"stats"`
	Time  TimeContext `json:"time"`
}

// Quote prices a trip with the zone's current order/driver balance.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if err := req.Pickup.Validate(); err != nil {
		return Quote{}, err
	}
	if err := req.Dropoff.Validate(); err != nil {
		return Quote{}, err
	}
	if req.ActiveOrders < 0 {
		return Quote{}, types.Invalid("active_orders", "must be >= 0")
	}

	stats, err := s.ZoneStats(ctx, req.ZoneID, req.Zone, req.ActiveOrders)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Stats: stats, Time: s.TimeContext()}
	q.Surge = CalculateSurge(q.Stats, s.cfg.Surge)
	fee, err := CalculateDeliveryFee(geo.RoadDistanceKm(req.Pickup, req.Dropoff), q.Surge.Multiplier, q.Time.IsPeakHour, s.cfg.Fee)
	if err != nil {
		return Quote{}, err
	}
	q.Fee = fee

	s.log.Info("surge computed",
		logger.String("zone_id", req.ZoneID),
		logger.Int("active_orders", req.ActiveOrders),
		logger.Int("available_drivers", stats.AvailableDrivers),
		logger.String("demand_level", string(q.Stats.Level)),
		logger.Float64("multiplier", q.Surge.Multiplier),
		logger.Int64("fee", fee.Total),
	)
	return q, nil
}

// ZoneStats counts available drivers in zone against activeOrders.
func (s *Service) ZoneStats(ctx context.Context, zoneID string, zone geo.Circle, activeOrders int) (ZoneStats, error) {
	drivers := 0
	if s.drivers != nil {
		n, err := s.drivers.CountWithin(ctx, zone)
		if err != nil {
			return ZoneStats{}, err
		}
		drivers = n
	}
	return ComputeZoneStats(zoneID, activeOrders, drivers), nil
}

// TimeContext classifies the current time.
func (s *Service) TimeContext() TimeContext {
	return ClassifyTime(s.now(), s.cfg.Calendar)
}

// RecordOrder adds one order to the zone's demand history.
func (s *Service) RecordOrder(ctx context.Context, zoneID string) error {
	if s.history == nil {
		return nil
	}
	return s.history.RecordOrder(ctx, zoneID, s.now())
}

type DayForecast struct {
	ZoneID string         `json:"zone_id"`
	Day    time.Time      `json:"day"`
	Hours  []HourForecast `json:"hours"`
	// Drivers is the recommended driver count per hour.
	Drivers []int `json:"drivers"`
}

// Forecast predicts hourly demand for day from the same weekday in the
// last HistoryWeeks weeks.
func (s *Service) Forecast(ctx context.Context, zoneID string, day time.Time) (DayForecast, error) {
	var samples []HourlySample
	if s.history != nil {
		since := day.AddDate(0, 0, -7*s.cfg.HistoryWeeks)
		var err error
		samples, err = s.history.Samples(ctx, zoneID, day.Weekday(), since)
		if err != nil {
			return DayForecast{}, err
		}
	}
	hours := ForecastDay(samples, s.cfg.Forecast)
	drivers := make([]int, len(hours))
	for i, h := range hours {
		drivers[i] = RecommendedDrivers(h.ExpectedOrders, s.cfg.Forecast)
	}
	return DayForecast{ZoneID: zoneID, Day: day, Hours: hours, Drivers: drivers}, nil
}
