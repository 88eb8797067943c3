// README: Location service ingests batched driver positions and raises stationary/low-battery warnings.
package location

import (
	"context"

	"tawsil/internal/logger"
	"tawsil/internal/types"
)

// Publisher receives every accepted update, e.g. a live-tracking hub.
type Publisher interface {
	PublishLocation(u Update)
}

type Service struct {
	store *Store
	cfg   DetectionConfig
	pub   Publisher
	log   logger.ILogger
}

func NewService(store *Store, cfg DetectionConfig, pub Publisher, log logger.ILogger) *Service {
	return &Service{store: store, cfg: cfg, pub: pub, log: logger.Component(log, "location")}
}

// BatchUpdate deduplicates the batch, stores what is newer than the stored
// position and reports per-driver outcomes.
func (s *Service) BatchUpdate(ctx context.Context, updates []Update) ([]UpdateResult, error) {
	latest, err := BatchUpdateLocations(updates)
	if err != nil {
		return nil, err
	}

	results := make([]UpdateResult, 0, len(latest))
	for _, u := range latest {
		ok, err := s.store.Save(ctx, u)
		if err != nil {
			return results, err
		}
		res := UpdateResult{DriverID: u.DriverID, Accepted: ok, Stale: !ok}
		if ok {
			res.LowBattery = s.inspect(ctx, u)
			if s.pub != nil {
				s.pub.PublishLocation(u)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// inspect logs stationary and low-battery warnings for an accepted update.
// Failures here only cost a warning.
func (s *Service) inspect(ctx context.Context, u Update) bool {
	low := IsLowBattery(u.BatteryPct, s.cfg.LowBatteryPct)
	if low {
		s.log.Warning("driver battery low",
			logger.String("driver_id", string(u.DriverID)),
			logger.Int("battery_pct", *u.BatteryPct),
		)
	}

	history, err := s.store.History(ctx, u.DriverID)
	if err != nil {
		s.log.Warning("load location history failed", logger.String("driver_id", string(u.DriverID)), logger.Error(err))
		return low
	}
	if DetectStationary(history, s.cfg.StationaryRadiusKm, s.cfg.StationaryMinDuration) {
		s.log.Warning("driver stationary",
			logger.String("driver_id", string(u.DriverID)),
			logger.Float64("lat", u.Position.Lat),
			logger.Float64("lng", u.Position.Lng),
		)
	}
	return low
}

func (s *Service) Last(ctx context.Context, driverID types.ID) (Update, bool, error) {
	return s.store.Last(ctx, driverID)
}

// AvailableDriversIn counts drivers currently inside zone.
func (s *Service) AvailableDriversIn(ctx context.Context, zone Zone) (int, error) {
	return s.store.CountWithin(ctx, zone.Circle)
}

func (s *Service) GoOffline(ctx context.Context, driverID types.ID) error {
	return s.store.Remove(ctx, driverID)
}
