// README: Location store backed by Redis GEO, a per-driver hash and a short position history.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

const (
	driverGeoKey      = "location:drivers"
	driverKeyPrefix   = "location:driver:%s"
	historyKeyPrefix  = "location:driver:%s:history"
	driverKeyTTL      = 24 * time.Hour
	defaultHistoryLen = 30
)

// saveIfNewer writes the update only when it is strictly newer than what is
// stored, so redelivered or reordered reports are no-ops.
var saveIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'lat', ARGV[2], 'lng', ARGV[3])
redis.call('EXPIRE', KEYS[1], ARGV[7])
redis.call('GEOADD', KEYS[2], ARGV[3], ARGV[2], ARGV[4])
redis.call('LPUSH', KEYS[3], ARGV[5])
redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[6]) - 1)
redis.call('EXPIRE', KEYS[3], ARGV[7])
return 1
`)

type Store struct {
	redis      *redis.Client
	historyLen int
}

func NewStore(redis *redis.Client, historyLen int) *Store {
	if historyLen <= 0 {
		historyLen = defaultHistoryLen
	}
	return &Store{redis: redis, historyLen: historyLen}
}

// Save stores u if it is newer than the driver's last known update and
// reports whether it was written.
func (s *Store) Save(ctx context.Context, u Update) (bool, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return false, err
	}
	res, err := saveIfNewer.Run(ctx, s.redis,
		[]string{driverKey(u.DriverID), driverGeoKey, historyKey(u.DriverID)},
		u.Timestamp.UnixMilli(),
		u.Position.Lat,
		u.Position.Lng,
		string(u.DriverID),
		string(payload),
		s.historyLen,
		int(driverKeyTTL.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("save location %s: %w", u.DriverID, err)
	}
	return res == 1, nil
}

// Last returns the newest stored position for a driver.
func (s *Store) Last(ctx context.Context, driverID types.ID) (Update, bool, error) {
	raw, err := s.redis.LIndex(ctx, historyKey(driverID), 0).Result()
	if errors.Is(err, redis.Nil) {
		return Update{}, false, nil
	}
	if err != nil {
		return Update{}, false, err
	}
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return Update{}, false, err
	}
	return u, true, nil
}

// History returns recent updates for a driver, oldest first.
func (s *Store) History(ctx context.Context, driverID types.ID) ([]Update, error) {
	raws, err := s.redis.LRange(ctx, historyKey(driverID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Update, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var u Update
		if err := json.Unmarshal([]byte(raws[i]), &u); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", driverID, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// NearbyDrivers lists drivers within radiusKm of p, closest first.
func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("search drivers near %v,%v: %w", p.Lat, p.Lng, err)
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// CountWithin counts drivers currently positioned inside c.
func (s *Store) CountWithin(ctx context.Context, c geo.Circle) (int, error) {
	ids, err := s.NearbyDrivers(ctx, c.Center, c.RadiusKm)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Remove takes a driver off the map, e.g. when they go offline.
func (s *Store) Remove(ctx context.Context, driverID types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, driverGeoKey, string(driverID))
	pipe.Del(ctx, driverKey(driverID), historyKey(driverID))
	_, err := pipe.Exec(ctx)
	return err
}

func driverKey(id types.ID) string {
	return fmt.Sprintf(driverKeyPrefix, string(id))
}

func historyKey(id types.ID) string {
	return fmt.Sprintf(historyKeyPrefix, string(id))
}
