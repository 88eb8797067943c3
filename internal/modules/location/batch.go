package location

import (
	"fmt"
	"sort"
	"time"

	"tawsil/internal/geo"
	"tawsil/internal/types"
)

// BatchUpdateLocations validates a batch of reports and keeps only the
// latest-timestamped update per driver. Validation is all-or-nothing: one bad
// report rejects the whole batch. Output is ordered by driver ID.
func BatchUpdateLocations(updates []Update) ([]Update, error) {
	for i, u := range updates {
		if u.DriverID == "" {
			return nil, types.Invalid(fmt.Sprintf("updates[%d].driver_id", i), "must not be empty")
		}
		if err := u.Position.Validate(); err != nil {
			return nil, fmt.Errorf("updates[%d]: %w", i, err)
		}
		if u.Timestamp.IsZero() {
			return nil, types.Invalid(fmt.Sprintf("updates[%d].timestamp", i), "must be set")
		}
		if u.BatteryPct != nil && (*u.BatteryPct < 0 || *u.BatteryPct > 100) {
			return nil, types.Invalid(fmt.Sprintf("updates[%d].battery_pct", i), "%d is outside [0, 100]", *u.BatteryPct)
		}
	}

	latest := make(map[types.ID]Update, len(updates))
	for _, u := range updates {
		cur, ok := latest[u.DriverID]
		if !ok || u.Timestamp.After(cur.Timestamp) {
			latest[u.DriverID] = u
		}
	}

	out := make([]Update, 0, len(latest))
	for _, u := range latest {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

// DetectStationary reports whether the driver has stayed within radiusKm of
// the newest position for at least minDuration. history must be ordered
// oldest first.
func DetectStationary(history []Update, radiusKm float64, minDuration time.Duration) bool {
	if len(history) < 2 {
		return false
	}
	newest := history[len(history)-1]
	since := newest.Timestamp
	for i := len(history) - 2; i >= 0; i-- {
		if geo.HaversineKm(history[i].Position, newest.Position) > radiusKm {
			break
		}
		since = history[i].Timestamp
	}
	return newest.Timestamp.Sub(since) >= minDuration
}

// IsLowBattery reports whether a reported battery level is at or below the threshold.
func IsLowBattery(pct *int, threshold int) bool {
	return pct != nil && *pct <= threshold
}
