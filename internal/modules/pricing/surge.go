// README: Demand classification, surge multiplier and delivery fee calculation.
package pricing

import (
	"math"

	"tawsil/internal/types"
)

// DemandRatio is orders per available driver: 0 without orders and +Inf
// when orders exist but nobody can take them.
func DemandRatio(activeOrders, availableDrivers int) float64 {
	if activeOrders <= 0 {
		return 0
	}
	if availableDrivers <= 0 {
		return math.Inf(1)
	}
	return float64(activeOrders) / float64(availableDrivers)
}

func ClassifyDemand(ratio float64) DemandLevel {
	switch {
	case ratio < 0.3:
		return DemandVeryLow
	case ratio < 0.6:
		return DemandLow
	case ratio < 1.0:
		return DemandNormal
	case ratio < 1.5:
		return DemandHigh
	case ratio < 2.5:
		return DemandVeryHigh
	default:
		return DemandExtreme
	}
}

func ComputeZoneStats(zoneID string, activeOrders, availableDrivers int) ZoneStats {
	ratio := DemandRatio(activeOrders, availableDrivers)
	return ZoneStats{
		ZoneID:           zoneID,
		ActiveOrders:     activeOrders,
		AvailableDrivers: availableDrivers,
		Ratio:            ratio,
		Level:            ClassifyDemand(ratio),
	}
}

// CalculateSurge returns the base multiplier up to the demand threshold and
// rises linearly beyond it, never above cfg.MaxMultiplier.
func CalculateSurge(stats ZoneStats, cfg SurgeConfig) SurgeResult {
	res := SurgeResult{Multiplier: cfg.BaseMultiplier, Ratio: stats.Ratio, Level: stats.Level}
	if stats.Ratio <= cfg.DemandThreshold {
		return res
	}
	m := cfg.BaseMultiplier + (stats.Ratio-cfg.DemandThreshold)*cfg.Sensitivity
	if m >= cfg.MaxMultiplier || math.IsInf(m, 1) || math.IsNaN(m) {
		m = cfg.MaxMultiplier
		res.Capped = true
	}
	// Rounding to cents may step past either bound when they are not round.
	m = math.Round(m*100) / 100
	if m > cfg.MaxMultiplier {
		m = cfg.MaxMultiplier
	}
	if m < cfg.BaseMultiplier {
		m = cfg.BaseMultiplier
	}
	res.Multiplier = m
	res.Active = res.Multiplier > cfg.BaseMultiplier
	return res
}

// CalculateDeliveryFee prices a trip of distanceKm road kilometres. The
// per-km part is boosted at peak, surge applies to the subtotal, and the
// total is clamped to [MinFee, MaxFee].
func CalculateDeliveryFee(distanceKm, surge float64, peak bool, cfg FeeConfig) (FeeQuote, error) {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return FeeQuote{}, types.Invalid("distance_km", "must be a finite value >= 0, got %v", distanceKm)
	}
	if math.IsNaN(surge) || surge < 1 {
		surge = 1
	}

	perKm := float64(cfg.PerKm)
	if peak && cfg.PeakMultiplier > 0 {
		perKm *= cfg.PeakMultiplier
	}
	q := FeeQuote{
		BaseFee:         cfg.BaseFee,
		DistanceFee:     int64(math.Round(distanceKm * perKm)),
		Currency:        cfg.Currency,
		DistanceKm:      distanceKm,
		SurgeMultiplier: surge,
		Peak:            peak,
	}
	subtotal := q.BaseFee + q.DistanceFee
	q.SurgeFee = int64(math.Round(float64(subtotal) * (surge - 1)))
	total := subtotal + q.SurgeFee

	switch {
	case total < cfg.MinFee:
		total, q.Clamped = cfg.MinFee, true
	case total > cfg.MaxFee:
		total, q.Clamped = cfg.MaxFee, true
	}
	q.Total = total
	return q, nil
}
