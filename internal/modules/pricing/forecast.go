package pricing

import (
	"math"
	"sort"
	"time"
)

// HourlySample is the order count of one zone for one hour of one day.
type HourlySample struct {
	Day    time.Time `json:"day"`
	Hour   int       `json:"hour"`
	Orders int       `json:"orders"`
}

type HourForecast struct {
	Hour           int     `json:"hour"`
	ExpectedOrders float64 `json:"expected_orders"`
	Confidence     float64 `json:"confidence"`
	Samples        int     `json:"samples"`
}

type ForecastConfig struct {
	// FullConfidenceSamples is the sample count at which sample size stops
	// limiting confidence.
	FullConfidenceSamples int
	OrdersPerDriverHour   float64
}

func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{FullConfidenceSamples: 8, OrdersPerDriverHour: 2.5}
}

// ForecastHour averages counts (oldest first) with linear recency weights:
// the i-th oldest sample weighs i+1. Confidence is the sample-size factor
// scaled down by the coefficient of variation.
func ForecastHour(hour int, counts []int, cfg ForecastConfig) HourForecast {
	f := HourForecast{Hour: hour, Samples: len(counts)}
	if len(counts) == 0 {
		return f
	}

	var weighted, weights, sum float64
	for i, c := range counts {
		w := float64(i + 1)
		weighted += w * float64(c)
		weights += w
		sum += float64(c)
	}
	f.ExpectedOrders = math.Round(weighted/weights*100) / 100

	mean := sum / float64(len(counts))
	var variance float64
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(counts))
	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}

	sampleFactor := 1.0
	if cfg.FullConfidenceSamples > 0 {
		sampleFactor = math.Min(1, float64(len(counts))/float64(cfg.FullConfidenceSamples))
	}
	f.Confidence = math.Round(sampleFactor*math.Max(0, 1-cv)*100) / 100
	return f
}

// ForecastDay forecasts all 24 hours from history, ordering each hour's
// samples by day before weighting.
func ForecastDay(history []HourlySample, cfg ForecastConfig) []HourForecast {
	byHour := make([][]HourlySample, 24)
	for _, s := range history {
		if s.Hour < 0 || s.Hour > 23 {
			continue
		}
		byHour[s.Hour] = append(byHour[s.Hour], s)
	}
	out := make([]HourForecast, 24)
	for h := 0; h < 24; h++ {
		samples := byHour[h]
		sort.SliceStable(samples, func(i, j int) bool { return samples[i].Day.Before(samples[j].Day) })
		counts := make([]int, len(samples))
		for i, s := range samples {
			counts[i] = s.Orders
		}
		out[h] = ForecastHour(h, counts, cfg)
	}
	return out
}

// RecommendedDrivers is the driver count needed to serve expectedOrders in
// one hour.
func RecommendedDrivers(expectedOrders float64, cfg ForecastConfig) int {
	if expectedOrders <= 0 || cfg.OrdersPerDriverHour <= 0 {
		return 0
	}
	return int(math.Ceil(expectedOrders / cfg.OrdersPerDriverHour))
}
