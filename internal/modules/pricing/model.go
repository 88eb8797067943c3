// README: Pricing vocabulary: time periods, demand levels, surge and fee configuration.
package pricing

import (
	"encoding/json"
	"math"
	"time"

	"tawsil/internal/types"
)

type Period string

const (
	PeriodMorning      Period = "morning"
	PeriodMidday       Period = "midday"
	PeriodAfternoon    Period = "afternoon"
	PeriodEveningRush  Period = "evening_rush"
	PeriodNight        Period = "night"
	PeriodFridayPrayer Period = "friday_prayer"
	PeriodRamadanIftar Period = "ramadan_iftar"
)

// TimeContext is the calendar classification of one instant.
type TimeContext struct {
	Period     Period `json:"period"`
	Hour       int    `json:"hour"`
	IsWeekend  bool   `json:"is_weekend"`
	IsFriday   bool   `json:"is_friday"`
	IsRamadan  bool   `json:"is_ramadan"`
	IsHoliday  bool   `json:"is_holiday"`
	IsPeakHour bool   `json:"is_peak_hour"`
}

type MonthDay struct {
	Month time.Month
	Day   int
}

type HourRange struct {
	Start int
	End   int
}

type CalendarConfig struct {
	Location  *time.Location
	Holidays  []MonthDay
	PeakHours []HourRange

	// Ramadan is approximated as RamadanDays days starting at RamadanAnchor
	// and repeating every LunarYearDays. This is not a Hijri conversion and
	// drifts by up to a day or two.
	RamadanAnchor time.Time
	LunarYearDays float64
	RamadanDays   int
}

func DefaultCalendarConfig() CalendarConfig {
	loc, err := time.LoadLocation("Africa/Casablanca")
	if err != nil {
		loc = time.FixedZone("WEST", 3600)
	}
	return CalendarConfig{
		Location: loc,
		// Fixed-date national holidays. Religious holidays move with the
		// lunar calendar and are not listed.
		Holidays: []MonthDay{
			{time.January, 1},
			{time.January, 11},
			{time.January, 14},
			{time.May, 1},
			{time.July, 30},
			{time.August, 14},
			{time.August, 20},
			{time.August, 21},
			{time.November, 6},
			{time.November, 18},
		},
		PeakHours:     []HourRange{{Start: 12, End: 14}, {Start: 19, End: 22}},
		RamadanAnchor: time.Date(2026, time.February, 18, 0, 0, 0, 0, time.UTC),
		LunarYearDays: 354.37,
		RamadanDays:   30,
	}
}

type DemandLevel string

const (
	DemandVeryLow  DemandLevel = "very_low"
	DemandLow      DemandLevel = "low"
	DemandNormal   DemandLevel = "normal"
	DemandHigh     DemandLevel = "high"
	DemandVeryHigh DemandLevel = "very_high"
	DemandExtreme  DemandLevel = "extreme"
)

// ZoneStats is recomputed for every query and never stored.
type ZoneStats struct {
	ZoneID           string      `json:"zone_id"`
	ActiveOrders     int         `json:"active_orders"`
	AvailableDrivers int         `json:"available_drivers"`
	Ratio            float64     `json:"ratio"`
	Level            DemandLevel `json:"level"`
}

// finiteRatio is how a ratio goes over the wire: JSON has no infinity, so a
// zone with orders and no drivers reports ratio null and saturated true.
func finiteRatio(r float64) (*float64, bool) {
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return nil, true
	}
	return &r, false
}

func (z ZoneStats) MarshalJSON() ([]byte, error) {
	type plain ZoneStats
	ratio, saturated := finiteRatio(z.Ratio)
	return json.Marshal(struct {
		plain
		Ratio     *float64 `json:"ratio"`
		Saturated bool     `json:"saturated"`
	}{plain(z), ratio, saturated})
}

type SurgeConfig struct {
	BaseMultiplier  float64
	DemandThreshold float64
	Sensitivity     float64
	MaxMultiplier   float64
}

func DefaultSurgeConfig() SurgeConfig {
	return SurgeConfig{
		BaseMultiplier:  1.0,
		DemandThreshold: 0.8,
		Sensitivity:     0.5,
		MaxMultiplier:   2.5,
	}
}

type SurgeResult struct {
	Multiplier float64     `json:"multiplier"`
	Ratio      float64     `json:"ratio"`
	Level      DemandLevel `json:"level"`
	Active     bool        `json:"active"`
	Capped     bool        `json:"capped"`
}

func (r SurgeResult) MarshalJSON() ([]byte, error) {
	type plain SurgeResult
	ratio, saturated := finiteRatio(r.Ratio)
	return json.Marshal(struct {
		plain
		Ratio     *float64 `json:"ratio"`
		Saturated bool     `json:"saturated"`
	}{plain(r), ratio, saturated})
}

// FeeConfig amounts are centimes.
type FeeConfig struct {
	BaseFee        int64
	PerKm          int64
	PeakMultiplier float64
	MinFee         int64
	MaxFee         int64
	Currency       string
}

func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		BaseFee:        1000,
		PerKm:          300,
		PeakMultiplier: 1.25,
		MinFee:         800,
		MaxFee:         5000,
		Currency:       types.DefaultCurrency,
	}
}

type FeeQuote struct {
	BaseFee         int64   `json:"base_fee"`
	DistanceFee     int64   `json:"distance_fee"`
	SurgeFee        int64   `json:"surge_fee"`
	Total           int64   `json:"total"`
	Currency        string  `json:"currency"`
	DistanceKm      float64 `json:"distance_km"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	Peak            bool    `json:"peak"`
	Clamped         bool    `json:"clamped"`
}

func (q FeeQuote) Money() types.Money {
	return types.Money{Amount: q.Total, Currency: q.Currency}
}
