package pricing

import (
	"math"
	"time"
)

// ClassifyTime maps an instant to its local period and calendar flags.
// Ramadan iftar wins over Friday prayer, which wins over the hour bucket.
func ClassifyTime(at time.Time, cfg CalendarConfig) TimeContext {
	local := at
	if cfg.Location != nil {
		local = at.In(cfg.Location)
	}
	hour := local.Hour()
	ctx := TimeContext{
		Hour:      hour,
		IsFriday:  local.Weekday() == time.Friday,
		IsWeekend: local.Weekday() == time.Saturday || local.Weekday() == time.Sunday,
		IsRamadan: IsRamadan(local, cfg),
		IsHoliday: IsHoliday(local, cfg),
	}
	for _, r := range cfg.PeakHours {
		if hour >= r.Start && hour < r.End {
			ctx.IsPeakHour = true
			break
		}
	}

	switch {
	case ctx.IsRamadan && hour >= 18 && hour < 20:
		ctx.Period = PeriodRamadanIftar
	case ctx.IsFriday && hour >= 12 && hour < 14:
		ctx.Period = PeriodFridayPrayer
	case hour >= 6 && hour < 11:
		ctx.Period = PeriodMorning
	case hour >= 11 && hour < 14:
		ctx.Period = PeriodMidday
	case hour >= 14 && hour < 17:
		ctx.Period = PeriodAfternoon
	case hour >= 17 && hour < 21:
		ctx.Period = PeriodEveningRush
	default:
		ctx.Period = PeriodNight
	}
	return ctx
}

// IsRamadan uses a fixed-length window repeating every lunar year from the
// configured anchor. Approximate: see CalendarConfig.
func IsRamadan(at time.Time, cfg CalendarConfig) bool {
	if cfg.LunarYearDays <= 0 || cfg.RamadanDays <= 0 {
		return false
	}
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	anchor := time.Date(cfg.RamadanAnchor.Year(), cfg.RamadanAnchor.Month(), cfg.RamadanAnchor.Day(), 0, 0, 0, 0, time.UTC)
	days := day.Sub(anchor).Hours() / 24
	offset := math.Mod(days, cfg.LunarYearDays)
	if offset < 0 {
		offset += cfg.LunarYearDays
	}
	return offset < float64(cfg.RamadanDays)
}

func IsHoliday(at time.Time, cfg CalendarConfig) bool {
	for _, h := range cfg.Holidays {
		if at.Month() == h.Month && at.Day() == h.Day {
			return true
		}
	}
	return false
}
