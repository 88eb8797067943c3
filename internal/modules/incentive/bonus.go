package incentive

import (
	"fmt"
	"time"

	"tawsil/internal/modules/pricing"
	"tawsil/internal/types"
)

// BonusContext describes the delivery being rewarded.
type BonusContext struct {
	// City selects the campaigns that may fund the bonus.
	City        string
	Time        pricing.TimeContext
	Weather     types.Weather
	DemandLevel pricing.DemandLevel
	// Streak is the driver's consecutive on-time deliveries including this one.
	Streak int
}

// CalculateBonuses lists every incentive the delivery qualifies for.
func CalculateBonuses(bc BonusContext, cfg BonusConfig) []Bonus {
	var out []Bonus
	if bc.Time.IsPeakHour && cfg.PeakBonus > 0 {
		out = append(out, Bonus{Type: BonusPeak, Amount: cfg.PeakBonus, Reason: fmt.Sprintf("peak hour %02d:00", bc.Time.Hour)})
	}
	if amt := cfg.WeatherBonus[bc.Weather]; amt > 0 {
		out = append(out, Bonus{Type: BonusWeather, Amount: amt, Reason: "weather: " + string(bc.Weather)})
	}
	if cfg.StreakThreshold > 0 && bc.Streak >= cfg.StreakThreshold && bc.Streak%cfg.StreakThreshold == 0 {
		out = append(out, Bonus{Type: BonusStreak, Amount: cfg.StreakBonus, Reason: fmt.Sprintf("%d deliveries in a row", bc.Streak)})
	}
	switch bc.DemandLevel {
	case pricing.DemandHigh, pricing.DemandVeryHigh, pricing.DemandExtreme:
		out = append(out, Bonus{Type: BonusZone, Amount: cfg.ZoneBonus, Reason: "demand " + string(bc.DemandLevel)})
	}
	if bc.Time.Period == pricing.PeriodRamadanIftar && cfg.RamadanIftarBonus > 0 {
		out = append(out, Bonus{Type: BonusRamadanIftar, Amount: cfg.RamadanIftarBonus, Reason: "delivery during iftar"})
	}
	return out
}

func TotalBonus(bonuses []Bonus) int64 {
	var total int64
	for _, b := range bonuses {
		total += b.Amount
	}
	return total
}

// ApplyBudgetCap grants at most the remaining daily budget, never a
// negative amount.
func ApplyBudgetCap(amount int64, b IncentiveBudget) (CapResult, IncentiveBudget) {
	res := CapResult{Requested: amount, Granted: amount}
	if amount <= 0 {
		res.Granted = 0
		return res, b
	}
	if remaining := b.Remaining(); amount > remaining {
		res.Granted = remaining
		res.Capped = true
	}
	b.Spent += res.Granted
	return res, b
}

// RecordCampaignSpend books up to amount against the campaign budget and
// deactivates the campaign once the budget is used up.
func RecordCampaignSpend(c IncentiveCampaign, amount int64) (IncentiveCampaign, CapResult, error) {
	if amount <= 0 {
		return IncentiveCampaign{}, CapResult{}, types.Invalid("amount", "must be positive, got %d", amount)
	}
	res := CapResult{Requested: amount}
	if !c.Active {
		res.Capped = true
		return c, res, nil
	}
	remaining := c.Budget - c.Spent
	if remaining < 0 {
		remaining = 0
	}
	res.Granted = amount
	if amount > remaining {
		res.Granted, res.Capped = remaining, true
	}
	c.Spent += res.Granted
	if c.Spent >= c.Budget {
		c.Active = false
	}
	return c, res, nil
}

// ReleaseCampaignSpend gives back spend booked for an award that never
// settled. A campaign closed only by exhaustion reopens.
func ReleaseCampaignSpend(c IncentiveCampaign, amount int64) IncentiveCampaign {
	if amount <= 0 {
		return c
	}
	exhausted := c.Spent >= c.Budget
	if amount > c.Spent {
		amount = c.Spent
	}
	c.Spent -= amount
	if exhausted && !c.Active && c.Spent < c.Budget {
		c.Active = true
	}
	return c
}

func IsCampaignEligible(c IncentiveCampaign, city string, now time.Time) bool {
	if !c.Active || c.Spent >= c.Budget {
		return false
	}
	if now.Before(c.StartsAt) || !now.Before(c.EndsAt) {
		return false
	}
	if len(c.Cities) == 0 {
		return true
	}
	for _, ct := range c.Cities {
		if ct == city {
			return true
		}
	}
	return false
}
