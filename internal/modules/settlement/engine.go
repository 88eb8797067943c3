// README: Settlement engine: commission tiers, driver pay, the order split and its ledger entries.
package settlement

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tawsil/internal/types"
)

// CommissionRate picks the tier with the highest threshold not above
// monthlyOrders.
func CommissionRate(monthlyOrders int, tiers []CommissionTier) float64 {
	rate := 0.0
	best := -1
	for _, t := range tiers {
		if t.MinMonthlyOrders <= monthlyOrders && t.MinMonthlyOrders > best {
			rate, best = t.Rate, t.MinMonthlyOrders
		}
	}
	return rate
}

// CalculateDriverPay composes base, capped distance bonus, peak, weather
// and incentive bonuses, subtracts penalties and floors at the minimum.
// The tip is added after the floor so it never pays for the guarantee.
func CalculateDriverPay(in OrderInput, cfg DriverPayConfig) DriverPay {
	p := DriverPay{
		Base:           cfg.Base,
		DistanceBonus:  int64(math.Round(in.DistanceKm * float64(cfg.PerKm))),
		WeatherBonus:   cfg.WeatherBonus[in.Weather],
		IncentiveBonus: in.IncentiveBonus,
		Penalties:      in.Penalties,
		Tip:            in.Tip,
	}
	if p.DistanceBonus > cfg.DistanceBonusCap {
		p.DistanceBonus = cfg.DistanceBonusCap
	}
	if in.Peak {
		p.PeakBonus = cfg.PeakBonus
	}
	earned := p.Base + p.DistanceBonus + p.PeakBonus + p.WeatherBonus + p.IncentiveBonus - p.Penalties
	if earned < cfg.Minimum {
		p.MinimumTopUp = cfg.Minimum - earned
		earned = cfg.Minimum
	}
	p.Earned = earned
	p.Total = earned + p.Tip
	return p
}

func validateOrder(in OrderInput) error {
	switch {
	case in.OrderID == "":
		return types.Invalid("order_id", "must not be empty")
	case in.OrderAmount < 0:
		return types.Invalid("order_amount", "must be >= 0")
	case in.DeliveryFee < 0:
		return types.Invalid("delivery_fee", "must be >= 0")
	case in.Tip < 0:
		return types.Invalid("tip", "must be >= 0")
	case in.Penalties < 0:
		return types.Invalid("penalties", "must be >= 0")
	case in.IncentiveBonus < 0:
		return types.Invalid("incentive_bonus", "must be >= 0")
	case math.IsNaN(in.DistanceKm) || in.DistanceKm < 0:
		return types.Invalid("distance_km", "must be >= 0")
	}
	return nil
}

// SettleOrder splits a completed order between restaurant, driver and
// platform. The restaurant payout is floored at zero; the platform absorbs
// the difference as RestaurantShortfall.
func SettleOrder(in OrderInput, cfg Config, now time.Time) (Settlement, error) {
	if err := validateOrder(in); err != nil {
		return Settlement{}, err
	}
	s := Settlement{
		OrderID:        in.OrderID,
		RestaurantID:   in.RestaurantID,
		DriverID:       in.DriverID,
		PaymentMethod:  in.PaymentMethod,
		Currency:       cfg.Currency,
		OrderAmount:    in.OrderAmount,
		DeliveryFee:    in.DeliveryFee,
		Tip:            in.Tip,
		CommissionRate: CommissionRate(in.MonthlyOrders, cfg.CommissionTiers),
		PlatformFee:    cfg.PlatformFee,
		DriverPay:      CalculateDriverPay(in, cfg.DriverPay),
		SettledAt:      now,
	}
	s.Commission = int64(math.Round(float64(in.OrderAmount) * s.CommissionRate))
	s.RestaurantPayout = in.OrderAmount - s.Commission - s.PlatformFee
	if s.RestaurantPayout < 0 {
		s.RestaurantShortfall = -s.RestaurantPayout
		s.RestaurantPayout = 0
	}
	s.DeliveryMargin = in.DeliveryFee - s.DriverPay.Earned
	s.PlatformRevenue = s.Commission + s.PlatformFee - s.RestaurantShortfall
	if s.DeliveryMargin > 0 {
		s.PlatformRevenue += s.DeliveryMargin
	}
	if s.PlatformRevenue > 0 && cfg.VATRate > 0 {
		// Revenue is VAT-inclusive.
		s.VAT = int64(math.Round(float64(s.PlatformRevenue) * cfg.VATRate / (1 + cfg.VATRate)))
	}
	s.TotalCharged = in.OrderAmount + in.DeliveryFee + in.Tip
	return s, nil
}

// GenerateLedgerEntries emits one signed entry per money movement of s.
// The entries sum to s.TotalCharged.
func GenerateLedgerEntries(s Settlement) []LedgerEntry {
	ref := s.OrderID
	b := entryBuilder{currency: s.Currency, at: s.SettledAt, ref: ref}

	b.add(EntryRestaurantPayout, s.RestaurantPayout, s.RestaurantID, EntityRestaurant,
		fmt.Sprintf("restaurant share of order %s", ref))
	b.add(EntryCommission, s.Commission, PlatformEntityID, EntityPlatform,
		fmt.Sprintf("commission %.0f%% on order %s", s.CommissionRate*100, ref))
	b.add(EntryPlatformFee, s.PlatformFee, PlatformEntityID, EntityPlatform,
		fmt.Sprintf("platform fee on order %s", ref))
	if s.RestaurantShortfall > 0 {
		b.add(EntryRestaurantShortfall, -s.RestaurantShortfall, PlatformEntityID, EntityPlatform,
			fmt.Sprintf("platform absorbs restaurant shortfall on order %s", ref))
	}
	b.add(EntryDriverPayout, s.DriverPay.Earned, s.DriverID, EntityDriver,
		fmt.Sprintf("delivery pay for order %s", ref))
	if s.DeliveryMargin != 0 {
		b.add(EntryDeliveryMargin, s.DeliveryMargin, PlatformEntityID, EntityPlatform,
			fmt.Sprintf("delivery fee margin on order %s", ref))
	}
	if s.Tip > 0 {
		b.add(EntryTip, s.Tip, s.DriverID, EntityDriver, fmt.Sprintf("tip on order %s", ref))
	}
	if s.VAT > 0 {
		b.add(EntryVATPayable, s.VAT, "vat", EntityTax, fmt.Sprintf("VAT on platform revenue for order %s", ref))
		b.add(EntryVATOffset, -s.VAT, PlatformEntityID, EntityPlatform, fmt.Sprintf("VAT deducted from platform revenue for order %s", ref))
	}
	return b.entries
}

// CreateRefund books a refund of amount against a settled order as a new
// offsetting entry; earlier entries are left untouched.
func CreateRefund(s Settlement, amount int64, reason string, now time.Time) (Refund, error) {
	if amount <= 0 {
		return Refund{}, types.Invalid("amount", "must be positive, got %d", amount)
	}
	if reason == "" {
		return Refund{}, types.Invalid("reason", "must not be empty")
	}
	if amount > s.TotalCharged {
		return Refund{}, types.Invalid("amount", "%d exceeds charged total %d", amount, s.TotalCharged)
	}
	b := entryBuilder{currency: s.Currency, at: now, ref: s.OrderID}
	b.add(EntryRefund, -amount, PlatformEntityID, EntityPlatform, fmt.Sprintf("refund on order %s: %s", s.OrderID, reason))
	return Refund{
		ID:        types.ID(uuid.NewString()),
		OrderID:   s.OrderID,
		Amount:    amount,
		Reason:    reason,
		Entries:   b.entries,
		CreatedAt: now,
	}, nil
}

// SumEntries nets a set of entries.
func SumEntries(entries []LedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total
}

type entryBuilder struct {
	currency string
	at       time.Time
	ref      types.ID
	entries  []LedgerEntry
}

func (b *entryBuilder) add(t EntryType, amount int64, entityID types.ID, entityType EntityType, desc string) {
	b.entries = append(b.entries, LedgerEntry{
		ID:          types.ID(uuid.NewString()),
		Type:        t,
		Amount:      amount,
		Currency:    b.currency,
		EntityID:    entityID,
		EntityType:  entityType,
		Description: desc,
		Timestamp:   b.at,
		ReferenceID: b.ref,
	})
}
