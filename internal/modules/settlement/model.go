// README: Settlement inputs/outputs, ledger entry and payout types, commission and pay tables.
package settlement

import (
	"time"

	"tawsil/internal/types"
)

type CommissionTier struct {
	MinMonthlyOrders int
	Rate             float64
}

// DriverPayConfig amounts are centimes.
type DriverPayConfig struct {
	Base             int64
	PerKm            int64
	DistanceBonusCap int64
	PeakBonus        int64
	WeatherBonus     map[types.Weather]int64
	Minimum          int64
}

type Config struct {
	// CommissionTiers are sorted by MinMonthlyOrders ascending.
	CommissionTiers []CommissionTier
	PlatformFee     int64
	VATRate         float64
	DriverPay       DriverPayConfig
	Currency        string
}

func DefaultConfig() Config {
	return Config{
		CommissionTiers: []CommissionTier{
			{MinMonthlyOrders: 0, Rate: 0.18},
			{MinMonthlyOrders: 100, Rate: 0.15},
			{MinMonthlyOrders: 300, Rate: 0.12},
			{MinMonthlyOrders: 1000, Rate: 0.10},
		},
		PlatformFee: 200,
		VATRate:     0.20,
		DriverPay: DriverPayConfig{
			Base:             1200,
			PerKm:            200,
			DistanceBonusCap: 1500,
			PeakBonus:        300,
			WeatherBonus: map[types.Weather]int64{
				types.WeatherRain:  300,
				types.WeatherStorm: 500,
				types.WeatherHeat:  200,
			},
			Minimum: 1000,
		},
		Currency: types.DefaultCurrency,
	}
}

// OrderInput is everything needed to settle one completed order.
type OrderInput struct {
	OrderID       types.ID
	RestaurantID  types.ID
	DriverID      types.ID
	OrderAmount   int64
	DeliveryFee   int64
	Tip           int64
	DistanceKm    float64
	MonthlyOrders int
	Peak          bool
	Weather       types.Weather
	// IncentiveBonus is already capped by the incentive budget.
	IncentiveBonus int64
	Penalties      int64
	PaymentMethod  types.PaymentMethod
}

type DriverPay struct {
	Base           int64 `json:"base"`
	DistanceBonus  int64 `json:"distance_bonus"`
	PeakBonus      int64 `json:"peak_bonus"`
	WeatherBonus   int64 `json:"weather_bonus"`
	IncentiveBonus int64 `json:"incentive_bonus"`
	Penalties      int64 `json:"penalties"`
	// MinimumTopUp is what the guaranteed minimum added.
	MinimumTopUp int64 `json:"minimum_top_up"`
	Tip          int64 `json:"tip"`
	// Earned excludes the tip; Total includes it.
	Earned int64 `json:"earned"`
	Total  int64 `json:"total"`
}

type Settlement struct {
	OrderID             types.ID            `json:"order_id"`
	RestaurantID        types.ID            `json:"restaurant_id"`
	DriverID            types.ID            `json:"driver_id"`
	PaymentMethod       types.PaymentMethod `json:"payment_method"`
	Currency            string              `json:"currency"`
	OrderAmount         int64               `json:"order_amount"`
	DeliveryFee         int64               `json:"delivery_fee"`
	Tip                 int64               `json:"tip"`
	CommissionRate      float64             `json:"commission_rate"`
	Commission          int64               `json:"commission"`
	PlatformFee         int64               `json:"platform_fee"`
	RestaurantPayout    int64               `json:"restaurant_payout"`
	RestaurantShortfall int64               `json:"restaurant_shortfall"`
	DriverPay           DriverPay           `json:"driver_pay"`
	// DeliveryMargin is DeliveryFee minus what the driver earned; negative
	// when the platform subsidizes the trip.
	DeliveryMargin  int64     `json:"delivery_margin"`
	PlatformRevenue int64     `json:"platform_revenue"`
	VAT             int64     `json:"vat"`
	TotalCharged    int64     `json:"total_charged"`
	SettledAt       time.Time `json:"settled_at"`
}

type EntryType string

const (
	EntryRestaurantPayout    EntryType = "restaurant_payout"
	EntryCommission          EntryType = "commission"
	EntryPlatformFee         EntryType = "platform_fee"
	EntryDriverPayout        EntryType = "driver_payout"
	EntryDeliveryMargin      EntryType = "delivery_margin"
	EntryTip                 EntryType = "tip"
	EntryRestaurantShortfall EntryType = "restaurant_shortfall"
	EntryVATPayable          EntryType = "vat_payable"
	EntryVATOffset           EntryType = "vat_offset"
	EntryRefund              EntryType = "refund"
)

type EntityType string

const (
	EntityRestaurant EntityType = "restaurant"
	EntityDriver     EntityType = "driver"
	EntityPlatform   EntityType = "platform"
	EntityTax        EntityType = "tax_authority"
	EntityCustomer   EntityType = "customer"
)

// PlatformEntityID is the entity id used for platform-side entries.
const PlatformEntityID types.ID = "platform"

// LedgerEntry is immutable once written. Corrections are new entries.
type LedgerEntry struct {
	ID          types.ID   `json:"id"`
	Type        EntryType  `json:"type"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	EntityID    types.ID   `json:"entity_id"`
	EntityType  EntityType `json:"entity_type"`
	Description string     `json:"description"`
	Timestamp   time.Time  `json:"timestamp"`
	ReferenceID types.ID   `json:"reference_id"`
}

type Refund struct {
	ID        types.ID      `json:"id"`
	OrderID   types.ID      `json:"order_id"`
	Amount    int64         `json:"amount"`
	Reason    string        `json:"reason"`
	Entries   []LedgerEntry `json:"entries"`
	CreatedAt time.Time     `json:"created_at"`
}

type PayoutRequest struct {
	EntityID   types.ID
	EntityType EntityType
	OrderID    types.ID
	Amount     int64
	Currency   string
}

type Payout struct {
	ID         types.ID   `json:"id"`
	EntityID   types.ID   `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	OrderIDs   []types.ID `json:"order_ids"`
	CreatedAt  time.Time  `json:"created_at"`
}
