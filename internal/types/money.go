// README: Common money value object used across modules. Amounts are integer minor units (centimes).
package types

import "fmt"

// DefaultCurrency is the settlement currency when none is supplied.
const DefaultCurrency = "MAD"

type Money struct {
	Amount   int64
	Currency string
}

func (m Money) String() string {
	sign, v := "", m.Amount
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, v/100, v%100, m.Currency)
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash_on_delivery"
	PaymentCard   PaymentMethod = "card"
	PaymentWallet PaymentMethod = "wallet"
)

type Weather string

const (
	WeatherClear Weather = "clear"
	WeatherRain  Weather = "rain"
	WeatherStorm Weather = "storm"
	WeatherHeat  Weather = "heat"
)

func (w Weather) Valid() bool {
	switch w {
	case WeatherClear, WeatherRain, WeatherStorm, WeatherHeat:
		return true
	}
	return false
}
