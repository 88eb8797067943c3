// README: Quests, bonuses, daily budgets and campaigns for driver incentives.
package incentive

import (
	"errors"
	"fmt"
	"time"

	"tawsil/internal/types"
)

var (
	ErrNotFound = errors.New("incentive record not found")
	ErrConflict = errors.New("incentive record conflict")
)

type QuestStatus string

const (
	QuestAvailable  QuestStatus = "available"
	QuestInProgress QuestStatus = "in_progress"
	QuestCompleted  QuestStatus = "completed"
	QuestClaimed    QuestStatus = "claimed"
	QuestExpired    QuestStatus = "expired"
)

// Terminal quests never change again.
func (s QuestStatus) Terminal() bool {
	return s == QuestClaimed || s == QuestExpired
}

// Quest rewards a driver for reaching Target deliveries before ExpiresAt.
type Quest struct {
	ID          types.ID    `json:"id"`
	DriverID    types.ID    `json:"driver_id"`
	Name        string      `json:"name"`
	Target      int         `json:"target"`
	Progress    int         `json:"progress"`
	Reward      int64       `json:"reward"`
	Status      QuestStatus `json:"status"`
	ExpiresAt   time.Time   `json:"expires_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time  `json:"claimed_at,omitempty"`
}

type QuestStateError struct {
	QuestID types.ID
	From    QuestStatus
	To      QuestStatus
}

func (e *QuestStateError) Error() string {
	return fmt.Sprintf("quest %s: illegal transition: %s -> %s", e.QuestID, e.From, e.To)
}

type BonusType string

const (
	BonusPeak         BonusType = "peak"
	BonusWeather      BonusType = "weather"
	BonusStreak       BonusType = "streak"
	BonusZone         BonusType = "zone"
	BonusRamadanIftar BonusType = "ramadan_iftar"
)

type Bonus struct {
	Type   BonusType `json:"type"`
	Amount int64     `json:"amount"`
	Reason string    `json:"reason"`
}

// BonusConfig amounts are centimes per delivery.
type BonusConfig struct {
	PeakBonus         int64
	WeatherBonus      map[types.Weather]int64
	StreakThreshold   int
	StreakBonus       int64
	ZoneBonus         int64
	RamadanIftarBonus int64
	DailyBudget       int64
}

func DefaultBonusConfig() BonusConfig {
	return BonusConfig{
		PeakBonus: 200,
		WeatherBonus: map[types.Weather]int64{
			types.WeatherRain:  150,
			types.WeatherStorm: 300,
			types.WeatherHeat:  100,
		},
		StreakThreshold:   5,
		StreakBonus:       250,
		ZoneBonus:         200,
		RamadanIftarBonus: 400,
		DailyBudget:       5_000_000,
	}
}

// IncentiveBudget tracks one day of incentive spend.
type IncentiveBudget struct {
	Day   time.Time `json:"day"`
	Limit int64     `json:"limit"`
	Spent int64     `json:"spent"`
}

func (b IncentiveBudget) Remaining() int64 {
	if r := b.Limit - b.Spent; r > 0 {
		return r
	}
	return 0
}

type CapResult struct {
	Requested int64 `json:"requested"`
	Granted   int64 `json:"granted"`
	Capped    bool  `json:"capped"`
}

type IncentiveCampaign struct {
	ID       types.ID  `json:"id"`
	Name     string    `json:"name"`
	Budget   int64     `json:"budget"`
	Spent    int64     `json:"spent"`
	Active   bool      `json:"active"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	// Cities limits the campaign; empty means every city.
	Cities []string `json:"cities,omitempty"`
}

// CampaignSpend is the share of one award booked against a campaign.
type CampaignSpend struct {
	CampaignID types.ID  `json:"campaign_id"`
	Result     CapResult `json:"result"`
}
