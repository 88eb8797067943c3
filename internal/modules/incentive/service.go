// README: Incentive service awards per-delivery bonuses within the shared daily budget and runs quests and campaigns.
package incentive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tawsil/internal/logger"
	"tawsil/internal/types"
)

var errCampaignClosed = errors.New("campaign closed")

type Service struct {
	store Repository
	cfg   BonusConfig
	loc   *time.Location
	log   logger.ILogger
	now   func() time.Time
}

func NewService(store Repository, cfg BonusConfig, loc *time.Location, log logger.ILogger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, cfg: cfg, loc: loc, log: logger.Component(log, "incentive"), now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type Award struct {
	Bonuses  []Bonus        `json:"bonuses"`
	Result   CapResult      `json:"result"`
	Campaign *CampaignSpend `json:"campaign,omitempty"`
	// Day is the budget day the grant was reserved against.
	Day time.Time `json:"day"`
}

// Award computes the bonuses for one delivery and reserves them from
// today's budget. The granted amount may be less than requested. The grant
// is booked against the first eligible campaign of bc.City, if any.
func (s *Service) Award(ctx context.Context, driverID types.ID, bc BonusContext) (Award, error) {
	now := s.now().In(s.loc)
	bonuses := CalculateBonuses(bc, s.cfg)
	requested := TotalBonus(bonuses)
	a := Award{Bonuses: bonuses, Result: CapResult{Requested: requested}, Day: now}
	if requested == 0 {
		return a, nil
	}

	granted, err := s.store.Reserve(ctx, now, requested, s.cfg.DailyBudget)
	if err != nil {
		return Award{}, err
	}
	a.Result.Granted = granted
	a.Result.Capped = granted < requested
	if a.Result.Capped {
		s.log.Info("incentive capped",
			logger.String("driver_id", string(driverID)),
			logger.Int64("requested", requested),
			logger.Int64("granted", granted),
		)
	}
	if granted == 0 {
		return a, nil
	}

	spend, err := s.bookCampaign(ctx, bc.City, now, granted)
	if err != nil {
		if rerr := s.store.Release(ctx, now, granted); rerr != nil {
			s.log.Error("release incentive budget failed", logger.Int64("amount", granted), logger.Error(rerr))
		}
		return Award{}, fmt.Errorf("book campaign spend: %w", err)
	}
	a.Campaign = spend
	return a, nil
}

func (s *Service) bookCampaign(ctx context.Context, city string, now time.Time, amount int64) (*CampaignSpend, error) {
	campaigns, err := s.store.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range campaigns {
		if !IsCampaignEligible(c, city, now) {
			continue
		}
		var res CapResult
		_, err := s.store.UpdateCampaign(ctx, c.ID, func(cur IncentiveCampaign) (IncentiveCampaign, error) {
			if !IsCampaignEligible(cur, city, now) {
				return IncentiveCampaign{}, errCampaignClosed
			}
			next, r, err := RecordCampaignSpend(cur, amount)
			res = r
			return next, err
		})
		if errors.Is(err, errCampaignClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if res.Capped {
			s.log.Info("campaign budget exhausted",
				logger.String("campaign_id", string(c.ID)),
				logger.Int64("requested", res.Requested),
				logger.Int64("granted", res.Granted),
			)
		}
		return &CampaignSpend{CampaignID: c.ID, Result: res}, nil
	}
	return nil, nil
}

// Release returns what a is holding to the daily budget and its campaign.
// It is used when the delivery the award was for failed to settle.
func (s *Service) Release(ctx context.Context, a Award) error {
	if a.Result.Granted <= 0 {
		return nil
	}
	if err := s.store.Release(ctx, a.Day, a.Result.Granted); err != nil {
		return err
	}
	if a.Campaign == nil || a.Campaign.Result.Granted <= 0 {
		return nil
	}
	_, err := s.store.UpdateCampaign(ctx, a.Campaign.CampaignID, func(c IncentiveCampaign) (IncentiveCampaign, error) {
		return ReleaseCampaignSpend(c, a.Campaign.Result.Granted), nil
	})
	return err
}

// Budget reports today's spend against the daily limit.
func (s *Service) Budget(ctx context.Context) (IncentiveBudget, error) {
	now := s.now().In(s.loc)
	spent, err := s.store.Spent(ctx, now)
	if err != nil {
		return IncentiveBudget{}, err
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return IncentiveBudget{Day: day, Limit: s.cfg.DailyBudget, Spent: spent}, nil
}

type QuestInput struct {
	ID        types.ID  `json:"id"`
	DriverID  types.ID  `json:"driver_id"`
	Name      string    `json:"name"`
	Target    int       `json:"target"`
	Reward    int64     `json:"reward"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) CreateQuest(ctx context.Context, in QuestInput) (Quest, error) {
	if !in.ExpiresAt.After(s.now()) {
		return Quest{}, types.Invalid("expires_at", "must be in the future")
	}
	q, err := NewQuest(in.ID, in.DriverID, in.Name, in.Target, in.Reward, in.ExpiresAt)
	if err != nil {
		return Quest{}, err
	}
	if err := s.store.CreateQuest(ctx, q); err != nil {
		return Quest{}, err
	}
	s.log.Info("quest created",
		logger.String("quest_id", string(q.ID)),
		logger.String("driver_id", string(q.DriverID)),
		logger.Int("target", q.Target),
	)
	return q, nil
}

// Quest reads a quest as of now; a quest past its deadline reads expired.
func (s *Service) Quest(ctx context.Context, id types.ID) (Quest, error) {
	q, err := s.store.GetQuest(ctx, id)
	if err != nil {
		return Quest{}, err
	}
	q, _ = ExpireQuest(q, s.now())
	return q, nil
}

func (s *Service) DriverQuests(ctx context.Context, driverID types.ID) ([]Quest, error) {
	qs, err := s.store.DriverQuests(ctx, driverID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range qs {
		qs[i], _ = ExpireQuest(qs[i], now)
	}
	return qs, nil
}

func (s *Service) StartQuest(ctx context.Context, id types.ID) (Quest, error) {
	now := s.now()
	return s.store.UpdateQuest(ctx, id, func(q Quest) (Quest, error) {
		return StartQuest(q, now)
	})
}

func (s *Service) ClaimQuest(ctx context.Context, id types.ID) (Quest, error) {
	now := s.now()
	q, err := s.store.UpdateQuest(ctx, id, func(q Quest) (Quest, error) {
		return ClaimQuest(q, now)
	})
	if err != nil {
		return Quest{}, err
	}
	s.log.Info("quest claimed",
		logger.String("quest_id", string(q.ID)),
		logger.String("driver_id", string(q.DriverID)),
		logger.Int64("reward", q.Reward),
	)
	return q, nil
}

// RecordDelivery counts one delivery towards every quest the driver has in
// progress. Quests past their deadline are stored as expired instead. The
// quests that changed are returned.
func (s *Service) RecordDelivery(ctx context.Context, driverID types.ID) ([]Quest, error) {
	qs, err := s.store.DriverQuests(ctx, driverID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var changed []Quest
	for _, q := range qs {
		if q.Status != QuestInProgress {
			continue
		}
		next, err := s.store.UpdateQuest(ctx, q.ID, func(cur Quest) (Quest, error) {
			if expired, ok := ExpireQuest(cur, now); ok {
				return expired, nil
			}
			if cur.Status != QuestInProgress {
				return cur, nil
			}
			return RecordQuestProgress(cur, 1, now)
		})
		if err != nil {
			return changed, err
		}
		if next.Status == QuestCompleted {
			s.log.Info("quest completed",
				logger.String("quest_id", string(next.ID)),
				logger.String("driver_id", string(driverID)),
			)
		}
		changed = append(changed, next)
	}
	return changed, nil
}

type CampaignInput struct {
	ID       types.ID  `json:"id"`
	Name     string    `json:"name"`
	Budget   int64     `json:"budget"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Cities   []string  `json:"cities,omitempty"`
}

func (s *Service) CreateCampaign(ctx context.Context, in CampaignInput) (IncentiveCampaign, error) {
	switch {
	case in.ID == "":
		return IncentiveCampaign{}, types.Invalid("id", "is required")
	case in.Budget <= 0:
		return IncentiveCampaign{}, types.Invalid("budget", "must be positive, got %d", in.Budget)
	case !in.EndsAt.After(in.StartsAt):
		return IncentiveCampaign{}, types.Invalid("ends_at", "must be after starts_at")
	}
	c := IncentiveCampaign{
		ID:       in.ID,
		Name:     in.Name,
		Budget:   in.Budget,
		Active:   true,
		StartsAt: in.StartsAt,
		EndsAt:   in.EndsAt,
		Cities:   in.Cities,
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return IncentiveCampaign{}, err
	}
	s.log.Info("campaign created", logger.String("campaign_id", string(c.ID)), logger.Int64("budget", c.Budget))
	return c, nil
}

func (s *Service) Campaign(ctx context.Context, id types.ID) (IncentiveCampaign, error) {
	return s.store.GetCampaign(ctx, id)
}

func (s *Service) Campaigns(ctx context.Context) ([]IncentiveCampaign, error) {
	return s.store.ListCampaigns(ctx)
}
