// README: Incentive state in Redis: daily budget counters, quests and campaigns, shared by every API instance.
package incentive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"tawsil/internal/types"
)

const (
	budgetKeyPrefix      = "incentive:budget:%s"
	budgetKeyTTL         = 48 * time.Hour
	questKeyPrefix       = "incentive:quest:%s"
	driverQuestsPrefix   = "incentive:driver:%s:quests"
	campaignKeyPrefix    = "incentive:campaign:%s"
	campaignIndexKey     = "incentive:campaigns"
	maxOptimisticRetries = 5
)

// reserveBudget grants min(requested, limit - spent) and adds it to spent
// in one step.
var reserveBudget = redis.NewScript(`
local spent = tonumber(redis.call('GET', KEYS[1]) or '0')
local want = tonumber(ARGV[1])
local remaining = tonumber(ARGV[2]) - spent
if remaining < 0 then remaining = 0 end
local grant = want
if grant > remaining then grant = remaining end
if grant > 0 then redis.call('INCRBY', KEYS[1], grant) end
redis.call('EXPIRE', KEYS[1], ARGV[3])
return grant
`)

// releaseBudget gives back a reservation, never below zero.
var releaseBudget = redis.NewScript(`
local spent = tonumber(redis.call('GET', KEYS[1]) or '0')
local back = tonumber(ARGV[1])
if back > spent then back = spent end
if back > 0 then redis.call('DECRBY', KEYS[1], back) end
return back
`)

// BudgetStore reserves incentive spend against a daily limit.
type BudgetStore interface {
	Reserve(ctx context.Context, day time.Time, amount, limit int64) (int64, error)
	Release(ctx context.Context, day time.Time, amount int64) error
	Spent(ctx context.Context, day time.Time) (int64, error)
}

type QuestStore interface {
	CreateQuest(ctx context.Context, q Quest) error
	GetQuest(ctx context.Context, id types.ID) (Quest, error)
	DriverQuests(ctx context.Context, driverID types.ID) ([]Quest, error)
	UpdateQuest(ctx context.Context, id types.ID, fn func(Quest) (Quest, error)) (Quest, error)
}

type CampaignStore interface {
	CreateCampaign(ctx context.Context, c IncentiveCampaign) error
	GetCampaign(ctx context.Context, id types.ID) (IncentiveCampaign, error)
	ListCampaigns(ctx context.Context) ([]IncentiveCampaign, error)
	UpdateCampaign(ctx context.Context, id types.ID, fn func(IncentiveCampaign) (IncentiveCampaign, error)) (IncentiveCampaign, error)
}

// Repository is everything the incentive service persists.
type Repository interface {
	BudgetStore
	QuestStore
	CampaignStore
}

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) Reserve(ctx context.Context, day time.Time, amount, limit int64) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	granted, err := reserveBudget.Run(ctx, s.redis, []string{budgetKey(day)},
		amount, limit, int(budgetKeyTTL.Seconds()),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("reserve incentive budget: %w", err)
	}
	return granted, nil
}

func (s *Store) Release(ctx context.Context, day time.Time, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if err := releaseBudget.Run(ctx, s.redis, []string{budgetKey(day)}, amount).Err(); err != nil {
		return fmt.Errorf("release incentive budget: %w", err)
	}
	return nil
}

func (s *Store) Spent(ctx context.Context, day time.Time) (int64, error) {
	v, err := s.redis.Get(ctx, budgetKey(day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read incentive budget: %w", err)
	}
	return v, nil
}

func (s *Store) CreateQuest(ctx context.Context, q Quest) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetNX(ctx, questKey(q.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create quest %s: %w", q.ID, err)
	}
	if !ok {
		return fmt.Errorf("quest %s: %w", q.ID, ErrConflict)
	}
	if err := s.redis.SAdd(ctx, driverQuestsKey(q.DriverID), string(q.ID)).Err(); err != nil {
		return fmt.Errorf("index quest %s: %w", q.ID, err)
	}
	return nil
}

func (s *Store) GetQuest(ctx context.Context, id types.ID) (Quest, error) {
	var q Quest
	if err := getJSON(ctx, s.redis, questKey(id), &q); err != nil {
		return Quest{}, fmt.Errorf("quest %s: %w", id, err)
	}
	return q, nil
}

// DriverQuests returns every quest of a driver ordered by id.
func (s *Store) DriverQuests(ctx context.Context, driverID types.ID) ([]Quest, error) {
	ids, err := s.redis.SMembers(ctx, driverQuestsKey(driverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list quests of %s: %w", driverID, err)
	}
	sort.Strings(ids)
	out := make([]Quest, 0, len(ids))
	for _, id := range ids {
		q, err := s.GetQuest(ctx, types.ID(id))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) UpdateQuest(ctx context.Context, id types.ID, fn func(Quest) (Quest, error)) (Quest, error) {
	var out Quest
	err := s.update(ctx, questKey(id), func(raw []byte) ([]byte, error) {
		var q Quest
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, err
		}
		next, err := fn(q)
		if err != nil {
			return nil, err
		}
		out = next
		return json.Marshal(next)
	})
	if err != nil {
		return Quest{}, fmt.Errorf("update quest %s: %w", id, err)
	}
	return out, nil
}

func (s *Store) CreateCampaign(ctx context.Context, c IncentiveCampaign) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetNX(ctx, campaignKey(c.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create campaign %s: %w", c.ID, err)
	}
	if !ok {
		return fmt.Errorf("campaign %s: %w", c.ID, ErrConflict)
	}
	if err := s.redis.SAdd(ctx, campaignIndexKey, string(c.ID)).Err(); err != nil {
		return fmt.Errorf("index campaign %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, id types.ID) (IncentiveCampaign, error) {
	var c IncentiveCampaign
	if err := getJSON(ctx, s.redis, campaignKey(id), &c); err != nil {
		return IncentiveCampaign{}, fmt.Errorf("campaign %s: %w", id, err)
	}
	return c, nil
}

// ListCampaigns returns every campaign ordered by id.
func (s *Store) ListCampaigns(ctx context.Context) ([]IncentiveCampaign, error) {
	ids, err := s.redis.SMembers(ctx, campaignIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	sort.Strings(ids)
	out := make([]IncentiveCampaign, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetCampaign(ctx, types.ID(id))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) UpdateCampaign(ctx context.Context, id types.ID, fn func(IncentiveCampaign) (IncentiveCampaign, error)) (IncentiveCampaign, error) {
	var out IncentiveCampaign
	err := s.update(ctx, campaignKey(id), func(raw []byte) ([]byte, error) {
		var c IncentiveCampaign
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		next, err := fn(c)
		if err != nil {
			return nil, err
		}
		out = next
		return json.Marshal(next)
	})
	if err != nil {
		return IncentiveCampaign{}, fmt.Errorf("update campaign %s: %w", id, err)
	}
	return out, nil
}

// update rewrites one JSON value under WATCH and retries when another
// writer got there first.
func (s *Store) update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	for i := 0; i < maxOptimisticRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			next, err := fn(raw)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func getJSON(ctx context.Context, rdb *redis.Client, key string, v any) error {
	raw, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func budgetKey(day time.Time) string {
	return fmt.Sprintf(budgetKeyPrefix, day.Format("2006-01-02"))
}

func questKey(id types.ID) string {
	return fmt.Sprintf(questKeyPrefix, string(id))
}

func driverQuestsKey(id types.ID) string {
	return fmt.Sprintf(driverQuestsPrefix, string(id))
}

func campaignKey(id types.ID) string {
	return fmt.Sprintf(campaignKeyPrefix, string(id))
}
