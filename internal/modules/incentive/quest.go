package incentive

import (
	"time"

	"tawsil/internal/types"
)

func NewQuest(id, driverID types.ID, name string, target int, reward int64, expiresAt time.Time) (Quest, error) {
	switch {
	case id == "" || driverID == "":
		return Quest{}, types.Invalid("quest", "id and driver id are required")
	case target <= 0:
		return Quest{}, types.Invalid("target", "must be positive, got %d", target)
	case reward <= 0:
		return Quest{}, types.Invalid("reward", "must be positive, got %d", reward)
	}
	return Quest{
		ID:        id,
		DriverID:  driverID,
		Name:      name,
		Target:    target,
		Reward:    reward,
		Status:    QuestAvailable,
		ExpiresAt: expiresAt,
	}, nil
}

// ExpireQuest moves an open quest past its deadline to expired. A completed
// quest stays claimable after the deadline.
func ExpireQuest(q Quest, now time.Time) (Quest, bool) {
	if q.Status != QuestAvailable && q.Status != QuestInProgress {
		return q, false
	}
	if now.Before(q.ExpiresAt) {
		return q, false
	}
	q.Status = QuestExpired
	return q, true
}

func StartQuest(q Quest, now time.Time) (Quest, error) {
	q, _ = ExpireQuest(q, now)
	if q.Status != QuestAvailable {
		return Quest{}, &QuestStateError{QuestID: q.ID, From: q.Status, To: QuestInProgress}
	}
	q.Status = QuestInProgress
	q.StartedAt = &now
	return q, nil
}

// RecordQuestProgress adds deliveries and completes the quest on reaching
// the target.
func RecordQuestProgress(q Quest, deliveries int, now time.Time) (Quest, error) {
	if deliveries <= 0 {
		return Quest{}, types.Invalid("deliveries", "must be positive, got %d", deliveries)
	}
	q, _ = ExpireQuest(q, now)
	if q.Status != QuestInProgress {
		return Quest{}, &QuestStateError{QuestID: q.ID, From: q.Status, To: QuestInProgress}
	}
	q.Progress += deliveries
	if q.Progress >= q.Target {
		q.Progress = q.Target
		q.Status = QuestCompleted
		q.CompletedAt = &now
	}
	return q, nil
}

func ClaimQuest(q Quest, now time.Time) (Quest, error) {
	if q.Status != QuestCompleted {
		return Quest{}, &QuestStateError{QuestID: q.ID, From: q.Status, To: QuestClaimed}
	}
	q.Status = QuestClaimed
	q.ClaimedAt = &now
	return q, nil
}
