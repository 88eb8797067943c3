package settlement

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"tawsil/internal/types"
)

// PayoutRequestsFromLedger lists what each restaurant and driver is owed
// by the given entries.
func PayoutRequestsFromLedger(entries []LedgerEntry) []PayoutRequest {
	var out []PayoutRequest
	for _, e := range entries {
		switch e.Type {
		case EntryRestaurantPayout, EntryDriverPayout, EntryTip:
		default:
			continue
		}
		if e.Amount <= 0 {
			continue
		}
		out = append(out, PayoutRequest{
			EntityID:   e.EntityID,
			EntityType: e.EntityType,
			OrderID:    e.ReferenceID,
			Amount:     e.Amount,
			Currency:   e.Currency,
		})
	}
	return out
}

// BatchCreatePayouts validates every request before building anything and
// then aggregates one payout per payee, sorted by entity type and id.
func BatchCreatePayouts(reqs []PayoutRequest, now time.Time) ([]Payout, error) {
	for i, r := range reqs {
		switch {
		case r.EntityID == "":
			return nil, types.Invalid("payouts", "request %d: entity id must not be empty", i)
		case r.EntityType != EntityRestaurant && r.EntityType != EntityDriver:
			return nil, types.Invalid("payouts", "request %d: cannot pay out to %q", i, r.EntityType)
		case r.Amount <= 0:
			return nil, types.Invalid("payouts", "request %d: amount must be positive", i)
		case r.Currency == "":
			return nil, types.Invalid("payouts", "request %d: currency must not be empty", i)
		}
	}

	type key struct {
		t  EntityType
		id types.ID
	}
	byPayee := make(map[key]*Payout)
	for i, r := range reqs {
		k := key{r.EntityType, r.EntityID}
		p, ok := byPayee[k]
		if !ok {
			p = &Payout{EntityID: r.EntityID, EntityType: r.EntityType, Currency: r.Currency, CreatedAt: now}
			byPayee[k] = p
		}
		if p.Currency != r.Currency {
			return nil, types.Invalid("payouts", "request %d: mixed currencies for %s %s", i, r.EntityType, r.EntityID)
		}
		p.Amount += r.Amount
		if r.OrderID != "" && !containsID(p.OrderIDs, r.OrderID) {
			p.OrderIDs = append(p.OrderIDs, r.OrderID)
		}
	}

	out := make([]Payout, 0, len(byPayee))
	for _, p := range byPayee {
		p.ID = types.ID(uuid.NewString())
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

func containsID(ids []types.ID, id types.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
