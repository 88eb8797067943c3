package delivery

import (
	"context"
	"testing"
	"time"

	"tawsil/internal/infra/testdb"
)

func TestStoreRoundTripAndVersioning(t *testing.T) {
	store := NewStore(testdb.Open(t, "delivery_status_events", "deliveries"))
	ctx := context.Background()

	tr := newTracking(t)
	if err := store.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}

	next, err := AssignDriver(tr, "d9", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	ok, err := store.Update(ctx, next, 0)
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	// Same expected version again loses the race.
	ok, err = store.Update(ctx, next, 0)
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if ok {
		t.Fatal("stale version must not be written")
	}

	got, err := store.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusAssigned || got.Version != 1 || got.DriverID == nil || *got.DriverID != "d9" {
		t.Fatalf("unexpected tracking: %+v", got)
	}
	if len(got.StatusHistory) != 1 || got.StatusHistory[0].To != StatusAssigned {
		t.Fatalf("unexpected history: %+v", got.StatusHistory)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := NewStore(testdb.Open(t))
	if _, err := store.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
