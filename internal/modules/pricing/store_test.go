package pricing

import (
	"context"
	"testing"
	"time"

	"tawsil/internal/infra/testdb"
)

func TestStoreRecordsAndReadsDemand(t *testing.T) {
	db := testdb.Open(t, "demand_hourly")
	s := NewStore(db, time.UTC)
	ctx := context.Background()

	tue := time.Date(2026, 4, 14, 13, 10, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := s.RecordOrder(ctx, "z1", tue.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := s.RecordOrder(ctx, "z1", tue.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.Samples(ctx, "z1", time.Tuesday, tue.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(got) != 1 || got[0].Hour != 13 || got[0].Orders != 3 {
		t.Fatalf("unexpected samples %+v", got)
	}
}
