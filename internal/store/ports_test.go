package store

import (
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestNewQuery(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	f, _ := core.ParseFilter("", "all")
	q := NewQuery("u1", f, now)
	if !q.Since.IsZero() || q.Type != "" || q.UserID != "u1" {
		t.Fatalf("unexpected query for all/all: %+v", q)
	}

	f, _ = core.ParseFilter("7", "expense")
	q = NewQuery("u1", f, now)
	if !q.Since.Equal(time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)) || q.Type != core.Expense {
		t.Fatalf("unexpected query for 7/expense: %+v", q)
	}
}

func TestQueryBounds(t *testing.T) {
	cases := []struct {
		since    time.Time
		firstDay core.Date
		unix     int64
	}{
		{time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), core.NewDate(2024, 3, 3), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC).Unix()},
		{time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC), core.NewDate(2024, 3, 4), time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC).Unix()},
		{time.Date(2024, 3, 3, 0, 0, 0, 1, time.UTC), core.NewDate(2024, 3, 4), time.Date(2024, 3, 3, 0, 0, 1, 0, time.UTC).Unix()},
	}
	for i, tc := range cases {
		q := Query{Since: tc.since}
		if got := q.FirstDay(); got != tc.firstDay {
			t.Errorf("case %d: FirstDay = %s, want %s", i, got, tc.firstDay)
		}
		if got := q.SinceUnix(); got != tc.unix {
			t.Errorf("case %d: SinceUnix = %d, want %d", i, got, tc.unix)
		}
	}
}

func TestQueryMatchesAgreesWithFirstDay(t *testing.T) {
	q := Query{UserID: "u1", Since: time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)}
	for day := 1; day <= 6; day++ {
		tx := core.Transaction{UserID: "u1", Type: core.Income, Date: core.NewDate(2024, 3, day)}
		want := !tx.Date.Before(q.FirstDay().Time)
		if got := q.Matches(tx); got != want {
			t.Fatalf("day %d: Matches = %v, FirstDay rule = %v", day, got, want)
		}
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		{ID: "old", Date: core.NewDate(2024, 1, 1), CreatedAt: base},
		{ID: "tie-early", Date: core.NewDate(2024, 2, 1), CreatedAt: base},
		{ID: "tie-late", Date: core.NewDate(2024, 2, 1), CreatedAt: base.Add(time.Hour)},
	}
	SortNewestFirst(txs)
	want := []string{"tie-late", "tie-early", "old"}
	for i := range want {
		if txs[i].ID != want[i] {
			t.Fatalf("position %d = %s, want %s", i, txs[i].ID, want[i])
		}
	}
}
