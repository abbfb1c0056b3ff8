package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseFrequency(t *testing.T) {
	cases := []struct {
		in   string
		days int
		ok   bool
	}{
		{"", 0, true},
		{"all", 0, true},
		{"ALL", 0, true},
		{"1", 1, true},
		{"7", 7, true},
		{" 30 ", 30, true},
		{"0", 0, false},
		{"-7", 0, false},
		{"week", 0, false},
		{"1.5", 0, false},
	}
	for _, tc := range cases {
		f, err := ParseFrequency(tc.in)
		if tc.ok {
			if err != nil || f.Days() != tc.days {
				t.Fatalf("%q: got %d err=%v, want %d", tc.in, f.Days(), err, tc.days)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("%q: expected ErrInvalidFilter, got %v", tc.in, err)
		}
	}
}

func TestFrequencySince(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	if _, ok := AllTime().Since(now); ok {
		t.Fatalf("all time must not produce a lower bound")
	}
	f, _ := LastDays(7)
	since, ok := f.Since(now)
	if !ok {
		t.Fatalf("expected lower bound")
	}
	want := time.Date(2024, 3, 3, 15, 0, 0, 0, time.UTC)
	if !since.Equal(want) {
		t.Fatalf("since = %v, want %v", since, want)
	}
}

func TestParseTypeFilter(t *testing.T) {
	cases := []struct {
		in   string
		want TypeFilter
		ok   bool
	}{
		{"", TypeAll, true},
		{"all", TypeAll, true},
		{"income", TypeFilter(Income), true},
		{"Expense", TypeFilter(Expense), true},
		{"transfer", "", false},
	}
	for _, tc := range cases {
		got, err := ParseTypeFilter(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("%q: got %q err=%v", tc.in, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("%q: expected ErrInvalidFilter, got %v", tc.in, err)
		}
	}
}

func TestTypeFilterMatches(t *testing.T) {
	if !TypeAll.Matches(Income) || !TypeAll.Matches(Expense) {
		t.Fatalf("all must match every type")
	}
	inc := TypeFilter(Income)
	if !inc.Matches(Income) || inc.Matches(Expense) {
		t.Fatalf("income filter mismatch")
	}
	var empty TypeFilter
	if !empty.Matches(Expense) {
		t.Fatalf("empty filter behaves as all")
	}
}

func TestFilterKey(t *testing.T) {
	a, _ := ParseFilter("7", "")
	b, _ := ParseFilter("7", "all")
	if a.Key() != b.Key() {
		t.Fatalf("equivalent filters must share a key: %q vs %q", a.Key(), b.Key())
	}
	c, _ := ParseFilter("", "income")
	if c.Key() == a.Key() {
		t.Fatalf("different filters share key %q", c.Key())
	}
	if err := (Filter{Type: "bogus"}).Validate(); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}
