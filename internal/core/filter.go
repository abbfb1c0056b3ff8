package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypeAll disables type filtering.
const TypeAll TypeFilter = "all"

// FrequencyAll is the wire sentinel for "no date constraint".
const FrequencyAll = "all"

type (
	// Frequency is a trailing window in days. The zero value means all time.
	Frequency struct {
		days int
	}

	// TypeFilter is one of all, income, expense.
	TypeFilter string

	// Filter selects which of a user's transactions a query returns.
	Filter struct {
		Frequency Frequency
		Type      TypeFilter
	}
)

// AllTime returns the frequency without a date constraint.
func AllTime() Frequency {
	return Frequency{}
}

// LastDays returns a window of n days; n must be positive.
func LastDays(n int) (Frequency, error) {
	if n <= 0 {
		return Frequency{}, fmt.Errorf("%w: frequency must be a positive number of days, got %d", ErrInvalidFilter, n)
	}
	return Frequency{days: n}, nil
}

// ParseFrequency reads the wire value: "" or "all" for no window, otherwise
// a positive integer number of days.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, FrequencyAll) {
		return AllTime(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Frequency{}, fmt.Errorf("%w: frequency %q is not a number of days", ErrInvalidFilter, s)
	}
	return LastDays(n)
}

func (f Frequency) IsAll() bool {
	return f.days == 0
}

// Days returns the window length, or 0 for all time.
func (f Frequency) Days() int {
	return f.days
}

// Since returns the earliest instant included by the window.
func (f Frequency) Since(now time.Time) (time.Time, bool) {
	if f.IsAll() {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -f.days), true
}

func (f Frequency) String() string {
	if f.IsAll() {
		return FrequencyAll
	}
	return strconv.Itoa(f.days)
}

// ParseTypeFilter accepts all, income or expense; empty means all.
func ParseTypeFilter(s string) (TypeFilter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch TypeFilter(s) {
	case "", TypeAll:
		return TypeAll, nil
	case TypeFilter(Income), TypeFilter(Expense):
		return TypeFilter(s), nil
	}
	return "", fmt.Errorf("%w: type %q must be one of all, income, expense", ErrInvalidFilter, s)
}

// Only returns the transaction type the filter restricts to, if any.
func (tf TypeFilter) Only() (Type, bool) {
	if tf == "" || tf == TypeAll {
		return "", false
	}
	return Type(tf), true
}

func (tf TypeFilter) Matches(t Type) bool {
	only, ok := tf.Only()
	return !ok || only == t
}

// ParseFilter builds a Filter from the frequency and type wire values.
func ParseFilter(frequency, typ string) (Filter, error) {
	freq, err := ParseFrequency(frequency)
	if err != nil {
		return Filter{}, err
	}
	tf, err := ParseTypeFilter(typ)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Frequency: freq, Type: tf}, nil
}

func (f Filter) Validate() error {
	if f.Frequency.days < 0 {
		return fmt.Errorf("%w: negative frequency", ErrInvalidFilter)
	}
	if _, err := ParseTypeFilter(string(f.Type)); err != nil {
		return err
	}
	return nil
}

// Key identifies the filter for request de-duplication.
func (f Filter) Key() string {
	tf := f.Type
	if tf == "" {
		tf = TypeAll
	}
	return f.Frequency.String() + "|" + string(tf)
}
