package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  Type = "income"
	Expense Type = "expense"
)

const (
	Salary     Category = "salary"
	Tip        Category = "tip"
	Investment Category = "investment"
	Food       Category = "food"
	Movie      Category = "movie"
	Bills      Category = "bills"
	Medical    Category = "medical"
	Fee        Category = "fee"
	Tax        Category = "tax"
)

// DateLayout is the wire and storage format of a transaction date.
const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds the free-text description.
const MaxDescriptionLength = 200

type (
	// Type is the closed set of transaction directions.
	Type string

	// Category is the closed set of transaction categories.
	Category string

	// Date is a calendar date stored as UTC midnight.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"_id"`
		UserID      string          `json:"userid"`
		Amount      decimal.Decimal `json:"amount"`
		Type        Type            `json:"type"`
		Category    Category        `json:"category"`
		Date        Date            `json:"date"`
		Description string          `json:"description,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}
)

// Categories lists every category in display order.
var Categories = []Category{Salary, Tip, Investment, Food, Movie, Bills, Medical, Fee, Tax}

func init() {
	// Amounts travel as JSON numbers, matching what browsers send from number inputs.
	decimal.MarshalJSONWithoutQuotes = true
}

func (t Type) Valid() bool {
	return t == Income || t == Expense
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, errors.New("date cannot be empty")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks the stored shape of a transaction, including ownership.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "_id", Reason: "is required"}
	}
	if strings.TrimSpace(t.UserID) == "" {
		return &ValidationError{Field: "userid", Reason: "is required"}
	}
	if t.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be one of income, expense"}
	}
	if !t.Category.Valid() {
		return &ValidationError{Field: "category", Reason: "is not a known category"}
	}
	if err := t.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", MaxDescriptionLength)}
	}
	return nil
}
