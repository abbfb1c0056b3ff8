package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names so a ValidationError points at what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// TransactionInput carries the user-editable fields of a transaction.
// UserID is accepted on the wire but never trusted for ownership.
type TransactionInput struct {
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Type        Type             `json:"type" validate:"required,oneof=income expense"`
	Category    Category         `json:"category" validate:"required,oneof=salary tip investment food movie bills medical fee tax"`
	Date        *Date            `json:"date" validate:"required"`
	Description string           `json:"description" validate:"max=200"`
	UserID      string           `json:"userId,omitempty"`
}

// Normalize trims free text and strips control characters.
func (in TransactionInput) Normalize() TransactionInput {
	in.Type = Type(strings.ToLower(strings.TrimSpace(string(in.Type))))
	in.Category = Category(strings.ToLower(strings.TrimSpace(string(in.Category))))
	in.Description = SanitizeText(in.Description)
	in.UserID = strings.TrimSpace(in.UserID)
	return in
}

// Validate returns a *ValidationError for the first offending field.
func (in TransactionInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return fmt.Errorf("validate transaction input: %w", err)
	}
	if in.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}

// Apply copies the input fields onto t, leaving identity and ownership alone.
func (in TransactionInput) Apply(t Transaction) Transaction {
	t.Amount = *in.Amount
	t.Type = in.Type
	t.Category = in.Category
	t.Date = *in.Date
	t.Description = in.Description
	return t
}

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

// Registration is the payload of a new account.
type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (r Registration) Normalize() Registration {
	r.Name = SanitizeText(r.Name)
	r.Email = NormalizeEmail(r.Email)
	return r
}

func (r Registration) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return fmt.Errorf("validate registration: %w", err)
	}
	// bcrypt counts bytes, not runes.
	if len(r.Password) > MaxPasswordBytes {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes)}
	}
	return nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "oneof":
		reason = "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		reason = "must be at most " + fe.Param() + " characters"
	case "min":
		reason = "must be at least " + fe.Param() + " characters"
	case "email":
		reason = "must be a valid email address"
	}
	return &ValidationError{Field: fe.Field(), Reason: reason}
}

// SanitizeText removes control characters (except tab and newlines) and trims whitespace.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
