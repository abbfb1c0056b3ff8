package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeInput(t *testing.T, body string) TransactionInput {
	t.Helper()
	var in TransactionInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return in.Normalize()
}

func TestTransactionInputValidate(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"valid", `{"amount":12.5,"type":"expense","category":"food","date":"2024-01-02"}`, ""},
		{"string amount", `{"amount":"12.5","type":"income","category":"salary","date":"2024-01-02"}`, ""},
		{"zero amount", `{"amount":0,"type":"income","category":"tip","date":"2024-01-02"}`, ""},
		{"upper case enums", `{"amount":1,"type":"INCOME","category":"Salary","date":"2024-01-02"}`, ""},
		{"missing amount", `{"type":"expense","category":"food","date":"2024-01-02"}`, "amount"},
		{"negative amount", `{"amount":-3,"type":"expense","category":"food","date":"2024-01-02"}`, "amount"},
		{"missing type", `{"amount":1,"category":"food","date":"2024-01-02"}`, "type"},
		{"bad type", `{"amount":1,"type":"transfer","category":"food","date":"2024-01-02"}`, "type"},
		{"bad category", `{"amount":1,"type":"expense","category":"rent","date":"2024-01-02"}`, "category"},
		{"missing date", `{"amount":1,"type":"expense","category":"food"}`, "date"},
		{"null date", `{"amount":1,"type":"expense","category":"food","date":null}`, "date"},
		{"long description", `{"amount":1,"type":"expense","category":"food","date":"2024-01-02","description":"` + strings.Repeat("a", 201) + `"}`, "description"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := decodeInput(t, tc.body).Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q (%v)", ve.Field, tc.field, err)
			}
		})
	}
}

func TestTransactionInputApplyKeepsIdentity(t *testing.T) {
	in := decodeInput(t, `{"amount":99,"type":"income","category":"salary","date":"2024-02-01","description":" pay ","userId":"intruder"}`)
	orig := validTransaction()
	got := in.Apply(orig)
	if got.ID != orig.ID || got.UserID != orig.UserID {
		t.Fatalf("identity changed: %+v", got)
	}
	if got.Type != Income || got.Category != Salary || got.Description != "pay" {
		t.Fatalf("fields not applied: %+v", got)
	}
	if got.Amount.String() != "99" || got.Date != NewDate(2024, 2, 1) {
		t.Fatalf("amount/date not applied: %+v", got)
	}
}

func TestSanitizeText(t *testing.T) {
	if got := SanitizeText("  a\x00b\tc\n "); got != "ab\tc" {
		t.Fatalf("SanitizeText = %q", got)
	}
}

func TestRegistrationValidate(t *testing.T) {
	cases := []struct {
		name  string
		reg   Registration
		field string
	}{
		{"valid", Registration{Name: "Ann", Email: "ANN@example.com ", Password: "secret"}, ""},
		{"missing name", Registration{Email: "a@b.co", Password: "secret"}, "name"},
		{"bad email", Registration{Name: "Ann", Email: "nope", Password: "secret"}, "email"},
		{"short password", Registration{Name: "Ann", Email: "a@b.co", Password: "123"}, "password"},
		{"72 ascii bytes", Registration{Name: "Ann", Email: "a@b.co", Password: strings.Repeat("a", 72)}, ""},
		{"multibyte password over 72 bytes", Registration{Name: "Ann", Email: "a@b.co", Password: strings.Repeat("é", 40)}, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.reg.Normalize().Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}
