// Package http provides the REST server and its handlers.
//
// This file implements parsing of query parameters and JSON bodies into the
// core input types, so handlers only deal with validated values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"fintrack/internal/core"
)

const maxBodyBytes = 1 << 20

var (
	errMalformedBody = errors.New("malformed JSON body")
	errRateLimited   = errors.New("rate limit exceeded, please try again later")
)

// transactionFields are the editable fields as they arrive on the wire.
// Amount may be a JSON number or a numeric string.
type transactionFields struct {
	Amount      json.RawMessage `json:"amount"`
	Type        core.Type       `json:"type"`
	Category    core.Category   `json:"category"`
	Date        json.RawMessage `json:"date"`
	Description string          `json:"description"`
}

// input converts the wire fields, reporting unparsable amount or date as field errors.
func (f transactionFields) input(userID string) (core.TransactionInput, error) {
	in := core.TransactionInput{
		Type:        f.Type,
		Category:    f.Category,
		Description: f.Description,
		UserID:      userID,
	}

	if raw := rawValue(f.Amount); raw != "" {
		amount, err := core.ParseAmount(raw)
		if err != nil {
			return core.TransactionInput{}, err
		}
		in.Amount = &amount
	}

	if raw := rawValue(f.Date); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			return core.TransactionInput{}, &core.ValidationError{Field: "date", Reason: "must be a date in YYYY-MM-DD format"}
		}
		in.Date = &d
	}
	return in, nil
}

// rawValue unquotes a JSON scalar; null and absent values are empty.
func rawValue(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

// createRequest is the POST body: the editable fields plus the caller's user id.
type createRequest struct {
	transactionFields
	UserID string `json:"userid"`
}

// editRequest is the PUT body.
type editRequest struct {
	Payload *struct {
		transactionFields
		UserID string `json:"userId"`
	} `json:"payload"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// decodeJSONBody reads at most maxBodyBytes and decodes them into v.
// Any failure wraps errMalformedBody.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("%w: empty body", errMalformedBody)
	}
	if err := json.Unmarshal(body, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return &core.ValidationError{Field: lastSegment(te.Field), Reason: "has the wrong type"}
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

func lastSegment(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		return field[i+1:]
	}
	return field
}

// ParseFilter reads frequency and type from the query string. Missing values mean "all".
func ParseFilter(query url.Values) (core.Filter, error) {
	return core.ParseFilter(query.Get("frequency"), query.Get("type"))
}

// transactionID reads the transactionId query parameter.
func transactionID(query url.Values) (string, error) {
	id := strings.TrimSpace(query.Get("transactionId"))
	if id == "" {
		return "", &core.ValidationError{Field: "transactionId", Reason: "is required"}
	}
	return id, nil
}
