package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/core"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/x").
		Message("done").
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("Location") != "/x" {
		t.Errorf("Location header missing")
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["message"] != "done" {
		t.Errorf("Body = %s (%v)", w.Body.String(), err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.ValidationError{Field: "amount", Reason: "is required"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", &core.ValidationError{Field: "date", Reason: "bad"}), http.StatusUnprocessableEntity},
		{core.ErrInvalidFilter, http.StatusBadRequest},
		{fmt.Errorf("%w: eof", errMalformedBody), http.StatusBadRequest},
		{core.ErrUnauthenticated, http.StatusUnauthorized},
		{core.ErrInvalidCredentials, http.StatusUnauthorized},
		{core.ErrEmailTaken, http.StatusConflict},
		{fmt.Errorf("get: %w", core.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("list: %w: %w", core.ErrStoreUnavailable, errors.New("disk I/O error")), http.StatusServiceUnavailable},
		{errRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorResponseBodies(t *testing.T) {
	t.Run("validation carries field", func(t *testing.T) {
		w := httptest.NewRecorder()
		ErrorResponse(&core.ValidationError{Field: "category", Reason: "must be one of salary tip investment food movie bills medical fee tax"}).Write(w)

		var body ErrorBody
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if w.Code != http.StatusUnprocessableEntity || body.Field != "category" {
			t.Fatalf("got %d %+v", w.Code, body)
		}
	})

	t.Run("store internals are hidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		ErrorResponse(fmt.Errorf("list: %w: %w", core.ErrStoreUnavailable, errors.New("pq: password authentication failed"))).Write(w)

		var body ErrorBody
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if w.Code != http.StatusServiceUnavailable || body.Field != "" {
			t.Fatalf("got %d %+v", w.Code, body)
		}
		if body.Message != "storage temporarily unavailable, please retry" {
			t.Fatalf("message leaked details: %q", body.Message)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Fatal("503 should carry Retry-After")
		}
	})
}
