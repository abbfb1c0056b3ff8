package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/analytics"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store/memory"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	st := memory.New()
	sessions := cache.NewLRUCache[core.Session](100, time.Minute)
	srv := NewServer(":0", Deps{
		Transactions:       services.NewTransactionService(st, services.WithClock(func() time.Time { return fixedNow })),
		Users:              services.NewUserService(st, sessions, services.WithHashCost(bcrypt.MinCost)),
		Store:              st,
		Sessions:           sessions,
		Logger:             log.New(log.Config{Level: slog.LevelError, Component: "test", Output: io.Discard}),
		RateLimitPerMinute: rateLimit,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: st}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.Handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) register(t *testing.T, name, email string) core.User {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/users/register", map[string]string{
		"name": name, "email": email, "password": "hunter22",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, w.Code, w.Body.String())
	}
	var resp userResponse
	decode(t, w, &resp)
	return resp.User
}

func (ts *testServer) create(t *testing.T, userID string, fields map[string]any) string {
	t.Helper()
	fields["userid"] = userID
	w := ts.do(t, http.MethodPost, "/api/v1/transactions", fields)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", w.Code, w.Body.String())
	}
	var resp createdResponse
	decode(t, w, &resp)
	return resp.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func tx(amount any, typ, category, date string) map[string]any {
	return map[string]any{"amount": amount, "type": typ, "category": category, "date": date}
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, 1000)

	if w := ts.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}

	w := ts.do(t, http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("readyz = %d body %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("trace middleware should set X-Request-ID")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	_ = ts.store.Close()
	if w := ts.do(t, http.MethodGet, "/readyz", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz after close = %d", w.Code)
	}
}

func TestUserRegistrationAndLogin(t *testing.T) {
	ts := newTestServer(t, 1000)
	u := ts.register(t, "Ada", "Ada@Example.com ")
	if u.ID == "" || u.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		field  string
	}{
		{name: "duplicate email", path: "/api/v1/users/register", body: map[string]string{"name": "A", "email": "ada@example.com", "password": "secret99"}, status: http.StatusConflict},
		{name: "short password", path: "/api/v1/users/register", body: map[string]string{"name": "B", "email": "b@example.com", "password": "123"}, status: http.StatusUnprocessableEntity, field: "password"},
		{name: "bad email", path: "/api/v1/users/register", body: map[string]string{"name": "B", "email": "nope", "password": "secret99"}, status: http.StatusUnprocessableEntity, field: "email"},
		{name: "login ok", path: "/api/v1/users/login", body: map[string]string{"email": "ADA@example.com", "password": "hunter22"}, status: http.StatusOK},
		{name: "wrong password", path: "/api/v1/users/login", body: map[string]string{"email": "ada@example.com", "password": "hunter23"}, status: http.StatusUnauthorized},
		{name: "unknown email", path: "/api/v1/users/login", body: map[string]string{"email": "who@example.com", "password": "hunter22"}, status: http.StatusUnauthorized},
		{name: "malformed", path: "/api/v1/users/login", body: "{", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.field != "" {
				var body ErrorBody
				decode(t, w, &body)
				if body.Field != tt.field {
					t.Fatalf("field = %q, want %q", body.Field, tt.field)
				}
			}
			if strings.Contains(w.Body.String(), "hunter22") {
				t.Fatal("response leaked the password")
			}
		})
	}
}

func TestListTransactionsFilters(t *testing.T) {
	ts := newTestServer(t, 1000)
	ada := ts.register(t, "Ada", "ada@example.com")
	bob := ts.register(t, "Bob", "bob@example.com")

	ts.create(t, ada.ID, tx(1000, "income", "salary", "2024-03-01"))
	ts.create(t, ada.ID, tx("12,50", "expense", "food", "2024-03-10"))
	ts.create(t, ada.ID, tx(40, "expense", "bills", "2024-03-14"))
	ts.create(t, bob.ID, tx(5, "expense", "food", "2024-03-14"))

	tests := []struct {
		name  string
		query string
		dates []string
	}{
		{name: "everything newest first", query: "", dates: []string{"2024-03-14", "2024-03-10", "2024-03-01"}},
		{name: "last seven days", query: "&frequency=7", dates: []string{"2024-03-14", "2024-03-10"}},
		{name: "income only", query: "&frequency=all&type=income", dates: []string{"2024-03-01"}},
		{name: "expenses last week", query: "&frequency=7&type=expense", dates: []string{"2024-03-14", "2024-03-10"}},
		{name: "window with nothing", query: "&frequency=1&type=income", dates: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/api/v1/transactions?userid="+ada.ID+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d body %s", w.Code, w.Body.String())
			}
			var got []core.Transaction
			decode(t, w, &got)
			if len(got) != len(tt.dates) {
				t.Fatalf("got %d transactions, want %d: %s", len(got), len(tt.dates), w.Body.String())
			}
			for i, d := range tt.dates {
				if got[i].Date.String() != d {
					t.Errorf("[%d] date = %s, want %s", i, got[i].Date, d)
				}
				if got[i].UserID != ada.ID {
					t.Errorf("[%d] leaked transaction of %s", i, got[i].UserID)
				}
			}
		})
	}

	t.Run("empty result is an array", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/v1/transactions?userid="+ada.ID+"&frequency=1&type=income", nil)
		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Fatalf("body = %s", w.Body.String())
		}
	})
}

func TestListTransactionsErrors(t *testing.T) {
	ts := newTestServer(t, 1000)
	ada := ts.register(t, "Ada", "ada@example.com")

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "missing user", target: "/api/v1/transactions", status: http.StatusUnauthorized},
		{name: "unknown user", target: "/api/v1/transactions?userid=ghost", status: http.StatusUnauthorized},
		{name: "bad frequency", target: "/api/v1/transactions?userid=" + ada.ID + "&frequency=0", status: http.StatusBadRequest},
		{name: "bad type", target: "/api/v1/transactions?userid=" + ada.ID + "&type=loan", status: http.StatusBadRequest},
		{name: "filter checked before session", target: "/api/v1/transactions?frequency=abc", status: http.StatusBadRequest},
		{name: "analytics bad filter", target: "/api/v1/transactions/analytics?userid=" + ada.ID + "&type=x", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, tt.target, nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			var body ErrorBody
			decode(t, w, &body)
			if body.Message == "" {
				t.Fatal("error body should carry a message")
			}
		})
	}
}

func TestCreateTransaction(t *testing.T) {
	ts := newTestServer(t, 1000)
	ada := ts.register(t, "Ada", "ada@example.com")

	tests := []struct {
		name   string
		body   any
		status int
		field  string
	}{
		{name: "valid", body: map[string]any{"userid": ada.ID, "amount": 9.99, "type": "expense", "category": "movie", "date": "2024-03-02", "description": "cinema"}, status: http.StatusCreated},
		{name: "missing amount", body: map[string]any{"userid": ada.ID, "type": "expense", "category": "movie", "date": "2024-03-02"}, status: http.StatusUnprocessableEntity, field: "amount"},
		{name: "negative amount", body: map[string]any{"userid": ada.ID, "amount": -3, "type": "expense", "category": "movie", "date": "2024-03-02"}, status: http.StatusUnprocessableEntity, field: "amount"},
		{name: "unknown category", body: map[string]any{"userid": ada.ID, "amount": 3, "type": "expense", "category": "travel", "date": "2024-03-02"}, status: http.StatusUnprocessableEntity, field: "category"},
		{name: "unknown type", body: map[string]any{"userid": ada.ID, "amount": 3, "type": "gift", "category": "tip", "date": "2024-03-02"}, status: http.StatusUnprocessableEntity, field: "type"},
		{name: "bad date", body: map[string]any{"userid": ada.ID, "amount": 3, "type": "income", "category": "tip", "date": "yesterday"}, status: http.StatusUnprocessableEntity, field: "date"},
		{name: "description too long", body: map[string]any{"userid": ada.ID, "amount": 3, "type": "income", "category": "tip", "date": "2024-03-02", "description": strings.Repeat("x", 201)}, status: http.StatusUnprocessableEntity, field: "description"},
		{name: "no user", body: tx(3, "income", "tip", "2024-03-02"), status: http.StatusUnauthorized},
		{name: "malformed", body: `{"amount": 3,`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/transactions", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.field != "" {
				var body ErrorBody
				decode(t, w, &body)
				if body.Field != tt.field {
					t.Fatalf("field = %q, want %q", body.Field, tt.field)
				}
			}
			if tt.status == http.StatusCreated {
				var resp createdResponse
				decode(t, w, &resp)
				if resp.ID == "" || w.Header().Get("Location") == "" {
					t.Fatalf("missing id or Location: %+v", resp)
				}
				stored, err := ts.store.GetTransaction(context.Background(), resp.ID)
				if err != nil {
					t.Fatalf("stored transaction: %v", err)
				}
				if stored.UserID != ada.ID || !stored.CreatedAt.Equal(fixedNow) {
					t.Fatalf("unexpected stored transaction %+v", stored)
				}
			}
		})
	}
}

func TestEditTransactionKeepsOwner(t *testing.T) {
	ts := newTestServer(t, 1000)
	ada := ts.register(t, "Ada", "ada@example.com")
	bob := ts.register(t, "Bob", "bob@example.com")
	id := ts.create(t, ada.ID, tx(10, "expense", "food", "2024-03-02"))

	payload := tx("25.40", "expense", "medical", "2024-03-03")
	payload["userId"] = bob.ID
	w := ts.do(t, http.MethodPut, "/api/v1/transactions?transactionId="+id+"&userid="+ada.ID, map[string]any{"payload": payload})
	if w.Code != http.StatusOK {
		t.Fatalf("edit status = %d body %s", w.Code, w.Body.String())
	}

	got, err := ts.store.GetTransaction(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != ada.ID {
		t.Fatalf("owner changed to %s", got.UserID)
	}
	if got.Category != core.Medical || got.Amount.String() != "25.4" || got.Date.String() != "2024-03-03" {
		t.Fatalf("fields not updated: %+v", got)
	}

	tests := []struct {
		name   string
		target string
		body   any
		status int
	}{
		{name: "missing id", target: "/api/v1/transactions?userid=" + ada.ID, body: map[string]any{"payload": payload}, status: http.StatusUnprocessableEntity},
		{name: "missing payload", target: "/api/v1/transactions?transactionId=" + id + "&userid=" + ada.ID, body: map[string]any{}, status: http.StatusUnprocessableEntity},
		{name: "unknown id", target: "/api/v1/transactions?transactionId=nope&userid=" + ada.ID, body: map[string]any{"payload": payload}, status: http.StatusNotFound},
		{name: "invalid payload", target: "/api/v1/transactions?transactionId=" + id + "&userid=" + ada.ID, body: map[string]any{"payload": tx(1, "expense", "fun", "2024-03-03")}, status: http.StatusUnprocessableEntity},
		{name: "no session", target: "/api/v1/transactions?transactionId=" + id, body: map[string]any{"payload": tx(1, "expense", "food", "2024-03-03")}, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPut, tt.target, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestDeleteTransaction(t *testing.T) {
	ts := newTestServer(t, 1000)
	ada := ts.register(t, "Ada", "ada@example.com")
	id := ts.create(t, ada.ID, tx(10, "expense", "fee", "2024-03-02"))

	if w := ts.do(t, http.MethodDelete, "/api/v1/transactions?transactionId="+id, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d body %s", w.Code, w.Body.String())
	}
	if _, err := ts.store.GetTransaction(context.Background(), id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("transaction still stored: %v", err)
	}
	if w := ts.do(t, http.MethodDelete, "/api/v1/transactions?transactionId="+id, nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", w.Code)
	}
	if w := ts.do(t, http.MethodDelete, "/api/v1/transactions", nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("delete without id status = %d", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t, 1000)
	ada := ts.register(t, "Ada", "ada@example.com")
	id := ts.create(t, ada.ID, tx(10, "expense", "fee", "2024-03-02"))
	// the audit worker would record this from the created event
	if err := ts.store.RecordEvent(context.Background(), core.AuditEvent{
		ID: "ev-1", Kind: core.EventCreated, TransactionID: id, UserID: ada.ID, OccurredAt: fixedNow,
	}); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodGet, "/api/v1/transactions/events?userid="+ada.ID+"&transactionId="+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	var events []core.AuditEvent
	decode(t, w, &events)
	if len(events) != 1 || events[0].Kind != core.EventCreated || events[0].TransactionID != id {
		t.Fatalf("events = %+v", events)
	}

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"no session", "/api/v1/transactions/events?transactionId=" + id, http.StatusUnauthorized},
		{"no id", "/api/v1/transactions/events?userid=" + ada.ID, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := ts.do(t, http.MethodGet, tt.target, nil); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	ts := newTestServer(t, 1000)
	ada := ts.register(t, "Ada", "ada@example.com")

	w := ts.do(t, http.MethodGet, "/api/v1/transactions/analytics?userid="+ada.ID, nil)
	var empty analytics.Report
	decode(t, w, &empty)
	if w.Code != http.StatusOK || !empty.Empty {
		t.Fatalf("empty summary: %d %s", w.Code, w.Body.String())
	}

	ts.create(t, ada.ID, tx(300, "income", "salary", "2024-03-01"))
	ts.create(t, ada.ID, tx(75, "expense", "food", "2024-03-12"))
	ts.create(t, ada.ID, tx(25, "expense", "bills", "2024-03-13"))

	w = ts.do(t, http.MethodGet, "/api/v1/transactions/analytics?userid="+ada.ID, nil)
	var s analytics.Report
	decode(t, w, &s)
	if s.TotalCount != 3 || s.IncomeCount != 1 || s.ExpenseCount != 2 {
		t.Fatalf("counts: %+v", s)
	}
	if s.TotalTurnover.String() != "400" || s.ExpenseTurnover.String() != "100" {
		t.Fatalf("turnover: total %s expense %s", s.TotalTurnover, s.ExpenseTurnover)
	}
	if s.IncomeTurnoverPercent != 75 || s.ExpenseTurnoverPercent != 25 {
		t.Fatalf("turnover percent: %v / %v", s.IncomeTurnoverPercent, s.ExpenseTurnoverPercent)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/transactions/analytics?userid="+ada.ID+"&frequency=7&type=expense", nil)
	decode(t, w, &s)
	if s.TotalCount != 2 || s.IncomeCount != 0 {
		t.Fatalf("filtered counts: %+v", s)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, 1000)
	ada := ts.register(t, "Ada", "ada@example.com")
	ts.create(t, ada.ID, tx(1, "income", "tip", "2024-03-02"))
	ts.do(t, http.MethodGet, "/api/v1/transactions?userid="+ada.ID, nil)

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`transaction_mutations_total{op="create"} 1`,
		"transaction_list_requests_total 1",
		"users_registered_total 1",
		"session_cache_entries 1",
		"http_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRateLimitReturns429(t *testing.T) {
	ts := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		if w := ts.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}
	var body ErrorBody
	decode(t, w, &body)
	if body.Message == "" {
		t.Error("429 body should carry a message")
	}
}

func TestSuspiciousRequestsAreServed(t *testing.T) {
	ts := newTestServer(t, 1000)

	req := httptest.NewRequest(http.MethodGet, "/healthz?q=1%27%20OR%20%271%27=%271", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	w := httptest.NewRecorder()
	ts.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ts.securityDetector.GetMetrics().SuspiciousRequests != 1 {
		t.Fatalf("suspicious count = %d", ts.securityDetector.GetMetrics().SuspiciousRequests)
	}

	m := ts.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(m.Body.String(), `suspicious_requests_by_reason_total{reason="agent"} 1`) {
		t.Fatalf("metrics missing reason breakdown:\n%s", m.Body.String())
	}
}
