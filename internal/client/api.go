// Package client talks to the fintrack API and holds the filter state a
// front end displays.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"fintrack/internal/core"
)

// TransactionAPI is the query and mutation surface the Controller drives.
// Implementations must not issue a request for an unauthenticated session.
type TransactionAPI interface {
	List(ctx context.Context, sess core.Session, f core.Filter) ([]core.Transaction, error)
	Add(ctx context.Context, sess core.Session, in core.TransactionInput) (string, error)
	Edit(ctx context.Context, sess core.Session, id string, in core.TransactionInput) error
	Delete(ctx context.Context, sess core.Session, id string) error
}

// ErrRateLimited is returned when the server answers 429.
var ErrRateLimited = errors.New("rate limited")

// APIError is a non-2xx answer from the server. It unwraps to the matching
// core error so callers can keep using errors.Is and errors.As.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnprocessableEntity:
		return &core.ValidationError{Field: e.Field, Reason: strings.TrimPrefix(e.Message, e.Field+" ")}
	case http.StatusBadRequest:
		return core.ErrInvalidFilter
	case http.StatusUnauthorized:
		return core.ErrUnauthenticated
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusConflict:
		return core.ErrEmailTaken
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return core.ErrStoreUnavailable
	}
	return nil
}

// APIClient implements TransactionAPI over the REST endpoints.
type APIClient struct {
	http *resty.Client
}

type APIOption func(*resty.Client)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) APIOption {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// NewAPIClient creates a client for the server at baseURL, e.g. http://localhost:8081.
func NewAPIClient(baseURL string, opts ...APIOption) *APIClient {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(rc)
	}
	return &APIClient{http: rc}
}

type wireTransaction struct {
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
}

func toWire(in core.TransactionInput) wireTransaction {
	w := wireTransaction{
		Type:        string(in.Type),
		Category:    string(in.Category),
		Description: in.Description,
	}
	if in.Amount != nil {
		w.Amount = in.Amount.String()
	}
	if in.Date != nil && !in.Date.IsZero() {
		w.Date = in.Date.String()
	}
	return w
}

func (c *APIClient) List(ctx context.Context, sess core.Session, f core.Filter) ([]core.Transaction, error) {
	if !sess.Authenticated() {
		return nil, core.ErrUnauthenticated
	}
	var out []core.Transaction
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(filterParams(sess, f)).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/api/v1/transactions")
	if err := check(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if out == nil {
		out = []core.Transaction{}
	}
	return out, nil
}

func (c *APIClient) Add(ctx context.Context, sess core.Session, in core.TransactionInput) (string, error) {
	if !sess.Authenticated() {
		return "", core.ErrUnauthenticated
	}
	body := struct {
		wireTransaction
		UserID string `json:"userid"`
	}{toWire(in), sess.UserID}

	var out struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/api/v1/transactions")
	if err := check(ctx, resp, err); err != nil {
		return "", fmt.Errorf("add transaction: %w", err)
	}
	return out.ID, nil
}

func (c *APIClient) Edit(ctx context.Context, sess core.Session, id string, in core.TransactionInput) error {
	if !sess.Authenticated() {
		return core.ErrUnauthenticated
	}
	type payload struct {
		wireTransaction
		UserID string `json:"userId"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"transactionId": id, "userid": sess.UserID}).
		SetBody(map[string]payload{"payload": {toWire(in), sess.UserID}}).
		SetError(&APIError{}).
		Put("/api/v1/transactions")
	if err := check(ctx, resp, err); err != nil {
		return fmt.Errorf("edit transaction %s: %w", id, err)
	}
	return nil
}

func (c *APIClient) Delete(ctx context.Context, sess core.Session, id string) error {
	if !sess.Authenticated() {
		return core.ErrUnauthenticated
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("transactionId", id).
		SetError(&APIError{}).
		Delete("/api/v1/transactions")
	if err := check(ctx, resp, err); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// History fetches the audit events recorded for one of the session user's transactions.
func (c *APIClient) History(ctx context.Context, sess core.Session, id string) ([]core.AuditEvent, error) {
	if !sess.Authenticated() {
		return nil, core.ErrUnauthenticated
	}
	var out []core.AuditEvent
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"transactionId": id, "userid": sess.UserID}).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/api/v1/transactions/events")
	if err := check(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("transaction history %s: %w", id, err)
	}
	if out == nil {
		out = []core.AuditEvent{}
	}
	return out, nil
}

// Register creates an account and returns it.
func (c *APIClient) Register(ctx context.Context, reg core.Registration) (core.User, error) {
	var out struct {
		User core.User `json:"user"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(reg).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/api/v1/users/register")
	if err := check(ctx, resp, err); err != nil {
		return core.User{}, fmt.Errorf("register: %w", err)
	}
	return out.User, nil
}

// Login exchanges credentials for the user record that identifies the session.
func (c *APIClient) Login(ctx context.Context, email, password string) (core.User, error) {
	var out struct {
		User core.User `json:"user"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/api/v1/users/login")
	if err := check(ctx, resp, err); err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			return core.User{}, core.ErrInvalidCredentials
		}
		return core.User{}, fmt.Errorf("login: %w", err)
	}
	return out.User, nil
}

func filterParams(sess core.Session, f core.Filter) map[string]string {
	params := map[string]string{
		"userid":    sess.UserID,
		"frequency": f.Frequency.String(),
		"type":      string(core.TypeAll),
	}
	if f.Type != "" {
		params["type"] = string(f.Type)
	}
	return params
}

// check turns transport failures and error statuses into errors.
// A cancelled caller gets its context error back unchanged.
func check(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.StatusCode = resp.StatusCode()
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}

// ParseInput builds a TransactionInput from the strings a user typed.
// Field problems come back as *core.ValidationError.
func ParseInput(amount, typ, category, date, description string) (core.TransactionInput, error) {
	in := core.TransactionInput{
		Type:        core.Type(typ),
		Category:    core.Category(category),
		Description: description,
	}
	a, err := core.ParseAmount(amount)
	if err != nil {
		return core.TransactionInput{}, err
	}
	in.Amount = &a
	if strings.TrimSpace(date) != "" {
		d, err := core.ParseDate(date)
		if err != nil {
			return core.TransactionInput{}, &core.ValidationError{Field: "date", Reason: "must be a date in YYYY-MM-DD format"}
		}
		in.Date = &d
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.TransactionInput{}, err
	}
	return in, nil
}
