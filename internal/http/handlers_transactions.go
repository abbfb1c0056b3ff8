package http

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

type createdResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// session resolves the caller from the user id the client sent.
func (s *Server) session(ctx context.Context, userID string) (core.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.Session{}, core.ErrUnauthenticated
	}
	return s.users.ResolveSession(ctx, userID)
}

// writeError logs server-side failures and writes the mapped error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	ctx := r.Context()
	if status >= 500 {
		errorType := log.ErrorTypeInternal
		if status == http.StatusServiceUnavailable {
			errorType = log.ErrorTypeDatabase
		}
		s.structured.LogError(ctx, "Request failed", err, errorType, log.ComponentHTTP, op)
	} else {
		log.FromContext(ctx).DebugContext(ctx, "Request rejected",
			log.FieldOperation, op, log.FieldStatusCode, status, log.FieldError, err.Error())
	}
	ErrorResponse(err).Write(w)
}

// listFor parses the filter and caller shared by the list and analytics endpoints.
func (s *Server) listFor(r *http.Request) ([]core.Transaction, error) {
	query := r.URL.Query()
	f, err := ParseFilter(query)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(r.Context(), query.Get("userid"))
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions.ListTransactions(r.Context(), sess, f)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

// handleListTransactions returns the caller's transactions matching frequency and type, newest first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.listFor(r)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.listRequests, 1)
	NewJSONResponse().Body(txs).Write(w)
}

// handleAnalytics summarizes the same result set the list endpoint would return.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	txs, err := s.listFor(r)
	if err != nil {
		s.writeError(w, r, log.OpAnalyze, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.analyticsRequests, 1)
	NewJSONResponse().Body(analytics.Summarize(txs)).Write(w)
}

// handleHistory lists the audit events recorded for one of the caller's transactions.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id, err := transactionID(query)
	if err != nil {
		s.writeError(w, r, log.OpHistory, err)
		return
	}
	sess, err := s.session(r.Context(), query.Get("userid"))
	if err != nil {
		s.writeError(w, r, log.OpHistory, err)
		return
	}
	events, err := s.transactions.History(r.Context(), sess, id)
	if err != nil {
		s.writeError(w, r, log.OpHistory, err)
		return
	}
	NewJSONResponse().Body(events).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = r.URL.Query().Get("userid")
	}
	sess, err := s.session(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	in, err := req.input(req.UserID)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	tx, err := s.transactions.AddTransaction(r.Context(), sess, in)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	s.structured.LogMutation(r.Context(), log.OpCreate, tx.ID, tx.UserID)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/v1/transactions?transactionId="+tx.ID).
		Body(createdResponse{Message: "Transaction created", ID: tx.ID}).
		Write(w)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id, err := transactionID(query)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}

	var req editRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	if req.Payload == nil {
		s.writeError(w, r, log.OpUpdate, &core.ValidationError{Field: "payload", Reason: "is required"})
		return
	}

	userID := query.Get("userid")
	if strings.TrimSpace(userID) == "" {
		userID = req.Payload.UserID
	}
	sess, err := s.session(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}

	in, err := req.Payload.input(req.Payload.UserID)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}

	tx, err := s.transactions.EditTransaction(r.Context(), sess, id, in)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsUpdated, 1)
	s.structured.LogMutation(r.Context(), log.OpUpdate, tx.ID, tx.UserID)
	NewJSONResponse().Message("Transaction updated").Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := transactionID(r.URL.Query())
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}

	if err := s.transactions.DeleteTransaction(r.Context(), id); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsDeleted, 1)
	s.structured.LogMutation(r.Context(), log.OpDelete, id, "")
	NewJSONResponse().Message("Transaction deleted").Write(w)
}
