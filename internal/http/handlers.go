package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
	"expensemanager/internal/navigation"
	"expensemanager/internal/services"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Dashboard.Snapshot())
}

func (s *Server) handleDashboardCommand(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, s.deps.Dashboard.Dispatch)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.AccountList.State().Value())
}

func (s *Server) handleAccountCommand(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, s.deps.AccountList.Dispatch)
}

// dispatch runs a named command. Commands only enqueue navigation requests,
// so success is 202 with no body.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, run func(command, id string) bool) {
	command := chi.URLParam(r, "command")
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if !run(command, id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown command %q", command))
		return
	}
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Command dispatched",
		"command", command,
		applog.FieldEntityID, id,
		applog.FieldOperation, applog.OpNavigate)
	w.WriteHeader(http.StatusAccepted)
}

type navigationItem struct {
	navigation.Destination
	Route string `json:"route"`
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	pending := s.deps.Navigation.Drain()
	items := make([]navigationItem, 0, len(pending))
	for _, d := range pending {
		items = append(items, navigationItem{Destination: d, Route: d.Route()})
	}
	writeJSON(w, http.StatusOK, items)
}

type currencyRequest struct {
	Code string `json:"code"`
}

type currencyResponse struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.deps.Currency.SetCurrency(r.Context(), req.Code)
	if err != nil {
		s.writeServiceError(w, r, "set currency", err)
		return
	}
	writeJSON(w, http.StatusOK, currencyResponse{Code: c.Code, Symbol: c.Symbol()})
}

// transactionRequest carries the amount as text so "12,50" and "12.50"
// parse the same way.
type transactionRequest struct {
	Type          core.TransactionType `json:"type"`
	Amount        string               `json:"amount"`
	CategoryID    string               `json:"categoryId"`
	FromAccountID string               `json:"fromAccountId"`
	ToAccountID   string               `json:"toAccountId"`
	Notes         string               `json:"notes"`
	CreatedOn     *time.Time           `json:"createdOn"`
}

func (req transactionRequest) toTransaction() (core.Transaction, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		Type:          core.TransactionType(strings.ToUpper(strings.TrimSpace(string(req.Type)))),
		Amount:        amount,
		CategoryID:    strings.TrimSpace(req.CategoryID),
		FromAccountID: strings.TrimSpace(req.FromAccountID),
		ToAccountID:   strings.TrimSpace(req.ToAccountID),
		Notes:         sanitizeInput(req.Notes),
	}
	if req.CreatedOn != nil {
		t.CreatedOn = *req.CreatedOn
	} else {
		t.CreatedOn = time.Now()
	}
	return t, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := req.toTransaction()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	saved, err := s.deps.Recorder.Record(r.Context(), t)
	if err != nil {
		s.writeServiceError(w, r, "record transaction", err)
		return
	}
	w.Header().Set("Location", "/api/transactions/"+saved.ID)
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Recorder.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, "delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps domain errors onto status codes. Anything unknown
// is logged and reported as a 500 without details.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, nil)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		services.ErrUnknownCurrency,
		core.ErrInvalidAmount,
		core.ErrEmptyName,
		core.ErrInvalidAccountType,
		core.ErrInvalidCategoryType,
		core.ErrInvalidTransactionType,
		core.ErrMissingCategory,
		core.ErrMissingAccount,
		core.ErrInvalidMonth,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// sanitizeInput removes control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
