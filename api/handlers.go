/*
handlers.go - HTTP API handlers for the Pfand ledger

PURPOSE:
  Exposes the deposit ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the pfand and generic packages.

ENDPOINTS:
  Pfand:
    POST   /api/pfand/return          Process a cup return
    POST   /api/pfand/deposits        Record an order's cup deposit
    GET    /api/pfand/outstanding     Accounts still holding cups
    GET    /api/pfand/stats           System-wide totals

  Accounts:
    POST   /api/accounts              Register an account
    GET    /api/accounts/{id}/pfand   Single-account summary

  Scenarios:
    GET    /api/scenarios             List demo scenarios
    POST   /api/scenarios/load        Load a demo scenario

  Health:
    GET    /healthz

ERROR HANDLING:
  Domain errors map to status by generic.KindOf:
  - 400: invalid_request, insufficient_balance
  - 404: account_not_found
  - 500: persistence_error, internal_error (details withheld, logged)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/pfand-engine/generic"
	"github.com/warp/pfand-engine/pfand"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the handler dependencies. Accounts and Health are optional.
type Services struct {
	Ledger   *generic.DefaultLedger
	Returns  *pfand.ReturnProcessor
	Deposits *pfand.DepositRecorder
	Accounts generic.AccountRegistry
	Health   Pinger
	Logger   *zap.Logger
	Currency string
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services
	calc generic.BalanceCalculator

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over the given services.
func NewHandler(s Services) *Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	return &Handler{
		Services: s,
		calc:     generic.NewBalanceCalculator(s.Ledger.UnitValue()),
	}
}

// =============================================================================
// PFAND HANDLERS
// =============================================================================

// ProcessReturn validates and records a cup return.
// POST /api/pfand/return
func (h *Handler) ProcessReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.Returns.ProcessReturn(r.Context(), generic.AccountID(req.AccountID), req.UnitsRequested, req.ProcessedBy)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReturnResponse(result, h.Currency))
}

// RecordDeposit records the deposit for cups handed out with an order.
// POST /api/pfand/deposits
func (h *Handler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.Deposits.RecordDeposit(r.Context(), pfand.DepositRequest{
		AccountID: generic.AccountID(req.AccountID),
		OrderID:   req.OrderID,
		UnitCount: req.UnitCount,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, DepositResponse{Transaction: toTransactionDTO(entry, h.Currency)})
}

// ListOutstanding returns every account still holding cups, most first.
// GET /api/pfand/outstanding
func (h *Handler) ListOutstanding(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.AllEntries(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	summary, err := h.calc.SystemSummary(entries)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOutstandingDTOs(summary.Accounts))
}

// GetStats returns system-wide totals.
// GET /api/pfand/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.AllEntries(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	summary, err := h.calc.SystemSummary(entries)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsDTO{
		TotalUnitsOutstanding:        summary.TotalUnitsOutstanding,
		TotalValueOutstanding:        generic.FormatMoney(summary.TotalValueOutstanding),
		AccountsWithOutstandingUnits: summary.AccountsWithOutstandingUnits,
		TotalUnitsReturned:           summary.TotalUnitsReturned,
		TotalValueRefunded:           generic.FormatMoney(summary.TotalValueRefunded),
		UnitValue:                    generic.FormatMoney(h.Ledger.UnitValue()),
		Currency:                     h.Currency,
	})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// GetAccountPfand returns one account's balance and activity.
// An account without entries has a zero summary.
// GET /api/accounts/{id}/pfand
func (h *Handler) GetAccountPfand(w http.ResponseWriter, r *http.Request) {
	id := generic.AccountID(chi.URLParam(r, "id")).Normalize()
	if id.IsZero() {
		h.writeDomainError(w, generic.NewInvalidRequestError("id", "account id is required"))
		return
	}

	entries, err := h.Ledger.EntriesFor(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	summary, err := h.calc.AccountSummary(entries)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountPfandDTO(id, summary))
}

// CreateAccount registers an account.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if h.Accounts == nil {
		writeError(w, http.StatusNotImplemented, "Account registry not configured", nil)
		return
	}
	var req CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account := generic.Account{
		ID:   generic.AccountID(req.ID).Normalize(),
		Name: strings.TrimSpace(req.Name),
	}
	if account.ID.IsZero() {
		h.writeDomainError(w, generic.NewInvalidRequestError("id", "account id is required"))
		return
	}
	if err := h.Accounts.RegisterAccount(r.Context(), account); err != nil {
		h.writeDomainError(w, generic.NewPersistenceError("register_account", err))
		return
	}

	writeJSON(w, http.StatusCreated, AccountDTO{ID: account.ID.String(), Name: account.Name})
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz reports liveness and store reachability.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			h.Logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", string(generic.KindInvalidRequest), err.Error())
		return false
	}
	return true
}

// writeDomainError maps err to a status code by its kind.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	kind := generic.KindOf(err)

	var (
		invalid  *generic.InvalidRequestError
		balErr   *generic.InsufficientBalanceError
		notFound *generic.AccountNotFoundError
	)
	switch {
	case errors.As(err, &invalid):
		writeJSONError(w, http.StatusBadRequest, err.Error(), string(kind), map[string]string{
			"field":  invalid.Field,
			"reason": invalid.Reason,
		})
	case errors.As(err, &balErr):
		writeJSONError(w, http.StatusBadRequest, err.Error(), string(kind), map[string]any{
			"accountId": balErr.AccountID.String(),
			"requested": balErr.Requested,
			"available": balErr.Available,
		})
	case errors.As(err, &notFound):
		writeJSONError(w, http.StatusNotFound, err.Error(), string(kind), map[string]string{
			"accountId": notFound.AccountID.String(),
		})
	case kind == generic.KindInvalidRequest:
		writeJSONError(w, http.StatusBadRequest, err.Error(), string(kind), nil)
	case kind == generic.KindAccountNotFound:
		writeJSONError(w, http.StatusNotFound, err.Error(), string(kind), nil)
	default:
		h.Logger.Error("request failed", zap.String("code", string(kind)), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Internal error", string(kind), nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSONError(w http.ResponseWriter, status int, message, code string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}
