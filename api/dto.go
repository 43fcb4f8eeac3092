/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Every monetary field is a string with two decimals ("4.00"). Clients never
  see a binary float, so nothing drifts on the way to a receipt.

VALIDATION:
  Validation is done in the domain (pfand, generic), not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/pfand-engine/generic"
	"github.com/warp/pfand-engine/pfand"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ReturnRequest is the body of POST /api/pfand/return.
type ReturnRequest struct {
	AccountID      string `json:"accountId"`
	UnitsRequested int64  `json:"unitsRequested"`
	ProcessedBy    string `json:"processedBy,omitempty"`
}

// DepositRequest is the body of POST /api/pfand/deposits.
type DepositRequest struct {
	AccountID string `json:"accountId"`
	OrderID   string `json:"orderId,omitempty"`
	UnitCount int64  `json:"unitCount"`
}

// CreateAccountRequest is the body of POST /api/accounts.
type CreateAccountRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// TransactionDTO is one ledger entry.
type TransactionDTO struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Kind        string    `json:"kind"`
	UnitCount   int64     `json:"unitCount"`
	UnitValue   string    `json:"unitValue"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Note        string    `json:"note"`
	ProcessedBy string    `json:"processedBy,omitempty"`
	OrderID     string    `json:"orderId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ReturnResponse struct {
	Transaction    TransactionDTO `json:"transaction"`
	RefundAmount   string         `json:"refundAmount"`
	RemainingUnits int64          `json:"remainingUnits"`
}

type DepositResponse struct {
	Transaction TransactionDTO `json:"transaction"`
}

// OutstandingDTO is one row of GET /api/pfand/outstanding.
type OutstandingDTO struct {
	AccountID        string    `json:"accountId"`
	OutstandingUnits int64     `json:"outstandingUnits"`
	OutstandingValue string    `json:"outstandingValue"`
	LastActivity     time.Time `json:"lastActivity"`
}

// StatsDTO is GET /api/pfand/stats.
type StatsDTO struct {
	TotalUnitsOutstanding        int64  `json:"totalUnitsOutstanding"`
	TotalValueOutstanding        string `json:"totalValueOutstanding"`
	AccountsWithOutstandingUnits int    `json:"accountsWithOutstandingUnits"`
	TotalUnitsReturned           int64  `json:"totalUnitsReturned"`
	TotalValueRefunded           string `json:"totalValueRefunded"`
	UnitValue                    string `json:"unitValue"`
	Currency                     string `json:"currency"`
}

type ActivityDTO struct {
	Kind      string    `json:"kind"`
	Amount    string    `json:"amount"`
	UnitCount int64     `json:"unitCount"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// AccountPfandDTO is GET /api/accounts/{id}/pfand.
type AccountPfandDTO struct {
	AccountID            string        `json:"accountId"`
	OutstandingUnits     int64         `json:"outstandingUnits"`
	OutstandingValue     string        `json:"outstandingValue"`
	TotalReturned        int64         `json:"totalReturned"`
	TotalDepositPaid     string        `json:"totalDepositPaid"`
	TotalDepositReturned string        `json:"totalDepositReturned"`
	Activity             []ActivityDTO `json:"activity"`
}

type AccountDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioResponse struct {
	Scenario        ScenarioDTO `json:"scenario"`
	AccountsLoaded  int         `json:"accountsLoaded"`
	AccountsSkipped int         `json:"accountsSkipped"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toTransactionDTO(e generic.Entry, currency string) TransactionDTO {
	return TransactionDTO{
		ID:          string(e.ID),
		AccountID:   e.AccountID.String(),
		Kind:        string(e.Kind),
		UnitCount:   e.UnitCount,
		UnitValue:   generic.FormatMoney(e.UnitValue),
		Amount:      generic.FormatMoney(e.Amount),
		Currency:    currency,
		Note:        e.Note,
		ProcessedBy: e.ProcessedBy,
		OrderID:     e.OrderID,
		CreatedAt:   e.CreatedAt,
	}
}

func toReturnResponse(r pfand.ReturnResult, currency string) ReturnResponse {
	return ReturnResponse{
		Transaction:    toTransactionDTO(r.Transaction, currency),
		RefundAmount:   generic.FormatMoney(r.RefundAmount),
		RemainingUnits: r.RemainingUnits,
	}
}

func toOutstandingDTOs(rows []generic.AccountOutstanding) []OutstandingDTO {
	dtos := make([]OutstandingDTO, len(rows))
	for i, row := range rows {
		dtos[i] = OutstandingDTO{
			AccountID:        row.AccountID.String(),
			OutstandingUnits: row.OutstandingUnits,
			OutstandingValue: generic.FormatMoney(row.OutstandingValue),
			LastActivity:     row.LastActivity,
		}
	}
	return dtos
}

func toAccountPfandDTO(id generic.AccountID, s generic.AccountSummary) AccountPfandDTO {
	activity := make([]ActivityDTO, len(s.Activity))
	for i, a := range s.Activity {
		activity[i] = ActivityDTO{
			Kind:      string(a.Kind),
			Amount:    generic.FormatMoney(a.Amount),
			UnitCount: a.UnitCount,
			Note:      a.Note,
			CreatedAt: a.CreatedAt,
		}
	}
	return AccountPfandDTO{
		AccountID:            id.String(),
		OutstandingUnits:     s.OutstandingUnits,
		OutstandingValue:     generic.FormatMoney(s.OutstandingValue),
		TotalReturned:        s.TotalReturned,
		TotalDepositPaid:     generic.FormatMoney(s.TotalDepositPaid),
		TotalDepositReturned: generic.FormatMoney(s.TotalReturnsIssued),
		Activity:             activity,
	}
}
