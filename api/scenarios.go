/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the ledger with realistic café
  data. Each scenario registers accounts, records order deposits and
  processes returns through the same code paths the API uses.

AVAILABLE SCENARIOS:
  three-cups:    One customer, 3 cups, 2 returned (1 outstanding)
  morning-rush:  Several customers with partial returns
  all-returned:  A regular who brought every cup back
  new-customer:  Registered account with no history yet

HOW SCENARIOS WORK:
  1. Register each account (when a registry is configured)
  2. Record one deposit per order
  3. Process the returns

  The ledger is append-only, so nothing is reset. An account that already
  has entries is skipped, which makes loading a scenario twice harmless.

USAGE VIA API:
  POST /api/scenarios/load
  {"name": "morning-rush"}

USAGE VIA CLI:
  pfandd seed --scenario morning-rush

SEE ALSO:
  - handlers.go: Shared services
  - cmd/server/main.go: seed subcommand
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/pfand-engine/generic"
	"github.com/warp/pfand-engine/pfand"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioAccount struct {
	ID       generic.AccountID
	Name     string
	Deposits []int64 // cups per order
	Returns  []int64 // cups per return
	Staff    string
}

type scenario struct {
	ScenarioDTO
	Accounts []scenarioAccount
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "three-cups",
			Name:        "Three Cups",
			Description: "One customer paid for 3 cups and returned 2; 1 cup is still out",
		},
		Accounts: []scenarioAccount{
			{ID: "demo-lena", Name: "Lena", Deposits: []int64{3}, Returns: []int64{2}, Staff: "barista-anna"},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "morning-rush",
			Name:        "Morning Rush",
			Description: "Several customers, multiple orders, partial returns",
		},
		Accounts: []scenarioAccount{
			{ID: "demo-jonas", Name: "Jonas", Deposits: []int64{2, 1, 2}, Returns: []int64{1}, Staff: "barista-anna"},
			{ID: "demo-mia", Name: "Mia", Deposits: []int64{1}, Staff: "barista-tom"},
			{ID: "demo-felix", Name: "Felix", Deposits: []int64{4}, Returns: []int64{2, 1}, Staff: "barista-tom"},
			{ID: "demo-sara", Name: "Sara", Deposits: []int64{2, 2}},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "all-returned",
			Name:        "All Returned",
			Description: "A regular who brought every cup back; absent from the outstanding list",
		},
		Accounts: []scenarioAccount{
			{ID: "demo-paul", Name: "Paul", Deposits: []int64{2, 3}, Returns: []int64{3, 2}, Staff: "barista-anna"},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "new-customer",
			Name:        "New Customer",
			Description: "Registered account without any orders; returns fail as insufficient, not unknown",
		},
		Accounts: []scenarioAccount{
			{ID: "demo-nora", Name: "Nora"},
		},
	},
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == name {
			return s, true
		}
	}
	return scenario{}, false
}

// ScenarioNames lists the loadable scenario ids.
func ScenarioNames() []string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.ID
	}
	return names
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario loads a named scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.Seed(r.Context(), req.Name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// LOADER
// =============================================================================

// Seed loads the named scenario through the regular deposit and return paths.
func (h *Handler) Seed(ctx context.Context, name string) (LoadScenarioResponse, error) {
	s, ok := findScenario(name)
	if !ok {
		return LoadScenarioResponse{}, generic.NewInvalidRequestError("name", fmt.Sprintf("unknown scenario %q", name))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	result := LoadScenarioResponse{Scenario: s.ScenarioDTO}
	for _, acct := range s.Accounts {
		loaded, err := h.seedAccount(ctx, s.ID, acct)
		if err != nil {
			return LoadScenarioResponse{}, fmt.Errorf("scenario %s, account %s: %w", s.ID, acct.ID, err)
		}
		if loaded {
			result.AccountsLoaded++
		} else {
			result.AccountsSkipped++
		}
	}

	h.currentScenario = s.ID
	h.Logger.Info("scenario loaded",
		zap.String("scenario", s.ID),
		zap.Int("accounts_loaded", result.AccountsLoaded),
		zap.Int("accounts_skipped", result.AccountsSkipped),
	)
	return result, nil
}

func (h *Handler) seedAccount(ctx context.Context, scenarioID string, acct scenarioAccount) (bool, error) {
	existing, err := h.Ledger.EntriesFor(ctx, acct.ID)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	if h.Accounts != nil {
		if err := h.Accounts.RegisterAccount(ctx, generic.Account{ID: acct.ID, Name: acct.Name}); err != nil {
			return false, generic.NewPersistenceError("register_account", err)
		}
	}
	for i, units := range acct.Deposits {
		if _, err := h.Deposits.RecordDeposit(ctx, pfand.DepositRequest{
			AccountID: acct.ID,
			OrderID:   fmt.Sprintf("%s-%s-order-%d", scenarioID, acct.ID, i+1),
			UnitCount: units,
		}); err != nil {
			return false, err
		}
	}
	for _, units := range acct.Returns {
		if _, err := h.Returns.ProcessReturn(ctx, acct.ID, units, acct.Staff); err != nil {
			return false, err
		}
	}
	return true, nil
}

// CurrentScenario returns the id of the last loaded scenario, if any.
func (h *Handler) CurrentScenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

// GetCurrentScenario returns the last loaded scenario, or null.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := findScenario(h.CurrentScenario())
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}
