package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(ScenarioNames()))
	assert.Equal(t, "three-cups", list[0].ID)
}

func TestAllScenariosLoad(t *testing.T) {
	for _, name := range ScenarioNames() {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t)

			result, err := s.handler.Seed(context.Background(), name)

			require.NoError(t, err)
			assert.Equal(t, name, result.Scenario.ID)
			assert.Equal(t, name, s.handler.CurrentScenario())
		})
	}
}

func TestLoadScenario_ThreeCupsViaAPI(t *testing.T) {
	// GIVEN
	s := newTestServer(t)

	// WHEN
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{Name: "three-cups"})

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[LoadScenarioResponse](t, rec).AccountsLoaded)

	summary := decode[AccountPfandDTO](t, s.do(t, http.MethodGet, "/api/accounts/demo-lena/pfand", nil))
	assert.Equal(t, int64(1), summary.OutstandingUnits)
	assert.Equal(t, "4.00", summary.TotalDepositReturned)

	current := decode[ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "three-cups", current.ID)
}

func TestLoadScenario_TwiceSkipsLoadedAccounts(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handler.Seed(ctx, "morning-rush")
	require.NoError(t, err)
	second, err := s.handler.Seed(ctx, "morning-rush")
	require.NoError(t, err)

	assert.Equal(t, 0, second.AccountsLoaded)
	assert.Equal(t, 4, second.AccountsSkipped)

	stats := decode[StatsDTO](t, s.do(t, http.MethodGet, "/api/pfand/stats", nil))
	// jonas 4, mia 1, felix 1, sara 4
	assert.Equal(t, int64(10), stats.TotalUnitsOutstanding)
	assert.Equal(t, 4, stats.AccountsWithOutstandingUnits)
}

func TestLoadScenario_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{Name: "nope"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Code)
}

func TestCurrentScenario_NoneLoaded(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios/current", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `null`, rec.Body.String())
}
