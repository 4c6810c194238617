/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the store in the expected state, loaded
	through the HTTP endpoint exactly as the demo frontend does.

These tests double as end-to-end checks of the savings and loan engines.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entraide/caisse-engine/credit"
	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/savings"
)

func (f *apiFixture) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenario_SavingsLatePenalty(t *testing.T) {
	// GIVEN: no payment by 2025-01-10 on a contract due 2025-01-01
	f := newAPIFixture(t, nil)

	// WHEN
	f.loadScenario(t, "savings-late-penalty")

	// THEN: late with a penalty on the first obligation
	c, err := f.handler.Savings.Get(context.Background(), "sav-late")
	require.NoError(t, err)
	assert.Equal(t, savings.StatusLateWithPenalty, c.Status)
	assert.True(t, c.PenaltiesTotal.IsPositive())
	assert.True(t, c.Obligations[0].PenaltyApplied)
}

func TestScenario_SavingsPaidOnTime(t *testing.T) {
	f := newAPIFixture(t, nil)

	f.loadScenario(t, "savings-paid-on-time")

	c, err := f.handler.Savings.Get(context.Background(), "sav-on-time")
	require.NoError(t, err)
	assert.Equal(t, savings.StatusActive, c.Status)
	assert.Equal(t, savings.ObligationPaid, c.Obligations[0].Status)
	assert.True(t, c.PenaltiesTotal.IsZero())
}

func TestScenario_LoanZeroInterest(t *testing.T) {
	f := newAPIFixture(t, nil)

	f.loadScenario(t, "loan-zero-interest")

	l, err := f.handler.Credit.Get(context.Background(), "loan-zero")
	require.NoError(t, err)
	require.Len(t, l.Installments, 3)
	total := decimal.Zero
	for _, inst := range l.Installments {
		assert.True(t, decimal.NewFromInt(100000).Equal(inst.TotalAmount))
		total = total.Add(inst.TotalAmount)
	}
	assert.True(t, decimal.NewFromInt(300000).Equal(total))
}

func TestScenario_SavingsCompleted(t *testing.T) {
	f := newAPIFixture(t, nil)

	f.loadScenario(t, "savings-completed")

	c, err := f.handler.Savings.Get(context.Background(), "sav-complete")
	require.NoError(t, err)
	assert.Equal(t, savings.StatusFinalRefundPending, c.Status)
	assert.True(t, decimal.NewFromInt(120000).Equal(c.PaidPrincipalTotal))

	rec := f.do(t, http.MethodGet, "/api/savings/sav-complete/final-refund", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	refund := decodeBody[FinalRefundDTO](t, rec)
	assert.True(t, c.PaidPrincipalTotal.Add(c.BonusAccrued).Equal(refund.Amount))
}

func TestScenario_LoanEarlyExit(t *testing.T) {
	f := newAPIFixture(t, nil)

	f.loadScenario(t, "loan-early-exit")

	// THEN: closed early with one month of commission journaled
	l, err := f.handler.Credit.Get(context.Background(), "loan-exit")
	require.NoError(t, err)
	assert.Equal(t, credit.StatusClosed, l.Status)
	assert.Equal(t, credit.ClosedSettledEarly, l.ClosedReason)

	entries, err := f.handler.Credit.Journal(context.Background(), "loan-exit")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(306000).Equal(generic.SumEntries(entries)))
}

func TestScenario_LoadResetsAndTracksCurrent(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.loadScenario(t, "savings-late-penalty")
	f.loadScenario(t, "loan-zero-interest")

	// Previous scenario data is gone
	rec := f.do(t, http.MethodGet, "/api/savings/sav-late", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "loan-zero-interest", decodeBody[ScenarioDTO](t, rec).ID)

	rec = f.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/loans", nil)
	body := decodeBody[struct {
		Loans []LoanDTO `json:"loans"`
	}](t, rec)
	assert.Empty(t, body.Loans)

	rec = f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "unknown"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_ListScenarios(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ScenarioDTO](t, rec)
	assert.Len(t, list, len(f.handler.scenarioLoaders()))
}
