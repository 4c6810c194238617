/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with contracts in
	the states the engine is known to produce. Each scenario replays its
	operations through the regular services, driven by a fixed clock so the
	dates below are reproduced exactly.

AVAILABLE SCENARIOS:

	savings-late-penalty:   No payment 9 days after the first due date
	savings-paid-on-time:   First contribution paid the day after it was due
	loan-zero-interest:     300000 at 0% over 3 months
	savings-completed:      All 12 months paid, final refund pending
	loan-early-exit:        Loan settled 45 days after the first payment date

HOW SCENARIOS WORK:
 1. Reset store (clear all documents and journal entries)
 2. Build services over the same store with a fixed clock
 3. Create and activate the contract
 4. Move the clock and record contributions/payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "savings-late-penalty"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and error mapping
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/entraide/caisse-engine/credit"
	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/savings"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "savings-late-penalty",
		Name:        "Late Savings Contribution",
		Description: "STANDARD plan, 10000 monthly from 2025-01-01, nothing paid by 2025-01-10",
		Category:    "savings",
	},
	{
		ID:          "savings-paid-on-time",
		Name:        "Contribution Paid Next Day",
		Description: "Same contract, 10000 paid on 2025-01-02 inside the grace period",
		Category:    "savings",
	},
	{
		ID:          "loan-zero-interest",
		Name:        "Interest-Free Loan",
		Description: "300000 at 0% over 3 months, three installments of 100000",
		Category:    "loans",
	},
	{
		ID:          "savings-completed",
		Name:        "Completed Savings Plan",
		Description: "All 12 months paid on their due dates, final refund pending",
		Category:    "savings",
	},
	{
		ID:          "loan-early-exit",
		Name:        "Early Loan Settlement",
		Description: "300000 settled 45 days after the first payment date, one month commission",
		Category:    "loans",
	},
}

// resetter is implemented by stores that can be wiped for demos.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeServiceError(w, "Failed to reset store", err)
		return
	}
	if err := load(ctx); err != nil {
		writeServiceError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	log.WithField("scenario", req.ScenarioID).Info("Scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetScenario clears the store.
// POST /api/scenarios/reset
func (h *Handler) ResetScenario(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeServiceError(w, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"savings-late-penalty": h.loadSavingsLatePenaltyScenario,
		"savings-paid-on-time": h.loadSavingsPaidOnTimeScenario,
		"loan-zero-interest":   h.loadLoanZeroInterestScenario,
		"savings-completed":    h.loadSavingsCompletedScenario,
		"loan-early-exit":      h.loadLoanEarlyExitScenario,
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func scenarioDay(month time.Month, day int) time.Time {
	return time.Date(2025, month, day, 9, 0, 0, 0, time.UTC)
}

func (h *Handler) scenarioSavings(clock generic.Clock) *savings.Service {
	return savings.NewService(h.Store, h.Rates, clock, h.Publisher)
}

func (h *Handler) scenarioCredit(clock generic.Clock) *credit.Service {
	return credit.NewService(h.Store, h.Rates, clock, h.Publisher)
}

func scenarioSavingsTerms(id string) savings.Terms {
	return savings.Terms{
		ID:             generic.ContractID(id),
		Subscriber:     generic.SubscriberRef{Kind: generic.SubscriberMember, ID: "m-001"},
		Plan:           savings.PlanStandard,
		PeriodicAmount: decimal.NewFromInt(10000),
		MonthsPlanned:  12,
		FirstDueAt:     generic.NewTimePoint(2025, time.January, 1),
	}
}

func scenarioLoanTerms(id, rate string) credit.Terms {
	return credit.Terms{
		ID:               generic.ContractID(id),
		BorrowerRef:      "member:m-002",
		GuarantorRef:     "member:m-001",
		PrincipalAmount:  decimal.NewFromInt(300000),
		InterestRate:     decimal.RequireFromString(rate),
		DurationMonths:   3,
		FirstPaymentDate: generic.NewTimePoint(2025, time.February, 1),
	}
}

func (h *Handler) openSavings(ctx context.Context, svc *savings.Service, id string) error {
	c, err := svc.Create(ctx, scenarioSavingsTerms(id), "scenario")
	if err != nil {
		return err
	}
	_, err = svc.Activate(ctx, c.ID, "scenario")
	return err
}

func (h *Handler) loadSavingsLatePenaltyScenario(ctx context.Context) error {
	clock := generic.NewFixedClock(time.Date(2024, time.December, 15, 9, 0, 0, 0, time.UTC))
	svc := h.scenarioSavings(clock)
	if err := h.openSavings(ctx, svc, "sav-late"); err != nil {
		return err
	}
	clock.Set(scenarioDay(time.January, 10))
	_, err := svc.Recompute(ctx, "sav-late")
	return err
}

func (h *Handler) loadSavingsPaidOnTimeScenario(ctx context.Context) error {
	clock := generic.NewFixedClock(time.Date(2024, time.December, 15, 9, 0, 0, 0, time.UTC))
	svc := h.scenarioSavings(clock)
	if err := h.openSavings(ctx, svc, "sav-on-time"); err != nil {
		return err
	}
	clock.Set(scenarioDay(time.January, 2))
	_, err := svc.RecordContribution(ctx, "sav-on-time", savings.ContributionInput{
		Contribution: generic.Contribution{
			Amount:         decimal.NewFromInt(10000),
			At:             clock.Now(),
			RecordedBy:     "cashier",
			PaymentRef:     "cash-0001",
			IdempotencyKey: "sav-on-time-0",
		},
	})
	return err
}

func (h *Handler) loadLoanZeroInterestScenario(ctx context.Context) error {
	clock := generic.NewFixedClock(scenarioDay(time.January, 5))
	svc := h.scenarioCredit(clock)
	l, err := svc.Create(ctx, scenarioLoanTerms("loan-zero", "0"), "scenario")
	if err != nil {
		return err
	}
	_, err = svc.Activate(ctx, l.ID, "scenario")
	return err
}

func (h *Handler) loadSavingsCompletedScenario(ctx context.Context) error {
	clock := generic.NewFixedClock(time.Date(2024, time.December, 15, 9, 0, 0, 0, time.UTC))
	svc := h.scenarioSavings(clock)
	if err := h.openSavings(ctx, svc, "sav-complete"); err != nil {
		return err
	}
	for i := 0; i < 12; i++ {
		due := time.Date(2025, time.January+time.Month(i), 1, 9, 0, 0, 0, time.UTC)
		clock.Set(due)
		_, err := svc.RecordContribution(ctx, "sav-complete", savings.ContributionInput{
			Contribution: generic.Contribution{
				Amount:         decimal.NewFromInt(10000),
				At:             due,
				RecordedBy:     "cashier",
				IdempotencyKey: fmt.Sprintf("sav-complete-%d", i),
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadLoanEarlyExitScenario(ctx context.Context) error {
	clock := generic.NewFixedClock(scenarioDay(time.January, 5))
	svc := h.scenarioCredit(clock)
	l, err := svc.Create(ctx, scenarioLoanTerms("loan-exit", "6"), "scenario")
	if err != nil {
		return err
	}
	if _, err := svc.Activate(ctx, l.ID, "scenario"); err != nil {
		return err
	}

	// 45 days after the first payment date
	clock.Set(scenarioDay(time.March, 18))
	quote, err := svc.QuoteEarlyExit(ctx, l.ID)
	if err != nil {
		return err
	}
	_, err = svc.SettleEarly(ctx, l.ID, quote.PayoutAmount, "transfer-0001", "cashier")
	return err
}
