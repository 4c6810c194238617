package savings_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/savings"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

func at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}

func money(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func testRates(bonusPercent int64) generic.RateSchedule {
	return generic.RateSchedule{
		Version:              1,
		PlanKind:             generic.WildcardPlan,
		EffectiveAt:          date(2024, time.January, 1),
		GraceDays:            3,
		PenaltyWindowDays:    12,
		PenaltyRatePercent:   decimal.NewNullDecimal(money(5)),
		BonusRatePercent:     money(bonusPercent),
		OverdueThresholdDays: 3,
	}
}

func standardTerms() savings.Terms {
	return savings.Terms{
		ID:             "sav-1",
		Subscriber:     generic.SubscriberRef{Kind: generic.SubscriberMember, ID: "m-1"},
		Plan:           savings.PlanStandard,
		PeriodicAmount: money(10000),
		MonthsPlanned:  12,
		FirstDueAt:     date(2025, time.January, 1),
	}
}

func activeContract(t *testing.T, terms savings.Terms, bonusPercent int64) *savings.Contract {
	t.Helper()
	rates := testRates(bonusPercent)
	c, err := savings.NewContract(terms, &rates, at(2024, time.December, 15))
	require.NoError(t, err)
	require.NoError(t, c.Activate(at(2024, time.December, 15), "agent"))
	return c
}

func pay(t *testing.T, c *savings.Contract, amount int64, when time.Time) {
	t.Helper()
	_, err := c.RecordContribution(savings.ContributionInput{
		Contribution: generic.Contribution{Amount: money(amount), At: when, RecordedBy: "cashier"},
	})
	require.NoError(t, err)
	_, err = c.Recompute(when)
	require.NoError(t, err)
}

// =============================================================================
// SCHEDULE GENERATOR
// =============================================================================

func TestGenerateSchedule_OneObligationPerMonth(t *testing.T) {
	obligations, err := savings.GenerateSchedule(standardTerms())
	require.NoError(t, err)

	require.Len(t, obligations, 12)
	for i, o := range obligations {
		assert.Equal(t, i, o.PeriodIndex)
		assert.Equal(t, date(2025, time.January, 1).AddMonths(i), o.DueAt)
		assert.True(t, money(10000).Equal(o.AmountDue))
		assert.Equal(t, savings.ObligationDue, o.Status)
	}
	assert.Equal(t, date(2025, time.January, 31), obligations[0].Period.End)
}

func TestGenerateSchedule_InvalidTerms(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*savings.Terms)
		field  string
	}{
		{"zero months", func(tm *savings.Terms) { tm.MonthsPlanned = 0 }, "months_planned"},
		{"thirteen months", func(tm *savings.Terms) { tm.MonthsPlanned = 13 }, "months_planned"},
		{"zero amount", func(tm *savings.Terms) { tm.PeriodicAmount = decimal.Zero }, "periodic_amount"},
		{"negative amount", func(tm *savings.Terms) { tm.PeriodicAmount = money(-1) }, "periodic_amount"},
		{"unknown plan", func(tm *savings.Terms) { tm.Plan = "WEEKLY" }, "plan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := standardTerms()
			tt.mutate(&terms)

			_, err := savings.GenerateSchedule(terms)

			var termsErr *generic.InvalidTermsError
			require.ErrorAs(t, err, &termsErr)
			assert.Equal(t, tt.field, termsErr.Field)
		})
	}
}

func TestContract_DerivedDates(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)

	assert.Equal(t, savings.StatusActive, c.Status)
	assert.Equal(t, date(2025, time.December, 1), c.EndAt)
	assert.Equal(t, date(2025, time.January, 1), c.NextDueAt)
	assert.Equal(t, 1, c.Generation)
}

// =============================================================================
// LATENESS & PENALTIES
// =============================================================================

func TestScenarioA_NoPaymentNineDaysLate(t *testing.T) {
	// GIVEN: STANDARD 10000 × 12 starting 2025-01-01, nothing paid
	c := activeContract(t, standardTerms(), 0)

	// WHEN: recompute on 2025-01-10 (9 days late)
	entries, err := c.Recompute(at(2025, time.January, 10))
	require.NoError(t, err)

	// THEN: LATE_WITH_PENALTY with a 5% penalty on the due amount
	assert.Equal(t, savings.StatusLateWithPenalty, c.Status)
	assert.True(t, c.PenaltiesTotal.IsPositive())
	assert.True(t, money(500).Equal(c.PenaltiesTotal))
	require.Len(t, entries, 1)
	assert.Equal(t, generic.EntryPenalty, entries[0].Type)
	assert.Equal(t, "sav-1#0", entries[0].ObligationRef)
}

func TestPenalty_IdempotentAcrossRecomputes(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)
	now := at(2025, time.January, 10)

	_, err := c.Recompute(now)
	require.NoError(t, err)
	entries, err := c.Recompute(now)
	require.NoError(t, err)
	_, err = c.Recompute(at(2025, time.January, 12))
	require.NoError(t, err)

	assert.Empty(t, entries)
	assert.True(t, money(500).Equal(c.PenaltiesTotal))
}

func TestScenarioB_PaidNextDay(t *testing.T) {
	// GIVEN: the Scenario A contract
	c := activeContract(t, standardTerms(), 0)

	// WHEN: 10000 is recorded on 2025-01-02
	pay(t, c, 10000, at(2025, time.January, 2))

	// THEN: obligation 0 PAID, contract ACTIVE, no penalty
	assert.Equal(t, savings.ObligationPaid, c.Obligations[0].Status)
	assert.Equal(t, savings.StatusActive, c.Status)
	assert.True(t, c.PenaltiesTotal.IsZero())
	assert.True(t, money(10000).Equal(c.PaidPrincipalTotal))
	assert.Equal(t, date(2025, time.February, 1), c.NextDueAt)
}

func TestLateness_ProgressesThroughBands(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)

	steps := []struct {
		now  time.Time
		want savings.Status
	}{
		{at(2025, time.January, 1), savings.StatusActive},
		{at(2025, time.January, 3), savings.StatusLateNoPenalty},
		{at(2025, time.January, 5), savings.StatusLateWithPenalty},
		{at(2025, time.January, 13), savings.StatusLateWithPenalty},
		{at(2025, time.January, 14), savings.StatusDefaultedAfterJ12},
		{at(2025, time.March, 1), savings.StatusDefaultedAfterJ12},
	}
	for _, step := range steps {
		_, err := c.Recompute(step.now)
		require.NoError(t, err)
		assert.Equal(t, step.want, c.Status, "at %s", step.now.Format("2006-01-02"))
	}
	assert.True(t, money(500).Equal(c.PenaltiesTotal), "penalty charged once across bands")
}

func TestLateness_DefaultWithoutPassingThroughPenaltyStillCharges(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)

	_, err := c.Recompute(at(2025, time.February, 20))
	require.NoError(t, err)

	assert.Equal(t, savings.StatusDefaultedAfterJ12, c.Status)
	assert.True(t, money(500).Equal(c.PenaltiesTotal))
}

func TestNoBackwardTransition_WhileObligationUnpaid(t *testing.T) {
	// GIVEN: LATE_WITH_PENALTY on obligation 0
	c := activeContract(t, standardTerms(), 0)
	_, err := c.Recompute(at(2025, time.January, 8))
	require.NoError(t, err)
	require.Equal(t, savings.StatusLateWithPenalty, c.Status)

	// WHEN: recompute with an earlier now (clock skew) and a partial payment
	_, err = c.Recompute(at(2024, time.December, 30))
	require.NoError(t, err)
	assert.Equal(t, savings.StatusLateWithPenalty, c.Status)

	pay(t, c, 4000, at(2024, time.December, 30))

	// THEN: still late until obligation 0 is PAID
	assert.Equal(t, savings.StatusLateWithPenalty, c.Status)
	assert.Equal(t, savings.ObligationPartiallyPaid, c.Obligations[0].Status)

	pay(t, c, 6000, at(2025, time.January, 9))
	assert.Equal(t, savings.StatusActive, c.Status)
	for _, h := range c.History {
		if h.From == string(savings.StatusLateWithPenalty) {
			assert.Equal(t, string(savings.StatusActive), h.To)
		}
	}
}

func TestRecompute_MissingRatesKeepsStatus(t *testing.T) {
	c, err := savings.NewContract(standardTerms(), nil, at(2024, time.December, 15))
	require.NoError(t, err)
	require.NoError(t, c.Activate(at(2024, time.December, 15), "agent"))
	assert.True(t, c.ConfigurationMissing)

	_, err = c.Recompute(at(2025, time.January, 20))

	assert.ErrorIs(t, err, generic.ErrConfigurationMissing)
	assert.Equal(t, savings.StatusActive, c.Status)
	assert.True(t, c.PenaltiesTotal.IsZero())
}

// =============================================================================
// CONTRIBUTION LEDGER
// =============================================================================

func TestStandard_OverpaymentRejected(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)
	pay(t, c, 6000, at(2025, time.January, 1))

	idx := 0
	_, err := c.RecordContribution(savings.ContributionInput{
		ObligationIndex: &idx,
		Contribution:    generic.Contribution{Amount: money(5000), At: at(2025, time.January, 1)},
	})

	var over *generic.OverpaymentRejectedError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, "sav-1#0", over.ObligationRef)
	assert.True(t, money(6000).Equal(over.AlreadyPaid))
	assert.True(t, money(6000).Equal(c.Obligations[0].AmountPaid()), "rejected contribution not recorded")
}

func TestContribution_AmountRoundedBeforeChecks(t *testing.T) {
	t.Run("sub-unit amount rounds to zero and is rejected", func(t *testing.T) {
		c := activeContract(t, standardTerms(), 0)

		_, err := c.RecordContribution(savings.ContributionInput{
			Contribution: generic.Contribution{Amount: decimal.RequireFromString("0.4"), At: at(2025, time.January, 1)},
		})

		assert.ErrorIs(t, err, generic.ErrInvalidAmount)
		assert.False(t, c.HasPayments())
		amended := standardTerms()
		amended.MonthsPlanned = 6
		assert.NoError(t, c.AmendTerms(amended, at(2025, time.January, 1)), "schedule still amendable")
	})

	t.Run("fraction above the installment rounds down to it", func(t *testing.T) {
		c := activeContract(t, standardTerms(), 0)
		idx := 0

		_, err := c.RecordContribution(savings.ContributionInput{
			ObligationIndex: &idx,
			Contribution:    generic.Contribution{Amount: decimal.RequireFromString("10000.4"), At: at(2025, time.January, 1)},
		})

		require.NoError(t, err)
		assert.Equal(t, savings.ObligationPaid, c.Obligations[0].Status)
		assert.True(t, money(10000).Equal(c.Obligations[0].AmountPaid()))
	})
}

func TestContribution_Guards(t *testing.T) {
	rates := testRates(0)
	draft, err := savings.NewContract(standardTerms(), &rates, at(2024, time.December, 15))
	require.NoError(t, err)

	_, err = draft.RecordContribution(savings.ContributionInput{
		Contribution: generic.Contribution{Amount: money(10000), At: at(2025, time.January, 1)},
	})
	assert.ErrorIs(t, err, generic.ErrContractNotEligible)

	c := activeContract(t, standardTerms(), 0)
	_, err = c.RecordContribution(savings.ContributionInput{
		Contribution: generic.Contribution{Amount: decimal.Zero, At: at(2025, time.January, 1)},
	})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	in := savings.ContributionInput{Contribution: generic.Contribution{
		Amount: money(10000), At: at(2025, time.January, 1), IdempotencyKey: "rcpt-7",
	}}
	_, err = c.RecordContribution(in)
	require.NoError(t, err)
	_, err = c.RecordContribution(in)
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	assert.True(t, money(10000).Equal(c.PaidPrincipalTotal))
}

func TestDaily_ManyContributionsAndSurplus(t *testing.T) {
	// GIVEN: DAILY plan targeting 30000 a month for 2 months
	terms := standardTerms()
	terms.Plan = savings.PlanDaily
	terms.PeriodicAmount = money(30000)
	terms.MonthsPlanned = 2
	c := activeContract(t, terms, 0)

	// WHEN: small daily contributions, overshooting the target in month 0
	idx0 := 0
	for day := 1; day <= 16; day++ {
		_, err := c.RecordContribution(savings.ContributionInput{
			ObligationIndex: &idx0,
			Contribution:    generic.Contribution{Amount: money(2000), At: at(2025, time.January, day)},
		})
		require.NoError(t, err)
	}

	// THEN: principal capped at the target, surplus tracked
	assert.Equal(t, savings.ObligationPaid, c.Obligations[0].Status)
	assert.True(t, money(30000).Equal(c.PaidPrincipalTotal))
	assert.True(t, money(2000).Equal(c.SurplusTotal()))
	assert.True(t, c.BonusAccrued.IsZero(), "surplus becomes bonus only at completion")

	pay(t, c, 30000, at(2025, time.February, 1))
	assert.Equal(t, savings.StatusFinalRefundPending, c.Status)
	assert.True(t, money(2000).Equal(c.BonusAccrued))
	assert.True(t, money(62000).Equal(savings.ComputeFinalRefund(c)))
}

func TestPaidPrincipalNeverExceedsPlannedTotal(t *testing.T) {
	terms := standardTerms()
	terms.Plan = savings.PlanFreeform
	terms.MonthsPlanned = 3
	c := activeContract(t, terms, 0)

	for i := 0; i < 3; i++ {
		idx := i
		_, err := c.RecordContribution(savings.ContributionInput{
			ObligationIndex: &idx,
			Contribution:    generic.Contribution{Amount: money(25000), At: at(2025, time.January, 1)},
		})
		require.NoError(t, err)
	}
	assert.True(t, c.PaidPrincipalTotal.LessThanOrEqual(c.PlannedTotal()))
	assert.True(t, money(30000).Equal(c.PaidPrincipalTotal))
}

// =============================================================================
// COMPLETION & REFUNDS
// =============================================================================

func TestScenarioD_AllMonthsPaid(t *testing.T) {
	// GIVEN: every month paid on its due date
	c := activeContract(t, standardTerms(), 0)
	for i := 0; i < 12; i++ {
		due := c.Obligations[i].DueAt.Time
		pay(t, c, 10000, due.Add(9*time.Hour))
	}

	// THEN: FINAL_REFUND_PENDING, final refund = principal + bonus
	assert.Equal(t, savings.StatusFinalRefundPending, c.Status)
	assert.True(t, money(120000).Equal(c.PaidPrincipalTotal))
	assert.True(t, money(120000).Add(c.BonusAccrued).Equal(savings.ComputeFinalRefund(c)))
	require.NotNil(t, c.Refund)
	assert.Equal(t, generic.RefundFinal, c.Refund.Kind)
	assert.True(t, savings.ComputeFinalRefund(c).Equal(c.Refund.AmountNominal))
}

func TestCompletion_RateBonusWaivedForCharitablePlans(t *testing.T) {
	tests := []struct {
		plan  savings.PlanKind
		bonus int64
	}{
		{savings.PlanStandard, 2000},
		{savings.PlanStandardCharitable, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			terms := standardTerms()
			terms.Plan = tt.plan
			terms.MonthsPlanned = 10
			c := activeContract(t, terms, 2)
			for i := 0; i < 10; i++ {
				pay(t, c, 10000, c.Obligations[i].DueAt.Time)
			}
			assert.Equal(t, savings.StatusFinalRefundPending, c.Status)
			assert.True(t, money(tt.bonus).Equal(c.BonusAccrued), "bonus %s", c.BonusAccrued)
		})
	}
}

func TestFinalRefund_PenaltiesDeductedAndRefundCloses(t *testing.T) {
	terms := standardTerms()
	terms.MonthsPlanned = 2
	c := activeContract(t, terms, 0)

	_, err := c.Recompute(at(2025, time.January, 8))
	require.NoError(t, err)
	pay(t, c, 10000, at(2025, time.January, 8))
	pay(t, c, 10000, at(2025, time.February, 1))

	require.Equal(t, savings.StatusFinalRefundPending, c.Status)
	assert.True(t, money(19500).Equal(c.Refund.AmountNominal))

	// Refund lifecycle: paying before approval is refused
	_, err = c.PayRefund(at(2025, time.February, 2), "rcpt", "cashier")
	assert.ErrorIs(t, err, generic.ErrContractNotEligible)

	require.NoError(t, c.ApproveRefund(at(2025, time.February, 2), "treasurer"))
	entries, err := c.PayRefund(at(2025, time.February, 3), "virement-42", "cashier")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, money(-19500).Equal(entries[0].Amount))

	_, err = c.Recompute(at(2025, time.February, 3))
	require.NoError(t, err)
	assert.Equal(t, savings.StatusClosed, c.Status)
	assert.True(t, c.Status.IsTerminal())
}

func TestFinalRefund_CaseMatchesComputedRefund(t *testing.T) {
	// GIVEN: a 5% bonus plan with one late month charged
	terms := standardTerms()
	terms.MonthsPlanned = 2
	c := activeContract(t, terms, 5)
	_, err := c.Recompute(at(2025, time.January, 8))
	require.NoError(t, err)

	// WHEN: both months are paid
	pay(t, c, 10000, at(2025, time.January, 8))
	pay(t, c, 10000, at(2025, time.February, 1))

	// THEN: the refund case carries principal + bonus - penalties
	require.Equal(t, savings.StatusFinalRefundPending, c.Status)
	require.NotNil(t, c.Refund)
	assert.True(t, money(1000).Equal(c.BonusAccrued))
	assert.True(t, money(500).Equal(c.PenaltiesTotal))
	assert.True(t, money(20500).Equal(savings.ComputeFinalRefund(c)))
	assert.True(t, savings.ComputeFinalRefund(c).Equal(c.Refund.AmountNominal))
}

func TestEarlyWithdraw(t *testing.T) {
	c := activeContract(t, standardTerms(), 5)
	_, err := c.Recompute(at(2025, time.January, 8))
	require.NoError(t, err)
	pay(t, c, 10000, at(2025, time.January, 8))
	pay(t, c, 10000, at(2025, time.February, 1))

	require.NoError(t, c.RequestEarlyWithdraw(at(2025, time.February, 10), "m-1"))
	assert.Equal(t, savings.StatusEarlyWithdrawRequested, c.Status)
	assert.ErrorIs(t, c.RequestEarlyWithdraw(at(2025, time.February, 10), "m-1"), generic.ErrContractNotEligible)

	quote, err := savings.ComputeEarlyExitRefund(c, at(2025, time.February, 10))
	require.NoError(t, err)
	assert.True(t, money(19500).Equal(quote.PayoutAmount), "principal minus penalties, no bonus")
	assert.True(t, quote.CommissionDue.IsZero())

	_, err = c.Recompute(at(2025, time.February, 10))
	require.NoError(t, err)
	assert.Equal(t, savings.StatusEarlyRefundPending, c.Status)
	require.NotNil(t, c.Refund)
	assert.Equal(t, generic.RefundEarly, c.Refund.Kind)
	assert.True(t, c.BonusAccrued.IsZero())

	// guarded while the refund case is open
	assert.ErrorIs(t, c.RequestEarlyWithdraw(at(2025, time.February, 11), "m-1"), generic.ErrContractNotEligible)
}

func TestEarlyExitRefund_TerminalContractNotEligible(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)
	_, err := c.Recompute(at(2025, time.January, 20))
	require.NoError(t, err)
	require.NoError(t, c.ConfirmRescission(at(2025, time.January, 21), "admin", ""))

	_, err = savings.ComputeEarlyExitRefund(c, at(2025, time.January, 22))

	var notEligible *generic.ContractNotEligibleError
	require.ErrorAs(t, err, &notEligible)
	assert.Equal(t, string(savings.StatusRescinded), notEligible.Status)
}

// =============================================================================
// ADMINISTRATIVE DECISIONS
// =============================================================================

func TestDefault_RequiresAdministratorDecision(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)
	_, err := c.Recompute(at(2025, time.January, 20))
	require.NoError(t, err)
	require.Equal(t, savings.StatusDefaultedAfterJ12, c.Status)

	// no automatic cascade
	_, err = c.Recompute(at(2025, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, savings.StatusDefaultedAfterJ12, c.Status)

	// reinstate refused until the defaulting obligation is paid
	assert.ErrorIs(t, c.Reinstate(at(2025, time.June, 1), "admin"), generic.ErrContractNotEligible)

	idx := 0
	_, err = c.RecordContribution(savings.ContributionInput{
		ObligationIndex: &idx,
		Contribution:    generic.Contribution{Amount: money(10000), At: at(2025, time.January, 25)},
	})
	require.NoError(t, err)
	require.NoError(t, c.Reinstate(at(2025, time.January, 25), "admin"))
	_, err = c.Recompute(at(2025, time.January, 25))
	require.NoError(t, err)
	assert.Equal(t, savings.StatusActive, c.Status)
}

func TestReopen_OnlyWithoutPayments(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)
	_, err := c.Recompute(at(2025, time.January, 20))
	require.NoError(t, err)
	require.NoError(t, c.ConfirmRescission(at(2025, time.January, 21), "admin", "member unreachable"))

	entries, err := c.Reopen(at(2025, time.February, 1), "admin")
	require.NoError(t, err)

	assert.Equal(t, savings.StatusDraft, c.Status)
	assert.Empty(t, c.Obligations)
	assert.True(t, c.PenaltiesTotal.IsZero())
	require.Len(t, entries, 1)
	assert.True(t, money(-500).Equal(entries[0].Amount))

	require.NoError(t, c.Activate(at(2025, time.February, 1), "agent"))
	assert.Equal(t, 2, c.Generation)
}

func TestReopen_RefusedWhenPaymentsExist(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)
	pay(t, c, 10000, at(2025, time.January, 1))
	_, err := c.Recompute(at(2025, time.February, 20))
	require.NoError(t, err)
	require.NoError(t, c.ConfirmRescission(at(2025, time.February, 21), "admin", ""))

	_, err = c.Reopen(at(2025, time.March, 1), "admin")
	assert.ErrorIs(t, err, generic.ErrContractNotEligible)
}

func TestAmendTerms_LockedOncePaid(t *testing.T) {
	c := activeContract(t, standardTerms(), 0)

	amended := standardTerms()
	amended.MonthsPlanned = 6
	require.NoError(t, c.AmendTerms(amended, at(2024, time.December, 20)))
	assert.Len(t, c.Obligations, 6)
	assert.Equal(t, date(2025, time.June, 1), c.EndAt)

	pay(t, c, 10000, at(2025, time.January, 1))
	amended.MonthsPlanned = 9
	err := c.AmendTerms(amended, at(2025, time.January, 2))
	assert.ErrorIs(t, err, generic.ErrScheduleLocked)
	assert.Len(t, c.Obligations, 6)
}

func TestAmendTerms_LockedAfterZeroRatePenalty(t *testing.T) {
	// GIVEN: a rate schedule charging 0% and an obligation in the penalty band
	rates := testRates(0)
	rates.PenaltyRatePercent = decimal.NewNullDecimal(decimal.Zero)
	c, err := savings.NewContract(standardTerms(), &rates, at(2024, time.December, 15))
	require.NoError(t, err)
	require.NoError(t, c.Activate(at(2024, time.December, 15), "agent"))

	_, err = c.Recompute(at(2025, time.January, 10))
	require.NoError(t, err)
	require.True(t, c.Obligations[0].PenaltyApplied)
	require.True(t, c.PenaltiesTotal.IsZero())

	// WHEN
	amended := standardTerms()
	amended.MonthsPlanned = 6
	err = c.AmendTerms(amended, at(2025, time.January, 10))

	// THEN
	assert.ErrorIs(t, err, generic.ErrScheduleLocked)
	assert.Len(t, c.Obligations, 12)
}

func TestStatuses_MetadataTable(t *testing.T) {
	table := savings.Statuses()
	require.Len(t, table, 10)

	terminal := 0
	for _, info := range table {
		assert.NotEmpty(t, info.Label)
		if info.Terminal {
			terminal++
		}
	}
	assert.Equal(t, 2, terminal)
	assert.True(t, savings.StatusClosed.IsTerminal())
	assert.False(t, savings.StatusDefaultedAfterJ12.IsTerminal())
}
