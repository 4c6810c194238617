package credit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entraide/caisse-engine/credit"
	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/generic/store"
)

type serviceFixture struct {
	svc       *credit.Service
	store     *store.Memory
	clock     *generic.FixedClock
	publisher *generic.RecordingPublisher
}

func newServiceFixture(t *testing.T, rates generic.RateSource) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:     store.NewMemory(),
		clock:     generic.NewFixedClock(at(2025, time.January, 5)),
		publisher: &generic.RecordingPublisher{},
	}
	f.svc = credit.NewService(f.store, rates, f.clock, f.publisher)
	return f
}

func (f *serviceFixture) createActive(t *testing.T, terms credit.Terms) *credit.LoanContract {
	t.Helper()
	ctx := context.Background()
	l, err := f.svc.Create(ctx, terms, "agent")
	require.NoError(t, err)
	l, err = f.svc.Activate(ctx, l.ID, "agent")
	require.NoError(t, err)
	return l
}

func TestService_CreateAndActivate(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, generic.NewRateBook(loanRates()))

	l, err := f.svc.Create(ctx, loanTerms(300000, "6", 3), "agent")
	require.NoError(t, err)
	assert.Equal(t, credit.StatusApproved, l.Status)
	require.NotNil(t, l.Rates)
	assert.Empty(t, l.Installments)

	l, err = f.svc.Activate(ctx, l.ID, "agent")
	require.NoError(t, err)
	assert.Equal(t, credit.StatusActive, l.Status)
	assert.Len(t, l.Installments, 3)
	assert.Equal(t, int64(2), l.Version)
	assert.Len(t, f.publisher.OfType(generic.EventContractActivated), 1)
}

func TestService_ScenarioC_RepayInFull(t *testing.T) {
	// GIVEN 300000 over 3 months at 0%
	ctx := context.Background()
	f := newServiceFixture(t, generic.NewRateBook(loanRates()))
	l := f.createActive(t, loanTerms(300000, "0", 3))

	// WHEN each installment is paid on its due date
	for i, month := range []time.Month{time.February, time.March, time.April} {
		f.clock.Set(at(2025, month, 1))
		var err error
		l, err = f.svc.RecordPayment(ctx, l.ID, paymentOn(i+1, 100000, time.Time{}))
		require.NoError(t, err)
	}

	// THEN the loan is closed as repaid and journaled three times
	assert.Equal(t, credit.StatusClosed, l.Status)
	assert.Equal(t, credit.ClosedRepaid, l.ClosedReason)
	entries, err := f.svc.Journal(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, money(300000).Equal(generic.SumEntries(entries, generic.EntryInstallmentPayment)))

	closed := f.publisher.OfType(generic.EventLoanClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "REPAID", closed[0].Attributes["closed_reason"])

	open, err := f.svc.OpenIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestService_RefreshPublishesOverdueOnce(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, generic.NewRateBook(loanRates()))
	l := f.createActive(t, loanTerms(300000, "0", 3))

	f.clock.Set(at(2025, time.February, 10))
	l, err := f.svc.Refresh(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, l.Installments[0].Overdue)
	version := l.Version

	l, err = f.svc.Refresh(ctx, l.ID)
	require.NoError(t, err)

	late := f.publisher.OfType(generic.EventInstallmentLate)
	require.Len(t, late, 1)
	assert.Equal(t, "1", late[0].Attributes["installment"])
	assert.Equal(t, version, l.Version)
}

func TestService_ScenarioE_SettleEarly(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, generic.NewRateBook(loanRates()))
	l := f.createActive(t, loanTerms(300000, "6", 3))

	f.clock.Set(at(2025, time.March, 18))
	quote, err := f.svc.QuoteEarlyExit(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, money(306000).Equal(quote.PayoutAmount))

	l, err = f.svc.SettleEarly(ctx, l.ID, quote.PayoutAmount, "pay-1", "cashier")
	require.NoError(t, err)

	assert.Equal(t, credit.StatusClosed, l.Status)
	assert.Equal(t, credit.ClosedSettledEarly, l.ClosedReason)
	require.NotNil(t, l.Settlement)
	entries, err := f.svc.Journal(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, money(306000).Equal(generic.SumEntries(entries, generic.EntrySettlement)))
}

func TestService_RejectedPaymentLeavesLoanUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, generic.NewRateBook(loanRates()))
	l := f.createActive(t, loanTerms(300000, "0", 3))

	_, err := f.svc.RecordPayment(ctx, l.ID, paymentOn(1, 200000, time.Time{}))
	require.ErrorIs(t, err, generic.ErrOverpaymentRejected)

	stored, err := f.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.Version, stored.Version)
	assert.False(t, stored.HasPayments())
}

func TestService_MissingConfiguration(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, generic.NewRateBook())
	l := f.createActive(t, loanTerms(300000, "0", 3))
	assert.True(t, l.ConfigurationMissing)

	f.clock.Set(at(2025, time.February, 10))
	l, err := f.svc.Refresh(ctx, l.ID)

	require.ErrorIs(t, err, generic.ErrConfigurationMissing)
	require.NotNil(t, l)
	assert.True(t, l.ConfigurationMissing)
	assert.False(t, l.Installments[0].Overdue)
}

func TestService_ConcurrentPayments(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, generic.NewRateBook(loanRates()))
	l := f.createActive(t, loanTerms(300000, "0", 3))
	f.clock.Set(at(2025, time.February, 1))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPayment(ctx, l.ID, payment(10000, time.Time{}))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.InstallmentPaid, stored.Installments[0].Status)
	assert.True(t, money(200000).Equal(stored.Outstanding()))
}

func TestService_NotFound(t *testing.T) {
	f := newServiceFixture(t, generic.NewRateBook(loanRates()))

	_, err := f.svc.Refresh(context.Background(), "missing")

	require.ErrorIs(t, err, generic.ErrContractNotFound)
}
