package credit

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/entraide/caisse-engine/generic"
)

// Service runs loan operations through lock -> load -> mutate -> refresh ->
// save(expectedVersion) -> publish, the same pipeline as savings.Service.
type Service struct {
	repo      *Repository
	rates     generic.RateSource
	clock     generic.Clock
	publisher generic.Publisher
	locks     *generic.KeyedLocker
}

func NewService(store generic.DocumentStore, rates generic.RateSource, clock generic.Clock, publisher generic.Publisher) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if publisher == nil {
		publisher = generic.NoopPublisher{}
	}
	return &Service{
		repo:      NewRepository(store),
		rates:     rates,
		clock:     clock,
		publisher: publisher,
		locks:     generic.NewKeyedLocker(),
	}
}

func (s *Service) Get(ctx context.Context, id generic.ContractID) (*LoanContract, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*LoanContract, error) {
	return s.repo.List(ctx)
}

func (s *Service) OpenIDs(ctx context.Context) ([]generic.ContractID, error) {
	return s.repo.OpenIDs(ctx)
}

func (s *Service) Journal(ctx context.Context, id generic.ContractID) ([]generic.Entry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Journal(ctx, id)
}

func (s *Service) QuoteEarlyExit(ctx context.Context, id generic.ContractID) (EarlyExitQuote, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return EarlyExitQuote{}, err
	}
	return ComputeEarlyExitRefund(l, s.clock.Now())
}

// Create records an approved loan with today's rate schedule pinned.
func (s *Service) Create(ctx context.Context, terms Terms, actor string) (*LoanContract, error) {
	now := s.clock.Now()
	if terms.ID == "" {
		terms.ID = generic.ContractID(uuid.NewString())
	}

	var pinned *generic.RateSchedule
	rs, err := s.rates.Resolve(PlanKind, generic.DateOf(now))
	switch {
	case err == nil:
		pinned = &rs
	case errors.Is(err, generic.ErrConfigurationMissing):
		log.WithFields(log.Fields{
			"contractID": terms.ID,
			"error":      err,
		}).Warn("Creating loan without rate schedule")
	default:
		return nil, err
	}

	l, err := NewLoan(terms, pinned, now)
	if err != nil {
		return nil, err
	}
	if actor == "" {
		actor = generic.ActorSystem
	}
	l.History = append(l.History, generic.Transition{To: string(StatusApproved), At: now, Reason: "loan approved", Actor: actor})

	unlock := s.locks.Lock(l.ID)
	defer unlock()
	if err := s.repo.Save(ctx, l, nil); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"contractID": l.ID,
		"borrower":   l.BorrowerRef,
		"principal":  l.PrincipalAmount.String(),
	}).Info("Loan created")
	return l, nil
}

func (s *Service) Activate(ctx context.Context, id generic.ContractID, actor string) (*LoanContract, error) {
	return s.mutate(ctx, id, false, func(l *LoanContract, now time.Time) ([]generic.Entry, error) {
		return nil, l.Activate(now, actor)
	})
}

func (s *Service) AmendTerms(ctx context.Context, id generic.ContractID, terms Terms) (*LoanContract, error) {
	return s.mutate(ctx, id, false, func(l *LoanContract, now time.Time) ([]generic.Entry, error) {
		return nil, l.AmendTerms(terms, now)
	})
}

func (s *Service) Reschedule(ctx context.Context, id generic.ContractID, first generic.TimePoint, actor string) (*LoanContract, error) {
	return s.mutate(ctx, id, false, func(l *LoanContract, now time.Time) ([]generic.Entry, error) {
		return nil, l.Reschedule(first, now, actor)
	})
}

func (s *Service) RecordPayment(ctx context.Context, id generic.ContractID, in PaymentInput) (*LoanContract, error) {
	return s.mutate(ctx, id, false, func(l *LoanContract, now time.Time) ([]generic.Entry, error) {
		if in.Payment.At.IsZero() {
			in.Payment.At = now
		}
		return l.RecordPayment(in)
	})
}

func (s *Service) SettleEarly(ctx context.Context, id generic.ContractID, amount decimal.Decimal, paymentRef, actor string) (*LoanContract, error) {
	return s.mutate(ctx, id, false, func(l *LoanContract, now time.Time) ([]generic.Entry, error) {
		return l.SettleEarly(amount, paymentRef, actor, now)
	})
}

// Refresh re-derives installment statuses; a missing rate schedule is
// returned after the flag has been saved.
func (s *Service) Refresh(ctx context.Context, id generic.ContractID) (*LoanContract, error) {
	return s.mutate(ctx, id, true, func(*LoanContract, time.Time) ([]generic.Entry, error) {
		return nil, nil
	})
}

func (s *Service) mutate(ctx context.Context, id generic.ContractID, strict bool, fn func(*LoanContract, time.Time) ([]generic.Entry, error)) (*LoanContract, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	historyBefore := len(l.History)
	before, err := encode(l)
	if err != nil {
		return nil, err
	}

	entries, err := fn(l, now)
	if err != nil {
		return nil, err
	}

	if l.Rates == nil {
		if rs, err := s.rates.Resolve(PlanKind, generic.DateOf(l.CreatedAt)); err == nil {
			l.Rates = &rs
		}
	}
	overdue, cfgErr := l.Refresh(now)
	switch {
	case cfgErr == nil:
		l.ConfigurationMissing = l.Rates == nil
	case errors.Is(cfgErr, generic.ErrConfigurationMissing):
		l.ConfigurationMissing = true
		log.WithFields(log.Fields{
			"contractID": l.ID,
			"error":      cfgErr,
		}).Warn("Loan overdue flags not evaluated")
	default:
		return nil, cfgErr
	}

	after, err := encode(l)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && bytes.Equal(before.Body, after.Body) {
		if strict && cfgErr != nil {
			return l, cfgErr
		}
		return l, nil
	}

	if err := s.repo.Save(ctx, l, entries); err != nil {
		return nil, err
	}
	s.publish(ctx, l, l.History[historyBefore:], overdue)
	if strict && cfgErr != nil {
		return l, cfgErr
	}
	return l, nil
}

func (s *Service) publish(ctx context.Context, l *LoanContract, transitions []generic.Transition, overdue []int) {
	var events []generic.Event
	for _, t := range transitions {
		if t.From == t.To {
			continue
		}
		log.WithFields(log.Fields{
			"contractID": l.ID,
			"from":       t.From,
			"to":         t.To,
			"reason":     t.Reason,
		}).Info("Loan status changed")
		attrs := map[string]string{"from": t.From, "to": t.To, "reason": t.Reason}
		events = append(events, generic.NewEvent(generic.EventStatusChanged, generic.ProductCredit, l.ID, t.At, attrs))
		switch Status(t.To) {
		case StatusActive:
			events = append(events, generic.NewEvent(generic.EventContractActivated, generic.ProductCredit, l.ID, t.At, attrs))
		case StatusClosed:
			attrs["closed_reason"] = string(l.ClosedReason)
			events = append(events, generic.NewEvent(generic.EventLoanClosed, generic.ProductCredit, l.ID, t.At, attrs))
		}
	}
	for _, n := range overdue {
		inst := l.Installments[n-1]
		events = append(events, generic.NewEvent(generic.EventInstallmentLate, generic.ProductCredit, l.ID, s.clock.Now(), map[string]string{
			"installment": strconv.Itoa(n),
			"remaining":   inst.RemainingAmount.String(),
			"due_date":    inst.DueDate.String(),
		}))
	}
	if len(overdue) > 0 {
		log.WithFields(log.Fields{
			"contractID":   l.ID,
			"installments": overdue,
		}).Info("Loan installments became overdue")
	}

	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.WithFields(log.Fields{
				"contractID": l.ID,
				"eventType":  ev.Type,
				"error":      err,
			}).Error("Failed to publish loan event")
		}
	}
}
