/*
service.go - Savings contract operations

PURPOSE:
  Orchestrates every savings operation the same way:

    lock(id) ─▶ load ─▶ mutate copy ─▶ recompute ─▶ save(expectedVersion) ─▶ publish
                                                        │
                                    ConcurrentModificationError: nothing written

  The per-id lock serializes work inside this process; the version check in
  the store catches writers from other processes. Distinct ids never wait on
  each other.

RATES:
  Rates are resolved once at creation (RateSource.Resolve(plan, creation
  day)) and pinned into the contract. A contract created while nothing was in
  force is flagged ConfigurationMissing; recompute retries the resolution
  against the creation day, so a later-supplied schedule back-dated to that
  day unblocks it without breaking the pin-at-creation rule.

EVENTS:
  Published only after a successful save. Delivery errors are logged, never
  returned: the contract change is already committed.
*/
package savings

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/entraide/caisse-engine/generic"
)

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

func (s *Service) Clock() generic.Clock { return s.clock }

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Get(ctx context.Context, id generic.ContractID) (*Contract, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Contract, error) {
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

// QuoteEarlyExit is read-only; nothing is saved.
func (s *Service) QuoteEarlyExit(ctx context.Context, id generic.ContractID) (EarlyExitQuote, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return EarlyExitQuote{}, err
	}
	return ComputeEarlyExitRefund(c, s.clock.Now())
}

// FinalRefund is paidPrincipal + bonus - penalties as the contract stands.
func (s *Service) FinalRefund(ctx context.Context, id generic.ContractID) (decimal.Decimal, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return ComputeFinalRefund(c), nil
}

// =============================================================================
// COMMANDS
// =============================================================================

// Create captures terms in DRAFT with rates pinned at today's version.
func (s *Service) Create(ctx context.Context, terms Terms, actor string) (*Contract, error) {
	now := s.clock.Now()
	if terms.ID == "" {
		terms.ID = generic.ContractID(uuid.NewString())
	}

	var pinned *generic.RateSchedule
	rs, err := s.rates.Resolve(string(terms.Plan), generic.DateOf(now))
	switch {
	case err == nil:
		pinned = &rs
	case errors.Is(err, generic.ErrConfigurationMissing):
		log.WithFields(log.Fields{
			"contractID": terms.ID,
			"plan":       terms.Plan,
			"error":      err,
		}).Warn("Creating savings contract without rate schedule")
	default:
		return nil, err
	}

	c, err := NewContract(terms, pinned, now)
	if err != nil {
		return nil, err
	}
	c.History = append(c.History, generic.Transition{To: string(StatusDraft), At: now, Reason: "terms captured", Actor: actorOr(actor)})

	unlock := s.locks.Lock(c.ID)
	defer unlock()
	if err := s.repo.Save(ctx, c, nil); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"contractID": c.ID,
		"plan":       c.Plan,
		"subscriber": c.Subscriber.String(),
	}).Info("Savings contract created")
	return c, nil
}

func (s *Service) Activate(ctx context.Context, id generic.ContractID, actor string) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		return nil, c.Activate(now, actor)
	})
}

func (s *Service) AmendTerms(ctx context.Context, id generic.ContractID, terms Terms) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		return nil, c.AmendTerms(terms, now)
	})
}

func (s *Service) RecordContribution(ctx context.Context, id generic.ContractID, in ContributionInput) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		if in.Contribution.At.IsZero() {
			in.Contribution.At = now
		}
		return c.RecordContribution(in)
	})
}

// Recompute re-derives status at now. A missing rate configuration is
// returned after the flag has been saved.
func (s *Service) Recompute(ctx context.Context, id generic.ContractID) (*Contract, error) {
	return s.mutate(ctx, id, true, func(*Contract, time.Time) ([]generic.Entry, error) {
		return nil, nil
	})
}

func (s *Service) RequestEarlyWithdraw(ctx context.Context, id generic.ContractID, actor string) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		return nil, c.RequestEarlyWithdraw(now, actor)
	})
}

func (s *Service) ApproveRefund(ctx context.Context, id generic.ContractID, approver string) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		return nil, c.ApproveRefund(now, approver)
	})
}

func (s *Service) PayRefund(ctx context.Context, id generic.ContractID, paymentRef, actor string) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		return c.PayRefund(now, paymentRef, actor)
	})
}

func (s *Service) ConfirmRescission(ctx context.Context, id generic.ContractID, actor, reason string) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		return nil, c.ConfirmRescission(now, actor, reason)
	})
}

func (s *Service) Reinstate(ctx context.Context, id generic.ContractID, actor string) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		return nil, c.Reinstate(now, actor)
	})
}

func (s *Service) Reopen(ctx context.Context, id generic.ContractID, actor string) (*Contract, error) {
	return s.mutate(ctx, id, false, func(c *Contract, now time.Time) ([]generic.Entry, error) {
		return c.Reopen(now, actor)
	})
}

// =============================================================================
// MUTATION PIPELINE
// =============================================================================

func (s *Service) mutate(ctx context.Context, id generic.ContractID, strict bool, fn func(*Contract, time.Time) ([]generic.Entry, error)) (*Contract, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	historyBefore := len(c.History)
	before, err := encode(c)
	if err != nil {
		return nil, err
	}

	entries, err := fn(c, now)
	if err != nil {
		return nil, err
	}

	s.pinRates(c)
	derived, cfgErr := c.Recompute(now)
	switch {
	case cfgErr == nil:
		c.ConfigurationMissing = c.Rates == nil
		entries = append(entries, derived...)
	case errors.Is(cfgErr, generic.ErrConfigurationMissing):
		c.ConfigurationMissing = true
		log.WithFields(log.Fields{
			"contractID": c.ID,
			"status":     c.Status,
			"error":      cfgErr,
		}).Warn("Savings contract left at last-known status")
	default:
		return nil, cfgErr
	}

	after, err := encode(c)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && bytes.Equal(before.Body, after.Body) {
		if strict && cfgErr != nil {
			return c, cfgErr
		}
		return c, nil
	}

	if err := s.repo.Save(ctx, c, entries); err != nil {
		return nil, err
	}

	s.publish(ctx, c, c.History[historyBefore:], entries)
	if strict && cfgErr != nil {
		return c, cfgErr
	}
	return c, nil
}

func (s *Service) pinRates(c *Contract) {
	if c.Rates != nil {
		return
	}
	rs, err := s.rates.Resolve(string(c.Plan), generic.DateOf(c.CreatedAt))
	if err != nil {
		return
	}
	c.Rates = &rs
	log.WithFields(log.Fields{
		"contractID":  c.ID,
		"rateVersion": rs.Version,
	}).Info("Pinned rate schedule to savings contract")
}

func (s *Service) publish(ctx context.Context, c *Contract, transitions []generic.Transition, entries []generic.Entry) {
	var events []generic.Event
	for _, t := range transitions {
		log.WithFields(log.Fields{
			"contractID": c.ID,
			"from":       t.From,
			"to":         t.To,
			"reason":     t.Reason,
		}).Info("Savings contract status changed")

		attrs := map[string]string{"from": t.From, "to": t.To, "reason": t.Reason}
		events = append(events, generic.NewEvent(generic.EventStatusChanged, generic.ProductSavings, c.ID, t.At, attrs))
		if et, ok := milestoneEvents[Status(t.To)]; ok && (Status(t.To) != StatusActive || Status(t.From) == StatusDraft) {
			events = append(events, generic.NewEvent(et, generic.ProductSavings, c.ID, t.At, attrs))
		}
	}
	for _, e := range entries {
		switch {
		case e.Type == generic.EntryPenalty && e.Amount.IsPositive():
			events = append(events, generic.NewEvent(generic.EventPenaltyApplied, generic.ProductSavings, c.ID, e.EffectiveAt,
				map[string]string{"obligation": e.ObligationRef, "amount": e.Amount.String()}))
		case e.Type == generic.EntryRefund:
			events = append(events, generic.NewEvent(generic.EventRefundPaid, generic.ProductSavings, c.ID, e.EffectiveAt,
				map[string]string{"amount": e.Amount.Neg().String(), "payment_ref": e.Metadata["payment_ref"]}))
		}
	}

	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.WithFields(log.Fields{
				"contractID": c.ID,
				"eventType":  ev.Type,
				"error":      err,
			}).Error("Failed to publish savings event")
		}
	}
}

// milestoneEvents are published on top of the generic status change.
var milestoneEvents = map[Status]generic.EventType{
	StatusActive:             generic.EventContractActivated,
	StatusDefaultedAfterJ12:  generic.EventContractDefaulted,
	StatusRescinded:          generic.EventContractRescinded,
	StatusFinalRefundPending: generic.EventRefundOpened,
	StatusEarlyRefundPending: generic.EventRefundOpened,
	StatusClosed:             generic.EventContractClosed,
}

func actorOr(actor string) string {
	if actor == "" {
		return generic.ActorSystem
	}
	return actor
}
