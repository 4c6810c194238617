// Package savings implements the Caisse Spéciale savings contract engine.
// It uses the generic core for money, calendar, lateness and refund rules and
// adds the savings schedule, contribution ledger and contract state machine.
package savings

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

// =============================================================================
// PLAN KINDS
// =============================================================================

type PlanKind string

const (
	PlanStandard           PlanKind = "STANDARD"
	PlanDaily              PlanKind = "DAILY"
	PlanFreeform           PlanKind = "FREEFORM"
	PlanStandardCharitable PlanKind = "STANDARD_CHARITABLE"
	PlanDailyCharitable    PlanKind = "DAILY_CHARITABLE"
	PlanFreeformCharitable PlanKind = "FREEFORM_CHARITABLE"
)

var planBases = map[PlanKind]PlanKind{
	PlanStandard:           PlanStandard,
	PlanDaily:              PlanDaily,
	PlanFreeform:           PlanFreeform,
	PlanStandardCharitable: PlanStandard,
	PlanDailyCharitable:    PlanDaily,
	PlanFreeformCharitable: PlanFreeform,
}

func (p PlanKind) Valid() bool {
	_, ok := planBases[p]
	return ok
}

// Base strips the charitable variant.
func (p PlanKind) Base() PlanKind { return planBases[p] }

// IsCharitable plans waive the rate bonus.
func (p PlanKind) IsCharitable() bool { return p.Valid() && p != p.Base() }

// AllowsOverpayment is false for STANDARD: the monthly amount is fixed.
// DAILY and FREEFORM take many small contributions and keep any surplus.
func (p PlanKind) AllowsOverpayment() bool { return p.Base() != PlanStandard }

// =============================================================================
// CONTRACT STATUS
// =============================================================================

type Status string

const (
	StatusDraft                  Status = "DRAFT"
	StatusActive                 Status = "ACTIVE"
	StatusLateNoPenalty          Status = "LATE_NO_PENALTY"
	StatusLateWithPenalty        Status = "LATE_WITH_PENALTY"
	StatusDefaultedAfterJ12      Status = "DEFAULTED_AFTER_J12"
	StatusEarlyWithdrawRequested Status = "EARLY_WITHDRAW_REQUESTED"
	StatusFinalRefundPending     Status = "FINAL_REFUND_PENDING"
	StatusEarlyRefundPending     Status = "EARLY_REFUND_PENDING"
	StatusRescinded              Status = "RESCINDED"
	StatusClosed                 Status = "CLOSED"
)

// StatusInfo is the presentation metadata of a status. Admin screens read it
// from here instead of keeping their own label maps.
type StatusInfo struct {
	Status      Status `json:"status"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Terminal    bool   `json:"terminal"`
	Severity    string `json:"severity"` // info | warning | danger | success
}

var statusTable = []StatusInfo{
	{StatusDraft, "Brouillon", "Subscription terms captured, schedule not generated", false, "info"},
	{StatusActive, "Actif", "Up to date with the contribution schedule", false, "success"},
	{StatusLateNoPenalty, "En retard (grâce)", "Current obligation 1 to 3 days late, no penalty", false, "warning"},
	{StatusLateWithPenalty, "En retard (pénalité)", "Current obligation 4 to 12 days late, penalty charged", false, "warning"},
	{StatusDefaultedAfterJ12, "Défaut après J+12", "Current obligation unpaid past day 12, awaiting administrator decision", false, "danger"},
	{StatusEarlyWithdrawRequested, "Retrait anticipé demandé", "Subscriber asked to leave before term", false, "warning"},
	{StatusFinalRefundPending, "Remboursement final en attente", "All obligations paid, final refund to be paid out", false, "info"},
	{StatusEarlyRefundPending, "Remboursement anticipé en attente", "Early exit refund to be paid out", false, "info"},
	{StatusRescinded, "Résilié", "Contract rescinded after default", true, "danger"},
	{StatusClosed, "Clôturé", "Refund paid, contract closed", true, "success"},
}

// Statuses returns the metadata table in lifecycle order.
func Statuses() []StatusInfo {
	return append([]StatusInfo(nil), statusTable...)
}

func (s Status) Info() StatusInfo {
	for _, info := range statusTable {
		if info.Status == s {
			return info
		}
	}
	return StatusInfo{Status: s, Label: string(s), Severity: "info"}
}

func (s Status) IsTerminal() bool { return s.Info().Terminal }

// latenessRank orders the statuses recompute may move between.
// A lower rank is never reached while the obligation that raised the rank is unpaid.
func (s Status) latenessRank() int {
	switch s {
	case StatusActive:
		return 0
	case StatusLateNoPenalty:
		return 1
	case StatusLateWithPenalty:
		return 2
	case StatusDefaultedAfterJ12:
		return 3
	default:
		return -1
	}
}

// acceptsContributions lists the statuses a cashier may record money in.
func (s Status) acceptsContributions() bool {
	return s.latenessRank() >= 0
}

// =============================================================================
// DUE OBLIGATION - One month of the schedule
// =============================================================================

type ObligationStatus string

const (
	ObligationDue           ObligationStatus = "DUE"
	ObligationPartiallyPaid ObligationStatus = "PARTIALLY_PAID"
	ObligationPaid          ObligationStatus = "PAID"
)

type Obligation struct {
	PeriodIndex    int                   `json:"period_index"`
	DueAt          generic.TimePoint     `json:"due_at"`
	Period         generic.Period        `json:"period"`
	AmountDue      decimal.Decimal       `json:"amount_due"`
	Status         ObligationStatus      `json:"status"`
	Contributions  generic.Contributions `json:"contributions"`
	PenaltyApplied bool                  `json:"penalty_applied"`
	PenaltyAmount  decimal.Decimal       `json:"penalty_amount"`
}

// AmountPaid is always Σ contribution.amount.
func (o *Obligation) AmountPaid() decimal.Decimal { return o.Contributions.Total() }

func (o *Obligation) Remaining() decimal.Decimal {
	return generic.FloorZero(o.AmountDue.Sub(o.AmountPaid()))
}

// Surplus is what DAILY/FREEFORM subscribers paid beyond the monthly target.
func (o *Obligation) Surplus() decimal.Decimal {
	return generic.FloorZero(o.AmountPaid().Sub(o.AmountDue))
}

// principalPaid counts toward paidPrincipalTotal: never more than the amount due.
func (o *Obligation) principalPaid() decimal.Decimal {
	return generic.MinMoney(o.AmountPaid(), o.AmountDue)
}

func (o *Obligation) refreshStatus() {
	paid := o.AmountPaid()
	switch {
	case paid.GreaterThanOrEqual(o.AmountDue):
		o.Status = ObligationPaid
	case paid.IsPositive():
		o.Status = ObligationPartiallyPaid
	default:
		o.Status = ObligationDue
	}
}

func (o *Obligation) IsPaid() bool { return o.Status == ObligationPaid }

// =============================================================================
// SAVINGS CONTRACT - The aggregate
// =============================================================================

type Contract struct {
	ID             generic.ContractID    `json:"id"`
	Subscriber     generic.SubscriberRef `json:"subscriber"`
	Plan           PlanKind              `json:"plan"`
	PeriodicAmount decimal.Decimal       `json:"periodic_amount"`
	MonthsPlanned  int                   `json:"months_planned"`
	FirstDueAt     generic.TimePoint     `json:"first_due_at"`
	NextDueAt      generic.TimePoint     `json:"next_due_at"`
	StartAt        generic.TimePoint     `json:"start_at"`
	EndAt          generic.TimePoint     `json:"end_at"`

	Status             Status          `json:"status"`
	PaidPrincipalTotal decimal.Decimal `json:"paid_principal_total"`
	BonusAccrued       decimal.Decimal `json:"bonus_accrued"`
	PenaltiesTotal     decimal.Decimal `json:"penalties_total"`

	// Generation counts schedule generations; journal keys carry it so a
	// reopened contract does not collide with its first life.
	Generation  int                 `json:"generation"`
	Obligations []Obligation        `json:"obligations"`
	Refund      *generic.RefundCase `json:"refund,omitempty"`

	// Rates are pinned at creation and never re-resolved once set.
	Rates                *generic.RateSchedule `json:"rates,omitempty"`
	ConfigurationMissing bool                  `json:"configuration_missing"`

	// LateObligation is the obligation that raised the current late status.
	LateObligation *int `json:"late_obligation,omitempty"`

	History   []generic.Transition `json:"history"`
	Version   int64                `json:"version"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Terms are the subscription terms captured at creation or amendment.
type Terms struct {
	ID             generic.ContractID
	Subscriber     generic.SubscriberRef
	Plan           PlanKind
	PeriodicAmount decimal.Decimal
	MonthsPlanned  int
	FirstDueAt     generic.TimePoint
}

func (t Terms) Validate() error {
	if !t.Plan.Valid() {
		return &generic.InvalidTermsError{Field: "plan", Reason: "unknown plan kind " + string(t.Plan)}
	}
	if err := generic.ValidatePositiveAmount("periodic_amount", t.PeriodicAmount); err != nil {
		return err
	}
	if err := generic.ValidateTermCount("months_planned", t.MonthsPlanned, generic.MaxSavingsMonths); err != nil {
		return err
	}
	if t.FirstDueAt.IsZero() {
		return &generic.InvalidTermsError{Field: "first_due_at", Reason: "is required"}
	}
	if t.Subscriber.ID == "" {
		return &generic.InvalidTermsError{Field: "subscriber", Reason: "is required"}
	}
	return nil
}

// NewContract captures terms in DRAFT. rates may be nil when no schedule is
// in force; the contract is then flagged until an administrator supplies one.
func NewContract(terms Terms, rates *generic.RateSchedule, now time.Time) (*Contract, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	c := &Contract{
		ID:                   terms.ID,
		Status:               StatusDraft,
		PaidPrincipalTotal:   decimal.Zero,
		BonusAccrued:         decimal.Zero,
		PenaltiesTotal:       decimal.Zero,
		Rates:                rates,
		ConfigurationMissing: rates == nil,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	c.applyTerms(terms)
	return c, nil
}

func (c *Contract) applyTerms(t Terms) {
	c.Subscriber = t.Subscriber
	c.Plan = t.Plan
	c.PeriodicAmount = generic.RoundMoney(t.PeriodicAmount)
	c.MonthsPlanned = t.MonthsPlanned
	c.FirstDueAt = t.FirstDueAt
	c.StartAt = t.FirstDueAt
	c.EndAt = t.FirstDueAt.AddMonths(t.MonthsPlanned - 1)
	c.NextDueAt = t.FirstDueAt
}

// PlannedTotal is periodicAmount × monthsPlanned, the ceiling of paidPrincipalTotal.
func (c *Contract) PlannedTotal() decimal.Decimal {
	return c.PeriodicAmount.Mul(decimal.NewFromInt(int64(c.MonthsPlanned)))
}

// ObligationRef names an obligation in errors and journal entries.
func (c *Contract) ObligationRef(index int) string {
	return string(c.ID) + "#" + strconv.Itoa(index)
}

// CurrentObligation is the earliest obligation not yet PAID, -1 when all are paid.
func (c *Contract) CurrentObligation() int {
	for i := range c.Obligations {
		if !c.Obligations[i].IsPaid() {
			return i
		}
	}
	return -1
}

func (c *Contract) AllPaid() bool {
	return len(c.Obligations) > 0 && c.CurrentObligation() == -1
}

// HasPayments is true once any obligation received money.
func (c *Contract) HasPayments() bool {
	for i := range c.Obligations {
		if len(c.Obligations[i].Contributions) > 0 {
			return true
		}
	}
	return false
}

func (c *Contract) refreshNextDue() {
	if i := c.CurrentObligation(); i >= 0 {
		c.NextDueAt = c.Obligations[i].DueAt
		return
	}
	if len(c.Obligations) > 0 {
		c.NextDueAt = generic.TimePoint{}
	}
}

func (c *Contract) transition(to Status, at time.Time, reason, actor string) {
	if actor == "" {
		actor = generic.ActorSystem
	}
	c.History = append(c.History, generic.Transition{
		From:   string(c.Status),
		To:     string(to),
		At:     at,
		Reason: reason,
		Actor:  actor,
	})
	c.Status = to
	c.UpdatedAt = at
}

func (c *Contract) notEligible(op, reason string) error {
	return &generic.ContractNotEligibleError{
		ContractID: c.ID,
		Operation:  op,
		Status:     string(c.Status),
		Reason:     reason,
	}
}
