/*
Package generic provides the core of the contract & installment lifecycle engine.

PURPOSE:
  This package contains the product-agnostic pieces shared by the savings
  (Caisse Spéciale) and loan (Crédit Spéciale) engines: money arithmetic,
  calendar math, lateness classification, versioned association rates, the
  refund case lifecycle, the versioned document store contract and the
  domain events emitted on terminal transitions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal rounded to the currency scale (FCFA, no minor unit)
  - Contribution: one payment received against an obligation or installment
  - Entry: an immutable journal line recording a money movement
  - Transition: one status change in a contract's history

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. Deltas: aggregate totals are moved by adding deltas, never overwritten
  3. Auditability: every money movement is journaled with an idempotency key

SEE ALSO:
  - lateness.go: grace/penalty/default classification
  - rates.go: versioned rate schedules
  - store.go: versioned document persistence
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Currency is the single currency the association books in.
const Currency = "XAF"

// MoneyScale is the number of decimal places money is rounded to.
// The CFA franc has no minor unit.
const MoneyScale int32 = 0

var hundred = decimal.NewFromInt(100)

// Money builds a decimal amount from whole currency units.
func Money(units int64) decimal.Decimal {
	return decimal.NewFromInt(units)
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundMoney rounds to the currency scale (half away from zero).
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyScale) }

// Percent returns base × pct / 100 without rounding.
func Percent(base, pct decimal.Decimal) decimal.Decimal { return base.Mul(pct).Div(hundred) }

// FloorZero clamps negative amounts to zero.
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func MinMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func MaxMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string

// ProductKind tells the two engines apart in storage and events.
type ProductKind string

const (
	ProductSavings ProductKind = "savings"
	ProductCredit  ProductKind = "credit"
)

type SubscriberKind string

const (
	SubscriberMember SubscriberKind = "MEMBER"
	SubscriberGroup  SubscriberKind = "GROUP"
)

// SubscriberRef points at a member or a group in the admin application.
type SubscriberRef struct {
	Kind SubscriberKind `json:"kind"`
	ID   string         `json:"id"`
}

func (s SubscriberRef) String() string { return string(s.Kind) + ":" + s.ID }

// =============================================================================
// CONTRIBUTION - Money received against one obligation/installment
// =============================================================================

type Contribution struct {
	ID             string          `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	At             time.Time       `json:"at"`
	RecordedBy     string          `json:"recorded_by"`
	PaymentRef     string          `json:"payment_ref,omitempty"` // proof of payment (receipt, transfer id)
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// =============================================================================
// JOURNAL ENTRY - Immutable record of a money movement
// =============================================================================

type EntryType string

const (
	EntryContribution       EntryType = "contribution"
	EntryPenalty            EntryType = "penalty"
	EntryBonus              EntryType = "bonus"
	EntryRefund             EntryType = "refund"
	EntryInstallmentPayment EntryType = "installment_payment"
	EntrySettlement         EntryType = "settlement"
)

type Entry struct {
	ID             string            `json:"id"`
	ContractID     ContractID        `json:"contract_id"`
	Product        ProductKind       `json:"product"`
	Type           EntryType         `json:"type"`
	Amount         decimal.Decimal   `json:"amount"`
	EffectiveAt    time.Time         `json:"effective_at"`
	ObligationRef  string            `json:"obligation_ref,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	RecordedBy     string            `json:"recorded_by,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// =============================================================================
// TRANSITION - Status history line
// =============================================================================

type Transition struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
	Actor  string    `json:"actor,omitempty"`
}

// ActorSystem marks transitions computed by recompute rather than requested by a person.
const ActorSystem = "system"
