/*
ledger.go - Append-only contribution records

PURPOSE:
  Money received against an obligation or installment is kept as an
  append-only list of Contributions inside the contract aggregate. The paid
  amount of an obligation is never stored on its own: it is the sum of its
  contributions, so it cannot drift from the money actually recorded.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: contributions are never edited or removed
  2. IDEMPOTENT: the same idempotency key is accepted once per contract
  3. POSITIVE: a contribution of zero or less is refused

JOURNAL:
  Every money movement the engines compute (contribution, penalty, bonus,
  refund, installment payment, early settlement) is also written as an Entry
  to the store's journal in the same atomic save as the aggregate. The
  journal is read-only history for audit and reporting.

SEE ALSO:
  - savings/ledger.go: obligation-level rules (overpayment, surplus)
  - credit/ledger.go: installment allocation
  - store.go: Save() writes aggregate + journal atomically
*/
package generic

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRIBUTIONS - Append-only list on one obligation
// =============================================================================

type Contributions []Contribution

// Total is Σ contribution.amount.
func (cs Contributions) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Amount)
	}
	return total
}

func (cs Contributions) HasKey(key string) bool {
	if key == "" {
		return false
	}
	for _, c := range cs {
		if c.IdempotencyKey == key {
			return true
		}
	}
	return false
}

// Last returns the most recent contribution, if any.
func (cs Contributions) Last() (Contribution, bool) {
	if len(cs) == 0 {
		return Contribution{}, false
	}
	return cs[len(cs)-1], true
}

// ValidateContribution checks the rules every ledger shares before an append.
func ValidateContribution(c Contribution) error {
	if !c.Amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, c.Amount)
	}
	if c.At.IsZero() {
		return &InvalidTermsError{Field: "at", Reason: "is required"}
	}
	return nil
}

// =============================================================================
// JOURNAL - Read side of the journal written by Save()
// =============================================================================

type Journal interface {
	Entries(ctx context.Context, product ProductKind, id ContractID) ([]Entry, error)
}

// SumEntries totals the entries of the given types (all types when none given).
func SumEntries(entries []Entry, types ...EntryType) decimal.Decimal {
	want := make(map[EntryType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	total := decimal.Zero
	for _, e := range entries {
		if len(want) > 0 && !want[e.Type] {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total
}
