/*
store.go - Persistence interface for contract aggregates

PURPOSE:
  Defines the boundary between the engines and the persistent aggregate
  store. A contract (savings or loan) with its obligations, contributions and
  refund case is ONE document; it is loaded whole and saved whole.

OPTIMISTIC CONCURRENCY:
  Every document carries a Version. Save(doc, expectedVersion, entries)
  succeeds only if the stored version still equals expectedVersion, and bumps
  it by one. A mismatch is a ConcurrentModificationError: the caller reloads
  and recomputes. Combined with per-id locking (locks.go) this gives at most
  one in-flight mutation per contract id.

ATOMIC SAVES:
  The document write and the journal entries are one transaction. A failed
  save leaves the contract entirely unchanged - transitions are computed on
  a decoded copy and only become real when Save returns nil.

IDEMPOTENCY:
  Journal entries carry idempotency keys. A duplicate key aborts the whole
  save with ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite documents + journal tables
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - savings/repository.go, credit/repository.go: JSON codecs over this store
*/
package generic

import (
	"context"
	"time"
)

// Document is the stored form of one contract aggregate.
type Document struct {
	ID        ContractID
	Product   ProductKind
	Version   int64
	Status    string
	Open      bool // false once the contract reached a terminal status
	Body      []byte
	UpdatedAt time.Time
}

// DocumentStore persists versioned documents and their journal.
type DocumentStore interface {
	Journal

	// Load returns ErrContractNotFound when the document does not exist.
	Load(ctx context.Context, product ProductKind, id ContractID) (Document, error)

	// Save writes doc if the stored version equals expectedVersion (0 = create)
	// and appends entries atomically. Returns the new version.
	Save(ctx context.Context, doc Document, expectedVersion int64, entries []Entry) (int64, error)

	// List returns every document of a product, ordered by id.
	List(ctx context.Context, product ProductKind) ([]Document, error)

	// ListOpen returns the ids of non-terminal documents (lateness sweep input).
	ListOpen(ctx context.Context, product ProductKind) ([]ContractID, error)
}
