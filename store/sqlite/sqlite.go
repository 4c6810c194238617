/*
Package sqlite provides a SQLite-backed generic.DocumentStore.

PURPOSE:
  Persists savings contracts and loans as versioned JSON documents, plus the
  append-only journal of every money movement. In production the same
  patterns apply to PostgreSQL with minor SQL dialect differences.

KEY TABLES:
  documents: one row per (product, id); body is the aggregate JSON
  journal:   immutable money movements with unique idempotency keys

COMPARE-AND-SWAP:
  Save(doc, expectedVersion, entries) runs in one SQL transaction:
    expectedVersion == 0  INSERT; primary key conflict -> concurrent create
    expectedVersion  > 0  UPDATE ... WHERE version = expectedVersion;
                          0 rows affected -> ConcurrentModificationError
  then inserts every journal entry. A unique idempotency_key violation rolls
  back the document write as well.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the journal table
  - No DELETE statements on the journal table
  - Corrections are new entries (penalty reversal on reopen)

MIGRATION:
  Schema lives in migrations/*.sql, embedded and applied with golang-migrate
  on New().

USAGE:
  store, err := sqlite.New("./data/caisse.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := savings.NewService(store, rates, clock, publisher)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Fixed-width UTC layout so effective_at sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements generic.DocumentStore using SQLite.
type Store struct {
	db *sql.DB
}

var _ generic.DocumentStore = (*Store)(nil)

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m.Close() would close db as well; the store owns it.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (s *Store) Load(ctx context.Context, product generic.ProductKind, id generic.ContractID) (generic.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product, id, version, status, open, body, updated_at
		FROM documents
		WHERE product = ? AND id = ?
	`, product, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Document{}, generic.ErrContractNotFound
	}
	return doc, err
}

func (s *Store) Save(ctx context.Context, doc generic.Document, expectedVersion int64, entries []generic.Entry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	newVersion := expectedVersion + 1
	if expectedVersion == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (product, id, version, status, open, body, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, doc.Product, doc.ID, newVersion, doc.Status, doc.Open, string(doc.Body), formatTime(doc.UpdatedAt))
		if err != nil {
			if isUniqueConstraintError(err) {
				return 0, s.conflict(ctx, tx, doc, expectedVersion)
			}
			return 0, fmt.Errorf("failed to insert document: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET version = ?, status = ?, open = ?, body = ?, updated_at = ?
			WHERE product = ? AND id = ? AND version = ?
		`, newVersion, doc.Status, doc.Open, string(doc.Body), formatTime(doc.UpdatedAt), doc.Product, doc.ID, expectedVersion)
		if err != nil {
			return 0, fmt.Errorf("failed to update document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to update document: %w", err)
		}
		if n == 0 {
			return 0, s.conflict(ctx, tx, doc, expectedVersion)
		}
	}

	// Check for duplicate idempotency keys within the batch first
	keys := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		if keys[e.IdempotencyKey] {
			return 0, generic.ErrDuplicateIdempotencyKey
		}
		keys[e.IdempotencyKey] = true
	}
	for _, e := range entries {
		if err := appendEntry(ctx, tx, e); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return newVersion, nil
}

func (s *Store) conflict(ctx context.Context, tx *sql.Tx, doc generic.Document, expected int64) error {
	var actual int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE product = ? AND id = ?`, doc.Product, doc.ID).Scan(&actual)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read document version: %w", err)
	}
	return &generic.ConcurrentModificationError{
		ContractID:      doc.ID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

func (s *Store) List(ctx context.Context, product generic.ProductKind) ([]generic.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product, id, version, status, open, body, updated_at
		FROM documents
		WHERE product = ?
		ORDER BY id
	`, product)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []generic.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *Store) ListOpen(ctx context.Context, product generic.ProductKind) ([]generic.ContractID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM documents WHERE product = ? AND open ORDER BY id
	`, product)
	if err != nil {
		return nil, fmt.Errorf("failed to list open documents: %w", err)
	}
	defer rows.Close()

	var ids []generic.ContractID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, generic.ContractID(id))
	}
	return ids, rows.Err()
}

// Reset clears every table. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"journal", "documents"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (generic.Document, error) {
	var (
		doc               generic.Document
		product, id, body string
		updatedAt         string
	)
	if err := row.Scan(&product, &id, &doc.Version, &doc.Status, &doc.Open, &body, &updatedAt); err != nil {
		return generic.Document{}, err
	}
	doc.Product = generic.ProductKind(product)
	doc.ID = generic.ContractID(id)
	doc.Body = []byte(body)
	doc.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return doc, nil
}

// =============================================================================
// JOURNAL
// =============================================================================

func appendEntry(ctx context.Context, tx *sql.Tx, e generic.Entry) error {
	metadataJSON, _ := json.Marshal(e.Metadata)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO journal
		(id, product, contract_id, entry_type, amount, effective_at, obligation_ref,
		 reason, idempotency_key, recorded_by, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.Product,
		e.ContractID,
		e.Type,
		e.Amount.String(),
		formatTime(e.EffectiveAt),
		nullString(e.ObligationRef),
		nullString(e.Reason),
		nullString(e.IdempotencyKey),
		nullString(e.RecordedBy),
		string(metadataJSON),
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Entries returns the journal of one contract ordered by effective time.
func (s *Store) Entries(ctx context.Context, product generic.ProductKind, id generic.ContractID) ([]generic.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product, contract_id, entry_type, amount, effective_at, obligation_ref,
		       reason, idempotency_key, recorded_by, metadata_json
		FROM journal
		WHERE product = ? AND contract_id = ?
		ORDER BY effective_at ASC, seq ASC
	`, product, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []generic.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (generic.Entry, error) {
	var (
		e                                             generic.Entry
		product, contractID, entryType, amount, at    string
		obligationRef, reason, key, recordedBy, metaJ sql.NullString
	)
	if err := rows.Scan(&e.ID, &product, &contractID, &entryType, &amount, &at,
		&obligationRef, &reason, &key, &recordedBy, &metaJ); err != nil {
		return generic.Entry{}, fmt.Errorf("failed to scan journal entry: %w", err)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return generic.Entry{}, fmt.Errorf("journal entry %s has invalid amount %q: %w", e.ID, amount, err)
	}
	e.Product = generic.ProductKind(product)
	e.ContractID = generic.ContractID(contractID)
	e.Type = generic.EntryType(entryType)
	e.Amount = value
	e.EffectiveAt, _ = time.Parse(timeLayout, at)
	e.ObligationRef = obligationRef.String
	e.Reason = reason.String
	e.IdempotencyKey = key.String
	e.RecordedBy = recordedBy.String
	if metaJ.Valid && metaJ.String != "" && metaJ.String != "null" {
		_ = json.Unmarshal([]byte(metaJ.String), &e.Metadata)
	}
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
