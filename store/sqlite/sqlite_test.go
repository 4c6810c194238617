package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entraide/caisse-engine/generic"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDoc(id string, open bool) generic.Document {
	return generic.Document{
		ID:        generic.ContractID(id),
		Product:   generic.ProductCredit,
		Status:    "ACTIVE",
		Open:      open,
		Body:      []byte(`{"id":"` + id + `"}`),
		UpdatedAt: time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC),
	}
}

func testEntry(key string, day int, amount int64) generic.Entry {
	return generic.Entry{
		ID:             key,
		ContractID:     "loan-1",
		Product:        generic.ProductCredit,
		Type:           generic.EntryInstallmentPayment,
		Amount:         decimal.NewFromInt(amount),
		EffectiveAt:    time.Date(2025, time.February, day, 10, 0, 0, 0, time.UTC),
		ObligationRef:  "loan-1/1",
		IdempotencyKey: key,
		RecordedBy:     "cashier",
		Metadata:       map[string]string{"payment_ref": "r-" + key},
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// GIVEN a created document
	v, err := s.Save(ctx, testDoc("loan-1", true), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// WHEN a second create and a stale update race it
	_, err = s.Save(ctx, testDoc("loan-1", true), 0, nil)
	var cm *generic.ConcurrentModificationError
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, int64(1), cm.ActualVersion)

	v, err = s.Save(ctx, testDoc("loan-1", true), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = s.Save(ctx, testDoc("loan-1", true), 1, nil)

	// THEN only the writer holding the current version wins
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, int64(1), cm.ExpectedVersion)
	assert.Equal(t, int64(2), cm.ActualVersion)
	assert.True(t, generic.IsRetryable(err))
}

func TestStore_LoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := testDoc("loan-1", true)
	_, err := s.Save(ctx, d, 0, nil)
	require.NoError(t, err)

	got, err := s.Load(ctx, generic.ProductCredit, "loan-1")

	require.NoError(t, err)
	assert.Equal(t, d.Body, got.Body)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.Open)
	assert.True(t, d.UpdatedAt.Equal(got.UpdatedAt))

	_, err = s.Load(ctx, generic.ProductSavings, "loan-1")
	assert.True(t, generic.IsNotFound(err))
}

func TestStore_DuplicateKeyRollsBackDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Save(ctx, testDoc("loan-1", true), 0, []generic.Entry{testEntry("k1", 1, 100)})
	require.NoError(t, err)

	changed := testDoc("loan-1", false)
	changed.Status = "CLOSED"
	_, err = s.Save(ctx, changed, 1, []generic.Entry{testEntry("k2", 2, 50), testEntry("k1", 2, 50)})

	require.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	got, err := s.Load(ctx, generic.ProductCredit, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "ACTIVE", got.Status)
	entries, err := s.Entries(ctx, generic.ProductCredit, "loan-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_JournalOrderedByEffectiveTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Save(ctx, testDoc("loan-1", true), 0, []generic.Entry{testEntry("late", 20, 300)})
	require.NoError(t, err)
	_, err = s.Save(ctx, testDoc("loan-1", true), 1, []generic.Entry{testEntry("early", 3, 100), testEntry("mid", 10, 200)})
	require.NoError(t, err)

	entries, err := s.Entries(ctx, generic.ProductCredit, "loan-1")

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "early", entries[0].IdempotencyKey)
	assert.Equal(t, "mid", entries[1].IdempotencyKey)
	assert.Equal(t, "late", entries[2].IdempotencyKey)
	assert.True(t, decimal.NewFromInt(100).Equal(entries[0].Amount))
	assert.Equal(t, generic.EntryInstallmentPayment, entries[0].Type)
	assert.Equal(t, "loan-1/1", entries[0].ObligationRef)
	assert.Equal(t, "r-early", entries[0].Metadata["payment_ref"])
	assert.Equal(t, 3, entries[0].EffectiveAt.Day())
}

func TestStore_ListAndListOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, d := range []generic.Document{testDoc("b", true), testDoc("a", false), testDoc("c", true)} {
		_, err := s.Save(ctx, d, 0, nil)
		require.NoError(t, err)
	}

	docs, err := s.List(ctx, generic.ProductCredit)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, generic.ContractID("a"), docs[0].ID)

	open, err := s.ListOpen(ctx, generic.ProductCredit)
	require.NoError(t, err)
	assert.Equal(t, []generic.ContractID{"b", "c"}, open)

	require.NoError(t, s.Reset(ctx))
	docs, err = s.List(ctx, generic.ProductCredit)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStore_ReopenFileAppliesMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "caisse.db")

	s, err := New(path)
	require.NoError(t, err)
	_, err = s.Save(ctx, testDoc("loan-1", true), 0, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, generic.ProductCredit, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}
