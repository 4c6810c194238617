package credit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entraide/caisse-engine/generic"
)

// Repository maps loans onto a generic.DocumentStore.
type Repository struct {
	store generic.DocumentStore
}

func NewRepository(store generic.DocumentStore) *Repository {
	return &Repository{store: store}
}

func (r *Repository) Get(ctx context.Context, id generic.ContractID) (*LoanContract, error) {
	doc, err := r.store.Load(ctx, generic.ProductCredit, id)
	if err != nil {
		return nil, fmt.Errorf("load loan %s: %w", id, err)
	}
	return decode(doc)
}

func (r *Repository) List(ctx context.Context) ([]*LoanContract, error) {
	docs, err := r.store.List(ctx, generic.ProductCredit)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	out := make([]*LoanContract, 0, len(docs))
	for _, doc := range docs {
		l, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *Repository) OpenIDs(ctx context.Context) ([]generic.ContractID, error) {
	return r.store.ListOpen(ctx, generic.ProductCredit)
}

func (r *Repository) Save(ctx context.Context, l *LoanContract, entries []generic.Entry) error {
	doc, err := encode(l)
	if err != nil {
		return err
	}
	version, err := r.store.Save(ctx, doc, l.Version, entries)
	if err != nil {
		return fmt.Errorf("save loan %s: %w", l.ID, err)
	}
	l.Version = version
	return nil
}

func (r *Repository) Journal(ctx context.Context, id generic.ContractID) ([]generic.Entry, error) {
	return r.store.Entries(ctx, generic.ProductCredit, id)
}

func encode(l *LoanContract) (generic.Document, error) {
	body, err := json.Marshal(l)
	if err != nil {
		return generic.Document{}, fmt.Errorf("encode loan %s: %w", l.ID, err)
	}
	return generic.Document{
		ID:        l.ID,
		Product:   generic.ProductCredit,
		Version:   l.Version,
		Status:    string(l.Status),
		Open:      !l.Status.IsTerminal(),
		Body:      body,
		UpdatedAt: l.UpdatedAt,
	}, nil
}

func decode(doc generic.Document) (*LoanContract, error) {
	var l LoanContract
	if err := json.Unmarshal(doc.Body, &l); err != nil {
		return nil, fmt.Errorf("decode loan %s: %w", doc.ID, err)
	}
	l.Version = doc.Version
	return &l, nil
}
