package savings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entraide/caisse-engine/generic"
)

// Repository maps savings contracts onto a generic.DocumentStore.
type Repository struct {
	store generic.DocumentStore
}

func NewRepository(store generic.DocumentStore) *Repository {
	return &Repository{store: store}
}

func (r *Repository) Get(ctx context.Context, id generic.ContractID) (*Contract, error) {
	doc, err := r.store.Load(ctx, generic.ProductSavings, id)
	if err != nil {
		return nil, fmt.Errorf("load savings contract %s: %w", id, err)
	}
	return decode(doc)
}

func (r *Repository) List(ctx context.Context) ([]*Contract, error) {
	docs, err := r.store.List(ctx, generic.ProductSavings)
	if err != nil {
		return nil, fmt.Errorf("list savings contracts: %w", err)
	}
	out := make([]*Contract, 0, len(docs))
	for _, doc := range docs {
		c, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// OpenIDs lists the contracts a lateness sweep must visit.
func (r *Repository) OpenIDs(ctx context.Context) ([]generic.ContractID, error) {
	return r.store.ListOpen(ctx, generic.ProductSavings)
}

// Save writes c against c.Version and updates it on success.
func (r *Repository) Save(ctx context.Context, c *Contract, entries []generic.Entry) error {
	doc, err := encode(c)
	if err != nil {
		return err
	}
	version, err := r.store.Save(ctx, doc, c.Version, entries)
	if err != nil {
		return fmt.Errorf("save savings contract %s: %w", c.ID, err)
	}
	c.Version = version
	return nil
}

func (r *Repository) Journal(ctx context.Context, id generic.ContractID) ([]generic.Entry, error) {
	return r.store.Entries(ctx, generic.ProductSavings, id)
}

func encode(c *Contract) (generic.Document, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return generic.Document{}, fmt.Errorf("encode savings contract %s: %w", c.ID, err)
	}
	return generic.Document{
		ID:        c.ID,
		Product:   generic.ProductSavings,
		Version:   c.Version,
		Status:    string(c.Status),
		Open:      !c.Status.IsTerminal(),
		Body:      body,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func decode(doc generic.Document) (*Contract, error) {
	var c Contract
	if err := json.Unmarshal(doc.Body, &c); err != nil {
		return nil, fmt.Errorf("decode savings contract %s: %w", doc.ID, err)
	}
	c.Version = doc.Version
	return &c, nil
}
