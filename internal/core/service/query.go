package service

import (
	"context"
	"fmt"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/port"
)

// InventoryQuery is the read side of the ledger.
type InventoryQuery struct {
	ledger port.Ledger
}

func NewInventoryQuery(ledger port.Ledger) *InventoryQuery {
	return &InventoryQuery{ledger: ledger}
}

// Search returns records in creation order. An empty partID or operation matches all.
func (q *InventoryQuery) Search(ctx context.Context, partID, operation string) ([]domain.InventoryRecord, error) {
	records, err := q.ledger.Search(ctx, partID, operation)
	if err != nil {
		return nil, fmt.Errorf("search inventory: %w", err)
	}
	return records, nil
}

// Find returns the record at key, or domain.ErrNotFound.
func (q *InventoryQuery) Find(ctx context.Context, key domain.Key) (domain.InventoryRecord, error) {
	return q.ledger.Get(ctx, key)
}
