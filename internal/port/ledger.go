package port

import (
	"context"
	"time"

	"github.com/rl1809/wip-inventory/internal/core/domain"
)

// Ledger is the authoritative store of inventory quantities. Every mutation
// writes its transaction row in the same atomic unit as the quantity change.
type Ledger interface {
	// Get returns the record for key, or domain.ErrNotFound
	Get(ctx context.Context, key domain.Key) (domain.InventoryRecord, error)

	// Search returns records in creation order; empty filters match everything
	Search(ctx context.Context, partID, operation string) ([]domain.InventoryRecord, error)

	// Transfer decrements src and increments (or creates) dst by quantity.
	// Returns domain.ErrInsufficientQuantity if src holds less than quantity
	Transfer(ctx context.Context, src, dst domain.Key, quantity int, tx domain.Transaction) error

	// Add increments (or creates) the record by rec.Quantity
	Add(ctx context.Context, rec domain.InventoryRecord, tx domain.Transaction) error

	// Remove decrements key by quantity, never below zero
	Remove(ctx context.Context, key domain.Key, quantity int, tx domain.Transaction) error
}

// TransactionLog reads the transaction rows written by a Ledger.
type TransactionLog interface {
	// TransactionsByPart returns the newest rows first
	TransactionsByPart(ctx context.Context, partID string, limit int) ([]domain.Transaction, error)

	// TransactionsByUser returns the newest rows first
	TransactionsByUser(ctx context.Context, user string, limit int) ([]domain.Transaction, error)

	// TransactionsInRange returns rows with from <= CreatedAt < to, oldest first
	TransactionsInRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error)
}
