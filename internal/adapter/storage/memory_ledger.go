package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/port"
)

var (
	_ port.Ledger         = (*MemoryLedger)(nil)
	_ port.TransactionLog = (*MemoryLedger)(nil)
)

// MemoryLedger keeps records and transaction rows in process memory.
// A single mutex makes every two-row mutation atomic for readers.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[domain.Key]*domain.InventoryRecord
	order   []domain.Key
	txs     []domain.Transaction
	txIDs   map[string]struct{}
	now     func() time.Time
}

func NewMemoryLedger(seed ...domain.InventoryRecord) *MemoryLedger {
	l := &MemoryLedger{
		records: make(map[domain.Key]*domain.InventoryRecord),
		txIDs:   make(map[string]struct{}),
		now:     time.Now,
	}
	for _, rec := range seed {
		l.insertLocked(rec)
	}
	return l
}

func (l *MemoryLedger) Get(ctx context.Context, key domain.Key) (domain.InventoryRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[key]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	return *rec, nil
}

func (l *MemoryLedger) Search(ctx context.Context, partID, operation string) ([]domain.InventoryRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.InventoryRecord, 0)
	for _, key := range l.order {
		if partID != "" && key.PartID != partID {
			continue
		}
		if operation != "" && key.Operation != operation {
			continue
		}
		result = append(result, *l.records[key])
	}
	return result, nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, src, dst domain.Key, quantity int, tx domain.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkTxLocked(tx); err != nil {
		return err
	}
	source, ok := l.records[src]
	if !ok {
		return domain.ErrNotFound
	}
	if source.Quantity < quantity {
		return domain.ErrInsufficientQuantity
	}
	dest, destExists := l.records[dst]
	if destExists && !fits(dest.Quantity, quantity) {
		return domain.ErrQuantityOverflow
	}

	now := l.now()
	source.Quantity -= quantity
	source.UpdatedAt = now

	if destExists {
		dest.Quantity += quantity
		dest.UpdatedAt = now
	} else {
		l.insertLocked(domain.InventoryRecord{
			PartID:      dst.PartID,
			Operation:   dst.Operation,
			Location:    dst.Location,
			Quantity:    quantity,
			ItemType:    source.ItemType,
			BatchNumber: source.BatchNumber,
		})
	}

	l.appendLocked(tx)
	return nil
}

func (l *MemoryLedger) Add(ctx context.Context, rec domain.InventoryRecord, tx domain.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkTxLocked(tx); err != nil {
		return err
	}
	if !fits(0, rec.Quantity) {
		return domain.ErrQuantityOverflow
	}

	if existing, ok := l.records[rec.Key()]; ok {
		if !fits(existing.Quantity, rec.Quantity) {
			return domain.ErrQuantityOverflow
		}
		existing.Quantity += rec.Quantity
		existing.UpdatedAt = l.now()
	} else {
		l.insertLocked(rec)
	}

	l.appendLocked(tx)
	return nil
}

func (l *MemoryLedger) Remove(ctx context.Context, key domain.Key, quantity int, tx domain.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkTxLocked(tx); err != nil {
		return err
	}
	rec, ok := l.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Quantity < quantity {
		return domain.ErrInsufficientQuantity
	}

	rec.Quantity -= quantity
	rec.UpdatedAt = l.now()

	l.appendLocked(tx)
	return nil
}

func (l *MemoryLedger) TransactionsByPart(ctx context.Context, partID string, limit int) ([]domain.Transaction, error) {
	return l.newestFirst(limit, func(tx domain.Transaction) bool { return tx.PartID == partID }), nil
}

func (l *MemoryLedger) TransactionsByUser(ctx context.Context, user string, limit int) ([]domain.Transaction, error) {
	return l.newestFirst(limit, func(tx domain.Transaction) bool { return tx.User == user }), nil
}

func (l *MemoryLedger) TransactionsInRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Transaction, 0)
	for _, tx := range l.txs {
		if !tx.CreatedAt.Before(from) && tx.CreatedAt.Before(to) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (l *MemoryLedger) newestFirst(limit int, match func(domain.Transaction) bool) []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Transaction, 0)
	for i := len(l.txs) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		if match(l.txs[i]) {
			result = append(result, l.txs[i])
		}
	}
	return result
}

// insertLocked is called with l.mu held
func (l *MemoryLedger) insertLocked(rec domain.InventoryRecord) {
	now := l.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	key := rec.Key()
	l.records[key] = &rec
	l.order = append(l.order, key)
}

func (l *MemoryLedger) checkTxLocked(tx domain.Transaction) error {
	if _, ok := l.txIDs[tx.ID]; ok && tx.ID != "" {
		return domain.ErrDuplicateTransaction
	}
	return nil
}

func (l *MemoryLedger) appendLocked(tx domain.Transaction) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now()
	}
	if tx.ID != "" {
		l.txIDs[tx.ID] = struct{}{}
	}
	l.txs = append(l.txs, tx)
}

// fits reports whether current+delta stays within [0, MaxQuantity].
func fits(current, delta int) bool {
	return delta >= 0 && current <= domain.MaxQuantity-delta
}
