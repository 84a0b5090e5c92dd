package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/port"
)

var (
	_ port.Ledger          = (*MySQLLedger)(nil)
	_ port.TransactionLog  = (*MySQLLedger)(nil)
	_ port.LocationCatalog = (*MySQLLedger)(nil)
)

const (
	recordColumns = `part_id, operation, location, quantity, item_type, batch_number, created_at, updated_at`
	txColumns     = `id, type, part_id, operation, from_location, to_location, quantity, user_id, notes, created_at`
)

// MySQLLedger stores records in the inventory table. Each mutation is one
// InnoDB transaction that locks the touched rows with SELECT ... FOR UPDATE.
type MySQLLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLLedger(db *sql.DB) *MySQLLedger {
	return &MySQLLedger{db: db, now: time.Now}
}

func (m *MySQLLedger) Get(ctx context.Context, key domain.Key) (domain.InventoryRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM inventory WHERE part_id = ? AND operation = ? AND location = ?`,
		key.PartID, key.Operation, key.Location,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("query inventory: %w", err)
	}
	return rec, nil
}

func (m *MySQLLedger) Search(ctx context.Context, partID, operation string) ([]domain.InventoryRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM inventory
		WHERE (? = '' OR part_id = ?) AND (? = '' OR operation = ?)
		ORDER BY id`,
		partID, partID, operation, operation,
	)
	if err != nil {
		return nil, fmt.Errorf("search inventory: %w", err)
	}
	defer rows.Close()

	result := make([]domain.InventoryRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (m *MySQLLedger) Transfer(ctx context.Context, src, dst domain.Key, quantity int, t domain.Transaction) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := m.now().UTC()
	itemType, batch, err := decrement(ctx, tx, src, quantity, now)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity), updated_at = VALUES(updated_at)`,
		dst.PartID, dst.Operation, dst.Location, quantity, itemType, batch, now, now,
	)
	if err != nil {
		return fmt.Errorf("increment destination: %w", classifyMySQL(err))
	}

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLLedger) Add(ctx context.Context, rec domain.InventoryRecord, t domain.Transaction) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := m.now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity), updated_at = VALUES(updated_at)`,
		rec.PartID, rec.Operation, rec.Location, rec.Quantity, rec.ItemType, rec.BatchNumber, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", classifyMySQL(err))
	}

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLLedger) Remove(ctx context.Context, key domain.Key, quantity int, t domain.Transaction) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, _, err := decrement(ctx, tx, key, quantity, m.now().UTC()); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLLedger) TransactionsByPart(ctx context.Context, partID string, limit int) ([]domain.Transaction, error) {
	return m.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM inventory_transactions
		WHERE part_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		partID, sqlLimit(limit))
}

func (m *MySQLLedger) TransactionsByUser(ctx context.Context, user string, limit int) ([]domain.Transaction, error) {
	return m.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM inventory_transactions
		WHERE user_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		user, sqlLimit(limit))
}

func (m *MySQLLedger) TransactionsInRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	return m.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM inventory_transactions
		WHERE created_at >= ? AND created_at < ? ORDER BY created_at, seq`,
		from.UTC(), to.UTC())
}

// Locations reads the locations table, so the same database can back the
// location directory.
func (m *MySQLLedger) Locations(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT code FROM locations ORDER BY sort_order, code`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (m *MySQLLedger) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0)
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.PartID, &t.Operation, &t.FromLocation, &t.ToLocation,
			&t.Quantity, &t.User, &t.Notes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// decrement lowers key by quantity only if it holds at least that much. It
// returns the row's item type and batch so a destination row can inherit them.
func decrement(ctx context.Context, tx *sql.Tx, key domain.Key, quantity int, now time.Time) (itemType, batch string, err error) {
	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity, item_type, batch_number FROM inventory
		WHERE part_id = ? AND operation = ? AND location = ? FOR UPDATE`,
		key.PartID, key.Operation, key.Location,
	).Scan(&current, &itemType, &batch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", domain.ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("lock %s: %w", key, err)
	}
	if current < quantity {
		return "", "", domain.ErrInsufficientQuantity
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - ?, updated_at = ?
		WHERE part_id = ? AND operation = ? AND location = ? AND quantity >= ?`,
		quantity, now, key.PartID, key.Operation, key.Location, quantity,
	)
	if err != nil {
		return "", "", fmt.Errorf("decrement %s: %w", key, classifyMySQL(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return "", "", domain.ErrInsufficientQuantity
	}
	return itemType, batch, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t domain.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type, t.PartID, t.Operation, t.FromLocation, t.ToLocation,
		t.Quantity, t.User, t.Notes, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", classifyMySQL(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := row.Scan(&rec.PartID, &rec.Operation, &rec.Location, &rec.Quantity,
		&rec.ItemType, &rec.BatchNumber, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// sqlLimit maps "no limit" to the largest LIMIT MySQL accepts for a signed bind.
func sqlLimit(limit int) int64 {
	if limit <= 0 {
		return 1<<63 - 1
	}
	return int64(limit)
}
