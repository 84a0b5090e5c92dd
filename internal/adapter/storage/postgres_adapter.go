package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/port"
)

var (
	_ port.Ledger          = (*PostgresLedger)(nil)
	_ port.TransactionLog  = (*PostgresLedger)(nil)
	_ port.LocationCatalog = (*PostgresLedger)(nil)
)

// PostgresLedger keeps the MySQL schema and row-locking scheme on a pgx pool.
type PostgresLedger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool, now: time.Now}
}

func (p *PostgresLedger) Get(ctx context.Context, key domain.Key) (domain.InventoryRecord, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM inventory WHERE part_id = $1 AND operation = $2 AND location = $3`,
		key.PartID, key.Operation, key.Location,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.InventoryRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("query inventory: %w", err)
	}
	return rec, nil
}

func (p *PostgresLedger) Search(ctx context.Context, partID, operation string) ([]domain.InventoryRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM inventory
		WHERE ($1 = '' OR part_id = $1) AND ($2 = '' OR operation = $2)
		ORDER BY id`,
		partID, operation,
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

func (p *PostgresLedger) Transfer(ctx context.Context, src, dst domain.Key, quantity int, t domain.Transaction) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := p.now().UTC()
	itemType, batch, err := pgDecrement(ctx, tx, src, quantity, now)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO inventory (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (part_id, operation, location)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		dst.PartID, dst.Operation, dst.Location, quantity, itemType, batch, now,
	)
	if err != nil {
		return fmt.Errorf("increment destination: %w", classifyPostgres(err))
	}

	if err := pgInsertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresLedger) Add(ctx context.Context, rec domain.InventoryRecord, t domain.Transaction) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO inventory (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (part_id, operation, location)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		rec.PartID, rec.Operation, rec.Location, rec.Quantity, rec.ItemType, rec.BatchNumber, p.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", classifyPostgres(err))
	}

	if err := pgInsertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresLedger) Remove(ctx context.Context, key domain.Key, quantity int, t domain.Transaction) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, _, err := pgDecrement(ctx, tx, key, quantity, p.now().UTC()); err != nil {
		return err
	}
	if err := pgInsertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresLedger) TransactionsByPart(ctx context.Context, partID string, limit int) ([]domain.Transaction, error) {
	return p.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM inventory_transactions
		WHERE part_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2`,
		partID, pgLimit(limit))
}

func (p *PostgresLedger) TransactionsByUser(ctx context.Context, user string, limit int) ([]domain.Transaction, error) {
	return p.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM inventory_transactions
		WHERE user_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2`,
		user, pgLimit(limit))
}

func (p *PostgresLedger) TransactionsInRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	return p.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM inventory_transactions
		WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, seq`,
		from, to)
}

func (p *PostgresLedger) Locations(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT code FROM locations ORDER BY sort_order, code`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan locations: %w", err)
	}
	return codes, nil
}

func (p *PostgresLedger) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0)
	for rows.Next() {
		var t domain.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &typ, &t.PartID, &t.Operation, &t.FromLocation, &t.ToLocation,
			&t.Quantity, &t.User, &t.Notes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = domain.TransactionType(typ)
		t.CreatedAt = t.CreatedAt.UTC()
		result = append(result, t)
	}
	return result, rows.Err()
}

func pgDecrement(ctx context.Context, tx pgx.Tx, key domain.Key, quantity int, now time.Time) (itemType, batch string, err error) {
	var current int
	err = tx.QueryRow(ctx, `
		SELECT quantity, item_type, batch_number FROM inventory
		WHERE part_id = $1 AND operation = $2 AND location = $3 FOR UPDATE`,
		key.PartID, key.Operation, key.Location,
	).Scan(&current, &itemType, &batch)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", domain.ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("lock %s: %w", key, err)
	}
	if current < quantity {
		return "", "", domain.ErrInsufficientQuantity
	}

	tag, err := tx.Exec(ctx, `
		UPDATE inventory
		SET quantity = quantity - $1, updated_at = $2
		WHERE part_id = $3 AND operation = $4 AND location = $5 AND quantity >= $1`,
		quantity, now, key.PartID, key.Operation, key.Location,
	)
	if err != nil {
		return "", "", fmt.Errorf("decrement %s: %w", key, classifyPostgres(err))
	}
	if tag.RowsAffected() == 0 {
		return "", "", domain.ErrInsufficientQuantity
	}
	return itemType, batch, nil
}

func pgInsertTransaction(ctx context.Context, tx pgx.Tx, t domain.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO inventory_transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, string(t.Type), t.PartID, t.Operation, t.FromLocation, t.ToLocation,
		t.Quantity, t.User, t.Notes, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", classifyPostgres(err))
	}
	return nil
}

func pgLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
