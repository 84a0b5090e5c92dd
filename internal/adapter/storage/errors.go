package storage

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rl1809/wip-inventory/internal/core/domain"
)

// MySQL server error numbers.
const (
	mysqlBadNull         = 1048
	mysqlDupEntry        = 1062
	mysqlOutOfRange      = 1264
	mysqlTruncatedValue  = 1292
	mysqlDataTooLong     = 1406
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
	mysqlValueOutOfRange = 1690
	mysqlCheckConstraint = 3819
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation    = "23505"
	pgNumericOutOfRange  = "22003"
	pgStringTooLong      = "22001"
	pgIntegrityViolation = "23"
)

// classifyMySQL tags err with the domain sentinel matching its server error
// number, so callers can tell permanent failures from transient ones.
func classifyMySQL(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlDupEntry:
		return fmt.Errorf("%w: %w", domain.ErrDuplicateTransaction, err)
	case mysqlOutOfRange, mysqlValueOutOfRange:
		return fmt.Errorf("%w: %w", domain.ErrQuantityOverflow, err)
	case mysqlBadNull, mysqlDataTooLong, mysqlNoReferencedRow, mysqlRowIsReferenced,
		mysqlCheckConstraint, mysqlTruncatedValue:
		return fmt.Errorf("%w: %w", domain.ErrConstraintViolation, err)
	}
	return err
}

// classifyPostgres is classifyMySQL for SQLSTATE codes.
func classifyPostgres(err error) error {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return err
	}
	switch {
	case pe.Code == pgUniqueViolation:
		return fmt.Errorf("%w: %w", domain.ErrDuplicateTransaction, err)
	case pe.Code == pgNumericOutOfRange:
		return fmt.Errorf("%w: %w", domain.ErrQuantityOverflow, err)
	case pe.Code == pgStringTooLong, len(pe.Code) == 5 && pe.Code[:2] == pgIntegrityViolation:
		return fmt.Errorf("%w: %w", domain.ErrConstraintViolation, err)
	}
	return err
}
