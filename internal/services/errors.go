package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/bitebell/pkg/errors"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFailed   = "unique constraint failed"
	mysqlDuplicatePrefix = "duplicate entry"
)

// duplicateKey reports whether err is a unique or primary key violation from any of the
// supported drivers. Foreign key and not-null failures do not count.
func duplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	// wrapped driver errors that lost their type
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, sqliteUniqueFailed) || strings.Contains(lower, mysqlDuplicatePrefix)
}

// asConflict maps a duplicate key error to a 409 carrying message and returns nil for
// anything else, so callers can fall through to their own wrapping.
func asConflict(err error, message string) error {
	if !duplicateKey(err) {
		return nil
	}
	return apperrors.ErrConflict.WithMessage(message)
}
