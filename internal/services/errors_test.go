package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/models"
	apperrors "github.com/charlesng35/bitebell/pkg/errors"
)

func TestDuplicateKeyAcrossDrivers(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: gorm.ErrDuplicatedKey, want: true},
		{name: "postgres unique", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "postgres foreign key", err: &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}, want: false},
		{name: "mysql duplicate", err: fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}), want: true},
		{name: "mysql foreign key", err: &mysql.MySQLError{Number: 1452, Message: "a foreign key constraint fails"}, want: false},
		{name: "sqlite unique", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, want: true},
		{name: "sqlite not null", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, want: false},
		{name: "sqlite message only", err: errors.New("UNIQUE constraint failed: users.email"), want: true},
		{name: "check constraint message", err: errors.New("CHECK constraint failed: status"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, duplicateKey(tc.err))
		})
	}
}

func TestAsConflictOnlyMapsDuplicates(t *testing.T) {
	require.NoError(t, asConflict(errors.New("FOREIGN KEY constraint failed"), "email already registered"))

	err := asConflict(gorm.ErrDuplicatedKey, "email already registered")
	require.ErrorIs(t, err, apperrors.ErrConflict)
	require.Contains(t, err.Error(), "email already registered")
}

func TestRegisterDuplicateEmailIsConflict(t *testing.T) {
	s := newTestServices(t)

	_, err := s.users.Register(t.Context(), RegisterUserInput{Email: "dup@example.com"})
	require.NoError(t, err)

	_, err = s.users.Register(t.Context(), RegisterUserInput{Email: " DUP@example.com "})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	var count int64
	require.NoError(t, s.db.Model(&models.User{}).Where("email = ?", "dup@example.com").Count(&count).Error)
	require.Equal(t, int64(1), count)
}
