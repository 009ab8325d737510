package sql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabrimaciel/gda/dialect"
)

func TestDriverDialect(t *testing.T) {
	tests := map[string]string{
		"sqlite":     dialect.SQLite,
		"sqlite3":    dialect.SQLite,
		"postgres":   dialect.Postgres,
		"postgresql": dialect.Postgres,
		"mysql":      dialect.MySQL,
		"oracle":     dialect.Oracle,
		"sqlserver":  "sqlserver",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(name, db)
			assert.Equal(t, want, drv.Dialect())
			assert.Same(t, db, drv.DB())
		})
	}
}

func TestDriverTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.SQLite, db)
	ctx := context.Background()

	t.Run("InsertThenReadBack", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "CUSTOMER" ("NAME") VALUES (?)`)).
			WithArgs("Ann").
			WillReturnResult(sqlmock.NewResult(9, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT "ID", "VERSION" FROM "CUSTOMER" WHERE "ID" IN (?)`)).
			WithArgs(int64(9)).
			WillReturnRows(sqlmock.NewRows([]string{"ID", "VERSION"}).AddRow(int64(9), int64(1)))
		mock.ExpectCommit()

		tx, err := drv.Tx(ctx)
		require.NoError(t, err)
		res, err := ExecuteCommand(ctx, tx, 0, `INSERT INTO "CUSTOMER" ("NAME") VALUES (?)`, []any{"Ann"})
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		records, err := LoadResult(ctx, tx, 0, `SELECT "ID", "VERSION" FROM "CUSTOMER" WHERE "ID" IN (?)`, []any{id})
		require.NoError(t, err)
		require.Len(t, records, 1)
		v, ok := records[0].Get("Version")
		require.True(t, ok)
		assert.Equal(t, int64(1), v)
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackAfterFailure", func(t *testing.T) {
		cause := errors.New("FOREIGN KEY constraint failed")
		mock.ExpectBegin()
		mock.ExpectExec("DELETE").WillReturnError(cause)
		mock.ExpectRollback()

		tx, err := drv.Tx(ctx)
		require.NoError(t, err)
		_, err = ExecuteCommand(ctx, tx, 0, `DELETE FROM "CUSTOMER" WHERE "ID"=?`, []any{9})
		require.ErrorIs(t, err, cause)
		assert.True(t, IsForeignKeyConstraintError(err))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginError", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(assert.AnError)
		_, err := drv.Tx(ctx)
		require.ErrorIs(t, err, assert.AnError)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnArguments(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)
	ctx := context.Background()

	err = drv.Exec(ctx, `DELETE FROM "ORDERS"`, map[string]any{"id": 1}, nil)
	assert.ErrorContains(t, err, "expect []any for args")
	err = drv.Exec(ctx, `DELETE FROM "ORDERS"`, []any{}, new(int))
	assert.ErrorContains(t, err, "expect *sql.Result")
	err = drv.Query(ctx, `SELECT 1`, []any{}, new(int))
	assert.ErrorContains(t, err, "expect *sql.Rows")
	err = drv.Query(ctx, `SELECT 1`, "x", &Rows{})
	assert.ErrorContains(t, err, "expect []any for args")
}
