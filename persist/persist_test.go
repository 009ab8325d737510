package persist_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
	gdasql "github.com/fabrimaciel/gda/dialect/sql"
	"github.com/fabrimaciel/gda/expr"
	"github.com/fabrimaciel/gda/persist"
	"github.com/fabrimaciel/gda/schema"
)

func registry() *schema.Registry {
	return schema.NewRegistry(
		schema.NewType("Sales.Customer").
			Table("CUSTOMER").
			Versioned("VERSION").
			Fields(
				schema.Identity("Id").Column("ID"),
				schema.Field("Name").Column("NAME").OfType(gda.DbString),
				schema.Field("Status").Column("STATUS").OfType(gda.DbString),
				schema.Field("UpdatedAt").Column("UPDATED_AT").OfType(gda.DbString).Volatile(),
			),
		schema.NewType("Sales.Order").
			Table("ORDERS").
			Fields(
				schema.Identity("Id").Column("ID"),
				schema.Field("CustomerId").Column("CUSTOMER_ID").OfType(gda.DbInt64).References(),
				schema.Field("Total").Column("TOTAL").OfType(gda.DbDouble),
			),
	)
}

// generator hands out identities before the insert.
type generator struct {
	key   any
	err   error
	calls int
}

func (g *generator) IsPosCommand(string) bool { return false }

func (g *generator) GetPrimaryKey(context.Context, dialect.ExecQuerier, string) (any, error) {
	g.calls++
	return g.key, g.err
}

func setup(t *testing.T, provider string, opts ...persist.Option) (*persist.Executer, *persist.Batch, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	opts = append([]persist.Option{persist.WithDialect(provider), persist.WithRegisterer(prometheus.NewPedanticRegistry())}, opts...)
	exec, err := persist.New(registry(), opts...)
	require.NoError(t, err)
	return exec, exec.Begin(gdasql.OpenDB(provider, db)), mock
}

func param(t *testing.T, r gda.Result, name string) any {
	t.Helper()
	p, ok := r.Parameters.Get(name)
	require.True(t, ok, "parameter %s", name)
	return p.Value
}

func rowVersion(v int64) *int64 { return &v }

func TestNew(t *testing.T) {
	exec, err := persist.New(registry())
	require.NoError(t, err)
	assert.Equal(t, dialect.Generic, exec.Rules().Name)
	assert.Nil(t, exec.Metrics())

	_, err = persist.New(registry(), persist.WithDialect("db2"))
	assert.ErrorIs(t, err, gda.ErrUnknownDialect)

	m := persist.NewMetrics(nil)
	exec, err = persist.New(registry(), persist.WithMetrics(m))
	require.NoError(t, err)
	assert.Same(t, m, exec.Metrics())

	p := exec.CreateParser(&gda.Action{Type: gda.ActionDelete, EntityFullName: "Sales.Customer", Parameters: gda.Parameters{gda.NewParameter("Id", 1)}})
	cmd, err := p.CommandText()
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "CUSTOMER" WHERE "ID"=? AND "VERSION"=?`, cmd.Text)
}

func TestInsert(t *testing.T) {
	t.Run("PostCommand", func(t *testing.T) {
		exec, batch, mock := setup(t, dialect.SQLite)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "CUSTOMER" ("NAME") VALUES (?)`)).
			WithArgs("Ann").
			WillReturnResult(sqlmock.NewResult(42, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ORDERS" ("CUSTOMER_ID", "TOTAL") VALUES (?, ?)`)).
			WithArgs(int64(42), 10.5).
			WillReturnResult(sqlmock.NewResult(7, 1))

		var executed []int
		customer := &gda.Action{
			ID:             1,
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Id", -1), gda.NewParameter("Name", "Ann")},
			OnExecuted:     func(a *gda.Action) { executed = append(executed, a.ID) },
		}
		r, err := batch.ExecuteInsertCommand(context.Background(), customer)
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, int64(1), r.AffectedRows)
		assert.Equal(t, int64(42), param(t, r, "Id"))
		assert.Nil(t, param(t, r, "UpdatedAt"))

		order := &gda.Action{
			ID:             2,
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Order",
			Parameters: gda.Parameters{
				gda.NewParameter("Id", -2),
				gda.NewParameter("CustomerId", -1),
				gda.NewParameter("Total", 10.5),
			},
		}
		r, err = batch.Execute(context.Background(), order)
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, int64(42), param(t, r, "CustomerId"))
		assert.Equal(t, map[int64]any{-1: int64(42), -2: int64(7)}, batch.VirtualIDs())
		assert.Equal(t, []int{1}, executed)
		assert.Equal(t, 2.0, testutil.ToFloat64(exec.Metrics().Actions(gda.ActionInsert, persist.OutcomeSuccess)))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StringKeysAreNotVirtual", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.SQLite)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "CUSTOMER" ("NAME") VALUES (?)`)).
			WithArgs("Ann").
			WillReturnResult(sqlmock.NewResult(42, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ORDERS" ("CUSTOMER_ID", "TOTAL") VALUES (?, ?)`)).
			WithArgs(sqlmock.AnyArg(), 3.0).
			WillReturnResult(sqlmock.NewResult(8, 1))

		_, err := batch.Execute(context.Background(), &gda.Action{
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Id", -1), gda.NewParameter("Name", "Ann")},
		})
		require.NoError(t, err)
		r, err := batch.Execute(context.Background(), &gda.Action{
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Order",
			Parameters: gda.Parameters{
				gda.NewParameter("Id", "-3"),
				gda.NewParameter("CustomerId", "-1"),
				gda.NewParameter("Total", 3.0),
			},
		})
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, "-1", param(t, r, "CustomerId"))
		assert.Equal(t, map[int64]any{-1: int64(42)}, batch.VirtualIDs())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Returning", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Postgres)
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "CUSTOMER" ("NAME") VALUES ($1) RETURNING "ID"`)).
			WithArgs("Ann").
			WillReturnRows(sqlmock.NewRows([]string{"ID"}).AddRow(int64(77)))

		r, err := batch.ExecuteInsertCommand(context.Background(), &gda.Action{
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Id", -1), gda.NewParameter("Name", "Ann")},
		})
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, int64(77), param(t, r, "Id"))
		assert.Equal(t, map[int64]any{-1: int64(77)}, batch.VirtualIDs())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Generator", func(t *testing.T) {
		keys := &generator{key: int64(1001)}
		_, batch, mock := setup(t, dialect.MySQL, persist.WithKeyRepository(keys))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `CUSTOMER` (`ID`, `NAME`) VALUES (?, ?)")).
			WithArgs(int64(1001), "Ann").
			WillReturnResult(sqlmock.NewResult(1001, 1))

		r, err := batch.ExecuteInsertCommand(context.Background(), &gda.Action{
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Id", -5), gda.NewParameter("Name", "Ann")},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, keys.calls)
		assert.Equal(t, int64(1001), param(t, r, "Id"))
		assert.Equal(t, map[int64]any{-5: int64(1001)}, batch.VirtualIDs())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GeneratorError", func(t *testing.T) {
		boom := errors.New("generator unavailable")
		_, batch, mock := setup(t, dialect.MySQL, persist.WithKeyRepository(&generator{err: boom}))
		_, err := batch.ExecuteInsertCommand(context.Background(), &gda.Action{
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Name", "Ann")},
		})
		assert.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExecutionError", func(t *testing.T) {
		exec, batch, mock := setup(t, dialect.SQLite)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "CUSTOMER" ("NAME") VALUES (?)`)).
			WillReturnError(errors.New("UNIQUE constraint failed: CUSTOMER.NAME"))

		var reported error
		r, err := batch.ExecuteInsertCommand(context.Background(), &gda.Action{
			ID:             9,
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Name", "Ann")},
			OnError:        func(_ *gda.Action, err error) { reported = err },
		})
		require.NoError(t, err)
		assert.False(t, r.Success)
		assert.Equal(t, 9, r.ActionID)
		assert.Contains(t, r.FailureMessage, "constraint failed")

		var de *gda.DataError
		require.ErrorAs(t, reported, &de)
		assert.True(t, de.Constraint)
		assert.Equal(t, "insert", de.Op)
		assert.Equal(t, 1.0, testutil.ToFloat64(exec.Metrics().Actions(gda.ActionInsert, persist.OutcomeFailure)))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Timeout", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.SQLite)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "CUSTOMER" ("NAME") VALUES (?)`)).
			WillDelayFor(200 * time.Millisecond).
			WillReturnResult(sqlmock.NewResult(1, 1))

		r, err := batch.ExecuteInsertCommand(context.Background(), &gda.Action{
			Type:           gda.ActionInsert,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Name", "Ann")},
			CommandTimeout: 10 * time.Millisecond,
		})
		require.NoError(t, err)
		assert.False(t, r.Success)
		assert.NotEmpty(t, r.FailureMessage)
	})
}

func TestUpdate(t *testing.T) {
	update := func() *gda.Action {
		return &gda.Action{
			ID:             3,
			Type:           gda.ActionUpdate,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Name", "Ann2"), gda.NewParameter("Id", 42)},
			RowVersion:     rowVersion(7),
		}
	}
	query := regexp.QuoteMeta(`UPDATE "CUSTOMER" SET "NAME"=? WHERE "ID"=? AND "VERSION"=?`)

	t.Run("Success", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Generic)
		mock.ExpectExec(query).
			WithArgs("Ann2", 42, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		r, err := batch.ExecuteUpdateCommand(context.Background(), update())
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, int64(1), r.AffectedRows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Conflict", func(t *testing.T) {
		exec, batch, mock := setup(t, dialect.Generic)
		mock.ExpectExec(query).
			WithArgs("Ann2", 42, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		r, err := batch.ExecuteUpdateCommand(context.Background(), update())
		require.NoError(t, err)
		assert.False(t, r.Success)
		assert.Equal(t, int64(-1), r.AffectedRows)
		assert.Contains(t, r.FailureMessage, "Sales.Customer")
		assert.Contains(t, r.FailureMessage, "7")
		assert.True(t, gda.IsConcurrencyFailure(r))
		assert.Equal(t, 1.0, testutil.ToFloat64(exec.Metrics().Actions(gda.ActionUpdate, persist.OutcomeConflict)))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConditionalWithoutRows", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Generic)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "CUSTOMER" SET "NAME"=? WHERE "STATUS" = 'INACTIVE'`)).
			WithArgs("Ann2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		a := update()
		a.Conditional = expr.Where(expr.Eq(expr.Col("Status"), expr.Const("'INACTIVE'")))
		r, err := batch.ExecuteUpdateCommand(context.Background(), a)
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Zero(t, r.AffectedRows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MappingError", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Generic)
		a := update()
		a.Parameters = append(a.Parameters, gda.NewParameter("Nickname", "x"))
		_, err := batch.ExecuteUpdateCommand(context.Background(), a)
		assert.ErrorIs(t, err, gda.ErrPropertyNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDelete(t *testing.T) {
	t.Run("Conditional", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Generic)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "CUSTOMER" WHERE "STATUS" = 'INACTIVE'`)).
			WillReturnResult(sqlmock.NewResult(0, 3))

		r, err := batch.ExecuteDeleteCommand(context.Background(), &gda.Action{
			Type:           gda.ActionDelete,
			EntityFullName: "Sales.Customer",
			Conditional:    expr.Where(expr.Eq(expr.Col("Status"), expr.Const("'INACTIVE'"))),
			RowVersion:     rowVersion(1),
		})
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, int64(3), r.AffectedRows)
		assert.Nil(t, r.RowVersion)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Versioned", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Generic)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "CUSTOMER" WHERE "ID"=? AND "VERSION"=?`)).
			WithArgs(42, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		notified := false
		r, err := batch.ExecuteDeleteCommand(context.Background(), &gda.Action{
			Type:           gda.ActionDelete,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Id", 42)},
			RowVersion:     rowVersion(3),
			OnExecuted:     func(*gda.Action) { notified = true },
		})
		require.NoError(t, err)
		assert.True(t, r.Success)
		require.NotNil(t, r.RowVersion)
		assert.Equal(t, int64(3), *r.RowVersion)
		assert.True(t, notified)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProcedure(t *testing.T) {
	action := func() *gda.Action {
		return &gda.Action{
			Type:          gda.ActionProcedure,
			ProcedureName: "close_orders",
			Parameters: gda.Parameters{
				gda.NewParameter("CustomerId", 5),
				{Name: "Total", Value: 10, Direction: gda.DirectionInputOutput, DbType: gda.DbInt64},
			},
		}
	}

	t.Run("Call", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.MySQL)
		mock.ExpectExec(regexp.QuoteMeta("CALL close_orders(?, ?)")).
			WithArgs(5, 10).
			WillReturnResult(sqlmock.NewResult(0, 2))

		r, err := batch.ExecuteProcedureCommand(context.Background(), action())
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, int64(2), r.AffectedRows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OutputCopyBack", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Oracle)
		mock.ExpectExec(regexp.QuoteMeta("BEGIN close_orders(:CustomerId, :Total); END;")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		a := action()
		r, err := batch.ExecuteProcedureCommand(context.Background(), a)
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, int64(10), a.Parameters[1].Value)
		assert.Equal(t, int64(10), param(t, r, "Total"))
		assert.Equal(t, 5, a.Parameters[0].Value)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, batch, _ := setup(t, dialect.SQLite)
		_, err := batch.Execute(context.Background(), action())
		assert.ErrorIs(t, err, gda.ErrUnsupportedOperation)
	})
}

func TestExecuteAll(t *testing.T) {
	t.Run("VolatileProperties", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Generic)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "CUSTOMER" ("NAME") VALUES (?)`)).
			WithArgs("Ann").
			WillReturnResult(sqlmock.NewResult(42, 1))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "CUSTOMER" SET "NAME"=? WHERE "ID"=? AND "VERSION"=?`)).
			WithArgs("Bob", 7, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(
			`SELECT "ID" AS "Id", "UPDATED_AT" AS "UpdatedAt", "VERSION" AS "RowVersion" FROM "CUSTOMER" WHERE ("ID" = ?) OR ("ID" = ?)`)).
			WithArgs(int64(42), 7).
			WillReturnRows(sqlmock.NewRows([]string{"Id", "UpdatedAt", "RowVersion"}).
				AddRow(int64(7), "2026-01-02", int64(4)).
				AddRow(int64(42), "2026-01-01", int64(1)))

		actions := []*gda.Action{
			{
				ID:             1,
				Type:           gda.ActionInsert,
				EntityFullName: "Sales.Customer",
				Parameters:     gda.Parameters{gda.NewParameter("Id", -1), gda.NewParameter("Name", "Ann")},
			},
			{
				ID:             2,
				Type:           gda.ActionUpdate,
				EntityFullName: "Sales.Customer",
				Parameters:     gda.Parameters{gda.NewParameter("Name", "Bob"), gda.NewParameter("Id", 7)},
				RowVersion:     rowVersion(3),
			},
		}
		results, err := batch.ExecuteAll(context.Background(), actions)
		require.NoError(t, err)
		require.Len(t, results, 2)

		require.NotNil(t, results[0].RowVersion)
		assert.Equal(t, int64(1), *results[0].RowVersion)
		assert.Equal(t, "2026-01-01", param(t, results[0], "UpdatedAt"))
		require.NotNil(t, results[1].RowVersion)
		assert.Equal(t, int64(4), *results[1].RowVersion)
		assert.Equal(t, "2026-01-02", param(t, results[1], "UpdatedAt"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StopsOnMappingError", func(t *testing.T) {
		_, batch, mock := setup(t, dialect.Generic)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ORDERS" WHERE "ID"=?`)).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		results, err := batch.ExecuteAll(context.Background(), []*gda.Action{
			{Type: gda.ActionDelete, EntityFullName: "Sales.Order", Parameters: gda.Parameters{gda.NewParameter("Id", 1)}},
			{Type: gda.ActionDelete, EntityFullName: "Sales.Invoice", Parameters: gda.Parameters{gda.NewParameter("Id", 1)}},
		})
		assert.ErrorIs(t, err, gda.ErrTypeNotMapped)
		assert.Len(t, results, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MismatchedResults", func(t *testing.T) {
		_, batch, _ := setup(t, dialect.Generic)
		err := batch.RetrievePersistenceVolatileProperties(context.Background(), []*gda.Action{{}}, nil)
		assert.Error(t, err)
	})
}
