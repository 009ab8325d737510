package persist_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/fabrimaciel/gda"
	gdasql "github.com/fabrimaciel/gda/dialect/sql"
	"github.com/fabrimaciel/gda/expr"
	"github.com/fabrimaciel/gda/persist"
)

var ddl = []string{
	`CREATE TABLE CUSTOMER (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		NAME TEXT NOT NULL,
		STATUS TEXT,
		VERSION INTEGER NOT NULL DEFAULT 1,
		UPDATED_AT TEXT NOT NULL DEFAULT 'created'
	)`,
	`CREATE TRIGGER CUSTOMER_VERSION AFTER UPDATE ON CUSTOMER BEGIN
		UPDATE CUSTOMER SET VERSION = OLD.VERSION + 1, UPDATED_AT = 'changed' WHERE ID = NEW.ID;
	END`,
	`CREATE TABLE ORDERS (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		CUSTOMER_ID INTEGER NOT NULL REFERENCES CUSTOMER(ID),
		TOTAL REAL
	)`,
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	drv, err := gdasql.Open("sqlite", filepath.Join(t.TempDir(), "gda.db"))
	require.NoError(t, err)
	defer drv.Close()
	for _, stmt := range ddl {
		_, err := drv.DB().ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	exec, err := persist.New(registry(), persist.WithDialect(drv.Dialect()))
	require.NoError(t, err)

	t.Run("InsertThenUpdate", func(t *testing.T) {
		tx, err := drv.Tx(ctx)
		require.NoError(t, err)
		batch := exec.Begin(tx)
		results, err := batch.ExecuteAll(ctx, []*gda.Action{
			{
				ID:             1,
				Type:           gda.ActionInsert,
				EntityFullName: "Sales.Customer",
				Parameters: gda.Parameters{
					gda.NewParameter("Id", -1),
					gda.NewParameter("Name", "Ann"),
					gda.NewParameter("Status", "ACTIVE"),
				},
			},
			{
				ID:             2,
				Type:           gda.ActionInsert,
				EntityFullName: "Sales.Order",
				Parameters: gda.Parameters{
					gda.NewParameter("Id", -2),
					gda.NewParameter("CustomerId", -1),
					gda.NewParameter("Total", 12.5),
				},
			},
			{
				ID:             3,
				Type:           gda.ActionUpdate,
				EntityFullName: "Sales.Customer",
				Parameters:     gda.Parameters{gda.NewParameter("Name", "Ann2"), gda.NewParameter("Id", -1)},
				RowVersion:     rowVersion(1),
			},
		})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		require.Len(t, results, 3)
		for _, r := range results {
			assert.True(t, r.Success, r.FailureMessage)
		}

		assert.Equal(t, map[int64]any{-1: int64(1), -2: int64(1)}, batch.VirtualIDs())
		assert.Equal(t, int64(1), param(t, results[0], "Id"))
		assert.Equal(t, int64(1), param(t, results[1], "CustomerId"))
		for _, i := range []int{0, 2} {
			require.NotNil(t, results[i].RowVersion)
			assert.Equal(t, int64(2), *results[i].RowVersion)
			assert.Equal(t, "changed", param(t, results[i], "UpdatedAt"))
		}

		var name string
		require.NoError(t, drv.DB().QueryRowContext(ctx, `SELECT NAME FROM CUSTOMER WHERE ID = 1`).Scan(&name))
		assert.Equal(t, "Ann2", name)
	})

	t.Run("ConflictThenDelete", func(t *testing.T) {
		_, err := drv.DB().ExecContext(ctx, `INSERT INTO CUSTOMER (ID, NAME, STATUS, VERSION) VALUES (42, 'Bob', 'INACTIVE', 8)`)
		require.NoError(t, err)

		tx, err := drv.Tx(ctx)
		require.NoError(t, err)
		batch := exec.Begin(tx)
		r, err := batch.Execute(ctx, &gda.Action{
			Type:           gda.ActionUpdate,
			EntityFullName: "Sales.Customer",
			Parameters:     gda.Parameters{gda.NewParameter("Name", "Robert"), gda.NewParameter("Id", 42)},
			RowVersion:     rowVersion(7),
		})
		require.NoError(t, err)
		assert.True(t, gda.IsConcurrencyFailure(r))
		assert.Contains(t, r.FailureMessage, "Sales.Customer with row version 7")

		r, err = batch.Execute(ctx, &gda.Action{
			Type:           gda.ActionDelete,
			EntityFullName: "Sales.Customer",
			Conditional:    expr.Where(expr.Eq(expr.Col("Status"), expr.Const("'INACTIVE'"))),
		})
		require.NoError(t, err)
		assert.True(t, r.Success)
		assert.Equal(t, int64(1), r.AffectedRows)
		require.NoError(t, tx.Commit())

		var n int
		require.NoError(t, drv.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM CUSTOMER`).Scan(&n))
		assert.Equal(t, 1, n)
	})
}
