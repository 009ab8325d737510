package main

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/expr"
)

const mapping = `
types:
  - name: Sales.Customer
    table: CUSTOMER
    versioned: true
    rowVersion: VERSION
    properties:
      - {name: Id, column: ID, kind: identity}
      - {name: Name, column: NAME, type: string}
      - {name: Status, column: STATUS, type: string}
  - name: Sales.Order
    table: ORDERS
    properties:
      - {name: Id, column: ID, kind: identity}
      - {name: CustomerId, column: CUSTOMER_ID, type: int64, foreignKey: true}
`

const batch = `
timeout: 5s
actions:
  - type: insert
    entity: Sales.Customer
    parameters:
      - {name: Id, value: -1}
      - {name: Name, value: Ann}
      - {name: Status, value: INACTIVE}
  - type: update
    entity: Sales.Customer
    conditional: "Status = 'INACTIVE'"
    rowVersion: 7
    timeout: 1s
    parameters:
      - {name: Name, expression: "UPPER(Status)"}
  - type: insert
    entity: Sales.Order
    parameters:
      - {name: Id, value: -2}
      - {name: CustomerId, value: -1}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runLogged(t, args...)
	return out, err
}

// runLogged also returns what the command logged.
func runLogged(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, log bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&log)
	err := root.Execute()
	return out.String(), log.String(), err
}

func TestDecodeBatch(t *testing.T) {
	actions, err := decodeBatch(strings.NewReader(batch))
	require.NoError(t, err)
	require.Len(t, actions, 3)

	insert := actions[0]
	assert.Equal(t, 1, insert.ID)
	assert.Equal(t, gda.ActionInsert, insert.Type)
	assert.Equal(t, 5*time.Second, insert.CommandTimeout)
	assert.Equal(t, gda.Parameters{
		gda.NewParameter("Id", -1),
		gda.NewParameter("Name", "Ann"),
		gda.NewParameter("Status", "INACTIVE"),
	}, insert.Parameters)

	update := actions[1]
	assert.Equal(t, 2, update.ID)
	assert.Equal(t, time.Second, update.CommandTimeout)
	require.NotNil(t, update.RowVersion)
	assert.Equal(t, int64(7), *update.RowVersion)
	assert.Equal(t, expr.Where(expr.Eq(expr.Col("Status"), expr.Const("'INACTIVE'"))), update.Conditional)
	assert.Equal(t, &expr.ExpressionParameter{Expression: "UPPER(Status)"}, update.Parameters[0].Value)
}

func TestDecodeBatchParameters(t *testing.T) {
	actions, err := decodeBatch(strings.NewReader(`
actions:
  - id: 9
    type: procedure
    procedure: close_orders
    parameters:
      - {name: CustomerId, value: 5}
      - {name: Total, value: 10, direction: inputoutput, type: int64}
      - {name: Label, reference: Name}
`))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, 9, a.ID)
	assert.Equal(t, "close_orders", a.ProcedureName)
	assert.Equal(t, gda.Parameter{Name: "Total", Value: 10, Direction: gda.DirectionInputOutput, DbType: gda.DbInt64}, a.Parameters[1])
	assert.Equal(t, &expr.PropertyReference{Property: "Name"}, a.Parameters[2].Value)
}

func TestDecodeBatchErrors(t *testing.T) {
	tests := map[string]string{
		"UnknownType":      "actions: [{type: merge, entity: Sales.Customer}]",
		"MissingEntity":    "actions: [{type: delete}]",
		"BadConditional":   "actions: [{type: delete, entity: Sales.Customer, conditional: 'Status ='}]",
		"BadDirection":     "actions: [{type: insert, entity: Sales.Customer, parameters: [{name: Id, direction: sideways}]}]",
		"BadDbType":        "actions: [{type: insert, entity: Sales.Customer, parameters: [{name: Id, type: money}]}]",
		"UnnamedParameter": "actions: [{type: insert, entity: Sales.Customer, parameters: [{value: 1}]}]",
		"Exclusive":        "actions: [{type: update, entity: Sales.Customer, parameters: [{name: A, reference: B, expression: C}]}]",
		"Malformed":        "actions: {type: insert}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decodeBatch(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestRenderCommand(t *testing.T) {
	schemaPath := writeFile(t, "mapping.yaml", mapping)
	batchPath := writeFile(t, "batch.yaml", batch)

	out, err := run(t, "render", "--schema", schemaPath, "--dialect", "mysql", batchPath)
	require.NoError(t, err)
	assert.Contains(t, out, "-- Insert Sales.Customer #1\nINSERT INTO `CUSTOMER` (`NAME`, `STATUS`) VALUES (?, ?)\n")
	assert.Contains(t, out, "-- Update Sales.Customer #2\nUPDATE `CUSTOMER` SET `NAME`=UPPER(`STATUS`) WHERE `STATUS` = 'INACTIVE'\n")
	assert.Contains(t, out, "--   Name = Ann")

	_, err = run(t, "render", "--dialect", "mysql", batchPath)
	assert.ErrorContains(t, err, "no mapping file")

	_, err = run(t, "render", "--schema", schemaPath, "--dialect", "db2", batchPath)
	assert.ErrorIs(t, err, gda.ErrUnknownDialect)
}

func TestExecCommand(t *testing.T) {
	schemaPath := writeFile(t, "mapping.yaml", mapping)
	batchPath := writeFile(t, "batch.yaml", batch)
	dsn := filepath.Join(t.TempDir(), "gda.db")

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range []string{
		`CREATE TABLE CUSTOMER (ID INTEGER PRIMARY KEY AUTOINCREMENT, NAME TEXT, STATUS TEXT, VERSION INTEGER NOT NULL DEFAULT 1)`,
		`CREATE TABLE ORDERS (ID INTEGER PRIMARY KEY AUTOINCREMENT, CUSTOMER_ID INTEGER NOT NULL)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	out, err := run(t, "exec", "--schema", schemaPath, "--driver", "sqlite", "--dsn", dsn, batchPath)
	require.NoError(t, err)
	assert.Contains(t, out, "-- Insert Sales.Customer #1: ok, 1 rows")
	assert.Contains(t, out, "--   Id = 1")
	assert.Contains(t, out, "-- Update Sales.Customer #2: ok, 1 rows")
	assert.Contains(t, out, "--   CustomerId = 1")
	assert.Contains(t, out, "-- rolled back")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM CUSTOMER`).Scan(&n))
	assert.Zero(t, n)

	out, err = run(t, "exec", "--schema", schemaPath, "--driver", "sqlite", "--dsn", dsn, "--commit", batchPath)
	require.NoError(t, err)
	assert.Contains(t, out, "-- committed")

	var name string
	require.NoError(t, db.QueryRow(`SELECT NAME FROM CUSTOMER`).Scan(&name))
	assert.Equal(t, "INACTIVE", name)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ORDERS WHERE CUSTOMER_ID = 1`).Scan(&n))
	assert.Equal(t, 1, n)

	_, err = run(t, "exec", "--schema", schemaPath, batchPath)
	assert.ErrorContains(t, err, "no driver")
}

func TestExecCommandDebugKeepsStatistics(t *testing.T) {
	schemaPath := writeFile(t, "mapping.yaml", mapping)
	batchPath := writeFile(t, "batch.yaml", batch)
	dsn := filepath.Join(t.TempDir(), "gda.db")

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range []string{
		`CREATE TABLE CUSTOMER (ID INTEGER PRIMARY KEY AUTOINCREMENT, NAME TEXT, STATUS TEXT, VERSION INTEGER NOT NULL DEFAULT 1)`,
		`CREATE TABLE ORDERS (ID INTEGER PRIMARY KEY AUTOINCREMENT, CUSTOMER_ID INTEGER NOT NULL)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	_, log, err := runLogged(t, "exec", "--schema", schemaPath, "--driver", "sqlite", "--dsn", dsn,
		"--debug", "--slow-threshold=-1ns", batchPath)
	require.NoError(t, err)
	assert.Contains(t, log, "tx exec insert: INSERT INTO")
	assert.Contains(t, log, `statements="insert=2 update=1 `)
	assert.Contains(t, log, `msg="slow statement" kind=update`)
	assert.Contains(t, log, "metric=gda_sql_statements_total value=2 dialect=sqlite kind=insert")
}

func TestSchemaCheck(t *testing.T) {
	valid := writeFile(t, "mapping.yaml", mapping)
	out, err := run(t, "schema", "check", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "2 types")

	invalid := writeFile(t, "invalid.yaml", `
types:
  - name: Sales.Region
    table: REGION
    versioned: true
    properties:
      - {name: Code, column: CODE, kind: key}
`)
	out, err = run(t, "schema", "check", invalid)
	assert.ErrorIs(t, err, errInvalidMapping)
	assert.Contains(t, out, "Sales.Region")

	_, err = run(t, "schema", "check", "--dialect", "oracle", invalid)
	require.NoError(t, err)
}
