// Package sql implements the transactional command handle used to run
// persistence commands on database/sql drivers.
//
// A Driver wraps a *sql.DB and hands out dialect.Tx values. Commands are run
// through ExecuteCommand and LoadResult, which take any dialect.ExecQuerier,
// so the StatsDriver and DebugDriver wrappers see every statement:
//
//	drv, err := sql.Open("sqlite", "file:app.db")
//	if err != nil {
//		return err
//	}
//	tx, err := drv.Tx(ctx)
//	if err != nil {
//		return err
//	}
//	res, err := sql.ExecuteCommand(ctx, tx, 30*time.Second,
//		`DELETE FROM "customers" WHERE "id"=?`, []any{42})
//
// # Errors
//
// Constraint violations are classified by IsConstraintError and its
// Unique/ForeignKey/Check/NotNull variants. They understand *pq.Error,
// *mysql.MySQLError, SQLSTATE and SQLite result codes, and fall back to
// matching driver messages.
//
// # Statistics
//
// StatsDriver counts commands, errors and slow commands per StatementKind. It
// is also a prometheus.Collector. A DebugDriver can wrap it to log every
// command without losing the counts.
package sql
