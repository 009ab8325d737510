// Package dialect describes the SQL engines the persistence pipeline can
// render commands for.
//
// A dialect is a data value, [Rules], rather than a type hierarchy. It
// captures everything that differs between engines:
//
//   - identifier quoting and placeholder style
//   - value coercion (booleans, enums, GUIDs, time zones)
//   - function name and argument rewriting
//   - identity generation (post-command or sequence) and row versions
//   - anonymous blocks, procedure calls and pagination
//   - the DbType to driver type table
//
// # Builtin Dialects
//
//	dialect.GenericRules  // ANSI quoting, ? placeholders
//	dialect.OracleRules   // "UPPER" quoting, :name placeholders, sequences, ORA_ROWSCN
//	dialect.MySQLRules    // `backtick` quoting, LAST_INSERT_ID
//	dialect.PostgresRules // pq quoting, $n placeholders, RETURNING
//	dialect.SQLiteRules   // ANSI quoting, ? placeholders, last_insert_rowid
//
// Provider names resolve through [Lookup], which accepts driver names and
// common aliases:
//
//	rules, err := dialect.Lookup("godror")  // OracleRules
//
// # Driver Interface
//
// The package also defines the Driver, Tx and ExecQuerier interfaces that
// dialect/sql implements over database/sql:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
package dialect
