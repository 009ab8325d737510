package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/fabrimaciel/gda/dialect"
)

// Record is one row read by LoadResult, with columns in select order.
type Record struct {
	Columns []string
	Values  []any
}

// Get returns the value of a column, matched case-insensitively.
func (r Record) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// withTimeout bounds ctx by timeout when it is positive.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// ExecuteCommand executes a command that returns no rows and reports the
// driver result. A positive timeout bounds the command.
func ExecuteCommand(ctx context.Context, eq dialect.ExecQuerier, timeout time.Duration, query string, args []any) (Result, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	var res Result
	if err := eq.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// LoadResult executes a query and reads every row.
func LoadResult(ctx context.Context, eq dialect.ExecQuerier, timeout time.Duration, query string, args []any) ([]Record, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	rows := &Rows{}
	if err := eq.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRecords(rows)
}

// ScanRecords reads all remaining rows of rows.
func ScanRecords(rows ColumnScanner) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: columns: %w", err)
	}
	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		records = append(records, Record{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialect/sql: rows: %w", err)
	}
	return records, nil
}

// ValidateDSN checks that source is a well-formed data source name for the
// driver, without connecting.
func ValidateDSN(driverName, source string) error {
	switch {
	case strings.HasPrefix(driverName, dialect.MySQL):
		if _, err := mysql.ParseDSN(source); err != nil {
			return fmt.Errorf("dialect/sql: mysql dsn: %w", err)
		}
	case strings.HasPrefix(driverName, dialect.Postgres):
		if strings.HasPrefix(source, "postgres://") || strings.HasPrefix(source, "postgresql://") {
			if _, err := pq.ParseURL(source); err != nil {
				return fmt.Errorf("dialect/sql: postgres dsn: %w", err)
			}
		}
	case source == "":
		return fmt.Errorf("dialect/sql: empty data source for %s", driverName)
	}
	return nil
}
