package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err) ||
		IsNotNullConstraintError(err)
}

// sqlStateError is implemented by drivers reporting SQLSTATE codes.
type sqlStateError interface {
	SQLState() string
}

// sqliteCoder is implemented by modernc.org/sqlite errors.
type sqliteCoder interface {
	Code() int
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlBadNull                = 1048
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// SQLite extended result codes for constraint violations.
const (
	sqliteCheck      = 275
	sqliteForeignKey = 787
	sqliteNotNull    = 1299
	sqlitePrimaryKey = 1555
	sqliteUnique     = 2067
)

// classify reports whether err carries one of the given driver codes.
func classify(err error, pgCode string, mysqlCodes []uint16, sqliteCodes []int) bool {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return string(pe.Code) == pgCode
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		for _, c := range mysqlCodes {
			if me.Number == c {
				return true
			}
		}
		return false
	}
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == pgCode {
		return true
	}
	if e, ok := asError[sqliteCoder](err); ok {
		for _, c := range sqliteCodes {
			if e.Code() == c {
				return true
			}
		}
	}
	return false
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if classify(err, pgUniqueViolation, []uint16{mysqlDuplicateEntry}, []int{sqliteUnique, sqlitePrimaryKey}) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1062",
		"violates unique constraint",
		"UNIQUE constraint failed",
		"ORA-00001",
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if classify(err, pgForeignKeyViolation, []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild}, []int{sqliteForeignKey}) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1451",
		"Error 1452",
		"violates foreign key constraint",
		"FOREIGN KEY constraint failed",
		"ORA-02291",
		"ORA-02292",
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if classify(err, pgCheckViolation, []uint16{mysqlCheckConstraintViolate}, []int{sqliteCheck}) {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",
		"violates check constraint",
		"CHECK constraint failed",
		"ORA-02290",
	)
}

// IsNotNullConstraintError reports if the error resulted from writing NULL
// into a NOT NULL column.
func IsNotNullConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if classify(err, pgNotNullViolation, []uint16{mysqlBadNull}, []int{sqliteNotNull}) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1048",
		"violates not-null constraint",
		"NOT NULL constraint failed",
		"ORA-01400",
	)
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
