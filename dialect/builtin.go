package dialect

import (
	"strings"

	"github.com/lib/pq"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fabrimaciel/gda"
)

func ansiQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func oracleQuote(s string) string {
	return ansiQuote(cases.Upper(language.Und).String(s))
}

func mysqlQuote(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// GenericRules renders ANSI SQL for engines without a dedicated dialect.
var GenericRules = Rules{
	Name:        Generic,
	Aliases:     []string{"sql", "odbc"},
	QuoteIdent:  ansiQuote,
	Placeholder: PlaceholderQuestion,
	Functions:   functions(nil),
	Identity:    IdentityLastInsertID,
	Generator:   GeneratorSelect,
	Procedure:   ProcedureCall,
	Pagination:  PaginateOffsetFetch,
	TypeNames:   typeNames(nil),
}

// OracleRules renders Oracle SQL and PL/SQL blocks.
var OracleRules = Rules{
	Name:                   Oracle,
	Aliases:                []string{"godror", "oci8", "ora"},
	QuoteIdent:             oracleQuote,
	Placeholder:            PlaceholderNamed,
	Functions:              functions(oracleFunctions),
	CastTypes:              map[string]string{"INT": "NUMBER(10)", "BIGINT": "NUMBER(19)", "VARCHAR": "VARCHAR2", "NVARCHAR": "NVARCHAR2", "BIT": "NUMBER(1)"},
	Identity:               IdentitySequence,
	SequenceName:           "SEQ_%s",
	SequenceFetch:          "SELECT %s.NEXTVAL INTO %s FROM DUAL",
	SequenceNext:           "SELECT %s.NEXTVAL FROM DUAL",
	Generator:              GeneratorOutParam,
	RowVersionPseudoColumn: "ORA_ROWSCN",
	BlockBegin:             "BEGIN ",
	BlockEnd:               " END;",
	RowCountCapture:        "%s := SQL%%ROWCOUNT",
	Procedure:              ProcedureBlock,
	Pagination:             PaginateOffsetFetch,
	TimeZone:               true,
	TypeNames: typeNames(map[gda.DbType]string{
		gda.DbString:         "NVARCHAR2",
		gda.DbInt16:          "NUMBER(5)",
		gda.DbInt32:          "NUMBER(10)",
		gda.DbInt64:          "NUMBER(19)",
		gda.DbBoolean:        "NUMBER(1)",
		gda.DbDecimal:        "NUMBER",
		gda.DbDouble:         "BINARY_DOUBLE",
		gda.DbDateTime:       "TIMESTAMP",
		gda.DbDateTimeOffset: "TIMESTAMP WITH TIME ZONE",
		gda.DbGuid:           "RAW(16)",
		gda.DbBinary:         "BLOB",
	}),
}

// MySQLRules renders MySQL and MariaDB SQL.
var MySQLRules = Rules{
	Name:        MySQL,
	Aliases:     []string{"mariadb"},
	QuoteIdent:  mysqlQuote,
	Placeholder: PlaceholderQuestion,
	Functions:   functions(mysqlFunctions),
	CastTypes: map[string]string{
		"INT":      "SIGNED",
		"INTEGER":  "SIGNED",
		"BIGINT":   "SIGNED",
		"SMALLINT": "SIGNED",
		"VARCHAR":  "CHAR",
		"NVARCHAR": "CHAR",
		"TEXT":     "CHAR",
	},
	Identity:   IdentityLastInsertID,
	Generator:  GeneratorSelect,
	Procedure:  ProcedureCall,
	Pagination: PaginateLimitOffset,
	NoLimit:    "18446744073709551615",
	TypeNames: typeNames(map[gda.DbType]string{
		gda.DbString:         "VARCHAR",
		gda.DbInt16:          "SMALLINT",
		gda.DbInt32:          "INT",
		gda.DbInt64:          "BIGINT",
		gda.DbBoolean:        "TINYINT(1)",
		gda.DbDecimal:        "DECIMAL",
		gda.DbDouble:         "DOUBLE",
		gda.DbDateTime:       "DATETIME",
		gda.DbDateTimeOffset: "DATETIME",
		gda.DbGuid:           "CHAR(36)",
		gda.DbBinary:         "BLOB",
	}),
}

// PostgresRules renders PostgreSQL.
var PostgresRules = Rules{
	Name:        Postgres,
	Aliases:     []string{"pgx", "pq", "npgsql"},
	QuoteIdent:  pq.QuoteIdentifier,
	Placeholder: PlaceholderDollar,
	NativeBool:  true,
	NativeGUID:  true,
	TimeZone:    true,
	Functions:   functions(postgresFunctions),
	CastTypes:   map[string]string{"NVARCHAR": "VARCHAR", "DATETIME": "TIMESTAMP"},
	Identity:    IdentityReturning,
	Returning:   " RETURNING %s",
	Generator:   GeneratorSelect,
	Procedure:   ProcedureCall,
	Pagination:  PaginateLimitOffset,
	NoLimit:     "ALL",
	TypeNames: typeNames(map[gda.DbType]string{
		gda.DbString:         "TEXT",
		gda.DbInt16:          "SMALLINT",
		gda.DbInt32:          "INTEGER",
		gda.DbInt64:          "BIGINT",
		gda.DbBoolean:        "BOOLEAN",
		gda.DbDecimal:        "NUMERIC",
		gda.DbDouble:         "DOUBLE PRECISION",
		gda.DbDateTime:       "TIMESTAMP",
		gda.DbDateTimeOffset: "TIMESTAMPTZ",
		gda.DbGuid:           "UUID",
		gda.DbBinary:         "BYTEA",
	}),
}

// SQLiteRules renders SQLite.
var SQLiteRules = Rules{
	Name:        SQLite,
	QuoteIdent:  ansiQuote,
	Placeholder: PlaceholderQuestion,
	Functions:   functions(sqliteFunctions),
	Identity:    IdentityLastInsertID,
	Generator:   GeneratorSelect,
	Procedure:   ProcedureUnsupported,
	Pagination:  PaginateLimitOffset,
	NoLimit:     "-1",
	TypeNames: typeNames(map[gda.DbType]string{
		gda.DbString:         "TEXT",
		gda.DbInt16:          "INTEGER",
		gda.DbInt32:          "INTEGER",
		gda.DbInt64:          "INTEGER",
		gda.DbBoolean:        "INTEGER",
		gda.DbDecimal:        "NUMERIC",
		gda.DbDouble:         "REAL",
		gda.DbDateTime:       "DATETIME",
		gda.DbDateTimeOffset: "DATETIME",
		gda.DbGuid:           "TEXT",
		gda.DbBinary:         "BLOB",
	}),
}

func typeNames(m map[gda.DbType]string) map[gda.DbType]string {
	out := map[gda.DbType]string{
		gda.DbObject:         "SQL_VARIANT",
		gda.DbString:         "VARCHAR",
		gda.DbInt16:          "SMALLINT",
		gda.DbInt32:          "INTEGER",
		gda.DbInt64:          "BIGINT",
		gda.DbBoolean:        "SMALLINT",
		gda.DbDecimal:        "DECIMAL",
		gda.DbDouble:         "DOUBLE PRECISION",
		gda.DbDateTime:       "TIMESTAMP",
		gda.DbDateTimeOffset: "TIMESTAMP",
		gda.DbGuid:           "CHAR(36)",
		gda.DbBinary:         "BLOB",
	}
	for k, v := range m {
		out[k] = v
	}
	return out
}
