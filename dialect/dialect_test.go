package dialect_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
)

func TestLookup(t *testing.T) {
	tests := map[string]string{
		"":            dialect.Generic,
		"oracle":      dialect.Oracle,
		"godror":      dialect.Oracle,
		"MySQL":       dialect.MySQL,
		"mariadb":     dialect.MySQL,
		"postgresql":  dialect.Postgres,
		"pgx":         dialect.Postgres,
		"sqlite3":     dialect.SQLite,
		"sqlite":      dialect.SQLite,
		"generic":     dialect.Generic,
		"sqlserver":   dialect.Generic,
		" Oracle.Net": dialect.Oracle,
	}
	for provider, want := range tests {
		r, err := dialect.Lookup(provider)
		require.NoError(t, err, provider)
		assert.Equal(t, want, r.Name, provider)
	}

	_, err := dialect.Lookup("db2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gda.ErrUnknownDialect))
	assert.True(t, gda.IsMappingError(err))
}

func TestRegister(t *testing.T) {
	custom := dialect.GenericRules
	custom.Name = "acme"
	custom.Aliases = nil
	dialect.Register(&custom)
	r, err := dialect.Lookup("acme-driver")
	require.NoError(t, err)
	assert.Same(t, &custom, r)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"CUSTOMER"`, dialect.OracleRules.QuoteIdent("Customer"))
	assert.Equal(t, `"SALES"."CUSTOMER"`, dialect.OracleRules.Quote("sales", "", "customer"))
	assert.Equal(t, "`sales`.`customer`", dialect.MySQLRules.Quote("sales", "customer"))
	assert.Equal(t, "`a``b`", dialect.MySQLRules.QuoteIdent("a`b"))
	assert.Equal(t, `"Customer"`, dialect.PostgresRules.QuoteIdent("Customer"))
	assert.Equal(t, `"a""b"`, dialect.SQLiteRules.QuoteIdent(`a"b`))
	assert.Equal(t, `"Name"`, dialect.GenericRules.QuoteIdent("Name"))
}

func TestBind(t *testing.T) {
	assert.Equal(t, "?", dialect.MySQLRules.Bind("Id", 3))
	assert.Equal(t, "$3", dialect.PostgresRules.Bind("Id", 3))
	assert.Equal(t, ":Id", dialect.OracleRules.Bind("?Id", 3))
}

func TestCall(t *testing.T) {
	tests := []struct {
		rules *dialect.Rules
		name  string
		args  []string
		want  string
	}{
		{&dialect.GenericRules, "ISNULL", []string{"a", "0"}, "COALESCE(a, 0)"},
		{&dialect.OracleRules, "isnull", []string{"a", "0"}, "NVL(a, 0)"},
		{&dialect.MySQLRules, "ISNULL", []string{"a", "0"}, "IFNULL(a, 0)"},
		{&dialect.OracleRules, "CHARINDEX", []string{"'x'", "a"}, "INSTR(a, 'x')"},
		{&dialect.PostgresRules, "CHARINDEX", []string{"'x'", "a"}, "STRPOS(a, 'x')"},
		{&dialect.MySQLRules, "CHARINDEX", []string{"'x'", "a", "2"}, "LOCATE('x', a, 2)"},
		{&dialect.MySQLRules, "DATEADD", []string{"dd", "5", "d"}, "DATE_ADD(d, INTERVAL 5 DAY)"},
		{&dialect.OracleRules, "DATEADD", []string{"month", "1", "d"}, "ADD_MONTHS(d, 1)"},
		{&dialect.PostgresRules, "DATEADD", []string{"hour", "2", "d"}, "(d + (2) * INTERVAL '1 HOUR')"},
		{&dialect.SQLiteRules, "DATEADD", []string{"day", "2", "d"}, "DATETIME(d, (2) || ' days')"},
		{&dialect.MySQLRules, "CAST", []string{"a", "INT"}, "CAST(a AS SIGNED)"},
		{&dialect.MySQLRules, "CAST", []string{"a", "varchar"}, "CAST(a AS CHAR)"},
		{&dialect.GenericRules, "CAST", []string{"a", "INT"}, "CAST(a AS INT)"},
		{&dialect.OracleRules, "GETDATE", nil, "SYSDATE"},
		{&dialect.MySQLRules, "UPPER", []string{"a"}, "UPPER(a)"},
		{&dialect.SQLiteRules, "LEN", []string{"a"}, "LENGTH(a)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.rules.Call(tt.name, tt.args), "%s %s", tt.rules.Name, tt.name)
	}
}

func TestPaginate(t *testing.T) {
	render := func(r *dialect.Rules, skip, take int) string {
		var b strings.Builder
		r.Paginate(&b, skip, take)
		return b.String()
	}
	assert.Equal(t, "", render(&dialect.MySQLRules, 0, 0))
	assert.Equal(t, " LIMIT 10 OFFSET 20", render(&dialect.PostgresRules, 20, 10))
	assert.Equal(t, " LIMIT -1 OFFSET 5", render(&dialect.SQLiteRules, 5, 0))
	assert.Equal(t, " OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY", render(&dialect.OracleRules, 0, 10))
}

type status int32

const statusActive status = 2

type flag bool

func TestCoerce(t *testing.T) {
	id := uuid.MustParse("3f2b1c9e-8a6d-4e2f-9b1a-0c5d7e8f9a01")

	assert.Nil(t, dialect.MySQLRules.Coerce(nil, gda.DbString))
	assert.Equal(t, int64(1), dialect.MySQLRules.Coerce(true, gda.DbBoolean))
	assert.Equal(t, int64(0), dialect.OracleRules.Coerce(false, gda.DbBoolean))
	assert.Equal(t, true, dialect.PostgresRules.Coerce(true, gda.DbBoolean))
	assert.Equal(t, int64(1), dialect.SQLiteRules.Coerce(flag(true), gda.DbBoolean))

	assert.Equal(t, int64(2), dialect.MySQLRules.Coerce(statusActive, gda.DbInt32))
	assert.Equal(t, 7, dialect.MySQLRules.Coerce(7, gda.DbInt32))

	assert.Equal(t, id.String(), dialect.MySQLRules.Coerce(id, gda.DbGuid))
	assert.Equal(t, id.String(), dialect.SQLiteRules.Coerce(&id, gda.DbGuid))
	assert.Equal(t, id, dialect.PostgresRules.Coerce(id, gda.DbGuid))

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3*3600))
	local := dialect.MySQLRules.Coerce(ts, gda.DbDateTimeOffset).(time.Time)
	assert.True(t, local.Equal(ts))
	assert.Equal(t, time.Local, local.Location())
	assert.Equal(t, ts, dialect.PostgresRules.Coerce(ts, gda.DbDateTimeOffset))
	assert.Equal(t, ts, dialect.MySQLRules.Coerce(ts, gda.DbDateTime))
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "TIMESTAMP WITH TIME ZONE", dialect.OracleRules.TypeName(gda.DbDateTimeOffset))
	assert.Equal(t, "UUID", dialect.PostgresRules.TypeName(gda.DbGuid))
	assert.Equal(t, "TINYINT(1)", dialect.MySQLRules.TypeName(gda.DbBoolean))
	assert.Equal(t, "SQL_VARIANT", dialect.SQLiteRules.TypeName(gda.DbObject))
	for _, r := range []*dialect.Rules{&dialect.GenericRules, &dialect.OracleRules, &dialect.MySQLRules, &dialect.PostgresRules, &dialect.SQLiteRules} {
		for dt := gda.DbObject; dt <= gda.DbBinary; dt++ {
			assert.NotEmpty(t, r.TypeName(dt), "%s %s", r.Name, dt)
		}
	}
}

func TestOutDest(t *testing.T) {
	p := dialect.OracleRules.OutDest(gda.DbInt64)
	*(p.(*int64)) = 42
	assert.Equal(t, int64(42), dialect.Deref(p))
	assert.IsType(t, new(string), dialect.OracleRules.OutDest(gda.DbGuid))
	assert.IsType(t, new(bool), dialect.PostgresRules.OutDest(gda.DbBoolean))
	assert.IsType(t, new(int64), dialect.OracleRules.OutDest(gda.DbBoolean))
}

func TestIdentityStrategy(t *testing.T) {
	assert.True(t, dialect.IdentityLastInsertID.PostCommand())
	assert.True(t, dialect.IdentityReturning.PostCommand())
	assert.False(t, dialect.IdentitySequence.PostCommand())
	assert.False(t, dialect.OracleRules.Identity.PostCommand())
}
