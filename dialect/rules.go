package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fabrimaciel/gda"
)

// PlaceholderStyle selects how bound parameters appear in command text.
type PlaceholderStyle int

// Placeholder styles.
const (
	// PlaceholderQuestion renders every occurrence as ?.
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar renders occurrences as $1, $2, ...
	PlaceholderDollar
	// PlaceholderNamed renders :Name and binds each name once.
	PlaceholderNamed
)

// IdentityStrategy selects when identity values are generated.
type IdentityStrategy int

// Identity strategies.
const (
	// IdentityLastInsertID reads the generated value from the driver result.
	IdentityLastInsertID IdentityStrategy = iota
	// IdentityReturning appends a RETURNING clause to the INSERT.
	IdentityReturning
	// IdentitySequence fetches the next sequence value before the INSERT,
	// inside the same command.
	IdentitySequence
)

// PostCommand reports whether the identity is known only after the INSERT ran.
func (s IdentityStrategy) PostCommand() bool {
	return s != IdentitySequence
}

// PaginationStyle selects the row-limiting clause of a SELECT.
type PaginationStyle int

// Pagination styles.
const (
	PaginateLimitOffset PaginationStyle = iota
	PaginateOffsetFetch
)

// ProcedureStyle selects how stored procedures are invoked.
type ProcedureStyle int

// Procedure styles.
const (
	ProcedureUnsupported ProcedureStyle = iota
	// ProcedureCall renders CALL name(args).
	ProcedureCall
	// ProcedureBlock renders BEGIN name(args); END;
	ProcedureBlock
)

// GeneratorStyle selects how an out-of-band key generator routine is invoked.
type GeneratorStyle int

// Generator styles.
const (
	// GeneratorSelect reads the value from SELECT routine(schema, table, column).
	GeneratorSelect GeneratorStyle = iota
	// GeneratorOutParam calls routine(schema, table, column, out) in a block.
	GeneratorOutParam
)

// FunctionRule renders a function call from its already formatted arguments.
type FunctionRule func(args []string) string

// Rules is the capability record of one SQL engine.
type Rules struct {
	Name string
	// Aliases are provider name prefixes resolved to this dialect by Lookup.
	Aliases []string

	// QuoteIdent quotes one identifier.
	QuoteIdent  func(string) string
	Placeholder PlaceholderStyle

	NativeBool bool
	NativeGUID bool
	// TimeZone reports support for timestamp with time zone. Without it,
	// DateTimeOffset values are converted to local time.
	TimeZone bool

	// Functions rewrites function calls by upper-case name. Names without a
	// rule pass through unchanged.
	Functions map[string]FunctionRule
	// CastTypes aliases the target type of CAST(x AS type).
	CastTypes map[string]string

	Identity IdentityStrategy
	// SequenceName formats the sequence of a table, e.g. "SEQ_%s".
	SequenceName string
	// SequenceFetch formats the statement fetching the next value of a
	// sequence (first verb) into a placeholder (second verb).
	SequenceFetch string
	// SequenceNext formats a query returning the next value of a sequence.
	SequenceNext string
	// Returning formats the clause returning the identity column.
	Returning string

	Generator GeneratorStyle

	// RowVersionPseudoColumn is compared when a versioned type maps no
	// row-version column.
	RowVersionPseudoColumn string

	// BlockBegin and BlockEnd wrap multi-statement commands.
	BlockBegin string
	BlockEnd   string
	// RowCountCapture formats the statement storing the affected row count
	// into an output placeholder. Empty means the driver result is used.
	RowCountCapture string

	Procedure  ProcedureStyle
	Pagination PaginationStyle
	// NoLimit is the LIMIT value used when only an offset is requested.
	NoLimit string

	// TypeNames maps DbType to the engine type name.
	TypeNames map[gda.DbType]string
}

// Quote quotes every non-empty part and joins them with dots.
func (r *Rules) Quote(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(r.QuoteIdent(p))
	}
	return b.String()
}

// Bind returns the placeholder of the n-th (1-based) binding called name.
func (r *Rules) Bind(name string, n int) string {
	switch r.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(n)
	case PlaceholderNamed:
		return ":" + gda.ParameterName(name)
	default:
		return "?"
	}
}

// Call renders a function call, applying the rewrite table.
func (r *Rules) Call(name string, args []string) string {
	upper := strings.ToUpper(name)
	if upper == "CAST" && len(args) == 2 {
		target := strings.TrimSpace(args[1])
		if alias, ok := r.CastTypes[strings.ToUpper(target)]; ok {
			target = alias
		}
		return "CAST(" + args[0] + " AS " + target + ")"
	}
	if fn, ok := r.Functions[upper]; ok {
		return fn(args)
	}
	return name + "(" + strings.Join(args, ", ") + ")"
}

// TypeName returns the engine type name of t.
func (r *Rules) TypeName(t gda.DbType) string {
	if n, ok := r.TypeNames[t]; ok {
		return n
	}
	return t.String()
}

// HasBlock reports whether multi-statement commands are wrapped in a block.
func (r *Rules) HasBlock() bool {
	return r.BlockBegin != ""
}

// Paginate appends the row-limiting clause for skip and take. Zero values
// mean no offset and no limit.
func (r *Rules) Paginate(b *strings.Builder, skip, take int) {
	if skip <= 0 && take <= 0 {
		return
	}
	switch r.Pagination {
	case PaginateOffsetFetch:
		fmt.Fprintf(b, " OFFSET %d ROWS", max(skip, 0))
		if take > 0 {
			fmt.Fprintf(b, " FETCH NEXT %d ROWS ONLY", take)
		}
	default:
		if take > 0 {
			fmt.Fprintf(b, " LIMIT %d", take)
		} else {
			b.WriteString(" LIMIT " + r.NoLimit)
		}
		if skip > 0 {
			fmt.Fprintf(b, " OFFSET %d", skip)
		}
	}
}

var (
	mu       sync.RWMutex
	registry = []*Rules{&OracleRules, &MySQLRules, &PostgresRules, &SQLiteRules, &GenericRules}
)

// Register adds custom rules consulted by Lookup before the builtin ones.
func Register(r *Rules) {
	mu.Lock()
	defer mu.Unlock()
	registry = append([]*Rules{r}, registry...)
}

// Lookup resolves a provider name to its rules. Names match a dialect name or
// alias by case-insensitive prefix, so "sqlite3" and "postgresql" resolve too.
func Lookup(provider string) (*Rules, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return &GenericRules, nil
	}
	mu.RLock()
	defer mu.RUnlock()
	for _, r := range registry {
		for _, name := range append([]string{r.Name}, r.Aliases...) {
			if strings.HasPrefix(p, strings.ToLower(name)) {
				return r, nil
			}
		}
	}
	return nil, &gda.UnknownDialectError{Provider: provider}
}
