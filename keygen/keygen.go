// Package keygen answers when identity values of mapped types are generated
// and fetches them for strategies that generate keys before the INSERT.
//
// Three strategies exist:
//
//   - PostCommand: the database generates the key while inserting and the
//     executer reads it back (LastInsertId or RETURNING).
//   - Sequence: the key is fetched from a sequence inside the insert command.
//   - Generator: the key is fetched out of band from a stored routine taking
//     (schema, table, column), on a dedicated connection.
package keygen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fabrimaciel/gda/dialect"
	gdasql "github.com/fabrimaciel/gda/dialect/sql"
	"github.com/fabrimaciel/gda/schema"
)

// ErrPostCommand is returned by GetPrimaryKey of strategies whose keys are
// only known after the insert.
var ErrPostCommand = errors.New("keygen: identity is generated by the insert")

// Repository decides, per entity, when identity values are generated.
type Repository interface {
	// IsPosCommand reports whether the identity is known only after the
	// insert command ran.
	IsPosCommand(entity string) bool
	// GetPrimaryKey fetches a new identity value for entity.
	GetPrimaryKey(ctx context.Context, tx dialect.ExecQuerier, entity string) (any, error)
}

// SequenceNamer is implemented by repositories whose keys come from a
// sequence fetched inside the insert command.
type SequenceNamer interface {
	// SequenceName returns the quoted sequence of entity.
	SequenceName(entity string) (string, error)
}

// ForDialect returns the default repository of a dialect.
func ForDialect(rules *dialect.Rules, s schema.TypeSchema) Repository {
	if rules.Identity == dialect.IdentitySequence {
		return NewSequence(rules, s)
	}
	return PostCommand()
}

type postCommand struct{}

// PostCommand returns the repository of engines generating identities while
// inserting.
func PostCommand() Repository { return postCommand{} }

func (postCommand) IsPosCommand(string) bool { return true }

func (postCommand) GetPrimaryKey(context.Context, dialect.ExecQuerier, string) (any, error) {
	return nil, ErrPostCommand
}

// Sequence reads keys from one sequence per table, named after the dialect
// SequenceName template.
type Sequence struct {
	rules  *dialect.Rules
	schema schema.TypeSchema
}

// NewSequence returns a sequence repository.
func NewSequence(rules *dialect.Rules, s schema.TypeSchema) *Sequence {
	return &Sequence{rules: rules, schema: s}
}

// IsPosCommand implements Repository.
func (*Sequence) IsPosCommand(string) bool { return false }

// SequenceName implements SequenceNamer.
func (s *Sequence) SequenceName(entity string) (string, error) {
	md, err := s.schema.GetTypeMetadata(entity)
	if err != nil {
		return "", err
	}
	if s.rules.SequenceName == "" {
		return "", fmt.Errorf("keygen: dialect %s has no sequence naming", s.rules.Name)
	}
	t := md.TableName()
	return s.rules.Quote(t.Schema, fmt.Sprintf(s.rules.SequenceName, t.Name)), nil
}

// GetPrimaryKey reads the next sequence value inside tx.
func (s *Sequence) GetPrimaryKey(ctx context.Context, tx dialect.ExecQuerier, entity string) (any, error) {
	name, err := s.SequenceName(entity)
	if err != nil {
		return nil, err
	}
	if s.rules.SequenceNext == "" {
		return nil, fmt.Errorf("keygen: dialect %s cannot read sequences", s.rules.Name)
	}
	records, err := gdasql.LoadResult(ctx, tx, 0, fmt.Sprintf(s.rules.SequenceNext, name), []any{})
	if err != nil {
		return nil, fmt.Errorf("keygen: next value of %s: %w", name, err)
	}
	if len(records) == 0 || len(records[0].Values) == 0 {
		return nil, fmt.Errorf("keygen: sequence %s returned no value", name)
	}
	return records[0].Values[0], nil
}

// Generator calls a stored routine on a dedicated connection.
type Generator struct {
	db      *sql.DB
	rules   *dialect.Rules
	schema  schema.TypeSchema
	routine string
}

// NewGenerator returns a repository calling routine(schema, table, column).
func NewGenerator(db *sql.DB, rules *dialect.Rules, s schema.TypeSchema, routine string) *Generator {
	return &Generator{db: db, rules: rules, schema: s, routine: routine}
}

// IsPosCommand implements Repository.
func (*Generator) IsPosCommand(string) bool { return false }

// GetPrimaryKey opens a connection of its own, so the caller's transaction
// is neither used nor blocked. The connection is closed before returning.
func (g *Generator) GetPrimaryKey(ctx context.Context, _ dialect.ExecQuerier, entity string) (v any, err error) {
	md, err := g.schema.GetTypeMetadata(entity)
	if err != nil {
		return nil, err
	}
	id, ok := schema.IdentityProperty(md)
	if !ok {
		return nil, fmt.Errorf("keygen: %s has no identity property", entity)
	}
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("keygen: open connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	t := md.TableName()
	args := []string{t.Schema, t.Name, id.ColumnName()}
	switch g.rules.Generator {
	case dialect.GeneratorOutParam:
		v, err = g.callOut(ctx, conn, args, id)
	default:
		v, err = g.selectValue(ctx, conn, args)
	}
	if err != nil {
		return nil, fmt.Errorf("keygen: %s for %s: %w", g.routine, entity, err)
	}
	if v == nil {
		return nil, fmt.Errorf("keygen: %s returned no value for %s", g.routine, entity)
	}
	return v, nil
}

var generatorArgs = []string{"Schema", "Table", "Column"}

func (g *Generator) selectValue(ctx context.Context, conn *sql.Conn, args []string) (any, error) {
	marks := make([]string, len(args))
	values := make([]any, len(args))
	for i, a := range args {
		marks[i] = g.rules.Bind(generatorArgs[i], i+1)
		if g.rules.Placeholder == dialect.PlaceholderNamed {
			values[i] = sql.Named(generatorArgs[i], a)
		} else {
			values[i] = a
		}
	}
	var v any
	query := "SELECT " + g.rules.Call(g.routine, marks)
	if err := conn.QueryRowContext(ctx, query, values...).Scan(&v); err != nil {
		return nil, err
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	return v, nil
}

func (g *Generator) callOut(ctx context.Context, conn *sql.Conn, args []string, id schema.PropertyMetadata) (any, error) {
	marks := make([]string, 0, len(args)+1)
	values := make([]any, 0, len(args)+1)
	for i, a := range args {
		marks = append(marks, g.rules.Bind(generatorArgs[i], i+1))
		values = append(values, sql.Named(generatorArgs[i], a))
	}
	dest := g.rules.OutDest(id.DbType())
	marks = append(marks, g.rules.Bind("Value", len(args)+1))
	values = append(values, sql.Named("Value", sql.Out{Dest: dest}))
	query := g.rules.BlockBegin + g.routine + "(" + strings.Join(marks, ", ") + ");" + g.rules.BlockEnd
	if _, err := conn.ExecContext(ctx, query, values...); err != nil {
		return nil, err
	}
	return dialect.Deref(dest), nil
}
