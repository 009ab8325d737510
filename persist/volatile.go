package persist

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/fabrimaciel/gda"
	gdasql "github.com/fabrimaciel/gda/dialect/sql"
	"github.com/fabrimaciel/gda/expr"
	"github.com/fabrimaciel/gda/parser"
	"github.com/fabrimaciel/gda/schema"
)

// RetrievePersistenceVolatileProperties reads back the row version and the
// volatile properties of the rows written by the successful inserts and
// updates of actions, and merges them into results. results[i] must be the
// result of actions[i]. One query is issued per entity type.
func (b *Batch) RetrievePersistenceVolatileProperties(ctx context.Context, actions []*gda.Action, results []gda.Result) error {
	if len(actions) != len(results) {
		return fmt.Errorf("persist: %d actions and %d results", len(actions), len(results))
	}
	type group struct {
		md      schema.TypeMetadata
		indexes []int
		timeout time.Duration
	}
	var (
		order  []string
		groups = make(map[string]*group)
	)
	for i, a := range actions {
		if (a.Type != gda.ActionInsert && a.Type != gda.ActionUpdate) || !results[i].Success {
			continue
		}
		g, ok := groups[a.EntityFullName]
		if !ok {
			md, err := b.e.schema.GetTypeMetadata(a.EntityFullName)
			if err != nil {
				return err
			}
			g = &group{md: md}
			groups[a.EntityFullName] = g
			order = append(order, a.EntityFullName)
		}
		g.indexes = append(g.indexes, i)
		g.timeout = max(g.timeout, a.CommandTimeout)
	}
	for _, name := range order {
		g := groups[name]
		if !g.md.IsVersioned() && len(g.md.VolatileProperties()) == 0 {
			continue
		}
		if err := b.retrieve(ctx, g.md, g.indexes, g.timeout, results); err != nil {
			return err
		}
	}
	return nil
}

// retrieve selects the keys, the volatile properties and the row version of
// the rows of md written by results[indexes], matching every row by an OR
// of key groups.
func (b *Batch) retrieve(ctx context.Context, md schema.TypeMetadata, indexes []int, timeout time.Duration, results []gda.Result) error {
	keys := md.KeyProperties()
	if len(keys) == 0 {
		return &gda.UnsupportedOperationError{Dialect: b.e.rules.Name, Op: "read back of " + md.FullName() + " without keys"}
	}
	q := expr.NewQuery(md.FullName(), "")
	for _, p := range append(keys, md.VolatileProperties()...) {
		q.Projection = append(q.Projection, expr.Projection{Term: expr.Col(p.Name()), Alias: p.Name()})
	}
	version := b.rowVersionTerm(md)
	if version != nil {
		q.Projection = append(q.Projection, expr.Projection{Term: version, Alias: parser.RowVersionParameter})
	}

	where := &expr.Container{}
	rows := make(map[string][]int)
	for n, i := range indexes {
		group := &expr.Container{}
		values := make([]any, 0, len(keys))
		for j, k := range keys {
			p, ok := results[i].Parameters.Get(k.Name())
			if !ok || p.Value == nil {
				break
			}
			name := fmt.Sprintf("k%d_%d", n, j)
			group.And(expr.Eq(expr.Col(k.Name()), expr.Var(name)))
			q.Add(name, p.Value)
			values = append(values, p.Value)
		}
		if len(values) < len(keys) {
			b.e.logger.DebugContext(ctx, "read back skipped, incomplete key", "entity", md.FullName(), "action", results[i].ActionID)
			continue
		}
		where.Or(group)
		k := keyString(values)
		rows[k] = append(rows[k], i)
	}
	if where.Len() == 0 {
		return nil
	}
	q.Filter(where)

	cmd, err := parser.RenderQuery(b.e.rules, b.e.schema, q)
	if err != nil {
		return err
	}
	args, _ := cmd.Args()
	b.e.logger.DebugContext(ctx, "read back volatile properties", "entity", md.FullName(), "sql", cmd.Text)
	records, err := gdasql.LoadResult(ctx, b.tx, timeout, cmd.Text, args)
	if err != nil {
		return fmt.Errorf("persist: read back %s: %w", md.FullName(), err)
	}

	for _, rec := range records {
		values := make([]any, len(keys))
		for j, k := range keys {
			values[j], _ = rec.Get(k.Name())
		}
		for _, i := range rows[keyString(values)] {
			for _, p := range md.VolatileProperties() {
				v, _ := rec.Get(p.Name())
				results[i].Parameters.Set(gda.Parameter{
					Name:      p.Name(),
					Value:     v,
					Direction: gda.DirectionOutput,
					DbType:    p.DbType(),
				})
			}
			if version == nil {
				continue
			}
			if v, ok := rec.Get(parser.RowVersionParameter); ok {
				if rv, ok := toInt64(v); ok {
					results[i].RowVersion = &rv
				}
			}
		}
	}
	return nil
}

// rowVersionTerm returns the selected row-version column of md, or nil when
// md is not versioned or the dialect has no row-version pseudo-column.
func (b *Batch) rowVersionTerm(md schema.TypeMetadata) expr.Term {
	if !md.IsVersioned() {
		return nil
	}
	if c := md.RowVersionColumn(); c != "" {
		return expr.Const(b.e.rules.QuoteIdent(c))
	}
	if c := b.e.rules.RowVersionPseudoColumn; c != "" {
		return expr.Const(c)
	}
	return nil
}

// toInt64 converts integer-like driver and caller values.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case nil, bool:
		return 0, false
	case []byte:
		v = string(x)
	}
	n, err := cast.ToInt64E(v)
	return n, err == nil
}

// virtualKey reports whether v is a negative integer key standing for a row
// inserted earlier in the batch. Strings and floats are never virtual.
func virtualKey(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		return n, n < 0
	}
	return 0, false
}

// keyString renders key values so that equal keys read from the database and
// held by the caller compare equal whatever their integer width.
func keyString(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if n, ok := toInt64(v); ok {
			parts[i] = strconv.FormatInt(n, 10)
			continue
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x00")
}
