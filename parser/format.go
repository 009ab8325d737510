package parser

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
	"github.com/fabrimaciel/gda/expr"
)

// format appends the SQL of t to b.
func (r *renderer) format(b *strings.Builder, t expr.Term) error {
	switch t := t.(type) {
	case *expr.Constant:
		b.WriteString(t.Text)
	case *expr.Column:
		col, err := r.column(t)
		if err != nil {
			return err
		}
		b.WriteString(col)
	case *expr.Variable:
		return r.variable(b, t)
	case *expr.ValuesArray:
		return r.values(b, t)
	case *expr.FunctionCall:
		return r.call(b, t)
	case *expr.Formula:
		return r.formula(b, t)
	case *expr.Conditional:
		return r.conditional(b, t)
	case *expr.Container:
		return r.container(b, t, true)
	case *expr.QueryTerm:
		return r.queryTerm(b, t)
	case *expr.Case:
		return r.caseTerm(b, t)
	case *expr.Minus:
		b.WriteByte('-')
		if _, ok := t.Term.(*expr.Formula); ok {
			b.WriteByte('(')
			defer b.WriteByte(')')
		}
		return r.format(b, t.Term)
	case nil:
		return &expr.InvalidTermError{Reason: "missing term"}
	default:
		return &gda.UnsupportedTermError{Term: t}
	}
	return nil
}

// container appends the members of c joined by their logical operators.
func (r *renderer) container(b *strings.Builder, c *expr.Container, nested bool) error {
	if c == nil {
		return &expr.InvalidTermError{Term: c, Reason: "missing container"}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if nested {
		b.WriteByte('(')
	}
	for i, t := range c.Conditionals {
		if i > 0 {
			b.WriteString(" " + c.Operators[i-1].String() + " ")
		}
		if err := r.format(b, t); err != nil {
			return err
		}
	}
	if nested {
		b.WriteByte(')')
	}
	return nil
}

func (r *renderer) conditional(b *strings.Builder, c *expr.Conditional) error {
	switch c.Operator {
	case expr.OpExists, expr.OpNotExists:
		return r.format(b, c.Left)
	case expr.OpEqual, expr.OpNotEqual:
		if v, ok := c.Right.(*expr.Variable); ok && r.isNull(v) {
			if err := r.format(b, c.Left); err != nil {
				return err
			}
			if c.Operator == expr.OpEqual {
				b.WriteString(" IS NULL")
			} else {
				b.WriteString(" IS NOT NULL")
			}
			return nil
		}
	}
	if err := r.format(b, c.Left); err != nil {
		return err
	}
	b.WriteString(" " + c.Operator.String() + " ")
	return r.format(b, c.Right)
}

// isNull reports whether v is bound to a nil value.
func (r *renderer) isNull(v *expr.Variable) bool {
	value, _, _, ok := r.lookup(v.Name)
	if !ok {
		return false
	}
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func (r *renderer) formula(b *strings.Builder, f *expr.Formula) error {
	if err := expr.Validate(f); err != nil {
		return err
	}
	for i, t := range f.Terms {
		if i > 0 {
			b.WriteString(" " + f.Operators[i-1].String() + " ")
		}
		if err := r.format(b, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) call(b *strings.Builder, f *expr.FunctionCall) error {
	name := strings.ToUpper(f.Name)
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		// Date-part keywords and CAST targets are written as bare names.
		if c, ok := a.(*expr.Column); ok && c.Owner == "" &&
			((i == 0 && dialect.DatePartFunctions[name]) || (i == 1 && name == "CAST")) {
			args[i] = c.Name
			continue
		}
		var ab strings.Builder
		if err := r.format(&ab, a); err != nil {
			return err
		}
		args[i] = ab.String()
	}
	b.WriteString(r.rules.Call(f.Name, args))
	return nil
}

func (r *renderer) values(b *strings.Builder, v *expr.ValuesArray) error {
	if len(v.Values) == 1 {
		if x, ok := v.Values[0].(*expr.Variable); ok {
			if value, _, _, found := r.lookup(x.Name); found {
				if _, ok := value.(expr.Queryable); ok {
					return r.variable(b, x)
				}
				if items, ok := list(value); ok {
					if len(items) == 0 {
						return &expr.InvalidTermError{Term: x, Reason: "empty list " + x.Name}
					}
					return r.expand(b, x.Name, items)
				}
			}
		}
	}
	b.WriteByte('(')
	for i, t := range v.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := r.format(b, t); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

// expand binds every element of a non-empty slice variable.
func (r *renderer) expand(b *strings.Builder, name string, items []any) error {
	_, t, scopeID, _ := r.lookup(name)
	b.WriteByte('(')
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.bind(scopeID, gda.ParameterName(name)+"_"+strconv.Itoa(i+1), item, gda.DirectionInput, t))
	}
	b.WriteByte(')')
	return nil
}

// list returns the elements of slice values other than []byte.
func list(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func (r *renderer) caseTerm(b *strings.Builder, c *expr.Case) error {
	if err := expr.Validate(c); err != nil {
		return err
	}
	b.WriteString("CASE")
	if c.Input != nil {
		b.WriteByte(' ')
		if err := r.format(b, c.Input); err != nil {
			return err
		}
	}
	for _, w := range c.Whens {
		b.WriteString(" WHEN ")
		if err := r.format(b, w.Condition); err != nil {
			return err
		}
		b.WriteString(" THEN ")
		if err := r.format(b, w.Result); err != nil {
			return err
		}
	}
	if c.Else != nil {
		b.WriteString(" ELSE ")
		if err := r.format(b, c.Else); err != nil {
			return err
		}
	}
	b.WriteString(" END")
	return nil
}

func (r *renderer) queryTerm(b *strings.Builder, q *expr.QueryTerm) error {
	switch q.Existence {
	case expr.Exists:
		b.WriteString("EXISTS ")
	case expr.NotExists:
		b.WriteString("NOT EXISTS ")
	}
	return r.subquery(b, q.Query)
}

// variable binds the value of a variable, or renders the sub-query held by
// an action parameter in its place and consumes that parameter.
func (r *renderer) variable(b *strings.Builder, v *expr.Variable) error {
	value, t, scopeID, ok := r.lookup(v.Name)
	if !ok {
		return &expr.InvalidTermError{Term: v, Reason: "unknown variable " + v.Name}
	}
	if q, ok := value.(expr.Queryable); ok {
		if scopeID == 0 {
			r.consume(v.Name)
		}
		sub, err := q.BuildQuery()
		if err != nil {
			return err
		}
		return r.subquery(b, sub)
	}
	b.WriteString(r.bind(scopeID, v.Name, value, gda.DirectionInput, t))
	return nil
}

// lookup resolves a variable in the innermost query scope first and in the
// action parameters last. Scope 0 is the action.
func (r *renderer) lookup(name string) (any, gda.DbType, int, bool) {
	name = gda.ParameterName(name)
	for i := len(r.scopes) - 1; i >= 0; i-- {
		s := r.scopes[i]
		for _, p := range s.query.Parameters {
			if strings.EqualFold(gda.ParameterName(p.Name), name) {
				return p.Value, gda.DbObject, s.id, true
			}
		}
	}
	if p, ok := r.p.action.Parameters.Get(name); ok {
		if r.md != nil {
			if pm, err := r.md.Property(name); err == nil {
				return p.Value, dbType(p, pm), 0, true
			}
		}
		return p.Value, p.DbType, 0, true
	}
	return nil, gda.DbObject, 0, false
}
