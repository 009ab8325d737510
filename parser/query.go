package parser

import (
	"strings"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/expr"
)

// subquery appends q in parentheses.
func (r *renderer) subquery(b *strings.Builder, q *expr.Query) error {
	b.WriteByte('(')
	if err := r.query(b, q); err != nil {
		return err
	}
	b.WriteByte(')')
	return nil
}

// query appends a SELECT statement. Variables of q resolve to its own
// parameters before the outer ones.
func (r *renderer) query(b *strings.Builder, q *expr.Query) error {
	if q == nil || len(q.Entities) == 0 {
		return &expr.InvalidTermError{Term: &expr.QueryTerm{Query: q}, Reason: "query without entities"}
	}
	defer r.push(q)()

	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(q.Projection) == 0 {
		b.WriteByte('*')
	}
	for i, p := range q.Projection {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := r.format(b, p.Term); err != nil {
			return err
		}
		if p.Alias != "" {
			b.WriteString(" AS " + r.rules.QuoteIdent(p.Alias))
		}
	}
	b.WriteString(" FROM ")
	for i, e := range q.Entities {
		md, err := r.p.schema.GetTypeMetadata(e.FullName)
		if err != nil {
			return err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.table(md))
		if e.Alias != "" {
			b.WriteString(" " + e.Alias)
		}
	}
	if q.Where.Len() > 0 {
		b.WriteString(" WHERE ")
		if err := r.container(b, q.Where, false); err != nil {
			return err
		}
	}
	if len(q.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		if err := r.list(b, q.GroupBy); err != nil {
			return err
		}
	}
	if q.Having.Len() > 0 {
		b.WriteString(" HAVING ")
		if err := r.container(b, q.Having, false); err != nil {
			return err
		}
	}
	for i, s := range q.Sort {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		if err := r.format(b, s.Term); err != nil {
			return err
		}
		if s.Descending {
			b.WriteString(" DESC")
		}
	}
	r.rules.Paginate(b, q.Skip, q.Take)
	return nil
}

func (r *renderer) list(b *strings.Builder, terms []expr.Term) error {
	for i, t := range terms {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := r.format(b, t); err != nil {
			return err
		}
	}
	return nil
}

// push opens the variable and alias scope of q and returns its closer.
func (r *renderer) push(q *expr.Query) func() {
	r.nextID++
	r.scopes = append(r.scopes, &scope{id: r.nextID, query: q})
	return func() { r.scopes = r.scopes[:len(r.scopes)-1] }
}

// column resolves a column through the innermost query declaring its owner,
// falling back to the action entity.
func (r *renderer) column(c *expr.Column) (string, error) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		e, ok := r.scopes[i].query.EntityByAlias(c.Owner)
		if !ok {
			continue
		}
		md, err := r.p.schema.GetTypeMetadata(e.FullName)
		if err != nil {
			return "", err
		}
		prop, err := md.Property(c.Name)
		if err != nil {
			return "", err
		}
		col := r.rules.QuoteIdent(prop.ColumnName())
		if e.Alias != "" && !r.scopes[i].bare {
			return e.Alias + "." + col, nil
		}
		return col, nil
	}
	if r.md == nil {
		return "", gda.NewTypeNotMappedError(r.p.action.EntityFullName)
	}
	if c.Owner != "" && !r.ownsEntity(c.Owner) {
		return "", &expr.InvalidTermError{Term: c, Reason: "unknown alias " + c.Owner}
	}
	prop, err := r.md.Property(c.Name)
	if err != nil {
		return "", err
	}
	col := r.rules.QuoteIdent(prop.ColumnName())
	if c.Owner != "" && len(r.scopes) > 0 {
		// Correlated reference to the action table from a sub-query.
		return r.table(r.md) + "." + col, nil
	}
	return col, nil
}

// ownsEntity reports whether owner names the action entity.
func (r *renderer) ownsEntity(owner string) bool {
	full := r.md.FullName()
	short := full[strings.LastIndexByte(full, '.')+1:]
	return strings.EqualFold(owner, full) ||
		strings.EqualFold(owner, short) ||
		strings.EqualFold(owner, r.md.TableName().Name)
}
