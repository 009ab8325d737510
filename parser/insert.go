package parser

import (
	"fmt"
	"strings"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/expr"
	"github.com/fabrimaciel/gda/keygen"
	"github.com/fabrimaciel/gda/schema"
)

// insert renders INSERT INTO table (columns) VALUES (values). Dialects
// generating identities from a sequence fetch it first into the identity
// binding; post-command dialects skip the identity column.
func (p *Parser) insert(r *renderer) (string, error) {
	a := p.action
	md := r.md
	post := p.keys.IsPosCommand(a.EntityFullName)
	if id, ok := schema.IdentityProperty(md); ok {
		r.cmd.Identity = id.Name()
		r.cmd.IdentityColumn = id.ColumnName()
		r.cmd.PostIdentity = post
	}

	var (
		stmts      []string
		cols, vals []string
	)
	for _, param := range a.Parameters {
		prop, err := md.Property(param.Name)
		if err != nil {
			return "", err
		}
		if prop.Direction() == gda.DirectionOutput {
			continue
		}
		col := r.rules.QuoteIdent(prop.ColumnName())
		if prop.ParameterType() == schema.ParamIdentityKey {
			r.cmd.Identity = gda.ParameterName(param.Name)
			if post {
				continue
			}
			if namer, ok := p.keys.(keygen.SequenceNamer); ok {
				fetch, ph, err := p.sequenceFetch(r, namer, param, prop)
				if err != nil {
					return "", err
				}
				stmts = append(stmts, fetch)
				cols = append(cols, col)
				vals = append(vals, ph)
				continue
			}
		}
		v, err := p.value(r, param, prop)
		if err != nil {
			return "", err
		}
		cols = append(cols, col)
		vals = append(vals, v)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO " + r.table(md))
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		b.WriteString(" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")")
	}
	if post && r.cmd.IdentityColumn != "" && r.rules.Returning != "" {
		fmt.Fprintf(&b, r.rules.Returning, r.rules.QuoteIdent(r.cmd.IdentityColumn))
		r.cmd.Returning = true
	}
	stmts = append(stmts, b.String())
	return r.statements(r.captureRowCount(stmts)), nil
}

// sequenceFetch renders the statement reading the next sequence value into
// the identity binding.
func (p *Parser) sequenceFetch(r *renderer, namer keygen.SequenceNamer, param gda.Parameter, prop schema.PropertyMetadata) (string, string, error) {
	if r.rules.SequenceFetch == "" {
		return "", "", &gda.UnsupportedOperationError{Dialect: r.rules.Name, Op: "sequence identity"}
	}
	seq, err := namer.SequenceName(p.action.EntityFullName)
	if err != nil {
		return "", "", err
	}
	ph := r.bind(0, param.Name, nil, gda.DirectionOutput, dbType(param, prop))
	return fmt.Sprintf(r.rules.SequenceFetch, seq, ph), ph, nil
}

// value renders the value of a parameter assigned to a column: a binding,
// another column, an expression or a parenthesized sub-query.
func (p *Parser) value(r *renderer, param gda.Parameter, prop schema.PropertyMetadata) (string, error) {
	var b strings.Builder
	switch v := param.Value.(type) {
	case *expr.PropertyReference:
		ref, err := r.md.Property(v.Property)
		if err != nil {
			return "", err
		}
		return r.rules.QuoteIdent(ref.ColumnName()), nil
	case *expr.ExpressionParameter:
		t, err := expr.Parse(v.Expression)
		if err != nil {
			return "", &expr.InvalidTermError{Reason: err.Error()}
		}
		if err := r.format(&b, t); err != nil {
			return "", err
		}
		return b.String(), nil
	case expr.Queryable:
		q, err := v.BuildQuery()
		if err != nil {
			return "", err
		}
		r.consume(param.Name)
		if err := r.subquery(&b, q); err != nil {
			return "", err
		}
		return b.String(), nil
	case expr.Term:
		if err := r.format(&b, v); err != nil {
			return "", err
		}
		return b.String(), nil
	}
	return r.bind(0, param.Name, param.Value, gda.DirectionInput, dbType(param, prop)), nil
}
