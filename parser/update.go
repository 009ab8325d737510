package parser

import (
	"strings"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/expr"
	"github.com/fabrimaciel/gda/schema"
)

type matchTerm struct {
	param gda.Parameter
	prop  schema.PropertyMetadata
}

// update renders UPDATE table SET fields WHERE predicate. Key parameters form
// the predicate unless the action carries a conditional or a query.
func (p *Parser) update(r *renderer) (string, error) {
	a := p.action
	override := a.HasPredicateOverride()
	vars := p.predicateVariables()

	var (
		sets    []string
		keys    []matchTerm
		dropped []string
	)
	for _, param := range a.Parameters {
		prop, err := r.md.Property(param.Name)
		if err != nil {
			if override && vars[strings.ToLower(gda.ParameterName(param.Name))] {
				continue
			}
			return "", err
		}
		if prop.ParameterType().IsKey() {
			if override {
				dropped = append(dropped, param.Name)
				continue
			}
			keys = append(keys, matchTerm{param, prop})
			continue
		}
		if prop.Direction() == gda.DirectionOutput {
			continue
		}
		v, err := p.value(r, param, prop)
		if err != nil {
			return "", err
		}
		sets = append(sets, r.rules.QuoteIdent(prop.ColumnName())+"="+v)
	}
	if len(sets) == 0 {
		return "", &gda.UnsupportedOperationError{Dialect: r.rules.Name, Op: "update without fields of " + a.EntityFullName}
	}
	if len(dropped) > 0 {
		p.logger.Debug("key parameters not used by predicate override",
			"action", a.String(), "parameters", dropped)
	}
	where, err := p.where(r, keys, len(keys) > 0, "update")
	if err != nil {
		return "", err
	}
	stmt := "UPDATE " + r.table(r.md) + " SET " + strings.Join(sets, ", ") + " WHERE " + where
	return r.statements(r.captureRowCount([]string{stmt})), nil
}

// delete renders DELETE FROM table WHERE predicate. Every parameter takes
// part in the predicate unless the action carries a conditional or a query.
func (p *Parser) delete(r *renderer) (string, error) {
	a := p.action
	var (
		terms  []matchTerm
		hasKey bool
	)
	if a.HasPredicateOverride() {
		if len(a.Parameters) > 0 {
			p.logger.Debug("parameters not used by predicate override", "action", a.String())
		}
	} else {
		for _, param := range a.Parameters {
			prop, err := r.md.Property(param.Name)
			if err != nil {
				return "", err
			}
			hasKey = hasKey || prop.ParameterType().IsKey()
			terms = append(terms, matchTerm{param, prop})
		}
	}
	where, err := p.where(r, terms, hasKey, "delete")
	if err != nil {
		return "", err
	}
	stmt := "DELETE FROM " + r.table(r.md) + " WHERE " + where
	return r.statements(r.captureRowCount([]string{stmt})), nil
}

// where renders the predicate of an update or delete. The row-version check
// follows the key terms and is added only when at least one key is matched
// and no override predicate exists.
func (p *Parser) where(r *renderer, terms []matchTerm, hasKey bool, op string) (string, error) {
	a := p.action
	var b strings.Builder
	switch {
	case a.Conditional != nil:
		if err := r.container(&b, a.Conditional, false); err != nil {
			return "", err
		}
		return b.String(), nil
	case a.Query != nil:
		if a.Query.Where.Len() == 0 {
			return "", &gda.MissingPredicateError{Entity: a.EntityFullName, Op: op}
		}
		defer r.push(a.Query)()
		r.scopes[len(r.scopes)-1].bare = true
		if err := r.container(&b, a.Query.Where, false); err != nil {
			return "", err
		}
		return b.String(), nil
	}
	if len(terms) == 0 {
		return "", &gda.MissingPredicateError{Entity: a.EntityFullName, Op: op}
	}
	parts := make([]string, 0, len(terms)+1)
	for _, t := range terms {
		ph := r.bind(0, t.param.Name, t.param.Value, gda.DirectionInput, dbType(t.param, t.prop))
		parts = append(parts, r.rules.QuoteIdent(t.prop.ColumnName())+"="+ph)
	}
	if hasKey && r.md.IsVersioned() {
		col, err := p.rowVersionColumn(r)
		if err != nil {
			return "", err
		}
		var rv any
		if a.RowVersion != nil {
			rv = *a.RowVersion
		}
		ph, _ := r.bindOwn(RowVersionParameter, rv, gda.DirectionInput, gda.DbInt64)
		parts = append(parts, col+"="+ph)
		r.cmd.RowVersion = true
	}
	return strings.Join(parts, " AND "), nil
}

// rowVersionColumn returns the mapped row-version column or the dialect
// pseudo-column.
func (p *Parser) rowVersionColumn(r *renderer) (string, error) {
	if c := r.md.RowVersionColumn(); c != "" {
		return r.rules.QuoteIdent(c), nil
	}
	if r.rules.RowVersionPseudoColumn != "" {
		return r.rules.RowVersionPseudoColumn, nil
	}
	return "", &gda.UnsupportedOperationError{Dialect: r.rules.Name, Op: "row version of " + p.action.EntityFullName}
}

// predicateVariables returns the lower-cased variable names of the
// conditional or query of the action.
func (p *Parser) predicateVariables() map[string]bool {
	vars := make(map[string]bool)
	var names []string
	switch a := p.action; {
	case a.Conditional != nil:
		names = expr.Variables(a.Conditional)
	case a.Query != nil && a.Query.Where != nil:
		names = expr.Variables(a.Query.Where)
	}
	for _, n := range names {
		vars[strings.ToLower(gda.ParameterName(n))] = true
	}
	return vars
}
