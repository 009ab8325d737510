package parser

import (
	"strings"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
)

// procedure renders the invocation of a stored procedure with one marker per
// parameter, in parameter order. Output parameters are bound by reference on
// dialects with named placeholders.
func (p *Parser) procedure(r *renderer) (string, error) {
	a := p.action
	name := a.ProcedureName
	if name == "" {
		name = a.EntityFullName
	}
	if r.rules.Procedure == dialect.ProcedureUnsupported {
		return "", &gda.UnsupportedOperationError{Dialect: r.rules.Name, Op: "procedure " + name}
	}
	marks := make([]string, 0, len(a.Parameters))
	for _, param := range a.Parameters {
		dir := param.Direction
		if r.rules.Placeholder != dialect.PlaceholderNamed {
			dir = gda.DirectionInput
		}
		marks = append(marks, r.bind(0, param.Name, param.Value, dir, param.DbType))
	}
	call := name + "(" + strings.Join(marks, ", ") + ")"
	if r.rules.Procedure == dialect.ProcedureBlock {
		return r.statements([]string{call}), nil
	}
	return "CALL " + call, nil
}
