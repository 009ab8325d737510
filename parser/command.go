package parser

import (
	"database/sql"
	"reflect"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
)

// Binding is one argument bound to a rendered command.
type Binding struct {
	Name      string
	Value     any
	Direction gda.Direction
	DbType    gda.DbType
	// TypeName is the engine type of DbType.
	TypeName string
}

// Command is the rendered form of an action.
type Command struct {
	Text     string
	Bindings []Binding
	// Residual holds the action parameters left after sub-query values
	// were consumed by the rendering.
	Residual gda.Parameters
	// Identity names the identity parameter of an insert, empty when the
	// type has no identity.
	Identity string
	// IdentityColumn is the column of the identity.
	IdentityColumn string
	// PostIdentity reports that the identity is generated by the insert.
	PostIdentity bool
	// Returning reports that the command yields the identity as a row.
	Returning bool
	// RowCount names the output binding receiving the affected row count.
	RowCount string
	// RowVersion reports that the predicate checks the row version.
	RowVersion bool

	rules *dialect.Rules
}

// Args returns the driver arguments of the command and the destinations of
// its output bindings, keyed by binding name.
func (c *Command) Args() ([]any, map[string]any) {
	args := make([]any, 0, len(c.Bindings))
	outs := make(map[string]any)
	named := c.rules != nil && c.rules.Placeholder == dialect.PlaceholderNamed
	for _, b := range c.Bindings {
		if !named {
			args = append(args, b.Value)
			continue
		}
		if !b.Direction.IsOutput() {
			args = append(args, sql.Named(b.Name, b.Value))
			continue
		}
		dest := c.rules.OutDest(b.DbType)
		in := b.Direction == gda.DirectionInputOutput
		if in {
			setDest(dest, b.Value)
		}
		outs[b.Name] = dest
		args = append(args, sql.Named(b.Name, sql.Out{Dest: dest, In: in}))
	}
	return args, outs
}

// Binding returns the binding called name.
func (c *Command) Binding(name string) (Binding, bool) {
	for _, b := range c.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// setDest stores v into the pointer dest when the types are convertible.
func setDest(dest, v any) {
	if v == nil {
		return
	}
	elem := reflect.ValueOf(dest).Elem()
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(elem.Type()):
		elem.Set(rv)
	case numeric(rv.Kind()) && numeric(elem.Kind()):
		elem.Set(rv.Convert(elem.Type()))
	}
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
