package gda

import (
	"fmt"
	"strings"
	"time"

	"github.com/fabrimaciel/gda/expr"
)

// ActionType identifies the kind of persistence operation an Action describes.
type ActionType int

// Action types.
const (
	ActionInsert ActionType = iota + 1
	ActionUpdate
	ActionDelete
	ActionProcedure
)

var actionTypeNames = map[ActionType]string{
	ActionInsert:    "Insert",
	ActionUpdate:    "Update",
	ActionDelete:    "Delete",
	ActionProcedure: "Procedure",
}

// String returns the name of the action type.
func (t ActionType) String() string {
	if s, ok := actionTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ActionType(%d)", int(t))
}

// ParseActionType parses an action type name (case-insensitive).
func ParseActionType(s string) (ActionType, error) {
	for t, name := range actionTypeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("gda: unknown action type %q", s)
}

// Direction is the binding direction of a parameter.
type Direction int

// Parameter directions.
const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionInputOutput
	DirectionReturnValue
)

// String returns the name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "Input"
	case DirectionOutput:
		return "Output"
	case DirectionInputOutput:
		return "InputOutput"
	case DirectionReturnValue:
		return "ReturnValue"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	for _, d := range []Direction{DirectionInput, DirectionOutput, DirectionInputOutput, DirectionReturnValue} {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("gda: unknown direction %q", s)
}

// IsOutput reports whether values flow back from the database for this direction.
func (d Direction) IsOutput() bool {
	return d != DirectionInput
}

// DbType is the database-neutral type of a parameter value.
type DbType int

// Database types.
const (
	DbObject DbType = iota
	DbString
	DbInt16
	DbInt32
	DbInt64
	DbBoolean
	DbDecimal
	DbDouble
	DbDateTime
	DbDateTimeOffset
	DbGuid
	DbBinary
)

var dbTypeNames = [...]string{
	DbObject:         "Object",
	DbString:         "String",
	DbInt16:          "Int16",
	DbInt32:          "Int32",
	DbInt64:          "Int64",
	DbBoolean:        "Boolean",
	DbDecimal:        "Decimal",
	DbDouble:         "Double",
	DbDateTime:       "DateTime",
	DbDateTimeOffset: "DateTimeOffset",
	DbGuid:           "Guid",
	DbBinary:         "Binary",
}

// String returns the name of the type.
func (t DbType) String() string {
	if t >= 0 && int(t) < len(dbTypeNames) {
		return dbTypeNames[t]
	}
	return fmt.Sprintf("DbType(%d)", int(t))
}

// ParseDbType parses a type name (case-insensitive).
func ParseDbType(s string) (DbType, error) {
	for i, name := range dbTypeNames {
		if strings.EqualFold(name, s) {
			return DbType(i), nil
		}
	}
	return 0, fmt.Errorf("gda: unknown db type %q", s)
}

// Parameter is one named value of a persistence action.
//
// Value may be a plain Go value or a nested term understood by the parser:
// *expr.PropertyReference, *expr.ExpressionParameter, *expr.Query or any
// expr.Queryable.
type Parameter struct {
	Name      string
	Value     any
	Direction Direction
	DbType    DbType
	Size      int
}

// NewParameter returns an input parameter.
func NewParameter(name string, value any) Parameter {
	return Parameter{Name: name, Value: value}
}

// ParameterName normalizes a parameter or variable name by removing the
// placeholder prefix used in expression text (?Name, :Name, @Name).
func ParameterName(name string) string {
	return strings.TrimLeft(name, "?:@")
}

// Parameters is an ordered list of parameters.
type Parameters []Parameter

// Index returns the position of the named parameter, or -1.
func (ps Parameters) Index(name string) int {
	name = ParameterName(name)
	for i := range ps {
		if strings.EqualFold(ParameterName(ps[i].Name), name) {
			return i
		}
	}
	return -1
}

// Get returns the named parameter.
func (ps Parameters) Get(name string) (Parameter, bool) {
	if i := ps.Index(name); i >= 0 {
		return ps[i], true
	}
	return Parameter{}, false
}

// Set replaces the parameter with the same name or appends it.
func (ps *Parameters) Set(p Parameter) {
	if i := ps.Index(p.Name); i >= 0 {
		(*ps)[i] = p
		return
	}
	*ps = append(*ps, p)
}

// Clone returns a copy of the list.
func (ps Parameters) Clone() Parameters {
	if ps == nil {
		return nil
	}
	out := make(Parameters, len(ps))
	copy(out, ps)
	return out
}

// Action describes one insert, update, delete or procedure operation against a
// mapped entity.
type Action struct {
	ID             int
	Type           ActionType
	EntityFullName string
	Parameters     Parameters
	// Conditional restricts an update or delete to a computed predicate
	// instead of key matching.
	Conditional *expr.Container
	// Query supplies the predicate through its WHERE clause when Conditional is nil.
	Query      *expr.Query
	RowVersion *int64
	// CommandTimeout applies to every command the action issues. Zero means no timeout.
	CommandTimeout time.Duration
	// ProcedureName is the routine invoked by a procedure action.
	ProcedureName string

	OnError    func(*Action, error)
	OnExecuted func(*Action)
}

// NotifyError reports an execution failure to the action hook.
func (a *Action) NotifyError(err error) {
	if a.OnError != nil {
		a.OnError(a, err)
	}
}

// NotifyExecution reports a successful execution to the action hook.
func (a *Action) NotifyExecution() {
	if a.OnExecuted != nil {
		a.OnExecuted(a)
	}
}

// HasPredicateOverride reports whether the update/delete predicate comes from
// Conditional or Query rather than from key matching.
func (a *Action) HasPredicateOverride() bool {
	return a.Conditional != nil || a.Query != nil
}

// String returns a short description used in logs.
func (a *Action) String() string {
	return fmt.Sprintf("%s %s #%d", a.Type, a.EntityFullName, a.ID)
}

// Result is the outcome of one executed action.
type Result struct {
	ActionID       int
	Success        bool
	AffectedRows   int64
	FailureMessage string
	Parameters     Parameters
	RowVersion     *int64
}

// RowsNotAffected prefixes the failure message of a row-version conflict.
const RowsNotAffected = "rows not affected"

// NewConflictResult returns the result reported when a row-version checked
// update or delete matched no rows.
func NewConflictResult(a *Action) Result {
	rv := "<nil>"
	if a.RowVersion != nil {
		rv = fmt.Sprint(*a.RowVersion)
	}
	return Result{
		ActionID:       a.ID,
		AffectedRows:   -1,
		FailureMessage: fmt.Sprintf("%s: %s with row version %s was changed or removed", RowsNotAffected, a.EntityFullName, rv),
	}
}

// IsConcurrencyFailure reports whether r is a row-version conflict.
func IsConcurrencyFailure(r Result) bool {
	return !r.Success && r.AffectedRows == -1 && strings.HasPrefix(r.FailureMessage, RowsNotAffected)
}
