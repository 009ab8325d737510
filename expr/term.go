// Package expr holds the dialect-neutral expression model used by persistence
// actions: conditional trees, arithmetic formulas, function calls and
// sub-queries. The parser package renders these terms into dialect SQL.
package expr

import (
	"fmt"
	"strings"
)

// Term is a node of an expression tree. The set of implementations is closed;
// only the types declared in this package satisfy it.
type Term interface {
	term()
}

// Constant is literal SQL text. The caller is responsible for escaping.
type Constant struct {
	Text string
}

// Column references a mapped property. Owner is the alias of the entity the
// property belongs to; an empty Owner means the main entity.
type Column struct {
	Owner string
	Name  string
}

// Variable references a named parameter.
type Variable struct {
	Name string
}

// ValuesArray is a parenthesized list of terms, usually the right side of IN.
type ValuesArray struct {
	Values []Term
}

// FunctionCall invokes a SQL function. Names are rewritten per dialect.
type FunctionCall struct {
	Name string
	Args []Term
}

// Formula is a left-to-right arithmetic chain: N terms joined by N-1 operators.
type Formula struct {
	Terms     []Term
	Operators []ArithmeticOperator
}

// Conditional is a binary comparison.
type Conditional struct {
	Left     Term
	Operator Operator
	Right    Term
}

// Container joins N terms with N-1 logical operators, left to right.
// Nested containers are parenthesized when rendered.
type Container struct {
	Conditionals []Term
	Operators    []LogicalOperator
}

// QueryTerm embeds a sub-query.
type QueryTerm struct {
	Query *Query
	// Existence turns the term into an EXISTS test of the sub-query.
	Existence Existence
}

// Case is a CASE expression. Input is optional.
type Case struct {
	Input Term
	Whens []When
	Else  Term
}

// When is one WHEN ... THEN ... branch of a Case.
type When struct {
	Condition Term
	Result    Term
}

// Minus negates a term.
type Minus struct {
	Term Term
}

func (*Constant) term()     {}
func (*Column) term()       {}
func (*Variable) term()     {}
func (*ValuesArray) term()  {}
func (*FunctionCall) term() {}
func (*Formula) term()      {}
func (*Conditional) term()  {}
func (*Container) term()    {}
func (*QueryTerm) term()    {}
func (*Case) term()         {}
func (*Minus) term()        {}

// PropertyReference is a parameter value that copies another property of the
// same row, e.g. SET "A" = "B".
type PropertyReference struct {
	Property string
}

// ExpressionParameter is a parameter value given as expression text, parsed
// with Parse before rendering.
type ExpressionParameter struct {
	Expression string
}

// Operator is a comparison operator.
type Operator int

// Comparison operators.
const (
	OpEqual Operator = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpLike
	OpNotLike
	OpIn
	OpNotIn
	OpIs
	OpIsNot
	OpExists
	OpNotExists
)

var operatorText = [...]string{
	OpEqual:        "=",
	OpNotEqual:     "<>",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
	OpLike:         "LIKE",
	OpNotLike:      "NOT LIKE",
	OpIn:           "IN",
	OpNotIn:        "NOT IN",
	OpIs:           "IS",
	OpIsNot:        "IS NOT",
	OpExists:       "EXISTS",
	OpNotExists:    "NOT EXISTS",
}

// String returns the SQL text of the operator.
func (o Operator) String() string {
	if o >= 0 && int(o) < len(operatorText) {
		return operatorText[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator parses the SQL text of a comparison operator.
func ParseOperator(s string) (Operator, error) {
	s = strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	if s == "!=" {
		return OpNotEqual, nil
	}
	for i, text := range operatorText {
		if text == s {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("expr: unknown operator %q", s)
}

// LogicalOperator joins the members of a Container.
type LogicalOperator int

// Logical operators.
const (
	And LogicalOperator = iota
	Or
)

// String returns the SQL keyword.
func (o LogicalOperator) String() string {
	if o == Or {
		return "OR"
	}
	return "AND"
}

// ArithmeticOperator joins the members of a Formula.
type ArithmeticOperator int

// Arithmetic operators.
const (
	Add ArithmeticOperator = iota
	Subtract
	Multiply
	Divide
	Power
	Modulo
)

var arithmeticText = [...]string{
	Add:      "+",
	Subtract: "-",
	Multiply: "*",
	Divide:   "/",
	Power:    "^",
	Modulo:   "%",
}

// String returns the operator symbol.
func (o ArithmeticOperator) String() string {
	if o >= 0 && int(o) < len(arithmeticText) {
		return arithmeticText[o]
	}
	return fmt.Sprintf("ArithmeticOperator(%d)", int(o))
}

func parseArithmetic(s string) (ArithmeticOperator, error) {
	for i, text := range arithmeticText {
		if text == s {
			return ArithmeticOperator(i), nil
		}
	}
	return 0, fmt.Errorf("expr: unknown arithmetic operator %q", s)
}

// Existence selects an EXISTS test for a QueryTerm.
type Existence int

// Existence tests.
const (
	NoExistence Existence = iota
	Exists
	NotExists
)

// Col returns a column of the main entity, or of an aliased entity when name
// has the form "alias.Property".
func Col(name string) *Column {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return &Column{Owner: name[:i], Name: name[i+1:]}
	}
	return &Column{Name: name}
}

// Var returns a variable term.
func Var(name string) *Variable {
	return &Variable{Name: name}
}

// Const returns a constant term.
func Const(text string) *Constant {
	return &Constant{Text: text}
}

// Compare returns a conditional.
func Compare(left Term, op Operator, right Term) *Conditional {
	return &Conditional{Left: left, Operator: op, Right: right}
}

// Eq returns left = right.
func Eq(left, right Term) *Conditional {
	return Compare(left, OpEqual, right)
}

// Call returns a function call.
func Call(name string, args ...Term) *FunctionCall {
	return &FunctionCall{Name: name, Args: args}
}

// Where returns a container holding a single term.
func Where(t Term) *Container {
	return &Container{Conditionals: []Term{t}}
}

// And appends t joined with AND and returns the container.
func (c *Container) And(t Term) *Container {
	return c.append(And, t)
}

// Or appends t joined with OR and returns the container.
func (c *Container) Or(t Term) *Container {
	return c.append(Or, t)
}

func (c *Container) append(op LogicalOperator, t Term) *Container {
	if len(c.Conditionals) > 0 {
		c.Operators = append(c.Operators, op)
	}
	c.Conditionals = append(c.Conditionals, t)
	return c
}

// Len returns the number of conditionals.
func (c *Container) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Conditionals)
}
