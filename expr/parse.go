package expr

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// exprLexer tokenizes expression text.
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "Variable", Pattern: `[?:@][A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Operator", Pattern: `<>|!=|<=|>=|[=<>+\-*/^%]`},
	{Name: "Punct", Pattern: `[(),.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// logicalNode is a chain of predicates joined by AND/OR.
type logicalNode struct {
	Head *predicateNode `@@`
	Tail []*logicalTail `@@*`
}

type logicalTail struct {
	Op   string         `@("AND" | "OR")`
	Pred *predicateNode `@@`
}

type predicateNode struct {
	Left  *formulaNode    `@@`
	Null  *nullTestNode   `( @@`
	Match *matchNode      `| @@`
	Cmp   *comparisonNode `| @@ )?`
}

type nullTestNode struct {
	Not bool `"IS" @"NOT"? "NULL"`
}

type matchNode struct {
	Not  bool           `@"NOT"?`
	In   []*formulaNode `( "IN" "(" @@ ( "," @@ )* ")"`
	Like *formulaNode   `| "LIKE" @@ )`
}

type comparisonNode struct {
	Op    string       `@("=" | "<>" | "!=" | "<=" | ">=" | "<" | ">")`
	Right *formulaNode `@@`
}

type formulaNode struct {
	Head *operandNode   `@@`
	Tail []*formulaTail `@@*`
}

type formulaTail struct {
	Op      string       `@("+" | "-" | "*" | "/" | "^" | "%")`
	Operand *operandNode `@@`
}

type operandNode struct {
	Minus    *operandNode `  "-" @@`
	Number   *string      `| @Number`
	String   *string      `| @String`
	Variable *string      `| @Variable`
	Null     bool         `| @"NULL"`
	Call     *callNode    `| @@`
	Column   *columnNode  `| @@`
	Group    *logicalNode `| "(" @@ ")"`
}

type callNode struct {
	Name string         `@Ident "("`
	Args []*logicalNode `( @@ ( "," @@ )* )? ")"`
}

type columnNode struct {
	Parts []string `@Ident ( "." @Ident )*`
}

var exprParser = participle.MustBuild[logicalNode](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(4),
)

// Parse parses expression text such as
//
//	Status = 'ACTIVE' AND (Total > ?Min OR Code IN (1, 2))
//
// Bare identifiers become columns (alias.Property selects an aliased entity),
// ?Name, :Name and @Name become variables, and literals become constants.
// A single predicate is returned as is; a chain of AND/OR becomes a *Container.
func Parse(text string) (Term, error) {
	node, err := exprParser.ParseString("", text)
	if err != nil {
		return nil, fmt.Errorf("expr: parse %q: %w", text, err)
	}
	return node.term()
}

// ParseConditional parses text and always returns a container.
func ParseConditional(text string) (*Container, error) {
	t, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if c, ok := t.(*Container); ok {
		return c, nil
	}
	return Where(t), nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) Term {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

func (n *logicalNode) term() (Term, error) {
	head, err := n.Head.term()
	if err != nil {
		return nil, err
	}
	if len(n.Tail) == 0 {
		return head, nil
	}
	c := Where(head)
	for _, tail := range n.Tail {
		t, err := tail.Pred.term()
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(tail.Op, "OR") {
			c.Or(t)
		} else {
			c.And(t)
		}
	}
	return c, nil
}

func (n *predicateNode) term() (Term, error) {
	left, err := n.Left.term()
	if err != nil {
		return nil, err
	}
	switch {
	case n.Null != nil:
		op := OpIs
		if n.Null.Not {
			op = OpIsNot
		}
		return Compare(left, op, Const("NULL")), nil
	case n.Match != nil && n.Match.Like != nil:
		right, err := n.Match.Like.term()
		if err != nil {
			return nil, err
		}
		op := OpLike
		if n.Match.Not {
			op = OpNotLike
		}
		return Compare(left, op, right), nil
	case n.Match != nil:
		values := &ValuesArray{}
		for _, v := range n.Match.In {
			t, err := v.term()
			if err != nil {
				return nil, err
			}
			values.Values = append(values.Values, t)
		}
		op := OpIn
		if n.Match.Not {
			op = OpNotIn
		}
		return Compare(left, op, values), nil
	case n.Cmp != nil:
		op, err := ParseOperator(n.Cmp.Op)
		if err != nil {
			return nil, err
		}
		right, err := n.Cmp.Right.term()
		if err != nil {
			return nil, err
		}
		return Compare(left, op, right), nil
	}
	return left, nil
}

func (n *formulaNode) term() (Term, error) {
	head, err := n.Head.term()
	if err != nil {
		return nil, err
	}
	if len(n.Tail) == 0 {
		return head, nil
	}
	f := &Formula{Terms: []Term{head}}
	for _, tail := range n.Tail {
		op, err := parseArithmetic(tail.Op)
		if err != nil {
			return nil, err
		}
		t, err := tail.Operand.term()
		if err != nil {
			return nil, err
		}
		f.Terms = append(f.Terms, t)
		f.Operators = append(f.Operators, op)
	}
	return f, nil
}

func (n *operandNode) term() (Term, error) {
	switch {
	case n.Minus != nil:
		t, err := n.Minus.term()
		if err != nil {
			return nil, err
		}
		return &Minus{Term: t}, nil
	case n.Number != nil:
		return Const(*n.Number), nil
	case n.String != nil:
		return Const(*n.String), nil
	case n.Variable != nil:
		return Var((*n.Variable)[1:]), nil
	case n.Null:
		return Const("NULL"), nil
	case n.Call != nil:
		call := &FunctionCall{Name: strings.ToUpper(n.Call.Name)}
		for _, a := range n.Call.Args {
			t, err := a.term()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, t)
		}
		return call, nil
	case n.Column != nil:
		parts := n.Column.Parts
		if len(parts) > 2 {
			return nil, fmt.Errorf("expr: column %q has too many qualifiers", strings.Join(parts, "."))
		}
		if len(parts) == 2 {
			return &Column{Owner: parts[0], Name: parts[1]}, nil
		}
		return &Column{Name: parts[0]}, nil
	case n.Group != nil:
		return n.Group.term()
	}
	return nil, fmt.Errorf("expr: empty operand")
}
