package expr

import (
	"errors"
	"fmt"
)

// ErrInvalidTerm is matched by InvalidTermError through errors.Is.
var ErrInvalidTerm = errors.New("expr: invalid term")

// InvalidTermError reports a structurally malformed term.
type InvalidTermError struct {
	Term   Term
	Reason string
}

// Error returns the error string.
func (e *InvalidTermError) Error() string {
	return fmt.Sprintf("expr: invalid %T: %s", e.Term, e.Reason)
}

// Is reports whether the target error matches ErrInvalidTerm.
func (e *InvalidTermError) Is(err error) bool { return err == ErrInvalidTerm }

// Validate checks that c holds N conditionals joined by N-1 operators, and
// validates every nested term.
func (c *Container) Validate() error {
	if c == nil {
		return nil
	}
	return Validate(c)
}

// Validate checks the structural invariants of t and all of its children.
func Validate(t Term) error {
	var err error
	Walk(t, func(t Term) bool {
		if err != nil {
			return false
		}
		err = check(t)
		return err == nil
	})
	return err
}

func check(t Term) error {
	switch t := t.(type) {
	case nil:
		return nil
	case *Container:
		if len(t.Conditionals) == 0 {
			return &InvalidTermError{Term: t, Reason: "no conditionals"}
		}
		if len(t.Operators) != len(t.Conditionals)-1 {
			return &InvalidTermError{Term: t, Reason: fmt.Sprintf("%d conditionals need %d operators, got %d", len(t.Conditionals), len(t.Conditionals)-1, len(t.Operators))}
		}
	case *Formula:
		if len(t.Terms) == 0 {
			return &InvalidTermError{Term: t, Reason: "no terms"}
		}
		if len(t.Operators) != len(t.Terms)-1 {
			return &InvalidTermError{Term: t, Reason: fmt.Sprintf("%d terms need %d operators, got %d", len(t.Terms), len(t.Terms)-1, len(t.Operators))}
		}
	case *Conditional:
		if t.Left == nil {
			return &InvalidTermError{Term: t, Reason: "missing left side"}
		}
		if t.Right == nil && t.Operator != OpExists && t.Operator != OpNotExists {
			return &InvalidTermError{Term: t, Reason: "missing right side"}
		}
	case *Variable:
		if t.Name == "" {
			return &InvalidTermError{Term: t, Reason: "empty name"}
		}
	case *Column:
		if t.Name == "" {
			return &InvalidTermError{Term: t, Reason: "empty name"}
		}
	case *QueryTerm:
		if t.Query == nil {
			return &InvalidTermError{Term: t, Reason: "nil query"}
		}
	case *Case:
		if len(t.Whens) == 0 {
			return &InvalidTermError{Term: t, Reason: "no WHEN branches"}
		}
	}
	return nil
}

// Walk calls fn for t and, while fn returns true, for every child term in
// depth-first order. Sub-query bodies are visited too.
func Walk(t Term, fn func(Term) bool) {
	if t == nil || !fn(t) {
		return
	}
	switch t := t.(type) {
	case *ValuesArray:
		for _, v := range t.Values {
			Walk(v, fn)
		}
	case *FunctionCall:
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *Formula:
		for _, x := range t.Terms {
			Walk(x, fn)
		}
	case *Conditional:
		Walk(t.Left, fn)
		Walk(t.Right, fn)
	case *Container:
		for _, c := range t.Conditionals {
			Walk(c, fn)
		}
	case *QueryTerm:
		if t.Query != nil {
			walkQuery(t.Query, fn)
		}
	case *Case:
		Walk(t.Input, fn)
		for _, w := range t.Whens {
			Walk(w.Condition, fn)
			Walk(w.Result, fn)
		}
		Walk(t.Else, fn)
	case *Minus:
		Walk(t.Term, fn)
	}
}

func walkQuery(q *Query, fn func(Term) bool) {
	for _, p := range q.Projection {
		Walk(p.Term, fn)
	}
	if q.Where != nil {
		Walk(q.Where, fn)
	}
	for _, g := range q.GroupBy {
		Walk(g, fn)
	}
	if q.Having != nil {
		Walk(q.Having, fn)
	}
	for _, s := range q.Sort {
		Walk(s.Term, fn)
	}
}

// Variables returns the distinct variable names referenced by t, in order of
// first appearance.
func Variables(t Term) []string {
	var (
		names []string
		seen  = make(map[string]bool)
	)
	Walk(t, func(t Term) bool {
		if v, ok := t.(*Variable); ok && !seen[v.Name] {
			seen[v.Name] = true
			names = append(names, v.Name)
		}
		return true
	})
	return names
}
