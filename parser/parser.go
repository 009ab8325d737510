// Package parser renders persistence actions into dialect SQL.
//
// A Parser is bound to one action, one dialect and one key repository.
// CommandText renders the action into a Command holding the SQL text, the
// ordered bindings and the parameters the rendering did not consume:
//
//	p, err := parser.Create(action, "oracle", registry, nil)
//	if err != nil {
//		return err
//	}
//	cmd, err := p.CommandText()
//
// Rendering never mutates the action, so rendering twice yields the same
// command.
package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
	"github.com/fabrimaciel/gda/expr"
	"github.com/fabrimaciel/gda/keygen"
	"github.com/fabrimaciel/gda/schema"
)

// RowVersionParameter and RowCountParameter name the bindings added by the
// renderers. On named dialects a parameter of the same name pushes them to a
// suffixed name such as RowVersion_2.
const (
	RowVersionParameter = "RowVersion"
	RowCountParameter   = "RowCount"
)

// Parser renders one action for one dialect.
type Parser struct {
	action *gda.Action
	rules  *dialect.Rules
	schema schema.TypeSchema
	keys   keygen.Repository
	logger *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = l
	}
}

// New returns a parser for action. A nil keys selects the default
// repository of the dialect.
func New(action *gda.Action, rules *dialect.Rules, s schema.TypeSchema, keys keygen.Repository, opts ...Option) *Parser {
	if keys == nil {
		keys = keygen.ForDialect(rules, s)
	}
	p := &Parser{
		action: action,
		rules:  rules,
		schema: s,
		keys:   keys,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create resolves provider to a dialect and returns a parser for action.
func Create(action *gda.Action, provider string, s schema.TypeSchema, keys keygen.Repository, opts ...Option) (*Parser, error) {
	rules, err := dialect.Lookup(provider)
	if err != nil {
		return nil, err
	}
	return New(action, rules, s, keys, opts...), nil
}

// Rules returns the dialect of the parser.
func (p *Parser) Rules() *dialect.Rules { return p.rules }

// CommandText renders the action according to its type.
func (p *Parser) CommandText() (*Command, error) {
	switch p.action.Type {
	case gda.ActionInsert:
		return p.render(p.insert)
	case gda.ActionUpdate:
		return p.render(p.update)
	case gda.ActionDelete:
		return p.render(p.delete)
	case gda.ActionProcedure:
		return p.render(p.procedure)
	}
	return nil, &gda.UnsupportedOperationError{Dialect: p.rules.Name, Op: p.action.Type.String()}
}

// Format renders a term in the context of the action entity.
func (p *Parser) Format(t expr.Term) (string, []Binding, error) {
	r, err := p.newRenderer(p.action.Type != gda.ActionProcedure)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	if err := r.format(&b, t); err != nil {
		return "", nil, err
	}
	return b.String(), r.bindings, nil
}

// RenderQuery renders a standalone SELECT. Variables bind to the query
// parameters first and then to the action parameters.
func (p *Parser) RenderQuery(q *expr.Query) (*Command, error) {
	r, err := p.newRenderer(false)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	if err := r.query(&b, q); err != nil {
		return nil, err
	}
	return r.command(b.String()), nil
}

// RenderQuery renders a standalone SELECT without an action.
func RenderQuery(rules *dialect.Rules, s schema.TypeSchema, q *expr.Query) (*Command, error) {
	return New(&gda.Action{}, rules, s, keygen.PostCommand()).RenderQuery(q)
}

func (p *Parser) render(fn func(*renderer) (string, error)) (*Command, error) {
	r, err := p.newRenderer(p.action.Type != gda.ActionProcedure)
	if err != nil {
		return nil, err
	}
	text, err := fn(r)
	if err != nil {
		return nil, err
	}
	return r.command(text), nil
}

func (p *Parser) newRenderer(needType bool) (*renderer, error) {
	r := &renderer{
		p:        p,
		rules:    p.rules,
		residual: p.action.Parameters.Clone(),
		named:    make(map[string]string),
	}
	if p.action.EntityFullName == "" {
		if needType {
			return nil, gda.NewTypeNotMappedError("")
		}
		return r, nil
	}
	md, err := p.schema.GetTypeMetadata(p.action.EntityFullName)
	if err != nil {
		if needType {
			return nil, err
		}
		return r, nil
	}
	r.md = md
	return r, nil
}

// renderer holds the state of one rendering.
type renderer struct {
	p        *Parser
	rules    *dialect.Rules
	md       schema.TypeMetadata
	bindings []Binding
	residual gda.Parameters
	// named maps scope and name to the placeholder of named bindings.
	named map[string]string
	// scopes are the parameters of the sub-queries being rendered,
	// innermost last.
	scopes []*scope
	nextID int
	cmd    Command
}

type scope struct {
	id    int
	query *expr.Query
	// bare writes columns without their alias.
	bare bool
}

func (r *renderer) command(text string) *Command {
	c := r.cmd
	c.Text = text
	c.Bindings = r.bindings
	c.Residual = r.residual
	c.rules = r.rules
	return &c
}

// ownScope holds the bindings the renderer adds itself. They are never
// shared with a binding of the same name.
const ownScope = -1

// bind adds a binding and returns its placeholder. Named dialects bind each
// name of a scope once.
func (r *renderer) bind(scopeID int, name string, value any, dir gda.Direction, t gda.DbType) string {
	name = gda.ParameterName(name)
	if r.rules.Placeholder != dialect.PlaceholderNamed {
		r.bindings = append(r.bindings, r.binding(name, value, dir, t))
		return r.rules.Bind(name, len(r.bindings))
	}
	key := fmt.Sprintf("%d\x00%s", scopeID, strings.ToLower(name))
	if ph, ok := r.named[key]; ok && scopeID != ownScope {
		return ph
	}
	unique := name
	for n := 2; r.taken(unique); n++ {
		unique = fmt.Sprintf("%s_%d", name, n)
	}
	r.bindings = append(r.bindings, r.binding(unique, value, dir, t))
	ph := r.rules.Bind(unique, len(r.bindings))
	if scopeID != ownScope {
		r.named[key] = ph
	}
	return ph
}

// bindOwn binds a value added by the renderer and returns its placeholder
// and binding name.
func (r *renderer) bindOwn(name string, value any, dir gda.Direction, t gda.DbType) (string, string) {
	ph := r.bind(ownScope, name, value, dir, t)
	return ph, r.bindings[len(r.bindings)-1].Name
}

func (r *renderer) taken(name string) bool {
	for _, b := range r.bindings {
		if strings.EqualFold(b.Name, name) {
			return true
		}
	}
	return false
}

func (r *renderer) binding(name string, value any, dir gda.Direction, t gda.DbType) Binding {
	return Binding{
		Name:      name,
		Value:     r.rules.Coerce(value, t),
		Direction: dir,
		DbType:    t,
		TypeName:  r.rules.TypeName(t),
	}
}

// consume removes a parameter from the residual list.
func (r *renderer) consume(name string) {
	if i := r.residual.Index(name); i >= 0 {
		r.residual = append(r.residual[:i:i], r.residual[i+1:]...)
	}
}

// table returns the quoted table of md.
func (r *renderer) table(md schema.TypeMetadata) string {
	return r.rules.Quote(md.TableName().Parts()...)
}

// statements joins statements, wrapping them in the dialect block when the
// dialect has one.
func (r *renderer) statements(stmts []string) string {
	if r.rules.HasBlock() {
		return r.rules.BlockBegin + strings.Join(stmts, "; ") + ";" + r.rules.BlockEnd
	}
	return strings.Join(stmts, "; ")
}

// captureRowCount appends the affected-row capture of the dialect.
func (r *renderer) captureRowCount(stmts []string) []string {
	if r.rules.RowCountCapture == "" {
		return stmts
	}
	ph, name := r.bindOwn(RowCountParameter, nil, gda.DirectionOutput, gda.DbInt64)
	r.cmd.RowCount = name
	return append(stmts, fmt.Sprintf(r.rules.RowCountCapture, ph))
}

// dbType prefers the explicit parameter type over the property type.
func dbType(p gda.Parameter, prop schema.PropertyMetadata) gda.DbType {
	if p.DbType != gda.DbObject || prop == nil {
		return p.DbType
	}
	return prop.DbType()
}
