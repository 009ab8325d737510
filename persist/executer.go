// Package persist executes persistence actions against an open transaction.
//
// An Executer holds what is shared by every transaction: the type schema,
// the dialect, the key repository, the logger and the metrics. Begin binds
// it to one transaction and returns a Batch that runs actions in order and
// remembers the identities generated by its inserts:
//
//	exec, err := persist.New(registry, persist.WithDialect("postgres"))
//	if err != nil {
//		return err
//	}
//	tx, err := drv.Tx(ctx)
//	if err != nil {
//		return err
//	}
//	results, err := exec.Begin(tx).ExecuteAll(ctx, actions)
//
// Database errors become failed results and are reported to the action
// hooks. Mapping errors and key repository errors are returned.
package persist

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
	"github.com/fabrimaciel/gda/keygen"
	"github.com/fabrimaciel/gda/parser"
	"github.com/fabrimaciel/gda/schema"
)

// Executer renders and executes actions. It is safe for concurrent use; the
// batches it returns are not.
type Executer struct {
	schema  schema.TypeSchema
	rules   *dialect.Rules
	keys    keygen.Repository
	logger  *slog.Logger
	metrics *Metrics
}

type config struct {
	provider string
	keys     keygen.Repository
	logger   *slog.Logger
	metrics  *Metrics
	reg      prometheus.Registerer
}

// Option configures an Executer.
type Option func(*config)

// WithDialect selects the dialect by provider or driver name. The generic
// dialect is used by default.
func WithDialect(provider string) Option {
	return func(c *config) {
		c.provider = provider
	}
}

// WithKeyRepository sets the identity strategy. The default strategy of the
// dialect is used otherwise.
func WithKeyRepository(keys keygen.Repository) Option {
	return func(c *config) {
		c.keys = keys
	}
}

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics records action metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithRegisterer creates the action metrics and registers them on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.reg = reg
	}
}

// New returns an executer for the types of s.
func New(s schema.TypeSchema, opts ...Option) (*Executer, error) {
	c := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	rules, err := dialect.Lookup(c.provider)
	if err != nil {
		return nil, err
	}
	if c.keys == nil {
		c.keys = keygen.ForDialect(rules, s)
	}
	if c.metrics == nil && c.reg != nil {
		c.metrics = NewMetrics(c.reg)
	}
	return &Executer{
		schema:  s,
		rules:   rules,
		keys:    c.keys,
		logger:  c.logger,
		metrics: c.metrics,
	}, nil
}

// Rules returns the dialect of the executer.
func (e *Executer) Rules() *dialect.Rules { return e.rules }

// Metrics returns the action metrics, nil when none are recorded.
func (e *Executer) Metrics() *Metrics { return e.metrics }

// CreateParser returns a parser for a bound to the dialect and key
// repository of the executer.
func (e *Executer) CreateParser(a *gda.Action) *parser.Parser {
	return parser.New(a, e.rules, e.schema, e.keys, parser.WithLogger(e.logger))
}

// Begin returns a batch issuing its commands through tx. The executer never
// commits or rolls back tx.
func (e *Executer) Begin(tx dialect.ExecQuerier) *Batch {
	return &Batch{
		e:       e,
		tx:      tx,
		virtual: make(map[int64]any),
	}
}
