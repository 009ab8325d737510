package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fabrimaciel/gda/dialect"
)

// StatementKind classifies a command by its leading keyword.
type StatementKind string

// Statement kinds counted by StatsDriver.
const (
	KindInsert StatementKind = "insert"
	KindUpdate StatementKind = "update"
	KindDelete StatementKind = "delete"
	KindSelect StatementKind = "select"
	KindCall   StatementKind = "call"
	KindOther  StatementKind = "other"
)

var statementKinds = []StatementKind{KindInsert, KindUpdate, KindDelete, KindSelect, KindCall, KindOther}

// KindOf returns the kind of query. An anonymous block is classified by its
// first statement, and a block starting with anything else is a procedure
// call.
func KindOf(query string) StatementKind {
	word, rest := firstWord(query)
	block := word == "BEGIN"
	if block {
		word, _ = firstWord(rest)
	}
	switch word {
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	case "SELECT", "WITH":
		return KindSelect
	case "CALL", "EXEC", "EXECUTE":
		return KindCall
	}
	if block && word != "" {
		return KindCall
	}
	return KindOther
}

// firstWord returns the upper-cased leading keyword of s and what follows it.
func firstWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && r != '_' })
	if i < 0 {
		i = len(s)
	}
	return strings.ToUpper(s[:i]), s[i:]
}

type kindCounters struct {
	statements atomic.Int64
	errors     atomic.Int64
	slow       atomic.Int64
	nanos      atomic.Int64
}

// QueryStats counts the commands run through a StatsDriver per statement
// kind.
type QueryStats struct {
	kinds map[StatementKind]*kindCounters
}

func newQueryStats() *QueryStats {
	s := &QueryStats{kinds: make(map[StatementKind]*kindCounters, len(statementKinds))}
	for _, k := range statementKinds {
		s.kinds[k] = &kindCounters{}
	}
	return s
}

func (s *QueryStats) add(kind StatementKind, d time.Duration, err error, slow bool) {
	c := s.kinds[kind]
	c.statements.Add(1)
	c.nanos.Add(int64(d))
	if err != nil {
		c.errors.Add(1)
	}
	if slow {
		c.slow.Add(1)
	}
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	snap := make(StatsSnapshot, len(s.kinds))
	for k, c := range s.kinds {
		snap[k] = KindStats{
			Statements: c.statements.Load(),
			Errors:     c.errors.Load(),
			Slow:       c.slow.Load(),
			Duration:   time.Duration(c.nanos.Load()),
		}
	}
	return snap
}

// Reset sets every counter to zero.
func (s *QueryStats) Reset() {
	for _, c := range s.kinds {
		c.statements.Store(0)
		c.errors.Store(0)
		c.slow.Store(0)
		c.nanos.Store(0)
	}
}

// KindStats holds the counters of one statement kind.
type KindStats struct {
	Statements int64
	Errors     int64
	Slow       int64
	Duration   time.Duration
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot map[StatementKind]KindStats

// Total sums the counters of every kind.
func (s StatsSnapshot) Total() KindStats {
	var t KindStats
	for _, k := range s {
		t.Statements += k.Statements
		t.Errors += k.Errors
		t.Slow += k.Slow
		t.Duration += k.Duration
	}
	return t
}

// String lists the kinds that ran followed by the totals, e.g.
// "insert=2 select=2 errors=0 slow=0 duration=3ms".
func (s StatsSnapshot) String() string {
	var b strings.Builder
	for _, k := range statementKinds {
		if n := s[k].Statements; n > 0 {
			fmt.Fprintf(&b, "%s=%d ", k, n)
		}
	}
	t := s.Total()
	fmt.Fprintf(&b, "errors=%d slow=%d duration=%s", t.Errors, t.Slow, t.Duration)
	return b.String()
}

// SlowQueryHook is called for every command slower than the threshold.
type SlowQueryHook func(ctx context.Context, kind StatementKind, query string, d time.Duration)

// StatsDriver wraps a Driver and counts the commands it runs per statement
// kind. It is a prometheus.Collector.
type StatsDriver struct {
	*Driver
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a command counts as slow.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets the callback for slow commands.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// NewStatsDriver wraps drv with statement counters.
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:        drv,
		stats:         newQueryStats(),
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the counters.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// Query executes a query and counts it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, start, err)
	return err
}

// Exec executes a statement and counts it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, start, err)
	return err
}

func (d *StatsDriver) record(ctx context.Context, query string, start time.Time, err error) {
	elapsed := time.Since(start)
	kind := KindOf(query)
	slow := elapsed > d.slowThreshold
	d.stats.add(kind, elapsed, err, slow)
	if slow && d.slowHook != nil {
		d.slowHook(ctx, kind, query, elapsed)
	}
}

// Tx starts a transaction whose commands are counted.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

// StatsTx is a transaction of a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query executes a query within the transaction and counts it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, start, err)
	return err
}

// Exec executes a statement within the transaction and counts it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, query, start, err)
	return err
}

// DebugDriver logs every command of the driver it wraps. It wraps any
// dialect.Driver, so it can sit on top of a StatsDriver.
type DebugDriver struct {
	dialect.Driver
	log func(context.Context, ...any)
}

// DebugOption configures the DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLog sets the log function.
func DebugWithLog(logFunc func(context.Context, ...any)) DebugOption {
	return func(d *DebugDriver) {
		d.log = logFunc
	}
}

// NewDebugDriver wraps drv with command logging.
func NewDebugDriver(drv dialect.Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{
		Driver: drv,
		log: func(_ context.Context, v ...any) {
			slog.Info(fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func describe(prefix, query string, args any) string {
	return fmt.Sprintf("%s %s: %s args: %v", prefix, KindOf(query), query, args)
}

// Query logs and executes a query.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log(ctx, describe("query", query, args))
	return d.Driver.Query(ctx, query, args, v)
}

// Exec logs and executes a statement.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log(ctx, describe("exec", query, args))
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction whose commands are logged.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	d.log(ctx, "begin transaction")
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &DebugTx{Tx: tx, log: d.log}, nil
}

// DebugTx is a transaction of a DebugDriver.
type DebugTx struct {
	dialect.Tx
	log func(context.Context, ...any)
}

// Query logs and executes a query within the transaction.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.log(ctx, describe("tx query", query, args))
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec logs and executes a statement within the transaction.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.log(ctx, describe("tx exec", query, args))
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit logs and commits the transaction.
func (tx *DebugTx) Commit() error {
	tx.log(context.Background(), "commit transaction")
	return tx.Tx.Commit()
}

// Rollback logs and rolls back the transaction.
func (tx *DebugTx) Rollback() error {
	tx.log(context.Background(), "rollback transaction")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)

var (
	statementLabels = []string{"dialect", "kind"}
	statementsDesc  = prometheus.NewDesc("gda_sql_statements_total", "Commands executed.", statementLabels, nil)
	errorsDesc      = prometheus.NewDesc("gda_sql_errors_total", "Failed commands.", statementLabels, nil)
	slowDesc        = prometheus.NewDesc("gda_sql_slow_total", "Commands above the slow threshold.", statementLabels, nil)
	durationDesc    = prometheus.NewDesc("gda_sql_duration_seconds_total", "Time spent executing commands.", statementLabels, nil)
)

// Describe implements prometheus.Collector.
func (d *StatsDriver) Describe(ch chan<- *prometheus.Desc) {
	ch <- statementsDesc
	ch <- errorsDesc
	ch <- slowDesc
	ch <- durationDesc
}

// Collect implements prometheus.Collector with one series per statement kind.
func (d *StatsDriver) Collect(ch chan<- prometheus.Metric) {
	snap := d.stats.Stats()
	name := d.Dialect()
	for _, k := range statementKinds {
		s := snap[k]
		ch <- prometheus.MustNewConstMetric(statementsDesc, prometheus.CounterValue, float64(s.Statements), name, string(k))
		ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.Errors), name, string(k))
		ch <- prometheus.MustNewConstMetric(slowDesc, prometheus.CounterValue, float64(s.Slow), name, string(k))
		ch <- prometheus.MustNewConstMetric(durationDesc, prometheus.CounterValue, s.Duration.Seconds(), name, string(k))
	}
}

var _ prometheus.Collector = (*StatsDriver)(nil)
