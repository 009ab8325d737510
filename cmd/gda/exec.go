package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
	gdasql "github.com/fabrimaciel/gda/dialect/sql"
	"github.com/fabrimaciel/gda/persist"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func (a *app) execCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <batch.yaml>",
		Short: "Execute a batch inside one transaction",
		Long: "Execute a batch inside one transaction and print the result of every action.\n" +
			"The transaction is rolled back unless --commit is given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExec(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	f := cmd.Flags()
	f.String("driver", "", "database/sql driver name: mysql, postgres or sqlite")
	f.String("dsn", "", "data source name")
	f.Bool("commit", false, "commit the transaction")
	f.Duration("slow-threshold", 100*time.Millisecond, "log statements slower than this")
	for _, name := range []string{"driver", "dsn", "commit", "slow-threshold"} {
		_ = a.v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

// txOpener is implemented by the driver decorators.
type txOpener interface {
	Tx(context.Context) (dialect.Tx, error)
}

func (a *app) runExec(ctx context.Context, out io.Writer, path string) (err error) {
	driverName, dsn := a.v.GetString("driver"), a.v.GetString("dsn")
	if driverName == "" {
		return fmt.Errorf("no driver: set --driver or GDA_DRIVER")
	}
	if err := gdasql.ValidateDSN(driverName, dsn); err != nil {
		return err
	}
	reg, err := a.registry(ctx)
	if err != nil {
		return err
	}
	actions, err := loadBatchFile(path)
	if err != nil {
		return err
	}

	drv, err := gdasql.Open(driverName, dsn)
	if err != nil {
		return err
	}
	defer drv.Close()
	metrics := prometheus.NewRegistry()
	exec, err := a.executer(reg, drv.Dialect(), persist.WithRegisterer(metrics))
	if err != nil {
		return err
	}
	stats := gdasql.NewStatsDriver(drv,
		gdasql.WithSlowThreshold(a.v.GetDuration("slow-threshold")),
		gdasql.WithSlowQueryHook(a.slowQuery))
	metrics.MustRegister(stats)
	var opener txOpener = stats
	if a.v.GetBool("debug") {
		opener = gdasql.NewDebugDriver(stats, gdasql.DebugWithLog(func(ctx context.Context, v ...any) {
			a.logger.DebugContext(ctx, fmt.Sprint(v...))
		}))
	}

	tx, err := opener.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil || !a.v.GetBool("commit") {
			if rerr := tx.Rollback(); rerr != nil {
				a.logger.Error("rollback", "error", &gda.RollbackError{Err: rerr})
			}
		}
	}()

	results, err := exec.Begin(tx).ExecuteAll(ctx, actions)
	for i, r := range results {
		printResult(out, actions[i], r)
	}
	if err != nil {
		return err
	}
	if a.v.GetBool("commit") {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		fmt.Fprintln(out, "-- committed")
	} else {
		fmt.Fprintln(out, "-- rolled back")
	}
	a.logger.Info("statistics", "statements", stats.QueryStats().Stats().String())
	a.logMetrics(ctx, metrics)
	return nil
}

// logMetrics logs the counters gathered from reg at debug level.
func (a *app) logMetrics(ctx context.Context, reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		a.logger.WarnContext(ctx, "gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			attrs := []any{"metric", mf.GetName(), "value", m.GetCounter().GetValue()}
			for _, l := range m.GetLabel() {
				attrs = append(attrs, l.GetName(), l.GetValue())
			}
			a.logger.DebugContext(ctx, "counter", attrs...)
		}
	}
}

func (a *app) slowQuery(ctx context.Context, kind gdasql.StatementKind, query string, d time.Duration) {
	a.logger.WarnContext(ctx, "slow statement", "kind", kind, "duration", d, "query", query)
}

func printResult(w io.Writer, act *gda.Action, r gda.Result) {
	switch {
	case r.Success:
		fmt.Fprintf(w, "-- %s: ok, %d rows\n", act, r.AffectedRows)
	case gda.IsConcurrencyFailure(r):
		fmt.Fprintf(w, "-- %s: conflict: %s\n", act, r.FailureMessage)
	default:
		fmt.Fprintf(w, "-- %s: failed: %s\n", act, r.FailureMessage)
	}
	for _, p := range r.Parameters {
		if p.Direction.IsOutput() || p.Value != nil {
			fmt.Fprintf(w, "--   %s = %v\n", p.Name, p.Value)
		}
	}
	if r.RowVersion != nil {
		fmt.Fprintf(w, "--   row version = %d\n", *r.RowVersion)
	}
}
