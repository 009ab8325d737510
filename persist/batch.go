package persist

import (
	"context"
	"maps"
	"time"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/dialect"
	gdasql "github.com/fabrimaciel/gda/dialect/sql"
	"github.com/fabrimaciel/gda/keygen"
	"github.com/fabrimaciel/gda/parser"
	"github.com/fabrimaciel/gda/schema"
)

// Batch executes the actions of one transaction in order. Parameters of the
// executed actions are updated in place: virtual keys are replaced by the
// identities generated earlier in the batch, identities are stored into the
// identity parameter and procedure outputs are copied back.
type Batch struct {
	e  *Executer
	tx dialect.ExecQuerier
	// virtual maps the negative key of an inserted action to its identity.
	virtual map[int64]any
}

// VirtualIDs returns a copy of the virtual key to identity map.
func (b *Batch) VirtualIDs() map[int64]any {
	return maps.Clone(b.virtual)
}

// Execute runs a according to its type.
func (b *Batch) Execute(ctx context.Context, a *gda.Action) (gda.Result, error) {
	switch a.Type {
	case gda.ActionInsert:
		return b.ExecuteInsertCommand(ctx, a)
	case gda.ActionUpdate:
		return b.ExecuteUpdateCommand(ctx, a)
	case gda.ActionDelete:
		return b.ExecuteDeleteCommand(ctx, a)
	case gda.ActionProcedure:
		return b.ExecuteProcedureCommand(ctx, a)
	}
	return gda.Result{}, &gda.UnsupportedOperationError{Dialect: b.e.rules.Name, Op: a.Type.String()}
}

// ExecuteAll runs actions in order and then reads back the volatile
// properties of the inserted and updated rows. It stops at the first
// returned error; failed results do not stop the batch.
func (b *Batch) ExecuteAll(ctx context.Context, actions []*gda.Action) ([]gda.Result, error) {
	results := make([]gda.Result, 0, len(actions))
	for _, a := range actions {
		r, err := b.Execute(ctx, a)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	if err := b.RetrievePersistenceVolatileProperties(ctx, actions, results); err != nil {
		return results, err
	}
	return results, nil
}

// ExecuteInsertCommand inserts one row. Generator strategies fetch the
// identity before the insert; the other strategies read it back from the
// command.
func (b *Batch) ExecuteInsertCommand(ctx context.Context, a *gda.Action) (gda.Result, error) {
	start := time.Now()
	md, err := b.e.schema.GetTypeMetadata(a.EntityFullName)
	if err != nil {
		return gda.Result{}, err
	}
	b.resolveVirtual(md, a)

	var (
		identity  any
		virtualID int64
		virtual   bool
	)
	prop, hasIdentity := schema.IdentityProperty(md)
	if hasIdentity {
		i := a.Parameters.Index(prop.Name())
		if i < 0 {
			a.Parameters = append(a.Parameters, gda.Parameter{Name: prop.Name(), DbType: prop.DbType()})
			i = len(a.Parameters) - 1
		}
		virtualID, virtual = virtualKey(a.Parameters[i].Value)
		if b.generatesBefore(a.EntityFullName) {
			key, err := b.e.keys.GetPrimaryKey(ctx, b.tx, a.EntityFullName)
			if err != nil {
				return gda.Result{}, err
			}
			a.Parameters[i].Value = key
			identity = key
		}
	}

	cmd, err := b.e.CreateParser(a).CommandText()
	if err != nil {
		return gda.Result{}, err
	}
	args, outs := cmd.Args()
	b.e.logger.DebugContext(ctx, "execute insert", "action", a.String(), "sql", cmd.Text)

	var affected int64
	if cmd.Returning {
		records, err := gdasql.LoadResult(ctx, b.tx, a.CommandTimeout, cmd.Text, args)
		if err != nil {
			return b.fail(ctx, a, "insert", err, start), nil
		}
		affected = int64(len(records))
		if len(records) > 0 && len(records[0].Values) > 0 {
			identity = records[0].Values[0]
		}
	} else {
		res, err := gdasql.ExecuteCommand(ctx, b.tx, a.CommandTimeout, cmd.Text, args)
		if err != nil {
			return b.fail(ctx, a, "insert", err, start), nil
		}
		affected = affectedRows(res, cmd, outs)
		switch dest, ok := outs[cmd.Identity]; {
		case cmd.PostIdentity && cmd.IdentityColumn != "":
			if id, err := res.LastInsertId(); err == nil {
				identity = id
			}
		case ok:
			identity = dialect.Deref(dest)
		}
	}

	if hasIdentity && identity != nil {
		i := a.Parameters.Index(prop.Name())
		a.Parameters[i].Value = identity
		if virtual {
			b.virtual[virtualID] = identity
		}
	}
	a.NotifyExecution()
	b.e.metrics.observe(a.Type, OutcomeSuccess, start)
	return gda.Result{
		ActionID:     a.ID,
		Success:      true,
		AffectedRows: affected,
		Parameters:   resultParameters(md, a.Parameters),
	}, nil
}

// ExecuteUpdateCommand updates the rows matched by the keys or by the
// predicate override of a. A row-version checked update matching no row
// yields a conflict result.
func (b *Batch) ExecuteUpdateCommand(ctx context.Context, a *gda.Action) (gda.Result, error) {
	return b.modify(ctx, a, "update")
}

// ExecuteDeleteCommand deletes the rows matched by the parameters or by the
// predicate override of a, with the same conflict rule as updates.
func (b *Batch) ExecuteDeleteCommand(ctx context.Context, a *gda.Action) (gda.Result, error) {
	return b.modify(ctx, a, "delete")
}

func (b *Batch) modify(ctx context.Context, a *gda.Action, op string) (gda.Result, error) {
	start := time.Now()
	md, err := b.e.schema.GetTypeMetadata(a.EntityFullName)
	if err != nil {
		return gda.Result{}, err
	}
	b.resolveVirtual(md, a)

	cmd, err := b.e.CreateParser(a).CommandText()
	if err != nil {
		return gda.Result{}, err
	}
	args, outs := cmd.Args()
	b.e.logger.DebugContext(ctx, "execute "+op, "action", a.String(), "sql", cmd.Text)
	res, err := gdasql.ExecuteCommand(ctx, b.tx, a.CommandTimeout, cmd.Text, args)
	if err != nil {
		return b.fail(ctx, a, op, err, start), nil
	}
	affected := affectedRows(res, cmd, outs)
	if affected == 0 && cmd.RowVersion {
		r := gda.NewConflictResult(a)
		r.Parameters = a.Parameters.Clone()
		b.e.logger.WarnContext(ctx, "row version conflict", "action", a.String(), "message", r.FailureMessage)
		b.e.metrics.observe(a.Type, OutcomeConflict, start)
		return r, nil
	}

	r := gda.Result{ActionID: a.ID, Success: true, AffectedRows: affected}
	if a.Type == gda.ActionDelete {
		r.Parameters = a.Parameters.Clone()
		if cmd.RowVersion {
			r.RowVersion = a.RowVersion
		}
	} else {
		r.Parameters = resultParameters(md, a.Parameters)
	}
	a.NotifyExecution()
	b.e.metrics.observe(a.Type, OutcomeSuccess, start)
	return r, nil
}

// ExecuteProcedureCommand invokes a stored procedure and copies the values
// of its output parameters back into a.
func (b *Batch) ExecuteProcedureCommand(ctx context.Context, a *gda.Action) (gda.Result, error) {
	start := time.Now()
	cmd, err := b.e.CreateParser(a).CommandText()
	if err != nil {
		return gda.Result{}, err
	}
	args, outs := cmd.Args()
	b.e.logger.DebugContext(ctx, "execute procedure", "action", a.String(), "sql", cmd.Text)
	res, err := gdasql.ExecuteCommand(ctx, b.tx, a.CommandTimeout, cmd.Text, args)
	if err != nil {
		return b.fail(ctx, a, "procedure", err, start), nil
	}
	for i, p := range a.Parameters {
		if !p.Direction.IsOutput() {
			continue
		}
		if dest, ok := outs[gda.ParameterName(p.Name)]; ok {
			a.Parameters[i].Value = dialect.Deref(dest)
		}
	}
	a.NotifyExecution()
	b.e.metrics.observe(a.Type, OutcomeSuccess, start)
	return gda.Result{
		ActionID:     a.ID,
		Success:      true,
		AffectedRows: affectedRows(res, cmd, outs),
		Parameters:   a.Parameters.Clone(),
	}, nil
}

// fail turns a database error into a failed result and reports it to the
// action.
func (b *Batch) fail(ctx context.Context, a *gda.Action, op string, err error, start time.Time) gda.Result {
	de := gda.NewDataError(a, op, err)
	de.Constraint = gdasql.IsConstraintError(de.Err)
	a.NotifyError(de)
	b.e.logger.ErrorContext(ctx, "action failed", "action", a.String(), "error", de)
	b.e.metrics.observe(a.Type, OutcomeFailure, start)
	return gda.Result{
		ActionID:       a.ID,
		FailureMessage: de.Error(),
		Parameters:     a.Parameters.Clone(),
	}
}

// generatesBefore reports whether the identity of entity comes from the key
// repository before the insert. Sequences are fetched by the command itself.
func (b *Batch) generatesBefore(entity string) bool {
	if b.e.keys.IsPosCommand(entity) {
		return false
	}
	_, sequence := b.e.keys.(keygen.SequenceNamer)
	return !sequence
}

// resolveVirtual replaces key and foreign-key values holding a virtual key
// generated earlier in the batch.
func (b *Batch) resolveVirtual(md schema.TypeMetadata, a *gda.Action) {
	if len(b.virtual) == 0 {
		return
	}
	for i, p := range a.Parameters {
		prop, err := md.Property(p.Name)
		if err != nil || !(prop.ParameterType().IsKey() || prop.IsForeignKey()) {
			continue
		}
		id, ok := virtualKey(p.Value)
		if !ok {
			continue
		}
		if v, ok := b.virtual[id]; ok {
			b.e.logger.Debug("virtual key resolved", "action", a.String(), "parameter", p.Name, "virtual", id, "value", v)
			a.Parameters[i].Value = v
		}
	}
}

// affectedRows prefers the row count captured by the command over the
// driver result.
func affectedRows(res gdasql.Result, cmd *parser.Command, outs map[string]any) int64 {
	if dest, ok := outs[cmd.RowCount]; ok && cmd.RowCount != "" {
		if n, ok := toInt64(dialect.Deref(dest)); ok {
			return n
		}
	}
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// resultParameters echoes the parameters of an action followed by empty
// placeholders for the volatile properties it does not carry.
func resultParameters(md schema.TypeMetadata, params gda.Parameters) gda.Parameters {
	out := params.Clone()
	for _, p := range md.VolatileProperties() {
		if out.Index(p.Name()) < 0 {
			out = append(out, gda.Parameter{Name: p.Name(), Direction: gda.DirectionOutput, DbType: p.DbType()})
		}
	}
	return out
}
