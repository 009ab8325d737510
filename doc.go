// Package gda holds the types shared by the persistence pipeline: actions
// and their parameters, execution results and the error taxonomy.
//
// An Action describes one insert, update, delete or procedure call against
// a mapped entity. The parser package renders it into dialect-specific SQL
// and the persist package executes it inside a caller-owned transaction:
//
//	a := &gda.Action{
//		Type:           gda.ActionUpdate,
//		EntityFullName: "Sales.Customer",
//		Parameters:     gda.Parameters{gda.NewParameter("Name", "Ann"), gda.NewParameter("Id", 42)},
//		RowVersion:     &version,
//	}
//	r, err := exec.Begin(tx).Execute(ctx, a)
//	if err != nil {
//		return err // mapping error
//	}
//	if gda.IsConcurrencyFailure(r) {
//		// the row changed since it was read
//	}
package gda
