// Package schema defines the type metadata consumed by the persistence
// pipeline and ships an in-memory implementation of it.
//
// The pipeline only depends on the [TypeSchema], [TypeMetadata] and
// [PropertyMetadata] interfaces. [Registry] implements them and can be filled
// in code or from YAML mapping files:
//
//	reg := schema.NewRegistry(
//	    schema.NewType("Sales.Customer").
//	        Table("CUSTOMER").
//	        Versioned("VERSION").
//	        Fields(
//	            schema.Identity("Id").Column("ID").OfType(gda.DbInt64),
//	            schema.Field("Name").Column("NAME"),
//	            schema.Field("UpdatedAt").Column("UPDATED_AT").Volatile(),
//	        ),
//	)
//
// # Mapping files
//
//	types:
//	  - name: Sales.Customer
//	    table: CUSTOMER
//	    versioned: true
//	    rowVersion: VERSION
//	    properties:
//	      - {name: Id, column: ID, kind: identity, type: Int64}
//	      - {name: Name, column: NAME}
//
// Table and column names default to the snake_case form of the type and
// property names. [LoadFiles] decodes several files concurrently and [Watch]
// reloads a file whenever it changes on disk.
package schema
