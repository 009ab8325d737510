package schema

import (
	"fmt"
	"strings"

	"github.com/fabrimaciel/gda"
)

// TypeSchema resolves entity names to their metadata.
type TypeSchema interface {
	// GetTypeMetadata returns *gda.TypeNotMappedError when the entity is unknown.
	GetTypeMetadata(fullName string) (TypeMetadata, error)
}

// TypeMetadata describes how an entity maps to a table.
type TypeMetadata interface {
	FullName() string
	TableName() TableName
	IsVersioned() bool
	// RowVersionColumn is the column holding the row version. Empty means the
	// dialect supplies a pseudo-column.
	RowVersionColumn() string
	// Property returns *gda.PropertyNotFoundError when name is unknown.
	Property(name string) (PropertyMetadata, error)
	PropertyByColumn(column string) (PropertyMetadata, bool)
	KeyProperties() []PropertyMetadata
	VolatileProperties() []PropertyMetadata
	Properties() []PropertyMetadata
}

// PropertyMetadata describes one mapped property.
type PropertyMetadata interface {
	Name() string
	ColumnName() string
	ParameterType() ParameterType
	Direction() gda.Direction
	IsVolatile() bool
	IsForeignKey() bool
	DbType() gda.DbType
}

// ParameterType classifies a property for persistence.
type ParameterType int

// Parameter types.
const (
	ParamField ParameterType = iota
	ParamKey
	ParamIdentityKey
)

// String returns the mapping-file name of the type.
func (t ParameterType) String() string {
	switch t {
	case ParamField:
		return "field"
	case ParamKey:
		return "key"
	case ParamIdentityKey:
		return "identity"
	}
	return fmt.Sprintf("ParameterType(%d)", int(t))
}

// IsKey reports whether the property takes part in the primary key.
func (t ParameterType) IsKey() bool {
	return t == ParamKey || t == ParamIdentityKey
}

func parseParameterType(s string) (ParameterType, error) {
	switch strings.ToLower(s) {
	case "", "field":
		return ParamField, nil
	case "key":
		return ParamKey, nil
	case "identity", "identitykey":
		return ParamIdentityKey, nil
	}
	return 0, fmt.Errorf("schema: unknown property kind %q", s)
}

// TableName is a possibly qualified table name.
type TableName struct {
	Catalog string
	Schema  string
	Name    string
}

// Parts returns the non-empty components, outermost first.
func (t TableName) Parts() []string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Catalog, t.Schema, t.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// String returns the dotted name without quoting.
func (t TableName) String() string {
	return strings.Join(t.Parts(), ".")
}

// IdentityProperty returns the identity key of m, if any.
func IdentityProperty(m TypeMetadata) (PropertyMetadata, bool) {
	for _, p := range m.KeyProperties() {
		if p.ParameterType() == ParamIdentityKey {
			return p, true
		}
	}
	return nil, false
}
