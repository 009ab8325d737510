package schema

import (
	"slices"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/fabrimaciel/gda"
)

// Registry is an in-memory TypeSchema. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry returns a registry holding the given types.
func NewRegistry(types ...*Type) *Registry {
	r := &Registry{types: make(map[string]*Type, len(types))}
	r.Add(types...)
	return r
}

// Add registers types, replacing those with the same full name.
func (r *Registry) Add(types ...*Type) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		r.types[t.fullName] = t
	}
	return r
}

// Replace swaps the content of r with the types of other.
func (r *Registry) Replace(other *Registry) {
	types := other.Types()
	m := make(map[string]*Type, len(types))
	for _, t := range types {
		m[t.fullName] = t
	}
	r.mu.Lock()
	r.types = m
	r.mu.Unlock()
}

// GetTypeMetadata implements TypeSchema.
func (r *Registry) GetTypeMetadata(fullName string) (TypeMetadata, error) {
	r.mu.RLock()
	t, ok := r.types[fullName]
	r.mu.RUnlock()
	if !ok {
		return nil, gda.NewTypeNotMappedError(fullName)
	}
	return t, nil
}

// Types returns the registered types sorted by full name.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	types := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		types = append(types, t)
	}
	r.mu.RUnlock()
	slices.SortFunc(types, func(a, b *Type) int { return strings.Compare(a.fullName, b.fullName) })
	return types
}

// Type is the TypeMetadata of one entity. It doubles as a builder; a Type
// must not be modified after it has been added to a Registry.
type Type struct {
	fullName   string
	table      TableName
	versioned  bool
	rowVersion string
	props      []*Property
	byName     map[string]*Property
}

// NewType returns a type whose table defaults to the plural snake_case form
// of the last segment of fullName.
func NewType(fullName string) *Type {
	short := fullName
	if i := strings.LastIndexByte(short, '.'); i >= 0 {
		short = short[i+1:]
	}
	return &Type{
		fullName: fullName,
		table:    TableName{Name: inflect.Underscore(inflect.Pluralize(short))},
		byName:   make(map[string]*Property),
	}
}

// Table sets the table name.
func (t *Type) Table(name string) *Type {
	t.table.Name = name
	return t
}

// Schema sets the schema (owner) of the table.
func (t *Type) Schema(name string) *Type {
	t.table.Schema = name
	return t
}

// Catalog sets the catalog of the table.
func (t *Type) Catalog(name string) *Type {
	t.table.Catalog = name
	return t
}

// Versioned marks the type as row-versioned. An empty column selects the
// dialect pseudo-column.
func (t *Type) Versioned(column string) *Type {
	t.versioned = true
	t.rowVersion = column
	return t
}

// Fields appends properties.
func (t *Type) Fields(props ...*Property) *Type {
	for _, p := range props {
		t.props = append(t.props, p)
		t.byName[strings.ToLower(p.name)] = p
	}
	return t
}

// FullName implements TypeMetadata.
func (t *Type) FullName() string { return t.fullName }

// TableName implements TypeMetadata.
func (t *Type) TableName() TableName { return t.table }

// IsVersioned implements TypeMetadata.
func (t *Type) IsVersioned() bool { return t.versioned }

// RowVersionColumn implements TypeMetadata.
func (t *Type) RowVersionColumn() string { return t.rowVersion }

// Property implements TypeMetadata. Names are matched case-insensitively.
func (t *Type) Property(name string) (PropertyMetadata, error) {
	if p, ok := t.byName[strings.ToLower(gda.ParameterName(name))]; ok {
		return p, nil
	}
	return nil, gda.NewPropertyNotFoundError(t.fullName, name)
}

// PropertyByColumn implements TypeMetadata.
func (t *Type) PropertyByColumn(column string) (PropertyMetadata, bool) {
	for _, p := range t.props {
		if strings.EqualFold(p.column, column) {
			return p, true
		}
	}
	return nil, false
}

// KeyProperties implements TypeMetadata.
func (t *Type) KeyProperties() []PropertyMetadata {
	return t.filter(func(p *Property) bool { return p.kind.IsKey() })
}

// VolatileProperties implements TypeMetadata.
func (t *Type) VolatileProperties() []PropertyMetadata {
	return t.filter(func(p *Property) bool { return p.volatile })
}

// Properties implements TypeMetadata.
func (t *Type) Properties() []PropertyMetadata {
	return t.filter(func(*Property) bool { return true })
}

func (t *Type) filter(fn func(*Property) bool) []PropertyMetadata {
	var out []PropertyMetadata
	for _, p := range t.props {
		if fn(p) {
			out = append(out, p)
		}
	}
	return out
}

// Property is the PropertyMetadata of one mapped property and its builder.
type Property struct {
	name       string
	column     string
	kind       ParameterType
	direction  gda.Direction
	volatile   bool
	foreignKey bool
	dbType     gda.DbType
}

// Field returns a plain field property.
func Field(name string) *Property {
	return &Property{name: name, column: inflect.Underscore(name)}
}

// Key returns a primary key property supplied by the caller.
func Key(name string) *Property {
	p := Field(name)
	p.kind = ParamKey
	return p
}

// Identity returns a primary key property generated by the database.
func Identity(name string) *Property {
	p := Field(name)
	p.kind = ParamIdentityKey
	p.dbType = gda.DbInt64
	return p
}

// Column sets the column name.
func (p *Property) Column(name string) *Property {
	p.column = name
	return p
}

// Volatile marks the property as computed by the database.
func (p *Property) Volatile() *Property {
	p.volatile = true
	return p
}

// References marks the property as a foreign key.
func (p *Property) References() *Property {
	p.foreignKey = true
	return p
}

// Dir sets the persistence direction.
func (p *Property) Dir(d gda.Direction) *Property {
	p.direction = d
	return p
}

// OfType sets the database type.
func (p *Property) OfType(t gda.DbType) *Property {
	p.dbType = t
	return p
}

// Name implements PropertyMetadata.
func (p *Property) Name() string { return p.name }

// ColumnName implements PropertyMetadata.
func (p *Property) ColumnName() string { return p.column }

// ParameterType implements PropertyMetadata.
func (p *Property) ParameterType() ParameterType { return p.kind }

// Direction implements PropertyMetadata.
func (p *Property) Direction() gda.Direction { return p.direction }

// IsVolatile implements PropertyMetadata.
func (p *Property) IsVolatile() bool { return p.volatile }

// IsForeignKey implements PropertyMetadata.
func (p *Property) IsForeignKey() bool { return p.foreignKey }

// DbType implements PropertyMetadata.
func (p *Property) DbType() gda.DbType { return p.dbType }
