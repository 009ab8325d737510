package expr

// Query is a sub-query model: a projection over one or more aliased entities
// with its own parameters.
type Query struct {
	Entities   []Entity
	Projection []Projection
	Where      *Container
	GroupBy    []Term
	Having     *Container
	Sort       []SortEntry
	Skip       int
	Take       int
	Distinct   bool
	Parameters []QueryParameter
}

// Entity is a mapped type taking part in a query.
type Entity struct {
	FullName string
	Alias    string
}

// Projection is one selected term.
type Projection struct {
	Term  Term
	Alias string
}

// SortEntry is one ORDER BY term.
type SortEntry struct {
	Term       Term
	Descending bool
}

// QueryParameter is a value bound to a variable used inside a query.
type QueryParameter struct {
	Name  string
	Value any
}

// Queryable is implemented by anything able to produce a Query.
type Queryable interface {
	BuildQuery() (*Query, error)
}

// NewQuery returns a query over a single entity.
func NewQuery(fullName, alias string) *Query {
	return &Query{Entities: []Entity{{FullName: fullName, Alias: alias}}}
}

// BuildQuery returns q itself.
func (q *Query) BuildQuery() (*Query, error) {
	return q, nil
}

// Join adds another entity to the FROM list.
func (q *Query) Join(fullName, alias string) *Query {
	q.Entities = append(q.Entities, Entity{FullName: fullName, Alias: alias})
	return q
}

// Select appends projected terms.
func (q *Query) Select(terms ...Term) *Query {
	for _, t := range terms {
		q.Projection = append(q.Projection, Projection{Term: t})
	}
	return q
}

// Filter sets the WHERE container.
func (q *Query) Filter(c *Container) *Query {
	q.Where = c
	return q
}

// OrderBy appends a sort entry.
func (q *Query) OrderBy(t Term, desc bool) *Query {
	q.Sort = append(q.Sort, SortEntry{Term: t, Descending: desc})
	return q
}

// Add binds a query parameter.
func (q *Query) Add(name string, value any) *Query {
	q.Parameters = append(q.Parameters, QueryParameter{Name: name, Value: value})
	return q
}

// Main returns the first entity of the query.
func (q *Query) Main() (Entity, bool) {
	if len(q.Entities) == 0 {
		return Entity{}, false
	}
	return q.Entities[0], true
}

// EntityByAlias returns the entity with the given alias. An empty alias
// selects the main entity.
func (q *Query) EntityByAlias(alias string) (Entity, bool) {
	if alias == "" {
		return q.Main()
	}
	for _, e := range q.Entities {
		if e.Alias == alias {
			return e, true
		}
	}
	return Entity{}, false
}
