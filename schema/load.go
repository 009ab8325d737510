package schema

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/fabrimaciel/gda"
)

// mappingFile is the YAML layout of a mapping file.
type mappingFile struct {
	Types []typeMapping `yaml:"types"`
}

type typeMapping struct {
	Name       string            `yaml:"name"`
	Table      string            `yaml:"table,omitempty"`
	Schema     string            `yaml:"schema,omitempty"`
	Catalog    string            `yaml:"catalog,omitempty"`
	Versioned  bool              `yaml:"versioned,omitempty"`
	RowVersion string            `yaml:"rowVersion,omitempty"`
	Properties []propertyMapping `yaml:"properties"`
}

type propertyMapping struct {
	Name       string `yaml:"name"`
	Column     string `yaml:"column,omitempty"`
	Kind       string `yaml:"kind,omitempty"`
	Direction  string `yaml:"direction,omitempty"`
	Volatile   bool   `yaml:"volatile,omitempty"`
	ForeignKey bool   `yaml:"foreignKey,omitempty"`
	Type       string `yaml:"type,omitempty"`
}

// Load decodes one mapping document.
func Load(r io.Reader) (*Registry, error) {
	types, err := decode(r)
	if err != nil {
		return nil, err
	}
	return NewRegistry(types...), nil
}

// LoadFile decodes the mapping file at path.
func LoadFile(path string) (*Registry, error) {
	types, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(types...), nil
}

// LoadFiles decodes the given files concurrently into one registry. A type
// declared in more than one file is an error.
func LoadFiles(ctx context.Context, paths ...string) (*Registry, error) {
	decoded := make([][]*Type, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			types, err := decodeFile(path)
			if err != nil {
				return err
			}
			decoded[i] = types
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	reg := NewRegistry()
	origin := make(map[string]string)
	for i, types := range decoded {
		for _, t := range types {
			if prev, ok := origin[t.fullName]; ok {
				return nil, fmt.Errorf("schema: type %q declared in %s and %s", t.fullName, prev, paths[i])
			}
			origin[t.fullName] = paths[i]
			reg.Add(t)
		}
	}
	return reg, nil
}

func decodeFile(path string) ([]*Type, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	defer f.Close()
	types, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return types, nil
}

func decode(r io.Reader) ([]*Type, error) {
	var file mappingFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("schema: decode mapping: %w", err)
	}
	types := make([]*Type, 0, len(file.Types))
	for _, tm := range file.Types {
		t, err := tm.build()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func (tm typeMapping) build() (*Type, error) {
	if tm.Name == "" {
		return nil, fmt.Errorf("schema: type without name")
	}
	t := NewType(tm.Name).Schema(tm.Schema).Catalog(tm.Catalog)
	if tm.Table != "" {
		t.Table(tm.Table)
	}
	if tm.Versioned || tm.RowVersion != "" {
		t.Versioned(tm.RowVersion)
	}
	for _, pm := range tm.Properties {
		p, err := pm.build()
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", tm.Name, err)
		}
		t.Fields(p)
	}
	return t, nil
}

func (pm propertyMapping) build() (*Property, error) {
	if pm.Name == "" {
		return nil, fmt.Errorf("property without name")
	}
	kind, err := parseParameterType(pm.Kind)
	if err != nil {
		return nil, err
	}
	p := Field(pm.Name)
	p.kind = kind
	if kind == ParamIdentityKey {
		p.dbType = gda.DbInt64
	}
	if pm.Column != "" {
		p.Column(pm.Column)
	}
	if pm.Direction != "" {
		d, err := gda.ParseDirection(pm.Direction)
		if err != nil {
			return nil, err
		}
		p.Dir(d)
	}
	if pm.Type != "" {
		dt, err := gda.ParseDbType(pm.Type)
		if err != nil {
			return nil, err
		}
		p.OfType(dt)
	}
	p.volatile = pm.Volatile
	p.foreignKey = pm.ForeignKey
	return p, nil
}
