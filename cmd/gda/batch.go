package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fabrimaciel/gda"
	"github.com/fabrimaciel/gda/expr"
)

// batchFile is the YAML layout of a batch of actions.
type batchFile struct {
	// Timeout applies to actions without a timeout of their own.
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Actions []actionSpec  `yaml:"actions"`
}

type actionSpec struct {
	ID          int             `yaml:"id,omitempty"`
	Type        string          `yaml:"type"`
	Entity      string          `yaml:"entity,omitempty"`
	Procedure   string          `yaml:"procedure,omitempty"`
	Parameters  []parameterSpec `yaml:"parameters,omitempty"`
	Conditional string          `yaml:"conditional,omitempty"`
	RowVersion  *int64          `yaml:"rowVersion,omitempty"`
	Timeout     time.Duration   `yaml:"timeout,omitempty"`
}

// parameterSpec holds a plain value, a reference to another property or
// expression text. At most one of them is set.
type parameterSpec struct {
	Name       string `yaml:"name"`
	Value      any    `yaml:"value,omitempty"`
	Reference  string `yaml:"reference,omitempty"`
	Expression string `yaml:"expression,omitempty"`
	Direction  string `yaml:"direction,omitempty"`
	Type       string `yaml:"type,omitempty"`
	Size       int    `yaml:"size,omitempty"`
}

func loadBatchFile(path string) ([]*gda.Action, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	actions, err := decodeBatch(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return actions, nil
}

func decodeBatch(r io.Reader) ([]*gda.Action, error) {
	var file batchFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	actions := make([]*gda.Action, 0, len(file.Actions))
	for i, item := range file.Actions {
		a, err := item.build()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		if a.ID == 0 {
			a.ID = i + 1
		}
		if a.CommandTimeout == 0 {
			a.CommandTimeout = file.Timeout
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (s actionSpec) build() (*gda.Action, error) {
	typ, err := gda.ParseActionType(s.Type)
	if err != nil {
		return nil, err
	}
	a := &gda.Action{
		ID:             s.ID,
		Type:           typ,
		EntityFullName: s.Entity,
		ProcedureName:  s.Procedure,
		RowVersion:     s.RowVersion,
		CommandTimeout: s.Timeout,
	}
	if a.EntityFullName == "" && typ != gda.ActionProcedure {
		return nil, fmt.Errorf("%s without entity", typ)
	}
	if s.Conditional != "" {
		if a.Conditional, err = expr.ParseConditional(s.Conditional); err != nil {
			return nil, err
		}
	}
	for _, ps := range s.Parameters {
		p, err := ps.build()
		if err != nil {
			return nil, err
		}
		a.Parameters = append(a.Parameters, p)
	}
	return a, nil
}

func (s parameterSpec) build() (gda.Parameter, error) {
	p := gda.Parameter{Name: s.Name, Value: s.Value, Size: s.Size}
	if s.Name == "" {
		return p, fmt.Errorf("parameter without name")
	}
	switch {
	case s.Reference != "" && s.Expression != "":
		return p, fmt.Errorf("parameter %s: reference and expression are exclusive", s.Name)
	case s.Reference != "":
		p.Value = &expr.PropertyReference{Property: s.Reference}
	case s.Expression != "":
		p.Value = &expr.ExpressionParameter{Expression: s.Expression}
	}
	var err error
	if s.Direction != "" {
		if p.Direction, err = gda.ParseDirection(s.Direction); err != nil {
			return p, err
		}
	}
	if s.Type != "" {
		if p.DbType, err = gda.ParseDbType(s.Type); err != nil {
			return p, err
		}
	}
	return p, nil
}
