package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a mapping validation error.
type ValidationError struct {
	Type    string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Type, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ValidationResult holds the results of mapping validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// ValidateOption configures mapping validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	requireRowVersionColumn bool
}

// RequireRowVersionColumn reports versioned types without a row-version
// column as errors. Use it for dialects without a row-version pseudo-column.
func RequireRowVersionColumn() ValidateOption {
	return func(c *validateConfig) {
		c.requireRowVersionColumn = true
	}
}

// Validate checks every type of the registry.
//
// Example:
//
//	result := schema.Validate(reg, schema.RequireRowVersionColumn())
//	if result.HasErrors() {
//	    log.Fatal(result)
//	}
func Validate(r *Registry, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}
	tables := make(map[string]string)
	for _, t := range r.Types() {
		if prev, ok := tables[strings.ToLower(t.table.String())]; ok {
			result.Warnings = append(result.Warnings, &ValidationError{
				Type:    t.fullName,
				Message: fmt.Sprintf("table %s is also mapped by %s", t.table, prev),
			})
		}
		tables[strings.ToLower(t.table.String())] = t.fullName
		validateType(t, cfg, result)
	}
	return result
}

// ValidateType validates a single type definition.
func ValidateType(t *Type, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}
	validateType(t, cfg, result)
	return result
}

func validateType(t *Type, cfg *validateConfig, result *ValidationResult) {
	if t.table.Name == "" {
		result.Errors = append(result.Errors, &ValidationError{
			Type:    t.fullName,
			Message: "type has no table name",
		})
	}

	identities := 0
	keys := 0
	for _, p := range t.props {
		if p.kind.IsKey() {
			keys++
		}
		if p.kind == ParamIdentityKey {
			identities++
		}
	}
	if keys == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{
			Type:    t.fullName,
			Message: "type has no key properties",
		})
	}
	if identities > 1 {
		result.Errors = append(result.Errors, &ValidationError{
			Type:    t.fullName,
			Message: fmt.Sprintf("type has %d identity keys", identities),
		})
	}

	// Check for duplicate column names
	colNames := make(map[string]bool)
	for _, p := range t.props {
		col := strings.ToLower(p.column)
		if colNames[col] {
			result.Errors = append(result.Errors, &ValidationError{
				Type:    t.fullName,
				Column:  p.column,
				Message: "duplicate column name",
			})
		}
		colNames[col] = true
	}

	if t.versioned && t.rowVersion == "" && cfg.requireRowVersionColumn {
		result.Errors = append(result.Errors, &ValidationError{
			Type:    t.fullName,
			Message: "versioned type has no row version column",
		})
	}
	if t.rowVersion != "" && colNames[strings.ToLower(t.rowVersion)] {
		result.Warnings = append(result.Warnings, &ValidationError{
			Type:    t.fullName,
			Column:  t.rowVersion,
			Message: "row version column is also mapped as a property",
		})
	}
}
