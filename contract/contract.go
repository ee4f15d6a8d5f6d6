// Package contract defines the declarative schema contracts enforced on the
// silver layer. A contract is pure data: one entry per expected column with
// its type, nullability, and domain constraints. Validation logic lives in
// the silver package; contracts only describe the expected shape, so they can
// be versioned and tested independently.
package contract

import (
	"fmt"
	"regexp"
)

// Type enumerates the column types a contract can require.
type Type string

const (
	TypeString Type = "string"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeDate   Type = "date"
)

// Column describes the constraints for a single silver column.
type Column struct {
	Name     string
	Type     Type
	Required bool // column must be present in the incoming batch
	Nullable bool // NULL allowed after coercion
	Length   int  // exact string length, 0 = unconstrained
	Pattern  *regexp.Regexp
	Enum     []string // allowed values, empty = unconstrained
	Unique   bool     // no two accepted rows may share this value
	Default  string   // fill value applied when NULL and non-nullable strings allow a business default

	// Derived columns are produced by enrichment, not expected in the
	// bronze input. The validator skips them on intake; the final
	// conformance pass checks them like any other column.
	Derived bool
}

// InEnum returns true if v is one of the allowed enum values, or if the
// column has no enum constraint.
func (c Column) InEnum(v string) bool {
	if len(c.Enum) == 0 {
		return true
	}
	for _, e := range c.Enum {
		if v == e {
			return true
		}
	}
	return false
}

// Contract is the versioned schema for one silver table.
type Contract struct {
	Name       string
	Version    string
	PrimaryKey string
	Columns    []Column
}

// Column returns the named column definition.
func (c Contract) Column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the contract's column names in declaration order.
func (c Contract) ColumnNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return names
}

// InputColumns returns the non-derived column names in declaration order.
func (c Contract) InputColumns() []string {
	var names []string
	for _, col := range c.Columns {
		if !col.Derived {
			names = append(names, col.Name)
		}
	}
	return names
}

// Validate checks the contract itself for internal consistency.
func (c Contract) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("contract has no name")
	}
	if c.PrimaryKey == "" {
		return fmt.Errorf("contract %s has no primary key", c.Name)
	}
	pk, ok := c.Column(c.PrimaryKey)
	if !ok {
		return fmt.Errorf("contract %s: primary key %s is not a declared column", c.Name, c.PrimaryKey)
	}
	if pk.Nullable {
		return fmt.Errorf("contract %s: primary key %s must not be nullable", c.Name, c.PrimaryKey)
	}
	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		if col.Name == "" {
			return fmt.Errorf("contract %s has an unnamed column", c.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("contract %s: duplicate column %s", c.Name, col.Name)
		}
		seen[col.Name] = true
		if col.Type == "" {
			return fmt.Errorf("contract %s: column %s has no type", c.Name, col.Name)
		}
		if col.Default != "" && col.Type != TypeString {
			return fmt.Errorf("contract %s: column %s: defaults are only supported for string columns", c.Name, col.Name)
		}
	}
	return nil
}
