package types

import (
	"encoding/json"
	"sort"
	"strings"
)

// QueryType classifies a SQL statement by its leading verb
type QueryType string

const (
	QueryTypeSelect  QueryType = "select"
	QueryTypeInsert  QueryType = "insert"
	QueryTypeUpdate  QueryType = "update"
	QueryTypeDelete  QueryType = "delete"
	QueryTypeOther   QueryType = "other"
	QueryTypeUnknown QueryType = "unknown"
)

// Reference is the target of a foreign key column
type Reference struct {
	ForeignTable  string `json:"foreign_table"  yaml:"foreign_table"`
	ForeignColumn string `json:"foreign_column" yaml:"foreign_column"`
}

// IndexSpec describes one index on a table
type IndexSpec struct {
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique"  yaml:"unique"`
}

// ColumnSpec describes one column as reported by the database
type ColumnSpec struct {
	Name     string  `json:"name"              yaml:"name"`
	Type     string  `json:"type"              yaml:"type"`
	Nullable bool    `json:"nullable"          yaml:"nullable"`
	Default  *string `json:"default,omitempty" yaml:"default,omitempty"`
	Extra    string  `json:"extra,omitempty"   yaml:"extra,omitempty"`
}

// AutoIncrement reports whether the database generates the column value
func (c ColumnSpec) AutoIncrement() bool {
	extra := strings.ToLower(c.Extra)
	if strings.Contains(extra, "auto_increment") ||
		strings.Contains(extra, "autoincrement") ||
		strings.Contains(extra, "identity") {
		return true
	}

	if c.Default != nil && strings.HasPrefix(strings.ToLower(*c.Default), "nextval(") {
		return true
	}

	t := strings.ToLower(c.Type)

	return t == "serial" || t == "bigserial" || t == "smallserial"
}

// Temporal reports whether the column holds a date or time value
func (c ColumnSpec) Temporal() bool {
	t := strings.ToLower(c.Type)

	return strings.Contains(t, "date") || strings.Contains(t, "time")
}

// TableSchema is the normalized structure of one table
type TableSchema struct {
	Name        string               `json:"name"                   yaml:"name"`
	Columns     []ColumnSpec         `json:"columns"                yaml:"columns"`
	PrimaryKey  []string             `json:"primary_key,omitempty"  yaml:"primary_key,omitempty"`
	ForeignKeys map[string]Reference `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
	Indexes     map[string]IndexSpec `json:"indexes,omitempty"      yaml:"indexes,omitempty"`
}

// Column looks a column up by name, falling back to a case-insensitive match
func (t *TableSchema) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}

	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}

	return ColumnSpec{}, false
}

// ColumnNames returns column names in physical order
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}

	return names
}

// IsPrimaryKey reports whether column is part of the primary key
func (t *TableSchema) IsPrimaryKey(column string) bool {
	for _, pk := range t.PrimaryKey {
		if strings.EqualFold(pk, column) {
			return true
		}
	}

	return false
}

// IndexNames returns index names sorted for deterministic rendering
func (t *TableSchema) IndexNames() []string {
	names := make([]string, 0, len(t.Indexes))
	for name := range t.Indexes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ForeignKeyColumns returns foreign key columns in physical column order.
// Columns missing from the column list are appended in name order.
func (t *TableSchema) ForeignKeyColumns() []string {
	out := make([]string, 0, len(t.ForeignKeys))
	seen := make(map[string]bool, len(t.ForeignKeys))

	for _, c := range t.Columns {
		if _, ok := t.ForeignKeys[c.Name]; ok {
			out = append(out, c.Name)
			seen[c.Name] = true
		}
	}

	var rest []string
	for col := range t.ForeignKeys {
		if !seen[col] {
			rest = append(rest, col)
		}
	}

	sort.Strings(rest)

	return append(out, rest...)
}

// Schema is an ordered, read-only set of tables keyed by name
type Schema struct {
	tables []*TableSchema
	byName map[string]*TableSchema
	folded map[string]*TableSchema
}

// NewSchema builds a schema from tables; a repeated name keeps the first table
func NewSchema(tables ...*TableSchema) *Schema {
	s := &Schema{
		byName: make(map[string]*TableSchema, len(tables)),
		folded: make(map[string]*TableSchema, len(tables)),
	}

	for _, t := range tables {
		if t == nil || t.Name == "" {
			continue
		}

		if _, dup := s.byName[t.Name]; dup {
			continue
		}

		s.tables = append(s.tables, t)
		s.byName[t.Name] = t

		key := strings.ToLower(t.Name)
		if _, dup := s.folded[key]; !dup {
			s.folded[key] = t
		}
	}

	return s
}

// Table returns the named table or nil
func (s *Schema) Table(name string) *TableSchema {
	if s == nil {
		return nil
	}

	if t, ok := s.byName[name]; ok {
		return t
	}

	return s.folded[strings.ToLower(name)]
}

// Has reports whether the schema contains the named table
func (s *Schema) Has(name string) bool {
	return s.Table(name) != nil
}

// Tables returns tables in introspection order
func (s *Schema) Tables() []*TableSchema {
	if s == nil {
		return nil
	}

	out := make([]*TableSchema, len(s.tables))
	copy(out, s.tables)

	return out
}

// TableNames returns table names in introspection order
func (s *Schema) TableNames() []string {
	if s == nil {
		return nil
	}

	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}

	return names
}

// Len returns the number of tables
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}

	return len(s.tables)
}

// Subset returns the known tables among names, in the order given, without duplicates
func (s *Schema) Subset(names []string) []*TableSchema {
	var out []*TableSchema

	seen := make(map[*TableSchema]bool, len(names))

	for _, name := range names {
		t := s.Table(strings.TrimSpace(name))
		if t == nil || seen[t] {
			continue
		}

		seen[t] = true
		out = append(out, t)
	}

	return out
}

type schemaDocument struct {
	Tables []*TableSchema `json:"tables" yaml:"tables"`
}

// MarshalJSON encodes the schema as an ordered table list
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaDocument{Tables: s.Tables()})
}

// UnmarshalJSON decodes the ordered table list produced by MarshalJSON
func (s *Schema) UnmarshalJSON(data []byte) error {
	var doc schemaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*s = *NewSchema(doc.Tables...)

	return nil
}

// MarshalYAML encodes the schema for gopkg.in/yaml.v3
func (s *Schema) MarshalYAML() (any, error) {
	return schemaDocument{Tables: s.Tables()}, nil
}
