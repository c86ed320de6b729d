package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleSchema() *Schema {
	users := &TableSchema{
		Name: "users",
		Columns: []ColumnSpec{
			{Name: "id", Type: "integer", Extra: "auto_increment"},
			{Name: "email", Type: "varchar(255)"},
			{Name: "created_at", Type: "timestamp", Nullable: true},
		},
		PrimaryKey: []string{"id"},
		Indexes: map[string]IndexSpec{
			"users_email_key": {Columns: []string{"email"}, Unique: true},
			"idx_created":     {Columns: []string{"created_at"}},
		},
	}
	orders := &TableSchema{
		Name: "orders",
		Columns: []ColumnSpec{
			{Name: "id", Type: "integer"},
			{Name: "user_id", Type: "integer"},
			{Name: "product_id", Type: "integer"},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: map[string]Reference{
			"product_id": {ForeignTable: "products", ForeignColumn: "id"},
			"user_id":    {ForeignTable: "users", ForeignColumn: "id"},
		},
	}

	return NewSchema(users, orders)
}

func TestSchemaLookup(t *testing.T) {
	s := sampleSchema()

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"users", "orders"}, s.TableNames())
	assert.NotNil(t, s.Table("orders"))
	assert.NotNil(t, s.Table("ORDERS"), "case-insensitive fallback")
	assert.Nil(t, s.Table("payments"))
	assert.True(t, s.Has("users"))

	var nilSchema *Schema
	assert.Nil(t, nilSchema.Table("users"))
	assert.Zero(t, nilSchema.Len())
}

func TestNewSchemaSkipsDuplicatesAndNil(t *testing.T) {
	s := NewSchema(
		&TableSchema{Name: "a", Columns: []ColumnSpec{{Name: "first"}}},
		nil,
		&TableSchema{Name: "a", Columns: []ColumnSpec{{Name: "second"}}},
		&TableSchema{},
	)

	require.Equal(t, 1, s.Len())
	assert.Equal(t, "first", s.Table("a").Columns[0].Name)
}

func TestSchemaSubsetKeepsCallerOrder(t *testing.T) {
	s := sampleSchema()

	subset := s.Subset([]string{"orders", "missing", "users", "orders"})
	require.Len(t, subset, 2)
	assert.Equal(t, "orders", subset[0].Name)
	assert.Equal(t, "users", subset[1].Name)

	assert.Empty(t, s.Subset([]string{"missing"}))
}

func TestTablesReturnsCopy(t *testing.T) {
	s := sampleSchema()

	tables := s.Tables()
	tables[0] = nil

	assert.NotNil(t, s.Tables()[0])
}

func TestTableSchemaHelpers(t *testing.T) {
	s := sampleSchema()
	users := s.Table("users")
	orders := s.Table("orders")

	col, ok := users.Column("EMAIL")
	require.True(t, ok)
	assert.Equal(t, "email", col.Name)

	_, ok = users.Column("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"id", "email", "created_at"}, users.ColumnNames())
	assert.True(t, users.IsPrimaryKey("id"))
	assert.False(t, users.IsPrimaryKey("email"))
	assert.Equal(t, []string{"idx_created", "users_email_key"}, users.IndexNames())
	assert.Equal(t, []string{"user_id", "product_id"}, orders.ForeignKeyColumns())
}

func TestColumnSpecFlags(t *testing.T) {
	tests := []struct {
		name     string
		column   ColumnSpec
		autoInc  bool
		temporal bool
	}{
		{"mysql auto_increment", ColumnSpec{Type: "int", Extra: "auto_increment"}, true, false},
		{"postgres serial default", ColumnSpec{Type: "integer", Default: strPtr("nextval('users_id_seq'::regclass)")}, true, false},
		{"postgres identity", ColumnSpec{Type: "bigint", Extra: "identity"}, true, false},
		{"serial type", ColumnSpec{Type: "bigserial"}, true, false},
		{"timestamp", ColumnSpec{Type: "TIMESTAMP WITH TIME ZONE"}, false, true},
		{"date", ColumnSpec{Type: "date"}, false, true},
		{"datetime", ColumnSpec{Type: "datetime"}, false, true},
		{"plain text", ColumnSpec{Type: "text", Default: strPtr("'draft'")}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.autoInc, tt.column.AutoIncrement())
			assert.Equal(t, tt.temporal, tt.column.Temporal())
		})
	}
}

func TestSchemaJSONPreservesOrder(t *testing.T) {
	s := sampleSchema()

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Schema
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, s.TableNames(), decoded.TableNames())
	assert.Equal(t, s.Table("orders").ForeignKeys, decoded.Table("orders").ForeignKeys)
	assert.True(t, decoded.Table("users").Indexes["users_email_key"].Unique)
}
