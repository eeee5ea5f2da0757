package models

// Schema is the introspected structure of a data source.
type Schema struct {
	Databases []Database `json:"databases"`
}

// Database is a database or schema namespace inside a data source.
type Database struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// Table is a table or view with its columns in ordinal order.
type Table struct {
	Name    string           `json:"name"`
	Columns []ColumnMetadata `json:"columns"`
}

// ColumnMetadata describes a column discovered during introspection or
// inferred from result values.
type ColumnMetadata struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Nullable    bool       `json:"nullable"`
	Description string     `json:"description,omitempty"`
}
