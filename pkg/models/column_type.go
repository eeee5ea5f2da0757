package models

// ColumnType is a tag from the normalized type vocabulary every connector maps into.
type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeDecimal   ColumnType = "decimal"
	TypeString    ColumnType = "string"
	TypeBoolean   ColumnType = "boolean"
	TypeDate      ColumnType = "date"
	TypeTime      ColumnType = "time"
	TypeTimestamp ColumnType = "timestamp"
	TypeJSON      ColumnType = "json"
	TypeBinary    ColumnType = "binary"
	TypeArray     ColumnType = "array"
	TypeObject    ColumnType = "object"

	// Coarser tags used by the Databricks mapping table. Chart rendering
	// treats number like float and datetime like timestamp.
	TypeNumber   ColumnType = "number"
	TypeDatetime ColumnType = "datetime"
)
