package warehouse

import "github.com/gotitinc/mongo-bigquery/typemode"

// TypeMap renders a logical BaseType to the warehouse-native physical type
// string used in DDL. Pluggable per engine: BigQuery's "STRING"/"INT64" read
// differently from Hive's "string"/"bigint".
type TypeMap func(typemode.BaseType) string

// BigQueryTypeMap matches BigQuery's standard SQL column type names.
var BigQueryTypeMap TypeMap = func(b typemode.BaseType) string {
	switch b {
	case typemode.Integer:
		return "INT64"
	case typemode.Float:
		return "FLOAT64"
	case typemode.Boolean:
		return "BOOL"
	default:
		return "STRING"
	}
}

// HiveTypeMap matches Hive/Redshift-style lowercase type names.
var HiveTypeMap TypeMap = func(b typemode.BaseType) string {
	switch b {
	case typemode.Integer:
		return "bigint"
	case typemode.Float:
		return "double"
	case typemode.Boolean:
		return "boolean"
	default:
		return "string"
	}
}

// baseTypeFromPhysical inverts a TypeMap well enough to compare an existing
// physical column's type against a newly resolved logical type during
// Evolve: it recognizes both presets' spellings so narrowing/widening
// decisions work regardless of which TypeMap produced the DDL a rerun
// observes.
func baseTypeFromPhysical(physical string) typemode.BaseType {
	switch physical {
	case "INT64", "bigint", "BIGINT", "int64", "INTEGER":
		return typemode.Integer
	case "FLOAT64", "double", "DOUBLE", "float64", "REAL":
		return typemode.Float
	case "BOOL", "boolean", "BOOLEAN":
		return typemode.Boolean
	default:
		return typemode.String
	}
}
