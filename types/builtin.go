// Package types describes the closed set of field types a table schema can
// declare and the canonical Go values that satisfy them.
package types

import "slices"

var VALID_BUILTIN_TYPES = []FieldType{
	FieldTypeInt, FieldTypeFloat, FieldTypeString,
	FieldTypeBool, FieldTypeList, FieldTypeMap,
}

type FieldType string

const (
	FieldTypeInt    FieldType = "Int"    // int
	FieldTypeFloat  FieldType = "Float"  // float64
	FieldTypeString FieldType = "String" // string
	FieldTypeBool   FieldType = "Bool"   // bool
	FieldTypeList   FieldType = "List"   // []any
	FieldTypeMap    FieldType = "Map"    // map[string]any
)

func (t FieldType) IsValid() bool {
	return slices.Contains(VALID_BUILTIN_TYPES, t)
}

// Orderable reports whether values of t support <, >, <= and >=.
func (t FieldType) Orderable() bool {
	return t == FieldTypeInt || t == FieldTypeFloat || t == FieldTypeString
}

func (t FieldType) IsNumeric() bool {
	return t == FieldTypeInt || t == FieldTypeFloat
}
