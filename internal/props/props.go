package props

import "slices"

type FieldProp string

var VALID_BUILTIN_PROPS = []FieldProp{FieldPropKey, FieldPropIndex}

const (
	FieldPropKey   FieldProp = "key"   // key(primary)
	FieldPropIndex FieldProp = "index" // index(true/false)
)

func (p FieldProp) IsValid() bool {
	return slices.Contains(VALID_BUILTIN_PROPS, p)
}

const KeyPropPrimary string = "primary"
