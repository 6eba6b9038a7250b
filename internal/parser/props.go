package parser

import "github.com/tobsdb/jsondb/internal/props"

// fieldFlags interprets the props of a field declaration.
func fieldFlags(p map[props.FieldProp]string) (primary bool, indexed bool, err error) {
	if v, ok := p[props.FieldPropKey]; ok {
		if primary, err = props.ParseKeyPropSafe(v); err != nil {
			return false, false, err
		}
	}
	if v, ok := p[props.FieldPropIndex]; ok {
		if indexed, err = props.ParseIndexPropSafe(v); err != nil {
			return false, false, err
		}
	}
	return primary, indexed, nil
}
