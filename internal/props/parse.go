package props

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseKeyPropSafe reports whether key(value) marks a primary key.
func ParseKeyPropSafe(value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value != KeyPropPrimary {
		return false, fmt.Errorf("key(%s) is not a valid prop; only key(%s) is supported", value, KeyPropPrimary)
	}
	return true, nil
}

func ParseIndexPropSafe(value string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("Invalid syntax: index(%s)", value)
	}
	return v, nil
}
