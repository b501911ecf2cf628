package scriptrun

import (
	"encoding/json"
	"fmt"
)

// Args are the positional arguments of a legacy call.
type Args []any

// Value returns the argument at i, or nil when it was not supplied.
func (a Args) Value(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// String returns the argument at i as a string. Missing arguments are an
// error unless optional is set.
func (a Args) String(i int, name string, optional bool) (string, error) {
	v := a.Value(i)
	switch s := v.(type) {
	case nil:
		if optional {
			return "", nil
		}
		return "", errMissing(name)
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return "", fmt.Errorf("argument %s must be a string, got %T", name, v)
	}
}

// Bytes returns the argument at i as raw bytes. Strings are taken verbatim.
func (a Args) Bytes(i int, name string) ([]byte, error) {
	switch b := a.Value(i).(type) {
	case nil:
		return nil, errMissing(name)
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("argument %s must be bytes, got %T", name, b)
	}
}
