package shred

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/gotitinc/mongo-bigquery/typemode"
)

// coerceScalar coerces value to base per the rules: string is the Unicode
// string of the value; integer must parse to a signed 64-bit value; float is
// an IEEE-754 double; boolean never fails (it is the string "true",
// case-insensitive, else false).
func coerceScalar(base typemode.BaseType, value any) (any, error) {
	switch base {
	case typemode.String:
		return coerceString(value)
	case typemode.Integer:
		return coerceInteger(value)
	case typemode.Float:
		return coerceFloat(value)
	case typemode.Boolean:
		return coerceBoolean(value), nil
	default:
		return nil, fmt.Errorf("cannot coerce to base type %s", base)
	}
}

func coerceString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func coerceInteger(value any) (int64, error) {
	switch v := value.(type) {
	case json.Number:
		return v.Int64()
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int64(v), nil
		}
		return 0, fmt.Errorf("%v is not an integer", v)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("%T is not coercible to integer", v)
	}
}

func coerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("%T is not coercible to float", v)
	}
}

// coerceBoolean never fails: it reports whether value's string form
// case-insensitively equals "true".
func coerceBoolean(value any) bool {
	if b, ok := value.(bool); ok {
		return b
	}
	s, err := coerceString(value)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.Trim(s, `"`), "true")
}
