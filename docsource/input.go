package docsource

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	json "github.com/goccy/go-json"
)

// Sentinel errors returned by InputMap.
var (
	ErrUndefinedInput = errors.New("docsource: nil input")
	ErrInvalidInput   = errors.New("docsource: invalid input")
)

// InputMap decodes structured input to map[string]any. Input can be a JSON
// []byte/string (decoded with UseNumber so integers and floats stay
// distinguishable to the Schema Observer), an already-decoded
// map[string]any, or any other Go value decodable by
// github.com/go-viper/mapstructure/v2 (e.g. a driver-native document type).
func InputMap(a any) (map[string]any, error) {
	m := map[string]any{}
	switch input := a.(type) {
	case nil:
		return nil, ErrUndefinedInput
	case map[string]any:
		return input, nil
	case []byte:
		if err := decodeJSON(input, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	case string:
		if err := decodeJSON([]byte(input), &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	default:
		if err := mapstructure.Decode(a, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return m, nil
}

func decodeJSON(b []byte, out *map[string]any) error {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	return d.Decode(out)
}
