package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeYAML decodes a YAML 1.2 or JSON document into out, honoring out's
// json struct tags. Under YAML 1.2 only true and false are booleans, so
// column names such as y, n, on and off stay strings.
func DecodeYAML(data []byte, out any) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	normalized, err := jsonCompatible(doc)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

// jsonCompatible rewrites mappings with non-string keys, which
// encoding/json cannot marshal.
func jsonCompatible(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			converted, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			val[k] = converted
		}
		return val, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			converted, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = converted
		}
		return out, nil
	case []any:
		for i, item := range val {
			converted, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			val[i] = converted
		}
		return val, nil
	default:
		return v, nil
	}
}
