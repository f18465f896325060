package towersdk

import (
	"encoding/json"
	"errors"
	"strconv"
)

// entityFields splits an entity document into its top-level keys and checks
// the fields every controller object carries: an integer id and non-empty url
// and type strings.
func entityFields(entity string, data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, &DeserializationError{Entity: entity, Reason: "not a JSON object"}
	}

	if err := requireInt(entity, fields, "id"); err != nil {
		return nil, err
	}
	for _, key := range []string{"url", "type"} {
		if err := requireString(entity, fields, key); err != nil {
			return nil, err
		}
	}

	return fields, nil
}

func requireInt(entity string, fields map[string]json.RawMessage, key string) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return &DeserializationError{Entity: entity, Field: key, Reason: "missing"}
	}

	if _, err := strconv.ParseInt(string(raw), 10, 64); err != nil {
		return &DeserializationError{Entity: entity, Field: key, Reason: "not an integer"}
	}
	return nil
}

func requireString(entity string, fields map[string]json.RawMessage, key string) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return &DeserializationError{Entity: entity, Field: key, Reason: "missing"}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return &DeserializationError{Entity: entity, Field: key, Reason: "not a string"}
	}
	if s == "" {
		return &DeserializationError{Entity: entity, Field: key, Reason: "empty"}
	}
	return nil
}

// decodeEntity decodes data into target and reports type mismatches as a
// DeserializationError naming the offending field.
func decodeEntity(entity string, data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &DeserializationError{
			Entity: entity,
			Field:  typeErr.Field,
			Reason: "expected " + typeErr.Type.String() + ", got " + typeErr.Value,
		}
	}

	return &DeserializationError{Entity: entity, Reason: err.Error()}
}
