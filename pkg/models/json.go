package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// JSONMap is a structured bag stored in a JSON column. It implements
// driver.Valuer and sql.Scanner so it works with both PostgreSQL JSONB and
// SQLite text columns.
//
// Numbers read back from the database decode as float64.
type JSONMap map[string]any

// Value implements driver.Valuer interface for database writes.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner interface for database reads.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to unmarshal JSON value: unsupported type")
	}

	out := JSONMap{}
	if len(bytes) > 0 {
		if err := json.Unmarshal(bytes, &out); err != nil {
			return fmt.Errorf("invalid JSON in database: %w", err)
		}
	}
	*m = out
	return nil
}

// Clone returns a shallow copy of the map. A nil map clones to an empty one.
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the JSON encoding of the map.
func (m JSONMap) String() string {
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// GetString returns the string stored under key, or "".
func (m JSONMap) GetString(key string) string {
	s, _ := m[key].(string)
	return s
}

// Uint returns the non-negative integral number stored under key.
func (m JSONMap) Uint(key string) (uint, bool) {
	return ToUint(m[key])
}

// Strings returns the strings in the list stored under key. Non-string
// elements are skipped.
func (m JSONMap) Strings(key string) []string {
	var out []string
	switch v := m[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// ToUint converts a decoded JSON or Go number to uint. Negative and
// fractional values are rejected.
func ToUint(v any) (uint, bool) {
	switch n := v.(type) {
	case uint:
		return n, true
	case uint8:
		return uint(n), true
	case uint16:
		return uint(n), true
	case uint32:
		return uint(n), true
	case uint64:
		return uint(n), true
	case int:
		return uint(n), n >= 0
	case int8:
		return uint(n), n >= 0
	case int16:
		return uint(n), n >= 0
	case int32:
		return uint(n), n >= 0
	case int64:
		return uint(n), n >= 0
	case float32:
		return floatToUint(float64(n))
	case float64:
		return floatToUint(n)
	case json.Number:
		if i, err := n.Int64(); err == nil && i >= 0 {
			return uint(i), true
		}
	}
	return 0, false
}

func floatToUint(f float64) (uint, bool) {
	if f < 0 || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return uint(f), true
}
