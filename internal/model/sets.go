package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSet is a JSON-encoded list of strings stored in a single column.
// A nil or empty set means "no constraint" wherever it is used as a criterion.
type StringSet []string

// Value implements driver.Valuer interface
func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface
func (s *StringSet) Scan(value interface{}) error {
	raw, err := columnBytes(value)
	if err != nil || raw == nil {
		*s = nil
		return err
	}
	return json.Unmarshal(raw, (*[]string)(s))
}

// FeatureSet is the JSON-encoded list of required property features.
type FeatureSet []Feature

// Value implements driver.Valuer interface
func (f FeatureSet) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Feature(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface
func (f *FeatureSet) Scan(value interface{}) error {
	raw, err := columnBytes(value)
	if err != nil || raw == nil {
		*f = nil
		return err
	}
	return json.Unmarshal(raw, (*[]Feature)(f))
}

func columnBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}
