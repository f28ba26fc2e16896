package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// StringMap is a map[string]string stored as jsonb.
type StringMap map[string]string

// Value implements driver.Valuer
func (a StringMap) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(a))
}

// Scan implements sql.Scanner
func (a *StringMap) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		*a = StringMap{}
		return nil
	default:
		return errors.New("failed to assert jsonb is bytes")
	}
	m := make(map[string]string)
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*a = m
	return nil
}
