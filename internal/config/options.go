package config

import (
	"encoding/json"
	"strconv"
)

// Options is a free-form option bag for sections whose shape depends on the
// selected implementation (parser kind, run log backend). Getters coerce only
// what JSON and YAML decoding produce and fall back to def otherwise.
type Options map[string]any

// String returns the string at key, or def.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool at key, or def. The strings "true"/"false" are
// accepted for values that came from the environment.
func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int returns the integer at key, or def. JSON numbers arrive as float64,
// YAML numbers as int.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Rune returns the first rune of the string at key, or def when the key is
// missing or empty.
func (o Options) Rune(key string, def rune) rune {
	if s, ok := o[key].(string); ok {
		for _, r := range s {
			return r
		}
	}
	return def
}

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// UnmarshalJSON decodes null or a missing object into an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
