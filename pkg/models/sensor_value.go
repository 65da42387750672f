package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind identifies the JSON kind of a sensor reading.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindBool
)

// SensorValue is one dynamically-typed sensor reading. Readings arrive as
// arbitrary JSON scalars; nested objects and arrays are rejected at decode
// time so the validator only ever sees scalar kinds.
type SensorValue struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
}

// Number returns a numeric SensorValue.
func Number(v float64) SensorValue { return SensorValue{Kind: KindNumber, Num: v} }

// String returns a string SensorValue.
func String(v string) SensorValue { return SensorValue{Kind: KindString, Str: v} }

// Boolean returns a boolean SensorValue.
func Boolean(v bool) SensorValue { return SensorValue{Kind: KindBool, Bool: v} }

// Null returns a null SensorValue.
func Null() SensorValue { return SensorValue{Kind: KindNull} }

// AsNumber attempts a numeric interpretation of the value. Strings holding a
// parseable number count; booleans and nulls do not.
func (v SensorValue) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// IsNull reports whether the value is JSON null.
func (v SensorValue) IsNull() bool { return v.Kind == KindNull }

// MarshalJSON encodes the value as the plain JSON scalar it wraps.
func (v SensorValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON scalar into a tagged value.
func (v *SensorValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case nil:
		*v = Null()
	case float64:
		*v = Number(val)
	case string:
		*v = String(val)
	case bool:
		*v = Boolean(val)
	default:
		return fmt.Errorf("sensor value must be a JSON scalar, got %T", raw)
	}
	return nil
}

// SensorData is one observation's full reading set, keyed by column name.
type SensorData map[string]SensorValue
