package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Value is the payload of a report entry. Workers send either a raw scalar
// (encoded as a JSON string) or a structured JSON object.
type Value struct {
	raw        string
	structured bool
}

// RawValue wraps a scalar payload.
func RawValue(raw string) Value {
	return Value{raw: raw}
}

// ObjectValue wraps a structured payload.
func ObjectValue(obj map[string]interface{}) Value {
	data, err := json.Marshal(obj)
	if err != nil {
		// map[string]interface{} with JSON-compatible members always marshals
		panic(err)
	}
	return Value{raw: string(data), structured: true}
}

// Raw returns the payload text exactly as received.
func (v Value) Raw() string {
	return v.raw
}

// IsStructured reports whether the payload arrived as a JSON object.
func (v Value) IsStructured() bool {
	return v.structured
}

// Int64 parses the raw payload as a base-10 integer.
func (v Value) Int64() (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v.raw), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "value %q is not an integer", v.raw)
	}
	return n, nil
}

// Field reads an integer member of a structured payload. Numeric strings and
// integral floats are accepted.
func (v Value) Field(name string) (int64, error) {
	dec := json.NewDecoder(strings.NewReader(v.raw))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return 0, errors.Wrapf(err, "value %q is not a JSON object", v.raw)
	}
	member, ok := obj[name]
	if !ok {
		return 0, errors.Errorf("value %q has no field %q", v.raw, name)
	}
	switch m := member.(type) {
	case json.Number:
		if n, err := m.Int64(); err == nil {
			return n, nil
		}
		f, err := m.Float64()
		if err != nil {
			return 0, errors.Wrapf(err, "field %q", name)
		}
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, errors.Errorf("field %q value %s is not an int64", name, m)
		}
		return int64(f), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(m), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "field %q", name)
		}
		return n, nil
	default:
		return 0, errors.Errorf("field %q has non-numeric type %T", name, member)
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return v.raw
}

// MarshalJSON writes objects verbatim and scalars as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.structured {
		return []byte(v.raw), nil
	}
	return json.Marshal(v.raw)
}

// UnmarshalJSON accepts a JSON string, object, number, boolean or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*v = Value{}
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Value{raw: s}
	case trimmed[0] == '{':
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return err
		}
		*v = Value{raw: compact.String(), structured: true}
	case trimmed[0] == '[':
		return errors.New("report entry value cannot be an array")
	default:
		*v = Value{raw: string(trimmed)}
	}
	return nil
}

// Value implements driver.Valuer; the JSON form keeps the structured flag.
func (v Value) Value() (driver.Value, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (v *Value) Scan(src interface{}) error {
	switch s := src.(type) {
	case nil:
		*v = Value{}
		return nil
	case string:
		return v.UnmarshalJSON([]byte(s))
	case []byte:
		return v.UnmarshalJSON(s)
	default:
		return errors.Errorf("cannot scan %T into Value", src)
	}
}
