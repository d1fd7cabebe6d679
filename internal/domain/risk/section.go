package risk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Field is a single named finding inside a Section.
type Field struct {
	Name  string
	Value interface{}
}

// Bool returns a boolean field.
func Bool(name string, v bool) Field { return Field{Name: name, Value: v} }

// Num returns a numeric field.
func Num(name string, v float64) Field { return Field{Name: name, Value: v} }

// Section is an immutable, insertion-ordered set of findings for one data
// category (molecular, clinical or imaging). The zero Section is absent;
// NewSection with no fields is present but empty.
type Section struct {
	keys   []string
	values map[string]interface{}
}

// NewSection builds a present Section. Later duplicates overwrite the value
// but keep the first position.
func NewSection(fields ...Field) Section {
	s := Section{
		keys:   make([]string, 0, len(fields)),
		values: make(map[string]interface{}, len(fields)),
	}
	for _, f := range fields {
		if _, dup := s.values[f.Name]; !dup {
			s.keys = append(s.keys, f.Name)
		}
		s.values[f.Name] = f.Value
	}
	return s
}

// Present reports whether the section was supplied at all.
func (s Section) Present() bool { return s.values != nil }

// Len returns the number of findings.
func (s Section) Len() int { return len(s.keys) }

// Has reports whether name was supplied, regardless of its value.
func (s Section) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Keys returns finding names in their original order.
func (s Section) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Value returns the raw value for name.
func (s Section) Value(name string) (interface{}, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Flag returns the truthiness of name. Missing keys are false.
func (s Section) Flag(name string) bool {
	switch v := s.values[name].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return false
}

// Number returns the numeric value of name. Missing or non-numeric values
// are 0; booleans count as 1 or 0.
func (s Section) Number(name string) float64 {
	switch v := s.values[name].(type) {
	case float64:
		return v
	case bool:
		if v {
			return 1
		}
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// PositiveKeys returns, in order, the names whose value is truthy.
func (s Section) PositiveKeys() []string {
	var out []string
	for _, k := range s.keys {
		if s.Flag(k) {
			out = append(out, k)
		}
	}
	return out
}

// Fields returns a copy of the section contents in order.
func (s Section) Fields() []Field {
	out := make([]Field, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Field{Name: k, Value: s.values[k]})
	}
	return out
}

// MarshalJSON writes the section as an object in insertion order.
func (s Section) MarshalJSON() ([]byte, error) {
	if !s.Present() {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object while keeping document key order. Only
// scalar values are accepted; null leaves the section absent.
func (s *Section) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Section{}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("section must be a JSON object")
	}

	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("section key must be a string")
		}

		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("section value %q: %w", key, err)
		}
		switch v := raw.(type) {
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return fmt.Errorf("section value %q: %w", key, err)
			}
			fields = append(fields, Num(key, f))
		case bool, string, nil:
			fields = append(fields, Field{Name: key, Value: v})
		default:
			return fmt.Errorf("section value %q must be a scalar", key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = NewSection(fields...)
	return nil
}
