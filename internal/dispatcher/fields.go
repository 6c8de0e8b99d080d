package dispatcher

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/benmeehan/gpio-agent/internal/protocol"
)

// FieldType is the type a command field is converted to before a handler
// sees it.
type FieldType int

const (
	TypeInt FieldType = iota
	TypeFloat
	TypeString
	TypeBool
)

func (t FieldType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	}
	return "unknown"
}

// Field names a command field and its target type.
type Field struct {
	Name string
	Type FieldType
}

// FieldError lists every missing and every unconvertible field of a command.
type FieldError struct {
	Missing []string
	Invalid []string
}

func (e *FieldError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "incomplete command, missing fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// Args holds the converted fields of a command.
type Args map[string]any

// Int returns a converted int field, zero if absent.
func (a Args) Int(name string) int {
	v, _ := a[name].(int)
	return v
}

// Float returns a converted float field, zero if absent.
func (a Args) Float(name string) float64 {
	v, _ := a[name].(float64)
	return v
}

// String returns a converted string field, empty if absent.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Bool returns a converted bool field, false if absent.
func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// Has reports whether an optional field was given.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// validate converts the required and optional fields of cmd. All problems
// are reported together.
func validate(cmd protocol.Command, required, optional []Field) (Args, error) {
	args := make(Args, len(required)+len(optional))
	ferr := &FieldError{}

	convert := func(f Field, raw any) {
		v, err := coerce(raw, f.Type)
		if err != nil {
			ferr.Invalid = append(ferr.Invalid, fmt.Sprintf("%s (%v)", f.Name, err))
			return
		}
		args[f.Name] = v
	}

	for _, f := range required {
		raw, ok := cmd[f.Name]
		if !ok || raw == nil {
			ferr.Missing = append(ferr.Missing, f.Name)
			continue
		}
		convert(f, raw)
	}
	for _, f := range optional {
		if raw, ok := cmd[f.Name]; ok && raw != nil {
			convert(f, raw)
		}
	}

	if len(ferr.Missing) > 0 || len(ferr.Invalid) > 0 {
		return nil, protocol.Wrap(protocol.KindValidation, ferr)
	}
	return args, nil
}

// coerce converts a decoded JSON value. Numeric strings are accepted for
// numbers, as sent by KEY=VALUE command lines.
func coerce(raw any, t FieldType) (any, error) {
	switch t {
	case TypeInt:
		return toInt(raw)
	case TypeFloat:
		return toFloat(raw)
	case TypeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", raw)
	case TypeBool:
		return toBool(raw)
	}
	return nil, fmt.Errorf("unsupported field type %s", t)
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int:
		return v, nil
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return 0, fmt.Errorf("%d is out of range for int", v)
		}
		return int(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return toInt(i)
		}
		return toInt(string(v))
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("cannot convert %v to int", v)
		}
		if v < math.MinInt || v >= math.MaxInt {
			return 0, fmt.Errorf("%v is out of range for int", v)
		}
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int", v)
		}
		return toInt(f)
	}
	return 0, fmt.Errorf("cannot convert %T to int", raw)
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("cannot convert %s to float", v)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("cannot convert %T to float", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to bool", v)
		}
		return b, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return false, fmt.Errorf("cannot convert %T to bool", raw)
	}
	return f != 0, nil
}
